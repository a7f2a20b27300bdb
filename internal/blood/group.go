package blood

import (
	"fmt"
	"strings"
)

// Group is an ABO/Rh blood group, e.g. "O+" or "AB-".
type Group string

const (
	OPos  Group = "O+"
	ONeg  Group = "O-"
	APos  Group = "A+"
	ANeg  Group = "A-"
	BPos  Group = "B+"
	BNeg  Group = "B-"
	ABPos Group = "AB+"
	ABNeg Group = "AB-"
)

var groups = map[Group]bool{
	OPos: true, ONeg: true,
	APos: true, ANeg: true,
	BPos: true, BNeg: true,
	ABPos: true, ABNeg: true,
}

// donorsFor maps a recipient group to the donor groups whose blood it can receive.
var donorsFor = map[Group][]Group{
	OPos:  {OPos, ONeg},
	ONeg:  {ONeg},
	APos:  {APos, ANeg, OPos, ONeg},
	ANeg:  {ANeg, ONeg},
	BPos:  {BPos, BNeg, OPos, ONeg},
	BNeg:  {BNeg, ONeg},
	ABPos: {ABPos, ABNeg, APos, ANeg, BPos, BNeg, OPos, ONeg},
	ABNeg: {ABNeg, ANeg, BNeg, ONeg},
}

// Parse normalizes and validates a blood group string.
func Parse(s string) (Group, error) {
	g := Group(strings.ToUpper(strings.TrimSpace(s)))
	if !groups[g] {
		return "", fmt.Errorf("invalid blood group: %q", s)
	}
	return g, nil
}

func (g Group) Valid() bool {
	return groups[g]
}

func (g Group) String() string {
	return string(g)
}

// CompatibleDonors returns the donor groups acceptable for a recipient of group g.
// When expand is false only an exact match is acceptable.
func CompatibleDonors(g Group, expand bool) []Group {
	if !expand {
		return []Group{g}
	}
	donors := donorsFor[g]
	out := make([]Group, len(donors))
	copy(out, donors)
	return out
}

// CanDonate reports whether blood of group donor can be given to a recipient of group recipient.
func CanDonate(donor, recipient Group) bool {
	for _, d := range donorsFor[recipient] {
		if d == donor {
			return true
		}
	}
	return false
}

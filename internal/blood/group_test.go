package blood

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		want    Group
		wantErr bool
	}{
		{"O+", OPos, false},
		{"o+", OPos, false},
		{" ab- ", ABNeg, false},
		{"B-", BNeg, false},
		{"", "", true},
		{"C+", "", true},
		{"O", "", true},
		{"AB", "", true},
	}

	for _, tc := range cases {
		got, err := Parse(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCompatibleDonorsExactMatch(t *testing.T) {
	got := CompatibleDonors(APos, false)
	if len(got) != 1 || got[0] != APos {
		t.Fatalf("CompatibleDonors(A+, false) = %v, want [A+]", got)
	}
}

func TestCompatibleDonorsExpanded(t *testing.T) {
	got := CompatibleDonors(ABPos, true)
	if len(got) != 8 {
		t.Fatalf("AB+ should accept all 8 groups, got %v", got)
	}

	got = CompatibleDonors(ONeg, true)
	if len(got) != 1 || got[0] != ONeg {
		t.Fatalf("O- should accept only O-, got %v", got)
	}
}

func TestCanDonate(t *testing.T) {
	cases := []struct {
		donor, recipient Group
		want             bool
	}{
		{ONeg, ABPos, true},
		{ONeg, ONeg, true},
		{OPos, ONeg, false},
		{APos, BPos, false},
		{ANeg, APos, true},
		{ABPos, ABPos, true},
		{ABPos, APos, false},
	}

	for _, tc := range cases {
		if got := CanDonate(tc.donor, tc.recipient); got != tc.want {
			t.Errorf("CanDonate(%s, %s) = %v, want %v", tc.donor, tc.recipient, got, tc.want)
		}
	}
}

func TestCompatibleDonorsReturnsCopy(t *testing.T) {
	a := CompatibleDonors(ABPos, true)
	a[0] = "XX"
	b := CompatibleDonors(ABPos, true)
	if b[0] == "XX" {
		t.Fatal("CompatibleDonors leaked its internal table")
	}
}

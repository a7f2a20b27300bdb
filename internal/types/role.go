package types

import "fmt"

// ContextUserKey is where the auth middleware stores the verified actor on
// the gin context.
const ContextUserKey = "user"

// Role is the closed set of actors in the network. Authorization checks match
// on it exhaustively; anything else fails verification upstream.
type Role string

const (
	RoleDonor    Role = "donor"
	RoleHospital Role = "hospital"
	RoleAdmin    Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleDonor:
		return RoleDonor, nil
	case RoleHospital:
		return RoleHospital, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role: %q", s)
	}
}

// Identity is the verified (user, role) pair the core trusts. It is produced
// by the JWT middleware and passed explicitly into core operations.
type Identity struct {
	ID   uint `json:"id"`
	Role Role `json:"role"`
}

// Actor is Identity plus display fields for responses.
type Actor struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

func (a Actor) Identity() Identity {
	return Identity{ID: a.ID, Role: a.Role}
}

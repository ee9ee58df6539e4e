package auth

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Role distinguishes the two kinds of actor.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func (r Role) Valid() bool {
	return r == RoleDoctor || r == RolePatient
}

// ParseRole accepts the role claim spellings issued by this service and by
// older clients ("ROLE_DOCTOR", "Doctor").
func ParseRole(s string) (Role, bool) {
	s = strings.ToLower(strings.TrimPrefix(strings.ToUpper(s), "ROLE_"))
	r := Role(s)
	return r, r.Valid()
}

// Identity is the verified actor behind a request.
type Identity struct {
	ActorID uuid.UUID
	Role    Role
}

func (i Identity) IsDoctor() bool  { return i.Role == RoleDoctor }
func (i Identity) IsPatient() bool { return i.Role == RolePatient }

// ErrMalformedIdentity is returned when verified claims do not carry a usable
// actor id or role.
var ErrMalformedIdentity = errors.New("malformed identity")

// ResolveIdentity extracts the actor id and role from already-verified
// claims. It does no I/O.
func ResolveIdentity(claims *Claims) (Identity, error) {
	if claims == nil || claims.ActorID == "" {
		return Identity{}, ErrMalformedIdentity
	}
	id, err := uuid.Parse(claims.ActorID)
	if err != nil || id == uuid.Nil {
		return Identity{}, ErrMalformedIdentity
	}

	if r, ok := ParseRole(claims.Role); ok {
		return Identity{ActorID: id, Role: r}, nil
	}
	for _, raw := range claims.Roles {
		if r, ok := ParseRole(raw); ok {
			return Identity{ActorID: id, Role: r}, nil
		}
	}
	return Identity{}, ErrMalformedIdentity
}

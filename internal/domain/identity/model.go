package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/auth"
)

// Actor is a doctor or a patient. Doctor-only fields are nil for patients.
type Actor struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Role         auth.Role `db:"role" json:"role"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`

	DisplayName      *string    `db:"display_name" json:"display_name,omitempty"`
	SpecializationID *uuid.UUID `db:"specialization_id" json:"specialization_id,omitempty"`
	EnrollmentCode   *string    `db:"enrollment_code" json:"enrollment_code,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (a *Actor) IsDoctor() bool  { return a.Role == auth.RoleDoctor }
func (a *Actor) IsPatient() bool { return a.Role == auth.RolePatient }

// FullName prefers a doctor's display name.
func (a *Actor) FullName() string {
	if a.DisplayName != nil && *a.DisplayName != "" {
		return *a.DisplayName
	}
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

type Specialization struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
}

// RegisterInput is the registration payload for both roles. DisplayName and
// SpecializationID are ignored for patients.
type RegisterInput struct {
	Email            string     `json:"email"`
	Password         string     `json:"password"`
	Phone            string     `json:"phone,omitempty"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	DisplayName      string     `json:"display_name,omitempty"`
	SpecializationID *uuid.UUID `json:"specialization_id,omitempty"`
}

// Session is returned by a successful login.
type Session struct {
	Token *auth.Token `json:"token"`
	Actor *Actor      `json:"actor"`
}

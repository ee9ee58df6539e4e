package linkage

import (
	"time"

	"github.com/google/uuid"
)

// Link authorizes a doctor to schedule visits for a patient. The pair is the
// whole identity of the record.
type Link struct {
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Counterpart is the other side of a link as shown in listings.
type Counterpart struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	Email            string     `db:"email" json:"email"`
	Phone            *string    `db:"phone" json:"phone,omitempty"`
	FirstName        string     `db:"first_name" json:"first_name"`
	LastName         string     `db:"last_name" json:"last_name"`
	DisplayName      *string    `db:"display_name" json:"display_name,omitempty"`
	SpecializationID *uuid.UUID `db:"specialization_id" json:"specialization_id,omitempty"`
	LinkedAt         time.Time  `db:"linked_at" json:"linked_at"`
}

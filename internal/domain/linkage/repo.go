package linkage

import (
	"context"

	"github.com/google/uuid"
)

type LinkRepository interface {
	// Create returns a Conflict when the pair already exists.
	Create(ctx context.Context, l *Link) error
	LinkExists(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error)
	ListPatients(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Counterpart, int, error)
	ListDoctors(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Counterpart, int, error)
}

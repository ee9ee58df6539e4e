package visit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type VisitRepository interface {
	Create(ctx context.Context, v *Visit) error
	Get(ctx context.Context, id uuid.UUID) (*Visit, error)
	// GetForUpdate locks the visit row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Visit, error)
	VisitDoctor(ctx context.Context, id uuid.UUID) (doctorID uuid.UUID, found bool, err error)
	UpdateSchedule(ctx context.Context, id uuid.UUID, at time.Time) error
	// MarkFinished sets the finished flag, notes and total and bumps the
	// version.
	MarkFinished(ctx context.Context, id uuid.UUID, notes string, total decimal.Decimal) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Visit, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error)
}

// LineRepository stores line items. It only knows service ids; names and
// prices come from the catalog.
type LineRepository interface {
	ListLines(ctx context.Context, visitID uuid.UUID) ([]*Line, error)
	UpsertLine(ctx context.Context, visitID, serviceID uuid.UUID, quantity int) error
	DeleteLine(ctx context.Context, visitID, serviceID uuid.UUID) error
	DeleteLines(ctx context.Context, visitID uuid.UUID) error
}

type AttachmentRepository interface {
	CreateAttachment(ctx context.Context, a *Attachment) error
	GetAttachment(ctx context.Context, visitID, id uuid.UUID) (*Attachment, error)
	ListAttachments(ctx context.Context, visitID uuid.UUID) ([]*Attachment, error)
	// DeleteAttachments removes every attachment row of the visit and returns
	// what was removed so the blobs can be dropped after commit.
	DeleteAttachments(ctx context.Context, visitID uuid.UUID) ([]*Attachment, error)
}

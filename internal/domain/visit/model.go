package visit

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Visit is an encounter between one doctor and one patient. Open visits have
// Finished false; a cancelled visit is deleted rather than stored.
type Visit struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	DoctorID    uuid.UUID       `db:"doctor_id" json:"doctor_id"`
	PatientID   uuid.UUID       `db:"patient_id" json:"patient_id"`
	ScheduledAt time.Time       `db:"scheduled_at" json:"scheduled_at"`
	Notes       string          `db:"notes" json:"notes"`
	Finished    bool            `db:"finished" json:"finished"`
	TotalCost   decimal.Decimal `db:"total_cost" json:"total_cost"`
	VersionID   int64           `db:"version_id" json:"version_id"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`

	Lines       []*Line       `db:"-" json:"lines"`
	Attachments []*Attachment `db:"-" json:"attachments"`
}

// Line is N units of one service consumed during a visit. ServiceName and
// UnitPrice reflect the catalog at read time.
type Line struct {
	VisitID     uuid.UUID       `db:"visit_id" json:"-"`
	ServiceID   uuid.UUID       `db:"service_id" json:"service_id"`
	ServiceName string          `db:"service_name" json:"service"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// Subtotal is UnitPrice times Quantity.
func (l *Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Attachment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	VisitID     uuid.UUID `db:"visit_id" json:"visit_id"`
	BlobID      string    `db:"blob_id" json:"-"`
	FileName    string    `db:"file_name" json:"file_name"`
	ContentType string    `db:"content_type" json:"content_type"`
	Size        int64     `db:"size" json:"size"`
	CreatedBy   uuid.UUID `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// LineRequest asks for Quantity units of the named service.
type LineRequest struct {
	Service  string `json:"service"`
	Quantity int    `json:"quantity"`
}

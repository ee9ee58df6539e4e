package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service is a billable item in one doctor's catalog. Name is unique per
// doctor, not globally.
type Service struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	DoctorID  uuid.UUID       `db:"doctor_id" json:"doctor_id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// priceScale is the number of decimal places a price may carry.
const priceScale = 2

// Column bounds of the service table.
const maxNameLength = 255

var maxPrice = decimal.New(1, 10) // exclusive, NUMERIC(12,2)

package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ServiceRepository interface {
	// Create returns a Conflict for a duplicate name and NotFound when the
	// doctor does not exist.
	Create(ctx context.Context, s *Service) error
	GetByName(ctx context.Context, doctorID uuid.UUID, name string) (*Service, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Service, error)
	UpdatePrice(ctx context.Context, doctorID uuid.UUID, name string, price decimal.Decimal) (*Service, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Service, error)
	ServiceExists(ctx context.Context, doctorID uuid.UUID, name string) (bool, error)
}

package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

var (
	ErrEmailTaken = &apperr.Error{Kind: apperr.KindConflict, Detail: "email already registered"}
	errCodeTaken  = &apperr.Error{Kind: apperr.KindConflict, Detail: "enrollment code already in use"}
)

type ActorRepository interface {
	// Create returns ErrEmailTaken or a conflict on the enrollment code.
	Create(ctx context.Context, a *Actor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Actor, error)
	GetByEmail(ctx context.Context, email string) (*Actor, error)
	GetByEnrollmentCode(ctx context.Context, code string) (*Actor, error)
}

type SpecializationRepository interface {
	Create(ctx context.Context, s *Specialization) error
	GetByID(ctx context.Context, id uuid.UUID) (*Specialization, error)
	List(ctx context.Context) ([]*Specialization, error)
}

package catalog

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/domain/ownership"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

// Catalog manages the per-doctor service lists. The type is not called
// Service to keep that name for the catalog entry itself.
type Catalog struct {
	repo  ServiceRepository
	guard *ownership.Guard
}

func NewCatalog(repo ServiceRepository, guard *ownership.Guard) *Catalog {
	return &Catalog{repo: repo, guard: guard}
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return apperr.Validation("price must not be negative, got %s", price)
	}
	if price.GreaterThanOrEqual(maxPrice) {
		return apperr.Validation("price must be below %s, got %s", maxPrice, price)
	}
	if !price.Equal(price.Round(priceScale)) {
		return apperr.Validation("price %s has more than %d decimal places", price, priceScale)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return apperr.Validation("service name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return apperr.Validation("service name must be at most %d characters", maxNameLength)
	}
	return nil
}

// CreateService adds a priced item to the calling doctor's catalog.
func (c *Catalog) CreateService(ctx context.Context, actor auth.Identity, doctorID uuid.UUID, name string, price decimal.Decimal) (*Service, error) {
	if !c.guard.MatchesActor(actor, doctorID) {
		return nil, ownership.Deny(actor, doctorID)
	}
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validatePrice(price); err != nil {
		return nil, err
	}
	exists, err := c.repo.ServiceExists(ctx, doctorID, name)
	if err != nil {
		return nil, apperr.Internal(err, "check service name")
	}
	if exists {
		return nil, apperr.Conflict("service %q already exists", name)
	}

	svc := &Service{DoctorID: doctorID, Name: name, Price: price}
	if err := c.repo.Create(ctx, svc); err != nil {
		return nil, err
	}
	return svc, nil
}

// UpdatePrice reprices a service in place. Totals of visits already finished
// keep the price that was in effect when they were reconciled.
func (c *Catalog) UpdatePrice(ctx context.Context, actor auth.Identity, doctorID uuid.UUID, name string, price decimal.Decimal) (*Service, error) {
	name = strings.TrimSpace(name)
	ok, err := c.guard.OwnsService(ctx, actor, doctorID, name)
	if err := ownership.Enforce(ok, err, "service %q is not in the catalog of doctor %s", name, actor.ActorID); err != nil {
		return nil, err
	}
	if err := validatePrice(price); err != nil {
		return nil, err
	}
	return c.repo.UpdatePrice(ctx, doctorID, name, price)
}

func (c *Catalog) ListServices(ctx context.Context, actor auth.Identity, doctorID uuid.UUID) ([]*Service, error) {
	if !c.guard.MatchesActor(actor, doctorID) {
		return nil, ownership.Deny(actor, doctorID)
	}
	return c.repo.ListByDoctor(ctx, doctorID)
}

// GetService looks a service up by name within one doctor's catalog.
func (c *Catalog) GetService(ctx context.Context, doctorID uuid.UUID, name string) (*Service, error) {
	return c.repo.GetByName(ctx, doctorID, name)
}

// ServicesByID returns the current state of the given services keyed by id.
func (c *Catalog) ServicesByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Service, error) {
	list, err := c.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]*Service, len(list))
	for _, s := range list {
		out[s.ID] = s
	}
	return out, nil
}

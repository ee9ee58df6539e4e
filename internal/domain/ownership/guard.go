// Package ownership binds an authenticated actor to the doctor-owned resource
// a request names. Every check is a read-only predicate that stops at the
// first failing clause; callers turn a false result into a Forbidden error
// with Enforce before touching any state.
package ownership

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

// ServiceLookup reports whether a doctor's catalog holds a service name.
type ServiceLookup interface {
	ServiceExists(ctx context.Context, doctorID uuid.UUID, name string) (bool, error)
}

// LinkLookup reports whether a doctor-patient link exists.
type LinkLookup interface {
	LinkExists(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error)
}

// VisitLookup returns the owning doctor of a visit.
type VisitLookup interface {
	VisitDoctor(ctx context.Context, visitID uuid.UUID) (doctorID uuid.UUID, found bool, err error)
}

type Guard struct {
	services ServiceLookup
	links    LinkLookup
	visits   VisitLookup
}

func NewGuard(services ServiceLookup, links LinkLookup, visits VisitLookup) *Guard {
	return &Guard{services: services, links: links, visits: visits}
}

// MatchesActor is true when the actor is the doctor named by the request.
func (g *Guard) MatchesActor(actor auth.Identity, doctorID uuid.UUID) bool {
	return actor.IsDoctor() && doctorID != uuid.Nil && actor.ActorID == doctorID
}

func (g *Guard) OwnsService(ctx context.Context, actor auth.Identity, doctorID uuid.UUID, name string) (bool, error) {
	if !g.MatchesActor(actor, doctorID) {
		return false, nil
	}
	return g.services.ServiceExists(ctx, doctorID, name)
}

func (g *Guard) OwnsPatientLink(ctx context.Context, actor auth.Identity, doctorID, patientID uuid.UUID) (bool, error) {
	if !g.MatchesActor(actor, doctorID) {
		return false, nil
	}
	return g.links.LinkExists(ctx, doctorID, patientID)
}

func (g *Guard) OwnsVisit(ctx context.Context, actor auth.Identity, doctorID, visitID uuid.UUID) (bool, error) {
	if !g.MatchesActor(actor, doctorID) {
		return false, nil
	}
	owner, found, err := g.visits.VisitDoctor(ctx, visitID)
	if err != nil || !found {
		return false, err
	}
	return owner == doctorID, nil
}

// Enforce converts a guard result into an error. A storage failure is
// Internal and never reads as success.
func Enforce(ok bool, err error, format string, args ...interface{}) error {
	if err != nil {
		return apperr.Internal(err, "ownership check")
	}
	if !ok {
		return apperr.Forbidden(format, args...)
	}
	return nil
}

// Deny is the Forbidden error for a failed MatchesActor check.
func Deny(actor auth.Identity, doctorID uuid.UUID) error {
	return apperr.Forbidden("actor %s may not act for doctor %s", actor.ActorID, doctorID)
}

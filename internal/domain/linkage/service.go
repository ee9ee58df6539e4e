package linkage

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/domain/ownership"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

// DoctorDirectory resolves enrollment codes. *identity.Service implements it.
type DoctorDirectory interface {
	DoctorByCode(ctx context.Context, code string) (*identity.Actor, error)
}

type Service struct {
	repo    LinkRepository
	doctors DoctorDirectory
	guard   *ownership.Guard
}

func NewService(repo LinkRepository, doctors DoctorDirectory, guard *ownership.Guard) *Service {
	return &Service{repo: repo, doctors: doctors, guard: guard}
}

// LinkPatient links the calling patient to the doctor holding doctorCode.
// Linking an already linked pair is a Conflict, not an upsert.
func (s *Service) LinkPatient(ctx context.Context, actor auth.Identity, doctorCode string) (*Link, error) {
	if !actor.IsPatient() {
		return nil, apperr.Forbidden("only patients may link themselves to a doctor")
	}
	doc, err := s.doctors.DoctorByCode(ctx, doctorCode)
	if err != nil {
		return nil, err
	}
	exists, err := s.repo.LinkExists(ctx, doc.ID, actor.ActorID)
	if err != nil {
		return nil, apperr.Internal(err, "check link")
	}
	if exists {
		return nil, apperr.Conflict("already linked to doctor %s", doc.ID)
	}
	l := &Link{DoctorID: doc.ID, PatientID: actor.ActorID}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Service) LinkExists(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	return s.repo.LinkExists(ctx, doctorID, patientID)
}

func (s *Service) ListPatients(ctx context.Context, actor auth.Identity, doctorID uuid.UUID, limit, offset int) ([]*Counterpart, int, error) {
	if !s.guard.MatchesActor(actor, doctorID) {
		return nil, 0, ownership.Deny(actor, doctorID)
	}
	return s.repo.ListPatients(ctx, doctorID, limit, offset)
}

func (s *Service) ListDoctors(ctx context.Context, actor auth.Identity, patientID uuid.UUID, limit, offset int) ([]*Counterpart, int, error) {
	if !actor.IsPatient() || actor.ActorID != patientID {
		return nil, 0, apperr.Forbidden("actor %s may not list doctors of patient %s", actor.ActorID, patientID)
	}
	return s.repo.ListDoctors(ctx, patientID, limit, offset)
}

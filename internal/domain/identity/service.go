package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/notification"
)

// ErrInvalidCredentials is returned by Login for an unknown email or a wrong
// password alike.
var ErrInvalidCredentials = errors.New("invalid email or password")

const (
	enrollmentCodeLength   = 8
	enrollmentCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	enrollmentCodeAttempts = 5
)

// TokenIssuer signs access tokens. *auth.Issuer implements it.
type TokenIssuer interface {
	Issue(actorID uuid.UUID, role auth.Role, email string) (*auth.Token, error)
}

type Service struct {
	actors ActorRepository
	specs  SpecializationRepository
	tokens TokenIssuer
	codes  func() (string, error)
}

func NewService(actors ActorRepository, specs SpecializationRepository, tokens TokenIssuer) *Service {
	return &Service{actors: actors, specs: specs, tokens: tokens, codes: newEnrollmentCode}
}

func newEnrollmentCode() (string, error) {
	buf := make([]byte, enrollmentCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = enrollmentCodeAlphabet[int(b)%len(enrollmentCodeAlphabet)]
	}
	return string(buf), nil
}

func (s *Service) newActor(in RegisterInput, role auth.Role) (*Actor, error) {
	email := strings.TrimSpace(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation("invalid email %q", in.Email)
	}
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return nil, apperr.Validation("first_name and last_name are required")
	}
	hash, err := auth.HashPassword(in.Password)
	if errors.Is(err, auth.ErrWeakPassword) {
		return nil, apperr.Validation("%s", err.Error())
	}
	if err != nil {
		return nil, apperr.Internal(err, "hash password")
	}
	a := &Actor{
		Role:         role,
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
	}
	if p := strings.TrimSpace(in.Phone); p != "" {
		a.Phone = &p
	}
	return a, nil
}

// RegisterPatient creates a patient account.
func (s *Service) RegisterPatient(ctx context.Context, in RegisterInput) (*Actor, error) {
	a, err := s.newActor(in, auth.RolePatient)
	if err != nil {
		return nil, err
	}
	if err := s.actors.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// RegisterDoctor creates a doctor account with a freshly generated
// enrollment code. A colliding code is regenerated a few times before giving
// up.
func (s *Service) RegisterDoctor(ctx context.Context, in RegisterInput) (*Actor, error) {
	a, err := s.newActor(in, auth.RoleDoctor)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(in.DisplayName); name != "" {
		a.DisplayName = &name
	}
	if in.SpecializationID != nil {
		if _, err := s.specs.GetByID(ctx, *in.SpecializationID); err != nil {
			return nil, err
		}
		a.SpecializationID = in.SpecializationID
	}

	for attempt := 0; attempt < enrollmentCodeAttempts; attempt++ {
		code, err := s.codes()
		if err != nil {
			return nil, apperr.Internal(err, "generate enrollment code")
		}
		a.EnrollmentCode = &code
		err = s.actors.Create(ctx, a)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, errCodeTaken) {
			return nil, err
		}
	}
	return nil, apperr.Internal(errCodeTaken, "allocate enrollment code")
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	a, err := s.actors.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(password, a.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	tok, err := s.tokens.Issue(a.ID, a.Role, a.Email)
	if err != nil {
		return nil, apperr.Internal(err, "issue token")
	}
	return &Session{Token: tok, Actor: a}, nil
}

// Profile returns the calling actor's own record.
func (s *Service) Profile(ctx context.Context, ident auth.Identity) (*Actor, error) {
	a, err := s.actors.GetByID(ctx, ident.ActorID)
	if err != nil {
		return nil, err
	}
	if a.Role != ident.Role {
		return nil, apperr.Forbidden("token role %q does not match account", ident.Role)
	}
	return a, nil
}

func (s *Service) GetActor(ctx context.Context, id uuid.UUID) (*Actor, error) {
	return s.actors.GetByID(ctx, id)
}

// DoctorByCode resolves a doctor's enrollment code.
func (s *Service) DoctorByCode(ctx context.Context, code string) (*Actor, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, apperr.Validation("doctor_code is required")
	}
	return s.actors.GetByEnrollmentCode(ctx, code)
}

// Contact returns the notification address book entry for an actor.
func (s *Service) Contact(ctx context.Context, id uuid.UUID) (notification.Contact, error) {
	a, err := s.actors.GetByID(ctx, id)
	if err != nil {
		return notification.Contact{}, err
	}
	return notification.Contact{ActorID: a.ID, Name: a.FullName(), Email: a.Email}, nil
}

func (s *Service) ListSpecializations(ctx context.Context) ([]*Specialization, error) {
	return s.specs.List(ctx)
}

func (s *Service) CreateSpecialization(ctx context.Context, name string) (*Specialization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("specialization name is required")
	}
	sp := &Specialization{Name: name}
	if err := s.specs.Create(ctx, sp); err != nil {
		return nil, err
	}
	return sp, nil
}

package visit

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/domain/ownership"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/blobstore"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/notification"
)

// ContactDirectory resolves actor contact details for notifications.
// *identity.Service implements it.
type ContactDirectory interface {
	Contact(ctx context.Context, actorID uuid.UUID) (notification.Contact, error)
}

// ReminderPlanner keeps a visit's reminders in step with its schedule.
// *reminder.Planner implements it.
type ReminderPlanner interface {
	Schedule(ctx context.Context, visitID uuid.UUID, scheduledAt time.Time) error
	Cancel(ctx context.Context, visitID uuid.UUID) error
}

type Deps struct {
	Visits      VisitRepository
	Lines       LineRepository
	Attachments AttachmentRepository
	Catalog     ServiceCatalog
	Guard       *ownership.Guard
	Tx          db.TxRunner
	Reminders   ReminderPlanner
	Contacts    ContactDirectory
	Notifier    notification.Notifier
	Blobs       blobstore.Store
	Logger      zerolog.Logger
}

// Service runs the visit lifecycle. Every mutating method performs one
// ownership check before any write and groups its writes in one transaction.
// Notifications are sent after commit and never affect the outcome.
type Service struct {
	visits      VisitRepository
	lines       LineRepository
	attachments AttachmentRepository
	reconciler  *Reconciler
	guard       *ownership.Guard
	tx          db.TxRunner
	reminders   ReminderPlanner
	contacts    ContactDirectory
	notifier    notification.Notifier
	blobs       blobstore.Store
	logger      zerolog.Logger
}

func NewService(d Deps) *Service {
	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NopNotifier{}
	}
	return &Service{
		visits:      d.Visits,
		lines:       d.Lines,
		attachments: d.Attachments,
		reconciler:  NewReconciler(d.Lines, d.Catalog),
		guard:       d.Guard,
		tx:          d.Tx,
		reminders:   d.Reminders,
		contacts:    d.Contacts,
		notifier:    notifier,
		blobs:       d.Blobs,
		logger:      d.Logger.With().Str("component", "visit").Logger(),
	}
}

func (s *Service) ownsVisit(ctx context.Context, actor auth.Identity, doctorID, visitID uuid.UUID) error {
	ok, err := s.guard.OwnsVisit(ctx, actor, doctorID, visitID)
	return ownership.Enforce(ok, err, "visit %s does not belong to doctor %s", visitID, actor.ActorID)
}

// Create schedules a new open visit for a linked patient.
func (s *Service) Create(ctx context.Context, actor auth.Identity, doctorID, patientID uuid.UUID, at time.Time, notes string) (*Visit, error) {
	ok, err := s.guard.OwnsPatientLink(ctx, actor, doctorID, patientID)
	if err := ownership.Enforce(ok, err, "patient %s is not linked to doctor %s", patientID, actor.ActorID); err != nil {
		return nil, err
	}
	if at.IsZero() {
		return nil, apperr.Validation("scheduled_at is required")
	}

	v := &Visit{
		DoctorID:    doctorID,
		PatientID:   patientID,
		ScheduledAt: at.UTC(),
		Notes:       strings.TrimSpace(notes),
		TotalCost:   decimal.Zero,
		Lines:       []*Line{},
		Attachments: []*Attachment{},
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.visits.Create(ctx, v); err != nil {
			return err
		}
		if err := s.reminders.Schedule(ctx, v.ID, v.ScheduledAt); err != nil {
			return apperr.Internal(err, "schedule reminders")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, notification.VisitCreated, v)
	return v, nil
}

// Reschedule moves an open visit. Finished visits keep their date.
func (s *Service) Reschedule(ctx context.Context, actor auth.Identity, doctorID, visitID uuid.UUID, at time.Time) (*Visit, error) {
	if err := s.ownsVisit(ctx, actor, doctorID, visitID); err != nil {
		return nil, err
	}
	if at.IsZero() {
		return nil, apperr.Validation("scheduled_at is required")
	}

	var v *Visit
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if v, err = s.visits.GetForUpdate(ctx, visitID); err != nil {
			return err
		}
		if v.Finished {
			return apperr.Validation("visit %s is finished and cannot be rescheduled", visitID)
		}
		if err := s.visits.UpdateSchedule(ctx, visitID, at.UTC()); err != nil {
			return err
		}
		if err := s.reminders.Schedule(ctx, visitID, at.UTC()); err != nil {
			return apperr.Internal(err, "schedule reminders")
		}
		v.ScheduledAt = at.UTC()
		v.VersionID++
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, notification.VisitRescheduled, v)
	return v, nil
}

// Cancel deletes the visit together with its lines, attachments and
// reminders. Attachment content is removed from the blob store once the
// delete has committed.
func (s *Service) Cancel(ctx context.Context, actor auth.Identity, doctorID, visitID uuid.UUID) error {
	if err := s.ownsVisit(ctx, actor, doctorID, visitID); err != nil {
		return err
	}

	var removed []*Attachment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.visits.GetForUpdate(ctx, visitID); err != nil {
			return err
		}
		if err := s.lines.DeleteLines(ctx, visitID); err != nil {
			return err
		}
		var err error
		if removed, err = s.attachments.DeleteAttachments(ctx, visitID); err != nil {
			return err
		}
		if err := s.reminders.Cancel(ctx, visitID); err != nil {
			return apperr.Internal(err, "cancel reminders")
		}
		return s.visits.Delete(ctx, visitID)
	})
	if err != nil {
		return err
	}

	for _, a := range removed {
		if err := s.blobs.Delete(ctx, a.BlobID); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
			s.logger.Warn().Err(err).Str("visit_id", visitID.String()).Str("blob_id", a.BlobID).Msg("orphaned attachment blob")
		}
	}
	return nil
}

// Finish reconciles the requested lines into the visit, marks it finished and
// stores the recomputed total. notes replaces the visit notes when non-nil.
// Concurrent calls serialize on the visit row; the last to commit decides the
// final state.
func (s *Service) Finish(ctx context.Context, actor auth.Identity, doctorID, visitID uuid.UUID, requested []LineRequest, notes *string) (*Visit, error) {
	if err := s.ownsVisit(ctx, actor, doctorID, visitID); err != nil {
		return nil, err
	}
	if len(requested) == 0 {
		return nil, apperr.Validation("at least one service line is required to finish a visit")
	}

	var v *Visit
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if v, err = s.visits.GetForUpdate(ctx, visitID); err != nil {
			return err
		}
		lines, total, err := s.reconciler.Reconcile(ctx, v, requested)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return apperr.Validation("a visit cannot be finished without service lines")
		}
		if notes != nil {
			v.Notes = strings.TrimSpace(*notes)
		}
		if err := s.visits.MarkFinished(ctx, v.ID, v.Notes, total); err != nil {
			return err
		}
		v.Finished = true
		v.TotalCost = total
		v.Lines = lines
		v.VersionID++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Get returns a visit with its lines and attachments to its doctor or patient.
func (s *Service) Get(ctx context.Context, actor auth.Identity, visitID uuid.UUID) (*Visit, error) {
	v, err := s.visits.Get(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if !participant(actor, v) {
		return nil, apperr.Forbidden("actor %s is not a participant of visit %s", actor.ActorID, visitID)
	}
	if err := s.load(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func participant(actor auth.Identity, v *Visit) bool {
	switch actor.Role {
	case auth.RoleDoctor:
		return actor.ActorID == v.DoctorID
	case auth.RolePatient:
		return actor.ActorID == v.PatientID
	}
	return false
}

// load fills lines at current catalog prices and attachments. TotalCost is
// left as stored.
func (s *Service) load(ctx context.Context, v *Visit) error {
	lines, err := s.lines.ListLines(ctx, v.ID)
	if err != nil {
		return err
	}
	if _, err := s.reconciler.Price(ctx, lines); err != nil {
		return err
	}
	atts, err := s.attachments.ListAttachments(ctx, v.ID)
	if err != nil {
		return err
	}
	v.Lines = nonNil(lines)
	v.Attachments = nonNil(atts)
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (s *Service) ListForDoctor(ctx context.Context, actor auth.Identity, doctorID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	if !s.guard.MatchesActor(actor, doctorID) {
		return nil, 0, ownership.Deny(actor, doctorID)
	}
	return s.visits.ListByDoctor(ctx, doctorID, limit, offset)
}

func (s *Service) ListForPatient(ctx context.Context, actor auth.Identity, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	if !actor.IsPatient() || actor.ActorID != patientID {
		return nil, 0, apperr.Forbidden("actor %s may not list visits of patient %s", actor.ActorID, patientID)
	}
	return s.visits.ListByPatient(ctx, patientID, limit, offset)
}

// Upload describes an attachment being added to a visit.
type Upload struct {
	FileName    string
	ContentType string
	Content     io.Reader
}

// AddAttachment stores the content in the blob store and records it on the
// visit. The blob is removed again if the record cannot be written.
func (s *Service) AddAttachment(ctx context.Context, actor auth.Identity, doctorID, visitID uuid.UUID, up Upload) (*Attachment, error) {
	if err := s.ownsVisit(ctx, actor, doctorID, visitID); err != nil {
		return nil, err
	}
	meta := blobstore.Metadata{
		VisitID:     visitID.String(),
		FileName:    up.FileName,
		ContentType: up.ContentType,
		CreatedBy:   actor.ActorID.String(),
	}
	if err := blobstore.Validate(meta); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	stored, err := s.blobs.Put(ctx, meta, up.Content)
	if errors.Is(err, blobstore.ErrFileTooLarge) || errors.Is(err, blobstore.ErrInvalidContentType) {
		return nil, apperr.Validation("%s", err.Error())
	}
	if err != nil {
		return nil, apperr.Internal(err, "store attachment")
	}

	a := &Attachment{
		VisitID:     visitID,
		BlobID:      stored.ID,
		FileName:    stored.FileName,
		ContentType: stored.ContentType,
		Size:        stored.Size,
		CreatedBy:   actor.ActorID,
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.visits.GetForUpdate(ctx, visitID); err != nil {
			return err
		}
		return s.attachments.CreateAttachment(ctx, a)
	})
	if err != nil {
		if derr := s.blobs.Delete(ctx, stored.ID); derr != nil {
			s.logger.Warn().Err(derr).Str("blob_id", stored.ID).Msg("remove blob of failed attachment")
		}
		return nil, err
	}
	return a, nil
}

// OpenAttachment returns an attachment's metadata and content to a visit
// participant. The caller closes the reader.
func (s *Service) OpenAttachment(ctx context.Context, actor auth.Identity, visitID, attachmentID uuid.UUID) (*Attachment, io.ReadCloser, error) {
	v, err := s.visits.Get(ctx, visitID)
	if err != nil {
		return nil, nil, err
	}
	if !participant(actor, v) {
		return nil, nil, apperr.Forbidden("actor %s is not a participant of visit %s", actor.ActorID, visitID)
	}
	a, err := s.attachments.GetAttachment(ctx, visitID, attachmentID)
	if err != nil {
		return nil, nil, err
	}
	rc, _, err := s.blobs.Open(ctx, a.BlobID)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, apperr.NotFound("attachment content %s not found", attachmentID)
	}
	if err != nil {
		return nil, nil, apperr.Internal(err, "open attachment")
	}
	return a, rc, nil
}

// ReminderTarget builds the reminder event for a visit. Finished or deleted
// visits get no reminder.
func (s *Service) ReminderTarget(ctx context.Context, visitID uuid.UUID) (notification.VisitEvent, bool, error) {
	v, err := s.visits.Get(ctx, visitID)
	if errors.Is(err, apperr.ErrNotFound) {
		return notification.VisitEvent{}, false, nil
	}
	if err != nil {
		return notification.VisitEvent{}, false, err
	}
	if v.Finished {
		return notification.VisitEvent{}, false, nil
	}
	ev, err := s.event(ctx, notification.VisitReminder, v)
	if err != nil {
		return notification.VisitEvent{}, false, err
	}
	return ev, true, nil
}

func (s *Service) event(ctx context.Context, kind notification.EventKind, v *Visit) (notification.VisitEvent, error) {
	patient, err := s.contacts.Contact(ctx, v.PatientID)
	if err != nil {
		return notification.VisitEvent{}, err
	}
	doctor, err := s.contacts.Contact(ctx, v.DoctorID)
	if err != nil {
		return notification.VisitEvent{}, err
	}
	return notification.VisitEvent{
		Kind:           kind,
		VisitID:        v.ID,
		PatientContact: patient,
		DoctorContact:  doctor,
		When:           v.ScheduledAt,
	}, nil
}

// notify hands the event to the notifier. Failures are logged only.
func (s *Service) notify(ctx context.Context, kind notification.EventKind, v *Visit) {
	ev, err := s.event(ctx, kind, v)
	if err != nil {
		s.logger.Warn().Err(err).Str("visit_id", v.ID.String()).Str("kind", string(kind)).Msg("visit notification skipped")
		return
	}
	s.notifier.Notify(ev)
}

// Package notification delivers visit events to patients and doctors by email
// and websocket push. Delivery is asynchronous and never reports back to the
// operation that raised the event.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/websocket"
)

type EventKind string

const (
	VisitCreated     EventKind = "visit.created"
	VisitRescheduled EventKind = "visit.rescheduled"
	VisitReminder    EventKind = "visit.reminder"
)

// Contact is where one party of a visit can be reached.
type Contact struct {
	ActorID uuid.UUID `json:"actor_id"`
	Name    string    `json:"name"`
	Email   string    `json:"email,omitempty"`
}

type VisitEvent struct {
	Kind           EventKind `json:"kind"`
	VisitID        uuid.UUID `json:"visit_id"`
	PatientContact Contact   `json:"patient"`
	DoctorContact  Contact   `json:"doctor"`
	When           time.Time `json:"when"`
	// ReminderKind is set on VisitReminder events ("day-before", "hour-before").
	ReminderKind string `json:"reminder_kind,omitempty"`
}

// Notifier accepts events for out-of-band delivery. Notify must not block on
// delivery and has no failure mode visible to the caller.
type Notifier interface {
	Notify(ev VisitEvent)
}

// EmailSender sends one plain-text email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(VisitEvent) {}

// Dispatcher is the production Notifier. Events are queued on a bounded ants
// pool; when the pool is saturated the event is dropped and logged.
type Dispatcher struct {
	pool      *ants.Pool
	email     EmailSender
	push      websocket.EventPublisher
	templates *TemplateEngine
	logger    zerolog.Logger
	timeout   time.Duration
}

type DispatcherConfig struct {
	Workers int
	// Timeout bounds one event's delivery across all channels.
	Timeout time.Duration
}

// NewDispatcher builds a Dispatcher. email and push may be nil to disable
// that channel.
func NewDispatcher(cfg DispatcherConfig, email EmailSender, push websocket.EventPublisher, logger zerolog.Logger) (*Dispatcher, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	logger = logger.With().Str("component", "notification").Logger()

	pool, err := ants.NewPool(cfg.Workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			logger.Error().Interface("panic", p).Msg("notification worker panic")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create notification pool: %w", err)
	}

	return &Dispatcher{
		pool:      pool,
		email:     email,
		push:      push,
		templates: NewTemplateEngine(),
		logger:    logger,
		timeout:   cfg.Timeout,
	}, nil
}

func (d *Dispatcher) Notify(ev VisitEvent) {
	err := d.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.Deliver(ctx, ev); err != nil {
			d.logger.Warn().Err(err).
				Str("kind", string(ev.Kind)).
				Str("visit_id", ev.VisitID.String()).
				Msg("notification delivery failed")
		}
	})
	if err != nil {
		d.logger.Warn().Err(err).
			Str("kind", string(ev.Kind)).
			Str("visit_id", ev.VisitID.String()).
			Msg("notification dropped")
	}
}

// Deliver sends ev to both parties on every configured channel and returns
// the joined errors. It runs synchronously.
func (d *Dispatcher) Deliver(ctx context.Context, ev VisitEvent) error {
	var errs []error
	for _, r := range recipients(ev) {
		msg, err := d.templates.Render(ev.Kind, r.audience, templateData(ev, r.contact))
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if d.push != nil && r.contact.ActorID != uuid.Nil {
			if err := d.push.Publish(ctx, pushEvent(ev, r.contact, msg)); err != nil {
				errs = append(errs, fmt.Errorf("push to %s: %w", r.contact.ActorID, err))
			}
		}
		if d.email != nil && r.contact.Email != "" {
			if err := d.email.SendEmail(ctx, r.contact.Email, msg.Subject, msg.Body); err != nil {
				errs = append(errs, fmt.Errorf("email to %s: %w", r.contact.Email, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Running reports the number of in-flight deliveries.
func (d *Dispatcher) Running() int {
	return d.pool.Running()
}

// Close waits up to timeout for in-flight deliveries and stops the pool.
func (d *Dispatcher) Close(timeout time.Duration) error {
	return d.pool.ReleaseTimeout(timeout)
}

type recipient struct {
	audience Audience
	contact  Contact
}

// Reminders go to the patient only; lifecycle events go to both parties.
func recipients(ev VisitEvent) []recipient {
	out := []recipient{{AudiencePatient, ev.PatientContact}}
	if ev.Kind != VisitReminder {
		out = append(out, recipient{AudienceDoctor, ev.DoctorContact})
	}
	return out
}

func templateData(ev VisitEvent, to Contact) map[string]string {
	return map[string]string{
		"recipient":    to.Name,
		"patient_name": ev.PatientContact.Name,
		"doctor_name":  ev.DoctorContact.Name,
		"date":         ev.When.UTC().Format("2006-01-02"),
		"time":         ev.When.UTC().Format("15:04 MST"),
		"visit_id":     ev.VisitID.String(),
	}
}

func pushEvent(ev VisitEvent, to Contact, msg Message) websocket.Event {
	data, _ := json.Marshal(struct {
		Subject string    `json:"subject"`
		Body    string    `json:"body"`
		When    time.Time `json:"when"`
	}{msg.Subject, msg.Body, ev.When.UTC()})
	return websocket.Event{
		Type:    string(ev.Kind),
		Topic:   websocket.ActorTopic(to.ActorID),
		VisitID: ev.VisitID.String(),
		Data:    data,
	}
}

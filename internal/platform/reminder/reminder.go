// Package reminder keeps durable per-visit reminder triggers and fires each
// one exactly once from a periodic scan.
package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	DayBefore  Kind = "day-before"
	HourBefore Kind = "hour-before"
)

// Offsets maps each reminder kind to how long before the visit it fires.
var Offsets = map[Kind]time.Duration{
	DayBefore:  24 * time.Hour,
	HourBefore: time.Hour,
}

// kinds fixes the planning order so Plan output is deterministic.
var kinds = []Kind{DayBefore, HourBefore}

type Reminder struct {
	ID      uuid.UUID  `json:"id"`
	VisitID uuid.UUID  `json:"visit_id"`
	Kind    Kind       `json:"kind"`
	FireAt  time.Time  `json:"fire_at"`
	SentAt  *time.Time `json:"sent_at,omitempty"`
}

// Plan returns the reminders for a visit at scheduledAt. Triggers that would
// already be in the past at now are omitted.
func Plan(visitID uuid.UUID, scheduledAt, now time.Time) []*Reminder {
	var out []*Reminder
	for _, k := range kinds {
		fireAt := scheduledAt.Add(-Offsets[k])
		if !fireAt.After(now) {
			continue
		}
		out = append(out, &Reminder{
			ID:      uuid.New(),
			VisitID: visitID,
			Kind:    k,
			FireAt:  fireAt.UTC(),
		})
	}
	return out
}

// Store persists reminders. Replace and DeleteForVisit join the caller's
// transaction when ctx carries one.
type Store interface {
	// Replace drops the visit's unsent reminders and inserts rs.
	Replace(ctx context.Context, visitID uuid.UUID, rs []*Reminder) error
	DeleteForVisit(ctx context.Context, visitID uuid.UUID) error
	// ClaimDue marks up to limit due, unsent reminders as sent at now and
	// returns them. A reminder is returned by at most one call.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Reminder, error)
}

// Planner is what the visit lifecycle uses to keep reminders in step with
// the visit's scheduled time.
type Planner struct {
	store Store
	now   func() time.Time
}

func NewPlanner(store Store) *Planner {
	return &Planner{store: store, now: time.Now}
}

// Schedule replaces the visit's pending reminders with a fresh plan.
func (p *Planner) Schedule(ctx context.Context, visitID uuid.UUID, scheduledAt time.Time) error {
	return p.store.Replace(ctx, visitID, Plan(visitID, scheduledAt, p.now()))
}

// Cancel removes every reminder of the visit.
func (p *Planner) Cancel(ctx context.Context, visitID uuid.UUID) error {
	return p.store.DeleteForVisit(ctx, visitID)
}

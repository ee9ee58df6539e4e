package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/notification"
)

// TargetResolver loads what a reminder needs to say about its visit. ok is
// false when the visit no longer exists.
type TargetResolver interface {
	ReminderTarget(ctx context.Context, visitID uuid.UUID) (ev notification.VisitEvent, ok bool, err error)
}

type SchedulerConfig struct {
	// Spec is a robfig/cron spec such as "@every 1m".
	Spec      string
	BatchSize int
	// Timeout bounds one scan.
	Timeout time.Duration
}

// Scheduler claims due reminders on a cron tick and hands them to the
// notifier.
type Scheduler struct {
	store    Store
	targets  TargetResolver
	notifier notification.Notifier
	logger   zerolog.Logger
	cfg      SchedulerConfig
	cron     *cron.Cron
	now      func() time.Time
}

func NewScheduler(cfg SchedulerConfig, store Store, targets TargetResolver, notifier notification.Notifier, logger zerolog.Logger) (*Scheduler, error) {
	if cfg.Spec == "" {
		cfg.Spec = "@every 1m"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	logger = logger.With().Str("component", "reminder").Logger()

	s := &Scheduler{
		store:    store,
		targets:  targets,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}

	cl := cronLogger{logger}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := s.cron.AddFunc(cfg.Spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid reminder scan spec %q: %w", cfg.Spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info().Str("spec", s.cfg.Spec).Msg("reminder scheduler started")
	s.cron.Start()
}

// Stop halts the schedule and waits for a running scan to finish or ctx to
// end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	if _, err := s.Scan(ctx); err != nil {
		s.logger.Error().Err(err).Msg("reminder scan failed")
	}
}

// Scan claims every due reminder in batches and notifies for each. It
// returns the number of notifications raised. Reminders whose visit is gone
// or already past are claimed and skipped.
func (s *Scheduler) Scan(ctx context.Context) (int, error) {
	sent := 0
	for {
		now := s.now().UTC()
		due, err := s.store.ClaimDue(ctx, now, s.cfg.BatchSize)
		if err != nil {
			return sent, err
		}
		for _, r := range due {
			if s.fire(ctx, r, now) {
				sent++
			}
		}
		if len(due) < s.cfg.BatchSize {
			return sent, nil
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, r *Reminder, now time.Time) bool {
	log := s.logger.With().Str("reminder_id", r.ID.String()).Str("visit_id", r.VisitID.String()).Logger()

	ev, ok, err := s.targets.ReminderTarget(ctx, r.VisitID)
	if err != nil {
		// Already claimed; a lookup failure loses this reminder.
		log.Error().Err(err).Msg("resolve reminder target")
		return false
	}
	if !ok {
		log.Debug().Msg("visit gone, reminder skipped")
		return false
	}
	if !ev.When.After(now) {
		log.Debug().Time("when", ev.When).Msg("visit already started, reminder skipped")
		return false
	}

	ev.Kind = notification.VisitReminder
	ev.ReminderKind = string(r.Kind)
	s.notifier.Notify(ev)
	return true
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

type storePG struct{ pool *pgxpool.Pool }

func NewStorePG(pool *pgxpool.Pool) Store { return &storePG{pool: pool} }

func (s *storePG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

func (s *storePG) Replace(ctx context.Context, visitID uuid.UUID, rs []*Reminder) error {
	q := s.conn(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM visit_reminder WHERE visit_id = $1 AND sent_at IS NULL`, visitID); err != nil {
		return fmt.Errorf("clear reminders: %w", err)
	}
	for _, r := range rs {
		_, err := q.Exec(ctx, `
			INSERT INTO visit_reminder (id, visit_id, kind, fire_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (visit_id, kind) DO UPDATE SET fire_at = EXCLUDED.fire_at, sent_at = NULL`,
			r.ID, r.VisitID, string(r.Kind), r.FireAt)
		if err != nil {
			return fmt.Errorf("insert reminder %s: %w", r.Kind, err)
		}
	}
	return nil
}

func (s *storePG) DeleteForVisit(ctx context.Context, visitID uuid.UUID) error {
	_, err := s.conn(ctx).Exec(ctx, `DELETE FROM visit_reminder WHERE visit_id = $1`, visitID)
	return err
}

// ClaimDue uses SKIP LOCKED so overlapping scans split the due set instead of
// both sending it.
func (s *storePG) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Reminder, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		UPDATE visit_reminder SET sent_at = $1
		WHERE id IN (
			SELECT id FROM visit_reminder
			WHERE sent_at IS NULL AND fire_at <= $1
			ORDER BY fire_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED)
		RETURNING id, visit_id, kind, fire_at, sent_at`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due reminders: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Reminder, error) {
		var r Reminder
		var kind string
		if err := row.Scan(&r.ID, &r.VisitID, &kind, &r.FireAt, &r.SentAt); err != nil {
			return nil, err
		}
		r.Kind = Kind(kind)
		return &r, nil
	})
}

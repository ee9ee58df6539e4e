package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

// -- Actor Repository --

type actorRepoPG struct {
	pool *pgxpool.Pool
}

func NewActorRepo(pool *pgxpool.Pool) ActorRepository {
	return &actorRepoPG{pool: pool}
}

func (r *actorRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const actorCols = `id, role, email, password_hash, phone, first_name, last_name,
	display_name, specialization_id, enrollment_code, created_at, updated_at`

func (r *actorRepoPG) scanActor(row pgx.Row) (*Actor, error) {
	var a Actor
	err := row.Scan(&a.ID, &a.Role, &a.Email, &a.PasswordHash, &a.Phone, &a.FirstName, &a.LastName,
		&a.DisplayName, &a.SpecializationID, &a.EnrollmentCode, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *actorRepoPG) Create(ctx context.Context, a *Actor) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO actor (id, role, email, password_hash, phone, first_name, last_name,
			display_name, specialization_id, enrollment_code, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.Role, a.Email, a.PasswordHash, a.Phone, a.FirstName, a.LastName,
		a.DisplayName, a.SpecializationID, a.EnrollmentCode, a.CreatedAt, a.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err) && db.ConstraintName(err) == "actor_enrollment_code_key":
		return errCodeTaken
	case db.IsUniqueViolation(err):
		return ErrEmailTaken
	case db.IsForeignKeyViolation(err):
		return apperr.NotFound("specialization %s not found", a.SpecializationID)
	default:
		return apperr.Internal(err, "create actor")
	}
}

func (r *actorRepoPG) get(ctx context.Context, what, where string, arg interface{}) (*Actor, error) {
	a, err := r.scanActor(r.conn(ctx).QueryRow(ctx, `SELECT `+actorCols+` FROM actor WHERE `+where, arg))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("%s not found", what)
	}
	if err != nil {
		return nil, apperr.Internal(err, fmt.Sprintf("get %s", what))
	}
	return a, nil
}

func (r *actorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Actor, error) {
	return r.get(ctx, "actor "+id.String(), "id = $1", id)
}

func (r *actorRepoPG) GetByEmail(ctx context.Context, email string) (*Actor, error) {
	return r.get(ctx, "actor", "LOWER(email) = $1", strings.ToLower(email))
}

func (r *actorRepoPG) GetByEnrollmentCode(ctx context.Context, code string) (*Actor, error) {
	return r.get(ctx, "doctor with code "+code, "enrollment_code = $1 AND role = 'doctor'", code)
}

// -- Specialization Repository --

type specRepoPG struct {
	pool *pgxpool.Pool
}

func NewSpecializationRepo(pool *pgxpool.Pool) SpecializationRepository {
	return &specRepoPG{pool: pool}
}

func (r *specRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *specRepoPG) Create(ctx context.Context, s *Specialization) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `INSERT INTO specialization (id, name) VALUES ($1, $2)`, s.ID, s.Name)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("specialization %q already exists", s.Name)
	}
	if err != nil {
		return apperr.Internal(err, "create specialization")
	}
	return nil
}

func (r *specRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Specialization, error) {
	var s Specialization
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, name FROM specialization WHERE id = $1`, id).Scan(&s.ID, &s.Name)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("specialization %s not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err, "get specialization")
	}
	return &s, nil
}

func (r *specRepoPG) List(ctx context.Context) ([]*Specialization, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, name FROM specialization ORDER BY name`)
	if err != nil {
		return nil, apperr.Internal(err, "list specializations")
	}
	specs, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Specialization])
	if err != nil {
		return nil, apperr.Internal(err, "scan specializations")
	}
	return specs, nil
}

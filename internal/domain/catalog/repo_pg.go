package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

type serviceRepoPG struct {
	pool *pgxpool.Pool
}

func NewServiceRepo(pool *pgxpool.Pool) ServiceRepository {
	return &serviceRepoPG{pool: pool}
}

func (r *serviceRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const serviceCols = `id, doctor_id, name, price, created_at, updated_at`

func (r *serviceRepoPG) Create(ctx context.Context, s *Service) error {
	s.ID = uuid.New()
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO service (id, doctor_id, name, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.DoctorID, s.Name, s.Price, s.CreatedAt, s.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return apperr.Conflict("service %q already exists", s.Name)
	case db.IsForeignKeyViolation(err):
		return apperr.NotFound("doctor %s not found", s.DoctorID)
	default:
		return apperr.Internal(err, "create service")
	}
}

func (r *serviceRepoPG) GetByName(ctx context.Context, doctorID uuid.UUID, name string) (*Service, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+serviceCols+` FROM service WHERE doctor_id = $1 AND name = $2`, doctorID, name)
	if err != nil {
		return nil, apperr.Internal(err, "get service")
	}
	s, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Service])
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("service %q not found", name)
	}
	if err != nil {
		return nil, apperr.Internal(err, "scan service")
	}
	return s, nil
}

func (r *serviceRepoPG) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Service, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+serviceCols+` FROM service WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, apperr.Internal(err, "get services")
	}
	out, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Service])
	if err != nil {
		return nil, apperr.Internal(err, "scan services")
	}
	return out, nil
}

func (r *serviceRepoPG) UpdatePrice(ctx context.Context, doctorID uuid.UUID, name string, price decimal.Decimal) (*Service, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		UPDATE service SET price = $3, updated_at = NOW()
		WHERE doctor_id = $1 AND name = $2
		RETURNING `+serviceCols, doctorID, name, price)
	if err != nil {
		return nil, apperr.Internal(err, "update price")
	}
	s, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Service])
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("service %q not found", name)
	}
	if err != nil {
		return nil, apperr.Internal(err, "update price")
	}
	return s, nil
}

func (r *serviceRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Service, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+serviceCols+` FROM service WHERE doctor_id = $1 ORDER BY name`, doctorID)
	if err != nil {
		return nil, apperr.Internal(err, "list services")
	}
	out, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Service])
	if err != nil {
		return nil, apperr.Internal(err, "scan services")
	}
	return out, nil
}

func (r *serviceRepoPG) ServiceExists(ctx context.Context, doctorID uuid.UUID, name string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM service WHERE doctor_id = $1 AND name = $2)`, doctorID, name).Scan(&exists)
	return exists, err
}

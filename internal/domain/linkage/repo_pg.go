package linkage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

type linkRepoPG struct {
	pool *pgxpool.Pool
}

func NewLinkRepo(pool *pgxpool.Pool) LinkRepository {
	return &linkRepoPG{pool: pool}
}

func (r *linkRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *linkRepoPG) Create(ctx context.Context, l *Link) error {
	l.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor_patient_link (doctor_id, patient_id, created_at) VALUES ($1, $2, $3)`,
		l.DoctorID, l.PatientID, l.CreatedAt)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return apperr.Conflict("patient %s is already linked to doctor %s", l.PatientID, l.DoctorID)
	case db.IsForeignKeyViolation(err):
		return apperr.NotFound("doctor or patient not found")
	default:
		return apperr.Internal(err, "create link")
	}
}

func (r *linkRepoPG) LinkExists(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM doctor_patient_link WHERE doctor_id = $1 AND patient_id = $2)`,
		doctorID, patientID).Scan(&exists)
	return exists, err
}

const counterpartCols = `a.id, a.email, a.phone, a.first_name, a.last_name,
	a.display_name, a.specialization_id, l.created_at AS linked_at`

func (r *linkRepoPG) list(ctx context.Context, join, filter string, id uuid.UUID, limit, offset int) ([]*Counterpart, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM doctor_patient_link l WHERE l.`+filter+` = $1`, id).Scan(&total); err != nil {
		return nil, 0, apperr.Internal(err, "count links")
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+counterpartCols+`
		FROM doctor_patient_link l JOIN actor a ON a.id = l.`+join+`
		WHERE l.`+filter+` = $1
		ORDER BY a.last_name, a.first_name
		LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal(err, "list links")
	}
	out, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Counterpart])
	if err != nil {
		return nil, 0, apperr.Internal(err, "scan links")
	}
	return out, total, nil
}

func (r *linkRepoPG) ListPatients(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Counterpart, int, error) {
	return r.list(ctx, "patient_id", "doctor_id", doctorID, limit, offset)
}

func (r *linkRepoPG) ListDoctors(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Counterpart, int, error) {
	return r.list(ctx, "doctor_id", "patient_id", patientID, limit, offset)
}

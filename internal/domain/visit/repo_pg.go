package visit

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

// -- Visit Repository --

type visitRepoPG struct {
	pool *pgxpool.Pool
}

func NewVisitRepo(pool *pgxpool.Pool) VisitRepository {
	return &visitRepoPG{pool: pool}
}

func (r *visitRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const visitCols = `id, doctor_id, patient_id, scheduled_at, notes, finished, total_cost,
	version_id, created_at, updated_at`

func (r *visitRepoPG) Create(ctx context.Context, v *Visit) error {
	v.ID = uuid.New()
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	v.VersionID = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO visit (id, doctor_id, patient_id, scheduled_at, notes, finished, total_cost,
			version_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		v.ID, v.DoctorID, v.PatientID, v.ScheduledAt, v.Notes, v.Finished, v.TotalCost,
		v.VersionID, v.CreatedAt, v.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("doctor or patient not found")
	}
	if err != nil {
		return apperr.Internal(err, "create visit")
	}
	return nil
}

func (r *visitRepoPG) getOne(ctx context.Context, id uuid.UUID, suffix string) (*Visit, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+visitCols+` FROM visit WHERE id = $1`+suffix, id)
	if err != nil {
		return nil, apperr.Internal(err, "get visit")
	}
	v, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Visit])
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("visit %s not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err, "scan visit")
	}
	return v, nil
}

func (r *visitRepoPG) Get(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return r.getOne(ctx, id, "")
}

func (r *visitRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return r.getOne(ctx, id, " FOR UPDATE")
}

func (r *visitRepoPG) VisitDoctor(ctx context.Context, id uuid.UUID) (uuid.UUID, bool, error) {
	var doctorID uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `SELECT doctor_id FROM visit WHERE id = $1`, id).Scan(&doctorID)
	if db.IsNoRows(err) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return doctorID, true, nil
}

// expectOne maps a zero-row write to NotFound.
func expectOne(tag interface{ RowsAffected() int64 }, err error, id uuid.UUID, op string) error {
	if err != nil {
		return apperr.Internal(err, op)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("visit %s not found", id)
	}
	return nil
}

func (r *visitRepoPG) UpdateSchedule(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit SET scheduled_at = $2, version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1`, id, at)
	return expectOne(tag, err, id, "reschedule visit")
}

func (r *visitRepoPG) MarkFinished(ctx context.Context, id uuid.UUID, notes string, total decimal.Decimal) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit SET finished = TRUE, notes = $2, total_cost = $3,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1`, id, notes, total)
	return expectOne(tag, err, id, "finish visit")
}

func (r *visitRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM visit WHERE id = $1`, id)
	return expectOne(tag, err, id, "delete visit")
}

func (r *visitRepoPG) list(ctx context.Context, column string, id uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM visit WHERE `+column+` = $1`, id).Scan(&total); err != nil {
		return nil, 0, apperr.Internal(err, "count visits")
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+visitCols+` FROM visit WHERE `+column+` = $1
		ORDER BY scheduled_at DESC LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal(err, "list visits")
	}
	out, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Visit])
	if err != nil {
		return nil, 0, apperr.Internal(err, "scan visits")
	}
	return out, total, nil
}

func (r *visitRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	return r.list(ctx, "doctor_id", doctorID, limit, offset)
}

func (r *visitRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	return r.list(ctx, "patient_id", patientID, limit, offset)
}

// -- Line Repository --

type lineRepoPG struct {
	pool *pgxpool.Pool
}

func NewLineRepo(pool *pgxpool.Pool) LineRepository {
	return &lineRepoPG{pool: pool}
}

func (r *lineRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *lineRepoPG) ListLines(ctx context.Context, visitID uuid.UUID) ([]*Line, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT visit_id, service_id, quantity FROM visit_service_line WHERE visit_id = $1`, visitID)
	if err != nil {
		return nil, apperr.Internal(err, "list lines")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Line, error) {
		var l Line
		err := row.Scan(&l.VisitID, &l.ServiceID, &l.Quantity)
		return &l, err
	})
	if err != nil {
		return nil, apperr.Internal(err, "scan lines")
	}
	return out, nil
}

func (r *lineRepoPG) UpsertLine(ctx context.Context, visitID, serviceID uuid.UUID, quantity int) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO visit_service_line (visit_id, service_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (visit_id, service_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		visitID, serviceID, quantity)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("visit or service not found")
	}
	if err != nil {
		return apperr.Internal(err, "upsert line")
	}
	return nil
}

func (r *lineRepoPG) DeleteLine(ctx context.Context, visitID, serviceID uuid.UUID) error {
	if _, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM visit_service_line WHERE visit_id = $1 AND service_id = $2`, visitID, serviceID); err != nil {
		return apperr.Internal(err, "delete line")
	}
	return nil
}

func (r *lineRepoPG) DeleteLines(ctx context.Context, visitID uuid.UUID) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM visit_service_line WHERE visit_id = $1`, visitID); err != nil {
		return apperr.Internal(err, "delete lines")
	}
	return nil
}

// -- Attachment Repository --

type attachmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAttachmentRepo(pool *pgxpool.Pool) AttachmentRepository {
	return &attachmentRepoPG{pool: pool}
}

func (r *attachmentRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const attachmentCols = `id, visit_id, blob_id, file_name, content_type, size, created_by, created_at`

func (r *attachmentRepoPG) CreateAttachment(ctx context.Context, a *Attachment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO visit_attachment (`+attachmentCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.VisitID, a.BlobID, a.FileName, a.ContentType, a.Size, a.CreatedBy, a.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("visit %s not found", a.VisitID)
	}
	if err != nil {
		return apperr.Internal(err, "create attachment")
	}
	return nil
}

func (r *attachmentRepoPG) GetAttachment(ctx context.Context, visitID, id uuid.UUID) (*Attachment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+attachmentCols+` FROM visit_attachment WHERE visit_id = $1 AND id = $2`, visitID, id)
	if err != nil {
		return nil, apperr.Internal(err, "get attachment")
	}
	a, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Attachment])
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("attachment %s not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err, "scan attachment")
	}
	return a, nil
}

func (r *attachmentRepoPG) ListAttachments(ctx context.Context, visitID uuid.UUID) ([]*Attachment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+attachmentCols+` FROM visit_attachment WHERE visit_id = $1 ORDER BY created_at`, visitID)
	if err != nil {
		return nil, apperr.Internal(err, "list attachments")
	}
	out, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Attachment])
	if err != nil {
		return nil, apperr.Internal(err, "scan attachments")
	}
	return out, nil
}

func (r *attachmentRepoPG) DeleteAttachments(ctx context.Context, visitID uuid.UUID) ([]*Attachment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`DELETE FROM visit_attachment WHERE visit_id = $1 RETURNING `+attachmentCols, visitID)
	if err != nil {
		return nil, apperr.Internal(err, "delete attachments")
	}
	out, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Attachment])
	if err != nil {
		return nil, apperr.Internal(err, "delete attachments")
	}
	return out, nil
}

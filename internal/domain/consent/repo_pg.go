package consent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthvault/healthvault/internal/apperr"
	"github.com/healthvault/healthvault/internal/platform/access"
	"github.com/healthvault/healthvault/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const consentCols = `id, patient_id, doctor_id, scope, expires_at, is_active, created_at, updated_at`

// Create inserts a consent row. The uniq_active_consent partial unique index
// rejects a second active consent for the same (patient, doctor, scope)
// triple; racing grants cannot both succeed.
func (r *repoPG) Create(ctx context.Context, c *Consent) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_doctor_consent (id, patient_id, doctor_id, scope, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.PatientID, c.DoctorID, c.Scope, c.ExpiresAt, c.IsActive,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.New(apperr.DuplicateKey, "an active consent for this doctor and scope already exists")
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Consent, error) {
	return scanConsent(r.conn(ctx).QueryRow(ctx,
		`SELECT `+consentCols+` FROM patient_doctor_consent WHERE id = $1`, id))
}

func (r *repoPG) Revoke(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patient_doctor_consent SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "consent not found")
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consent, int, error) {
	return r.list(ctx, `patient_id`, patientID, limit, offset)
}

func (r *repoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Consent, int, error) {
	return r.list(ctx, `doctor_id`, doctorID, limit, offset)
}

func (r *repoPG) list(ctx context.Context, col string, id uuid.UUID, limit, offset int) ([]*Consent, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patient_doctor_consent WHERE `+col+` = $1`, id).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+consentCols+` FROM patient_doctor_consent WHERE `+col+` = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var consents []*Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, 0, err
		}
		consents = append(consents, c)
	}
	return consents, total, rows.Err()
}

func (r *repoPG) HasActiveConsent(ctx context.Context, patientID, doctorID uuid.UUID, category access.Category, at time.Time) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM patient_doctor_consent
			WHERE patient_id = $1
			  AND doctor_id = $2
			  AND is_active
			  AND scope IN ($3, 'ALL')
			  AND (expires_at IS NULL OR expires_at > $4)
		)`,
		patientID, doctorID, category, at,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func scanConsent(row pgx.Row) (*Consent, error) {
	c := &Consent{}
	err := row.Scan(&c.ID, &c.PatientID, &c.DoctorID, &c.Scope, &c.ExpiresAt, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "consent not found")
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

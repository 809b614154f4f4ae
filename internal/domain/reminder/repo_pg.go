package reminder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthvault/healthvault/internal/apperr"
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

const cols = `id, patient_id, created_by, title, description, due_at, rrule, preferred_channel, last_sent_at, active, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, rem *Reminder) error {
	if rem.ID == uuid.Nil {
		rem.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO reminder (id, patient_id, created_by, title, description, due_at, rrule, preferred_channel, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rem.ID, rem.PatientID, rem.CreatedBy, rem.Title, rem.Description, rem.DueAt, rem.RRule, rem.Channel, rem.Active,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	return scanReminder(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cols+` FROM reminder WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, rem *Reminder) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE reminder SET
			title = $2, description = $3, due_at = $4, rrule = $5,
			preferred_channel = $6, active = $7, updated_at = NOW()
		WHERE id = $1`,
		rem.ID, rem.Title, rem.Description, rem.DueAt, rem.RRule, rem.Channel, rem.Active,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "reminder not found")
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM reminder WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "reminder not found")
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Reminder, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM reminder WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+cols+` FROM reminder
		WHERE patient_id = $1
		ORDER BY due_at LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var reminders []*Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, 0, err
		}
		reminders = append(reminders, rem)
	}
	return reminders, total, rows.Err()
}

func (r *repoPG) ListDue(ctx context.Context, before time.Time) ([]*Reminder, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+cols+` FROM reminder
		WHERE active AND due_at <= $1 AND (last_sent_at IS NULL OR last_sent_at < due_at)
		ORDER BY due_at`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, rem)
	}
	return due, rows.Err()
}

func (r *repoPG) MarkSent(ctx context.Context, id uuid.UUID, at time.Time, stillActive bool) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE reminder SET last_sent_at = $2, active = $3, updated_at = NOW() WHERE id = $1`,
		id, at, stillActive)
	return err
}

func scanReminder(row pgx.Row) (*Reminder, error) {
	rem := &Reminder{}
	err := row.Scan(&rem.ID, &rem.PatientID, &rem.CreatedBy, &rem.Title, &rem.Description,
		&rem.DueAt, &rem.RRule, &rem.Channel, &rem.LastSentAt, &rem.Active, &rem.CreatedAt, &rem.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "reminder not found")
	}
	if err != nil {
		return nil, err
	}
	return rem, nil
}

package note

import (
	"context"
	"errors"

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

const noteCols = `id, patient_id, doctor_id, title, body, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, n *ClinicalNote) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO clinical_note (id, patient_id, doctor_id, title, body)
		VALUES ($1, $2, $3, $4, $5)`,
		n.ID, n.PatientID, n.DoctorID, n.Title, n.Body,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ClinicalNote, error) {
	n, err := scanNote(r.conn(ctx).QueryRow(ctx,
		`SELECT `+noteCols+` FROM clinical_note WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if n.Attachments, err = r.ListAttachments(ctx, n.ID); err != nil {
		return nil, err
	}
	return n, nil
}

func (r *repoPG) Update(ctx context.Context, n *ClinicalNote) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE clinical_note SET title = $2, body = $3, updated_at = NOW()
		WHERE id = $1`,
		n.ID, n.Title, n.Body,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "note not found")
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	// attachment rows cascade with the note
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM clinical_note WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "note not found")
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ClinicalNote, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM clinical_note WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+noteCols+` FROM clinical_note
		WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var notes []*ClinicalNote
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, 0, err
		}
		notes = append(notes, n)
	}
	return notes, total, rows.Err()
}

const attachmentCols = `id, note_id, file_id, file_name, content_type, size, created_at`

func (r *repoPG) CreateAttachment(ctx context.Context, a *Attachment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO clinical_note_attachment (id, note_id, file_id, file_name, content_type, size)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.NoteID, a.FileID, a.FileName, a.ContentType, a.Size,
	)
	return err
}

func (r *repoPG) GetAttachment(ctx context.Context, id uuid.UUID) (*Attachment, error) {
	return scanAttachment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+attachmentCols+` FROM clinical_note_attachment WHERE id = $1`, id))
}

func (r *repoPG) DeleteAttachment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM clinical_note_attachment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "attachment not found")
	}
	return nil
}

func (r *repoPG) ListAttachments(ctx context.Context, noteID uuid.UUID) ([]*Attachment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+attachmentCols+` FROM clinical_note_attachment WHERE note_id = $1 ORDER BY created_at`, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attachments []*Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

func scanNote(row pgx.Row) (*ClinicalNote, error) {
	n := &ClinicalNote{}
	err := row.Scan(&n.ID, &n.PatientID, &n.DoctorID, &n.Title, &n.Body, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "note not found")
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

func scanAttachment(row pgx.Row) (*Attachment, error) {
	a := &Attachment{}
	err := row.Scan(&a.ID, &a.NoteID, &a.FileID, &a.FileName, &a.ContentType, &a.Size, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "attachment not found")
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

package analysis

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

const analysisCols = `id, patient_id, uploaded_by, source, title, file_id, file_name, content_type,
	ocr_text, ocr_language, report_date, order_id, status, created_at, updated_at`

// Create inserts the upload record. The unique index on order_id rejects a
// duplicate external order identifier atomically; concurrent uploads cannot
// both pass an application-level pre-check.
func (r *repoPG) Create(ctx context.Context, a *Analysis) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO analysis (
			id, patient_id, uploaded_by, source, title, file_id, file_name, content_type,
			ocr_language, order_id, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.PatientID, a.UploadedBy, a.Source, a.Title, a.FileID, a.FileName, a.ContentType,
		a.OCRLanguage, a.OrderID, a.Status,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.New(apperr.DuplicateKey, "an analysis with this order id already exists")
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Analysis, error) {
	a, err := scanAnalysis(r.conn(ctx).QueryRow(ctx,
		`SELECT `+analysisCols+` FROM analysis WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	results, err := r.ListResults(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	a.Results = results
	return a, nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	// analysis_result rows go with the parent via ON DELETE CASCADE.
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM analysis WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "analysis not found")
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Analysis, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM analysis WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+analysisCols+` FROM analysis WHERE patient_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var analyses []*Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, 0, err
		}
		analyses = append(analyses, a)
	}
	return analyses, total, rows.Err()
}

func (r *repoPG) SetExtraction(ctx context.Context, id uuid.UUID, text *string, reportDate *time.Time, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE analysis SET ocr_text = $2, report_date = $3, status = $4, updated_at = NOW()
		WHERE id = $1`,
		id, text, reportDate, status,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "analysis not found")
	}
	return nil
}

func (r *repoPG) InsertResults(ctx context.Context, results []*AnalysisResult) error {
	if len(results) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, res := range results {
		if res.ID == uuid.Nil {
			res.ID = uuid.New()
		}
		batch.Queue(`
			INSERT INTO analysis_result (id, analysis_id, test_name, value, unit, reference_range, measured_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			res.ID, res.AnalysisID, res.TestName, res.Value, res.Unit, res.ReferenceRange, res.MeasuredAt,
		)
	}

	if s, ok := r.conn(ctx).(batchSender); ok {
		return sendBatch(ctx, s, batch)
	}
	return sendBatch(ctx, r.pool, batch)
}

type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func sendBatch(ctx context.Context, s batchSender, batch *pgx.Batch) error {
	br := s.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return br.Close()
}

func (r *repoPG) ListResults(ctx context.Context, analysisID uuid.UUID) ([]*AnalysisResult, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, analysis_id, test_name, value, unit, reference_range, measured_at, created_at
		FROM analysis_result WHERE analysis_id = $1 ORDER BY created_at, id`, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*AnalysisResult
	for rows.Next() {
		res := &AnalysisResult{}
		if err := rows.Scan(&res.ID, &res.AnalysisID, &res.TestName, &res.Value, &res.Unit,
			&res.ReferenceRange, &res.MeasuredAt, &res.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func scanAnalysis(row pgx.Row) (*Analysis, error) {
	a := &Analysis{}
	err := row.Scan(
		&a.ID, &a.PatientID, &a.UploadedBy, &a.Source, &a.Title, &a.FileID, &a.FileName, &a.ContentType,
		&a.OCRText, &a.OCRLanguage, &a.ReportDate, &a.OrderID, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "analysis not found")
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

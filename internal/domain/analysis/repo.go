package analysis

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Analysis) error
	GetByID(ctx context.Context, id uuid.UUID) (*Analysis, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Analysis, int, error)

	// SetExtraction records the one-time mutation the extraction step makes
	// to the parent record.
	SetExtraction(ctx context.Context, id uuid.UUID, text *string, reportDate *time.Time, status Status) error

	// InsertResults appends structured rows in one batch.
	InsertResults(ctx context.Context, results []*AnalysisResult) error
	ListResults(ctx context.Context, analysisID uuid.UUID) ([]*AnalysisResult, error)
}

package analysis

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthvault/healthvault/internal/platform/access"
)

// Source tags who submitted the report.
type Source string

const (
	SourcePatient Source = "PATIENT"
	SourceDoctor  Source = "DOCTOR"
)

// Status reflects how far the extraction pipeline got for an upload.
type Status string

const (
	StatusPersisted       Status = "PERSISTED"
	StatusPersistedNoText Status = "PERSISTED_NO_TEXT"
)

// Analysis maps to the analysis table: one uploaded lab report. The record
// is created on upload and mutated exactly once by the extraction step;
// results are appended by the parser and never edited.
type Analysis struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	UploadedBy  *uuid.UUID `db:"uploaded_by" json:"uploaded_by,omitempty"`
	Source      Source     `db:"source" json:"source"`
	Title       *string    `db:"title" json:"title,omitempty"`
	FileID      string     `db:"file_id" json:"file_id"`
	FileName    string     `db:"file_name" json:"file_name"`
	ContentType string     `db:"content_type" json:"content_type"`
	OCRText     *string    `db:"ocr_text" json:"ocr_text,omitempty"`
	OCRLanguage string     `db:"ocr_language" json:"ocr_language"`
	ReportDate  *time.Time `db:"report_date" json:"report_date,omitempty"`
	OrderID     *string    `db:"order_id" json:"order_id,omitempty"`
	Status      Status     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`

	// Results are loaded alongside the parent on reads.
	Results []*AnalysisResult `db:"-" json:"results"`
}

// OwnerPatientID identifies the patient whose record this is.
func (a *Analysis) OwnerPatientID() uuid.UUID { return a.PatientID }

// Category places analyses under the ANALYSES consent scope.
func (a *Analysis) Category() access.Category { return access.CategoryAnalyses }

// AnalysisResult maps to the analysis_result table: one structured lab-test
// reading. Values and reference ranges stay raw strings so comparison
// prefixes ("<5"), embedded units and locale decimal separators survive.
type AnalysisResult struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	AnalysisID     uuid.UUID  `db:"analysis_id" json:"analysis_id"`
	TestName       string     `db:"test_name" json:"test_name"`
	Value          *string    `db:"value" json:"value,omitempty"`
	Unit           *string    `db:"unit" json:"unit,omitempty"`
	ReferenceRange *string    `db:"reference_range" json:"reference_range,omitempty"`
	MeasuredAt     *time.Time `db:"measured_at" json:"measured_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

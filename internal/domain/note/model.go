package note

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthvault/healthvault/internal/platform/access"
)

// ClinicalNote is a free-text note about a patient, usually authored by a
// doctor. The author is kept nullable so notes survive account deletion.
type ClinicalNote struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	PatientID uuid.UUID  `json:"patient_id" db:"patient_id"`
	DoctorID  *uuid.UUID `json:"doctor_id,omitempty" db:"doctor_id"`
	Title     string     `json:"title" db:"title"`
	Body      string     `json:"body" db:"body"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`

	Attachments []*Attachment `json:"attachments,omitempty" db:"-"`
}

func (n *ClinicalNote) OwnerPatientID() uuid.UUID { return n.PatientID }

func (n *ClinicalNote) Category() access.Category { return access.CategoryNotes }

// Attachment references a stored file belonging to a note. Rows cascade
// with the parent note; the file itself is removed by the service.
type Attachment struct {
	ID          uuid.UUID `json:"id" db:"id"`
	NoteID      uuid.UUID `json:"note_id" db:"note_id"`
	FileID      string    `json:"file_id" db:"file_id"`
	FileName    string    `json:"file_name" db:"file_name"`
	ContentType string    `json:"content_type" db:"content_type"`
	Size        int64     `json:"size" db:"size"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

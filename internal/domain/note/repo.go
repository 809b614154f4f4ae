package note

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists clinical notes and their attachment rows.
type Repository interface {
	Create(ctx context.Context, n *ClinicalNote) error
	GetByID(ctx context.Context, id uuid.UUID) (*ClinicalNote, error)
	Update(ctx context.Context, n *ClinicalNote) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ClinicalNote, int, error)

	CreateAttachment(ctx context.Context, a *Attachment) error
	GetAttachment(ctx context.Context, id uuid.UUID) (*Attachment, error)
	DeleteAttachment(ctx context.Context, id uuid.UUID) error
	ListAttachments(ctx context.Context, noteID uuid.UUID) ([]*Attachment, error)
}

package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists reminders.
type Repository interface {
	Create(ctx context.Context, r *Reminder) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error)
	Update(ctx context.Context, r *Reminder) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Reminder, int, error)

	// ListDue returns active reminders due at or before the given instant
	// that have not been sent for their current due time.
	ListDue(ctx context.Context, before time.Time) ([]*Reminder, error)
	// MarkSent records a dispatch: last_sent_at is set and one-shot
	// reminders are deactivated.
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time, stillActive bool) error
}

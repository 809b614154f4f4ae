package consent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/healthvault/healthvault/internal/platform/access"
)

type Repository interface {
	Create(ctx context.Context, c *Consent) error
	GetByID(ctx context.Context, id uuid.UUID) (*Consent, error)
	Revoke(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consent, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Consent, int, error)

	// HasActiveConsent reports whether an unrevoked, unexpired consent exists
	// for the pair whose scope covers the category. Expiry is evaluated
	// against the supplied instant.
	HasActiveConsent(ctx context.Context, patientID, doctorID uuid.UUID, category access.Category, at time.Time) (bool, error)
}

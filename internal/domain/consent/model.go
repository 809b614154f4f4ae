package consent

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthvault/healthvault/internal/platform/access"
)

// Consent maps to the patient_doctor_consent table. A consent is a grant
// from a patient to a doctor for one data category. Revocation flips
// IsActive and is never undone; re-granting creates a new row.
type Consent struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	PatientID uuid.UUID       `db:"patient_id" json:"patient_id"`
	DoctorID  uuid.UUID       `db:"doctor_id" json:"doctor_id"`
	Scope     access.Category `db:"scope" json:"scope"`
	ExpiresAt *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
	IsActive  bool            `db:"is_active" json:"is_active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Effective reports whether the consent grants access at the given instant.
// An expired consent is ineffective even while still flagged active; expiry
// is evaluated lazily at check time, not by a background sweep.
func (c *Consent) Effective(at time.Time) bool {
	if !c.IsActive {
		return false
	}
	return c.ExpiresAt == nil || c.ExpiresAt.After(at)
}

// Covers reports whether the consent's scope includes the category.
func (c *Consent) Covers(category access.Category) bool {
	return c.Scope == category || c.Scope == access.CategoryAll
}

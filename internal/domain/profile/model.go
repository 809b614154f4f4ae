package profile

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthvault/healthvault/internal/platform/access"
)

// PatientProfile maps to the profile_patient table. One per patient user.
type PatientProfile struct {
	ID                uuid.UUID `db:"id" json:"id"`
	UserID            uuid.UUID `db:"user_id" json:"user_id"`
	FamilyHistory     *string   `db:"family_history" json:"family_history,omitempty"`
	RiskFactors       *string   `db:"risk_factors" json:"risk_factors,omitempty"`
	InsuranceProvider *string   `db:"insurance_provider" json:"insurance_provider,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// OwnerPatientID identifies the patient whose record this is.
func (p *PatientProfile) OwnerPatientID() uuid.UUID { return p.UserID }

// Category places patient profiles under the all-data consent scope; no
// narrower scope covers demographic and history data.
func (p *PatientProfile) Category() access.Category { return access.CategoryAll }

// DoctorProfile maps to the profile_doctor table. One per doctor user.
// License numbers are unique across the tenant.
type DoctorProfile struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	UserID              uuid.UUID `db:"user_id" json:"user_id"`
	Specialization      *string   `db:"specialization" json:"specialization,omitempty"`
	LicenseNumber       *string   `db:"license_number" json:"license_number,omitempty"`
	HospitalAffiliation *string   `db:"hospital_affiliation" json:"hospital_affiliation,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

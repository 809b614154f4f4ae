package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/healthvault/healthvault/internal/platform/auth"
)

type consentRow struct {
	patient   uuid.UUID
	doctor    uuid.UUID
	category  Category
	active    bool
	expiresAt *time.Time
}

type mockConsents struct {
	rows []consentRow
	err  error
}

func (m *mockConsents) HasActiveConsent(_ context.Context, patientID, doctorID uuid.UUID, category Category, at time.Time) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	for _, r := range m.rows {
		if r.patient != patientID || r.doctor != doctorID || !r.active {
			continue
		}
		if r.category != category && r.category != CategoryAll {
			continue
		}
		if r.expiresAt != nil && !r.expiresAt.After(at) {
			continue
		}
		return true, nil
	}
	return false, nil
}

type labReport struct {
	owner uuid.UUID
}

func (r labReport) OwnerPatientID() uuid.UUID { return r.owner }
func (r labReport) Category() Category        { return CategoryAnalyses }

func TestAllowed_AdminBypass(t *testing.T) {
	e := NewEvaluator(&mockConsents{})
	admin := Actor{ID: uuid.New(), Role: auth.RoleAdmin}
	if !e.Allowed(context.Background(), admin, ActionWrite, labReport{owner: uuid.New()}) {
		t.Error("admin must be allowed unconditionally")
	}
}

func TestAllowed_PatientOwnsResource(t *testing.T) {
	e := NewEvaluator(&mockConsents{})
	patient := Actor{ID: uuid.New(), Role: auth.RolePatient}

	if !e.Allowed(context.Background(), patient, ActionRead, labReport{owner: patient.ID}) {
		t.Error("patient must access their own data without consent rows")
	}
	if e.Allowed(context.Background(), patient, ActionRead, labReport{owner: uuid.New()}) {
		t.Error("patient must not access another patient's data")
	}
}

func TestAllowed_DoctorConsent(t *testing.T) {
	patientID := uuid.New()
	doctor := Actor{ID: uuid.New(), Role: auth.RoleDoctor}
	future := time.Now().Add(24 * time.Hour)
	past := time.Now().Add(-time.Minute)

	cases := []struct {
		name string
		row  consentRow
		want bool
	}{
		{"matching scope", consentRow{patientID, doctor.ID, CategoryAnalyses, true, nil}, true},
		{"ALL scope", consentRow{patientID, doctor.ID, CategoryAll, true, nil}, true},
		{"wrong scope", consentRow{patientID, doctor.ID, CategoryNotes, true, nil}, false},
		{"revoked", consentRow{patientID, doctor.ID, CategoryAnalyses, false, nil}, false},
		{"unexpired", consentRow{patientID, doctor.ID, CategoryAnalyses, true, &future}, true},
		{"expired but still flagged active", consentRow{patientID, doctor.ID, CategoryAnalyses, true, &past}, false},
		{"other doctor", consentRow{patientID, uuid.New(), CategoryAnalyses, true, nil}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEvaluator(&mockConsents{rows: []consentRow{tc.row}})
			got := e.Allowed(context.Background(), doctor, ActionRead, labReport{owner: patientID})
			if got != tc.want {
				t.Errorf("Allowed = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAllowed_RevocationImmediate(t *testing.T) {
	patientID := uuid.New()
	doctor := Actor{ID: uuid.New(), Role: auth.RoleDoctor}
	consents := &mockConsents{rows: []consentRow{{patientID, doctor.ID, CategoryAll, true, nil}}}
	e := NewEvaluator(consents)

	if !e.Allowed(context.Background(), doctor, ActionRead, labReport{owner: patientID}) {
		t.Fatal("expected access before revocation")
	}
	consents.rows[0].active = false
	if e.Allowed(context.Background(), doctor, ActionRead, labReport{owner: patientID}) {
		t.Error("revocation must take effect on the next evaluation")
	}
}

func TestAllowed_FailsClosed(t *testing.T) {
	doctor := Actor{ID: uuid.New(), Role: auth.RoleDoctor}

	t.Run("lookup error denies", func(t *testing.T) {
		e := NewEvaluator(&mockConsents{err: errors.New("connection reset")})
		if e.Allowed(context.Background(), doctor, ActionRead, labReport{owner: uuid.New()}) {
			t.Error("lookup errors must deny, not propagate")
		}
	})

	t.Run("unresolvable owner denies", func(t *testing.T) {
		e := NewEvaluator(&mockConsents{rows: []consentRow{{uuid.Nil, doctor.ID, CategoryAll, true, nil}}})
		if e.Allowed(context.Background(), doctor, ActionRead, labReport{}) {
			t.Error("resource without a resolvable owner must be denied")
		}
	})

	t.Run("nil resource denies", func(t *testing.T) {
		e := NewEvaluator(&mockConsents{})
		if e.Allowed(context.Background(), doctor, ActionRead, nil) {
			t.Error("nil resource must be denied")
		}
	})
}

func TestAllowedCreate(t *testing.T) {
	patientID := uuid.New()
	doctor := Actor{ID: uuid.New(), Role: auth.RoleDoctor}
	stranger := Actor{ID: uuid.New(), Role: auth.RolePatient}

	e := NewEvaluator(&mockConsents{rows: []consentRow{{patientID, doctor.ID, CategoryAnalyses, true, nil}}})

	if !e.AllowedCreate(context.Background(), doctor, patientID, CategoryAnalyses) {
		t.Error("doctor with consent must be allowed to create for the patient")
	}
	if e.AllowedCreate(context.Background(), stranger, patientID, CategoryAnalyses) {
		t.Error("unrelated patient must not create for another patient")
	}
	if !e.AllowedCreate(context.Background(), stranger, uuid.Nil, CategoryAnalyses) {
		t.Error("absent owner field is provisionally allowed pending the service check")
	}
}

func TestExpiryUsesInjectedClock(t *testing.T) {
	patientID := uuid.New()
	doctor := Actor{ID: uuid.New(), Role: auth.RoleDoctor}
	expiry := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	consents := &mockConsents{rows: []consentRow{{patientID, doctor.ID, CategoryAll, true, &expiry}}}

	before := NewEvaluatorAt(consents, func() time.Time { return expiry.Add(-time.Hour) })
	after := NewEvaluatorAt(consents, func() time.Time { return expiry.Add(time.Hour) })

	if !before.Allowed(context.Background(), doctor, ActionRead, labReport{owner: patientID}) {
		t.Error("expected access before expiry instant")
	}
	if after.Allowed(context.Background(), doctor, ActionRead, labReport{owner: patientID}) {
		t.Error("expected denial after expiry instant")
	}
}

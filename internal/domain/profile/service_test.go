package profile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthvault/healthvault/internal/apperr"
	"github.com/healthvault/healthvault/internal/platform/access"
	"github.com/healthvault/healthvault/internal/platform/audit"
	"github.com/healthvault/healthvault/internal/platform/auth"
)

// -- Mock Repository --

type mockRepo struct {
	patients map[uuid.UUID]*PatientProfile
	doctors  map[uuid.UUID]*DoctorProfile
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		patients: make(map[uuid.UUID]*PatientProfile),
		doctors:  make(map[uuid.UUID]*DoctorProfile),
	}
}

func (m *mockRepo) CreatePatient(_ context.Context, p *PatientProfile) error {
	for _, existing := range m.patients {
		if existing.UserID == p.UserID {
			return apperr.New(apperr.DuplicateKey, "patient profile already exists")
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*PatientProfile, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "patient profile not found")
	}
	return p, nil
}

func (m *mockRepo) GetPatientByUser(_ context.Context, userID uuid.UUID) (*PatientProfile, error) {
	for _, p := range m.patients {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "patient profile not found")
}

func (m *mockRepo) UpdatePatient(_ context.Context, p *PatientProfile) error {
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) DeletePatient(_ context.Context, id uuid.UUID) error {
	delete(m.patients, id)
	return nil
}

func (m *mockRepo) CreateDoctor(_ context.Context, d *DoctorProfile) error {
	for _, existing := range m.doctors {
		if d.LicenseNumber != nil && existing.LicenseNumber != nil && *existing.LicenseNumber == *d.LicenseNumber {
			return apperr.New(apperr.DuplicateKey, "doctor profile or license number already exists")
		}
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	m.doctors[d.ID] = d
	return nil
}

func (m *mockRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*DoctorProfile, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "doctor profile not found")
	}
	return d, nil
}

func (m *mockRepo) GetDoctorByUser(_ context.Context, userID uuid.UUID) (*DoctorProfile, error) {
	for _, d := range m.doctors {
		if d.UserID == userID {
			return d, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "doctor profile not found")
}

func (m *mockRepo) UpdateDoctor(_ context.Context, d *DoctorProfile) error {
	m.doctors[d.ID] = d
	return nil
}

func (m *mockRepo) DeleteDoctor(_ context.Context, id uuid.UUID) error {
	delete(m.doctors, id)
	return nil
}

func (m *mockRepo) ListDoctors(_ context.Context, limit, offset int) ([]*DoctorProfile, int, error) {
	var result []*DoctorProfile
	for _, d := range m.doctors {
		result = append(result, d)
	}
	return result, len(result), nil
}

// noConsents denies every consent lookup; these tests exercise owner and
// admin rules only.
type noConsents struct{}

func (noConsents) HasActiveConsent(context.Context, uuid.UUID, uuid.UUID, access.Category, time.Time) (bool, error) {
	return false, nil
}

func newTestService(repo *mockRepo) *Service {
	eval := access.NewEvaluator(noConsents{})
	return NewService(repo, eval, audit.NewRecorder(nil, zerolog.Nop()))
}

func ctxAs(id uuid.UUID, role auth.Role) context.Context {
	return auth.WithActor(context.Background(), id, role)
}

// -- Tests --

func TestPatientProfileOwnership(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	patientID := uuid.New()

	p, err := svc.CreatePatientProfile(ctxAs(patientID, auth.RolePatient), &PatientProfile{})
	if err != nil {
		t.Fatalf("create own profile: %v", err)
	}
	if p.UserID != patientID {
		t.Errorf("UserID = %v, want caller id", p.UserID)
	}

	// Owner reads their own profile.
	if _, err := svc.GetPatientProfile(ctxAs(patientID, auth.RolePatient), p.ID); err != nil {
		t.Errorf("owner read: %v", err)
	}

	// A stranger patient is denied.
	if _, err := svc.GetPatientProfile(ctxAs(uuid.New(), auth.RolePatient), p.ID); !apperr.Is(err, apperr.AccessDenied) {
		t.Errorf("stranger read: err = %v, want AccessDenied", err)
	}

	// A doctor without consent is denied.
	if _, err := svc.GetPatientProfile(ctxAs(uuid.New(), auth.RoleDoctor), p.ID); !apperr.Is(err, apperr.AccessDenied) {
		t.Errorf("doctor read: err = %v, want AccessDenied", err)
	}

	// Admin reads anything.
	if _, err := svc.GetPatientProfile(ctxAs(uuid.New(), auth.RoleAdmin), p.ID); err != nil {
		t.Errorf("admin read: %v", err)
	}
}

func TestCreatePatientProfileForOtherUser(t *testing.T) {
	svc := newTestService(newMockRepo())
	other := uuid.New()

	_, err := svc.CreatePatientProfile(ctxAs(uuid.New(), auth.RolePatient), &PatientProfile{UserID: other})
	if !apperr.Is(err, apperr.AccessDenied) {
		t.Errorf("patient for other user: err = %v, want AccessDenied", err)
	}

	if _, err := svc.CreatePatientProfile(ctxAs(uuid.New(), auth.RoleAdmin), &PatientProfile{UserID: other}); err != nil {
		t.Errorf("admin for other user: %v", err)
	}
}

func TestUpdatePatientProfile(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	patientID := uuid.New()

	p, err := svc.CreatePatientProfile(ctxAs(patientID, auth.RolePatient), &PatientProfile{})
	if err != nil {
		t.Fatal(err)
	}

	hist := "diabetes (paternal)"
	updated, err := svc.UpdatePatientProfile(ctxAs(patientID, auth.RolePatient), &PatientProfile{ID: p.ID, FamilyHistory: &hist})
	if err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if updated.FamilyHistory == nil || *updated.FamilyHistory != hist {
		t.Error("family history not updated")
	}

	_, err = svc.UpdatePatientProfile(ctxAs(uuid.New(), auth.RolePatient), &PatientProfile{ID: p.ID})
	if !apperr.Is(err, apperr.AccessDenied) {
		t.Errorf("stranger update: err = %v, want AccessDenied", err)
	}
}

func TestDoctorProfileRules(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	doctorID := uuid.New()

	lic := "MD-12345"
	d, err := svc.CreateDoctorProfile(ctxAs(doctorID, auth.RoleDoctor), &DoctorProfile{LicenseNumber: &lic})
	if err != nil {
		t.Fatalf("doctor creates own profile: %v", err)
	}

	// Patients cannot create doctor profiles.
	if _, err := svc.CreateDoctorProfile(ctxAs(uuid.New(), auth.RolePatient), &DoctorProfile{}); !apperr.Is(err, apperr.AccessDenied) {
		t.Errorf("patient create: err = %v, want AccessDenied", err)
	}

	// Duplicate license number.
	if _, err := svc.CreateDoctorProfile(ctxAs(uuid.New(), auth.RoleDoctor), &DoctorProfile{LicenseNumber: &lic}); !apperr.Is(err, apperr.DuplicateKey) {
		t.Errorf("duplicate license: err = %v, want DuplicateKey", err)
	}

	// The directory is readable by anyone authenticated.
	if _, err := svc.GetDoctorProfile(ctxAs(uuid.New(), auth.RolePatient), d.ID); err != nil {
		t.Errorf("patient reads directory entry: %v", err)
	}

	// Only the owner or an admin may update.
	if _, err := svc.UpdateDoctorProfile(ctxAs(uuid.New(), auth.RoleDoctor), &DoctorProfile{ID: d.ID}); !apperr.Is(err, apperr.AccessDenied) {
		t.Errorf("other doctor update: err = %v, want AccessDenied", err)
	}
	if _, err := svc.UpdateDoctorProfile(ctxAs(doctorID, auth.RoleDoctor), &DoctorProfile{ID: d.ID, LicenseNumber: &lic}); err != nil {
		t.Errorf("owner update: %v", err)
	}
}

package consent

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
	"github.com/healthvault/healthvault/internal/platform/notify"
)

// -- Mock Repository --

type mockRepo struct {
	consents map[uuid.UUID]*Consent
}

func newMockRepo() *mockRepo {
	return &mockRepo{consents: make(map[uuid.UUID]*Consent)}
}

func (m *mockRepo) Create(_ context.Context, c *Consent) error {
	// Mirror the uniq_active_consent partial unique index.
	for _, existing := range m.consents {
		if existing.IsActive && c.IsActive &&
			existing.PatientID == c.PatientID &&
			existing.DoctorID == c.DoctorID &&
			existing.Scope == c.Scope {
			return apperr.New(apperr.DuplicateKey, "an active consent for this doctor and scope already exists")
		}
	}
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	m.consents[c.ID] = c
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Consent, error) {
	c, ok := m.consents[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "consent not found")
	}
	return c, nil
}

func (m *mockRepo) Revoke(_ context.Context, id uuid.UUID) error {
	c, ok := m.consents[id]
	if !ok {
		return apperr.New(apperr.NotFound, "consent not found")
	}
	c.IsActive = false
	return nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Consent, int, error) {
	var result []*Consent
	for _, c := range m.consents {
		if c.PatientID == patientID {
			result = append(result, c)
		}
	}
	return result, len(result), nil
}

func (m *mockRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]*Consent, int, error) {
	var result []*Consent
	for _, c := range m.consents {
		if c.DoctorID == doctorID {
			result = append(result, c)
		}
	}
	return result, len(result), nil
}

func (m *mockRepo) HasActiveConsent(_ context.Context, patientID, doctorID uuid.UUID, category access.Category, at time.Time) (bool, error) {
	for _, c := range m.consents {
		if c.PatientID == patientID && c.DoctorID == doctorID && c.Effective(at) && c.Covers(category) {
			return true, nil
		}
	}
	return false, nil
}

// -- Mock Directory --

type mockDirectory struct {
	users map[uuid.UUID]*UserInfo
}

func (m *mockDirectory) Lookup(_ context.Context, id uuid.UUID) (*UserInfo, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	return u, nil
}

// -- Fixture --

type fixture struct {
	svc      *Service
	repo     *mockRepo
	sender   *notify.MockEmailSender
	patient  uuid.UUID
	doctor   uuid.UUID
	doctor2  uuid.UUID
	patient2 uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		repo:     newMockRepo(),
		sender:   &notify.MockEmailSender{},
		patient:  uuid.New(),
		doctor:   uuid.New(),
		doctor2:  uuid.New(),
		patient2: uuid.New(),
	}
	dir := &mockDirectory{users: map[uuid.UUID]*UserInfo{
		f.patient:  {ID: f.patient, Role: auth.RolePatient, Email: "pat@example.com", Name: "Pat"},
		f.patient2: {ID: f.patient2, Role: auth.RolePatient, Email: "pam@example.com", Name: "Pam"},
		f.doctor:   {ID: f.doctor, Role: auth.RoleDoctor, Email: "doc@example.com", Name: "Doc"},
		f.doctor2:  {ID: f.doctor2, Role: auth.RoleDoctor, Email: "don@example.com", Name: "Don"},
	}}
	notifier := notify.NewNotifier(f.sender, notify.NewTemplateEngine(), zerolog.Nop())
	f.svc = NewService(f.repo, dir, audit.NewRecorder(nil, zerolog.Nop()), notifier)
	return f
}

func (f *fixture) asPatient() context.Context {
	return auth.WithActor(context.Background(), f.patient, auth.RolePatient)
}

func (f *fixture) asAdmin() context.Context {
	return auth.WithActor(context.Background(), uuid.New(), auth.RoleAdmin)
}

// -- Tests --

func TestGrant(t *testing.T) {
	f := newFixture()

	c, err := f.svc.Grant(f.asPatient(), GrantInput{PatientID: f.patient, DoctorID: f.doctor, Scope: "ANALYSES"})
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if !c.IsActive {
		t.Error("new consent must be active")
	}

	ok, err := f.svc.HasActiveConsent(context.Background(), f.patient, f.doctor, access.CategoryAnalyses, time.Now())
	if err != nil || !ok {
		t.Errorf("HasActiveConsent = %v, %v; want true", ok, err)
	}
	if len(f.sender.Calls()) != 1 {
		t.Errorf("expected a consent-granted mail, got %d", len(f.sender.Calls()))
	}
}

func TestGrantDefaultsScope(t *testing.T) {
	f := newFixture()
	c, err := f.svc.Grant(f.asPatient(), GrantInput{PatientID: f.patient, DoctorID: f.doctor})
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if c.Scope != access.CategoryAnalyses {
		t.Errorf("scope = %q, want default ANALYSES", c.Scope)
	}
}

func TestGrantValidation(t *testing.T) {
	f := newFixture()
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name string
		in   GrantInput
	}{
		{"same user", GrantInput{PatientID: f.patient, DoctorID: f.patient}},
		{"doctor not a doctor", GrantInput{PatientID: f.patient, DoctorID: f.patient2}},
		{"unknown scope", GrantInput{PatientID: f.patient, DoctorID: f.doctor, Scope: "EVERYTHING"}},
		{"expiry in the past", GrantInput{PatientID: f.patient, DoctorID: f.doctor, ExpiresAt: &past}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Grant(f.asPatient(), tt.in); !apperr.Is(err, apperr.ValidationFailed) {
				t.Errorf("err = %v, want ValidationFailed", err)
			}
		})
	}
}

func TestGrantPatientRoleChecked(t *testing.T) {
	f := newFixture()
	// Admin granting on behalf of a doctor-as-patient must fail the role check.
	if _, err := f.svc.Grant(f.asAdmin(), GrantInput{PatientID: f.doctor2, DoctorID: f.doctor}); !apperr.Is(err, apperr.ValidationFailed) {
		t.Errorf("err = %v, want ValidationFailed", err)
	}
}

func TestGrantOnlyByPatientOrAdmin(t *testing.T) {
	f := newFixture()

	// The doctor cannot grant themselves access.
	doctorCtx := auth.WithActor(context.Background(), f.doctor, auth.RoleDoctor)
	if _, err := f.svc.Grant(doctorCtx, GrantInput{PatientID: f.patient, DoctorID: f.doctor}); !apperr.Is(err, apperr.AccessDenied) {
		t.Errorf("doctor grants self: err = %v, want AccessDenied", err)
	}

	// Another patient cannot grant for this patient.
	otherCtx := auth.WithActor(context.Background(), f.patient2, auth.RolePatient)
	if _, err := f.svc.Grant(otherCtx, GrantInput{PatientID: f.patient, DoctorID: f.doctor}); !apperr.Is(err, apperr.AccessDenied) {
		t.Errorf("other patient grants: err = %v, want AccessDenied", err)
	}

	// Admin may grant on the patient's behalf.
	if _, err := f.svc.Grant(f.asAdmin(), GrantInput{PatientID: f.patient, DoctorID: f.doctor}); err != nil {
		t.Errorf("admin grant: %v", err)
	}
}

func TestGrantDuplicateActive(t *testing.T) {
	f := newFixture()
	in := GrantInput{PatientID: f.patient, DoctorID: f.doctor, Scope: "NOTES"}

	if _, err := f.svc.Grant(f.asPatient(), in); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Grant(f.asPatient(), in); !apperr.Is(err, apperr.DuplicateKey) {
		t.Errorf("err = %v, want DuplicateKey", err)
	}

	// A different scope for the same pair is fine.
	if _, err := f.svc.Grant(f.asPatient(), GrantInput{PatientID: f.patient, DoctorID: f.doctor, Scope: "REMINDERS"}); err != nil {
		t.Errorf("different scope: %v", err)
	}
}

func TestRevoke(t *testing.T) {
	f := newFixture()
	c, err := f.svc.Grant(f.asPatient(), GrantInput{PatientID: f.patient, DoctorID: f.doctor, Scope: "ANALYSES"})
	if err != nil {
		t.Fatal(err)
	}

	// The doctor cannot revoke.
	doctorCtx := auth.WithActor(context.Background(), f.doctor, auth.RoleDoctor)
	if err := f.svc.Revoke(doctorCtx, c.ID); !apperr.Is(err, apperr.AccessDenied) {
		t.Errorf("doctor revoke: err = %v, want AccessDenied", err)
	}

	if err := f.svc.Revoke(f.asPatient(), c.ID); err != nil {
		t.Fatalf("patient revoke: %v", err)
	}

	// Revocation takes effect immediately.
	ok, err := f.svc.HasActiveConsent(context.Background(), f.patient, f.doctor, access.CategoryAnalyses, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("revoked consent must not grant access")
	}
}

func TestRegrantAfterRevoke(t *testing.T) {
	f := newFixture()
	in := GrantInput{PatientID: f.patient, DoctorID: f.doctor, Scope: "ANALYSES"}

	c, err := f.svc.Grant(f.asPatient(), in)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Revoke(f.asPatient(), c.ID); err != nil {
		t.Fatal(err)
	}

	// Re-granting creates a fresh row; the revoked one stays revoked.
	c2, err := f.svc.Grant(f.asPatient(), in)
	if err != nil {
		t.Fatalf("re-grant: %v", err)
	}
	if c2.ID == c.ID {
		t.Error("re-grant must create a new consent")
	}
	if f.repo.consents[c.ID].IsActive {
		t.Error("original consent must remain revoked")
	}
}

func TestLazyExpiry(t *testing.T) {
	f := newFixture()
	soon := time.Now().Add(time.Minute)

	if _, err := f.svc.Grant(f.asPatient(), GrantInput{PatientID: f.patient, DoctorID: f.doctor, Scope: "ANALYSES", ExpiresAt: &soon}); err != nil {
		t.Fatal(err)
	}

	ok, _ := f.svc.HasActiveConsent(context.Background(), f.patient, f.doctor, access.CategoryAnalyses, time.Now())
	if !ok {
		t.Error("consent should be effective before expiry")
	}

	// Past the deadline the row is still flagged active but no longer grants.
	ok, _ = f.svc.HasActiveConsent(context.Background(), f.patient, f.doctor, access.CategoryAnalyses, soon.Add(time.Second))
	if ok {
		t.Error("expired consent must not grant access")
	}
}

func TestScopeAllCoversEverything(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Grant(f.asPatient(), GrantInput{PatientID: f.patient, DoctorID: f.doctor, Scope: "ALL"}); err != nil {
		t.Fatal(err)
	}

	for _, cat := range []access.Category{access.CategoryAnalyses, access.CategoryNotes, access.CategoryReminders, access.CategoryAll} {
		ok, _ := f.svc.HasActiveConsent(context.Background(), f.patient, f.doctor, cat, time.Now())
		if !ok {
			t.Errorf("ALL scope should cover %s", cat)
		}
	}
}

func TestGetRestrictedToParticipants(t *testing.T) {
	f := newFixture()
	c, err := f.svc.Grant(f.asPatient(), GrantInput{PatientID: f.patient, DoctorID: f.doctor})
	if err != nil {
		t.Fatal(err)
	}

	// Both participants and admin can read it.
	for _, ctx := range []context.Context{
		f.asPatient(),
		auth.WithActor(context.Background(), f.doctor, auth.RoleDoctor),
		f.asAdmin(),
	} {
		if _, err := f.svc.Get(ctx, c.ID); err != nil {
			t.Errorf("participant read: %v", err)
		}
	}

	// An uninvolved doctor cannot.
	strangerCtx := auth.WithActor(context.Background(), f.doctor2, auth.RoleDoctor)
	if _, err := f.svc.Get(strangerCtx, c.ID); !apperr.Is(err, apperr.AccessDenied) {
		t.Errorf("stranger read: err = %v, want AccessDenied", err)
	}
}

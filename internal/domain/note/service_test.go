package note

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthvault/healthvault/internal/apperr"
	"github.com/healthvault/healthvault/internal/platform/access"
	"github.com/healthvault/healthvault/internal/platform/audit"
	"github.com/healthvault/healthvault/internal/platform/auth"
	"github.com/healthvault/healthvault/internal/platform/filestore"
)

type mockRepo struct {
	notes       map[uuid.UUID]*ClinicalNote
	attachments map[uuid.UUID]*Attachment
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		notes:       make(map[uuid.UUID]*ClinicalNote),
		attachments: make(map[uuid.UUID]*Attachment),
	}
}

func (m *mockRepo) Create(_ context.Context, n *ClinicalNote) error {
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	clone := *n
	m.notes[n.ID] = &clone
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*ClinicalNote, error) {
	n, ok := m.notes[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "note not found")
	}
	clone := *n
	for _, a := range m.attachments {
		if a.NoteID == id {
			clone.Attachments = append(clone.Attachments, a)
		}
	}
	return &clone, nil
}

func (m *mockRepo) Update(_ context.Context, n *ClinicalNote) error {
	existing, ok := m.notes[n.ID]
	if !ok {
		return apperr.New(apperr.NotFound, "note not found")
	}
	existing.Title = n.Title
	existing.Body = n.Body
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.notes[id]; !ok {
		return apperr.New(apperr.NotFound, "note not found")
	}
	delete(m.notes, id)
	for aid, a := range m.attachments {
		if a.NoteID == id {
			delete(m.attachments, aid)
		}
	}
	return nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*ClinicalNote, int, error) {
	var result []*ClinicalNote
	for _, n := range m.notes {
		if n.PatientID == patientID {
			result = append(result, n)
		}
	}
	return result, len(result), nil
}

func (m *mockRepo) CreateAttachment(_ context.Context, a *Attachment) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	clone := *a
	m.attachments[a.ID] = &clone
	return nil
}

func (m *mockRepo) GetAttachment(_ context.Context, id uuid.UUID) (*Attachment, error) {
	a, ok := m.attachments[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "attachment not found")
	}
	return a, nil
}

func (m *mockRepo) DeleteAttachment(_ context.Context, id uuid.UUID) error {
	if _, ok := m.attachments[id]; !ok {
		return apperr.New(apperr.NotFound, "attachment not found")
	}
	delete(m.attachments, id)
	return nil
}

func (m *mockRepo) ListAttachments(_ context.Context, noteID uuid.UUID) ([]*Attachment, error) {
	var result []*Attachment
	for _, a := range m.attachments {
		if a.NoteID == noteID {
			result = append(result, a)
		}
	}
	return result, nil
}

type consentTable struct {
	grants map[string]bool
}

func (c *consentTable) grant(patient, doctor uuid.UUID, scope access.Category) {
	if c.grants == nil {
		c.grants = make(map[string]bool)
	}
	c.grants[patient.String()+"|"+doctor.String()+"|"+string(scope)] = true
}

func (c *consentTable) HasActiveConsent(_ context.Context, patient, doctor uuid.UUID, category access.Category, _ time.Time) (bool, error) {
	if c.grants[patient.String()+"|"+doctor.String()+"|"+string(category)] {
		return true, nil
	}
	return c.grants[patient.String()+"|"+doctor.String()+"|ALL"], nil
}

type fixture struct {
	svc      *Service
	repo     *mockRepo
	files    *filestore.MemoryStore
	consents *consentTable
	patient  uuid.UUID
	doctor   uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		repo:     newMockRepo(),
		files:    filestore.NewMemoryStore(),
		consents: &consentTable{},
		patient:  uuid.New(),
		doctor:   uuid.New(),
	}
	eval := access.NewEvaluator(f.consents)
	f.svc = NewService(f.repo, f.files, eval, audit.NewRecorder(nil, zerolog.Nop()), zerolog.Nop())
	return f
}

func (f *fixture) asPatient() context.Context {
	return auth.WithActor(context.Background(), f.patient, auth.RolePatient)
}

func (f *fixture) asDoctor() context.Context {
	return auth.WithActor(context.Background(), f.doctor, auth.RoleDoctor)
}

func TestCreateByPatient(t *testing.T) {
	f := newFixture()

	n, err := f.svc.Create(f.asPatient(), CreateInput{
		PatientID: f.patient,
		Title:     "  Allergy history  ",
		Body:      "Penicillin rash in 2019.",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n.Title != "Allergy history" {
		t.Errorf("Title = %q, want trimmed", n.Title)
	}
	if n.DoctorID != nil {
		t.Error("patient-authored note must not carry a doctor")
	}
}

func TestCreateByDoctorRequiresConsent(t *testing.T) {
	f := newFixture()
	in := CreateInput{PatientID: f.patient, Title: "Follow-up", Body: "Recheck in 3 months."}

	if _, err := f.svc.Create(f.asDoctor(), in); !apperr.Is(err, apperr.AccessDenied) {
		t.Fatalf("err = %v, want AccessDenied", err)
	}

	f.consents.grant(f.patient, f.doctor, access.CategoryNotes)
	n, err := f.svc.Create(f.asDoctor(), in)
	if err != nil {
		t.Fatalf("Create with consent: %v", err)
	}
	if n.DoctorID == nil || *n.DoctorID != f.doctor {
		t.Error("authoring doctor should be recorded")
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture()

	if _, err := f.svc.Create(f.asPatient(), CreateInput{Title: "x"}); !apperr.Is(err, apperr.ValidationFailed) {
		t.Errorf("missing patient: err = %v", err)
	}
	if _, err := f.svc.Create(f.asPatient(), CreateInput{PatientID: f.patient, Title: "   "}); !apperr.Is(err, apperr.ValidationFailed) {
		t.Errorf("blank title: err = %v", err)
	}
}

func TestReadGate(t *testing.T) {
	f := newFixture()
	n, err := f.svc.Create(f.asPatient(), CreateInput{PatientID: f.patient, Title: "t", Body: "b"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Get(f.asPatient(), n.ID); err != nil {
		t.Errorf("owner read: %v", err)
	}
	if _, err := f.svc.Get(f.asDoctor(), n.ID); !apperr.Is(err, apperr.AccessDenied) {
		t.Errorf("doctor without consent: err = %v", err)
	}

	// An ANALYSES-only consent does not open notes.
	f.consents.grant(f.patient, f.doctor, access.CategoryAnalyses)
	if _, err := f.svc.Get(f.asDoctor(), n.ID); !apperr.Is(err, apperr.AccessDenied) {
		t.Errorf("wrong-scope consent: err = %v", err)
	}

	f.consents.grant(f.patient, f.doctor, access.CategoryNotes)
	if _, err := f.svc.Get(f.asDoctor(), n.ID); err != nil {
		t.Errorf("doctor with NOTES consent: %v", err)
	}
}

func TestUpdate(t *testing.T) {
	f := newFixture()
	n, err := f.svc.Create(f.asPatient(), CreateInput{PatientID: f.patient, Title: "t", Body: "b"})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := f.svc.Update(f.asPatient(), n.ID, UpdateInput{Title: "t2", Body: "b2"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "t2" || updated.Body != "b2" {
		t.Errorf("updated = %+v", updated)
	}

	if _, err := f.svc.Update(f.asDoctor(), n.ID, UpdateInput{Title: "x"}); !apperr.Is(err, apperr.AccessDenied) {
		t.Errorf("doctor without consent: err = %v", err)
	}
}

func TestAttachmentLifecycle(t *testing.T) {
	f := newFixture()
	n, err := f.svc.Create(f.asPatient(), CreateInput{PatientID: f.patient, Title: "t", Body: "b"})
	if err != nil {
		t.Fatal(err)
	}

	a, err := f.svc.Attach(f.asPatient(), n.ID, AttachInput{
		FileName:    "scan.pdf",
		ContentType: "application/pdf",
		Content:     []byte("%PDF-1.4 fake"),
	})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if a.Size == 0 || a.FileID == "" {
		t.Errorf("attachment = %+v", a)
	}

	// Attachment access follows the note's gate.
	if _, _, err := f.svc.OpenAttachment(f.asDoctor(), a.ID); !apperr.Is(err, apperr.AccessDenied) {
		t.Errorf("doctor without consent: err = %v", err)
	}
	rc, got, err := f.svc.OpenAttachment(f.asPatient(), a.ID)
	if err != nil {
		t.Fatalf("OpenAttachment: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "%PDF-1.4 fake" || got.FileName != "scan.pdf" {
		t.Error("attachment content mismatch")
	}

	// Deleting the note removes the stored file too.
	if err := f.svc.Delete(f.asPatient(), n.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.files.Stat(context.Background(), a.FileID); !errors.Is(err, filestore.ErrFileNotFound) {
		t.Error("attachment file should be gone")
	}
}

func TestAttachRejectsBadContentType(t *testing.T) {
	f := newFixture()
	n, err := f.svc.Create(f.asPatient(), CreateInput{PatientID: f.patient, Title: "t", Body: "b"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.Attach(f.asPatient(), n.ID, AttachInput{
		FileName:    "virus.exe",
		ContentType: "application/octet-stream",
		Content:     []byte{0x4d, 0x5a},
	})
	if !apperr.Is(err, apperr.ValidationFailed) {
		t.Errorf("err = %v, want ValidationFailed", err)
	}
}

func TestDeleteAttachment(t *testing.T) {
	f := newFixture()
	n, err := f.svc.Create(f.asPatient(), CreateInput{PatientID: f.patient, Title: "t", Body: "b"})
	if err != nil {
		t.Fatal(err)
	}
	a, err := f.svc.Attach(f.asPatient(), n.ID, AttachInput{
		FileName: "scan.png", ContentType: "image/png", Content: []byte("png"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.DeleteAttachment(f.asDoctor(), a.ID); !apperr.Is(err, apperr.AccessDenied) {
		t.Errorf("doctor without consent: err = %v", err)
	}
	if err := f.svc.DeleteAttachment(f.asPatient(), a.ID); err != nil {
		t.Fatalf("DeleteAttachment: %v", err)
	}
	if _, err := f.repo.GetAttachment(context.Background(), a.ID); !apperr.Is(err, apperr.NotFound) {
		t.Error("attachment row should be gone")
	}
}

func TestListByPatientGate(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Create(f.asPatient(), CreateInput{PatientID: f.patient, Title: "t", Body: "b"}); err != nil {
		t.Fatal(err)
	}

	if _, _, err := f.svc.ListByPatient(f.asDoctor(), f.patient, 20, 0); !apperr.Is(err, apperr.AccessDenied) {
		t.Errorf("doctor without consent: err = %v", err)
	}

	f.consents.grant(f.patient, f.doctor, access.CategoryAll)
	notes, total, err := f.svc.ListByPatient(f.asDoctor(), f.patient, 20, 0)
	if err != nil {
		t.Fatalf("with ALL consent: %v", err)
	}
	if total != 1 || len(notes) != 1 {
		t.Errorf("got %d notes, want 1", total)
	}
}

package auditlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthvault/healthvault/internal/apperr"
	"github.com/healthvault/healthvault/internal/platform/audit"
	"github.com/healthvault/healthvault/internal/platform/auth"
)

type mockRepo struct {
	entries []*Entry
	fail    bool
}

func (m *mockRepo) Create(_ context.Context, e *Entry) error {
	if m.fail {
		return errors.New("insert failed")
	}
	e.ID = uuid.New()
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	var result []*Entry
	for _, e := range m.entries {
		if f.ActorID != uuid.Nil && e.ActorID != f.ActorID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.TargetType != "" && e.TargetType != f.TargetType {
			continue
		}
		result = append(result, e)
	}
	return result, len(result), nil
}

func asAdmin() context.Context {
	return auth.WithActor(context.Background(), uuid.New(), auth.RoleAdmin)
}

func TestSinkPersistsEvents(t *testing.T) {
	repo := &mockRepo{}
	sink := NewSink(repo)
	actorID := uuid.New()
	at := time.Now().UTC()

	err := sink.Record(context.Background(), audit.Event{
		ActorID:    actorID,
		Action:     audit.ActionCreate,
		TargetType: "analysis",
		TargetID:   uuid.NewString(),
		IPAddress:  "203.0.113.7",
		Metadata:   map[string]string{"source": "PATIENT"},
		OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(repo.entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(repo.entries))
	}
	e := repo.entries[0]
	if e.ActorID != actorID || e.Action != audit.ActionCreate || e.IPAddress != "203.0.113.7" {
		t.Errorf("entry = %+v", e)
	}
	if !e.OccurredAt.Equal(at) {
		t.Error("occurred_at should pass through unchanged")
	}
}

func TestRecorderSwallowsSinkFailure(t *testing.T) {
	repo := &mockRepo{fail: true}
	rec := audit.NewRecorder(NewSink(repo), zerolog.Nop())

	// Record never surfaces an error to the primary operation.
	rec.Record(context.Background(), audit.Event{
		ActorID: uuid.New(),
		Action:  audit.ActionDelete,
	})
}

func TestListAdminOnly(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	patientCtx := auth.WithActor(context.Background(), uuid.New(), auth.RolePatient)
	if _, _, err := svc.List(patientCtx, Filter{}, 20, 0); !apperr.Is(err, apperr.AccessDenied) {
		t.Errorf("patient list: err = %v, want AccessDenied", err)
	}
	doctorCtx := auth.WithActor(context.Background(), uuid.New(), auth.RoleDoctor)
	if _, _, err := svc.List(doctorCtx, Filter{}, 20, 0); !apperr.Is(err, apperr.AccessDenied) {
		t.Errorf("doctor list: err = %v, want AccessDenied", err)
	}
	if _, _, err := svc.List(asAdmin(), Filter{}, 20, 0); err != nil {
		t.Errorf("admin list: %v", err)
	}
}

func TestListFilters(t *testing.T) {
	repo := &mockRepo{}
	sink := NewSink(repo)
	svc := NewService(repo)
	alice, bob := uuid.New(), uuid.New()

	events := []audit.Event{
		{ActorID: alice, Action: audit.ActionLogin, TargetType: "user"},
		{ActorID: alice, Action: audit.ActionRead, TargetType: "analysis"},
		{ActorID: bob, Action: audit.ActionRead, TargetType: "analysis"},
	}
	for _, e := range events {
		if err := sink.Record(context.Background(), e); err != nil {
			t.Fatal(err)
		}
	}

	entries, total, err := svc.List(asAdmin(), Filter{ActorID: alice}, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("actor filter: got %d, want 2", total)
	}
	for _, e := range entries {
		if e.ActorID != alice {
			t.Errorf("foreign entry %+v", e)
		}
	}

	_, total, err = svc.List(asAdmin(), Filter{Action: audit.ActionRead, TargetType: "analysis"}, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("action+target filter: got %d, want 2", total)
	}
}

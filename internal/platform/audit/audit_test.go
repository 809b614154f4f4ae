package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type captureSink struct {
	events []Event
	err    error
}

func (s *captureSink) Record(_ context.Context, ev Event) error {
	s.events = append(s.events, ev)
	return s.err
}

func TestRecorderStampsEvent(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(sink, zerolog.Nop())
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return fixed }

	ctx := WithClientIP(context.Background(), "10.0.0.9")
	rec.Record(ctx, Event{
		ActorID:    uuid.New(),
		Action:     ActionCreate,
		TargetType: "analysis",
		TargetID:   "a1",
	})

	if len(sink.events) != 1 {
		t.Fatalf("recorded %d events, want 1", len(sink.events))
	}
	ev := sink.events[0]
	if !ev.OccurredAt.Equal(fixed) {
		t.Errorf("OccurredAt = %v, want %v", ev.OccurredAt, fixed)
	}
	if ev.IPAddress != "10.0.0.9" {
		t.Errorf("IPAddress = %q, want context value", ev.IPAddress)
	}
}

func TestRecorderKeepsExplicitFields(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(sink, zerolog.Nop())

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ctx := WithClientIP(context.Background(), "10.0.0.9")
	rec.Record(ctx, Event{Action: ActionRead, TargetType: "note", TargetID: "n1", IPAddress: "192.168.1.1", OccurredAt: at})

	ev := sink.events[0]
	if ev.IPAddress != "192.168.1.1" {
		t.Errorf("IPAddress = %q, explicit value should win", ev.IPAddress)
	}
	if !ev.OccurredAt.Equal(at) {
		t.Errorf("OccurredAt = %v, explicit value should win", ev.OccurredAt)
	}
}

func TestRecorderSwallowsSinkErrors(t *testing.T) {
	sink := &captureSink{err: errors.New("db down")}
	rec := NewRecorder(sink, zerolog.Nop())

	// Must not panic or surface the error in any way.
	rec.Record(context.Background(), Event{Action: ActionDelete, TargetType: "consent", TargetID: "c1"})

	if len(sink.events) != 1 {
		t.Fatalf("sink should still have been called")
	}
}

func TestRecorderNilSink(t *testing.T) {
	rec := NewRecorder(nil, zerolog.Nop())
	rec.Record(context.Background(), Event{Action: ActionLogin})

	var nilRec *Recorder
	nilRec.Record(context.Background(), Event{Action: ActionLogout})
}

func TestClientIPFromContext(t *testing.T) {
	if ip := ClientIPFromContext(context.Background()); ip != "" {
		t.Errorf("empty context: ip = %q, want empty", ip)
	}
	ctx := WithClientIP(context.Background(), "172.16.0.1")
	if ip := ClientIPFromContext(ctx); ip != "172.16.0.1" {
		t.Errorf("ip = %q, want 172.16.0.1", ip)
	}
}

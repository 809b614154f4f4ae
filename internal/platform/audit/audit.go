// Package audit records who did what to which record. Events are emitted
// synchronously through an injected Sink after each guarded operation;
// recording failures are logged and swallowed so the primary operation is
// never rolled back by its own audit trail.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Action enumerates the kinds of audited operations.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionRead   Action = "READ"
	ActionLogin  Action = "LOGIN"
	ActionLogout Action = "LOGOUT"
)

// Event is one audit trail entry.
type Event struct {
	ActorID    uuid.UUID         `json:"actor_id"`
	Action     Action            `json:"action"`
	TargetType string            `json:"target_type"`
	TargetID   string            `json:"target_id"`
	IPAddress  string            `json:"ip_address,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Sink persists audit events. Implementations must be safe for concurrent
// use.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// Recorder wraps a Sink and guarantees that recording never propagates an
// error to the caller.
type Recorder struct {
	sink Sink
	log  zerolog.Logger
	now  func() time.Time
}

// NewRecorder returns a Recorder writing to sink. A nil sink produces a
// recorder that drops every event, which keeps call sites unconditional.
func NewRecorder(sink Sink, log zerolog.Logger) *Recorder {
	return &Recorder{sink: sink, log: log, now: time.Now}
}

// Record stamps and persists an event. Failures are logged, never returned.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	if r == nil || r.sink == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = r.now().UTC()
	}
	if ev.IPAddress == "" {
		ev.IPAddress = ClientIPFromContext(ctx)
	}

	if err := r.sink.Record(ctx, ev); err != nil {
		r.log.Error().
			Err(err).
			Str("action", string(ev.Action)).
			Str("target_type", ev.TargetType).
			Str("target_id", ev.TargetID).
			Msg("failed to record audit event")
	}
}

type contextKey string

const clientIPKey contextKey = "audit_client_ip"

// WithClientIP stores the caller's network address on the context so services
// can attribute events without threading the request through.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext returns the stored caller address, or "".
func ClientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok {
		return ip
	}
	return ""
}

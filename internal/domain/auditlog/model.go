package auditlog

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthvault/healthvault/internal/platform/audit"
)

// Entry is one persisted audit trail row.
type Entry struct {
	ID         uuid.UUID         `json:"id" db:"id"`
	ActorID    uuid.UUID         `json:"actor_id" db:"actor_id"`
	Action     audit.Action      `json:"action" db:"action"`
	TargetType string            `json:"target_type" db:"target_type"`
	TargetID   string            `json:"target_id" db:"target_id"`
	IPAddress  string            `json:"ip_address,omitempty" db:"ip_address"`
	Metadata   map[string]string `json:"metadata,omitempty" db:"metadata"`
	OccurredAt time.Time         `json:"occurred_at" db:"occurred_at"`
}

// Filter narrows an audit trail query. Zero values mean no constraint.
type Filter struct {
	ActorID    uuid.UUID
	Action     audit.Action
	TargetType string
	TargetID   string
	Since      time.Time
	Until      time.Time
}

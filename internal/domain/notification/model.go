package notification

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies what triggered a notification.
type Kind string

const (
	KindReminder      Kind = "REMINDER"
	KindSystem        Kind = "SYSTEM"
	KindAnalysisReady Kind = "ANALYSIS_READY"
	KindConsent       Kind = "CONSENT"
)

// Channel is the delivery channel the message went out on.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
)

// Notification is the in-app record of a message sent to a user.
type Notification struct {
	ID        uuid.UUID         `json:"id" db:"id"`
	UserID    uuid.UUID         `json:"user_id" db:"user_id"`
	Kind      Kind              `json:"kind" db:"kind"`
	Channel   Channel           `json:"channel" db:"channel"`
	Subject   string            `json:"subject" db:"subject"`
	Body      string            `json:"body" db:"body"`
	Payload   map[string]string `json:"payload,omitempty" db:"payload"`
	SentAt    *time.Time        `json:"sent_at,omitempty" db:"sent_at"`
	ReadAt    *time.Time        `json:"read_at,omitempty" db:"read_at"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

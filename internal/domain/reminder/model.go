package reminder

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthvault/healthvault/internal/platform/access"
)

// Channel is the patient's preferred delivery channel.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
)

// Reminder is a scheduled prompt for a patient: medication, periodic
// check-up, follow-up appointment. RRule holds an optional iCal RRULE
// string for recurring reminders; it is stored opaquely and interpreted by
// whoever maintains DueAt.
type Reminder struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	PatientID   uuid.UUID  `json:"patient_id" db:"patient_id"`
	CreatedBy   *uuid.UUID `json:"created_by,omitempty" db:"created_by"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description" db:"description"`
	DueAt       time.Time  `json:"due_at" db:"due_at"`
	RRule       string     `json:"rrule,omitempty" db:"rrule"`
	Channel     Channel    `json:"channel" db:"preferred_channel"`
	LastSentAt  *time.Time `json:"last_sent_at,omitempty" db:"last_sent_at"`
	Active      bool       `json:"active" db:"active"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

func (r *Reminder) OwnerPatientID() uuid.UUID { return r.PatientID }

func (r *Reminder) Category() access.Category { return access.CategoryReminders }

// Package access implements consent-gated authorization. Every guarded
// read/write goes through Evaluator.Allowed before it reaches storage.
//
// The decision combines the actor's role with the consent relation: admins
// pass unconditionally, patients pass for their own data, doctors pass only
// with an active, unexpired consent whose scope covers the resource's data
// category. Everything else, including any resolution failure, denies.
package access

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/healthvault/healthvault/internal/platform/auth"
)

// Action distinguishes reads from writes.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

// Category is the data category a consent scope covers.
type Category string

const (
	CategoryAnalyses  Category = "ANALYSES"
	CategoryNotes     Category = "NOTES"
	CategoryReminders Category = "REMINDERS"
	CategoryAll       Category = "ALL"
)

// Actor is the authenticated caller.
type Actor struct {
	ID   uuid.UUID
	Role auth.Role
}

// ActorFromContext builds the Actor from the request context populated by
// the auth middleware.
func ActorFromContext(ctx context.Context) Actor {
	return Actor{
		ID:   auth.UserIDFromContext(ctx),
		Role: auth.RoleFromContext(ctx),
	}
}

// Resource is anything the evaluator can guard. A resource that cannot name
// its owner returns uuid.Nil and is denied.
type Resource interface {
	OwnerPatientID() uuid.UUID
	Category() Category
}

// ConsentChecker answers whether an active, unexpired consent covering the
// category (or ALL) exists for the (patient, doctor) pair at the given
// instant. Expiry is evaluated lazily here, never swept.
type ConsentChecker interface {
	HasActiveConsent(ctx context.Context, patientID, doctorID uuid.UUID, category Category, at time.Time) (bool, error)
}

// Evaluator decides allow/deny for guarded resources.
type Evaluator struct {
	consents ConsentChecker
	now      func() time.Time
}

func NewEvaluator(consents ConsentChecker) *Evaluator {
	return &Evaluator{consents: consents, now: time.Now}
}

// NewEvaluatorAt is like NewEvaluator with an injected clock.
func NewEvaluatorAt(consents ConsentChecker, now func() time.Time) *Evaluator {
	return &Evaluator{consents: consents, now: now}
}

// Allowed reports whether actor may perform action on resource. Failures
// during consent lookup deny rather than propagate.
func (e *Evaluator) Allowed(ctx context.Context, actor Actor, action Action, resource Resource) bool {
	if actor.Role == auth.RoleAdmin {
		return true
	}
	if resource == nil {
		return false
	}

	owner := resource.OwnerPatientID()
	if owner == uuid.Nil {
		// fail closed when ownership cannot be resolved
		return false
	}
	return e.decide(ctx, actor, owner, resource.Category())
}

// AllowedCreate guards creation, where no resource instance exists yet and
// the target patient comes from the submitted payload. A nil target is
// provisionally allowed; the owning service must re-check once the payload
// is bound.
func (e *Evaluator) AllowedCreate(ctx context.Context, actor Actor, targetPatient uuid.UUID, category Category) bool {
	if actor.Role == auth.RoleAdmin {
		return true
	}
	if targetPatient == uuid.Nil {
		return true
	}
	return e.decide(ctx, actor, targetPatient, category)
}

func (e *Evaluator) decide(ctx context.Context, actor Actor, owner uuid.UUID, category Category) bool {
	if actor.ID != uuid.Nil && actor.ID == owner {
		return true
	}
	if actor.Role != auth.RoleDoctor {
		return false
	}
	ok, err := e.consents.HasActiveConsent(ctx, owner, actor.ID, category, e.now())
	if err != nil {
		return false
	}
	return ok
}

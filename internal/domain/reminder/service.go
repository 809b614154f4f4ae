package reminder

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthvault/healthvault/internal/apperr"
	"github.com/healthvault/healthvault/internal/platform/access"
	"github.com/healthvault/healthvault/internal/platform/audit"
	"github.com/healthvault/healthvault/internal/platform/notify"
)

// Directory resolves a user id to a deliverable address.
type Directory interface {
	EmailOf(ctx context.Context, id uuid.UUID) (email, name string, err error)
}

type Service struct {
	repo     Repository
	access   *access.Evaluator
	audit    *audit.Recorder
	notifier *notify.Notifier
	dir      Directory
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, eval *access.Evaluator, rec *audit.Recorder, notifier *notify.Notifier, dir Directory, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		access:   eval,
		audit:    rec,
		notifier: notifier,
		dir:      dir,
		log:      log,
		now:      time.Now,
	}
}

// CreateInput is the reminder creation payload.
type CreateInput struct {
	PatientID   uuid.UUID `json:"patient_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueAt       time.Time `json:"due_at"`
	RRule       string    `json:"rrule"`
	Channel     Channel   `json:"channel"`
}

// Create schedules a reminder. Patients schedule their own; doctors need a
// REMINDERS (or ALL) consent.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Reminder, error) {
	actor := access.ActorFromContext(ctx)

	if in.PatientID == uuid.Nil {
		in.PatientID = actor.ID
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, apperr.Field("title", "title is required")
	}
	if in.DueAt.IsZero() {
		return nil, apperr.Field("due_at", "due time is required")
	}
	if in.Channel == "" {
		in.Channel = ChannelEmail
	}
	if in.Channel != ChannelEmail && in.Channel != ChannelPush {
		return nil, apperr.Field("channel", "unknown channel")
	}

	if !s.access.AllowedCreate(ctx, actor, in.PatientID, access.CategoryReminders) {
		return nil, apperr.New(apperr.AccessDenied, "access denied")
	}

	r := &Reminder{
		PatientID:   in.PatientID,
		Title:       in.Title,
		Description: in.Description,
		DueAt:       in.DueAt,
		RRule:       in.RRule,
		Channel:     in.Channel,
		Active:      true,
	}
	if actor.ID != in.PatientID {
		createdBy := actor.ID
		r.CreatedBy = &createdBy
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	s.record(ctx, actor, audit.ActionCreate, r.ID)
	return r, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	actor := access.ActorFromContext(ctx)
	if !s.access.Allowed(ctx, actor, access.ActionRead, r) {
		return nil, apperr.New(apperr.AccessDenied, "access denied")
	}
	return r, nil
}

// UpdateInput carries the mutable reminder fields.
type UpdateInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueAt       time.Time `json:"due_at"`
	RRule       string    `json:"rrule"`
	Channel     Channel   `json:"channel"`
	Active      bool      `json:"active"`
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Reminder, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	actor := access.ActorFromContext(ctx)
	if !s.access.Allowed(ctx, actor, access.ActionWrite, r) {
		return nil, apperr.New(apperr.AccessDenied, "access denied")
	}

	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, apperr.Field("title", "title is required")
	}
	if in.DueAt.IsZero() {
		return nil, apperr.Field("due_at", "due time is required")
	}
	if in.Channel == "" {
		in.Channel = r.Channel
	}

	r.Title = in.Title
	r.Description = in.Description
	r.DueAt = in.DueAt
	r.RRule = in.RRule
	r.Channel = in.Channel
	r.Active = in.Active
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	s.record(ctx, actor, audit.ActionUpdate, r.ID)
	return r, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	actor := access.ActorFromContext(ctx)
	if !s.access.Allowed(ctx, actor, access.ActionWrite, r) {
		return apperr.New(apperr.AccessDenied, "access denied")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, audit.ActionDelete, id)
	return nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Reminder, int, error) {
	actor := access.ActorFromContext(ctx)
	probe := &Reminder{PatientID: patientID}
	if !s.access.Allowed(ctx, actor, access.ActionRead, probe) {
		return nil, 0, apperr.New(apperr.AccessDenied, "access denied")
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// DispatchDue sends every due reminder and returns how many went out. A
// reminder without an RRULE is one-shot and deactivated after sending;
// recurring ones stay active and fire again once their due time is moved
// forward. Send failures skip the reminder so the next run retries it.
func (s *Service) DispatchDue(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.repo.ListDue(ctx, now)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, r := range due {
		email, name, err := s.dir.EmailOf(ctx, r.PatientID)
		if err != nil {
			s.log.Warn().Err(err).Str("reminder_id", r.ID.String()).Msg("skipping reminder, unresolvable patient")
			continue
		}
		s.notifier.SendUser(ctx, r.PatientID, notify.TemplateReminderDue, email, map[string]string{
			"patient_name": name,
			"title":        r.Title,
			"due_at":       r.DueAt.Format(time.RFC1123),
		})
		stillActive := r.RRule != ""
		if err := s.repo.MarkSent(ctx, r.ID, now, stillActive); err != nil {
			s.log.Error().Err(err).Str("reminder_id", r.ID.String()).Msg("failed to mark reminder sent")
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *Service) record(ctx context.Context, actor access.Actor, action audit.Action, id uuid.UUID) {
	s.audit.Record(ctx, audit.Event{
		ActorID:    actor.ID,
		Action:     action,
		TargetType: "reminder",
		TargetID:   id.String(),
	})
}

package notification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/healthvault/healthvault/internal/apperr"
	"github.com/healthvault/healthvault/internal/platform/access"
	"github.com/healthvault/healthvault/internal/platform/auth"
	"github.com/healthvault/healthvault/internal/platform/notify"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// kindFor maps a notifier template to the notification kind.
func kindFor(templateID string) Kind {
	switch templateID {
	case notify.TemplateAnalysisReady:
		return KindAnalysisReady
	case notify.TemplateConsentGranted, notify.TemplateConsentRevoked:
		return KindConsent
	case notify.TemplateReminderDue:
		return KindReminder
	default:
		return KindSystem
	}
}

// Journal implements notify.Journal: every user-addressed message sent
// through the notifier lands here as an in-app row.
func (s *Service) Journal(ctx context.Context, userID uuid.UUID, templateID, subject, body string, data map[string]string) error {
	sentAt := s.now().UTC()
	return s.repo.Create(ctx, &Notification{
		UserID:  userID,
		Kind:    kindFor(templateID),
		Channel: ChannelEmail,
		Subject: subject,
		Body:    body,
		Payload: data,
		SentAt:  &sentAt,
	})
}

// ListMine returns the caller's notifications, newest first.
func (s *Service) ListMine(ctx context.Context, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	userID := auth.UserIDFromContext(ctx)
	if userID == uuid.Nil {
		return nil, 0, apperr.New(apperr.AccessDenied, "access denied")
	}
	return s.repo.ListByUser(ctx, userID, unreadOnly, limit, offset)
}

// MarkRead marks one of the caller's notifications as read. Already-read
// rows keep their original timestamp.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) error {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	actor := access.ActorFromContext(ctx)
	if actor.Role != auth.RoleAdmin && n.UserID != actor.ID {
		return apperr.New(apperr.AccessDenied, "access denied")
	}
	return s.repo.MarkRead(ctx, id, s.now().UTC())
}

// MarkAllRead marks every unread notification of the caller as read.
func (s *Service) MarkAllRead(ctx context.Context) error {
	userID := auth.UserIDFromContext(ctx)
	if userID == uuid.Nil {
		return apperr.New(apperr.AccessDenied, "access denied")
	}
	return s.repo.MarkAllRead(ctx, userID, s.now().UTC())
}

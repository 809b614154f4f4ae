package auditlog

import (
	"context"

	"github.com/healthvault/healthvault/internal/apperr"
	"github.com/healthvault/healthvault/internal/platform/audit"
	"github.com/healthvault/healthvault/internal/platform/auth"
)

// Sink persists audit events. It implements audit.Sink; the Recorder owns
// the swallow-on-failure policy, so errors are returned here.
type Sink struct {
	repo Repository
}

func NewSink(repo Repository) *Sink {
	return &Sink{repo: repo}
}

func (s *Sink) Record(ctx context.Context, e audit.Event) error {
	return s.repo.Create(ctx, &Entry{
		ActorID:    e.ActorID,
		Action:     e.Action,
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		IPAddress:  e.IPAddress,
		Metadata:   e.Metadata,
		OccurredAt: e.OccurredAt,
	})
}

// Service answers audit trail queries. Admin only.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	if auth.RoleFromContext(ctx) != auth.RoleAdmin {
		return nil, 0, apperr.New(apperr.AccessDenied, "access denied")
	}
	return s.repo.List(ctx, f, limit, offset)
}

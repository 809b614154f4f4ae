package consent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/healthvault/healthvault/internal/apperr"
	"github.com/healthvault/healthvault/internal/platform/access"
	"github.com/healthvault/healthvault/internal/platform/audit"
	"github.com/healthvault/healthvault/internal/platform/auth"
	"github.com/healthvault/healthvault/internal/platform/notify"
)

// UserInfo is the slice of account data consent checks need.
type UserInfo struct {
	ID    uuid.UUID
	Role  auth.Role
	Email string
	Name  string
}

// Directory resolves user ids to role and contact data. Implemented by the
// user service.
type Directory interface {
	Lookup(ctx context.Context, id uuid.UUID) (*UserInfo, error)
}

type Service struct {
	repo     Repository
	dir      Directory
	audit    *audit.Recorder
	notifier *notify.Notifier
	now      func() time.Time
}

func NewService(repo Repository, dir Directory, rec *audit.Recorder, notifier *notify.Notifier) *Service {
	return &Service{repo: repo, dir: dir, audit: rec, notifier: notifier, now: time.Now}
}

// HasActiveConsent implements the consent lookup the access evaluator
// depends on.
func (s *Service) HasActiveConsent(ctx context.Context, patientID, doctorID uuid.UUID, category access.Category, at time.Time) (bool, error) {
	return s.repo.HasActiveConsent(ctx, patientID, doctorID, category, at)
}

// GrantInput is the consent creation payload.
type GrantInput struct {
	PatientID uuid.UUID  `json:"patient"`
	DoctorID  uuid.UUID  `json:"doctor"`
	Scope     string     `json:"scope"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

var validScopes = map[access.Category]bool{
	access.CategoryAnalyses:  true,
	access.CategoryNotes:     true,
	access.CategoryReminders: true,
	access.CategoryAll:       true,
}

// Grant creates an active consent. Only the patient themselves or an admin
// may grant; both parties' roles are verified.
func (s *Service) Grant(ctx context.Context, in GrantInput) (*Consent, error) {
	actor := access.ActorFromContext(ctx)
	if actor.Role != auth.RoleAdmin && actor.ID != in.PatientID {
		return nil, apperr.New(apperr.AccessDenied, "access denied")
	}

	if in.PatientID == uuid.Nil {
		return nil, apperr.Field("patient", "patient is required")
	}
	if in.DoctorID == uuid.Nil {
		return nil, apperr.Field("doctor", "doctor is required")
	}
	if in.PatientID == in.DoctorID {
		return nil, apperr.Field("doctor", "patient and doctor must be different users")
	}

	scope := access.Category(in.Scope)
	if scope == "" {
		scope = access.CategoryAnalyses
	}
	if !validScopes[scope] {
		return nil, apperr.Field("scope", fmt.Sprintf("unknown scope %q", in.Scope))
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return nil, apperr.Field("expires_at", "expiry must be in the future")
	}

	patient, err := s.dir.Lookup(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	if patient.Role != auth.RolePatient {
		return nil, apperr.Field("patient", "user is not a patient")
	}
	doctor, err := s.dir.Lookup(ctx, in.DoctorID)
	if err != nil {
		return nil, err
	}
	if doctor.Role != auth.RoleDoctor {
		return nil, apperr.Field("doctor", "user is not a doctor")
	}

	c := &Consent{
		PatientID: in.PatientID,
		DoctorID:  in.DoctorID,
		Scope:     scope,
		ExpiresAt: in.ExpiresAt,
		IsActive:  true,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:    actor.ID,
		Action:     audit.ActionCreate,
		TargetType: "consent",
		TargetID:   c.ID.String(),
		Metadata:   map[string]string{"scope": string(scope), "doctor_id": in.DoctorID.String()},
	})
	s.notifier.SendUser(ctx, c.PatientID, notify.TemplateConsentGranted, patient.Email, map[string]string{
		"patient_name": patient.Name,
		"doctor_name":  doctor.Name,
		"scope":        string(scope),
	})
	return c, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Consent, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.participantOrAdmin(ctx, c) {
		return nil, apperr.New(apperr.AccessDenied, "access denied")
	}
	return c, nil
}

// Revoke deactivates a consent with immediate effect: the next access check
// for the pair sees no active grant. Only the patient or an admin may
// revoke.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID) error {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	actor := access.ActorFromContext(ctx)
	if actor.Role != auth.RoleAdmin && actor.ID != c.PatientID {
		return apperr.New(apperr.AccessDenied, "access denied")
	}
	if err := s.repo.Revoke(ctx, id); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:    actor.ID,
		Action:     audit.ActionDelete,
		TargetType: "consent",
		TargetID:   id.String(),
	})
	if patient, err := s.dir.Lookup(ctx, c.PatientID); err == nil {
		data := map[string]string{"patient_name": patient.Name, "scope": string(c.Scope)}
		if doctor, err := s.dir.Lookup(ctx, c.DoctorID); err == nil {
			data["doctor_name"] = doctor.Name
		}
		s.notifier.SendUser(ctx, c.PatientID, notify.TemplateConsentRevoked, patient.Email, data)
	}
	return nil
}

// ListMine returns the consents the caller participates in; admins may list
// for any user via the explicit variants.
func (s *Service) ListMine(ctx context.Context, limit, offset int) ([]*Consent, int, error) {
	actor := access.ActorFromContext(ctx)
	switch actor.Role {
	case auth.RoleDoctor:
		return s.repo.ListByDoctor(ctx, actor.ID, limit, offset)
	default:
		return s.repo.ListByPatient(ctx, actor.ID, limit, offset)
	}
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consent, int, error) {
	actor := access.ActorFromContext(ctx)
	if actor.Role != auth.RoleAdmin && actor.ID != patientID {
		return nil, 0, apperr.New(apperr.AccessDenied, "access denied")
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) participantOrAdmin(ctx context.Context, c *Consent) bool {
	actor := access.ActorFromContext(ctx)
	return actor.Role == auth.RoleAdmin || actor.ID == c.PatientID || actor.ID == c.DoctorID
}

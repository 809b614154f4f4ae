package profile

import (
	"context"

	"github.com/google/uuid"

	"github.com/healthvault/healthvault/internal/apperr"
	"github.com/healthvault/healthvault/internal/platform/access"
	"github.com/healthvault/healthvault/internal/platform/audit"
	"github.com/healthvault/healthvault/internal/platform/auth"
)

type Service struct {
	repo   Repository
	access *access.Evaluator
	audit  *audit.Recorder
}

func NewService(repo Repository, eval *access.Evaluator, rec *audit.Recorder) *Service {
	return &Service{repo: repo, access: eval, audit: rec}
}

// CreatePatientProfile creates the caller's own profile; admins may create
// one for any patient.
func (s *Service) CreatePatientProfile(ctx context.Context, p *PatientProfile) (*PatientProfile, error) {
	actor := access.ActorFromContext(ctx)
	if p.UserID == uuid.Nil {
		p.UserID = actor.ID
	}
	if actor.Role != auth.RoleAdmin && p.UserID != actor.ID {
		return nil, apperr.New(apperr.AccessDenied, "access denied")
	}

	if err := s.repo.CreatePatient(ctx, p); err != nil {
		return nil, err
	}
	s.record(ctx, actor, audit.ActionCreate, "patient_profile", p.ID)
	return p, nil
}

func (s *Service) GetPatientProfile(ctx context.Context, id uuid.UUID) (*PatientProfile, error) {
	p, err := s.repo.GetPatientByID(ctx, id)
	if err != nil {
		return nil, err
	}

	actor := access.ActorFromContext(ctx)
	if !s.access.Allowed(ctx, actor, access.ActionRead, p) {
		return nil, apperr.New(apperr.AccessDenied, "access denied")
	}
	s.record(ctx, actor, audit.ActionRead, "patient_profile", p.ID)
	return p, nil
}

func (s *Service) GetPatientProfileByUser(ctx context.Context, userID uuid.UUID) (*PatientProfile, error) {
	p, err := s.repo.GetPatientByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	actor := access.ActorFromContext(ctx)
	if !s.access.Allowed(ctx, actor, access.ActionRead, p) {
		return nil, apperr.New(apperr.AccessDenied, "access denied")
	}
	return p, nil
}

func (s *Service) UpdatePatientProfile(ctx context.Context, p *PatientProfile) (*PatientProfile, error) {
	existing, err := s.repo.GetPatientByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	actor := access.ActorFromContext(ctx)
	if !s.access.Allowed(ctx, actor, access.ActionWrite, existing) {
		return nil, apperr.New(apperr.AccessDenied, "access denied")
	}

	existing.FamilyHistory = p.FamilyHistory
	existing.RiskFactors = p.RiskFactors
	existing.InsuranceProvider = p.InsuranceProvider
	if err := s.repo.UpdatePatient(ctx, existing); err != nil {
		return nil, err
	}
	s.record(ctx, actor, audit.ActionUpdate, "patient_profile", existing.ID)
	return existing, nil
}

func (s *Service) DeletePatientProfile(ctx context.Context, id uuid.UUID) error {
	existing, err := s.repo.GetPatientByID(ctx, id)
	if err != nil {
		return err
	}

	actor := access.ActorFromContext(ctx)
	if !s.access.Allowed(ctx, actor, access.ActionWrite, existing) {
		return apperr.New(apperr.AccessDenied, "access denied")
	}
	if err := s.repo.DeletePatient(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, audit.ActionDelete, "patient_profile", id)
	return nil
}

// CreateDoctorProfile creates the caller's own profile; admins may create
// one for any doctor.
func (s *Service) CreateDoctorProfile(ctx context.Context, d *DoctorProfile) (*DoctorProfile, error) {
	actor := access.ActorFromContext(ctx)
	if d.UserID == uuid.Nil {
		d.UserID = actor.ID
	}
	if actor.Role != auth.RoleAdmin {
		if d.UserID != actor.ID || actor.Role != auth.RoleDoctor {
			return nil, apperr.New(apperr.AccessDenied, "access denied")
		}
	}

	if err := s.repo.CreateDoctor(ctx, d); err != nil {
		return nil, err
	}
	s.record(ctx, actor, audit.ActionCreate, "doctor_profile", d.ID)
	return d, nil
}

// GetDoctorProfile is readable by any authenticated user; the doctor
// directory is how patients find someone to grant consent to.
func (s *Service) GetDoctorProfile(ctx context.Context, id uuid.UUID) (*DoctorProfile, error) {
	return s.repo.GetDoctorByID(ctx, id)
}

func (s *Service) UpdateDoctorProfile(ctx context.Context, d *DoctorProfile) (*DoctorProfile, error) {
	existing, err := s.repo.GetDoctorByID(ctx, d.ID)
	if err != nil {
		return nil, err
	}

	actor := access.ActorFromContext(ctx)
	if actor.Role != auth.RoleAdmin && existing.UserID != actor.ID {
		return nil, apperr.New(apperr.AccessDenied, "access denied")
	}

	existing.Specialization = d.Specialization
	existing.LicenseNumber = d.LicenseNumber
	existing.HospitalAffiliation = d.HospitalAffiliation
	if err := s.repo.UpdateDoctor(ctx, existing); err != nil {
		return nil, err
	}
	s.record(ctx, actor, audit.ActionUpdate, "doctor_profile", existing.ID)
	return existing, nil
}

func (s *Service) DeleteDoctorProfile(ctx context.Context, id uuid.UUID) error {
	existing, err := s.repo.GetDoctorByID(ctx, id)
	if err != nil {
		return err
	}

	actor := access.ActorFromContext(ctx)
	if actor.Role != auth.RoleAdmin && existing.UserID != actor.ID {
		return apperr.New(apperr.AccessDenied, "access denied")
	}
	if err := s.repo.DeleteDoctor(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, audit.ActionDelete, "doctor_profile", id)
	return nil
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*DoctorProfile, int, error) {
	return s.repo.ListDoctors(ctx, limit, offset)
}

func (s *Service) record(ctx context.Context, actor access.Actor, action audit.Action, targetType string, id uuid.UUID) {
	s.audit.Record(ctx, audit.Event{
		ActorID:    actor.ID,
		Action:     action,
		TargetType: targetType,
		TargetID:   id.String(),
	})
}

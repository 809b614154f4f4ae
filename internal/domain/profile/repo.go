package profile

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Patient profiles
	CreatePatient(ctx context.Context, p *PatientProfile) error
	GetPatientByID(ctx context.Context, id uuid.UUID) (*PatientProfile, error)
	GetPatientByUser(ctx context.Context, userID uuid.UUID) (*PatientProfile, error)
	UpdatePatient(ctx context.Context, p *PatientProfile) error
	DeletePatient(ctx context.Context, id uuid.UUID) error

	// Doctor profiles
	CreateDoctor(ctx context.Context, d *DoctorProfile) error
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*DoctorProfile, error)
	GetDoctorByUser(ctx context.Context, userID uuid.UUID) (*DoctorProfile, error)
	UpdateDoctor(ctx context.Context, d *DoctorProfile) error
	DeleteDoctor(ctx context.Context, id uuid.UUID) error
	ListDoctors(ctx context.Context, limit, offset int) ([]*DoctorProfile, int, error)
}

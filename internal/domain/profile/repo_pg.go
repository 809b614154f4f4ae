package profile

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthvault/healthvault/internal/apperr"
	"github.com/healthvault/healthvault/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const patientCols = `id, user_id, family_history, risk_factors, insurance_provider, created_at, updated_at`

func (r *repoPG) CreatePatient(ctx context.Context, p *PatientProfile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO profile_patient (id, user_id, family_history, risk_factors, insurance_provider)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.UserID, p.FamilyHistory, p.RiskFactors, p.InsuranceProvider,
	)
	if isUniqueViolation(err) {
		return apperr.New(apperr.DuplicateKey, "patient profile already exists")
	}
	return err
}

func (r *repoPG) GetPatientByID(ctx context.Context, id uuid.UUID) (*PatientProfile, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM profile_patient WHERE id = $1`, id))
}

func (r *repoPG) GetPatientByUser(ctx context.Context, userID uuid.UUID) (*PatientProfile, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM profile_patient WHERE user_id = $1`, userID))
}

func (r *repoPG) UpdatePatient(ctx context.Context, p *PatientProfile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE profile_patient SET
			family_history = $2, risk_factors = $3, insurance_provider = $4, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.FamilyHistory, p.RiskFactors, p.InsuranceProvider,
	)
	return err
}

func (r *repoPG) DeletePatient(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM profile_patient WHERE id = $1`, id)
	return err
}

const doctorCols = `id, user_id, specialization, license_number, hospital_affiliation, created_at, updated_at`

func (r *repoPG) CreateDoctor(ctx context.Context, d *DoctorProfile) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO profile_doctor (id, user_id, specialization, license_number, hospital_affiliation)
		VALUES ($1, $2, $3, $4, $5)`,
		d.ID, d.UserID, d.Specialization, d.LicenseNumber, d.HospitalAffiliation,
	)
	if isUniqueViolation(err) {
		return apperr.New(apperr.DuplicateKey, "doctor profile or license number already exists")
	}
	return err
}

func (r *repoPG) GetDoctorByID(ctx context.Context, id uuid.UUID) (*DoctorProfile, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx,
		`SELECT `+doctorCols+` FROM profile_doctor WHERE id = $1`, id))
}

func (r *repoPG) GetDoctorByUser(ctx context.Context, userID uuid.UUID) (*DoctorProfile, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx,
		`SELECT `+doctorCols+` FROM profile_doctor WHERE user_id = $1`, userID))
}

func (r *repoPG) UpdateDoctor(ctx context.Context, d *DoctorProfile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE profile_doctor SET
			specialization = $2, license_number = $3, hospital_affiliation = $4, updated_at = NOW()
		WHERE id = $1`,
		d.ID, d.Specialization, d.LicenseNumber, d.HospitalAffiliation,
	)
	if isUniqueViolation(err) {
		return apperr.New(apperr.DuplicateKey, "license number already exists")
	}
	return err
}

func (r *repoPG) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM profile_doctor WHERE id = $1`, id)
	return err
}

func (r *repoPG) ListDoctors(ctx context.Context, limit, offset int) ([]*DoctorProfile, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM profile_doctor`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+doctorCols+` FROM profile_doctor ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var doctors []*DoctorProfile
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		doctors = append(doctors, d)
	}
	return doctors, total, rows.Err()
}

func scanPatient(row pgx.Row) (*PatientProfile, error) {
	p := &PatientProfile{}
	err := row.Scan(&p.ID, &p.UserID, &p.FamilyHistory, &p.RiskFactors, &p.InsuranceProvider, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "patient profile not found")
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func scanDoctor(row pgx.Row) (*DoctorProfile, error) {
	d := &DoctorProfile{}
	err := row.Scan(&d.ID, &d.UserID, &d.Specialization, &d.LicenseNumber, &d.HospitalAffiliation, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "doctor profile not found")
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

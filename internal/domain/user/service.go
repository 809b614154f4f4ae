package user

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/healthvault/healthvault/internal/apperr"
	"github.com/healthvault/healthvault/internal/platform/audit"
	"github.com/healthvault/healthvault/internal/platform/auth"
	"github.com/healthvault/healthvault/internal/platform/notify"
)

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const minPasswordLen = 8

// ResetTokenTTL is how long a password reset link stays valid.
const ResetTokenTTL = time.Hour

type Service struct {
	repo     Repository
	issuer   *auth.TokenIssuer
	audit    *audit.Recorder
	notifier *notify.Notifier
	resetURL string
	now      func() time.Time
}

// NewService constructs the user service. resetURL is the front-end page the
// reset link points at; the raw token is appended as a query parameter.
func NewService(repo Repository, issuer *auth.TokenIssuer, rec *audit.Recorder, notifier *notify.Notifier, resetURL string) *Service {
	return &Service{
		repo:     repo,
		issuer:   issuer,
		audit:    rec,
		notifier: notifier,
		resetURL: resetURL,
		now:      time.Now,
	}
}

// RegisterInput is the self-service sign-up payload. Sign-up always creates
// a patient account; doctor and admin accounts are provisioned by an admin.
type RegisterInput struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	return s.create(ctx, in, auth.RolePatient)
}

// CreateWithRole provisions an account with an explicit role. Admin only.
func (s *Service) CreateWithRole(ctx context.Context, in RegisterInput, role auth.Role) (*User, error) {
	if auth.RoleFromContext(ctx) != auth.RoleAdmin {
		return nil, apperr.New(apperr.AccessDenied, "access denied")
	}
	if !role.Valid() {
		return nil, apperr.Field("role", fmt.Sprintf("unknown role %q", role))
	}
	return s.create(ctx, in, role)
}

func (s *Service) create(ctx context.Context, in RegisterInput, role auth.Role) (*User, error) {
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if !emailRe.MatchString(in.Email) {
		return nil, apperr.Field("email", "a valid email address is required")
	}
	if len(in.Password) < minPasswordLen {
		return nil, apperr.Field("password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	u := &User{
		Email:        in.Email,
		PasswordHash: string(hash),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         role,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:    u.ID,
		Action:     audit.ActionCreate,
		TargetType: "user",
		TargetID:   u.ID.String(),
		Metadata:   map[string]string{"role": role.String()},
	})
	return u, nil
}

// LoginResult carries the issued token and its owner.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// Login verifies credentials and issues a signed token. Failures are
// deliberately indistinguishable: unknown email and wrong password return
// the same rejection.
func (s *Service) Login(ctx context.Context, email, password, tenantID string) (*LoginResult, error) {
	denied := apperr.New(apperr.AccessDenied, "invalid credentials")

	u, err := s.repo.GetByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, denied
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, denied
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, denied
	}

	token, expiresAt, err := s.issuer.Issue(u.ID, u.Role, u.Email, tenantID)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:    u.ID,
		Action:     audit.ActionLogin,
		TargetType: "user",
		TargetID:   u.ID.String(),
	})
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: u}, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, role auth.Role, limit, offset int) ([]*User, int, error) {
	if role != "" && !role.Valid() {
		return nil, 0, apperr.Field("role", fmt.Sprintf("unknown role %q", role))
	}
	return s.repo.List(ctx, role, limit, offset)
}

// ChangeRole moves a user to a new role. Role changes are admin privileged.
func (s *Service) ChangeRole(ctx context.Context, id uuid.UUID, role auth.Role) error {
	actor := auth.RoleFromContext(ctx)
	if actor != auth.RoleAdmin {
		return apperr.New(apperr.AccessDenied, "access denied")
	}
	if !role.Valid() {
		return apperr.Field("role", fmt.Sprintf("unknown role %q", role))
	}
	if err := s.repo.UpdateRole(ctx, id, role); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:    auth.UserIDFromContext(ctx),
		Action:     audit.ActionUpdate,
		TargetType: "user",
		TargetID:   id.String(),
		Metadata:   map[string]string{"role": role.String()},
	})
	return nil
}

// ForgotPassword starts a reset flow. The response is uniform whether or not
// the address exists, so the endpoint cannot be used to enumerate accounts.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.repo.GetByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil
		}
		return err
	}

	raw, hash, err := newResetToken()
	if err != nil {
		return fmt.Errorf("generating reset token: %w", err)
	}

	t := &ResetToken{
		UserID:    u.ID,
		TokenHash: hash,
		ExpiresAt: s.now().UTC().Add(ResetTokenTTL),
	}
	if err := s.repo.CreateResetToken(ctx, t); err != nil {
		return err
	}

	s.notifier.Send(ctx, notify.TemplatePasswordReset, u.Email, map[string]string{
		"reset_link": s.resetURL + "?token=" + raw,
	})
	return nil
}

// ResetPassword redeems a reset token. Tokens are single use and expire.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return apperr.Field("password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
	}

	t, err := s.repo.GetResetToken(ctx, hashToken(rawToken))
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return apperr.Field("token", "invalid or expired token")
		}
		return err
	}
	if !t.Usable(s.now().UTC()) {
		return apperr.Field("token", "invalid or expired token")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, t.UserID, string(hash)); err != nil {
		return err
	}
	if err := s.repo.MarkResetTokenUsed(ctx, t.ID); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:    t.UserID,
		Action:     audit.ActionUpdate,
		TargetType: "user",
		TargetID:   t.UserID.String(),
		Metadata:   map[string]string{"change": "password_reset"},
	})
	return nil
}

func newResetToken() (raw, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(buf)
	return raw, hashToken(raw), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

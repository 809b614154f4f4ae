package user

import (
	"context"

	"github.com/google/uuid"

	"github.com/healthvault/healthvault/internal/platform/auth"
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	UpdateRole(ctx context.Context, id uuid.UUID, role auth.Role) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	List(ctx context.Context, role auth.Role, limit, offset int) ([]*User, int, error)

	// Password reset tokens
	CreateResetToken(ctx context.Context, t *ResetToken) error
	GetResetToken(ctx context.Context, tokenHash string) (*ResetToken, error)
	MarkResetTokenUsed(ctx context.Context, id uuid.UUID) error
}

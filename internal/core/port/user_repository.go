package port

import (
	"context"
	"time"

	"github.com/annamusic/anna-api/internal/core/domain"
)

// UserFilter narrows directory listings.
type UserFilter struct {
	Role  string
	Limit int
}

// UserRepository persists accounts and the security bookkeeping attached to
// them. Implementations return repository.ErrNotFound when no row matches and
// repository.ErrDuplicate when a unique constraint is violated.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByResetTokenHash(ctx context.Context, tokenHash string) (*domain.User, error)
	List(ctx context.Context, filter UserFilter) ([]domain.User, error)

	UpdateProfile(ctx context.Context, user *domain.User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string, changedAt time.Time) error

	// IncrementFailedLogins bumps the failure counter in a single statement
	// and returns the post-increment value.
	IncrementFailedLogins(ctx context.Context, userID string) (int, error)
	// LockAccount sets lock_until and zeroes the failure counter together.
	LockAccount(ctx context.Context, userID string, until time.Time) error
	// ResetLoginCounters clears both the failure counter and any lock.
	ResetLoginCounters(ctx context.Context, userID string) error

	SetEmailOTP(ctx context.Context, userID, otpHash string, expires time.Time) error
	MarkEmailVerified(ctx context.Context, userID string) error

	SetResetTokenHash(ctx context.Context, userID, tokenHash string) error
	// ConsumeResetToken writes the new password hash and nulls the stored
	// token digest in one conditional update; ErrNotFound when the digest no
	// longer matches, which makes the token single-use under concurrency.
	ConsumeResetToken(ctx context.Context, userID, tokenHash, passwordHash string, changedAt time.Time) error
}

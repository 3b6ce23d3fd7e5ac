package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/annamusic/anna-api/internal/core/domain"
	"github.com/annamusic/anna-api/internal/core/port"
	"github.com/annamusic/anna-api/internal/infra/config"
	"github.com/annamusic/anna-api/internal/infra/logger"
	"github.com/annamusic/anna-api/internal/infra/security"
	"github.com/annamusic/anna-api/internal/repository"
)

var (
	// ErrUserNotFound indicates no account exists for the given e-mail.
	ErrUserNotFound = errors.New("user does not exist")
	// ErrInvalidCredentials indicates the password did not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked indicates the account is under an active lockout.
	ErrAccountLocked = errors.New("account locked")
	// ErrEmailNotVerified indicates login succeeded but the address is unverified.
	ErrEmailNotVerified = errors.New("email not verified")
)

// LockoutError reports an active lockout with the time left on it.
type LockoutError struct {
	Until      time.Time
	RetryAfter time.Duration
	JustLocked bool
}

// Error implements error.
func (e *LockoutError) Error() string {
	if e.JustLocked {
		return "account locked due to too many failed attempts"
	}
	return "account locked"
}

// Unwrap lets errors.Is match ErrAccountLocked.
func (e *LockoutError) Unwrap() error { return ErrAccountLocked }

// CredentialsError reports a failed password check with the attempts left
// before lockout.
type CredentialsError struct {
	AttemptsRemaining int
}

// Error implements error.
func (e *CredentialsError) Error() string { return "invalid credentials" }

// Unwrap lets errors.Is match ErrInvalidCredentials.
func (e *CredentialsError) Unwrap() error { return ErrInvalidCredentials }

// VerificationRequiredError reports that the account must verify its e-mail
// before a session is issued.
type VerificationRequiredError struct {
	UserID string
}

// Error implements error.
func (e *VerificationRequiredError) Error() string { return "email not verified" }

// Unwrap lets errors.Is match ErrEmailNotVerified.
func (e *VerificationRequiredError) Unwrap() error { return ErrEmailNotVerified }

// LoginResult carries the authenticated user and the freshly minted session
// material.
type LoginResult struct {
	User      domain.User
	Token     string
	CSRFToken string
	ExpiresAt time.Time
}

// AuthService coordinates login, logout, and session checks, including the
// progressive lockout applied to failed logins.
type AuthService struct {
	lockout  config.LockoutSettings
	users    port.UserRepository
	sessions *security.SessionIssuer
	audit    *AuditService
	events   port.EventPublisher
	codes    *VerificationService
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	lockout config.LockoutSettings,
	users port.UserRepository,
	sessions *security.SessionIssuer,
	audit *AuditService,
	events port.EventPublisher,
	codes *VerificationService,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		lockout:  lockout,
		users:    users,
		sessions: sessions,
		audit:    audit,
		events:   events,
		codes:    codes,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// Login validates credentials under the lockout policy and issues session
// material on success.
func (s *AuthService) Login(ctx context.Context, email, password string, meta RequestMeta) (*LoginResult, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	now := s.now().UTC()

	if until, locked := user.LockedUntil(now); locked {
		s.audit.Record(ctx, &user.ID, domain.AuditLoginBlocked, map[string]any{
			"reason":    "account locked",
			"lockUntil": until,
		}, meta)
		return nil, &LockoutError{Until: until, RetryAfter: until.Sub(now)}
	}

	// A lock that ran out is cleared lazily before the credential check, so
	// stale locks never shadow a valid login.
	if user.HasExpiredLock(now) {
		if err := s.users.ResetLoginCounters(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("clear expired lock: %w", err)
		}
		user.LockUntil = nil
		user.FailedLoginAttempts = 0
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, s.handleFailedAttempt(ctx, user, now, meta)
	}

	if user.FailedLoginAttempts > 0 || user.LockUntil != nil {
		if err := s.users.ResetLoginCounters(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("reset login counters: %w", err)
		}
	}

	// Correct credentials against an unverified address restart the
	// verification flow instead of opening a session.
	if !user.EmailVerified {
		if err := s.codes.IssueCode(ctx, user); err != nil {
			s.logger.Warn("reissue verification code failed",
				zap.String("email", logger.MaskEmail(user.Email)),
				zap.Error(err),
			)
		}
		return nil, &VerificationRequiredError{UserID: user.ID}
	}

	token, expiresAt, err := s.sessions.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	csrfToken, err := security.NewCSRFToken()
	if err != nil {
		return nil, fmt.Errorf("mint csrf token: %w", err)
	}

	s.audit.Record(ctx, &user.ID, domain.AuditLoginSuccess, nil, meta)

	sanitized := *user
	sanitized.PasswordHash = ""

	return &LoginResult{
		User:      sanitized,
		Token:     token,
		CSRFToken: csrfToken,
		ExpiresAt: expiresAt,
	}, nil
}

// handleFailedAttempt applies the lockout state machine after a password
// mismatch. The counter increment is a single SQL statement, so concurrent
// failures each observe a distinct post-increment value and exactly one of
// them crosses the threshold.
func (s *AuthService) handleFailedAttempt(ctx context.Context, user *domain.User, now time.Time, meta RequestMeta) error {
	attempts, err := s.users.IncrementFailedLogins(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("record failed login: %w", err)
	}

	if attempts >= s.lockout.MaxAttempts {
		until := now.Add(s.lockout.Duration)
		if err := s.users.LockAccount(ctx, user.ID, until); err != nil {
			return fmt.Errorf("lock account: %w", err)
		}

		s.audit.Record(ctx, &user.ID, domain.AuditAccountLocked, map[string]any{
			"reason":         "too many failed login attempts",
			"failedAttempts": attempts,
			"lockUntil":      until,
		}, meta)

		if err := s.events.PublishAccountLocked(ctx, domain.AccountLockedEvent{
			EventID:        uuid.NewString(),
			UserID:         user.ID,
			Email:          user.Email,
			FailedAttempts: attempts,
			LockedAt:       now,
			LockUntil:      until,
		}); err != nil {
			s.logger.Warn("publish account locked event failed",
				zap.String("email", logger.MaskEmail(user.Email)),
				zap.Error(err),
			)
		}

		return &LockoutError{Until: until, RetryAfter: s.lockout.Duration, JustLocked: true}
	}

	remaining := s.lockout.MaxAttempts - attempts
	s.audit.Record(ctx, &user.ID, domain.AuditLoginFailed, map[string]any{
		"failedAttempts":    attempts,
		"attemptsRemaining": remaining,
	}, meta)

	return &CredentialsError{AttemptsRemaining: remaining}
}

// Logout records the audit trail entry for a session teardown. userID is nil
// when the request carried no valid session.
func (s *AuthService) Logout(ctx context.Context, userID *string, meta RequestMeta) {
	s.audit.Record(ctx, userID, domain.AuditLogout, nil, meta)
}

// CheckAuth loads the session's user and mints a fresh CSRF token.
func (s *AuthService) CheckAuth(ctx context.Context, userID string) (*domain.User, string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrUserNotFound
		}
		return nil, "", fmt.Errorf("lookup user: %w", err)
	}

	csrfToken, err := security.NewCSRFToken()
	if err != nil {
		return nil, "", fmt.Errorf("mint csrf token: %w", err)
	}

	sanitized := *user
	sanitized.PasswordHash = ""
	return &sanitized, csrfToken, nil
}

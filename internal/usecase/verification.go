package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/annamusic/anna-api/internal/core/domain"
	"github.com/annamusic/anna-api/internal/core/port"
	"github.com/annamusic/anna-api/internal/infra/config"
	"github.com/annamusic/anna-api/internal/infra/logger"
	"github.com/annamusic/anna-api/internal/infra/security"
	"github.com/annamusic/anna-api/internal/repository"
)

const verificationCodeLength = 6

var (
	// ErrAlreadyVerified indicates the address was verified earlier.
	ErrAlreadyVerified = errors.New("email already verified")
	// ErrCodeExpired indicates no live verification code exists for the account.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrCodeMismatch indicates the submitted code does not match the stored digest.
	ErrCodeMismatch = errors.New("incorrect verification code")
)

// VerificationService issues and checks e-mail verification codes. Only the
// SHA-256 digest of a code is persisted; the plaintext goes out by mail and
// is never logged.
type VerificationService struct {
	users  port.UserRepository
	mailer port.Mailer
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewVerificationService constructs a VerificationService instance.
func NewVerificationService(users port.UserRepository, mailer port.Mailer, cfg config.OTPSettings, log *zap.Logger) *VerificationService {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &VerificationService{
		users:  users,
		mailer: mailer,
		ttl:    ttl,
		logger: log,
		now:    time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *VerificationService) WithClock(now func() time.Time) *VerificationService {
	if now != nil {
		s.now = now
	}
	return s
}

// IssueCode generates a fresh six-digit code, stores its digest with the
// configured expiry, and mails the plaintext. Mail delivery is best-effort:
// a failure is logged and the registration still stands, since the client
// can request a new code.
func (s *VerificationService) IssueCode(ctx context.Context, user *domain.User) error {
	code, err := security.GenerateNumericCode(verificationCodeLength)
	if err != nil {
		return fmt.Errorf("generate verification code: %w", err)
	}

	expires := s.now().UTC().Add(s.ttl)
	if err := s.users.SetEmailOTP(ctx, user.ID, security.HashToken(code), expires); err != nil {
		return fmt.Errorf("store verification code: %w", err)
	}

	if err := s.mailer.SendVerificationCode(ctx, user.Name, user.Email, code, expires); err != nil {
		s.logger.Warn("verification mail delivery failed",
			zap.String("email", logger.MaskEmail(user.Email)),
			zap.Error(err),
		)
	}

	return nil
}

// Resend issues a new code for an account that is not yet verified.
func (s *VerificationService) Resend(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	if user.EmailVerified {
		return ErrAlreadyVerified
	}

	return s.IssueCode(ctx, user)
}

// VerifyCode checks the submitted code against the stored digest and, on
// success, marks the address verified and clears both code columns in one
// update.
func (s *VerificationService) VerifyCode(ctx context.Context, userID, code string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	if user.EmailVerified {
		return ErrAlreadyVerified
	}

	now := s.now().UTC()
	if user.EmailOTPHash == nil || user.EmailOTPExpires == nil || user.EmailOTPExpires.Before(now) {
		return ErrCodeExpired
	}

	if !security.DigestsEqual(security.HashToken(code), *user.EmailOTPHash) {
		return ErrCodeMismatch
	}

	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}

	return nil
}

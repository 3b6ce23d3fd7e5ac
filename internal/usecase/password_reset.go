package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
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
	// ErrResetTokenInvalid indicates the token matches no outstanding request
	// or was already consumed.
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
	// ErrSamePassword indicates the new password equals the current one.
	ErrSamePassword = errors.New("new password must differ from the current password")
)

// PasswordResetService runs the forgot/reset flow. Tokens are persisted as
// SHA-256 digests and consumed by a conditional update, which makes each
// token single-use even under concurrent submissions.
type PasswordResetService struct {
	users       port.UserRepository
	mailer      port.Mailer
	passwords   *security.PasswordValidator
	sessions    *security.SessionIssuer
	audit       *AuditService
	events      port.EventPublisher
	tokenLength int
	resetBase   string
	logger      *zap.Logger
	now         func() time.Time
}

// NewPasswordResetService constructs a PasswordResetService instance.
func NewPasswordResetService(
	users port.UserRepository,
	mailer port.Mailer,
	passwords *security.PasswordValidator,
	sessions *security.SessionIssuer,
	audit *AuditService,
	events port.EventPublisher,
	resetCfg config.ResetSettings,
	smtpCfg config.SMTPSettings,
	log *zap.Logger,
) *PasswordResetService {
	tokenLength := resetCfg.TokenLength
	if tokenLength <= 0 {
		tokenLength = 32
	}

	return &PasswordResetService{
		users:       users,
		mailer:      mailer,
		passwords:   passwords,
		sessions:    sessions,
		audit:       audit,
		events:      events,
		tokenLength: tokenLength,
		resetBase:   smtpCfg.ResetBaseURL,
		logger:      log,
		now:         time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *PasswordResetService) WithClock(now func() time.Time) *PasswordResetService {
	if now != nil {
		s.now = now
	}
	return s
}

// InitiateReset issues a reset token for the account, if one exists. The
// caller receives the same nil result either way so responses cannot be used
// to probe which addresses are registered.
func (s *PasswordResetService) InitiateReset(ctx context.Context, email string, meta RequestMeta) error {
	normalized := domain.NormalizeEmail(email)
	if _, err := mail.ParseAddress(normalized); err != nil {
		return ErrInvalidEmail
	}

	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info("password reset requested for unknown address",
				zap.String("email", logger.MaskEmail(normalized)),
			)
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	token, err := security.GenerateSecureToken(s.tokenLength)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	if err := s.users.SetResetTokenHash(ctx, user.ID, security.HashToken(token)); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	link := fmt.Sprintf("%s?token=%s", s.resetBase, url.QueryEscape(token))
	if err := s.mailer.SendPasswordReset(ctx, user.Name, user.Email, link); err != nil {
		s.logger.Warn("reset mail delivery failed",
			zap.String("email", logger.MaskEmail(user.Email)),
			zap.Error(err),
		)
	}

	s.audit.Record(ctx, &user.ID, domain.AuditForgotPassword, nil, meta)

	return nil
}

// CompleteReset validates the token and the new password, rotates the
// credential, and issues fresh session material for the auto-login.
func (s *PasswordResetService) CompleteReset(ctx context.Context, token, newPassword string, meta RequestMeta) (*LoginResult, error) {
	if token == "" {
		return nil, ErrResetTokenInvalid
	}

	if err := s.passwords.Validate(newPassword); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	tokenHash := security.HashToken(token)
	user, err := s.users.GetByResetTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResetTokenInvalid
		}
		return nil, fmt.Errorf("lookup reset token: %w", err)
	}

	same, err := security.VerifyPassword(newPassword, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("compare password: %w", err)
	}
	if same {
		return nil, ErrSamePassword
	}

	passwordHash, err := security.HashPassword(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	if err := s.users.ConsumeResetToken(ctx, user.ID, tokenHash, passwordHash, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Another request consumed the token between lookup and update.
			return nil, ErrResetTokenInvalid
		}
		return nil, fmt.Errorf("consume reset token: %w", err)
	}

	s.audit.Record(ctx, &user.ID, domain.AuditResetPassword, nil, meta)

	if err := s.events.PublishPasswordChanged(ctx, domain.PasswordChangedEvent{
		EventID:   uuid.NewString(),
		UserID:    user.ID,
		Source:    "reset",
		ChangedAt: now,
	}); err != nil {
		s.logger.Warn("publish password changed event failed",
			zap.String("email", logger.MaskEmail(user.Email)),
			zap.Error(err),
		)
	}

	sessionToken, expiresAt, err := s.sessions.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	csrfToken, err := security.NewCSRFToken()
	if err != nil {
		return nil, fmt.Errorf("mint csrf token: %w", err)
	}

	sanitized := *user
	sanitized.PasswordHash = ""
	sanitized.ResetTokenHash = nil

	return &LoginResult{
		User:      sanitized,
		Token:     sessionToken,
		CSRFToken: csrfToken,
		ExpiresAt: expiresAt,
	}, nil
}

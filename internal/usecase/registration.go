package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/annamusic/anna-api/internal/core/domain"
	"github.com/annamusic/anna-api/internal/core/port"
	"github.com/annamusic/anna-api/internal/infra/logger"
	"github.com/annamusic/anna-api/internal/infra/security"
	"github.com/annamusic/anna-api/internal/repository"
)

var (
	// ErrUserExists indicates the e-mail address is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidEmail indicates the supplied address is not a valid e-mail.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrWeakPassword wraps the password policy violation details.
	ErrWeakPassword = errors.New("password does not meet policy")
)

// RegisterInput carries the fields accepted at sign-up.
type RegisterInput struct {
	Name           string
	Email          string
	Password       string
	Role           string
	ProfilePicture string
}

// RegistrationService creates accounts and kicks off e-mail verification.
type RegistrationService struct {
	users        port.UserRepository
	verification *VerificationService
	passwords    *security.PasswordValidator
	audit        *AuditService
	events       port.EventPublisher
	logger       *zap.Logger
	now          func() time.Time
}

// NewRegistrationService constructs a RegistrationService instance.
func NewRegistrationService(
	users port.UserRepository,
	verification *VerificationService,
	passwords *security.PasswordValidator,
	audit *AuditService,
	events port.EventPublisher,
	log *zap.Logger,
) *RegistrationService {
	return &RegistrationService{
		users:        users,
		verification: verification,
		passwords:    passwords,
		audit:        audit,
		events:       events,
		logger:       log,
		now:          time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	if now != nil {
		s.now = now
	}
	return s
}

// Register creates an unverified account, stores only the password digest,
// and issues the verification code. The returned user id is needed by the
// client to complete verification.
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput, meta RequestMeta) (string, error) {
	if input.Name == "" {
		return "", fmt.Errorf("name is required")
	}

	email := domain.NormalizeEmail(input.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrInvalidEmail
	}

	if err := s.passwords.Validate(input.Password); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:                  uuid.NewString(),
		Name:                input.Name,
		Email:               email,
		PasswordHash:        passwordHash,
		Role:                domain.ParseRole(input.Role),
		ProfilePicture:      input.ProfilePicture,
		EmailVerified:       false,
		PasswordLastChanged: now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return "", ErrUserExists
		}
		return "", fmt.Errorf("create user: %w", err)
	}

	if err := s.verification.IssueCode(ctx, user); err != nil {
		return "", fmt.Errorf("issue verification code: %w", err)
	}

	s.audit.Record(ctx, &user.ID, domain.AuditRegister, map[string]any{
		"email": email,
	}, meta)

	if err := s.events.PublishUserRegistered(ctx, domain.UserRegisteredEvent{
		EventID:      uuid.NewString(),
		UserID:       user.ID,
		Name:         user.Name,
		Email:        user.Email,
		RegisteredAt: now,
	}); err != nil {
		s.logger.Warn("publish user registered event failed",
			zap.String("email", logger.MaskEmail(user.Email)),
			zap.Error(err),
		)
	}

	return user.ID, nil
}

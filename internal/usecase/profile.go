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

// ErrWrongPassword indicates the current password check on a profile
// password change failed.
var ErrWrongPassword = errors.New("current password is incorrect")

// UpdateProfileInput carries the mutable profile fields. Empty strings leave
// the stored value untouched; a non-empty NewPassword triggers a credential
// rotation gated on OldPassword.
type UpdateProfileInput struct {
	Name           string
	Email          string
	About          string
	ProfilePicture string
	OldPassword    string
	NewPassword    string
}

// ProfileService serves profile reads and updates plus the admin directory.
type ProfileService struct {
	users     port.UserRepository
	passwords *security.PasswordValidator
	audit     *AuditService
	events    port.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewProfileService constructs a ProfileService instance.
func NewProfileService(
	users port.UserRepository,
	passwords *security.PasswordValidator,
	audit *AuditService,
	events port.EventPublisher,
	log *zap.Logger,
) *ProfileService {
	return &ProfileService{
		users:     users,
		passwords: passwords,
		audit:     audit,
		events:    events,
		logger:    log,
		now:       time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *ProfileService) WithClock(now func() time.Time) *ProfileService {
	if now != nil {
		s.now = now
	}
	return s
}

// GetProfile returns the user without secret material.
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	sanitized := *user
	sanitized.PasswordHash = ""
	return &sanitized, nil
}

// UpdateProfile applies field changes and an optional password rotation.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput, meta RequestMeta) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	changed := make([]string, 0, 4)

	if input.Name != "" && input.Name != user.Name {
		user.Name = input.Name
		changed = append(changed, "name")
	}
	if input.Email != "" {
		email := domain.NormalizeEmail(input.Email)
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, ErrInvalidEmail
		}
		if email != user.Email {
			user.Email = email
			changed = append(changed, "email")
		}
	}
	if input.About != "" && input.About != user.About {
		user.About = input.About
		changed = append(changed, "about")
	}
	if input.ProfilePicture != "" && input.ProfilePicture != user.ProfilePicture {
		user.ProfilePicture = input.ProfilePicture
		changed = append(changed, "profilePicture")
	}

	if len(changed) > 0 {
		if err := s.users.UpdateProfile(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return nil, ErrUserExists
			}
			return nil, fmt.Errorf("update profile: %w", err)
		}
	}

	if input.NewPassword != "" {
		if err := s.changePassword(ctx, user, input.OldPassword, input.NewPassword); err != nil {
			return nil, err
		}
		changed = append(changed, "password")
	}

	if len(changed) > 0 {
		s.audit.Record(ctx, &user.ID, domain.AuditUpdateProfile, map[string]any{
			"fields": changed,
		}, meta)
	}

	sanitized := *user
	sanitized.PasswordHash = ""
	return &sanitized, nil
}

func (s *ProfileService) changePassword(ctx context.Context, user *domain.User, oldPassword, newPassword string) error {
	ok, err := security.VerifyPassword(oldPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify current password: %w", err)
	}
	if !ok {
		return ErrWrongPassword
	}

	if err := s.passwords.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}
	if err := security.RequireDifferentFrom(oldPassword).Validate(newPassword); err != nil {
		return ErrSamePassword
	}

	passwordHash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	if err := s.users.UpdatePassword(ctx, user.ID, passwordHash, now); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	user.PasswordHash = passwordHash
	user.PasswordLastChanged = now

	if err := s.events.PublishPasswordChanged(ctx, domain.PasswordChangedEvent{
		EventID:   uuid.NewString(),
		UserID:    user.ID,
		Source:    "profile",
		ChangedAt: now,
	}); err != nil {
		s.logger.Warn("publish password changed event failed",
			zap.String("email", logger.MaskEmail(user.Email)),
			zap.Error(err),
		)
	}

	return nil
}

// ListUsers returns the directory for the admin view, newest first, without
// secret material.
func (s *ProfileService) ListUsers(ctx context.Context, filter port.UserFilter) ([]domain.User, error) {
	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

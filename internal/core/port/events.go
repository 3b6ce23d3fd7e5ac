package port

import (
	"context"

	"github.com/annamusic/anna-api/internal/core/domain"
)

// EventPublisher emits security lifecycle events for downstream consumers.
// Publishing is best-effort from the caller's point of view.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
}

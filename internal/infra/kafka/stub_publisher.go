package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/annamusic/anna-api/internal/core/domain"
	"github.com/annamusic/anna-api/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no
// brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishUserRegistered logs anna.user.registered events.
func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	payload := map[string]any{
		"user_id":       event.UserID,
		"name":          event.Name,
		"email":         event.Email,
		"registered_at": event.RegisteredAt,
		"metadata":      event.Metadata,
	}
	p.logEvent("anna.user.registered", event.UserID, event.RegisteredAt, payload)
	return nil
}

// PublishAccountLocked logs anna.user.account.locked events.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	payload := map[string]any{
		"user_id":         event.UserID,
		"email":           event.Email,
		"failed_attempts": event.FailedAttempts,
		"locked_at":       event.LockedAt,
		"lock_until":      event.LockUntil,
		"metadata":        event.Metadata,
	}
	p.logEvent("anna.user.account.locked", event.UserID, event.LockedAt, payload)
	return nil
}

// PublishPasswordChanged logs anna.user.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	payload := map[string]any{
		"user_id":    event.UserID,
		"source":     event.Source,
		"changed_at": event.ChangedAt,
		"metadata":   event.Metadata,
	}
	p.logEvent("anna.user.password.changed", event.UserID, event.ChangedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)

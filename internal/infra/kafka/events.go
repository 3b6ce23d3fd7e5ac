package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/annamusic/anna-api/internal/core/domain"
	"github.com/annamusic/anna-api/internal/core/port"
	"github.com/annamusic/anna-api/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata: map[string]string{
			"service":     p.appCfg.Name,
			"environment": p.appCfg.Env,
		},
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserRegistered publishes anna.user.registered events.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		UserID       string         `json:"user_id"`
		Name         string         `json:"name"`
		Email        string         `json:"email"`
		RegisteredAt time.Time      `json:"registered_at"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		UserID:       event.UserID,
		Name:         event.Name,
		Email:        event.Email,
		RegisteredAt: event.RegisteredAt.UTC(),
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, "anna.user.registered", event.UserID, event.RegisteredAt, payload)
}

// PublishAccountLocked publishes anna.user.account.locked events.
func (p *EventPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	payload := struct {
		UserID         string         `json:"user_id"`
		Email          string         `json:"email"`
		FailedAttempts int            `json:"failed_attempts"`
		LockedAt       time.Time      `json:"locked_at"`
		LockUntil      time.Time      `json:"lock_until"`
		Metadata       map[string]any `json:"metadata,omitempty"`
	}{
		UserID:         event.UserID,
		Email:          event.Email,
		FailedAttempts: event.FailedAttempts,
		LockedAt:       event.LockedAt.UTC(),
		LockUntil:      event.LockUntil.UTC(),
		Metadata:       event.Metadata,
	}

	return p.publish(ctx, event.EventID, "anna.user.account.locked", event.UserID, event.LockedAt, payload)
}

// PublishPasswordChanged publishes anna.user.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		UserID    string         `json:"user_id"`
		Source    string         `json:"source"`
		ChangedAt time.Time      `json:"changed_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		UserID:    event.UserID,
		Source:    event.Source,
		ChangedAt: event.ChangedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "anna.user.password.changed", event.UserID, event.ChangedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)

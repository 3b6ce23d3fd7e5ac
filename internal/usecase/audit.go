package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/annamusic/anna-api/internal/core/domain"
	"github.com/annamusic/anna-api/internal/core/port"
)

// RequestMeta carries the client attributes attached to every audit record.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
}

// AuditService records security transitions and serves the admin listing.
// Recording is best-effort: a failed append is logged and swallowed so the
// security operation that triggered it still completes.
type AuditService struct {
	logs   port.AuditRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewAuditService constructs an AuditService instance.
func NewAuditService(logs port.AuditRepository, logger *zap.Logger) *AuditService {
	return &AuditService{
		logs:   logs,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *AuditService) WithClock(now func() time.Time) *AuditService {
	if now != nil {
		s.now = now
	}
	return s
}

// Record appends one audit entry. userID may be nil for unauthenticated
// actors. Errors never propagate to the caller.
func (s *AuditService) Record(ctx context.Context, userID *string, action string, details map[string]any, meta RequestMeta) {
	entry := &domain.AuditLogEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    action,
		Details:   details,
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
		CreatedAt: s.now().UTC(),
	}

	if err := s.logs.Append(ctx, entry); err != nil {
		s.logger.Warn("audit append failed",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

// List returns audit entries for the admin view, newest first.
func (s *AuditService) List(ctx context.Context, filter port.AuditFilter) ([]domain.AuditLogEntry, error) {
	entries, err := s.logs.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return entries, nil
}

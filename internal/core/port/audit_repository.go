package port

import (
	"context"

	"github.com/annamusic/anna-api/internal/core/domain"
)

// AuditFilter narrows audit trail listings.
type AuditFilter struct {
	UserID string
	Action string
	Limit  int
	Skip   int
}

// AuditRepository appends and lists security audit records.
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditFilter) ([]domain.AuditLogEntry, error)
}

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/annamusic/anna-api/internal/core/domain"
	"github.com/annamusic/anna-api/internal/core/port"
)

func TestRecordAttachesRequestMeta(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	repo := &fakeAuditRepo{}
	svc := NewAuditService(repo, zaptest.NewLogger(t)).WithClock(testClock(now))

	userID := "user-1"
	svc.Record(context.Background(), &userID, domain.AuditLoginSuccess, map[string]any{"k": "v"}, testMeta)

	if len(repo.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.ID == "" {
		t.Error("expected generated entry id")
	}
	if entry.UserID == nil || *entry.UserID != userID {
		t.Errorf("user id = %v, want %q", entry.UserID, userID)
	}
	if entry.ClientIP != testMeta.ClientIP || entry.UserAgent != testMeta.UserAgent {
		t.Errorf("meta = %q/%q, want %q/%q", entry.ClientIP, entry.UserAgent, testMeta.ClientIP, testMeta.UserAgent)
	}
	if !entry.CreatedAt.Equal(now) {
		t.Errorf("created at = %v, want %v", entry.CreatedAt, now)
	}
}

func TestRecordSwallowsAppendFailure(t *testing.T) {
	repo := &fakeAuditRepo{appendErr: errors.New("db down")}
	svc := NewAuditService(repo, zaptest.NewLogger(t))

	// Must not panic or surface the error.
	svc.Record(context.Background(), nil, domain.AuditLogout, nil, testMeta)

	if len(repo.entries) != 0 {
		t.Errorf("entries = %d, want 0", len(repo.entries))
	}
}

func TestAuditListFiltersByAction(t *testing.T) {
	repo := &fakeAuditRepo{}
	svc := NewAuditService(repo, zaptest.NewLogger(t))

	svc.Record(context.Background(), nil, domain.AuditLoginFailed, nil, testMeta)
	svc.Record(context.Background(), nil, domain.AuditLoginSuccess, nil, testMeta)

	got, err := svc.List(context.Background(), port.AuditFilter{Action: domain.AuditLoginSuccess})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Action != domain.AuditLoginSuccess {
		t.Errorf("entries = %+v, want one LOGIN_SUCCESS", got)
	}
}

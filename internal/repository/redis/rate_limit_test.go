package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestRateLimitRepositoryCountsWithinWindow(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "anna:rate-limit"})

	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	for i := 0; i < 3; i++ {
		if err := repo.RecordAttempt(ctx, "auth_login_ip:203.0.113.7", now.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("record attempt %d: %v", i, err)
		}
	}

	count, err := repo.CountAttempts(ctx, "auth_login_ip:203.0.113.7", window, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("count attempts: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	count, err = repo.CountAttempts(ctx, "auth_login_ip:198.51.100.1", window, now)
	if err != nil {
		t.Fatalf("count other identifier: %v", err)
	}
	if count != 0 {
		t.Errorf("count for untouched identifier = %d, want 0", count)
	}
}

func TestRateLimitRepositoryTrimWindow(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "anna:rate-limit"})

	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	if err := repo.RecordAttempt(ctx, "id", now.Add(-30*time.Minute)); err != nil {
		t.Fatalf("record stale attempt: %v", err)
	}
	if err := repo.RecordAttempt(ctx, "id", now.Add(-time.Minute)); err != nil {
		t.Fatalf("record fresh attempt: %v", err)
	}

	if err := repo.TrimWindow(ctx, "id", window, now); err != nil {
		t.Fatalf("trim window: %v", err)
	}

	count, err := repo.CountAttempts(ctx, "id", window, now)
	if err != nil {
		t.Fatalf("count attempts: %v", err)
	}
	if count != 1 {
		t.Errorf("count after trim = %d, want 1", count)
	}
}

func TestRateLimitRepositoryOldestAttempt(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "anna:rate-limit"})

	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	_, found, err := repo.OldestAttempt(ctx, "id", window, now)
	if err != nil {
		t.Fatalf("oldest on empty set: %v", err)
	}
	if found {
		t.Error("expected no attempt in empty window")
	}

	first := now.Add(-10 * time.Minute)
	if err := repo.RecordAttempt(ctx, "id", first); err != nil {
		t.Fatalf("record first: %v", err)
	}
	if err := repo.RecordAttempt(ctx, "id", now.Add(-time.Minute)); err != nil {
		t.Fatalf("record second: %v", err)
	}

	oldest, found, err := repo.OldestAttempt(ctx, "id", window, now)
	if err != nil {
		t.Fatalf("oldest attempt: %v", err)
	}
	if !found {
		t.Fatal("expected an attempt inside the window")
	}
	if !oldest.Equal(first) {
		t.Errorf("oldest = %v, want %v", oldest, first)
	}
}

func TestRateLimitRepositoryAppliesTTL(t *testing.T) {
	client, server := newTestRedis(t)
	ttl := 30 * time.Minute
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "anna:rate-limit", TTL: ttl})

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if err := repo.RecordAttempt(context.Background(), "id", now); err != nil {
		t.Fatalf("record attempt: %v", err)
	}

	remaining := server.TTL("anna:rate-limit:id")
	if remaining <= 0 || remaining > ttl {
		t.Errorf("ttl = %v, want within (0, %v]", remaining, ttl)
	}
}

func TestRateLimitRepositoryRejectsBadWindow(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{})

	ctx := context.Background()
	now := time.Now()

	if _, err := repo.CountAttempts(ctx, "id", 0, now); err == nil {
		t.Error("CountAttempts accepted zero window")
	}
	if err := repo.TrimWindow(ctx, "id", -time.Second, now); err == nil {
		t.Error("TrimWindow accepted negative window")
	}
	if _, _, err := repo.OldestAttempt(ctx, "id", 0, now); err == nil {
		t.Error("OldestAttempt accepted zero window")
	}
}

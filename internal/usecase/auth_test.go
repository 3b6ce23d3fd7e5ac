package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/annamusic/anna-api/internal/core/domain"
	"github.com/annamusic/anna-api/internal/infra/config"
	"github.com/annamusic/anna-api/internal/infra/security"
)

var testMeta = RequestMeta{ClientIP: "203.0.113.7", UserAgent: "go-test"}

func testClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestUser(t *testing.T, password string) *domain.User {
	t.Helper()

	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.User{
		ID:                  "user-1",
		Name:                "Lena",
		Email:               "lena@example.com",
		PasswordHash:        hash,
		Role:                domain.RoleUser,
		EmailVerified:       true,
		PasswordLastChanged: now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func newTestSessionIssuer(t *testing.T) *security.SessionIssuer {
	t.Helper()

	issuer, err := security.NewSessionIssuer(config.SessionSettings{Secret: "test-secret", TTL: time.Hour})
	if err != nil {
		t.Fatalf("new session issuer: %v", err)
	}
	return issuer
}

func newTestAuthService(t *testing.T, users *fakeUserRepo, audit *fakeAuditRepo, events *stubEvents, now time.Time) *AuthService {
	t.Helper()

	return newTestAuthServiceWithMailer(t, users, audit, events, &stubMailer{}, now)
}

func newTestAuthServiceWithMailer(t *testing.T, users *fakeUserRepo, audit *fakeAuditRepo, events *stubEvents, mailer *stubMailer, now time.Time) *AuthService {
	t.Helper()

	log := zaptest.NewLogger(t)
	auditService := NewAuditService(audit, log).WithClock(testClock(now))
	codes := newTestVerificationService(t, users, mailer, now)
	lockout := config.LockoutSettings{MaxAttempts: 5, Duration: 2 * time.Minute}

	return NewAuthService(lockout, users, newTestSessionIssuer(t), auditService, events, codes, log).WithClock(testClock(now))
}

func TestLoginSuccess(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	user := newTestUser(t, "Str0ng!pass")
	users := newFakeUserRepo(user)
	audit := &fakeAuditRepo{}
	svc := newTestAuthService(t, users, audit, &stubEvents{}, now)

	result, err := svc.Login(context.Background(), user.Email, "Str0ng!pass", testMeta)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if result.Token == "" {
		t.Error("expected session token")
	}
	if result.CSRFToken == "" {
		t.Error("expected csrf token")
	}
	if result.User.PasswordHash != "" {
		t.Error("password hash leaked into login result")
	}
	if got := audit.actions(); len(got) != 1 || got[0] != domain.AuditLoginSuccess {
		t.Errorf("audit actions = %v, want [LOGIN_SUCCESS]", got)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc := newTestAuthService(t, newFakeUserRepo(), &fakeAuditRepo{}, &stubEvents{}, now)

	_, err := svc.Login(context.Background(), "nobody@example.com", "whatever1!A", testMeta)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestLoginWrongPasswordReportsAttemptsRemaining(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	user := newTestUser(t, "Str0ng!pass")
	users := newFakeUserRepo(user)
	audit := &fakeAuditRepo{}
	svc := newTestAuthService(t, users, audit, &stubEvents{}, now)

	for i, want := range []int{4, 3} {
		_, err := svc.Login(context.Background(), user.Email, "wrong-pass1!A", testMeta)

		var credErr *CredentialsError
		if !errors.As(err, &credErr) {
			t.Fatalf("attempt %d: err = %v, want CredentialsError", i+1, err)
		}
		if credErr.AttemptsRemaining != want {
			t.Errorf("attempt %d: attempts remaining = %d, want %d", i+1, credErr.AttemptsRemaining, want)
		}
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("attempt %d: error does not unwrap to ErrInvalidCredentials", i+1)
		}
	}

	if got := audit.actions(); len(got) != 2 || got[0] != domain.AuditLoginFailed {
		t.Errorf("audit actions = %v, want two LOGIN_FAILED entries", got)
	}
}

func TestLoginLocksAfterMaxAttempts(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	user := newTestUser(t, "Str0ng!pass")
	users := newFakeUserRepo(user)
	audit := &fakeAuditRepo{}
	events := &stubEvents{}
	svc := newTestAuthService(t, users, audit, events, now)

	var lastErr error
	for i := 0; i < 5; i++ {
		_, lastErr = svc.Login(context.Background(), user.Email, "wrong-pass1!A", testMeta)
	}

	var lockErr *LockoutError
	if !errors.As(lastErr, &lockErr) {
		t.Fatalf("err = %v, want LockoutError", lastErr)
	}
	if !lockErr.JustLocked {
		t.Error("expected JustLocked on the attempt that crossed the threshold")
	}
	if want := now.Add(2 * time.Minute); !lockErr.Until.Equal(want) {
		t.Errorf("lock until = %v, want %v", lockErr.Until, want)
	}

	stored, _ := users.GetByID(context.Background(), user.ID)
	if stored.FailedLoginAttempts != 0 {
		t.Errorf("failed attempts after lock = %d, want 0", stored.FailedLoginAttempts)
	}
	if stored.LockUntil == nil {
		t.Fatal("expected lock_until to be set")
	}

	if len(events.locked) != 1 {
		t.Fatalf("account locked events = %d, want 1", len(events.locked))
	}
	if events.locked[0].FailedAttempts != 5 {
		t.Errorf("event failed attempts = %d, want 5", events.locked[0].FailedAttempts)
	}

	actions := audit.actions()
	if len(actions) != 5 || actions[4] != domain.AuditAccountLocked {
		t.Errorf("audit actions = %v, want four LOGIN_FAILED then ACCOUNT_LOCKED", actions)
	}
}

func TestLoginBlockedWhileLocked(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	user := newTestUser(t, "Str0ng!pass")
	until := now.Add(90 * time.Second)
	user.LockUntil = &until
	users := newFakeUserRepo(user)
	audit := &fakeAuditRepo{}
	svc := newTestAuthService(t, users, audit, &stubEvents{}, now)

	_, err := svc.Login(context.Background(), user.Email, "Str0ng!pass", testMeta)

	var lockErr *LockoutError
	if !errors.As(err, &lockErr) {
		t.Fatalf("err = %v, want LockoutError", err)
	}
	if lockErr.JustLocked {
		t.Error("existing lock must not report JustLocked")
	}
	if lockErr.RetryAfter != 90*time.Second {
		t.Errorf("retry after = %v, want 90s", lockErr.RetryAfter)
	}
	if got := audit.actions(); len(got) != 1 || got[0] != domain.AuditLoginBlocked {
		t.Errorf("audit actions = %v, want [LOGIN_BLOCKED]", got)
	}
}

func TestLoginClearsExpiredLock(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	user := newTestUser(t, "Str0ng!pass")
	until := now.Add(-time.Second)
	user.LockUntil = &until
	users := newFakeUserRepo(user)
	svc := newTestAuthService(t, users, &fakeAuditRepo{}, &stubEvents{}, now)

	if _, err := svc.Login(context.Background(), user.Email, "Str0ng!pass", testMeta); err != nil {
		t.Fatalf("login after lock expiry: %v", err)
	}

	stored, _ := users.GetByID(context.Background(), user.ID)
	if stored.LockUntil != nil {
		t.Error("expired lock was not cleared")
	}
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	user := newTestUser(t, "Str0ng!pass")
	user.EmailVerified = false
	user.FailedLoginAttempts = 2
	users := newFakeUserRepo(user)
	mailer := &stubMailer{}
	svc := newTestAuthServiceWithMailer(t, users, &fakeAuditRepo{}, &stubEvents{}, mailer, now)

	_, err := svc.Login(context.Background(), user.Email, "Str0ng!pass", testMeta)

	var verifyErr *VerificationRequiredError
	if !errors.As(err, &verifyErr) {
		t.Fatalf("err = %v, want VerificationRequiredError", err)
	}
	if verifyErr.UserID != user.ID {
		t.Errorf("user id = %q, want %q", verifyErr.UserID, user.ID)
	}

	// Correct credentials reset the counter even when verification blocks login.
	stored, _ := users.GetByID(context.Background(), user.ID)
	if stored.FailedLoginAttempts != 0 {
		t.Errorf("failed attempts = %d, want 0", stored.FailedLoginAttempts)
	}

	// The blocked login restarts code delivery so the user can verify.
	if len(mailer.codes) != 1 {
		t.Fatalf("verification codes mailed = %d, want 1", len(mailer.codes))
	}
	if mailer.codes[0].email != user.Email {
		t.Errorf("code mailed to %q, want %q", mailer.codes[0].email, user.Email)
	}
	if stored.EmailOTPHash == nil || *stored.EmailOTPHash != security.HashToken(mailer.codes[0].code) {
		t.Error("stored digest does not match the mailed code")
	}
	if stored.EmailOTPExpires == nil || !stored.EmailOTPExpires.Equal(now.Add(10*time.Minute)) {
		t.Errorf("code expiry = %v, want %v", stored.EmailOTPExpires, now.Add(10*time.Minute))
	}
}

func TestLogoutRecordsAuditWithoutUser(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	audit := &fakeAuditRepo{}
	svc := newTestAuthService(t, newFakeUserRepo(), audit, &stubEvents{}, now)

	svc.Logout(context.Background(), nil, testMeta)

	if len(audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audit.entries))
	}
	if audit.entries[0].Action != domain.AuditLogout {
		t.Errorf("action = %q, want LOGOUT", audit.entries[0].Action)
	}
	if audit.entries[0].UserID != nil {
		t.Error("expected nil user id for anonymous logout")
	}
}

func TestCheckAuth(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	user := newTestUser(t, "Str0ng!pass")
	users := newFakeUserRepo(user)
	svc := newTestAuthService(t, users, &fakeAuditRepo{}, &stubEvents{}, now)

	got, csrfToken, err := svc.CheckAuth(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("check auth: %v", err)
	}
	if got.PasswordHash != "" {
		t.Error("password hash leaked")
	}
	if csrfToken == "" {
		t.Error("expected fresh csrf token")
	}

	if _, _, err := svc.CheckAuth(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/annamusic/anna-api/internal/infra/config"
	"github.com/annamusic/anna-api/internal/infra/security"
)

func newTestVerificationService(t *testing.T, users *fakeUserRepo, mailer *stubMailer, now time.Time) *VerificationService {
	t.Helper()
	return NewVerificationService(users, mailer, config.OTPSettings{TTL: 10 * time.Minute}, zaptest.NewLogger(t)).WithClock(testClock(now))
}

func TestIssueCodeStoresDigestAndMailsPlaintext(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	user := newTestUser(t, "Str0ng!pass")
	user.EmailVerified = false
	users := newFakeUserRepo(user)
	mailer := &stubMailer{}
	svc := newTestVerificationService(t, users, mailer, now)

	if err := svc.IssueCode(context.Background(), user); err != nil {
		t.Fatalf("issue code: %v", err)
	}

	if len(mailer.codes) != 1 {
		t.Fatalf("mails sent = %d, want 1", len(mailer.codes))
	}
	code := mailer.codes[0].code
	if len(code) != 6 {
		t.Fatalf("code length = %d, want 6", len(code))
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("code %q contains non-digit", code)
		}
	}

	stored, _ := users.GetByID(context.Background(), user.ID)
	if stored.EmailOTPHash == nil {
		t.Fatal("otp digest not stored")
	}
	if *stored.EmailOTPHash == code {
		t.Error("plaintext code was persisted")
	}
	if *stored.EmailOTPHash != security.HashToken(code) {
		t.Error("stored digest does not match mailed code")
	}
	if want := now.Add(10 * time.Minute); !stored.EmailOTPExpires.Equal(want) {
		t.Errorf("expiry = %v, want %v", stored.EmailOTPExpires, want)
	}
}

func TestIssueCodeSurvivesMailFailure(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	user := newTestUser(t, "Str0ng!pass")
	users := newFakeUserRepo(user)
	mailer := &stubMailer{err: errors.New("smtp down")}
	svc := newTestVerificationService(t, users, mailer, now)

	if err := svc.IssueCode(context.Background(), user); err != nil {
		t.Fatalf("issue code should swallow mail failure, got %v", err)
	}

	stored, _ := users.GetByID(context.Background(), user.ID)
	if stored.EmailOTPHash == nil {
		t.Error("otp digest should be stored even when mail fails")
	}
}

func TestVerifyCode(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	setup := func(t *testing.T, mutate func(*fakeUserRepo, string)) (*VerificationService, *fakeUserRepo, string) {
		user := newTestUser(t, "Str0ng!pass")
		user.EmailVerified = false
		users := newFakeUserRepo(user)
		mailer := &stubMailer{}
		svc := newTestVerificationService(t, users, mailer, now)

		stored, _ := users.GetByID(context.Background(), user.ID)
		if err := svc.IssueCode(context.Background(), stored); err != nil {
			t.Fatalf("issue code: %v", err)
		}
		if mutate != nil {
			mutate(users, user.ID)
		}
		return svc, users, mailer.codes[0].code
	}

	t.Run("success marks verified and clears code", func(t *testing.T) {
		svc, users, code := setup(t, nil)

		if err := svc.VerifyCode(context.Background(), "user-1", code); err != nil {
			t.Fatalf("verify: %v", err)
		}

		stored, _ := users.GetByID(context.Background(), "user-1")
		if !stored.EmailVerified {
			t.Error("email not marked verified")
		}
		if stored.EmailOTPHash != nil || stored.EmailOTPExpires != nil {
			t.Error("otp columns not cleared")
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		svc, _, code := setup(t, nil)
		if err := svc.VerifyCode(context.Background(), "missing", code); !errors.Is(err, ErrUserNotFound) {
			t.Errorf("err = %v, want ErrUserNotFound", err)
		}
	})

	t.Run("already verified", func(t *testing.T) {
		svc, _, code := setup(t, func(users *fakeUserRepo, id string) {
			users.users[id].EmailVerified = true
		})
		if err := svc.VerifyCode(context.Background(), "user-1", code); !errors.Is(err, ErrAlreadyVerified) {
			t.Errorf("err = %v, want ErrAlreadyVerified", err)
		}
	})

	t.Run("expired code", func(t *testing.T) {
		svc, _, code := setup(t, func(users *fakeUserRepo, id string) {
			past := now.Add(-time.Minute)
			users.users[id].EmailOTPExpires = &past
		})
		if err := svc.VerifyCode(context.Background(), "user-1", code); !errors.Is(err, ErrCodeExpired) {
			t.Errorf("err = %v, want ErrCodeExpired", err)
		}
	})

	t.Run("missing code", func(t *testing.T) {
		svc, _, _ := setup(t, func(users *fakeUserRepo, id string) {
			users.users[id].EmailOTPHash = nil
			users.users[id].EmailOTPExpires = nil
		})
		if err := svc.VerifyCode(context.Background(), "user-1", "123456"); !errors.Is(err, ErrCodeExpired) {
			t.Errorf("err = %v, want ErrCodeExpired", err)
		}
	})

	t.Run("wrong code", func(t *testing.T) {
		svc, _, code := setup(t, nil)
		wrong := "000000"
		if wrong == code {
			wrong = "000001"
		}
		if err := svc.VerifyCode(context.Background(), "user-1", wrong); !errors.Is(err, ErrCodeMismatch) {
			t.Errorf("err = %v, want ErrCodeMismatch", err)
		}
	})
}

func TestResend(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	user := newTestUser(t, "Str0ng!pass")
	user.EmailVerified = false
	users := newFakeUserRepo(user)
	mailer := &stubMailer{}
	svc := newTestVerificationService(t, users, mailer, now)

	if err := svc.Resend(context.Background(), user.ID); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if len(mailer.codes) != 1 {
		t.Fatalf("mails sent = %d, want 1", len(mailer.codes))
	}

	users.users[user.ID].EmailVerified = true
	if err := svc.Resend(context.Background(), user.ID); !errors.Is(err, ErrAlreadyVerified) {
		t.Errorf("err = %v, want ErrAlreadyVerified", err)
	}

	if err := svc.Resend(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

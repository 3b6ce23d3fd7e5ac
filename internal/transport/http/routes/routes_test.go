package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/annamusic/anna-api/internal/core/domain"
	"github.com/annamusic/anna-api/internal/core/port"
	"github.com/annamusic/anna-api/internal/infra/config"
	"github.com/annamusic/anna-api/internal/infra/kafka"
	"github.com/annamusic/anna-api/internal/infra/security"
	"github.com/annamusic/anna-api/internal/repository"
	"github.com/annamusic/anna-api/internal/transport/http/middleware"
	"github.com/annamusic/anna-api/internal/usecase"
)

func TestMain(m *testing.M) {
	// Light hashing parameters keep the suite fast.
	if err := security.ConfigureArgon2(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  8,
		KeyLength:   16,
	}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type memoryUserRepo struct {
	users map[string]*domain.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[string]*domain.User)}
}

func (r *memoryUserRepo) Create(_ context.Context, user *domain.User) error {
	for _, existing := range r.users {
		if existing.Email == domain.NormalizeEmail(user.Email) {
			return repository.ErrDuplicate
		}
	}
	stored := *user
	stored.Email = domain.NormalizeEmail(user.Email)
	r.users[user.ID] = &stored
	return nil
}

func (r *memoryUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *memoryUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	normalized := domain.NormalizeEmail(email)
	for _, user := range r.users {
		if user.Email == normalized {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memoryUserRepo) GetByResetTokenHash(_ context.Context, tokenHash string) (*domain.User, error) {
	for _, user := range r.users {
		if user.ResetTokenHash != nil && *user.ResetTokenHash == tokenHash {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memoryUserRepo) List(_ context.Context, filter port.UserFilter) ([]domain.User, error) {
	var out []domain.User
	for _, user := range r.users {
		if filter.Role != "" && string(user.Role) != filter.Role {
			continue
		}
		out = append(out, *user)
	}
	return out, nil
}

func (r *memoryUserRepo) UpdateProfile(_ context.Context, user *domain.User) error {
	stored, ok := r.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Name = user.Name
	stored.Email = domain.NormalizeEmail(user.Email)
	stored.About = user.About
	stored.ProfilePicture = user.ProfilePicture
	return nil
}

func (r *memoryUserRepo) UpdatePassword(_ context.Context, userID, passwordHash string, changedAt time.Time) error {
	stored, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.PasswordHash = passwordHash
	stored.PasswordLastChanged = changedAt
	return nil
}

func (r *memoryUserRepo) IncrementFailedLogins(_ context.Context, userID string) (int, error) {
	stored, ok := r.users[userID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	stored.FailedLoginAttempts++
	return stored.FailedLoginAttempts, nil
}

func (r *memoryUserRepo) LockAccount(_ context.Context, userID string, until time.Time) error {
	stored, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.LockUntil = &until
	stored.FailedLoginAttempts = 0
	return nil
}

func (r *memoryUserRepo) ResetLoginCounters(_ context.Context, userID string) error {
	stored, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.LockUntil = nil
	stored.FailedLoginAttempts = 0
	return nil
}

func (r *memoryUserRepo) SetEmailOTP(_ context.Context, userID, otpHash string, expires time.Time) error {
	stored, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	hash := otpHash
	stored.EmailOTPHash = &hash
	stored.EmailOTPExpires = &expires
	return nil
}

func (r *memoryUserRepo) MarkEmailVerified(_ context.Context, userID string) error {
	stored, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.EmailVerified = true
	stored.EmailOTPHash = nil
	stored.EmailOTPExpires = nil
	return nil
}

func (r *memoryUserRepo) SetResetTokenHash(_ context.Context, userID, tokenHash string) error {
	stored, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	hash := tokenHash
	stored.ResetTokenHash = &hash
	return nil
}

func (r *memoryUserRepo) ConsumeResetToken(_ context.Context, userID, tokenHash, passwordHash string, changedAt time.Time) error {
	stored, ok := r.users[userID]
	if !ok || stored.ResetTokenHash == nil || *stored.ResetTokenHash != tokenHash {
		return repository.ErrNotFound
	}
	stored.ResetTokenHash = nil
	stored.PasswordHash = passwordHash
	stored.PasswordLastChanged = changedAt
	stored.LockUntil = nil
	stored.FailedLoginAttempts = 0
	return nil
}

var _ port.UserRepository = (*memoryUserRepo)(nil)

type memoryAuditRepo struct {
	entries []domain.AuditLogEntry
}

func (r *memoryAuditRepo) Append(_ context.Context, entry *domain.AuditLogEntry) error {
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memoryAuditRepo) List(_ context.Context, _ port.AuditFilter) ([]domain.AuditLogEntry, error) {
	return r.entries, nil
}

var _ port.AuditRepository = (*memoryAuditRepo)(nil)

type mailboxEntry struct {
	email string
	code  string
}

type memoryMailbox struct {
	codes []mailboxEntry
}

func (m *memoryMailbox) SendVerificationCode(_ context.Context, _, email, code string, _ time.Time) error {
	m.codes = append(m.codes, mailboxEntry{email: email, code: code})
	return nil
}

func (m *memoryMailbox) SendPasswordReset(_ context.Context, _, _, _ string) error {
	return nil
}

var _ port.Mailer = (*memoryMailbox)(nil)

func newFlowRouter(t *testing.T) (*gin.Engine, *memoryMailbox) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zaptest.NewLogger(t)
	users := newMemoryUserRepo()
	mailbox := &memoryMailbox{}
	events := kafka.NewStubPublisher(log)
	validator := security.NewAccountPasswordValidator()

	issuer, err := security.NewSessionIssuer(config.SessionSettings{Secret: "test-secret", TTL: time.Hour})
	if err != nil {
		t.Fatalf("new session issuer: %v", err)
	}

	auditService := usecase.NewAuditService(&memoryAuditRepo{}, log)
	verification := usecase.NewVerificationService(users, mailbox, config.OTPSettings{TTL: 10 * time.Minute}, log)
	lockout := config.LockoutSettings{MaxAttempts: 5, Duration: 2 * time.Minute}
	auth := usecase.NewAuthService(lockout, users, issuer, auditService, events, verification, log)
	registration := usecase.NewRegistrationService(users, verification, validator, auditService, events, log)
	reset := usecase.NewPasswordResetService(users, mailbox, validator, issuer, auditService, events, config.ResetSettings{}, config.SMTPSettings{}, log)

	engine := Register(Dependencies{
		Config:   &config.AppConfig{},
		Logger:   log,
		Sessions: issuer,
		Services: ServiceSet{
			Auth:          auth,
			Registration:  registration,
			Verification:  verification,
			PasswordReset: reset,
			Profiles:      usecase.NewProfileService(users, validator, auditService, events, log),
			Catalog:       usecase.NewCatalogService(nil, nil),
			Audit:         auditService,
		},
	})

	return engine, mailbox
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any, decorate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if decorate != nil {
		decorate(req)
	}

	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, req)
	return rr
}

func cookieByName(t *testing.T, rr *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()

	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	t.Fatalf("response carries no %q cookie", name)
	return nil
}

// Walks the whole account lifecycle over the real route table: fetch a CSRF
// token, register, verify the mailed code, log in, and confirm the session.
func TestAccountLifecycleOverHTTP(t *testing.T) {
	engine, mailbox := newFlowRouter(t)

	rr := doJSON(t, engine, http.MethodGet, "/api/csrf-token", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("csrf-token status = %d, want 200", rr.Code)
	}
	var csrfResp struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &csrfResp); err != nil {
		t.Fatalf("decode csrf response: %v", err)
	}
	csrfCookie := cookieByName(t, rr, middleware.CSRFCookieName)
	if csrfCookie.Value != csrfResp.CSRFToken {
		t.Fatal("csrf cookie and body token differ")
	}

	withCSRF := func(req *http.Request) {
		req.Header.Set(middleware.CSRFHeaderName, csrfResp.CSRFToken)
		req.AddCookie(csrfCookie)
	}

	// A mutating call without the double-submit header is turned away.
	rr = doJSON(t, engine, http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Lena", "email": "lena@example.com", "password": "Str0ng!pass",
	}, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("register without csrf header status = %d, want 403", rr.Code)
	}

	rr = doJSON(t, engine, http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Lena", "email": "lena@example.com", "password": "Str0ng!pass",
	}, withCSRF)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want 201 (body %s)", rr.Code, rr.Body.String())
	}
	var registered struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &registered); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if registered.UserID == "" {
		t.Fatal("register response carries no user id")
	}
	if len(mailbox.codes) != 1 || mailbox.codes[0].email != "lena@example.com" {
		t.Fatalf("mailbox after register = %+v, want one code for lena@example.com", mailbox.codes)
	}

	// Logging in before verification is refused and re-triggers code delivery.
	rr = doJSON(t, engine, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "lena@example.com", "password": "Str0ng!pass",
	}, withCSRF)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("unverified login status = %d, want 403", rr.Code)
	}
	if len(mailbox.codes) != 2 {
		t.Fatalf("mailbox after unverified login = %d codes, want 2", len(mailbox.codes))
	}

	rr = doJSON(t, engine, http.MethodPost, "/api/auth/verify-otp", map[string]string{
		"userId": registered.UserID, "otp": mailbox.codes[len(mailbox.codes)-1].code,
	}, withCSRF)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify-otp status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, engine, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "lena@example.com", "password": "Str0ng!pass",
	}, withCSRF)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	var login struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	session := cookieByName(t, rr, middleware.SessionCookieName)
	if !session.HttpOnly {
		t.Error("authToken cookie must be HttpOnly")
	}
	if session.SameSite != http.SameSiteStrictMode {
		t.Errorf("authToken SameSite = %v, want Strict", session.SameSite)
	}
	if session.MaxAge != 3600 {
		t.Errorf("authToken MaxAge = %d, want 3600", session.MaxAge)
	}

	sessionCSRF := cookieByName(t, rr, middleware.CSRFCookieName)
	if sessionCSRF.HttpOnly {
		t.Error("csrfToken cookie must stay readable by the client")
	}
	if sessionCSRF.Value != login.CSRFToken {
		t.Error("csrfToken cookie and login body token differ")
	}

	if role := cookieByName(t, rr, middleware.RoleCookieName); role.Value != "user" {
		t.Errorf("userRole cookie = %q, want user", role.Value)
	}

	rr = doJSON(t, engine, http.MethodGet, "/api/auth/check-auth", nil, func(req *http.Request) {
		req.AddCookie(session)
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("check-auth status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	var checked struct {
		IsAuthenticated bool   `json:"isAuthenticated"`
		UserID          string `json:"userId"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &checked); err != nil {
		t.Fatalf("decode check-auth response: %v", err)
	}
	if !checked.IsAuthenticated {
		t.Error("check-auth reports unauthenticated for a live session")
	}
	if checked.UserID != registered.UserID {
		t.Errorf("check-auth user id = %q, want %q", checked.UserID, registered.UserID)
	}
}

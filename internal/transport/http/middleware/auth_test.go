package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/annamusic/anna-api/internal/core/domain"
	"github.com/annamusic/anna-api/internal/infra/config"
	"github.com/annamusic/anna-api/internal/infra/security"
)

func newTestIssuer(t *testing.T) *security.SessionIssuer {
	t.Helper()

	issuer, err := security.NewSessionIssuer(config.SessionSettings{Secret: "test-secret", TTL: time.Hour})
	if err != nil {
		t.Fatalf("new session issuer: %v", err)
	}
	return issuer
}

func issueTestToken(t *testing.T, issuer *security.SessionIssuer, role domain.Role) string {
	t.Helper()

	token, _, err := issuer.Issue(&domain.User{ID: "user-1", Email: "lena@example.com", Role: role})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func newAuthRouter(issuer *security.SessionIssuer) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	protected := router.Group("/", RequireAuth(issuer))
	protected.GET("/me", func(c *gin.Context) {
		userID, _ := GetAuthenticatedUserID(c)
		c.JSON(http.StatusOK, gin.H{"userId": userID})
	})
	protected.GET("/admin", RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	return router
}

func TestRequireAuthWithCookie(t *testing.T) {
	issuer := newTestIssuer(t)
	router := newAuthRouter(issuer)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: issueTestToken(t, issuer, domain.RoleUser)})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["userId"] != "user-1" {
		t.Errorf("userId = %q, want user-1", body["userId"])
	}
}

func TestRequireAuthWithBearerFallback(t *testing.T) {
	issuer := newTestIssuer(t)
	router := newAuthRouter(issuer)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, issuer, domain.RoleUser))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	router := newAuthRouter(newTestIssuer(t))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/me", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestRequireAuthRejectsExpiredToken(t *testing.T) {
	issuer := newTestIssuer(t)

	past := time.Now().Add(-2 * time.Hour)
	issuer.WithClock(func() time.Time { return past })
	token := issueTestToken(t, issuer, domain.RoleUser)
	issuer.WithClock(time.Now)

	router := newAuthRouter(issuer)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Message != "session expired" {
		t.Errorf("message = %q, want %q", resp.Message, "session expired")
	}
}

func TestRequireRole(t *testing.T) {
	issuer := newTestIssuer(t)
	router := newAuthRouter(issuer)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: issueTestToken(t, issuer, domain.RoleUser)})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d for user role, want 403", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: issueTestToken(t, issuer, domain.RoleAdmin)})

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d for admin role, want 200", rr.Code)
	}
}

package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/annamusic/anna-api/internal/infra/security"
)

// Cookie names shared between the session middleware and the handlers that
// set them.
const (
	SessionCookieName = "authToken"
	RoleCookieName    = "userRole"
	CSRFCookieName    = "csrfToken"
)

const (
	// RoleKey is the context key for the authenticated user's role.
	RoleKey = "role"
	// ClaimsKey is the context key for the parsed session claims.
	ClaimsKey = "claims"
)

// ErrorResponse matches the handlers.ErrorResponse structure.
type ErrorResponse struct {
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, message string) ErrorResponse {
	return ErrorResponse{
		Message: message,
		TraceID: GetTraceID(c),
	}
}

// sessionTokenFromRequest extracts the session token, preferring the cookie
// over a bearer header.
func sessionTokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie != "" {
		return cookie
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// RequireAuth validates the session cookie (or bearer token fallback) and
// stores the user's identity on the request context.
func RequireAuth(sessions *security.SessionIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionTokenFromRequest(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		claims, err := sessions.Parse(token)
		if err != nil {
			switch {
			case errors.Is(err, security.ErrSessionExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "session expired"))
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "invalid session"))
			}
			return
		}

		c.Set(UserIDKey, claims.Subject)
		c.Set(ClaimsKey, claims)
		c.Set(RoleKey, claims.Role)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.UserID = claims.Subject
		}

		c.Next()
	}
}

// RequireRole checks that the authenticated user holds any of the given roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roleVal, exists := c.Get(RoleKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		role, ok := roleVal.(string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				newErrorResponse(c, "invalid role format"))
			return
		}

		for _, required := range roles {
			if role == required {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden,
			newErrorResponse(c, "insufficient permissions"))
	}
}

// GetAuthenticatedUserID retrieves the user ID from context (helper for handlers).
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}

	if id, ok := userID.(string); ok {
		return id, true
	}

	return "", false
}

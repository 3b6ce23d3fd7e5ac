package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/annamusic/anna-api/internal/infra/security"
)

// CSRFHeaderName is the request header carrying the double-submit token.
const CSRFHeaderName = "X-CSRF-Token"

// CSRF enforces the double-submit cookie scheme on every state-changing
// request. POST, PUT, and DELETE must carry a header value equal to the
// csrfToken cookie; safe methods pass through untouched. The check runs
// before any session or business logic.
func CSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		header := c.GetHeader(CSRFHeaderName)
		cookie, err := c.Cookie(CSRFCookieName)
		if err != nil || header == "" || !security.DigestsEqual(header, cookie) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "Invalid CSRF token"))
			return
		}

		c.Next()
	}
}

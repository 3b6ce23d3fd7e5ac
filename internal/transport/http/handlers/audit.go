package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/annamusic/anna-api/internal/core/port"
	"github.com/annamusic/anna-api/internal/usecase"
)

// AuditHandler exposes the audit trail read endpoint. Admin only.
type AuditHandler struct {
	audit *usecase.AuditService
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(audit *usecase.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List returns audit entries newest first, optionally filtered by user or action.
func (h *AuditHandler) List(c *gin.Context) {
	filter := port.AuditFilter{
		UserID: c.Query("userId"),
		Action: c.Query("action"),
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid limit"))
			return
		}
		filter.Limit = limit
	}

	if raw := c.Query("skip"); raw != "" {
		skip, err := strconv.Atoi(raw)
		if err != nil || skip < 0 {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid skip"))
			return
		}
		filter.Skip = skip
	}

	entries, err := h.audit.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list audit logs"))
		return
	}

	out := make([]AuditLogResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, AuditLogResponse{
			ID:        entry.ID,
			UserID:    entry.UserID,
			UserEmail: entry.UserEmail,
			UserName:  entry.UserName,
			Action:    entry.Action,
			Details:   entry.Details,
			IPAddress: entry.ClientIP,
			UserAgent: entry.UserAgent,
			CreatedAt: entry.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, out)
}

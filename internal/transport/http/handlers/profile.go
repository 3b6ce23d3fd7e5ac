package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/annamusic/anna-api/internal/core/port"
	"github.com/annamusic/anna-api/internal/repository"
	"github.com/annamusic/anna-api/internal/transport/http/middleware"
	"github.com/annamusic/anna-api/internal/usecase"
)

// ProfileHandler exposes the profile and user directory endpoints.
type ProfileHandler struct {
	profiles *usecase.ProfileService
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(profiles *usecase.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// GetProfile returns the authenticated user's profile without the credential hash.
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	user, err := h.profiles.GetProfile(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "User not found"},
		}, http.StatusInternalServerError, "failed to load profile")
		return
	}

	c.JSON(http.StatusOK, newUserSummary(*user))
}

// UpdateProfile applies partial profile edits and an optional password change.
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid profile payload"))
		return
	}

	input := usecase.UpdateProfileInput{
		Name:           req.Name,
		Email:          req.Email,
		About:          req.About,
		ProfilePicture: req.ProfilePicture,
		OldPassword:    req.OldPassword,
		NewPassword:    req.NewPassword,
	}

	user, err := h.profiles.UpdateProfile(c.Request.Context(), userID, input, requestMeta(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "User not found"},
			{Err: usecase.ErrUserExists, Status: http.StatusBadRequest, Message: "Email already registered"},
			{Err: usecase.ErrInvalidEmail, Status: http.StatusBadRequest, Message: "Invalid email address"},
			{Err: usecase.ErrWrongPassword, Status: http.StatusUnauthorized, Message: "Current password is incorrect"},
			{Err: usecase.ErrWeakPassword, Status: http.StatusBadRequest, Message: "Password does not meet requirements"},
			{Err: usecase.ErrSamePassword, Status: http.StatusBadRequest, Message: "New password must differ from the old one"},
		}, http.StatusInternalServerError, "failed to update profile")
		return
	}

	c.JSON(http.StatusOK, newUserSummary(*user))
}

// ListUsers returns the user directory. Admin only.
func (h *ProfileHandler) ListUsers(c *gin.Context) {
	filter := port.UserFilter{
		Role: c.Query("role"),
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid limit"))
			return
		}
		filter.Limit = limit
	}

	users, err := h.profiles.ListUsers(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list users"))
		return
	}

	summaries := make([]UserSummary, 0, len(users))
	for _, user := range users {
		summaries = append(summaries, newUserSummary(user))
	}

	c.JSON(http.StatusOK, summaries)
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/annamusic/anna-api/internal/usecase"
)

// PasswordHandler exposes the forgot/reset password endpoints.
type PasswordHandler struct {
	reset *usecase.PasswordResetService
	auth  *AuthHandler
}

// NewPasswordHandler constructs PasswordHandler. The auth handler is reused
// for the cookie session established after a successful reset.
func NewPasswordHandler(reset *usecase.PasswordResetService, auth *AuthHandler) *PasswordHandler {
	return &PasswordHandler{
		reset: reset,
		auth:  auth,
	}
}

// ForgotPassword starts the reset flow. The response is identical whether or
// not the address belongs to an account.
func (h *PasswordHandler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email is required"))
		return
	}

	if err := h.reset.InitiateReset(c.Request.Context(), req.Email, requestMeta(c)); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidEmail, Status: http.StatusBadRequest, Message: "Invalid email address"},
		}, http.StatusInternalServerError, "failed to process request")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Please check your inbox to reset your password."})
}

// ResetPassword consumes a reset token, sets the new password, and logs the
// user straight in.
func (h *PasswordHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token and password are required"))
		return
	}

	result, err := h.reset.CompleteReset(c.Request.Context(), req.Token, req.Password, requestMeta(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrResetTokenInvalid, Status: http.StatusBadRequest, Message: "Invalid or expired reset token"},
			{Err: usecase.ErrWeakPassword, Status: http.StatusBadRequest, Message: "Password does not meet requirements"},
			{Err: usecase.ErrSamePassword, Status: http.StatusBadRequest, Message: "New password must differ from the old one"},
		}, http.StatusInternalServerError, "failed to reset password")
		return
	}

	h.auth.setSessionCookies(c, result)

	c.JSON(http.StatusOK, LoginResponse{
		Token:               result.Token,
		Role:                string(result.User.Role),
		PasswordLastChanged: result.User.PasswordLastChanged,
		CSRFToken:           result.CSRFToken,
	})
}

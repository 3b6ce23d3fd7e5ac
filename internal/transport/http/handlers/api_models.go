package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/annamusic/anna-api/internal/core/domain"
	"github.com/annamusic/anna-api/internal/transport/http/middleware"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, message string) ErrorResponse {
	return ErrorResponse{
		Message: message,
		TraceID: middleware.GetTraceID(c),
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserSummary describes the view of a user returned by the API.
type UserSummary struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	About          string    `json:"about,omitempty"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	EmailVerified  bool      `json:"emailVerified"`
	CreatedAt      time.Time `json:"createdAt"`
}

func newUserSummary(user domain.User) UserSummary {
	return UserSummary{
		ID:             user.ID,
		Name:           user.Name,
		Email:          user.Email,
		Role:           string(user.Role),
		About:          user.About,
		ProfilePicture: user.ProfilePicture,
		EmailVerified:  user.EmailVerified,
		CreatedAt:      user.CreatedAt,
	}
}

// RegisterRequest defines the account registration payload.
type RegisterRequest struct {
	Name           string `json:"name" binding:"required"`
	Email          string `json:"email" binding:"required"`
	Password       string `json:"password" binding:"required"`
	Role           string `json:"role"`
	ProfilePicture string `json:"profilePicture"`
}

// RegisterResponse contains the new account identifier for the verification step.
type RegisterResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// LoginRequest defines the login payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse describes the response returned for a successful login.
type LoginResponse struct {
	Token               string    `json:"token"`
	Role                string    `json:"role"`
	PasswordLastChanged time.Time `json:"passwordLastChanged"`
	CSRFToken           string    `json:"csrfToken"`
}

// LoginFailedResponse is returned on a wrong password while the account stays open.
type LoginFailedResponse struct {
	Message           string `json:"message"`
	AttemptsRemaining int    `json:"attemptsRemaining"`
	TraceID           string `json:"trace_id,omitempty"`
}

// LockedResponse is returned when the account is locked out.
type LockedResponse struct {
	Message   string    `json:"message"`
	LockUntil time.Time `json:"lockUntil"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// VerificationRequiredResponse is returned when credentials are valid but the email is unverified.
type VerificationRequiredResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// CheckAuthResponse reports the session state for cookie-bearing clients.
type CheckAuthResponse struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	Role            string `json:"role"`
	UserID          string `json:"userId"`
	CSRFToken       string `json:"csrfToken"`
}

// CSRFTokenResponse carries a freshly minted anti-forgery token.
type CSRFTokenResponse struct {
	CSRFToken string `json:"csrfToken"`
}

// VerifyOTPRequest holds the email verification payload.
type VerifyOTPRequest struct {
	UserID string `json:"userId" binding:"required"`
	OTP    string `json:"otp" binding:"required"`
}

// ResendOTPRequest asks for a fresh verification code.
type ResendOTPRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// ForgotPasswordRequest starts the password reset flow.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

// ResetPasswordRequest completes the password reset flow.
type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest carries the editable profile fields. Empty fields are left unchanged.
type UpdateProfileRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	About          string `json:"about"`
	ProfilePicture string `json:"profilePicture"`
	OldPassword    string `json:"oldPassword"`
	NewPassword    string `json:"newPassword"`
}

// SongRequest defines the payload for creating or updating a song.
type SongRequest struct {
	Title         string                `json:"title" binding:"required"`
	Instrument    string                `json:"instrument" binding:"required"`
	Lyrics        []domain.LyricSection `json:"lyrics"`
	ChordDiagrams []string              `json:"chordDiagrams"`
	Documents     []string              `json:"documents"`
}

// ToggleFavoriteRequest names the song to add or remove from the caller's favorites.
type ToggleFavoriteRequest struct {
	SongID string `json:"songId" binding:"required"`
}

// ToggleFavoriteResponse reports the resulting favorites set.
type ToggleFavoriteResponse struct {
	Added   bool     `json:"added"`
	SongIDs []string `json:"songIds"`
}

// AuditLogResponse is the read-side view of a single audit entry.
type AuditLogResponse struct {
	ID        string         `json:"id"`
	UserID    *string        `json:"userId,omitempty"`
	UserEmail *string        `json:"userEmail,omitempty"`
	UserName  *string        `json:"userName,omitempty"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	IPAddress string         `json:"ipAddress,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports per-dependency readiness.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

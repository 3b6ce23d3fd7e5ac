package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/annamusic/anna-api/internal/infra/security"
	"github.com/annamusic/anna-api/internal/transport/http/middleware"
	"github.com/annamusic/anna-api/internal/usecase"
)

const sessionCookieMaxAge = 3600

// CookieSettings controls how session cookies are written.
type CookieSettings struct {
	Domain string
	Secure bool
}

// AuthHandler exposes registration, login, and session endpoints.
type AuthHandler struct {
	auth         *usecase.AuthService
	registration *usecase.RegistrationService
	verification *usecase.VerificationService
	cookies      CookieSettings
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(
	auth *usecase.AuthService,
	registration *usecase.RegistrationService,
	verification *usecase.VerificationService,
	cookies CookieSettings,
) *AuthHandler {
	return &AuthHandler{
		auth:         auth,
		registration: registration,
		verification: verification,
		cookies:      cookies,
	}
}

func requestMeta(c *gin.Context) usecase.RequestMeta {
	return usecase.RequestMeta{
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

func (h *AuthHandler) setSessionCookies(c *gin.Context, result *usecase.LoginResult) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.SessionCookieName, result.Token, sessionCookieMaxAge, "/", h.cookies.Domain, h.cookies.Secure, true)
	c.SetCookie(middleware.RoleCookieName, string(result.User.Role), sessionCookieMaxAge, "/", h.cookies.Domain, h.cookies.Secure, false)
	c.SetCookie(middleware.CSRFCookieName, result.CSRFToken, sessionCookieMaxAge, "/", h.cookies.Domain, h.cookies.Secure, false)
}

func (h *AuthHandler) clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.SessionCookieName, "", -1, "/", h.cookies.Domain, h.cookies.Secure, true)
	c.SetCookie(middleware.RoleCookieName, "", -1, "/", h.cookies.Domain, h.cookies.Secure, false)
	c.SetCookie(middleware.CSRFCookieName, "", -1, "/", h.cookies.Domain, h.cookies.Secure, false)
}

// Register creates an account and kicks off email verification.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	input := usecase.RegisterInput{
		Name:           req.Name,
		Email:          req.Email,
		Password:       req.Password,
		Role:           req.Role,
		ProfilePicture: req.ProfilePicture,
	}

	userID, err := h.registration.Register(c.Request.Context(), input, requestMeta(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserExists, Status: http.StatusBadRequest, Message: "Email already registered"},
			{Err: usecase.ErrInvalidEmail, Status: http.StatusBadRequest, Message: "Invalid email address"},
			{Err: usecase.ErrWeakPassword, Status: http.StatusBadRequest, Message: "Password does not meet requirements"},
		}, http.StatusInternalServerError, "failed to register user")
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{
		Message: "Registration successful. Please verify your email.",
		UserID:  userID,
	})
}

// Login authenticates credentials and establishes the cookie session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, requestMeta(c))
	if err != nil {
		h.respondLoginError(c, err)
		return
	}

	h.setSessionCookies(c, result)

	c.JSON(http.StatusOK, LoginResponse{
		Token:               result.Token,
		Role:                string(result.User.Role),
		PasswordLastChanged: result.User.PasswordLastChanged,
		CSRFToken:           result.CSRFToken,
	})
}

func (h *AuthHandler) respondLoginError(c *gin.Context, err error) {
	var lockErr *usecase.LockoutError
	if errors.As(err, &lockErr) {
		seconds := int(math.Ceil(lockErr.RetryAfter.Seconds()))
		if seconds < 0 {
			seconds = 0
		}
		c.Header("Retry-After", strconv.Itoa(seconds))

		message := fmt.Sprintf("Account locked. Try again in %d seconds.", seconds)
		if lockErr.JustLocked {
			message = fmt.Sprintf("Account locked due to too many failed login attempts. Try again in %d seconds.", seconds)
		}

		c.JSON(http.StatusForbidden, LockedResponse{
			Message:   message,
			LockUntil: lockErr.Until,
			TraceID:   middleware.GetTraceID(c),
		})
		return
	}

	var credErr *usecase.CredentialsError
	if errors.As(err, &credErr) {
		c.JSON(http.StatusUnauthorized, LoginFailedResponse{
			Message:           "Invalid credentials",
			AttemptsRemaining: credErr.AttemptsRemaining,
			TraceID:           middleware.GetTraceID(c),
		})
		return
	}

	var verifyErr *usecase.VerificationRequiredError
	if errors.As(err, &verifyErr) {
		c.JSON(http.StatusForbidden, VerificationRequiredResponse{
			Message: "Please verify your email.",
			UserID:  verifyErr.UserID,
		})
		return
	}

	switch {
	case errors.Is(err, usecase.ErrUserNotFound):
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "User does not exist"))
	case errors.Is(err, usecase.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "Invalid credentials"))
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "authentication failed"))
	}
}

// Logout records the event and clears the cookie session. It never fails.
func (h *AuthHandler) Logout(c *gin.Context) {
	var userID *string
	if id, ok := middleware.GetAuthenticatedUserID(c); ok {
		userID = &id
	}

	h.auth.Logout(c.Request.Context(), userID, requestMeta(c))
	h.clearSessionCookies(c)

	c.JSON(http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// CheckAuth reports the session state and re-mints the anti-forgery token.
func (h *AuthHandler) CheckAuth(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	user, csrfToken, err := h.auth.CheckAuth(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, usecase.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid session"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to check session"))
		return
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.CSRFCookieName, csrfToken, sessionCookieMaxAge, "/", h.cookies.Domain, h.cookies.Secure, false)

	c.JSON(http.StatusOK, CheckAuthResponse{
		IsAuthenticated: true,
		Role:            string(user.Role),
		UserID:          user.ID,
		CSRFToken:       csrfToken,
	})
}

// VerifyOTP confirms the emailed verification code.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "userId and otp are required"))
		return
	}

	if err := h.verification.VerifyCode(c.Request.Context(), req.UserID, req.OTP); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "User not found"},
			{Err: usecase.ErrAlreadyVerified, Status: http.StatusBadRequest, Message: "Email already verified"},
			{Err: usecase.ErrCodeExpired, Status: http.StatusBadRequest, Message: "OTP expired. Please re-register."},
			{Err: usecase.ErrCodeMismatch, Status: http.StatusBadRequest, Message: "Incorrect OTP"},
		}, http.StatusInternalServerError, "failed to verify email")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Email verified successfully"})
}

// ResendOTP issues a fresh verification code for an unverified account.
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req ResendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "userId is required"))
		return
	}

	if err := h.verification.Resend(c.Request.Context(), req.UserID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "User not found"},
			{Err: usecase.ErrAlreadyVerified, Status: http.StatusBadRequest, Message: "Email already verified"},
		}, http.StatusInternalServerError, "failed to resend verification code")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Verification code sent"})
}

// CSRFToken mints the double-submit cookie for clients without a session yet.
func (h *AuthHandler) CSRFToken(c *gin.Context) {
	token, err := security.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to issue token"))
		return
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.CSRFCookieName, token, sessionCookieMaxAge, "/", h.cookies.Domain, h.cookies.Secure, false)

	c.JSON(http.StatusOK, CSRFTokenResponse{CSRFToken: token})
}

package domain

import "time"

// Audit actions recorded by the security subsystem. Values are stable and
// queryable; renaming one breaks stored history.
const (
	AuditRegister       = "REGISTER"
	AuditLoginSuccess   = "LOGIN_SUCCESS"
	AuditLoginFailed    = "LOGIN_FAILED"
	AuditLoginBlocked   = "LOGIN_BLOCKED"
	AuditAccountLocked  = "ACCOUNT_LOCKED"
	AuditLogout         = "LOGOUT"
	AuditForgotPassword = "FORGOT_PASSWORD"
	AuditResetPassword  = "RESET_PASSWORD"
	AuditUpdateProfile  = "UPDATE_PROFILE"
)

// AuditLogEntry is one append-only record of a security-relevant transition.
// UserID is nil when the actor could not be resolved (for example a logout
// without a valid session).
type AuditLogEntry struct {
	ID        string
	UserID    *string
	Action    string
	Details   map[string]any
	ClientIP  string
	UserAgent string
	CreatedAt time.Time

	// Populated on reads via join, never written.
	UserEmail *string
	UserName  *string
}

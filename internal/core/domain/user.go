package domain

import (
	"strings"
	"time"
)

// Role enumerates the access levels an account can hold.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole normalizes a stored role value, defaulting unknown input to RoleUser.
func ParseRole(value string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// User is an account row in the credential store. Secret material is kept
// only in digest form: the Argon2id password hash, the SHA-256 digest of the
// e-mail verification code, and the SHA-256 digest of an outstanding password
// reset token.
type User struct {
	ID                  string
	Name                string
	Email               string
	PasswordHash        string
	Role                Role
	About               string
	ProfilePicture      string
	EmailVerified       bool
	EmailOTPHash        *string
	EmailOTPExpires     *time.Time
	ResetTokenHash      *string
	FailedLoginAttempts int
	LockUntil           *time.Time
	PasswordLastChanged time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// LockedUntil reports whether the account is under an active lockout at the
// given instant, and if so when the lock expires.
func (u *User) LockedUntil(now time.Time) (time.Time, bool) {
	if u.LockUntil == nil || !u.LockUntil.After(now) {
		return time.Time{}, false
	}
	return *u.LockUntil, true
}

// HasExpiredLock reports whether a previously applied lock has run out and
// should be cleared before the next credential check.
func (u *User) HasExpiredLock(now time.Time) bool {
	return u.LockUntil != nil && !u.LockUntil.After(now)
}

// NormalizeEmail lower-cases and trims an address so equality checks and the
// unique index behave case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

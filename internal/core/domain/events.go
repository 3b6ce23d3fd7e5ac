package domain

import "time"

// UserRegisteredEvent announces a newly created account.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Name         string
	Email        string
	RegisteredAt time.Time
	Metadata     map[string]any
}

// AccountLockedEvent announces that repeated failed logins locked an account.
type AccountLockedEvent struct {
	EventID        string
	UserID         string
	Email          string
	FailedAttempts int
	LockedAt       time.Time
	LockUntil      time.Time
	Metadata       map[string]any
}

// PasswordChangedEvent announces a credential rotation. Source is "reset" for
// the token flow and "profile" for an authenticated change.
type PasswordChangedEvent struct {
	EventID   string
	UserID    string
	Source    string
	ChangedAt time.Time
	Metadata  map[string]any
}

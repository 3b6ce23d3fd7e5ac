package port

import (
	"context"
	"time"
)

// Mailer delivers transactional account mail. Implementations must not leak
// plaintext codes or tokens into their error values.
type Mailer interface {
	SendVerificationCode(ctx context.Context, name, email, code string, expiresAt time.Time) error
	SendPasswordReset(ctx context.Context, name, email, resetLink string) error
}

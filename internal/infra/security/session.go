package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/annamusic/anna-api/internal/core/domain"
	"github.com/annamusic/anna-api/internal/infra/config"
)

var (
	// ErrInvalidSession indicates the token failed signature or claim checks.
	ErrInvalidSession = errors.New("invalid session token")
	// ErrSessionExpired indicates the token was valid but past its expiry.
	ErrSessionExpired = errors.New("session token expired")
)

// SessionClaims are the claims carried by a session token.
type SessionClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// SessionIssuer mints and verifies HS256 session tokens. The signing secret
// is injected from configuration; nothing here reads the environment.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionIssuer constructs a session issuer from config.
func NewSessionIssuer(cfg config.SessionSettings) (*SessionIssuer, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("session secret is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &SessionIssuer{
		secret: []byte(cfg.Secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// WithClock overrides the time source, for tests.
func (s *SessionIssuer) WithClock(now func() time.Time) *SessionIssuer {
	if now != nil {
		s.now = now
	}
	return s
}

// TTL returns the configured session lifetime.
func (s *SessionIssuer) TTL() time.Duration {
	return s.ttl
}

// Issue mints a signed session token for the user and returns it with its
// expiry instant.
func (s *SessionIssuer) Issue(user *domain.User) (string, time.Time, error) {
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)

	claims := SessionClaims{
		Email: user.Email,
		Role:  string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}

	return signed, expiresAt, nil
}

// Parse verifies a session token and returns its claims.
func (s *SessionIssuer) Parse(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidSession
	}

	return claims, nil
}

// NewCSRFToken mints a fresh random value for the double-submit cookie.
func NewCSRFToken() (string, error) {
	return GenerateSecureToken(32)
}

package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// GenerateNumericCode returns a uniformly random decimal code of the given
// length. Leading zeros are valid output.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("numeric code length must be positive")
	}

	digits := make([]byte, length)
	buf := make([]byte, 1)
	for i := 0; i < length; {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate numeric code: %w", err)
		}
		// Rejection sampling keeps each digit uniform.
		if buf[0] >= 250 {
			continue
		}
		digits[i] = '0' + buf[0]%10
		i++
	}

	return string(digits), nil
}

// GenerateSecureToken returns an opaque URL-safe token with byteLength bytes
// of entropy.
func GenerateSecureToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("token byte length must be positive")
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secure token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the hex-encoded SHA-256 digest of a secret. Only digests
// are persisted; the plaintext leaves the process exactly once, in mail.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// DigestsEqual compares two digests in constant time.
func DigestsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

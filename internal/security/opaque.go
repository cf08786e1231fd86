package security

import (
	"crypto/rand"
	"encoding/base64"
)

// GenerateOpaqueToken returns a URL-safe random token for password-reset and
// magic-link emails. 32 bytes of entropy, so brute force is not a concern.
func GenerateOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashOpaqueToken stores reset and magic-link tokens the same way refresh
// tokens are stored: only the hash reaches the database.
func HashOpaqueToken(token string) string {
	return HashRefreshToken(token)
}

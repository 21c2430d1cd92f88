package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// NewActionToken mints the raw value for a single-use token (password
// reset, email verification). 32 random bytes; the raw value travels to
// the user once and is never persisted.
func NewActionToken() (string, error) {
	buf := make([]byte, 32)

	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashActionToken is the digest stored in the DB. The raw value already
// carries 256 bits of entropy, so an unkeyed SHA-256 is enough to make a
// stolen table useless.
func HashActionToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))

	return hex.EncodeToString(sum[:])
}

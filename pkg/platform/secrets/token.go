// Package secrets issues operator tokens and keeps only their bcrypt hashes
// in configuration.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	dErrors "ssot/pkg/domain-errors"
)

const tokenBytes = 32

// NewToken returns a random URL-safe operator token.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the bcrypt hash to store as ADMIN_API_TOKEN_HASH.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", dErrors.NewField(dErrors.CodeValidation, "token", "token cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.NewField(dErrors.CodeValidation, "token", "token is too long")
		}
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(hashed), nil
}

// TokenMatches reports whether token hashes to hash. A malformed hash never
// matches.
func TokenMatches(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

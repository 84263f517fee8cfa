package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// NewState returns a random state parameter for an authorization request.
// It encodes 32 random bytes, which yields 43 base64url characters; some
// servers reject states shorter than 32 characters.
func NewState() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

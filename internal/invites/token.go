package invites

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	TokenPrefix = "nxi_"
	TokenBytes  = 32
)

// GenerateToken returns a high-entropy invitation token. The token is
// stored as issued: the client contract returns it inside every
// invitation payload, so there is no hash-at-rest indirection.
func GenerateToken() (string, error) {
	randomBytes := make([]byte, TokenBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return TokenPrefix + base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

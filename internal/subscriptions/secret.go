package subscriptions

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// secretBytes is the entropy of a subscription secret. Hex encoding doubles
// the length of the stored value.
const secretBytes = 32

// NewSecret generates the random secret used to sign deliveries for a
// subscription. It is returned to the caller exactly once, at creation.
func NewSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate subscription secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

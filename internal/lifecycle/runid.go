package lifecycle

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const runIDBytes = 16

// NewRunID returns 128 random bits as 32 lowercase hex characters.
func NewRunID() (string, error) {
	b := make([]byte, runIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate run id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

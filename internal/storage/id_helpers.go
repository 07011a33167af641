package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const idLength = 32

func generateID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// IsValidID reports whether a path parameter looks like a record id. Ids
// are 16 random bytes hex-encoded, so anything else is rejected before the
// store is consulted.
func IsValidID(id string) bool {
	if len(id) != idLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}

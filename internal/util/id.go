package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random 24-character hex string, used for request ids.
func NewID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "id-unknown"
	}
	return hex.EncodeToString(b[:])
}

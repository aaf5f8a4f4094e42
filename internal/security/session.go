package security

import (
	"github.com/google/uuid"
)

// GenerateSessionID creates a new UUID for session identification
func GenerateSessionID() string {
	return uuid.New().String()
}

// GenerateDeviceID creates an id for a client that did not send one
func GenerateDeviceID() string {
	return "dev-" + uuid.New().String()
}

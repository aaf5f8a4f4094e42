package handlers

import "time"

const (
	maxBodyBytes = 1 << 20

	// DefaultIdleTimeout is how long an untouched session is kept
	DefaultIdleTimeout = 30 * time.Minute

	ErrInvalidJSON         = "Invalid request body"
	ErrUnauthorized        = "Unauthorized"
	ErrSessionNotFound     = "Session not found"
	ErrContestNotFound     = "Contest not found"
	ErrTooManyRequests     = "Too many requests"
	ErrInternalServerError = "Internal server error"
)

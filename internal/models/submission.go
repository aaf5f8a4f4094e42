package models

import (
	"encoding/json"
	"time"
)

// QueuedSubmission is a telemetry payload waiting for redelivery
type QueuedSubmission struct {
	// Owner is the user whose token can deliver the payload; empty when
	// only a collector-wide token can
	Owner      string          `json:"owner,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	RetryCount int             `json:"retryCount"`
}

// LanguageScore is the latest score captured for a language
type LanguageScore struct {
	Language string `json:"language"`
	Score    int    `json:"score"`
}

// ScoreSubmission reports contest progress to the score service
type ScoreSubmission struct {
	ContestID string          `json:"contestId"`
	Username  string          `json:"username"`
	Scores    []LanguageScore `json:"scores"`
	IsFinal   bool            `json:"isFinal"`
}

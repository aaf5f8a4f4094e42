package models

import "time"

// RoundStatus is the lifecycle stage reported with a telemetry payload
type RoundStatus string

const (
	RoundStatusStarted   RoundStatus = "started"
	RoundStatusCompleted RoundStatus = "completed"
	RoundStatusAbandoned RoundStatus = "abandoned"
)

// WrongAttempt records an incorrect pairing for an item
type WrongAttempt struct {
	MatchedWithID string    `json:"matchedWithId"`
	Timestamp     time.Time `json:"timestamp"`
}

// ItemInteractionMetric tracks how a player interacted with one item
type ItemInteractionMetric struct {
	ItemID             string         `json:"itemId"`
	HintFlipCount      int            `json:"hintFlipCount"`
	WrongAttempts      []WrongAttempt `json:"wrongAttempts"`
	MatchTimestamp     *time.Time     `json:"matchTimestamp,omitempty"`
	TimeToMatchSeconds *float64       `json:"timeToMatchSeconds,omitempty"`
}

// FocusLossEvent is one period during which the game was hidden
type FocusLossEvent struct {
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds float64   `json:"durationSeconds"`
}

// BehavioralMetrics captures tab and focus changes during a segment
type BehavioralMetrics struct {
	TabSwitchCount        int              `json:"tabSwitchCount"`
	FocusLossEvents       []FocusLossEvent `json:"focusLossEvents"`
	VisibilityChangeCount int              `json:"visibilityChangeCount"`
}

// RapidGuessPattern is a run of implausibly fast consecutive matches
type RapidGuessPattern struct {
	ItemIDs            []string  `json:"itemIds"`
	AverageTimeSeconds float64   `json:"averageTimeSeconds"`
	StartTimestamp     time.Time `json:"startTimestamp"`
}

// AntiCheatMetrics holds heuristic signals for one segment
type AntiCheatMetrics struct {
	CopyPasteAttempts  int                 `json:"copyPasteAttempts"`
	RapidGuessPatterns []RapidGuessPattern `json:"rapidGuessPatterns"`
	SuspicionScore     int                 `json:"suspicionScore"`
}

// DeviceInfo describes the client that produced the telemetry
type DeviceInfo struct {
	DeviceID       string `json:"deviceId,omitempty"`
	UserAgent      string `json:"userAgent,omitempty"`
	Platform       string `json:"platform,omitempty"`
	ScreenSize     string `json:"screenSize,omitempty"`
	ConnectionType string `json:"connectionType,omitempty"`
}

// TelemetryPayload is the body posted to the telemetry collector
type TelemetryPayload struct {
	ContestID             string                  `json:"contestId"`
	UserID                string                  `json:"userId"`
	SessionID             string                  `json:"sessionId"`
	Language              string                  `json:"language"`
	LevelSeq              int                     `json:"levelSeq"`
	RoundNumber           int                     `json:"roundNumber"`
	RoundStatus           RoundStatus             `json:"roundStatus"`
	ItemIDs               []string                `json:"itemIds"`
	ItemMetrics           []ItemInteractionMetric `json:"itemMetrics"`
	TotalElapsedSeconds   float64                 `json:"totalElapsedSeconds"`
	ScoreAchieved         int                     `json:"scoreAchieved"`
	Behavioral            BehavioralMetrics       `json:"behavioralMetrics"`
	Device                DeviceInfo              `json:"deviceInfo"`
	AntiCheat             AntiCheatMetrics        `json:"antiCheatMetrics"`
	StartedAt             string                  `json:"startedAt"`
	CompletedAt           string                  `json:"completedAt,omitempty"`
	// TimezoneOffsetMinutes is minutes east of UTC (UTC+2 is 120), the
	// opposite sign of a browser's Date.getTimezoneOffset
	TimezoneOffsetMinutes int                     `json:"timezoneOffsetMinutes"`
}

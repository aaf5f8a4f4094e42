package telemetry

import (
	"time"

	"langclash/internal/models"
)

// MaxSuspicion caps the anti-cheat suspicion score
const MaxSuspicion = 100

// Config tunes the anti-cheat heuristics
type Config struct {
	// RapidGuessWindow is how many consecutive matches form a run; the
	// gaps between them are averaged. Values below 2 are treated as 2.
	RapidGuessWindow int
	// RapidGuessThreshold is the mean gap under which a run is flagged
	RapidGuessThreshold time.Duration
	RapidGuessIncrement int
	CopyPasteIncrement  int
	TabSwitchIncrement  int
}

// DefaultConfig returns the standard heuristic settings
func DefaultConfig() Config {
	return Config{
		RapidGuessWindow:    3,
		RapidGuessThreshold: 500 * time.Millisecond,
		RapidGuessIncrement: 20,
		CopyPasteIncrement:  10,
		TabSwitchIncrement:  5,
	}
}

// Identity holds the fields without which nothing is flushed
type Identity struct {
	ContestID string
	UserID    string
	SessionID string
	AuthToken string
}

// Complete reports whether every required identity field is present
func (id Identity) Complete() bool {
	return id.SessionID != "" && id.UserID != "" && id.AuthToken != ""
}

// Recorder accumulates play metrics for the active segment. It keeps a
// single segment: StartSegment discards whatever was not flushed.
type Recorder struct {
	cfg      Config
	now      func() time.Time
	identity Identity
	device   models.DeviceInfo

	segment    models.Segment
	startedAt  time.Time
	itemOrder  []string
	items      map[string]*models.ItemInteractionMetric
	behavioral models.BehavioralMetrics
	antiCheat  models.AntiCheatMetrics

	windowItems []string
	windowTimes []time.Time
	lossStart   *time.Time
}

// NewRecorder creates a recorder. A nil now uses time.Now.
func NewRecorder(cfg Config, identity Identity, device models.DeviceInfo, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	if cfg.RapidGuessWindow <= 0 {
		cfg.RapidGuessWindow = DefaultConfig().RapidGuessWindow
	}
	return &Recorder{
		cfg:      cfg,
		now:      now,
		identity: identity,
		device:   device,
		items:    make(map[string]*models.ItemInteractionMetric),
	}
}

// SetAuthToken replaces the token used for flushing
func (r *Recorder) SetAuthToken(token string) {
	r.identity.AuthToken = token
}

// Identity returns the identity used for flushing
func (r *Recorder) Identity() Identity {
	return r.identity
}

// StartSegment resets all metrics and allocates one entry per item
func (r *Recorder) StartSegment(segment models.Segment, itemIDs []string) {
	now := r.now()
	r.segment = segment
	r.startedAt = now
	r.itemOrder = make([]string, 0, len(itemIDs))
	r.items = make(map[string]*models.ItemInteractionMetric, len(itemIDs))
	for _, id := range itemIDs {
		if _, dup := r.items[id]; dup {
			continue
		}
		r.itemOrder = append(r.itemOrder, id)
		r.items[id] = &models.ItemInteractionMetric{ItemID: id, WrongAttempts: []models.WrongAttempt{}}
	}
	r.behavioral = models.BehavioralMetrics{FocusLossEvents: []models.FocusLossEvent{}}
	r.antiCheat = models.AntiCheatMetrics{RapidGuessPatterns: []models.RapidGuessPattern{}}
	r.windowItems = nil
	r.windowTimes = nil
	r.lossStart = nil
}

// RecordHintFlip counts a hint reveal for an item
func (r *Recorder) RecordHintFlip(itemID string) {
	if m, ok := r.items[itemID]; ok {
		m.HintFlipCount++
	}
}

// RecordWrongAttempt records an item paired with the wrong partner
func (r *Recorder) RecordWrongAttempt(itemID, matchedWithID string) {
	m, ok := r.items[itemID]
	if !ok {
		return
	}
	m.WrongAttempts = append(m.WrongAttempts, models.WrongAttempt{
		MatchedWithID: matchedWithID,
		Timestamp:     r.now(),
	})
}

// RecordMatch marks an item as matched and runs the rapid-guess check
func (r *Recorder) RecordMatch(itemID string) {
	m, ok := r.items[itemID]
	if !ok || m.MatchTimestamp != nil {
		return
	}
	now := r.now()
	ttm := now.Sub(r.startedAt).Seconds()
	m.MatchTimestamp = &now
	m.TimeToMatchSeconds = &ttm

	// gaps are measured between matches only, never from segment start
	r.windowItems = append(r.windowItems, itemID)
	r.windowTimes = append(r.windowTimes, now)

	size := max(r.cfg.RapidGuessWindow, 2)
	if n := len(r.windowTimes); n > size {
		drop := n - size
		r.windowItems = r.windowItems[drop:]
		r.windowTimes = r.windowTimes[drop:]
	}
	if len(r.windowTimes) < size {
		return
	}

	span := r.windowTimes[size-1].Sub(r.windowTimes[0])
	mean := span / time.Duration(size-1)
	if mean >= r.cfg.RapidGuessThreshold {
		return
	}

	ids := make([]string, len(r.windowItems))
	copy(ids, r.windowItems)
	r.antiCheat.RapidGuessPatterns = append(r.antiCheat.RapidGuessPatterns, models.RapidGuessPattern{
		ItemIDs:            ids,
		AverageTimeSeconds: mean.Seconds(),
		StartTimestamp:     r.windowTimes[0],
	})
	r.nudge(r.cfg.RapidGuessIncrement)

	// a flagged run is reported once, not again for each overlapping window
	r.windowItems = nil
	r.windowTimes = nil
}

// RecordVisibilityChange tracks the page being hidden and shown again.
// A visible event with no recorded loss start only counts as a change.
func (r *Recorder) RecordVisibilityChange(visible bool) {
	r.behavioral.VisibilityChangeCount++
	now := r.now()
	if !visible {
		r.lossStart = &now
		r.behavioral.TabSwitchCount++
		r.nudge(r.cfg.TabSwitchIncrement)
		return
	}
	if r.lossStart == nil {
		return
	}
	r.behavioral.FocusLossEvents = append(r.behavioral.FocusLossEvents, models.FocusLossEvent{
		Timestamp:       *r.lossStart,
		DurationSeconds: now.Sub(*r.lossStart).Seconds(),
	})
	r.lossStart = nil
}

// RecordCopyPaste counts a clipboard action during play
func (r *Recorder) RecordCopyPaste() {
	r.antiCheat.CopyPasteAttempts++
	r.nudge(r.cfg.CopyPasteIncrement)
}

func (r *Recorder) nudge(by int) {
	if by <= 0 {
		return
	}
	r.antiCheat.SuspicionScore += by
	if r.antiCheat.SuspicionScore > MaxSuspicion {
		r.antiCheat.SuspicionScore = MaxSuspicion
	}
}

// Item returns a copy of the metric for an item
func (r *Recorder) Item(itemID string) (models.ItemInteractionMetric, bool) {
	m, ok := r.items[itemID]
	if !ok {
		return models.ItemInteractionMetric{}, false
	}
	return copyMetric(m), true
}

// Behavioral returns the behavioral metrics collected so far
func (r *Recorder) Behavioral() models.BehavioralMetrics {
	return copyBehavioral(r.behavioral)
}

// AntiCheat returns the anti-cheat metrics collected so far
func (r *Recorder) AntiCheat() models.AntiCheatMetrics {
	return copyAntiCheat(r.antiCheat)
}

// Flush builds the collector payload for the current segment. It returns
// false, and builds nothing, when session id, user id or auth token is
// missing: telemetry never blocks play.
func (r *Recorder) Flush(status models.RoundStatus, finalScore int) (*models.TelemetryPayload, bool) {
	if !r.identity.Complete() {
		return nil, false
	}

	now := r.now()
	metrics := make([]models.ItemInteractionMetric, 0, len(r.itemOrder))
	ids := make([]string, 0, len(r.itemOrder))
	for _, id := range r.itemOrder {
		ids = append(ids, id)
		metrics = append(metrics, copyMetric(r.items[id]))
	}

	_, offset := now.Zone()
	payload := &models.TelemetryPayload{
		ContestID:             r.identity.ContestID,
		UserID:                r.identity.UserID,
		SessionID:             r.identity.SessionID,
		Language:              r.segment.Language,
		LevelSeq:              r.segment.LevelSeq,
		RoundNumber:           r.segment.RoundSeq,
		RoundStatus:           status,
		ItemIDs:               ids,
		ItemMetrics:           metrics,
		TotalElapsedSeconds:   now.Sub(r.startedAt).Seconds(),
		ScoreAchieved:         finalScore,
		Behavioral:            copyBehavioral(r.behavioral),
		Device:                r.device,
		AntiCheat:             copyAntiCheat(r.antiCheat),
		StartedAt:             r.startedAt.UTC().Format(time.RFC3339Nano),
		TimezoneOffsetMinutes: offset / 60,
	}
	if status != models.RoundStatusStarted {
		payload.CompletedAt = now.UTC().Format(time.RFC3339Nano)
	}
	return payload, true
}

func copyMetric(m *models.ItemInteractionMetric) models.ItemInteractionMetric {
	out := *m
	out.WrongAttempts = append([]models.WrongAttempt{}, m.WrongAttempts...)
	return out
}

func copyBehavioral(b models.BehavioralMetrics) models.BehavioralMetrics {
	b.FocusLossEvents = append([]models.FocusLossEvent{}, b.FocusLossEvents...)
	return b
}

func copyAntiCheat(a models.AntiCheatMetrics) models.AntiCheatMetrics {
	patterns := make([]models.RapidGuessPattern, len(a.RapidGuessPatterns))
	for i, p := range a.RapidGuessPatterns {
		p.ItemIDs = append([]string{}, p.ItemIDs...)
		patterns[i] = p
	}
	a.RapidGuessPatterns = patterns
	return a
}

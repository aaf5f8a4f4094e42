package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"langclash/internal/models"
	"langclash/internal/telemetry"
)

var (
	ErrNotPlaying      = errors.New("session is not in play")
	ErrSegmentClosed   = errors.New("segment no longer accepts answers")
	ErrUnknownItem     = errors.New("item is not part of the active segment")
	ErrAlreadyResolved = errors.New("item already resolved")
	ErrWrongGameMode   = errors.New("action does not apply to this game mode")
)

// ContentSource loads the playable items of a segment
type ContentSource interface {
	FetchItems(ctx context.Context, key models.SegmentKey) ([]models.Item, error)
}

// ScoreSubmitter reports per-language scores to the score service
type ScoreSubmitter interface {
	SubmitScores(ctx context.Context, submission models.ScoreSubmission) error
}

// TelemetrySink delivers flushed telemetry payloads
type TelemetrySink interface {
	Submit(ctx context.Context, payload *models.TelemetryPayload, token string) error
}

// Phase is the lifecycle of a whole session
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePlaying   Phase = "playing"
	PhaseFinished  Phase = "finished"
	PhaseAbandoned Phase = "abandoned"
)

// Config describes one contest session
type Config struct {
	Contest          models.Contest
	Languages        []string
	Mode             Mode
	AutoAdvance      bool
	Rules            ScoringRules
	Username         string
	SettleDelay      time.Duration
	AutoAdvanceDelay time.Duration
	TickInterval     time.Duration
	DefaultTimeLimit int
}

// Deps are the collaborators a session calls out to. Scores and Telemetry
// may be nil.
type Deps struct {
	Content   ContentSource
	Scores    ScoreSubmitter
	Telemetry TelemetrySink
	Recorder  *telemetry.Recorder
	Scheduler Scheduler
	// Async runs fire-and-forget work; defaults to a new goroutine
	Async func(func())
	// NewToken mints segment tokens; defaults to random UUIDs
	NewToken func() string
}

// Session drives a contest from its first segment to the last. All
// mutation happens under one lock, so timer callbacks and player events
// are applied one at a time.
type Session struct {
	mu sync.Mutex

	id   string
	cfg  Config
	deps Deps

	phase    Phase
	queue    QueueState
	clock    *RoundClock
	detector *Detector
	ledger   *Ledger
	recorder *telemetry.Recorder

	items        map[string]models.Item
	itemOrder    []string
	resolved     map[string]bool
	quizProgress map[string]int

	firstLevelSeq int
	carryElapsed  int
	lastBonus     int
	skipped       []string

	cancelTick  func()
	cancelDelay func()
}

// New validates the configuration and creates an idle session
func New(id string, cfg Config, deps Deps) (*Session, error) {
	if deps.Content == nil {
		return nil, errors.New("session: content source is required")
	}
	if deps.Recorder == nil {
		return nil, errors.New("session: telemetry recorder is required")
	}
	if deps.Scheduler == nil {
		deps.Scheduler = TimeScheduler{}
	}
	if deps.Async == nil {
		deps.Async = func(fn func()) { go fn() }
	}
	if deps.NewToken == nil {
		deps.NewToken = uuid.NewString
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeCompetitive
	}
	if cfg.Mode != ModeCompetitive && cfg.Mode != ModePractice {
		return nil, fmt.Errorf("session: unknown mode %q", cfg.Mode)
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = cfg.Contest.Languages
	}
	if cfg.Rules.DifficultyWeights == nil && cfg.Rules.MatchPoints == 0 {
		cfg.Rules = DefaultScoringRules()
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = time.Second
	}
	if cfg.AutoAdvanceDelay <= 0 {
		cfg.AutoAdvanceDelay = 3 * time.Second
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.DefaultTimeLimit <= 0 {
		cfg.DefaultTimeLimit = 60
	}

	return &Session{
		id:       id,
		cfg:      cfg,
		deps:     deps,
		phase:    PhaseIdle,
		detector: NewDetector(cfg.AutoAdvance),
		ledger:   NewLedger(cfg.Mode, cfg.Rules),
		recorder: deps.Recorder,
	}, nil
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

// Start expands the contest into segments and begins the first playable
// one. A contest that expands to nothing is a configuration error and
// the session stays idle.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhasePlaying {
		return errors.New("session already started")
	}

	segments, err := BuildQueue(s.cfg.Contest, s.cfg.Languages)
	if err != nil {
		return fmt.Errorf("cannot start session: %w", err)
	}

	s.stopTimersLocked()
	s.ledger.Reset()
	s.queue = QueueState{Pending: segments}
	s.firstLevelSeq = segments[0].LevelSeq
	s.carryElapsed = 0
	s.skipped = nil
	s.phase = PhasePlaying

	log.Printf("[session %s] started contest %s with %d segments (%s)", s.id, s.cfg.Contest.ID, len(segments), s.cfg.Mode)
	s.advanceLocked(ctx)
	return nil
}

// advanceLocked moves to the next segment that has playable content, or
// finishes the session when none is left.
func (s *Session) advanceLocked(ctx context.Context) {
	for {
		next, ok := Advance(s.queue)
		if !ok {
			s.queue = QueueState{}
			s.finishLocked()
			return
		}
		s.queue = next
		if s.beginSegmentLocked(ctx, *next.Active) {
			return
		}
	}
}

// beginSegmentLocked fetches content detached from ctx: a caller that goes
// away mid-request must not cost the player a round. The content source
// applies its own timeout.
func (s *Session) beginSegmentLocked(ctx context.Context, seg models.Segment) bool {
	items, err := s.deps.Content.FetchItems(context.WithoutCancel(ctx), seg.Key(s.cfg.Contest.ID))
	if err != nil {
		log.Printf("[session %s] skipping %s: content fetch failed: %v", s.id, seg, err)
		s.skipped = append(s.skipped, seg.String())
		return false
	}
	items = PlayableItems(seg.GameMode, items)
	if len(items) == 0 {
		log.Printf("[session %s] skipping %s: no playable items", s.id, seg)
		s.skipped = append(s.skipped, seg.String())
		return false
	}

	s.stopTimersLocked()

	token := s.deps.NewToken()
	s.detector.Reset(token)

	s.items = make(map[string]models.Item, len(items))
	s.itemOrder = make([]string, 0, len(items))
	s.resolved = make(map[string]bool, len(items))
	s.quizProgress = make(map[string]int)
	for _, item := range items {
		s.items[item.ID] = item
		s.itemOrder = append(s.itemOrder, item.ID)
	}
	s.lastBonus = 0

	if s.cfg.Mode == ModeCompetitive {
		limit := seg.TimeLimitSeconds
		if limit <= 0 {
			limit = s.cfg.DefaultTimeLimit
		}
		s.clock = NewCountdownClock(token, limit)
	} else {
		offset := 0
		if seg.LevelSeq != s.firstLevelSeq {
			offset = s.carryElapsed
		}
		s.clock = NewElapsedClock(token, offset, seg.GameMode == models.GameModeQuiz)
	}

	s.recorder.StartSegment(seg, s.itemOrder)
	s.flushLocked(models.RoundStatusStarted)

	s.cancelTick = s.deps.Scheduler.Every(s.cfg.TickInterval, func() { s.Tick(token) })
	return true
}

// PlayableItems drops items that cannot be played in the given mode. A
// quiz picture without questions is unplayable.
func PlayableItems(mode models.GameMode, items []models.Item) []models.Item {
	if mode != models.GameModeQuiz {
		return items
	}
	out := make([]models.Item, 0, len(items))
	for _, item := range items {
		if len(item.Questions) > 0 {
			out = append(out, item)
		}
	}
	return out
}

// Tick advances the round clock for the segment identified by token.
// Ticks for any other segment are dropped.
func (s *Session) Tick(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePlaying || s.clock == nil {
		return
	}
	res := s.clock.Tick(token)
	if !res.Applied {
		return
	}
	if res.Erode {
		s.ledger.Erode()
	}
	if res.Expired {
		s.handleLocked(context.Background(), Event{Kind: EventExpired, Token: token})
	}
}

// fire delivers a delayed detector event
func (s *Session) fire(kind EventKind, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePlaying {
		return
	}
	s.handleLocked(context.Background(), Event{Kind: kind, Token: token})
}

func (s *Session) handleLocked(ctx context.Context, e Event) {
	_, effects := s.detector.OnEvent(e)
	for _, effect := range effects {
		switch effect {
		case EffectStopClock:
			s.clock.Stop()
			if s.cancelTick != nil {
				s.cancelTick()
				s.cancelTick = nil
			}
		case EffectScheduleSettle:
			token := e.Token
			s.cancelDelay = s.deps.Scheduler.After(s.cfg.SettleDelay, func() { s.fire(EventSettled, token) })
		case EffectRoundComplete:
			s.completeRoundLocked()
		case EffectScheduleAutoAdvance:
			token := e.Token
			s.cancelDelay = s.deps.Scheduler.After(s.cfg.AutoAdvanceDelay, func() { s.fire(EventAutoAdvance, token) })
		case EffectAwaitContinue:
		case EffectSegmentDone:
			s.flushLocked(models.RoundStatusCompleted)
			s.advanceLocked(ctx)
		}
	}
}

// completeRoundLocked fixes the authoritative score for the round: the
// time bonus is added and the language snapshot taken right here.
func (s *Session) completeRoundLocked() {
	seg := s.queue.Active
	if s.clock.Mode() == ClockCountdown {
		s.lastBonus = s.ledger.ApplyTimeBonus(s.clock.Remaining())
	} else {
		s.carryElapsed = s.clock.Elapsed()
	}
	s.ledger.Snapshot(seg.Language)
	log.Printf("[session %s] round %s complete: score=%d bonus=%d", s.id, seg, s.ledger.Total(), s.lastBonus)
	s.submitScoresLocked(false)
}

func (s *Session) finishLocked() {
	s.stopTimersLocked()
	s.phase = PhaseFinished
	log.Printf("[session %s] finished: final score %d", s.id, s.ledger.Final())
	s.submitScoresLocked(true)
}

func (s *Session) stopTimersLocked() {
	if s.cancelTick != nil {
		s.cancelTick()
		s.cancelTick = nil
	}
	if s.cancelDelay != nil {
		s.cancelDelay()
		s.cancelDelay = nil
	}
	if s.clock != nil {
		s.clock.Stop()
	}
}

func (s *Session) flushLocked(status models.RoundStatus) {
	payload, ok := s.recorder.Flush(status, s.ledger.Final())
	if !ok || s.deps.Telemetry == nil {
		return
	}
	sink := s.deps.Telemetry
	token := s.recorder.Identity().AuthToken
	s.deps.Async(func() {
		if err := sink.Submit(context.Background(), payload, token); err != nil {
			log.Printf("[session %s] telemetry submit failed: %v", s.id, err)
		}
	})
}

func (s *Session) submitScoresLocked(final bool) {
	if s.deps.Scores == nil || s.cfg.Username == "" {
		return
	}
	submission := models.ScoreSubmission{
		ContestID: s.cfg.Contest.ID,
		Username:  s.cfg.Username,
		Scores:    s.ledger.Snapshots(),
		IsFinal:   final,
	}
	if len(submission.Scores) == 0 {
		return
	}
	scores := s.deps.Scores
	s.deps.Async(func() {
		if err := scores.SubmitScores(context.Background(), submission); err != nil {
			log.Printf("[session %s] score submit failed: %v", s.id, err)
		}
	})
}

func (s *Session) requireOpenLocked() error {
	if s.phase != PhasePlaying {
		return ErrNotPlaying
	}
	if s.detector.State() != InProgress || s.clock.Expired() {
		return ErrSegmentClosed
	}
	return nil
}

// Outcome is the result of a scored player action
type Outcome struct {
	Correct  bool `json:"correct"`
	Total    int  `json:"total"`
	Resolved bool `json:"resolved"`
}

// Match pairs an item with a candidate; the pair is correct when the ids
// agree.
func (s *Session) Match(itemID, candidateID string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpenLocked(); err != nil {
		return Outcome{}, err
	}
	if s.queue.Active.GameMode != models.GameModeMatching {
		return Outcome{}, ErrWrongGameMode
	}
	if _, ok := s.items[itemID]; !ok {
		return Outcome{}, ErrUnknownItem
	}
	if s.resolved[itemID] {
		return Outcome{}, ErrAlreadyResolved
	}

	if itemID != candidateID {
		total := s.ledger.Apply(MatchIncorrect, OutcomeContext{})
		s.recorder.RecordWrongAttempt(itemID, candidateID)
		return Outcome{Correct: false, Total: total}, nil
	}

	total := s.ledger.Apply(MatchCorrect, OutcomeContext{})
	s.recorder.RecordMatch(itemID)
	s.resolved[itemID] = true
	s.checkResolvedLocked()
	return Outcome{Correct: true, Total: total, Resolved: true}, nil
}

// Answer checks a quiz answer for the item's current question. The
// picture is resolved once all of its questions have been answered,
// right or wrong.
func (s *Session) Answer(itemID, answer string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpenLocked(); err != nil {
		return Outcome{}, err
	}
	if s.queue.Active.GameMode != models.GameModeQuiz {
		return Outcome{}, ErrWrongGameMode
	}
	item, ok := s.items[itemID]
	if !ok {
		return Outcome{}, ErrUnknownItem
	}
	if s.resolved[itemID] {
		return Outcome{}, ErrAlreadyResolved
	}

	idx := s.quizProgress[itemID]
	question := item.Questions[idx]
	difficulty := question.Difficulty
	if difficulty == "" {
		difficulty = item.Difficulty
	}

	correct := normalizeAnswer(answer) == normalizeAnswer(question.Answer)
	var total int
	if correct {
		total = s.ledger.Apply(QuizCorrect, OutcomeContext{Difficulty: difficulty})
	} else {
		total = s.ledger.Apply(QuizIncorrect, OutcomeContext{Difficulty: difficulty})
		s.recorder.RecordWrongAttempt(itemID, answer)
	}

	s.quizProgress[itemID] = idx + 1
	resolved := idx+1 >= len(item.Questions)
	if resolved {
		s.recorder.RecordMatch(itemID)
		s.resolved[itemID] = true
		s.checkResolvedLocked()
	}
	return Outcome{Correct: correct, Total: total, Resolved: resolved}, nil
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (s *Session) checkResolvedLocked() {
	if len(s.resolved) < len(s.items) {
		return
	}
	s.handleLocked(context.Background(), Event{Kind: EventAllResolved, Token: s.detector.Token()})
}

// Hint records a hint reveal for an item
func (s *Session) Hint(itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpenLocked(); err != nil {
		return err
	}
	if _, ok := s.items[itemID]; !ok {
		return ErrUnknownItem
	}
	s.recorder.RecordHintFlip(itemID)
	return nil
}

// Visibility records the game page being hidden or shown
func (s *Session) Visibility(visible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePlaying {
		return ErrNotPlaying
	}
	s.recorder.RecordVisibilityChange(visible)
	return nil
}

// CopyPaste records a clipboard action
func (s *Session) CopyPaste() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePlaying {
		return ErrNotPlaying
	}
	s.recorder.RecordCopyPaste()
	return nil
}

// Pause holds the clock while the client waits on something, such as an
// image still loading.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePlaying {
		return ErrNotPlaying
	}
	s.clock.Pause()
	return nil
}

// Ready resumes a paused clock
func (s *Session) Ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePlaying {
		return ErrNotPlaying
	}
	s.clock.Resume()
	return nil
}

// Continue confirms the round summary and moves to the next segment
func (s *Session) Continue(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePlaying {
		return ErrNotPlaying
	}
	if s.detector.State() != PendingConfirmation {
		return ErrSegmentClosed
	}
	s.handleLocked(ctx, Event{Kind: EventContinue, Token: s.detector.Token()})
	return nil
}

// Abandon ends the session where it stands
func (s *Session) Abandon() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePlaying {
		return ErrNotPlaying
	}
	s.stopTimersLocked()
	if s.detector.State() == PendingConfirmation {
		// the round already counted: report it as completed and close
		// the scores out instead of discarding it
		s.flushLocked(models.RoundStatusCompleted)
		s.submitScoresLocked(true)
	} else {
		s.flushLocked(models.RoundStatusAbandoned)
	}
	s.phase = PhaseAbandoned
	log.Printf("[session %s] abandoned at %s", s.id, s.queue.Active)
	return nil
}

// SetAuthToken refreshes the token used for telemetry delivery
func (s *Session) SetAuthToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorder.SetAuthToken(token)
}

// ItemView is the client-visible part of an item
type ItemView struct {
	ID       string `json:"id"`
	Hint     string `json:"hint"`
	ImageURL string `json:"imageUrl"`
	Question string `json:"question,omitempty"`
	Resolved bool   `json:"resolved"`
}

// View is a read-only snapshot of the session
type View struct {
	ID               string                 `json:"id"`
	ContestID        string                 `json:"contestId"`
	Mode             Mode                   `json:"mode"`
	Phase            Phase                  `json:"phase"`
	Segment          *models.Segment        `json:"segment,omitempty"`
	Completion       string                 `json:"completion"`
	RemainingSeconds int                    `json:"remainingSeconds"`
	ElapsedSeconds   int                    `json:"elapsedSeconds"`
	Paused           bool                   `json:"paused"`
	Score            int                    `json:"score"`
	TimeBonus        int                    `json:"timeBonus"`
	PendingSegments  int                    `json:"pendingSegments"`
	Items            []ItemView             `json:"items"`
	LanguageScores   []models.LanguageScore `json:"languageScores"`
	Skipped          []string               `json:"skipped,omitempty"`
}

// View returns the current state of the session
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:              s.id,
		ContestID:       s.cfg.Contest.ID,
		Mode:            s.cfg.Mode,
		Phase:           s.phase,
		Completion:      s.detector.State().String(),
		Score:           s.ledger.Total(),
		TimeBonus:       s.lastBonus,
		PendingSegments: len(s.queue.Pending),
		LanguageScores:  s.ledger.Snapshots(),
		Skipped:         append([]string(nil), s.skipped...),
		Items:           []ItemView{},
	}
	if s.phase != PhasePlaying {
		return v
	}

	seg := *s.queue.Active
	v.Segment = &seg
	v.RemainingSeconds = s.clock.Remaining()
	v.ElapsedSeconds = s.clock.Elapsed()
	v.Paused = s.clock.Paused()
	for _, id := range s.itemOrder {
		item := s.items[id]
		iv := ItemView{ID: id, Hint: item.Hint, ImageURL: item.ImageURL, Resolved: s.resolved[id]}
		if idx := s.quizProgress[id]; idx < len(item.Questions) {
			iv.Question = item.Questions[idx].Question
		}
		v.Items = append(v.Items, iv)
	}
	return v
}

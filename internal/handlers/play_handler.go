package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"langclash/internal/backend"
	"langclash/internal/content"
	"langclash/internal/models"
	"langclash/internal/security"
	"langclash/internal/service"
	"langclash/internal/session"
	"langclash/internal/telemetry"
)

// ContestCatalog looks up contest definitions
type ContestCatalog interface {
	Get(id string) (models.Contest, error)
	List() []models.Contest
}

// SessionSettings are the engine settings applied to every new session
type SessionSettings struct {
	Rules            session.ScoringRules
	Heuristics       telemetry.Config
	SettleDelay      time.Duration
	AutoAdvanceDelay time.Duration
	IdleTimeout      time.Duration
	// Scheduler and Async default to real timers and goroutines
	Scheduler session.Scheduler
	Async     func(func())
}

// PlayHandler serves the player API: it owns the live sessions and
// forwards gameplay events into them
type PlayHandler struct {
	catalog   ContestCatalog
	api       backend.PlayerAPI
	telemetry *service.TelemetryService
	settings  SessionSettings

	mu       sync.Mutex
	sessions map[string]*liveSession
}

type liveSession struct {
	session  *session.Session
	owner    string
	token    *tokenHolder
	lastSeen time.Time
}

// tokenHolder keeps the latest bearer token a player presented
type tokenHolder struct {
	mu    sync.RWMutex
	token string
}

func (t *tokenHolder) Get() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}

func (t *tokenHolder) Set(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = token
}

// NewPlayHandler creates a new play handler
func NewPlayHandler(catalog ContestCatalog, api backend.PlayerAPI, telemetrySvc *service.TelemetryService, settings SessionSettings) *PlayHandler {
	if settings.IdleTimeout <= 0 {
		settings.IdleTimeout = DefaultIdleTimeout
	}
	if settings.Heuristics == (telemetry.Config{}) {
		settings.Heuristics = telemetry.DefaultConfig()
	}
	return &PlayHandler{
		catalog:   catalog,
		api:       api,
		telemetry: telemetrySvc,
		settings:  settings,
		sessions:  make(map[string]*liveSession),
	}
}

// RegisterRoutes wires the player API into mux
func (h *PlayHandler) RegisterRoutes(mux *http.ServeMux, m *Middleware) {
	mux.HandleFunc("GET /api/contests", m.Player(h.ListContests))
	mux.HandleFunc("POST /api/sessions", m.Player(h.StartSession))
	mux.HandleFunc("GET /api/sessions/{id}", m.Player(h.GetSession))
	mux.HandleFunc("POST /api/sessions/{id}/match", m.Player(h.Match))
	mux.HandleFunc("POST /api/sessions/{id}/answer", m.Player(h.Answer))
	mux.HandleFunc("POST /api/sessions/{id}/hint", m.Player(h.Hint))
	mux.HandleFunc("POST /api/sessions/{id}/visibility", m.Player(h.Visibility))
	mux.HandleFunc("POST /api/sessions/{id}/copy-paste", m.Player(h.CopyPaste))
	mux.HandleFunc("POST /api/sessions/{id}/pause", m.Player(h.Pause))
	mux.HandleFunc("POST /api/sessions/{id}/ready", m.Player(h.Ready))
	mux.HandleFunc("POST /api/sessions/{id}/continue", m.Player(h.Continue))
	mux.HandleFunc("POST /api/sessions/{id}/abandon", m.Player(h.Abandon))
	mux.HandleFunc("POST /api/telemetry/retry", m.Player(h.RetryTelemetry))
}

// ListContests returns the contest catalog
func (h *PlayHandler) ListContests(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"contests": h.catalog.List()})
}

type startSessionRequest struct {
	ContestID   string            `json:"contestId"`
	Languages   []string          `json:"languages"`
	Mode        session.Mode      `json:"mode"`
	AutoAdvance bool              `json:"autoAdvance"`
	Device      models.DeviceInfo `json:"device"`
}

// StartSession creates a session for the caller and starts its first segment
func (h *PlayHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	player, _ := GetPlayerFromContext(r.Context())

	var req startSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}

	contest, err := h.catalog.Get(req.ContestID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, ErrContestNotFound, "", nil)
		return
	}

	languages, err := pickLanguages(contest, req.Languages)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), "", nil)
		return
	}

	device := req.Device
	if device.DeviceID == "" {
		device.DeviceID = security.GenerateDeviceID()
	}
	if device.UserAgent == "" {
		device.UserAgent = r.UserAgent()
	}

	id := security.GenerateSessionID()
	token := &tokenHolder{token: player.Token}
	recorder := telemetry.NewRecorder(h.settings.Heuristics, telemetry.Identity{
		ContestID: contest.ID,
		UserID:    player.UserID,
		SessionID: id,
		AuthToken: player.Token,
	}, device, nil)

	source := backend.NewPlayer(h.api, token.Get)
	deps := session.Deps{
		Content:   source,
		Scores:    source,
		Recorder:  recorder,
		Scheduler: h.settings.Scheduler,
		Async:     h.settings.Async,
	}
	if h.telemetry != nil {
		deps.Telemetry = h.telemetry
	}

	sess, err := session.New(id, session.Config{
		Contest:          contest,
		Languages:        languages,
		Mode:             req.Mode,
		AutoAdvance:      req.AutoAdvance,
		Rules:            h.settings.Rules,
		Username:         player.Username,
		SettleDelay:      h.settings.SettleDelay,
		AutoAdvanceDelay: h.settings.AutoAdvanceDelay,
	}, deps)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid session settings", "Error creating session", err)
		return
	}

	if err := sess.Start(r.Context()); err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "Contest has nothing to play", "Error starting session", err)
		return
	}

	h.mu.Lock()
	h.sessions[id] = &liveSession{session: sess, owner: player.UserID, token: token, lastSeen: time.Now()}
	h.mu.Unlock()

	// a new session is a good moment to drain telemetry left from earlier play
	if h.telemetry != nil {
		h.async(func() {
			if _, err := h.telemetry.RetryFor(context.Background(), player.UserID, player.Token); err != nil {
				log.Printf("[telemetry] retry sweep at session start failed: %v", err)
			}
		})
	}

	respondJSON(w, http.StatusCreated, sess.View())
}

// pickLanguages validates the requested languages against the contest;
// none requested means all of them
func pickLanguages(contest models.Contest, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return contest.Languages, nil
	}
	allowed := make(map[string]bool, len(contest.Languages))
	for _, lang := range contest.Languages {
		allowed[lang] = true
	}
	out := make([]string, 0, len(requested))
	seen := make(map[string]bool, len(requested))
	for _, lang := range requested {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if !allowed[lang] {
			return nil, errors.New("Language " + lang + " is not part of this contest")
		}
		if !seen[lang] {
			seen[lang] = true
			out = append(out, lang)
		}
	}
	return out, nil
}

// GetSession returns the current session view
func (h *PlayHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	live, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, live.session.View())
}

type matchRequest struct {
	ItemID      string `json:"itemId"`
	CandidateID string `json:"candidateId"`
}

// Match pairs an image with a translation
func (h *PlayHandler) Match(w http.ResponseWriter, r *http.Request) {
	live, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req matchRequest
	if err := decodeJSON(w, r, &req); err != nil || req.ItemID == "" || req.CandidateID == "" {
		respondWithError(w, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}
	outcome, err := live.session.Match(req.ItemID, req.CandidateID)
	h.respondOutcome(w, outcome, err)
}

type answerRequest struct {
	ItemID string `json:"itemId"`
	Answer string `json:"answer"`
}

// Answer submits a quiz answer for the current question of an item
func (h *PlayHandler) Answer(w http.ResponseWriter, r *http.Request) {
	live, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil || req.ItemID == "" {
		respondWithError(w, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}
	outcome, err := live.session.Answer(req.ItemID, req.Answer)
	h.respondOutcome(w, outcome, err)
}

type itemRequest struct {
	ItemID string `json:"itemId"`
}

// Hint records a hint flip
func (h *PlayHandler) Hint(w http.ResponseWriter, r *http.Request) {
	live, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil || req.ItemID == "" {
		respondWithError(w, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}
	h.respondAction(w, live, live.session.Hint(req.ItemID))
}

type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

// Visibility records the page being hidden or shown
func (h *PlayHandler) Visibility(w http.ResponseWriter, r *http.Request) {
	live, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req visibilityRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Visible == nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}
	h.respondAction(w, live, live.session.Visibility(*req.Visible))
}

// CopyPaste records a clipboard attempt
func (h *PlayHandler) CopyPaste(w http.ResponseWriter, r *http.Request) {
	if live, ok := h.lookup(w, r); ok {
		h.respondAction(w, live, live.session.CopyPaste())
	}
}

// Pause stops the round clock
func (h *PlayHandler) Pause(w http.ResponseWriter, r *http.Request) {
	if live, ok := h.lookup(w, r); ok {
		h.respondAction(w, live, live.session.Pause())
	}
}

// Ready resumes the round clock
func (h *PlayHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if live, ok := h.lookup(w, r); ok {
		h.respondAction(w, live, live.session.Ready())
	}
}

// Continue confirms the round summary
func (h *PlayHandler) Continue(w http.ResponseWriter, r *http.Request) {
	if live, ok := h.lookup(w, r); ok {
		h.respondAction(w, live, live.session.Continue(r.Context()))
	}
}

// Abandon ends the session
func (h *PlayHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	if live, ok := h.lookup(w, r); ok {
		h.respondAction(w, live, live.session.Abandon())
	}
}

// RetryTelemetry resends the caller's own queued telemetry with the
// caller's token
func (h *PlayHandler) RetryTelemetry(w http.ResponseWriter, r *http.Request) {
	player, _ := GetPlayerFromContext(r.Context())
	if h.telemetry == nil {
		respondJSON(w, http.StatusOK, map[string]int{"attempted": 0})
		return
	}
	report, err := h.telemetry.RetryFor(r.Context(), player.UserID, player.Token)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Error retrying telemetry", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{
		"attempted": report.Attempted,
		"delivered": report.Delivered,
		"requeued":  report.Requeued,
		"dropped":   report.Dropped,
	})
}

// Sweep forgets sessions idle for longer than the idle timeout, abandoning
// any still in play. It returns how many sessions were removed.
func (h *PlayHandler) Sweep(now time.Time) int {
	h.mu.Lock()
	var stale []*liveSession
	for id, live := range h.sessions {
		if now.Sub(live.lastSeen) > h.settings.IdleTimeout {
			stale = append(stale, live)
			delete(h.sessions, id)
		}
	}
	h.mu.Unlock()

	for _, live := range stale {
		if err := live.session.Abandon(); err == nil {
			log.Printf("[session %s] abandoned after %s idle", live.session.ID(), h.settings.IdleTimeout)
		}
	}
	return len(stale)
}

// lookup resolves the session in the path for the calling player and
// refreshes the player's token on it
func (h *PlayHandler) lookup(w http.ResponseWriter, r *http.Request) (*liveSession, bool) {
	player, ok := GetPlayerFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
		return nil, false
	}

	h.mu.Lock()
	live, exists := h.sessions[r.PathValue("id")]
	if exists && live.owner == player.UserID {
		live.lastSeen = time.Now()
	}
	h.mu.Unlock()

	if !exists || live.owner != player.UserID {
		respondWithError(w, http.StatusNotFound, ErrSessionNotFound, "", nil)
		return nil, false
	}

	if live.token.Get() != player.Token {
		live.token.Set(player.Token)
		live.session.SetAuthToken(player.Token)
	}
	return live, true
}

func (h *PlayHandler) respondOutcome(w http.ResponseWriter, outcome session.Outcome, err error) {
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

func (h *PlayHandler) respondAction(w http.ResponseWriter, live *liveSession, err error) {
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, live.session.View())
}

// respondSessionError maps engine errors onto HTTP statuses
func respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrUnknownItem):
		respondWithError(w, http.StatusNotFound, err.Error(), "", nil)
	case errors.Is(err, session.ErrWrongGameMode):
		respondWithError(w, http.StatusBadRequest, err.Error(), "", nil)
	case errors.Is(err, session.ErrNotPlaying),
		errors.Is(err, session.ErrSegmentClosed),
		errors.Is(err, session.ErrAlreadyResolved):
		respondWithError(w, http.StatusConflict, err.Error(), "", nil)
	case errors.Is(err, content.ErrContestNotFound):
		respondWithError(w, http.StatusNotFound, ErrContestNotFound, "", nil)
	default:
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Session error", err)
	}
}

func (h *PlayHandler) async(fn func()) {
	if h.settings.Async != nil {
		h.settings.Async(fn)
		return
	}
	go fn()
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

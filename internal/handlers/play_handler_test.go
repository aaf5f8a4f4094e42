package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"langclash/internal/content"
	"langclash/internal/delivery"
	"langclash/internal/models"
	"langclash/internal/security"
	"langclash/internal/service"
	"langclash/internal/session"
)

const testSecret = "handler-secret"

type stubScheduler struct {
	mu     sync.Mutex
	delays []func()
}

func (s *stubScheduler) Every(time.Duration, func()) func() { return func() {} }

func (s *stubScheduler) After(_ time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancelled := false
	s.delays = append(s.delays, func() {
		if !cancelled {
			fn()
		}
	})
	return func() { cancelled = true }
}

func (s *stubScheduler) flush() {
	s.mu.Lock()
	pending := s.delays
	s.delays = nil
	s.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

type fakeAPI struct {
	mu     sync.Mutex
	tokens []string
	scores []models.ScoreSubmission
}

func (f *fakeAPI) FetchItems(_ context.Context, _ models.SegmentKey, token string) ([]models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	return []models.Item{{ID: "a", Hint: "chat"}, {ID: "b", Hint: "chien"}}, nil
}

func (f *fakeAPI) SubmitScores(_ context.Context, sub models.ScoreSubmission, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores = append(f.scores, sub)
	return nil
}

type fakeCollector struct {
	mu   sync.Mutex
	fail bool
}

func (f *fakeCollector) Send(context.Context, json.RawMessage, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("collector offline")
	}
	return "attempt", nil
}

type testServer struct {
	t         *testing.T
	mux       *http.ServeMux
	handler   *PlayHandler
	scheduler *stubScheduler
	api       *fakeAPI
	collector *fakeCollector
	telemetry *service.TelemetryService
}

func newTestServer(t *testing.T, limiter *security.RateLimiter) *testServer {
	t.Helper()
	catalog := content.NewCatalog(models.Contest{
		ID:        "spring-cup",
		Languages: []string{"fr", "es"},
		Levels: []models.Level{{
			Seq:    1,
			Rounds: []models.Round{{Seq: 1, GameMode: models.GameModeMatching, TimeLimitSeconds: 60}},
		}},
	})

	ts := &testServer{
		t:         t,
		mux:       http.NewServeMux(),
		scheduler: &stubScheduler{},
		api:       &fakeAPI{},
		collector: &fakeCollector{fail: true},
	}
	queue := delivery.NewQueue(delivery.NewMemoryStore(), ts.collector, delivery.DefaultOptions(), nil)
	ts.telemetry = service.NewTelemetryService(queue, nil)
	ts.handler = NewPlayHandler(catalog, ts.api, ts.telemetry, SessionSettings{
		Scheduler:   ts.scheduler,
		Async:       func(fn func()) { fn() },
		IdleTimeout: time.Minute,
	})
	ts.handler.RegisterRoutes(ts.mux, NewMiddleware(testSecret, limiter))
	return ts
}

func playerToken(t *testing.T, userID string) string {
	t.Helper()
	tok, err := security.IssuePlayerToken(testSecret, userID, userID+"-name", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (ts *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			ts.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) session.View {
	t.Helper()
	var v session.View
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}

func TestPlayThroughContest(t *testing.T) {
	ts := newTestServer(t, nil)
	tok := playerToken(t, "user-1")

	rec := ts.do("POST", "/api/sessions", tok, map[string]interface{}{
		"contestId": "spring-cup",
		"languages": []string{"FR"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body)
	}
	view := decodeView(t, rec)
	if view.Phase != session.PhasePlaying || view.Segment == nil || view.Segment.Language != "fr" {
		t.Fatalf("view after start = %+v", view)
	}
	if len(view.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(view.Items))
	}
	base := "/api/sessions/" + view.ID

	t.Run("other players cannot see the session", func(t *testing.T) {
		rec := ts.do("GET", base, playerToken(t, "user-2"), nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	rec = ts.do("POST", base+"/match", tok, map[string]string{"itemId": "a", "candidateId": "b"})
	var outcome session.Outcome
	if err := json.NewDecoder(rec.Body).Decode(&outcome); err != nil || outcome.Correct {
		t.Fatalf("wrong match outcome = %+v, err %v", outcome, err)
	}
	for _, id := range []string{"a", "b"} {
		rec = ts.do("POST", base+"/match", tok, map[string]string{"itemId": id, "candidateId": id})
		if rec.Code != http.StatusOK {
			t.Fatalf("match %s status = %d, body %s", id, rec.Code, rec.Body)
		}
	}

	rec = ts.do("POST", base+"/match", tok, map[string]string{"itemId": "a", "candidateId": "a"})
	if rec.Code != http.StatusConflict {
		t.Errorf("match after all resolved status = %d, want 409", rec.Code)
	}

	ts.scheduler.flush()
	view = decodeView(t, ts.do("GET", base, tok, nil))
	if view.Completion != "pending_confirmation" {
		t.Fatalf("completion = %s, want pending_confirmation", view.Completion)
	}

	rec = ts.do("POST", base+"/continue", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("continue status = %d, body %s", rec.Code, rec.Body)
	}
	view = decodeView(t, rec)
	if view.Phase != session.PhaseFinished {
		t.Errorf("phase = %s, want finished", view.Phase)
	}

	pending, err := ts.telemetry.Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("queued payloads = %d, want started and completed", len(pending))
	}

	ts.collector.mu.Lock()
	ts.collector.fail = false
	ts.collector.mu.Unlock()

	rec = ts.do("POST", "/api/telemetry/retry", tok, nil)
	var report map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report["delivered"] != 2 {
		t.Errorf("retry report = %v, want 2 delivered", report)
	}

	ts.api.mu.Lock()
	defer ts.api.mu.Unlock()
	if len(ts.api.scores) == 0 || !ts.api.scores[len(ts.api.scores)-1].IsFinal {
		t.Errorf("expected a final score submission, got %+v", ts.api.scores)
	}
}

func TestSessionStartSweepsOnlyOwnTelemetry(t *testing.T) {
	ts := newTestServer(t, nil)
	start := func(tok string) {
		t.Helper()
		rec := ts.do("POST", "/api/sessions", tok, map[string]interface{}{"contestId": "spring-cup"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("start status = %d, body %s", rec.Code, rec.Body)
		}
	}
	owned := func(owner string) []models.QueuedSubmission {
		t.Helper()
		pending, err := ts.telemetry.Pending(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		var out []models.QueuedSubmission
		for _, item := range pending {
			if item.Owner == owner {
				out = append(out, item)
			}
		}
		return out
	}

	start(playerToken(t, "alice"))
	before := owned("alice")
	if len(before) != 1 {
		t.Fatalf("alice has %d queued payloads, want her started payload", len(before))
	}

	bob := playerToken(t, "bob")
	for i := 0; i < delivery.DefaultOptions().MaxRetries+1; i++ {
		start(bob)
	}

	after := owned("alice")
	if len(after) != 1 || after[0].RetryCount != before[0].RetryCount {
		t.Errorf("alice's queue after bob's sweeps = %+v, want %+v", after, before)
	}
}

func TestStartSessionErrors(t *testing.T) {
	ts := newTestServer(t, nil)
	tok := playerToken(t, "user-1")

	tests := []struct {
		name   string
		token  string
		body   interface{}
		status int
	}{
		{name: "no token", body: map[string]string{"contestId": "spring-cup"}, status: http.StatusUnauthorized},
		{name: "bad token", token: "nope", body: map[string]string{"contestId": "spring-cup"}, status: http.StatusUnauthorized},
		{name: "unknown contest", token: tok, body: map[string]string{"contestId": "winter"}, status: http.StatusNotFound},
		{name: "language outside contest", token: tok, body: map[string]interface{}{"contestId": "spring-cup", "languages": []string{"de"}}, status: http.StatusBadRequest},
		{name: "unknown mode", token: tok, body: map[string]string{"contestId": "spring-cup", "mode": "arcade"}, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do("POST", "/api/sessions", tt.token, tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body)
			}
		})
	}
}

func TestTokenRefresh(t *testing.T) {
	ts := newTestServer(t, nil)
	first := playerToken(t, "user-1")
	view := decodeView(t, ts.do("POST", "/api/sessions", first, map[string]interface{}{"contestId": "spring-cup", "languages": []string{"fr"}}))

	second, err := security.IssuePlayerToken(testSecret, "user-1", "user-1-name", 2*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if second == first {
		t.Fatal("expected a distinct token")
	}
	if rec := ts.do("GET", "/api/sessions/"+view.ID, second, nil); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	ts.handler.mu.Lock()
	live := ts.handler.sessions[view.ID]
	ts.handler.mu.Unlock()
	if live.token.Get() != second {
		t.Error("session did not pick up the refreshed token")
	}
}

func TestRateLimit(t *testing.T) {
	limiter := security.NewRateLimiter(2, time.Minute)
	defer limiter.Stop()
	ts := newTestServer(t, limiter)
	tok := playerToken(t, "user-1")

	for i := 0; i < 2; i++ {
		if rec := ts.do("GET", "/api/contests", tok, nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	if rec := ts.do("GET", "/api/contests", tok, nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}

func TestSweepAbandonsIdleSessions(t *testing.T) {
	ts := newTestServer(t, nil)
	tok := playerToken(t, "user-1")
	view := decodeView(t, ts.do("POST", "/api/sessions", tok, map[string]interface{}{"contestId": "spring-cup", "languages": []string{"fr"}}))

	if n := ts.handler.Sweep(time.Now()); n != 0 {
		t.Fatalf("Sweep removed %d fresh sessions", n)
	}
	if n := ts.handler.Sweep(time.Now().Add(2 * time.Minute)); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	if rec := ts.do("GET", "/api/sessions/"+view.ID, tok, nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d after sweep, want 404", rec.Code)
	}

	pending, _ := ts.telemetry.Pending(context.Background())
	last := pending[len(pending)-1]
	var payload models.TelemetryPayload
	if err := json.Unmarshal(last.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.RoundStatus != models.RoundStatusAbandoned {
		t.Errorf("last payload status = %s, want abandoned", payload.RoundStatus)
	}
}

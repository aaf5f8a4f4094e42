package handlers

import (
	"bytes"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(prev) })
	return &buf
}

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		userMsg  string
		logMsg   string
		err      error
		wantBody string
		wantLog  []string
	}{
		{
			name:     "client error is not logged",
			status:   http.StatusNotFound,
			userMsg:  "Session not found",
			logMsg:   "lookup",
			wantBody: `{"error":"Session not found"}`,
		},
		{
			name:     "log message falls back to user message",
			status:   http.StatusBadGateway,
			userMsg:  "Backend unavailable",
			err:      errors.New("dial tcp: connection refused"),
			wantBody: `{"error":"Backend unavailable"}`,
			wantLog:  []string{"Backend unavailable", "connection refused"},
		},
		{
			name:     "separate log message keeps cause out of body",
			status:   http.StatusInternalServerError,
			userMsg:  "Internal server error",
			logMsg:   "queue telemetry",
			err:      errors.New("disk full"),
			wantBody: `{"error":"Internal server error"}`,
			wantLog:  []string{"queue telemetry: disk full"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLog(t)
			rec := httptest.NewRecorder()

			respondWithError(rec, tt.status, tt.userMsg, tt.logMsg, tt.err)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			if body := strings.TrimSpace(rec.Body.String()); body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
			if tt.err != nil && strings.Contains(rec.Body.String(), tt.err.Error()) {
				t.Errorf("body leaks cause: %q", rec.Body.String())
			}

			if len(tt.wantLog) == 0 && buf.Len() != 0 {
				t.Errorf("unexpected log output %q", buf.String())
			}
			for _, want := range tt.wantLog {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("log = %q, want it to contain %q", buf.String(), want)
				}
			}
		})
	}
}

func TestRespondJSONNoBody(t *testing.T) {
	rec := httptest.NewRecorder()
	respondJSON(rec, http.StatusNoContent, nil)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
}

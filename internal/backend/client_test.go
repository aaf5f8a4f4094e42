package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"langclash/internal/models"
)

func TestFetchItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/contests/spring-cup/levels/2/rounds/1/items" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("language"); got != "fr" {
			t.Errorf("language = %q, want fr", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer player-token" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"items":[{"id":"a","hint":"chat","answer":"cat"},{"id":"b","hint":"chien","answer":"dog","questions":[{"question":"Sound?","answer":"woof"}]}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second, srv.Client())
	items, err := c.FetchItems(context.Background(), models.SegmentKey{
		ContestID: "spring-cup", LevelSeq: 2, RoundSeq: 1, Language: "fr",
	}, "player-token")
	if err != nil {
		t.Fatalf("FetchItems returned error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].ID != "a" || items[1].Questions[0].Answer != "woof" {
		t.Errorf("items = %+v", items)
	}
}

func TestSend(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{name: "string id", status: http.StatusCreated, body: `{"attemptId":"att-9"}`, want: "att-9"},
		{name: "numeric id", status: http.StatusOK, body: `{"attemptId":42}`, want: "42"},
		{name: "server error", status: http.StatusBadGateway, body: `down`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/api/telemetry" {
					t.Errorf("request = %s %s", r.Method, r.URL.Path)
				}
				body, _ := io.ReadAll(r.Body)
				if string(body) != `{"roundStatus":"completed"}` {
					t.Errorf("body = %s", body)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := NewClient(srv.URL, time.Second, srv.Client())
			got, err := c.Send(context.Background(), json.RawMessage(`{"roundStatus":"completed"}`), "tok")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Send error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Send = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, srv.Client())
	_, err := c.Send(context.Background(), json.RawMessage(`{}`), "expired")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Send error = %v, want ErrUnauthorized", err)
	}
}

func TestPlayerSubmitScores(t *testing.T) {
	var got models.ScoreSubmission
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/contests/spring-cup/scores" {
			t.Errorf("path = %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	token := "first"
	p := NewClient(srv.URL, time.Second, srv.Client()).ForPlayer(func() string { return token })
	token = "refreshed"

	err := p.SubmitScores(context.Background(), models.ScoreSubmission{
		ContestID: "spring-cup",
		Username:  "ana",
		Scores:    []models.LanguageScore{{Language: "fr", Score: 30}},
		IsFinal:   true,
	})
	if err != nil {
		t.Fatalf("SubmitScores returned error: %v", err)
	}
	if auth != "Bearer refreshed" {
		t.Errorf("Authorization = %q, want the refreshed token", auth)
	}
	if !got.IsFinal || got.Scores[0].Score != 30 {
		t.Errorf("submission = %+v", got)
	}
}

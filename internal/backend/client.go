package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"langclash/internal/models"
)

// ErrUnauthorized is returned when the backend rejects the bearer token
var ErrUnauthorized = errors.New("backend rejected credentials")

// Client talks to the content, score and telemetry services. Every call
// carries the player's bearer token.
type Client struct {
	baseURL string
	timeout time.Duration
	base    *http.Client
}

// NewClient creates a client for the backend at baseURL. A nil httpClient
// uses http.DefaultClient.
func NewClient(baseURL string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		base:    httpClient,
	}
}

// httpClient returns a client that injects token as a bearer header
func (c *Client) httpClient(ctx context.Context, token string) *http.Client {
	if token == "" {
		return c.base
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
}

func (c *Client) do(ctx context.Context, token, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case json.RawMessage:
			reader = bytes.NewReader(b)
		default:
			data, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("encode request: %w", err)
			}
			reader = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient(ctx, token).Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s returned %s: %s", method, path, resp.Status, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

type itemsResponse struct {
	Items []models.Item `json:"items"`
}

// FetchItems loads the ordered items of one segment
func (c *Client) FetchItems(ctx context.Context, key models.SegmentKey, token string) ([]models.Item, error) {
	path := fmt.Sprintf("/api/contests/%s/levels/%d/rounds/%d/items?language=%s",
		url.PathEscape(key.ContestID), key.LevelSeq, key.RoundSeq, url.QueryEscape(key.Language))

	var resp itemsResponse
	if err := c.do(ctx, token, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// SubmitScores posts a per-language score report
func (c *Client) SubmitScores(ctx context.Context, submission models.ScoreSubmission, token string) error {
	path := "/api/contests/" + url.PathEscape(submission.ContestID) + "/scores"
	return c.do(ctx, token, http.MethodPost, path, submission, nil)
}

type telemetryResponse struct {
	AttemptID json.RawMessage `json:"attemptId"`
}

// Send posts one telemetry payload and returns the collector's attempt id
func (c *Client) Send(ctx context.Context, payload json.RawMessage, token string) (string, error) {
	var resp telemetryResponse
	if err := c.do(ctx, token, http.MethodPost, "/api/telemetry", payload, &resp); err != nil {
		return "", err
	}
	return attemptID(resp.AttemptID), nil
}

// attemptID accepts either a string or a numeric id
func attemptID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return string(raw)
}

// PlayerAPI is the token-taking side of the backend used during play
type PlayerAPI interface {
	FetchItems(ctx context.Context, key models.SegmentKey, token string) ([]models.Item, error)
	SubmitScores(ctx context.Context, submission models.ScoreSubmission, token string) error
}

// Player binds a PlayerAPI to one player's token so it can serve as the
// content source and score submitter of a session.
type Player struct {
	api   PlayerAPI
	token func() string
}

// NewPlayer returns a Player that authenticates with the token returned
// by token at call time.
func NewPlayer(api PlayerAPI, token func() string) *Player {
	return &Player{api: api, token: token}
}

// ForPlayer binds the client to a player's token
func (c *Client) ForPlayer(token func() string) *Player {
	return NewPlayer(c, token)
}

// FetchItems loads segment items with the player's token
func (p *Player) FetchItems(ctx context.Context, key models.SegmentKey) ([]models.Item, error) {
	return p.api.FetchItems(ctx, key, p.token())
}

// SubmitScores posts scores with the player's token
func (p *Player) SubmitScores(ctx context.Context, submission models.ScoreSubmission) error {
	return p.api.SubmitScores(ctx, submission, p.token())
}

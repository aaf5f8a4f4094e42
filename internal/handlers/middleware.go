package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"langclash/internal/security"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const PlayerContextKey ContextKey = "player"

// Middleware holds dependencies for middleware functions
type Middleware struct {
	jwtSecret string
	limiter   *security.RateLimiter
}

// NewMiddleware creates a new middleware instance. limiter may be nil.
func NewMiddleware(jwtSecret string, limiter *security.RateLimiter) *Middleware {
	return &Middleware{jwtSecret: jwtSecret, limiter: limiter}
}

// RequirePlayer is middleware that requires a valid player bearer token
func (m *Middleware) RequirePlayer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := security.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
			return
		}

		player, err := security.ParsePlayerToken(m.jwtSecret, token)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "Rejected player token", err)
			return
		}

		ctx := context.WithValue(r.Context(), PlayerContextKey, player)
		next(w, r.WithContext(ctx))
	}
}

// RateLimit rejects callers that exceed the limiter's budget. Players are
// keyed by user id, anonymous callers by client IP.
func (m *Middleware) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.limiter != nil {
			key := security.GetClientIP(r)
			if player, ok := GetPlayerFromContext(r.Context()); ok {
				key = "player:" + player.UserID
			}
			if !m.limiter.Allow(key) {
				respondWithError(w, http.StatusTooManyRequests, ErrTooManyRequests, "", nil)
				return
			}
		}
		next(w, r)
	}
}

// Player chains authentication and rate limiting
func (m *Middleware) Player(next http.HandlerFunc) http.HandlerFunc {
	return m.RequirePlayer(m.RateLimit(next))
}

// Logging middleware logs HTTP requests
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		log.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// GetPlayerFromContext retrieves the player from the request context
func GetPlayerFromContext(ctx context.Context) (security.Player, bool) {
	player, ok := ctx.Value(PlayerContextKey).(security.Player)
	return player, ok
}

package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid player token")
)

// PlayerClaims are the claims carried by a player's bearer token. The
// subject is the player's user id.
type PlayerClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Player is the authenticated caller of the API
type Player struct {
	UserID   string
	Username string
	Token    string
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

// ParsePlayerToken validates an HS256 player token signed with secret
func ParsePlayerToken(secret, tokenString string) (Player, error) {
	if secret == "" {
		return Player{}, fmt.Errorf("%w: no signing secret configured", ErrInvalidToken)
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	claims := &PlayerClaims{}

	parsed, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return Player{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Player{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	username := claims.Username
	if username == "" {
		username = claims.Subject
	}
	return Player{UserID: claims.Subject, Username: username, Token: tokenString}, nil
}

// IssuePlayerToken signs a player token valid for ttl
func IssuePlayerToken(secret, userID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := PlayerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: username,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

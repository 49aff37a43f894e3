package taskqueue

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TaskTokenHeader carries the dispatcher's signed token on delivered tasks.
const TaskTokenHeader = "X-Task-Token"

const (
	tokenIssuer   = "task-dispatcher"
	tokenAudience = "tasks"
	tokenTTL      = 5 * time.Minute
)

var ErrInvalidTaskToken = errors.New("invalid task token")

// TokenSigner mints short-lived HMAC tokens that authenticate the dispatcher
// to the task handlers.
type TokenSigner struct {
	secret []byte
}

func NewTokenSigner(secret string) (*TokenSigner, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("task secret required")
	}
	return &TokenSigner{secret: []byte(secret)}, nil
}

// Sign issues a token for one task delivery.
func (s *TokenSigner) Sign(taskID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   taskID,
		Audience:  jwt.ClaimStrings{tokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign task token: %w", err)
	}
	return signed, nil
}

// Verify checks a delivered token and returns the task id it was minted for.
func (s *TokenSigner) Verify(raw string) (string, error) {
	parsed, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidTaskToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return "", ErrInvalidTaskToken
	}
	return claims.Subject, nil
}

// TokenFromRequest extracts the task token header from a delivered request.
func TokenFromRequest(r *http.Request) (string, bool) {
	token := strings.TrimSpace(r.Header.Get(TaskTokenHeader))
	return token, token != ""
}

// Package csrf implements double-submit tokens bound to a session's secret.
package csrf

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spendwise/backend/internal/session"
)

const HeaderName = "X-CSRF-Token"

var (
	ErrMissingToken = errors.New("csrf token missing")
	ErrNoSecret     = errors.New("session has no csrf secret")
	ErrInvalidToken = errors.New("csrf token invalid")
)

// Issue returns a fresh token signed with the session's csrf secret.
func Issue(s *session.Session) (string, error) {
	if s == nil || s.CSRFSecret == "" {
		return "", ErrNoSecret
	}

	claims := jwt.RegisteredClaims{
		ID:       uuid.NewString(),
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.CSRFSecret))
	if err != nil {
		return "", fmt.Errorf("sign csrf token: %w", err)
	}
	return token, nil
}

// Validate checks that token was issued for s.
func Validate(s *session.Session, token string) error {
	if token == "" {
		return ErrMissingToken
	}
	if s == nil || s.CSRFSecret == "" {
		return ErrNoSecret
	}

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(*jwt.Token) (interface{}, error) {
		return []byte(s.CSRFSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}

package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("session not found")
	ErrIncompleteSession = errors.New("session requires a user and a device")
)

type State string

const (
	StateAnonymous        State = "anonymous"
	StatePendingTwoFactor State = "pending_two_factor"
	StateAuthenticated    State = "authenticated"
)

// UserSnapshot is the part of a user a session carries between requests.
type UserSnapshot struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Session is server-side state for one browser session. The three flags obey
// authenticated => twoFactorVerified => !twoFactorPending.
type Session struct {
	ID                string        `json:"-"`
	DeviceID          string        `json:"deviceId,omitempty"`
	User              *UserSnapshot `json:"user,omitempty"`
	TwoFactorSecret   string        `json:"twoFactorSecret,omitempty"`
	TwoFactorPending  bool          `json:"twoFactorPending"`
	TwoFactorVerified bool          `json:"twoFactorVerified"`
	Authenticated     bool          `json:"authenticated"`
	CSRFSecret        string        `json:"csrfSecret"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

func (s *Session) State() State {
	switch {
	case s == nil:
		return StateAnonymous
	case s.Authenticated:
		return StateAuthenticated
	case s.TwoFactorPending:
		return StatePendingTwoFactor
	default:
		return StateAnonymous
	}
}

// Fields are the bound values a transition writes into the new session.
type Fields struct {
	DeviceID        string
	User            *UserSnapshot
	TwoFactorSecret string
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewID returns an opaque 256-bit session identifier.
func NewID() (string, error) {
	return randomToken(32)
}

func newCSRFSecret() (string, error) {
	return randomToken(32)
}

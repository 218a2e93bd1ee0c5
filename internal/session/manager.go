package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Manager moves sessions between states. Every transition issues a new
// session identifier and csrf secret and retires the previous identifier.
type Manager struct {
	store Store
	now   func() time.Time
}

func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// Load returns the session for id. An empty id is reported as ErrNotFound.
func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	return m.store.Get(ctx, id)
}

// Start creates an anonymous session with its own csrf secret.
func (m *Manager) Start(ctx context.Context) (*Session, error) {
	s, err := m.fresh()
	if err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Manager) fresh() (*Session, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	csrfSecret, err := newCSRFSecret()
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	return &Session{ID: id, CSRFSecret: csrfSecret, CreatedAt: now, UpdatedAt: now}, nil
}

// Transition regenerates the session into state with fields bound. oldID may
// be empty when the client had no session.
func (m *Manager) Transition(ctx context.Context, oldID string, state State, f Fields) (*Session, error) {
	next, err := m.fresh()
	if err != nil {
		return nil, err
	}

	switch state {
	case StatePendingTwoFactor:
		if err := f.validate(); err != nil {
			return nil, err
		}
		next.bind(f)
		next.TwoFactorPending = true
	case StateAuthenticated:
		if err := f.validate(); err != nil {
			return nil, err
		}
		next.bind(f)
		next.TwoFactorVerified = true
		next.Authenticated = true
	case StateAnonymous:
	default:
		return nil, fmt.Errorf("unknown session state %q", state)
	}

	if err := m.store.Replace(ctx, oldID, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Destroy removes the session. Destroying a missing session is not an error.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := m.store.Destroy(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func (f Fields) validate() error {
	if f.User == nil || f.User.ID == "" || f.DeviceID == "" {
		return ErrIncompleteSession
	}
	return nil
}

func (s *Session) bind(f Fields) {
	user := *f.User
	s.User = &user
	s.DeviceID = f.DeviceID
	s.TwoFactorSecret = f.TwoFactorSecret
}

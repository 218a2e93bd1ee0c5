package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spendwise/backend/internal/models"
	"github.com/spendwise/backend/internal/repositories"
	"github.com/spendwise/backend/internal/session"
	"github.com/spendwise/backend/internal/totp"
	"github.com/spendwise/backend/pkg/logger"
	"github.com/spendwise/backend/pkg/utils"
)

// RequestMeta carries request attributes recorded in the audit trail.
type RequestMeta struct {
	IP        string
	RequestID string
}

type LoginInput struct {
	Name       string
	Password   string
	DeviceName string
	SessionID  string
	Meta       RequestMeta
}

type LoginResult struct {
	Session    *session.Session
	User       *models.User
	Device     *models.Device
	Enrollment *totp.Enrollment
}

type VerifyResult struct {
	Session *session.Session
	Match   totp.Match
}

// AuthService drives the login and two-factor flows.
type AuthService struct {
	Credentials *CredentialVerifier
	Devices     *DeviceRegistry
	Users       repositories.UserRepository
	Sessions    *session.Manager
	TOTP        *totp.Engine
	Audit       *AuditService
	now         func() time.Time
}

func NewAuthService(users repositories.UserRepository, sessions *session.Manager, engine *totp.Engine, audit *AuditService) *AuthService {
	return &AuthService{
		Credentials: NewCredentialVerifier(users),
		Devices:     NewDeviceRegistry(users),
		Users:       users,
		Sessions:    sessions,
		TOTP:        engine,
		Audit:       audit,
		now:         time.Now,
	}
}

func snapshotOf(user *models.User) *session.UserSnapshot {
	return &session.UserSnapshot{ID: user.ID.String(), Name: user.Name, Role: string(user.Role)}
}

// Login checks credentials, resolves the device and regenerates the session.
// A verified device lands directly in the authenticated state.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	name := strings.TrimSpace(in.Name)

	user, err := s.Credentials.Verify(ctx, name, in.Password)
	if err != nil {
		logger.Warn("login_failed", map[string]interface{}{
			"name":   name,
			"ip":     in.Meta.IP,
			"reason": err.Error(),
		})
		return nil, err
	}

	var priorDeviceID string
	if prior, err := s.Sessions.Load(ctx, in.SessionID); err == nil {
		priorDeviceID = prior.DeviceID
	} else if !errors.Is(err, session.ErrNotFound) {
		return nil, fmt.Errorf("load prior session: %w", err)
	}

	device, isNew, err := s.Devices.ResolveOrCreate(ctx, user, priorDeviceID, in.DeviceName)
	if err != nil {
		return nil, err
	}

	if isNew {
		s.Audit.LogAsync(AuditEntry{
			UserID:    &user.ID,
			Event:     "device.registered",
			Subject:   "device",
			SubjectID: &device.DeviceID,
			Details:   map[string]interface{}{"device_name": device.DeviceName},
			IPAddress: in.Meta.IP,
			RequestID: in.Meta.RequestID,
		})
	}

	fields := session.Fields{
		DeviceID:        device.DeviceID.String(),
		User:            snapshotOf(user),
		TwoFactorSecret: device.TwoFactorSecret,
	}
	result := &LoginResult{User: user, Device: device}

	if device.TwoFactorVerified {
		if err := s.Users.RecordDeviceLogin(ctx, user.ID, device.DeviceID, s.now().UTC(), false); err != nil {
			return nil, fmt.Errorf("record device login: %w", err)
		}
		sess, err := s.Sessions.Transition(ctx, in.SessionID, session.StateAuthenticated, fields)
		if err != nil {
			return nil, fmt.Errorf("regenerate session: %w", err)
		}
		result.Session = sess

		logger.InfoWithUser(user.ID.String(), "user_login", map[string]interface{}{
			"device_id": device.DeviceID.String(),
			"ip":        in.Meta.IP,
		})
		s.Audit.LogAsync(AuditEntry{
			UserID:    &user.ID,
			Event:     "user.login",
			Subject:   "user",
			SubjectID: &user.ID,
			Details:   map[string]interface{}{"device_id": device.DeviceID.String(), "remembered_device": true},
			IPAddress: in.Meta.IP,
			RequestID: in.Meta.RequestID,
		})
		return result, nil
	}

	if isNew {
		secret, err := utils.OpenSecret(device.TwoFactorSecret)
		if err != nil {
			return nil, fmt.Errorf("open device secret: %w", err)
		}
		enrollment, err := s.TOTP.Enroll(user.Name, secret)
		if err != nil {
			return nil, fmt.Errorf("build enrollment: %w", err)
		}
		result.Enrollment = enrollment
	}

	sess, err := s.Sessions.Transition(ctx, in.SessionID, session.StatePendingTwoFactor, fields)
	if err != nil {
		return nil, fmt.Errorf("regenerate session: %w", err)
	}
	result.Session = sess

	logger.InfoWithUser(user.ID.String(), "user_login_2fa_pending", map[string]interface{}{
		"device_id":  device.DeviceID.String(),
		"new_device": isNew,
		"ip":         in.Meta.IP,
	})
	s.Audit.LogAsync(AuditEntry{
		UserID:    &user.ID,
		Event:     "user.login_2fa_pending",
		Subject:   "user",
		SubjectID: &user.ID,
		Details:   map[string]interface{}{"device_id": device.DeviceID.String(), "new_device": isNew},
		IPAddress: in.Meta.IP,
		RequestID: in.Meta.RequestID,
	})
	return result, nil
}

// VerifyTwoFactor checks code against the secret bound to the session. A
// wrong code leaves the session untouched so the client can retry.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, sessionID, code string, meta RequestMeta) (*VerifyResult, error) {
	sess, err := s.Sessions.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, unauthorized("session expired", err)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.User == nil || sess.DeviceID == "" {
		return nil, unauthorized("no login in progress for this session", nil)
	}
	if sess.Authenticated {
		return &VerifyResult{Session: sess}, nil
	}

	if _, err := totp.NormalizeCode(code); err != nil {
		return nil, invalidFormat("code must be exactly 6 digits", err)
	}

	userID, err := uuid.Parse(sess.User.ID)
	if err != nil {
		return nil, unauthorized("session is corrupted", err)
	}
	deviceID, err := uuid.Parse(sess.DeviceID)
	if err != nil {
		return nil, unauthorized("session is corrupted", err)
	}

	secret, err := utils.OpenSecret(sess.TwoFactorSecret)
	if err != nil {
		return nil, fmt.Errorf("open device secret: %w", err)
	}

	now := s.now()
	match, err := s.TOTP.Verify(secret, code, now)
	if err != nil {
		if errors.Is(err, totp.ErrCodeMismatch) {
			logger.WarnWithUser(sess.User.ID, "2fa_verification_failed", map[string]interface{}{
				"device_id": sess.DeviceID,
				"ip":        meta.IP,
			})
			s.Audit.LogAsync(AuditEntry{
				UserID:    &userID,
				Event:     "user.2fa_failed",
				Subject:   "device",
				SubjectID: &deviceID,
				IPAddress: meta.IP,
				RequestID: meta.RequestID,
			})
			return nil, &AuthError{Kind: KindUnauthorized, Message: "invalid or expired code", Hint: ClockSyncHint, Err: err}
		}
		if errors.Is(err, totp.ErrInvalidFormat) {
			return nil, invalidFormat("code must be exactly 6 digits", err)
		}
		return nil, fmt.Errorf("verify code: %w", err)
	}

	if err := s.Users.RecordDeviceLogin(ctx, userID, deviceID, now.UTC(), true); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, notFound("device not found", err)
		}
		return nil, fmt.Errorf("mark device verified: %w", err)
	}

	next, err := s.Sessions.Transition(ctx, sess.ID, session.StateAuthenticated, session.Fields{
		DeviceID:        sess.DeviceID,
		User:            sess.User,
		TwoFactorSecret: sess.TwoFactorSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("regenerate session: %w", err)
	}

	logger.InfoWithUser(sess.User.ID, "2fa_verified", map[string]interface{}{
		"device_id": sess.DeviceID,
		"policy":    match.Policy.String(),
	})
	s.Audit.LogAsync(AuditEntry{
		UserID:    &userID,
		Event:     "user.2fa_verified",
		Subject:   "device",
		SubjectID: &deviceID,
		Details:   map[string]interface{}{"policy": string(match.Policy.Kind)},
		IPAddress: meta.IP,
		RequestID: meta.RequestID,
	})
	return &VerifyResult{Session: next, Match: match}, nil
}

// CurrentSession returns the session only once it is fully authenticated.
func (s *AuthService) CurrentSession(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := s.Sessions.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, unauthorized("not authenticated", err)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	switch sess.State() {
	case session.StateAuthenticated:
		return sess, nil
	case session.StatePendingTwoFactor:
		return nil, unauthorized("two-factor verification pending", nil)
	default:
		return nil, unauthorized("not authenticated", nil)
	}
}

// EnsureSession returns the session for id, starting an anonymous one when
// there is none. created reports whether a new session was started.
func (s *AuthService) EnsureSession(ctx context.Context, sessionID string) (*session.Session, bool, error) {
	sess, err := s.Sessions.Load(ctx, sessionID)
	if err == nil {
		return sess, false, nil
	}
	if !errors.Is(err, session.ErrNotFound) {
		return nil, false, fmt.Errorf("load session: %w", err)
	}
	sess, err = s.Sessions.Start(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("start session: %w", err)
	}
	return sess, true, nil
}

// Logout destroys the session entirely.
func (s *AuthService) Logout(ctx context.Context, sess *session.Session, meta RequestMeta) error {
	if sess == nil {
		return nil
	}
	if err := s.Sessions.Destroy(ctx, sess.ID); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}

	if sess.User != nil {
		logger.InfoWithUser(sess.User.ID, "user_logout", map[string]interface{}{"ip": meta.IP})
		if userID, err := uuid.Parse(sess.User.ID); err == nil {
			s.Audit.LogAsync(AuditEntry{
				UserID:    &userID,
				Event:     "user.logout",
				Subject:   "user",
				SubjectID: &userID,
				IPAddress: meta.IP,
				RequestID: meta.RequestID,
			})
		}
	}
	return nil
}

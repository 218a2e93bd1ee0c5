package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/spendwise/backend/internal/models"
	"github.com/spendwise/backend/internal/session"
	"github.com/spendwise/backend/pkg/utils"
)

var meta = RequestMeta{IP: "127.0.0.1", RequestID: "req-1"}

func currentCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, at)
	if err != nil {
		t.Fatalf("GenerateCode() error = %v", err)
	}
	return code
}

func TestAliceLaptopScenario(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	env.createUser(t, "alice", "p@ss", models.UserRoleUser)

	first, err := env.auth.Login(ctx, LoginInput{Name: "alice", Password: "p@ss", DeviceName: "laptop", Meta: meta})
	if err != nil {
		t.Fatalf("first Login() error = %v", err)
	}
	if first.Enrollment == nil || first.Enrollment.QR == "" {
		t.Fatal("expected QR on first login from a new device")
	}
	if !first.Session.TwoFactorPending || first.Session.Authenticated {
		t.Fatalf("expected pending session, got %+v", first.Session)
	}

	secret := secretFromEnrollment(t, first.Enrollment)
	verified, err := env.auth.VerifyTwoFactor(ctx, first.Session.ID, currentCode(t, secret, env.now), meta)
	if err != nil {
		t.Fatalf("VerifyTwoFactor() error = %v", err)
	}
	s := verified.Session
	if !s.Authenticated || !s.TwoFactorVerified || s.TwoFactorPending {
		t.Fatalf("expected authenticated session, got %+v", s)
	}
	if s.ID == first.Session.ID {
		t.Fatal("expected session id to rotate on verification")
	}

	second, err := env.auth.Login(ctx, LoginInput{Name: "alice", Password: "p@ss", DeviceName: "laptop", Meta: meta})
	if err != nil {
		t.Fatalf("second Login() error = %v", err)
	}
	if second.Enrollment != nil {
		t.Fatal("expected no QR for an already verified device")
	}
	if !second.Session.Authenticated || second.Session.TwoFactorPending {
		t.Fatalf("expected remembered device to authenticate directly, got %+v", second.Session)
	}
	if second.Device.DeviceID != first.Device.DeviceID {
		t.Fatal("expected the same device to be resolved")
	}
}

func TestLoginUnverifiedDeviceDoesNotReissueQR(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	env.createUser(t, "alice", "p@ss", models.UserRoleUser)

	first, err := env.auth.Login(ctx, LoginInput{Name: "alice", Password: "p@ss", DeviceName: "X", Meta: meta})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	second, err := env.auth.Login(ctx, LoginInput{Name: "alice", Password: "p@ss", DeviceName: "X", Meta: meta})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if second.Enrollment != nil {
		t.Fatal("expected QR to be surfaced only once")
	}
	if second.Device.DeviceID != first.Device.DeviceID || second.Device.TwoFactorSecret != first.Device.TwoFactorSecret {
		t.Fatal("expected the same secret-bound device")
	}
	if !second.Session.TwoFactorPending {
		t.Fatal("expected unverified device to stay pending")
	}

	// the secret from the first enrollment still verifies on the second session
	secret := secretFromEnrollment(t, first.Enrollment)
	if _, err := env.auth.VerifyTwoFactor(ctx, second.Session.ID, currentCode(t, secret, env.now), meta); err != nil {
		t.Fatalf("VerifyTwoFactor() error = %v", err)
	}
}

func TestLoginResolvesDeviceFromPriorSession(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	env.createUser(t, "alice", "p@ss", models.UserRoleUser)

	first, err := env.auth.Login(ctx, LoginInput{Name: "alice", Password: "p@ss", Meta: meta})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	second, err := env.auth.Login(ctx, LoginInput{Name: "alice", Password: "p@ss", SessionID: first.Session.ID, Meta: meta})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if second.Device.DeviceID != first.Device.DeviceID {
		t.Fatal("expected device to be resolved through the prior session")
	}
	if second.Enrollment != nil {
		t.Fatal("expected no QR for a known device")
	}
	if _, err := env.auth.Sessions.Load(ctx, first.Session.ID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected prior session to be retired, got %v", err)
	}

	devices, err := env.repo.ListDevices(ctx, first.User.ID)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(devices))
	}
}

func TestLoginFailures(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	env.createUser(t, "alice", "p@ss", models.UserRoleUser)

	t.Run("unknown user is NotFound", func(t *testing.T) {
		_, err := env.auth.Login(ctx, LoginInput{Name: "bob", Password: "p@ss", Meta: meta})
		assertKind(t, err, KindNotFound)
	})

	t.Run("wrong password is Unauthorized", func(t *testing.T) {
		_, err := env.auth.Login(ctx, LoginInput{Name: "alice", Password: "nope", Meta: meta})
		assertKind(t, err, KindUnauthorized)
	})
}

func TestVerifyTwoFactorFailures(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	env.createUser(t, "alice", "p@ss", models.UserRoleUser)

	login, err := env.auth.Login(ctx, LoginInput{Name: "alice", Password: "p@ss", DeviceName: "laptop", Meta: meta})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	secret := secretFromEnrollment(t, login.Enrollment)

	t.Run("malformed code is InvalidFormat", func(t *testing.T) {
		for _, code := range []string{"12345", "abcdef", "1234567", ""} {
			_, err := env.auth.VerifyTwoFactor(ctx, login.Session.ID, code, meta)
			assertKind(t, err, KindInvalidFormat)
		}
	})

	t.Run("wrong code is Unauthorized with clock hint and retryable", func(t *testing.T) {
		_, err := env.auth.VerifyTwoFactor(ctx, login.Session.ID, currentCode(t, secret, env.now.Add(2*time.Hour)), meta)
		authErr := assertKind(t, err, KindUnauthorized)
		if authErr.Hint != ClockSyncHint {
			t.Fatalf("expected clock hint, got %q", authErr.Hint)
		}

		still, err := env.auth.Sessions.Load(ctx, login.Session.ID)
		if err != nil {
			t.Fatalf("expected session to survive a failed attempt: %v", err)
		}
		if still.State() != session.StatePendingTwoFactor {
			t.Fatalf("expected pending state, got %s", still.State())
		}
	})

	t.Run("unknown session is Unauthorized", func(t *testing.T) {
		_, err := env.auth.VerifyTwoFactor(ctx, "missing", "123456", meta)
		assertKind(t, err, KindUnauthorized)
	})

	t.Run("anonymous session is Unauthorized", func(t *testing.T) {
		anon, _, err := env.auth.EnsureSession(ctx, "")
		if err != nil {
			t.Fatalf("EnsureSession() error = %v", err)
		}
		_, err = env.auth.VerifyTwoFactor(ctx, anon.ID, "123456", meta)
		assertKind(t, err, KindUnauthorized)
	})

	t.Run("drifted clock within brute force range verifies", func(t *testing.T) {
		result, err := env.auth.VerifyTwoFactor(ctx, login.Session.ID, currentCode(t, secret, env.now.Add(-4*time.Minute)), meta)
		if err != nil {
			t.Fatalf("VerifyTwoFactor() error = %v", err)
		}
		if !result.Session.Authenticated {
			t.Fatal("expected authenticated session")
		}
	})
}

func TestCurrentSessionAndLogout(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	env.createUser(t, "alice", "p@ss", models.UserRoleUser)

	login, err := env.auth.Login(ctx, LoginInput{Name: "alice", Password: "p@ss", DeviceName: "laptop", Meta: meta})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	_, err = env.auth.CurrentSession(ctx, login.Session.ID)
	assertKind(t, err, KindUnauthorized)

	verified, err := env.auth.VerifyTwoFactor(ctx, login.Session.ID, currentCode(t, secretFromEnrollment(t, login.Enrollment), env.now), meta)
	if err != nil {
		t.Fatalf("VerifyTwoFactor() error = %v", err)
	}

	current, err := env.auth.CurrentSession(ctx, verified.Session.ID)
	if err != nil {
		t.Fatalf("CurrentSession() error = %v", err)
	}
	if current.User.Name != "alice" {
		t.Fatalf("unexpected session user: %+v", current.User)
	}

	if err := env.auth.Logout(ctx, current, meta); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	_, err = env.auth.CurrentSession(ctx, verified.Session.ID)
	assertKind(t, err, KindUnauthorized)
}

func TestConcurrentSameNameLoginsIssueOneEnrollment(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	env.createUser(t, "alice", "p@ss", models.UserRoleUser)

	const workers = 6
	var wg sync.WaitGroup
	results := make([]*LoginResult, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.auth.Login(ctx, LoginInput{Name: "alice", Password: "p@ss", DeviceName: "phone", Meta: meta})
		}(i)
	}
	wg.Wait()

	enrollments := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d failed: %v", i, errs[i])
		}
		if results[i].Enrollment != nil {
			enrollments++
		}
		if results[i].Device.DeviceID != results[0].Device.DeviceID {
			t.Fatalf("worker %d bound a divergent device", i)
		}
	}
	if enrollments != 1 {
		t.Fatalf("expected exactly one enrollment artifact, got %d", enrollments)
	}
}

func TestDeviceSecretEncryptedAtRest(t *testing.T) {
	utils.ConfigureEncryption("test-encryption-secret")
	t.Cleanup(func() { utils.ConfigureEncryption("") })

	env := setupServices(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice", "p@ss", models.UserRoleUser)

	login, err := env.auth.Login(ctx, LoginInput{Name: "alice", Password: "p@ss", DeviceName: "laptop", Meta: meta})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	secret := secretFromEnrollment(t, login.Enrollment)

	devices, err := env.repo.ListDevices(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if !utils.IsSealed(devices[0].TwoFactorSecret) {
		t.Fatal("expected stored secret to be sealed")
	}
	if opened, err := utils.OpenSecret(devices[0].TwoFactorSecret); err != nil || opened != secret {
		t.Fatalf("expected sealed secret to open to the enrolled secret, got %q (%v)", opened, err)
	}

	if _, err := env.auth.VerifyTwoFactor(ctx, login.Session.ID, currentCode(t, secret, env.now), meta); err != nil {
		t.Fatalf("VerifyTwoFactor() error = %v", err)
	}
}

func TestAuditTrail(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	env.createUser(t, "alice", "p@ss", models.UserRoleUser)

	login, err := env.auth.Login(ctx, LoginInput{Name: "alice", Password: "p@ss", DeviceName: "laptop", Meta: meta})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if _, err := env.auth.VerifyTwoFactor(ctx, login.Session.ID, currentCode(t, secretFromEnrollment(t, login.Enrollment), env.now), meta); err != nil {
		t.Fatalf("VerifyTwoFactor() error = %v", err)
	}
	env.audit.Close()

	for _, event := range []string{"admin.user_create", "device.registered", "user.login_2fa_pending", "user.2fa_verified"} {
		var count int64
		if err := env.db.Model(&models.AuditLog{}).Where("event = ?", event).Count(&count).Error; err != nil {
			t.Fatalf("count audit rows: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected one %s audit row, got %d", event, count)
		}
	}
}

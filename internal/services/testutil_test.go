package services

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spendwise/backend/internal/database"
	"github.com/spendwise/backend/internal/models"
	"github.com/spendwise/backend/internal/repositories"
	"github.com/spendwise/backend/internal/session"
	"github.com/spendwise/backend/internal/totp"
	"github.com/spendwise/backend/pkg/utils"
	"gorm.io/gorm"
)

type testEnv struct {
	db    *gorm.DB
	repo  *repositories.GormUserRepository
	audit *AuditService
	auth  *AuthService
	admin *UserAdmin
	now   time.Time
}

func setupServices(t *testing.T) *testEnv {
	t.Helper()

	utils.DefaultArgon2Params = utils.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating schema: %v", err)
	}

	repo := repositories.NewGormUserRepository(db)
	audit := NewAuditService(db)
	t.Cleanup(func() {
		audit.Close()
		_ = sqlDB.Close()
	})

	env := &testEnv{
		db:    db,
		repo:  repo,
		audit: audit,
		admin: NewUserAdmin(repo, audit),
		auth:  NewAuthService(repo, session.NewManager(session.NewMemoryStore(time.Hour)), totp.NewEngine("Spendwise"), audit),
		now:   time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	env.auth.now = func() time.Time { return env.now }
	return env
}

func (e *testEnv) createUser(t *testing.T, name, password string, role models.UserRole) *models.User {
	t.Helper()
	user, err := e.admin.Create(context.Background(), name, password, role, nil, RequestMeta{IP: "127.0.0.1"})
	if err != nil {
		t.Fatalf("failed creating user %s: %v", name, err)
	}
	return user
}

func secretFromEnrollment(t *testing.T, enrollment *totp.Enrollment) string {
	t.Helper()
	if enrollment == nil {
		t.Fatal("expected enrollment artifact")
	}
	u, err := url.Parse(enrollment.URI)
	if err != nil {
		t.Fatalf("invalid provisioning uri: %v", err)
	}
	return u.Query().Get("secret")
}

func assertKind(t *testing.T, err error, kind ErrorKind) *AuthError {
	t.Helper()
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Kind != kind {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
	return authErr
}

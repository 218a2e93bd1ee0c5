package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spendwise/backend/internal/models"
	"github.com/spendwise/backend/internal/repositories"
	"github.com/spendwise/backend/pkg/logger"
	"github.com/spendwise/backend/pkg/utils"
)

// UserAdmin holds the administrative user operations shared by the HTTP
// admin routes and authctl.
type UserAdmin struct {
	Users repositories.UserRepository
	Audit *AuditService
}

func NewUserAdmin(users repositories.UserRepository, audit *AuditService) *UserAdmin {
	return &UserAdmin{Users: users, Audit: audit}
}

func (a *UserAdmin) List(ctx context.Context) ([]models.User, error) {
	users, err := a.Users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (a *UserAdmin) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := a.Users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, notFound("user not found", err)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func (a *UserAdmin) GetByName(ctx context.Context, name string) (*models.User, error) {
	user, err := a.Users.FindByName(ctx, strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, notFound("user not found", err)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// Create stores a new user. actorID is nil for operations run from authctl.
func (a *UserAdmin) Create(ctx context.Context, name, password string, role models.UserRole, actorID *uuid.UUID, meta RequestMeta) (*models.User, error) {
	if role == "" {
		role = models.UserRoleUser
	}
	if !role.Valid() {
		return nil, invalidFormat(fmt.Sprintf("unknown role %q", role), nil)
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{Name: strings.TrimSpace(name), PasswordHash: hash, Role: role}
	if err := a.Users.Create(ctx, user); err != nil {
		return nil, err
	}

	logger.Info("user_created", map[string]interface{}{
		"user_id": user.ID.String(),
		"name":    user.Name,
		"role":    string(user.Role),
	})
	a.Audit.LogAsync(AuditEntry{
		UserID:    actorID,
		Event:     "admin.user_create",
		Subject:   "user",
		SubjectID: &user.ID,
		Details:   map[string]interface{}{"name": user.Name, "role": string(user.Role)},
		IPAddress: meta.IP,
		RequestID: meta.RequestID,
	})
	return user, nil
}

func (a *UserAdmin) ResetPassword(ctx context.Context, id uuid.UUID, password string, actorID *uuid.UUID, meta RequestMeta) error {
	hash, err := utils.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := a.Users.UpdatePassword(ctx, id, hash); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return notFound("user not found", err)
		}
		return fmt.Errorf("update password: %w", err)
	}

	logger.Info("user_password_reset", map[string]interface{}{"user_id": id.String()})
	a.Audit.LogAsync(AuditEntry{
		UserID:    actorID,
		Event:     "admin.password_reset",
		Subject:   "user",
		SubjectID: &id,
		IPAddress: meta.IP,
		RequestID: meta.RequestID,
	})
	return nil
}

func (a *UserAdmin) Devices(ctx context.Context, id uuid.UUID) ([]models.Device, error) {
	user, err := a.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.Devices, nil
}

// EnsureSuperadmin seeds a superadmin when the user store is empty. Without a
// configured password nothing is seeded.
func (a *UserAdmin) EnsureSuperadmin(ctx context.Context, name, password string) (bool, error) {
	count, err := a.Users.Count(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if password == "" {
		logger.Warn("superadmin_seed_skipped", map[string]interface{}{
			"reason": "ADMIN_PASSWORD not set",
		})
		return false, nil
	}

	if _, err := a.Create(ctx, name, password, models.UserRoleSuperadmin, nil, RequestMeta{IP: "local"}); err != nil {
		return false, fmt.Errorf("seed superadmin: %w", err)
	}
	return true, nil
}

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
	"github.com/spendwise/backend/internal/totp"
	"github.com/spendwise/backend/pkg/logger"
	"github.com/spendwise/backend/pkg/utils"
)

type DeviceRegistry struct {
	Users repositories.UserRepository
	now   func() time.Time
}

func NewDeviceRegistry(users repositories.UserRepository) *DeviceRegistry {
	return &DeviceRegistry{Users: users, now: time.Now}
}

// ResolveOrCreate finds the device a login comes from: first by the id the
// previous session was bound to, then by name. Otherwise a device with a
// fresh secret is stored. isNew is true only for the request whose insert
// won, so the enrollment artifact is handed out once.
func (r *DeviceRegistry) ResolveOrCreate(ctx context.Context, user *models.User, sessionDeviceID, deviceName string) (*models.Device, bool, error) {
	if user == nil {
		return nil, false, notFound("user not found", nil)
	}
	deviceName = strings.TrimSpace(deviceName)

	if device := user.FindDevice(sessionDeviceID); device != nil {
		return device, false, nil
	}
	if device := user.FindDeviceByName(deviceName); device != nil {
		return device, false, nil
	}

	secret, err := totp.GenerateSecret()
	if err != nil {
		return nil, false, err
	}
	sealed, err := utils.SealSecret(secret)
	if err != nil {
		return nil, false, fmt.Errorf("seal device secret: %w", err)
	}

	device := &models.Device{
		DeviceID:        uuid.New(),
		DeviceName:      deviceName,
		TwoFactorSecret: sealed,
		CreatedAt:       r.now().UTC(),
	}

	stored, created, err := r.Users.AppendDevice(ctx, user.ID, device)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, false, notFound("user not found", err)
		}
		return nil, false, fmt.Errorf("register device: %w", err)
	}

	if created {
		logger.InfoWithUser(user.ID.String(), "device_registered", map[string]interface{}{
			"device_id":   stored.DeviceID.String(),
			"device_name": stored.DeviceName,
		})
	} else {
		logger.InfoWithUser(user.ID.String(), "device_registration_conflict", map[string]interface{}{
			"device_id":   stored.DeviceID.String(),
			"device_name": stored.DeviceName,
		})
	}
	return stored, created, nil
}

// List returns the user's devices in registration order.
func (r *DeviceRegistry) List(ctx context.Context, userID uuid.UUID) ([]models.Device, error) {
	devices, err := r.Users.ListDevices(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, notFound("user not found", err)
		}
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

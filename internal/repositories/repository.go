package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/spendwise/backend/internal/models"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicateName = errors.New("user name already taken")
)

// UserRepository persists users and their trusted devices.
type UserRepository interface {
	FindByName(ctx context.Context, name string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error

	// AppendDevice inserts device unless the user already owns a device with
	// the same DeviceID or a non-empty DeviceName. When it loses, the existing
	// device is returned with created=false.
	AppendDevice(ctx context.Context, userID uuid.UUID, device *models.Device) (stored *models.Device, created bool, err error)

	// RecordDeviceLogin stamps lastLogin and, when verified is set, marks
	// the device as having passed two-factor verification.
	RecordDeviceLogin(ctx context.Context, userID, deviceID uuid.UUID, at time.Time, verified bool) error

	ListDevices(ctx context.Context, userID uuid.UUID) ([]models.Device, error)
}

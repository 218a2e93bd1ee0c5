package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spendwise/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormUserRepository struct {
	DB *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{DB: db}
}

func orderedDevices(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC")
}

func (r *GormUserRepository) FindByName(ctx context.Context, name string) (*models.User, error) {
	var user models.User
	err := r.DB.WithContext(ctx).Preload("Devices", orderedDevices).Where("name = ?", name).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user by name: %w", err)
	}
	return &user, nil
}

func (r *GormUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.DB.WithContext(ctx).Preload("Devices", orderedDevices).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

func (r *GormUserRepository) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.DB.WithContext(ctx).Order("name ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (r *GormUserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (r *GormUserRepository) Create(ctx context.Context, user *models.User) error {
	var existing int64
	if err := r.DB.WithContext(ctx).Model(&models.User{}).Where("name = ?", user.Name).Count(&existing).Error; err != nil {
		return fmt.Errorf("check user name: %w", err)
	}
	if existing > 0 {
		return ErrDuplicateName
	}
	if err := r.DB.WithContext(ctx).Omit("Devices").Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *GormUserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	res := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("password_hash", passwordHash)
	if res.Error != nil {
		return fmt.Errorf("update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormUserRepository) AppendDevice(ctx context.Context, userID uuid.UUID, device *models.Device) (*models.Device, bool, error) {
	db := r.DB.WithContext(ctx)

	var owners int64
	if err := db.Model(&models.User{}).Where("id = ?", userID).Count(&owners).Error; err != nil {
		return nil, false, fmt.Errorf("check device owner: %w", err)
	}
	if owners == 0 {
		return nil, false, ErrNotFound
	}

	device.UserID = userID
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(device)
	if res.Error != nil {
		return nil, false, fmt.Errorf("insert device: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return device, true, nil
	}

	var existing models.Device
	query := db.Where("user_id = ?", userID)
	if device.DeviceName != "" {
		query = query.Where("device_id = ? OR device_name = ?", device.DeviceID, device.DeviceName)
	} else {
		query = query.Where("device_id = ?", device.DeviceID)
	}
	if err := query.Order("created_at ASC").First(&existing).Error; err != nil {
		return nil, false, fmt.Errorf("load conflicting device: %w", err)
	}
	return &existing, false, nil
}

func (r *GormUserRepository) RecordDeviceLogin(ctx context.Context, userID, deviceID uuid.UUID, at time.Time, verified bool) error {
	updates := map[string]interface{}{"last_login": at}
	if verified {
		updates["two_factor_verified"] = true
	}
	res := r.DB.WithContext(ctx).Model(&models.Device{}).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("record device login: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormUserRepository) ListDevices(ctx context.Context, userID uuid.UUID) ([]models.Device, error) {
	var devices []models.Device
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

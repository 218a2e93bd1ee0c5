package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Device binds one client to its own TOTP secret. TwoFactorSecret is written
// once at creation and never rotated; it holds the sealed form when
// encryption at rest is configured.
type Device struct {
	DeviceID          uuid.UUID  `json:"deviceId" gorm:"type:uuid;primaryKey"`
	UserID            uuid.UUID  `json:"-" gorm:"type:uuid;not null;index"`
	DeviceName        string     `json:"deviceName" gorm:"type:varchar(100);not null;default:''"`
	LastLogin         *time.Time `json:"lastLogin,omitempty"`
	TwoFactorVerified bool       `json:"twoFactorVerified" gorm:"not null;default:false"`
	TwoFactorSecret   string     `json:"-" gorm:"type:text;not null"`
	CreatedAt         time.Time  `json:"createdAt" gorm:"not null"`
}

func (d *Device) BeforeCreate(_ *gorm.DB) error {
	if d.DeviceID == uuid.Nil {
		d.DeviceID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (Device) TableName() string {
	return "devices"
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog records one authentication or administration event. Rows are
// only ever inserted.
type AuditLog struct {
	ID        uuid.UUID              `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    *uuid.UUID             `json:"userId,omitempty" gorm:"type:uuid;index"`
	Event     string                 `json:"event" gorm:"type:varchar(50);not null;index"`
	Subject   string                 `json:"subject" gorm:"type:varchar(20);not null"`
	SubjectID *uuid.UUID             `json:"subjectId,omitempty" gorm:"type:uuid;index"`
	Details   map[string]interface{} `json:"details,omitempty" gorm:"serializer:json"`
	IPAddress string                 `json:"ipAddress" gorm:"type:varchar(45);not null;default:''"`
	RequestID string                 `json:"requestId,omitempty" gorm:"type:varchar(36)"`
	CreatedAt time.Time              `json:"createdAt" gorm:"not null;index"`
}

func (e *AuditLog) BeforeCreate(_ *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

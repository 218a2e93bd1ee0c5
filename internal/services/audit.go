package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spendwise/backend/internal/models"
	"github.com/spendwise/backend/pkg/logger"
	"gorm.io/gorm"
)

const auditQueueSize = 1000

// AuditEntry describes one event. Subject names what SubjectID points at,
// "user" or "device".
type AuditEntry struct {
	UserID    *uuid.UUID
	Event     string
	Subject   string
	SubjectID *uuid.UUID
	Details   map[string]interface{}
	IPAddress string
	RequestID string
}

// AuditService persists events from a single background writer. When DB is
// nil (document store deployments) events are written to the log.
type AuditService struct {
	DB *gorm.DB

	events chan models.AuditLog
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

func NewAuditService(db *gorm.DB) *AuditService {
	s := &AuditService{
		DB:     db,
		events: make(chan models.AuditLog, auditQueueSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// LogAsync enqueues entry without blocking. Entries are dropped when the
// queue is full or the service is closed. A nil service ignores everything.
func (s *AuditService) LogAsync(entry AuditEntry) {
	if s == nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.events <- toAuditLog(entry):
	default:
		logger.Warn("audit_event_dropped", map[string]interface{}{"event": entry.Event})
	}
}

// Close stops intake and waits for queued events to be written. It may be
// called more than once.
func (s *AuditService) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()
	<-s.done
}

func toAuditLog(e AuditEntry) models.AuditLog {
	return models.AuditLog{
		UserID:    e.UserID,
		Event:     e.Event,
		Subject:   e.Subject,
		SubjectID: e.SubjectID,
		Details:   e.Details,
		IPAddress: e.IPAddress,
		RequestID: e.RequestID,
		CreatedAt: time.Now().UTC(),
	}
}

func (s *AuditService) run() {
	defer close(s.done)

	for row := range s.events {
		if s.DB != nil {
			if err := s.DB.Create(&row).Error; err != nil {
				logger.Error("audit_write_failed", err, map[string]interface{}{"event": row.Event})
			}
			continue
		}
		logEvent(row)
	}
}

func logEvent(row models.AuditLog) {
	details := map[string]interface{}{
		"event":      row.Event,
		"subject":    row.Subject,
		"ip":         row.IPAddress,
		"request_id": row.RequestID,
	}
	if row.SubjectID != nil {
		details["subject_id"] = row.SubjectID.String()
	}
	for k, v := range row.Details {
		details[k] = v
	}

	if row.UserID == nil {
		logger.Info("audit_event", details)
		return
	}
	logger.InfoWithUser(row.UserID.String(), "audit_event", details)
}

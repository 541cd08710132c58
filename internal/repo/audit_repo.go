// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the audit-log repository recording one
// row per processed inbound event.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumakode/go-chatbot-backend/internal/domain"
)

// CreateAuditLog inserts an audit row. Callers treat failures as
// non-fatal: auditing never blocks or fails the user-facing reply.
func CreateAuditLog(ctx context.Context, db *gorm.DB, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(&entry).Error
}

// ListAuditByEvent returns audit entries for an external event id, newest first.
func ListAuditByEvent(ctx context.Context, db *gorm.DB, source, externalEventID string) ([]domain.AuditLog, error) {
	var out []domain.AuditLog
	err := db.WithContext(ctx).
		Where("source = ? AND external_event_id = ?", source, externalEventID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

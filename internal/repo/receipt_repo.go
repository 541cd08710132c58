// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the event-receipt repository that
// enforces exactly-one processing attempt per (source, external_event_id).
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumakode/go-chatbot-backend/internal/domain"
)

// ErrDuplicate indicates that a receipt already exists for the given
// (source, external_event_id) pair.
var ErrDuplicate = errors.New("duplicate")

// StartProcessing durably records a processing attempt for an inbound event.
//
// The first call for a key inserts a receipt and returns (receipt, false,
// nil). Any later call — including a concurrent one racing the first — hits
// the unique index, and the previously stored receipt is returned with
// isDuplicate=true. The race is resolved by the store's uniqueness
// constraint, never by an in-memory check.
//
// Store errors other than the unique violation are returned as-is: duplicate
// protection is a correctness requirement, so this path must not fail open.
func StartProcessing(ctx context.Context, db *gorm.DB, source, externalEventID, requestID string, ttl time.Duration) (*domain.EventReceipt, bool, error) {
	now := time.Now().UTC()
	rec := &domain.EventReceipt{
		ID:              uuid.NewString(),
		Source:          source,
		ExternalEventID: externalEventID,
		RequestID:       requestID,
		FirstSeenAt:     now,
		ExpiresAt:       now.Add(ttl),
	}
	err := db.WithContext(ctx).Create(rec).Error
	if err == nil {
		return rec, false, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, err
	}

	prior, gerr := GetReceipt(ctx, db, source, externalEventID)
	if gerr != nil {
		return nil, true, gerr
	}
	return prior, true, nil
}

// GetReceipt fetches the receipt for (source, external_event_id) or ErrNotFound.
func GetReceipt(ctx context.Context, db *gorm.DB, source, externalEventID string) (*domain.EventReceipt, error) {
	var rec domain.EventReceipt
	err := db.WithContext(ctx).
		Where("source = ? AND external_event_id = ?", source, externalEventID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkProcessed finalizes a receipt with the produced reply so duplicate
// deliveries can replay it.
func MarkProcessed(ctx context.Context, db *gorm.DB, source, externalEventID, responseText, turnID string) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.EventReceipt{}).
		Where("source = ? AND external_event_id = ?", source, externalEventID).
		Updates(map[string]any{
			"response_text": responseText,
			"turn_id":       turnID,
			"processed_at":  &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeExpiredReceipts deletes receipts past their expiry. Intended for a
// periodic maintenance call; processing never depends on it running.
func PurgeExpiredReceipts(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.EventReceipt{})
	return res.RowsAffected, res.Error
}

// isUniqueViolation reports whether err is a unique-constraint failure.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

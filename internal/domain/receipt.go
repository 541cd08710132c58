// Package domain defines the core persistence models for the application.
// This file holds the event receipt used to deduplicate inbound deliveries.
package domain

import "time"

// EventReceipt records a single processing attempt for an inbound chat
// event, keyed by (source, external_event_id). Channels such as WhatsApp
// redeliver webhooks freely; the unique index on the key pair resolves
// concurrent deliveries in the store, not in process memory.
//
// ResponseText is filled in when processing completes so a later duplicate
// can replay the original reply instead of re-running side effects.
type EventReceipt struct {
	ID              string     `gorm:"type:char(36);primaryKey"`
	Source          string     `gorm:"type:varchar(16);not null;uniqueIndex:ux_event_receipt,priority:1"`
	ExternalEventID string     `gorm:"type:varchar(128);not null;uniqueIndex:ux_event_receipt,priority:2"`
	RequestID       string     `gorm:"type:varchar(64);not null"`
	ResponseText    string     `gorm:"type:text"`
	TurnID          string     `gorm:"type:char(36)"`
	ProcessedAt     *time.Time `gorm:"type:DATETIME"`
	FirstSeenAt     time.Time  `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt       time.Time  `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (EventReceipt) TableName() string { return "event_receipts" }

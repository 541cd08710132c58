// Package domain defines the persistence models for conversations, turns,
// outbound messages, and processing audit entries. These types are mapped
// with GORM and form the core data layer of the orchestration engine.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Sender values for ConversationTurn.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Source values for inbound events.
const (
	SourceWeb      = "web"
	SourceWhatsApp = "whatsapp"
)

// Conversation represents one ongoing dialog with a user on a channel. All
// turns of the dialog hang off it; cross-turn flow state lives in the
// metadata of the most recent bot turn, never on the conversation row.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: identifier of the owner when authenticated; empty for guests.
//   - Source: originating channel ("web" or "whatsapp").
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker (retains rows for audit/history).
type Conversation struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"    gorm:"type:varchar(64);index:idx_user_convs"`
	Source    string         `json:"source"     gorm:"type:varchar(16);not null;check:source IN ('web','whatsapp')"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// ConversationTurn is a single utterance inside a conversation, authored by
// the "user" or the "bot". Turns are appended, never mutated. A user/bot
// pair produced by one inbound event shares one ExternalEventID, which is
// how exactly-once turn persistence is enforced.
//
// Metadata is an opaque, versioned JSON document written by the bot turn and
// read back on the next inbound event; it is the sole cross-turn state
// carrier (flow states, recommendation memory, catalog snapshots).
type ConversationTurn struct {
	ID              string         `json:"id"                gorm:"type:char(36);primaryKey"`
	ConversationID  string         `json:"conversation_id"   gorm:"type:char(36);not null;index:idx_conv_turns,priority:1"`
	UserID          string         `json:"user_id"           gorm:"type:varchar(64)"`
	Sender          string         `json:"sender"            gorm:"type:varchar(8);not null;check:sender IN ('user','bot')"`
	Content         string         `json:"content"           gorm:"type:text;not null"`
	Intent          string         `json:"intent,omitempty"  gorm:"type:varchar(48)"`
	Metadata        string         `json:"-"                 gorm:"type:text"` // versioned JSON, see metadata.go
	ExternalEventID string         `json:"external_event_id" gorm:"type:varchar(128);not null;index"`
	CreatedAt       time.Time      `json:"created_at"        gorm:"index:idx_conv_turns,priority:2"`
	DeletedAt       gorm.DeletedAt `json:"-"                 gorm:"index"`

	// Conversation is the parent dialog. Turns are cascade-deleted if the
	// conversation is removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ConversationTurn.
func (ConversationTurn) TableName() string { return "conversation_turns" }

// OutboundMessage is the outbox row for the single reply owed per inbound
// event. The unique index on (source, external_event_id) is what makes the
// delivery exactly-once: a concurrent second processing attempt fails the
// insert instead of emitting a second reply.
type OutboundMessage struct {
	ID              string    `json:"id"                gorm:"type:char(36);primaryKey"`
	Source          string    `json:"source"            gorm:"type:varchar(16);not null;uniqueIndex:ux_outbound_event,priority:1"`
	ExternalEventID string    `json:"external_event_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_outbound_event,priority:2"`
	ConversationID  string    `json:"conversation_id"   gorm:"type:char(36);not null;index"`
	Body            string    `json:"body"              gorm:"type:text;not null"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName returns the database table name for OutboundMessage.
func (OutboundMessage) TableName() string { return "outbound_messages" }

// AuditLog records one processed inbound event for traceability: routing
// decision, fallback usage, latency, and estimated LLM spend. Rows are
// written fire-and-forget at finalize time and never block the reply.
type AuditLog struct {
	ID              string    `json:"id"                gorm:"type:char(36);primaryKey"`
	RequestID       string    `json:"request_id"        gorm:"type:varchar(64);index"`
	Source          string    `json:"source"            gorm:"type:varchar(16);not null"`
	ExternalEventID string    `json:"external_event_id" gorm:"type:varchar(128);not null;index"`
	ConversationID  string    `json:"conversation_id"   gorm:"type:char(36);index"`
	Intent          string    `json:"intent"            gorm:"type:varchar(48)"`
	Model           string    `json:"model"             gorm:"type:varchar(64)"`
	Fallback        bool      `json:"fallback"`
	LatencyMs       int64     `json:"latency_ms"`
	CostUSD         float64   `json:"cost_usd"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName returns the database table name for AuditLog.
func (AuditLog) TableName() string { return "audit_log" }

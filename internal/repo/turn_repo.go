// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for conversations,
// turns, and the outbound-message outbox.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumakode/go-chatbot-backend/internal/domain"
)

// GetConversation fetches a conversation by ID, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// EnsureConversation returns the conversation with the given ID, creating it
// when absent. A blank ID always creates a fresh conversation.
func EnsureConversation(ctx context.Context, db *gorm.DB, id, userID, source string) (*domain.Conversation, error) {
	if id != "" {
		conv, err := GetConversation(ctx, db, id)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	conv := &domain.Conversation{
		ID:     uuid.NewString(),
		UserID: userID,
		Source: source,
	}
	if id != "" {
		conv.ID = id
	}
	return conv, db.WithContext(ctx).Create(conv).Error
}

// TurnPair bundles the two turns produced by one inbound event.
type TurnPair struct {
	User domain.ConversationTurn
	Bot  domain.ConversationTurn
}

// PersistTurn writes the user+bot turn pair and the outbox row in one
// transaction keyed by the external event ID. The unique index on the
// outbox (source, external_event_id) makes the write exactly-once: a second
// attempt for the same event fails with ErrDuplicate and leaves nothing
// behind.
func PersistTurn(ctx context.Context, db *gorm.DB, conversationID, userID, source, externalEventID, userText, botText, intent, botMetadata string) (*TurnPair, error) {
	now := time.Now().UTC()
	pair := &TurnPair{
		User: domain.ConversationTurn{
			ID:              uuid.NewString(),
			ConversationID:  conversationID,
			UserID:          userID,
			Sender:          domain.SenderUser,
			Content:         userText,
			Intent:          intent,
			ExternalEventID: externalEventID,
			CreatedAt:       now,
		},
		Bot: domain.ConversationTurn{
			ID:              uuid.NewString(),
			ConversationID:  conversationID,
			UserID:          userID,
			Sender:          domain.SenderBot,
			Content:         botText,
			Intent:          intent,
			Metadata:        botMetadata,
			ExternalEventID: externalEventID,
			CreatedAt:       now.Add(time.Millisecond), // keep bot turn strictly after the user turn
		},
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		out := &domain.OutboundMessage{
			ID:              uuid.NewString(),
			Source:          source,
			ExternalEventID: externalEventID,
			ConversationID:  conversationID,
			Body:            botText,
			CreatedAt:       now,
		}
		// Outbox first: its unique index is the exactly-once gate for the
		// whole pair.
		if err := tx.Create(out).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		if err := tx.Create(&pair.User).Error; err != nil {
			return err
		}
		return tx.Create(&pair.Bot).Error
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// LatestBotTurn returns the most recent bot turn of a conversation, or
// ErrNotFound when the conversation has no bot turn yet. Flow adapters read
// their state from this turn's metadata.
func LatestBotTurn(ctx context.Context, db *gorm.DB, conversationID string) (*domain.ConversationTurn, error) {
	var turn domain.ConversationTurn
	err := db.WithContext(ctx).
		Where("conversation_id = ? AND sender = ?", conversationID, domain.SenderBot).
		Order("created_at DESC, id DESC").
		First(&turn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &turn, nil
}

// ListRecentTurns returns the newest turns of a conversation in
// chronological order, capped at limit. Used to build LLM history context.
func ListRecentTurns(ctx context.Context, db *gorm.DB, conversationID string, limit int) ([]domain.ConversationTurn, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []domain.ConversationTurn
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CountTurns returns the total number of turns for pagination.
func CountTurns(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ConversationTurn{}).
		Where("conversation_id = ?", conversationID).
		Count(&total).Error
	return total, err
}

// ListTurnsPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListTurnsPage(ctx context.Context, db *gorm.DB, conversationID string, offset, limit int) ([]domain.ConversationTurn, error) {
	var out []domain.ConversationTurn
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

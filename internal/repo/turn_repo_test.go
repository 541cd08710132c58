package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/lumakode/go-chatbot-backend/internal/domain"
)

func allModels() []any {
	return []any{
		&domain.Conversation{},
		&domain.ConversationTurn{},
		&domain.OutboundMessage{},
	}
}

func TestEnsureConversation_CreatesAndReuses(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()

	created, err := EnsureConversation(ctx, db, "", "u1", domain.SourceWeb)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated conversation id")
	}

	same, err := EnsureConversation(ctx, db, created.ID, "u1", domain.SourceWeb)
	if err != nil {
		t.Fatalf("reuse: %v", err)
	}
	if same.ID != created.ID {
		t.Fatalf("expected same conversation, got %q vs %q", same.ID, created.ID)
	}
}

func TestEnsureConversation_AdoptsCallerProvidedID(t *testing.T) {
	db := newTestDB(t, allModels()...)

	conv, err := EnsureConversation(context.Background(), db, "conv-abc", "", domain.SourceWhatsApp)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if conv.ID != "conv-abc" {
		t.Fatalf("conversation id = %q; want conv-abc", conv.ID)
	}
}

func TestPersistTurn_WritesPairAndOutboxAtomically(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()

	conv, err := EnsureConversation(ctx, db, "", "u1", domain.SourceWeb)
	if err != nil {
		t.Fatalf("conv: %v", err)
	}

	pair, err := PersistTurn(ctx, db, conv.ID, "u1", domain.SourceWeb, "ev-1", "hola", "¡hola!", "greeting", "")
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if pair.User.Sender != domain.SenderUser || pair.Bot.Sender != domain.SenderBot {
		t.Fatalf("unexpected senders: %+v", pair)
	}
	if !pair.Bot.CreatedAt.After(pair.User.CreatedAt) {
		t.Fatalf("bot turn must order after user turn")
	}

	var outCount int64
	if err := db.Model(&domain.OutboundMessage{}).Count(&outCount).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if outCount != 1 {
		t.Fatalf("outbox rows = %d; want 1", outCount)
	}
}

func TestPersistTurn_SecondWriteForSameEventIsDuplicate(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()

	conv, err := EnsureConversation(ctx, db, "", "u1", domain.SourceWeb)
	if err != nil {
		t.Fatalf("conv: %v", err)
	}

	if _, err := PersistTurn(ctx, db, conv.ID, "u1", domain.SourceWeb, "ev-dup", "hola", "r1", "", ""); err != nil {
		t.Fatalf("first persist: %v", err)
	}
	_, err = PersistTurn(ctx, db, conv.ID, "u1", domain.SourceWeb, "ev-dup", "hola", "r2", "", "")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// The failed transaction must leave exactly one turn pair behind.
	var turnCount int64
	if err := db.Model(&domain.ConversationTurn{}).Count(&turnCount).Error; err != nil {
		t.Fatalf("count turns: %v", err)
	}
	if turnCount != 2 {
		t.Fatalf("turns = %d; want 2 (one pair)", turnCount)
	}
}

func TestLatestBotTurn_ReadsNewestMetadata(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()

	conv, err := EnsureConversation(ctx, db, "", "u1", domain.SourceWeb)
	if err != nil {
		t.Fatalf("conv: %v", err)
	}

	meta1, _ := domain.TurnMetadata{GuestOrder: domain.GuestOrderAwaitingHas}.Encode()
	meta2, _ := domain.TurnMetadata{GuestOrder: domain.GuestOrderAwaitingData}.Encode()
	if _, err := PersistTurn(ctx, db, conv.ID, "u1", domain.SourceWeb, "ev-a", "q1", "a1", "orders", meta1); err != nil {
		t.Fatalf("persist 1: %v", err)
	}
	if _, err := PersistTurn(ctx, db, conv.ID, "u1", domain.SourceWeb, "ev-b", "q2", "a2", "orders", meta2); err != nil {
		t.Fatalf("persist 2: %v", err)
	}

	turn, err := LatestBotTurn(ctx, db, conv.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	m, err := domain.DecodeMetadata(turn.Metadata)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.GuestOrder != domain.GuestOrderAwaitingData {
		t.Fatalf("latest metadata state = %q; want awaiting_lookup_payload", m.GuestOrder)
	}
}

func TestLatestBotTurn_EmptyConversation(t *testing.T) {
	db := newTestDB(t, allModels()...)
	_, err := LatestBotTurn(context.Background(), db, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRecentTurns_ChronologicalAndCapped(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()

	conv, err := EnsureConversation(ctx, db, "", "u1", domain.SourceWeb)
	if err != nil {
		t.Fatalf("conv: %v", err)
	}
	for _, ev := range []string{"e1", "e2", "e3"} {
		if _, err := PersistTurn(ctx, db, conv.ID, "u1", domain.SourceWeb, ev, "q-"+ev, "a-"+ev, "", ""); err != nil {
			t.Fatalf("persist %s: %v", ev, err)
		}
	}

	turns, err := ListRecentTurns(ctx, db, conv.ID, 4)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("len = %d; want 4 (two newest pairs)", len(turns))
	}
	// Chronological: first returned turn precedes the last.
	if !turns[0].CreatedAt.Before(turns[len(turns)-1].CreatedAt) {
		t.Fatalf("turns not in chronological order")
	}
	if turns[len(turns)-1].Content != "a-e3" {
		t.Fatalf("newest turn = %q; want a-e3", turns[len(turns)-1].Content)
	}
}

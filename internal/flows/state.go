// Package flows implements the per-conversation dialog state machines:
// guest order lookup, recommendations continuation, and cancelled-order
// escalation. Each flow is a pure transition over the metadata document of
// the most recent bot turn; side effects (rate limiting, backend lookups,
// catalog queries) enter through narrow interfaces so transitions stay
// testable with fakes.
package flows

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/lumakode/go-chatbot-backend/internal/domain"
	"github.com/lumakode/go-chatbot-backend/internal/repo"
)

// Result is the outcome of one flow step. Handled means the flow produced
// the turn's reply and the orchestrator must not call the model. Metadata is
// the complete next-state document; flows only touch their own section so
// the other flows' state survives the turn.
type Result struct {
	Handled      bool
	Message      string
	RequiresAuth bool
	Intent       string
	Metadata     domain.TurnMetadata

	// UI carries the products shown this turn, for channels that can render
	// cards next to the text reply. Empty for text-only turns.
	UI []domain.CatalogSnapshotItem
}

// LatestState reads the current flow state for a conversation: the decoded
// metadata of its most recent bot turn. A conversation with no bot turns yet
// has the zero state.
func LatestState(ctx context.Context, db *gorm.DB, conversationID string) (domain.TurnMetadata, error) {
	turn, err := repo.LatestBotTurn(ctx, db, conversationID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.TurnMetadata{}, nil
		}
		return domain.TurnMetadata{}, err
	}
	return domain.DecodeMetadata(turn.Metadata)
}

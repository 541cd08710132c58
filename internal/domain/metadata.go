// Package domain defines the core persistence models for the application.
// This file models the opaque per-turn metadata document that carries all
// cross-turn conversational state: flow positions, recommendation memory,
// and catalog snapshots. Every field is optional on read so that turns
// written by older builds (or with no state at all) decode cleanly.
package domain

import (
	"encoding/json"
	"time"
)

// MetadataVersion is stamped on every metadata document written by this
// build. Readers must accept lower versions and missing keys.
const MetadataVersion = 1

// GuestOrderState positions the guest order-lookup dialog.
type GuestOrderState string

// Guest order-lookup states. The empty string means no pending flow.
const (
	GuestOrderNone         GuestOrderState = ""
	GuestOrderAwaitingHas  GuestOrderState = "awaiting_has_data_answer"
	GuestOrderAwaitingData GuestOrderState = "awaiting_lookup_payload"
)

// RecommendationsState positions the recommendations disambiguation dialog.
type RecommendationsState string

// Recommendations states. The empty string means no pending flow.
const (
	RecommendationsNone           RecommendationsState = ""
	RecommendationsAwaitingChoice RecommendationsState = "awaiting_category_or_volume"
	RecommendationsAwaitingVolume RecommendationsState = "awaiting_volume_detail"
)

// EscalationState positions the cancelled-order escalation dialog.
type EscalationState string

// Escalation states. The empty string means no pending flow.
const (
	EscalationNone            EscalationState = ""
	EscalationAwaitingConfirm EscalationState = "awaiting_cancelled_reason_confirmation"
)

// CatalogSnapshotItem is a compact product record persisted on a bot turn so
// follow-ups ("which is cheaper?") can be answered without re-querying the
// catalog backend.
type CatalogSnapshotItem struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	ProductURL   string  `json:"product_url,omitempty"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	Currency     string  `json:"currency,omitempty"`
	Amount       float64 `json:"amount"`
	Stock        int     `json:"stock"`
}

// RecommendationsFlow carries the explicit disambiguation flow entered when
// a franchise yields too many undifferentiated candidates.
type RecommendationsFlow struct {
	State        RecommendationsState `json:"state,omitempty"`
	Franchise    string               `json:"franchise,omitempty"`
	CategoryHint string               `json:"category_hint,omitempty"`
}

// RecommendationsMemory is read independently of the flow to resolve short
// acknowledgements ("dale", "sí") into a concrete re-query. PromptedFranchise
// is only set when the bot explicitly offered that franchise; without it a
// short reply must not be rewritten.
type RecommendationsMemory struct {
	LastFranchise     string     `json:"last_franchise,omitempty"`
	LastType          string     `json:"last_type,omitempty"`
	PromptedFranchise string     `json:"prompted_franchise,omitempty"`
	SnapshotAt        *time.Time `json:"snapshot_at,omitempty"`
	SnapshotSource    string     `json:"snapshot_source,omitempty"`
	SnapshotItemCount int        `json:"snapshot_item_count,omitempty"`
}

// TurnMetadata is the versioned key/value document attached to each bot
// turn. It is the sole state carrier across turns: the "current" state of
// any flow is always the metadata of the most recent bot turn.
type TurnMetadata struct {
	Version int `json:"v,omitempty"`

	GuestOrder      GuestOrderState        `json:"guest_order_state,omitempty"`
	Escalation      EscalationState        `json:"escalation_state,omitempty"`
	Recommendations *RecommendationsFlow   `json:"recommendations,omitempty"`
	RecMemory       *RecommendationsMemory `json:"rec_memory,omitempty"`
	Snapshot        []CatalogSnapshotItem  `json:"snapshot,omitempty"`

	// Diagnostics carries free-form breadcrumbs (routing reason, retry
	// counts) that are logged but never interpreted by flow logic.
	Diagnostics map[string]string `json:"diag,omitempty"`
}

// Memory returns the recommendations memory, never nil.
func (m TurnMetadata) Memory() RecommendationsMemory {
	if m.RecMemory == nil {
		return RecommendationsMemory{}
	}
	return *m.RecMemory
}

// RecFlow returns the recommendations flow, never nil.
func (m TurnMetadata) RecFlow() RecommendationsFlow {
	if m.Recommendations == nil {
		return RecommendationsFlow{}
	}
	return *m.Recommendations
}

// Encode serializes the metadata for storage, stamping the current version.
// An all-zero document encodes to the empty string so stateless turns stay
// cheap to store and trivially decodable.
func (m TurnMetadata) Encode() (string, error) {
	if m.isZero() {
		return "", nil
	}
	m.Version = MetadataVersion
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeMetadata parses a stored metadata document. Empty input and unknown
// keys are fine; missing keys decode to their zero values. Only a malformed
// document is an error.
func DecodeMetadata(raw string) (TurnMetadata, error) {
	var m TurnMetadata
	if raw == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return TurnMetadata{}, err
	}
	return m, nil
}

func (m TurnMetadata) isZero() bool {
	return m.GuestOrder == GuestOrderNone &&
		m.Escalation == EscalationNone &&
		m.Recommendations == nil &&
		m.RecMemory == nil &&
		len(m.Snapshot) == 0 &&
		len(m.Diagnostics) == 0
}

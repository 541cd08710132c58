package flows

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lumakode/go-chatbot-backend/internal/catalog"
	"github.com/lumakode/go-chatbot-backend/internal/config"
	"github.com/lumakode/go-chatbot-backend/internal/domain"
)

type fakeCatalog struct {
	items   []catalog.Item
	err     error
	queries []string
}

func (f *fakeCatalog) Search(_ context.Context, query string) ([]catalog.Item, error) {
	f.queries = append(f.queries, query)
	return f.items, f.err
}

func flowConfig() config.FlowConfig {
	return config.FlowConfig{
		MemoryFreshness:  5 * time.Minute,
		ManyCandidates:   3,
		SnapshotMaxItems: 5,
	}
}

func recFlow(fc *fakeCatalog) (*Recommendations, time.Time) {
	r := NewRecommendations(fc, flowConfig(), zerolog.Nop())
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	return r, now
}

func freshMemory(now time.Time, promptedFranchise string) *domain.RecommendationsMemory {
	at := now.Add(-time.Minute)
	return &domain.RecommendationsMemory{
		LastFranchise:     "one piece",
		LastType:          "manga",
		PromptedFranchise: promptedFranchise,
		SnapshotAt:        &at,
		SnapshotSource:    "catalog",
	}
}

func onePieceItems() []catalog.Item {
	return []catalog.Item{
		{ID: "a", Title: "One Piece Vol. 1", Currency: "ARS", Amount: 9999, Stock: 3},
		{ID: "b", Title: "One Piece Vol. 2", Currency: "ARS", Amount: 8999, Stock: 1},
	}
}

func TestResolveContinuation(t *testing.T) {
	now := time.Now()

	md := domain.TurnMetadata{RecMemory: freshMemory(now, "one piece")}
	got, ok := ResolveContinuation(md, "dale", now, 5*time.Minute)
	if !ok || got != "manga de one piece" {
		t.Fatalf("ResolveContinuation = (%q, %v); want rewritten query", got, ok)
	}

	// Unprompted memory must not hijack the reply.
	md = domain.TurnMetadata{RecMemory: freshMemory(now, "")}
	if got, ok := ResolveContinuation(md, "dale", now, 5*time.Minute); ok || got != "dale" {
		t.Fatalf("unprompted = (%q, %v); want untouched", got, ok)
	}

	// Stale snapshot must not either.
	stale := now.Add(-10 * time.Minute)
	md = domain.TurnMetadata{RecMemory: &domain.RecommendationsMemory{
		LastFranchise: "one piece", LastType: "manga",
		PromptedFranchise: "one piece", SnapshotAt: &stale,
	}}
	if got, ok := ResolveContinuation(md, "dale", now, 5*time.Minute); ok || got != "dale" {
		t.Fatalf("stale = (%q, %v); want untouched", got, ok)
	}

	// Long replies are not acknowledgements.
	md = domain.TurnMetadata{RecMemory: freshMemory(now, "one piece")}
	if _, ok := ResolveContinuation(md, "dale pero mejor contame de otra cosa distinta", now, 5*time.Minute); ok {
		t.Fatalf("long reply must not be rewritten")
	}
}

func TestStep_ShortAckContinuesPromptedThread(t *testing.T) {
	fc := &fakeCatalog{items: onePieceItems()}
	r, now := recFlow(fc)

	res, ok := r.Step(context.Background(), RecommendInput{
		Text:   "dale",
		Intent: domain.IntentGeneral,
		Prior:  domain.TurnMetadata{RecMemory: freshMemory(now, "one piece")},
	})
	if !ok || !res.Handled {
		t.Fatalf("prompted short ack must be claimed")
	}
	if len(fc.queries) != 1 || fc.queries[0] != "manga de one piece" {
		t.Fatalf("queries = %v; want the rewritten continuation", fc.queries)
	}
	if !strings.Contains(res.Message, "One Piece Vol. 1") {
		t.Fatalf("message %q missing results", res.Message)
	}
}

func TestStep_UnpromptedShortAckNotClaimed(t *testing.T) {
	fc := &fakeCatalog{items: onePieceItems()}
	r, now := recFlow(fc)

	_, ok := r.Step(context.Background(), RecommendInput{
		Text:   "dale",
		Intent: domain.IntentGeneral,
		Prior:  domain.TurnMetadata{RecMemory: freshMemory(now, "")},
	})
	if ok {
		t.Fatalf("unprompted ack must fall through to the model")
	}
	if len(fc.queries) != 0 {
		t.Fatalf("catalog must not be queried: %v", fc.queries)
	}
}

func TestStep_ManyCandidatesEntersDisambiguation(t *testing.T) {
	fc := &fakeCatalog{items: []catalog.Item{
		{ID: "a", Title: "One Piece Vol. 1"},
		{ID: "b", Title: "One Piece Vol. 2"},
		{ID: "c", Title: "One Piece Figura Luffy"},
	}}
	r, _ := recFlow(fc)

	res, _ := r.Step(context.Background(), RecommendInput{
		Text:     "tienen algo de one piece?",
		Intent:   domain.IntentRecommendations,
		Entities: []string{"One Piece"},
	})
	flow := res.Metadata.RecFlow()
	if flow.State != domain.RecommendationsAwaitingChoice || flow.Franchise != "one piece" {
		t.Fatalf("flow = %+v; want awaiting_category_or_volume for one piece", flow)
	}
	if res.Metadata.Memory().PromptedFranchise != "one piece" {
		t.Fatalf("memory = %+v; want prompted franchise recorded", res.Metadata.Memory())
	}
}

func TestStep_FewCandidatesReplyWithSnapshot(t *testing.T) {
	fc := &fakeCatalog{items: onePieceItems()}
	r, _ := recFlow(fc)

	res, _ := r.Step(context.Background(), RecommendInput{
		Text:     "recomendame one piece",
		Intent:   domain.IntentRecommendations,
		Entities: []string{"One Piece"},
	})
	if len(res.Metadata.Snapshot) != 2 {
		t.Fatalf("snapshot = %+v; want both items persisted", res.Metadata.Snapshot)
	}
	mem := res.Metadata.Memory()
	if mem.LastFranchise != "one piece" || mem.PromptedFranchise != "one piece" || mem.SnapshotItemCount != 2 {
		t.Fatalf("memory = %+v", mem)
	}
	if res.Metadata.RecFlow().State != domain.RecommendationsNone {
		t.Fatalf("flow must be terminal after a direct reply")
	}
}

func TestStep_ChoiceReplyWithVolumeSearches(t *testing.T) {
	fc := &fakeCatalog{items: onePieceItems()}
	r, _ := recFlow(fc)

	res, _ := r.Step(context.Background(), RecommendInput{
		Text: "el tomo 3",
		Prior: domain.TurnMetadata{Recommendations: &domain.RecommendationsFlow{
			State: domain.RecommendationsAwaitingChoice, Franchise: "one piece",
		}},
	})
	if len(fc.queries) != 1 || fc.queries[0] != "one piece tomo 3" {
		t.Fatalf("queries = %v", fc.queries)
	}
	if res.Metadata.RecFlow().State != domain.RecommendationsNone {
		t.Fatalf("flow must resolve once a volume is given")
	}
}

func TestStep_ChoiceReplyWithCategoryAsksVolume(t *testing.T) {
	fc := &fakeCatalog{}
	r, _ := recFlow(fc)

	res, _ := r.Step(context.Background(), RecommendInput{
		Text: "manga",
		Prior: domain.TurnMetadata{Recommendations: &domain.RecommendationsFlow{
			State: domain.RecommendationsAwaitingChoice, Franchise: "one piece",
		}},
	})
	flow := res.Metadata.RecFlow()
	if flow.State != domain.RecommendationsAwaitingVolume || flow.CategoryHint != "manga" {
		t.Fatalf("flow = %+v; want awaiting_volume_detail with manga hint", flow)
	}
	if len(fc.queries) != 0 {
		t.Fatalf("no search before the volume is known: %v", fc.queries)
	}
}

func TestStep_VolumeDetailBuildsFullQuery(t *testing.T) {
	fc := &fakeCatalog{items: onePieceItems()}
	r, _ := recFlow(fc)

	r.Step(context.Background(), RecommendInput{
		Text: "tomo 4",
		Prior: domain.TurnMetadata{Recommendations: &domain.RecommendationsFlow{
			State: domain.RecommendationsAwaitingVolume, Franchise: "one piece", CategoryHint: "manga",
		}},
	})
	if len(fc.queries) != 1 || fc.queries[0] != "one piece manga tomo 4" {
		t.Fatalf("queries = %v", fc.queries)
	}
}

func TestStep_PriceFollowUpAnsweredFromSnapshot(t *testing.T) {
	fc := &fakeCatalog{}
	r, now := recFlow(fc)

	prior := domain.TurnMetadata{
		RecMemory: freshMemory(now, "one piece"),
		Snapshot: []domain.CatalogSnapshotItem{
			{ID: "a", Title: "One Piece Vol. 1", Currency: "ARS", Amount: 9999},
			{ID: "b", Title: "One Piece Vol. 2", Currency: "ARS", Amount: 8999},
		},
	}
	res, ok := r.Step(context.Background(), RecommendInput{Text: "cual es mas barato?", Intent: domain.IntentGeneral, Prior: prior})
	if !ok || !strings.Contains(res.Message, "One Piece Vol. 2") {
		t.Fatalf("res = %+v; want the cheaper item named", res)
	}
	if len(fc.queries) != 0 {
		t.Fatalf("price follow-up must not re-query the catalog: %v", fc.queries)
	}
}

func TestStep_StalePriceFollowUpNotClaimed(t *testing.T) {
	fc := &fakeCatalog{}
	r, now := recFlow(fc)

	stale := now.Add(-time.Hour)
	prior := domain.TurnMetadata{
		RecMemory: &domain.RecommendationsMemory{PromptedFranchise: "one piece", SnapshotAt: &stale},
		Snapshot:  []domain.CatalogSnapshotItem{{ID: "a", Title: "One Piece Vol. 1", Amount: 9999}},
	}
	if _, ok := r.Step(context.Background(), RecommendInput{Text: "cual es mas barato?", Intent: domain.IntentGeneral, Prior: prior}); ok {
		t.Fatalf("stale snapshot must not answer price follow-ups")
	}
}

func TestStep_NoResultsAndCatalogError(t *testing.T) {
	r, _ := recFlow(&fakeCatalog{})
	res, _ := r.Step(context.Background(), RecommendInput{
		Text: "recomendame one piece", Intent: domain.IntentRecommendations, Entities: []string{"One Piece"},
	})
	if res.Message != msgNoResults {
		t.Fatalf("message = %q; want no-results text", res.Message)
	}

	r, _ = recFlow(&fakeCatalog{err: errors.New("catalog down")})
	res, _ = r.Step(context.Background(), RecommendInput{
		Text: "recomendame one piece", Intent: domain.IntentRecommendations, Entities: []string{"One Piece"},
	})
	if res.Message != msgCatalogErr {
		t.Fatalf("message = %q; want catalog error text", res.Message)
	}
}

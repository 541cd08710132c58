package flows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lumakode/go-chatbot-backend/internal/catalog"
	"github.com/lumakode/go-chatbot-backend/internal/config"
	"github.com/lumakode/go-chatbot-backend/internal/domain"
	"github.com/lumakode/go-chatbot-backend/internal/nlp"
)

// CatalogSearcher queries the product catalog. Implemented by the catalog
// backend client; faked in tests.
type CatalogSearcher interface {
	Search(ctx context.Context, query string) ([]catalog.Item, error)
}

// Recommendation prompts.
const (
	msgNoResults     = "No encontré nada con eso en el catálogo. ¿Querés que busque otra serie?"
	msgCatalogErr    = "No pude consultar el catálogo en este momento. Probá de nuevo en unos minutos."
	msgAskVolumeOnly = "¿Qué tomo estás buscando?"
)

// RecommendInput is one turn's input to the recommendations flow.
type RecommendInput struct {
	Text     string
	Intent   string
	Entities []string
	Prior    domain.TurnMetadata
}

// Recommendations combines the explicit disambiguation flow with the
// memory-based continuation resolver.
type Recommendations struct {
	search CatalogSearcher
	cfg    config.FlowConfig
	log    zerolog.Logger

	now func() time.Time
}

func NewRecommendations(search CatalogSearcher, cfg config.FlowConfig, log zerolog.Logger) *Recommendations {
	return &Recommendations{search: search, cfg: cfg, log: log, now: time.Now}
}

// ResolveContinuation rewrites a short acknowledgement into a concrete
// recommendation query using the previous bot turn's memory. It only fires
// when a franchise was explicitly offered and the snapshot is still fresh;
// stale or unprompted memory leaves the text untouched.
func ResolveContinuation(md domain.TurnMetadata, text string, now time.Time, freshness time.Duration) (string, bool) {
	if !nlp.IsShortAcknowledgement(text) {
		return text, false
	}
	mem := md.Memory()
	if mem.PromptedFranchise == "" || mem.SnapshotAt == nil {
		return text, false
	}
	if now.Sub(*mem.SnapshotAt) >= freshness {
		return text, false
	}
	kind := mem.LastType
	if kind == "" {
		kind = "algo"
	}
	return fmt.Sprintf("%s de %s", kind, mem.PromptedFranchise), true
}

// priceFollowUpMarkers flag "which is cheaper" style follow-ups.
var priceFollowUpMarkers = []string{
	"mas barato", "mas economico", "sale menos", "cuesta menos", "menor precio",
}

func isPriceFollowUp(text string) bool {
	normalized := nlp.NormalizeText(text)
	for _, m := range priceFollowUpMarkers {
		if strings.Contains(normalized, m) {
			return true
		}
	}
	return false
}

// AnswerPriceFollowUp answers a cheaper-item question from the persisted
// snapshot, without touching the catalog backend. Only a fresh snapshot
// qualifies.
func (r *Recommendations) AnswerPriceFollowUp(in RecommendInput) (Result, bool) {
	if !isPriceFollowUp(in.Text) || len(in.Prior.Snapshot) == 0 {
		return Result{}, false
	}
	mem := in.Prior.Memory()
	if mem.SnapshotAt == nil || r.now().Sub(*mem.SnapshotAt) >= r.cfg.MemoryFreshness {
		return Result{}, false
	}
	cheapest := catalog.CheapestOf(in.Prior.Snapshot)
	msg := fmt.Sprintf("El más barato es %s, a %s.", cheapest.Title, formatPrice(cheapest.Currency, cheapest.Amount))
	return Result{Handled: true, Intent: domain.IntentRecommendations, Message: msg, Metadata: in.Prior}, true
}

// Step advances the recommendations dialog one turn.
func (r *Recommendations) Step(ctx context.Context, in RecommendInput) (Result, bool) {
	if res, ok := r.AnswerPriceFollowUp(in); ok {
		return res, true
	}

	flow := in.Prior.RecFlow()
	switch flow.State {
	case domain.RecommendationsAwaitingChoice:
		return r.stepChoice(ctx, in, flow), true
	case domain.RecommendationsAwaitingVolume:
		return r.stepVolume(ctx, in, flow), true
	}

	text := in.Text
	if rewritten, ok := ResolveContinuation(in.Prior, in.Text, r.now(), r.cfg.MemoryFreshness); ok {
		text = rewritten
	} else if in.Intent != domain.IntentRecommendations {
		return Result{}, false
	}

	return r.recommend(ctx, in, text), true
}

// stepChoice handles the reply to "¿buscás manga, cómic o un tomo puntual?".
func (r *Recommendations) stepChoice(ctx context.Context, in RecommendInput, flow domain.RecommendationsFlow) Result {
	next := in.Prior

	if vol := catalog.ExtractVolume(in.Entities, in.Text); vol > 0 {
		query := fmt.Sprintf("%s tomo %d", flow.Franchise, vol)
		return r.searchAndReply(ctx, in, next, flow.Franchise, query)
	}
	if hint := categoryHint(in.Text); hint != "" {
		flow.CategoryHint = hint
		flow.State = domain.RecommendationsAwaitingVolume
		next.Recommendations = &flow
		return Result{Handled: true, Intent: domain.IntentRecommendations, Message: msgAskVolumeOnly, Metadata: next}
	}

	next.Recommendations = &flow
	msg := fmt.Sprintf("Tengo muchas opciones de %s. ¿Buscás manga, cómic, o un tomo puntual?", flow.Franchise)
	return Result{Handled: true, Intent: domain.IntentRecommendations, Message: msg, Metadata: next}
}

// stepVolume handles the reply once a category was already chosen.
func (r *Recommendations) stepVolume(ctx context.Context, in RecommendInput, flow domain.RecommendationsFlow) Result {
	next := in.Prior

	vol := catalog.ExtractVolume(in.Entities, in.Text)
	if vol == 0 {
		next.Recommendations = &flow
		return Result{Handled: true, Intent: domain.IntentRecommendations, Message: msgAskVolumeOnly, Metadata: next}
	}
	query := flow.Franchise
	if flow.CategoryHint != "" {
		query += " " + flow.CategoryHint
	}
	query += fmt.Sprintf(" tomo %d", vol)
	return r.searchAndReply(ctx, in, next, flow.Franchise, query)
}

// recommend serves a fresh recommendation query, entering the disambiguation
// flow when the franchise yields too many undifferentiated candidates.
func (r *Recommendations) recommend(ctx context.Context, in RecommendInput, text string) Result {
	next := in.Prior

	tokens := catalog.SeriesTokens(in.Entities, text)
	if len(tokens) == 0 {
		next.Recommendations = nil
		return Result{Handled: true, Intent: domain.IntentRecommendations,
			Message: "Contame qué serie o género te interesa y te busco opciones.", Metadata: next}
	}
	franchise := strings.Join(tokens, " ")

	items, err := r.search.Search(ctx, text)
	if err != nil {
		r.log.Warn().Err(err).Msg("catalog search failed")
		return Result{Handled: true, Intent: domain.IntentRecommendations, Message: msgCatalogErr, Metadata: next}
	}
	if len(items) == 0 {
		next.Recommendations = nil
		return Result{Handled: true, Intent: domain.IntentRecommendations, Message: msgNoResults, Metadata: next}
	}

	vol := catalog.ExtractVolume(in.Entities, text)
	if len(items) >= r.cfg.ManyCandidates && vol == 0 {
		now := r.now()
		next.Recommendations = &domain.RecommendationsFlow{
			State:     domain.RecommendationsAwaitingChoice,
			Franchise: franchise,
		}
		next.RecMemory = &domain.RecommendationsMemory{
			LastFranchise:     franchise,
			LastType:          categoryHint(text),
			PromptedFranchise: franchise,
			SnapshotAt:        &now,
			SnapshotSource:    "catalog",
		}
		msg := fmt.Sprintf("Tengo muchas opciones de %s. ¿Buscás manga, cómic, o un tomo puntual?", franchise)
		return Result{Handled: true, Intent: domain.IntentRecommendations, Message: msg, Metadata: next}
	}

	return r.replyWithItems(in, next, franchise, text, items)
}

// searchAndReply is the terminal step of the disambiguation flow.
func (r *Recommendations) searchAndReply(ctx context.Context, in RecommendInput, next domain.TurnMetadata, franchise, query string) Result {
	items, err := r.search.Search(ctx, query)
	if err != nil {
		r.log.Warn().Err(err).Msg("catalog search failed")
		return Result{Handled: true, Intent: domain.IntentRecommendations, Message: msgCatalogErr, Metadata: next}
	}
	next.Recommendations = nil
	if len(items) == 0 {
		return Result{Handled: true, Intent: domain.IntentRecommendations, Message: msgNoResults, Metadata: next}
	}
	return r.replyWithItems(in, next, franchise, query, items)
}

// replyWithItems formats the result list, persists the snapshot, and records
// the memory that lets the next short reply continue this thread.
func (r *Recommendations) replyWithItems(in RecommendInput, next domain.TurnMetadata, franchise, query string, items []catalog.Item) Result {
	if best := catalog.SelectBestMatch(items, in.Entities, query); best != nil {
		items = prioritize(items, best.ID)
	}

	snapshot := catalog.Snapshot(items, r.cfg.SnapshotMaxItems)
	now := r.now()

	var b strings.Builder
	b.WriteString("Te puede interesar:\n")
	for _, it := range snapshot {
		fmt.Fprintf(&b, "• %s — %s\n", it.Title, formatPrice(it.Currency, it.Amount))
	}
	fmt.Fprintf(&b, "¿Querés que te muestre más de %s?", franchise)

	next.Recommendations = nil
	next.Snapshot = snapshot
	next.RecMemory = &domain.RecommendationsMemory{
		LastFranchise:     franchise,
		LastType:          categoryHint(query),
		PromptedFranchise: franchise,
		SnapshotAt:        &now,
		SnapshotSource:    "catalog",
		SnapshotItemCount: len(snapshot),
	}
	return Result{Handled: true, Intent: domain.IntentRecommendations, Message: b.String(), Metadata: next, UI: snapshot}
}

// prioritize moves the best match to the front, keeping relative order of
// the rest.
func prioritize(items []catalog.Item, id string) []catalog.Item {
	out := make([]catalog.Item, 0, len(items))
	for _, it := range items {
		if it.ID == id {
			out = append([]catalog.Item{it}, out...)
			continue
		}
		out = append(out, it)
	}
	return out
}

var categoryWords = []string{"manga", "comic", "figura", "novela", "libro"}

// categoryHint extracts the product category named in the text, if any.
func categoryHint(text string) string {
	normalized := " " + nlp.NormalizeText(text) + " "
	for _, w := range categoryWords {
		if strings.Contains(normalized, " "+w) {
			return w
		}
	}
	return ""
}

func formatPrice(currency string, amount float64) string {
	if currency == "" {
		currency = "ARS"
	}
	return fmt.Sprintf("%s %.2f", currency, amount)
}

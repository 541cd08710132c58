// Orchestrator: the application-level pipeline behind every inbound chat
// event. It owns the turn lifecycle — idempotent intake, flow dispatch,
// model routing, exactly-once persistence, finalization — and is itself
// stateless: everything it needs between turns lives in the metadata of the
// most recent bot turn.
//
// Observability: HandleMessage is OpenTelemetry-instrumented; spans carry
// the source channel and conversation id.

package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lumakode/go-chatbot-backend/internal/config"
	"github.com/lumakode/go-chatbot-backend/internal/domain"
	"github.com/lumakode/go-chatbot-backend/internal/flows"
	"github.com/lumakode/go-chatbot-backend/internal/llm"
	"github.com/lumakode/go-chatbot-backend/internal/metrics"
	"github.com/lumakode/go-chatbot-backend/internal/nlp"
	"github.com/lumakode/go-chatbot-backend/internal/repo"
	"github.com/lumakode/go-chatbot-backend/internal/safety"
)

const (
	defaultMaxPromptRunes = 2000
	defaultHistoryTurns   = 10

	// msgStillProcessing acknowledges a redelivery that raced the original
	// attempt before it finished.
	msgStillProcessing = "Ya estoy procesando tu mensaje anterior, dame unos segundos."
)

// systemPrompt frames every model call. Flow-handled turns never reach the
// model, so this only covers free conversation.
const systemPrompt = "Sos el asistente virtual de una tienda de manga, cómics y figuras. " +
	"Respondés en español, breve y concreto. Si no sabés algo, decilo; no inventes datos de pedidos ni de stock."

// GuestOrderStepper advances the guest order-lookup dialog.
// Implemented by flows.GuestOrderFlow.
type GuestOrderStepper interface {
	Step(ctx context.Context, in flows.GuestOrderInput) (flows.Result, bool)
}

// RecommendStepper advances the recommendations dialog.
// Implemented by flows.Recommendations.
type RecommendStepper interface {
	Step(ctx context.Context, in flows.RecommendInput) (flows.Result, bool)
}

// Completer produces the model reply for turns no flow claimed.
// Implemented by llm.Client.
type Completer interface {
	Complete(ctx context.Context, intent string, decision llm.RoutingDecision, messages []llm.Message) llm.Reply
}

// ChatRequest is one inbound chat event, already decoded from the channel
// webhook.
type ChatRequest struct {
	Source          string // "web" or "whatsapp"
	ExternalEventID string // channel-issued delivery id, dedup key
	ConversationID  string // empty starts a new conversation
	UserID          string // empty for guests
	AccessToken     string // opaque channel session credential, never inspected
	Text            string
	IP              string
	RequestID       string
}

// Authenticated reports whether the event carries a user session: both the
// resolved user id and the channel's session credential must be present.
func (r ChatRequest) Authenticated() bool {
	return r.UserID != "" && r.AccessToken != ""
}

// ChatReply is the single reply owed for an inbound event. Duplicate marks
// replays: the event was already (or is still being) processed and no side
// effects ran for this delivery.
type ChatReply struct {
	ConversationID string
	Message        string
	Intent         string
	TurnID         string
	RequiresAuth   bool
	Duplicate      bool
	UI             []domain.CatalogSnapshotItem
}

// Orchestrator composes the flow adapters, the model router, and the
// persistence boundary into the HandleMessage pipeline.
type Orchestrator struct {
	DB     *gorm.DB
	Guest  GuestOrderStepper
	Recs   RecommendStepper
	Router *llm.Router
	LLM    Completer
	Log    zerolog.Logger

	IdempotencyTTL time.Duration
	MaxPromptRunes int
	HistoryTurns   int
}

// NewOrchestrator wires the pipeline with defaults for the optional guards.
func NewOrchestrator(db *gorm.DB, guest GuestOrderStepper, recs RecommendStepper, router *llm.Router, completer Completer, cfg config.Config, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		DB:             db,
		Guest:          guest,
		Recs:           recs,
		Router:         router,
		LLM:            completer,
		Log:            log,
		IdempotencyTTL: cfg.IdempotencyTTL,
		MaxPromptRunes: defaultMaxPromptRunes,
		HistoryTurns:   defaultHistoryTurns,
	}
}

// HandleMessage processes one inbound event end to end and always produces
// a reply: validation problems surface as service errors for the handler to
// map, anything later degrades to a sanitized internal-error text rather
// than leaking the failure into the channel.
func (o *Orchestrator) HandleMessage(ctx context.Context, req ChatRequest) (ChatReply, error) {
	tr := otel.Tracer("services/Orchestrator")
	ctx, span := tr.Start(ctx, "HandleMessage",
		trace.WithAttributes(
			attribute.String("event.source", req.Source),
			attribute.String("conversation.id", req.ConversationID),
		),
	)
	defer span.End()

	started := time.Now()

	text, err := o.validate(&req)
	if err != nil {
		return ChatReply{}, err
	}

	// Idempotency gate: the first delivery inserts the receipt, every other
	// delivery replays instead of reprocessing.
	receipt, dup, err := repo.StartProcessing(ctx, o.DB, req.Source, req.ExternalEventID, req.RequestID, o.IdempotencyTTL)
	if err != nil {
		o.Log.Error().Err(err).Str("event_id", req.ExternalEventID).Msg("idempotency start failed")
		return o.internalReply(req), nil
	}
	if dup {
		return o.replay(req, receipt), nil
	}

	conv, err := repo.EnsureConversation(ctx, o.DB, req.ConversationID, req.UserID, req.Source)
	if err != nil {
		o.Log.Error().Err(err).Msg("conversation resolution failed")
		return o.failProcessed(ctx, req), nil
	}

	prior, err := flows.LatestState(ctx, o.DB, conv.ID)
	if err != nil {
		// A corrupt metadata document must not strand the conversation;
		// continue from the zero state.
		o.Log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("flow state unreadable, starting clean")
		prior = domain.TurnMetadata{}
	}

	intent := nlp.ResolveIntent(text)
	res, claimed := o.dispatchFlows(ctx, req, text, intent, prior)

	var (
		botText      string
		turnIntent   = intent
		meta         = prior
		requiresAuth bool
		modelUsed    string
		fellBack     bool
		costUSD      float64
		ui           []domain.CatalogSnapshotItem
	)
	if claimed {
		botText = res.Message
		meta = res.Metadata
		requiresAuth = res.RequiresAuth
		ui = res.UI
		if res.Intent != "" {
			turnIntent = res.Intent
		}
	} else {
		reply := o.completeWithModel(ctx, conv.ID, text, intent)
		botText = reply.Message
		modelUsed = reply.Model
		fellBack = reply.FellBack
		costUSD = reply.CostUSD
	}
	botText = safety.Outbound(botText)

	encoded, err := meta.Encode()
	if err != nil {
		o.Log.Warn().Err(err).Msg("metadata encode failed, dropping flow state")
		encoded = ""
	}

	pair, err := repo.PersistTurn(ctx, o.DB, conv.ID, req.UserID, req.Source, req.ExternalEventID, text, botText, turnIntent, encoded)
	if errors.Is(err, repo.ErrDuplicate) {
		// A concurrent delivery won the outbox race after our receipt check.
		rec, gerr := repo.GetReceipt(ctx, o.DB, req.Source, req.ExternalEventID)
		if gerr != nil {
			rec = nil
		}
		return o.replay(req, rec), nil
	}
	if err != nil {
		o.Log.Error().Err(err).Str("conversation_id", conv.ID).Msg("turn persistence failed")
		return o.failProcessed(ctx, req), nil
	}

	if err := repo.MarkProcessed(ctx, o.DB, req.Source, req.ExternalEventID, botText, pair.Bot.ID); err != nil {
		o.Log.Warn().Err(err).Msg("receipt finalize failed")
	}
	o.audit(ctx, req, conv.ID, turnIntent, modelUsed, fellBack, costUSD, time.Since(started))
	metrics.MessageProcessed(req.Source, turnIntent)

	return ChatReply{
		ConversationID: conv.ID,
		Message:        botText,
		Intent:         turnIntent,
		TurnID:         pair.Bot.ID,
		RequiresAuth:   requiresAuth,
		UI:             ui,
	}, nil
}

// validate normalizes the request in place and returns the trimmed text.
func (o *Orchestrator) validate(req *ChatRequest) (string, error) {
	switch req.Source {
	case domain.SourceWeb, domain.SourceWhatsApp:
	default:
		return "", ErrUnknownSource
	}
	if strings.TrimSpace(req.ExternalEventID) == "" {
		return "", ErrMissingEventID
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	max := o.MaxPromptRunes
	if max <= 0 {
		max = defaultMaxPromptRunes
	}
	if utf8.RuneCountInString(text) > max {
		return "", ErrMessageTooLong
	}
	req.Text = text
	return text, nil
}

// dispatchFlows offers the turn to each flow in fixed priority order:
// escalation confirmation first (it only exists right after a lookup), then
// guest order lookup, then recommendations. The guest dialog only engages
// for unauthenticated sessions; a logged-in user's order questions go to
// the model with their account context instead.
func (o *Orchestrator) dispatchFlows(ctx context.Context, req ChatRequest, text, intent string, prior domain.TurnMetadata) (flows.Result, bool) {
	if res, ok := flows.StepEscalation(prior, text); ok {
		return res, true
	}
	if !req.Authenticated() {
		if res, ok := o.Guest.Step(ctx, flows.GuestOrderInput{
			Text:    text,
			Intent:  intent,
			IP:      req.IP,
			UserKey: userKey(req),
			EventID: req.ExternalEventID,
			Prior:   prior,
		}); ok {
			return res, true
		}
	}
	if res, ok := o.Recs.Step(ctx, flows.RecommendInput{
		Text:     text,
		Intent:   intent,
		Entities: nlp.ExtractEntities(text),
		Prior:    prior,
	}); ok {
		return res, true
	}
	return flows.Result{}, false
}

// completeWithModel routes and runs the LLM call for a free-conversation
// turn, recording model accounting as it goes.
func (o *Orchestrator) completeWithModel(ctx context.Context, conversationID, text, intent string) llm.Reply {
	history, err := repo.ListRecentTurns(ctx, o.DB, conversationID, o.HistoryTurns)
	if err != nil {
		o.Log.Warn().Err(err).Msg("history load failed, answering without context")
		history = nil
	}

	decision := o.Router.Route(llm.RouteInput{
		Intent:              intent,
		MessageLength:       utf8.RuneCountInString(text),
		HasMultiTurnContext: len(history) > 0,
		ComplexSignals:      llm.HasComplexSignals(text),
	})

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	for _, turn := range history {
		role := llm.RoleUser
		if turn.Sender == domain.SenderBot {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: text})

	start := time.Now()
	reply := o.LLM.Complete(ctx, intent, decision, messages)
	metrics.LLMCall(reply.Model, time.Since(start).Seconds(),
		reply.Usage.InputTokens, reply.Usage.CachedTokens, reply.Usage.OutputTokens, reply.CostUSD)
	if reply.FellBack {
		metrics.FallbackServed(intent)
	}
	return reply
}

// replay resolves a duplicate delivery: the stored reply when processing
// finished, a hold-on note when the first attempt is still in flight.
func (o *Orchestrator) replay(req ChatRequest, receipt *domain.EventReceipt) ChatReply {
	metrics.DuplicateDelivery(req.Source)
	reply := ChatReply{ConversationID: req.ConversationID, Duplicate: true, Message: msgStillProcessing}
	if receipt != nil && receipt.ProcessedAt != nil && receipt.ResponseText != "" {
		reply.Message = receipt.ResponseText
		reply.TurnID = receipt.TurnID
	}
	return reply
}

// internalReply is what the user sees for any failure past validation.
func (o *Orchestrator) internalReply(req ChatRequest) ChatReply {
	return ChatReply{ConversationID: req.ConversationID, Message: safety.InternalErrorReply()}
}

// failProcessed finalizes the receipt with the internal-error text so a
// retry of the same event replays it instead of re-running a half-broken
// pipeline, then returns that text.
func (o *Orchestrator) failProcessed(ctx context.Context, req ChatRequest) ChatReply {
	if err := repo.MarkProcessed(ctx, o.DB, req.Source, req.ExternalEventID, safety.InternalErrorReply(), ""); err != nil {
		o.Log.Warn().Err(err).Msg("receipt finalize after failure also failed")
	}
	return o.internalReply(req)
}

// audit records the processed event. Failures are logged and ignored:
// auditing never blocks the reply.
func (o *Orchestrator) audit(ctx context.Context, req ChatRequest, conversationID, intent, model string, fallback bool, costUSD float64, latency time.Duration) {
	entry := domain.AuditLog{
		RequestID:       req.RequestID,
		Source:          req.Source,
		ExternalEventID: req.ExternalEventID,
		ConversationID:  conversationID,
		Intent:          intent,
		Model:           model,
		Fallback:        fallback,
		CostUSD:         costUSD,
		LatencyMs:       latency.Milliseconds(),
	}
	if err := repo.CreateAuditLog(ctx, o.DB, entry); err != nil {
		o.Log.Warn().Err(err).Msg("audit write failed")
	}
}

// userKey is the limiter's user dimension: the account when authenticated,
// the client address otherwise.
func userKey(req ChatRequest) string {
	if req.UserID != "" {
		return req.UserID
	}
	return req.IP
}

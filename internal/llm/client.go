package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/lumakode/go-chatbot-backend/internal/config"
	"github.com/lumakode/go-chatbot-backend/internal/domain"
	"github.com/lumakode/go-chatbot-backend/internal/retry"
)

// Message roles on the chat completions wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    string
	Content string
}

// Reply is the outcome of one Complete call, including accounting. FellBack
// means the deterministic per-intent text was used after retry exhaustion.
type Reply struct {
	StructuredReply
	Model    string
	Usage    Usage
	CostUSD  float64
	Guided   bool
	FellBack bool
}

// Client performs structured-output chat calls with bounded retry and a
// guided second attempt when the model signals a weak answer.
type Client struct {
	http *resty.Client
	cfg  config.LLMConfig
	log  zerolog.Logger
}

func NewClient(cfg config.LLMConfig, log zerolog.Logger) *Client {
	hc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)
	if cfg.APIKey != "" {
		hc.SetAuthToken(cfg.APIKey)
	}
	return &Client{http: hc, cfg: cfg, log: log}
}

// guidanceInstruction is appended on the guided retry. The contract stays
// identical; only the instruction context grows.
const guidanceInstruction = "The previous answer was empty or flagged low confidence. " +
	"Answer the user's last question directly and concretely. " +
	"Respond strictly within the same JSON contract."

// Complete runs the structured call for the routed model. It never returns
// an error to the caller: after the retry budget is spent it degrades to the
// deterministic per-intent fallback so the user always gets a reply.
func (c *Client) Complete(ctx context.Context, intent string, decision RoutingDecision, messages []Message) Reply {
	reply, err := c.structuredCall(ctx, decision.SelectedModel, messages)
	if err != nil {
		c.log.Warn().Err(err).
			Str("model", decision.SelectedModel).
			Str("intent", intent).
			Msg("llm call exhausted retries, using deterministic fallback")
		return FallbackReply(intent, decision.SelectedModel)
	}

	if !reply.NeedsGuidance() {
		return reply
	}

	guided := append(append([]Message{}, messages...), Message{Role: RoleSystem, Content: guidanceInstruction})
	second, gerr := c.structuredCall(ctx, decision.SelectedModel, guided)
	if gerr != nil {
		if reply.Message == "" {
			return FallbackReply(intent, decision.SelectedModel)
		}
		return reply
	}
	second.Guided = true
	second.Usage = Usage{
		InputTokens:  reply.Usage.InputTokens + second.Usage.InputTokens,
		CachedTokens: reply.Usage.CachedTokens + second.Usage.CachedTokens,
		OutputTokens: reply.Usage.OutputTokens + second.Usage.OutputTokens,
	}
	second.CostUSD = reply.CostUSD + second.CostUSD
	if second.Message == "" {
		fb := FallbackReply(intent, decision.SelectedModel)
		fb.Usage = second.Usage
		fb.CostUSD = second.CostUSD
		fb.Guided = true
		return fb
	}
	return second
}

func (c *Client) structuredCall(ctx context.Context, model string, messages []Message) (Reply, error) {
	policy := retry.Policy{MaxAttempts: c.cfg.MaxAttempts, BaseDelay: c.cfg.RetryBaseDelay}
	return retry.Do(ctx, policy, c.log, "llm_chat_completion", func(ctx context.Context) (Reply, error) {
		return c.once(ctx, model, messages)
	})
}

// --- wire types ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaFormat `json:"json_schema"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens        int `json:"prompt_tokens"`
		CompletionTokens    int `json:"completion_tokens"`
		PromptTokensDetails struct {
			CachedTokens int `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
	} `json:"usage"`
}

func (c *Client) once(ctx context.Context, model string, messages []Message) (Reply, error) {
	wire := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, chatMessage{Role: m.Role, Content: m.Content})
	}
	body := chatRequest{
		Model:    model,
		Messages: wire,
		ResponseFormat: &responseFormat{
			Type:       "json_schema",
			JSONSchema: jsonSchemaFormat{Name: "chat_reply", Strict: true, Schema: replySchemaJSON},
		},
	}

	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/v1/chat/completions")
	if err != nil {
		return Reply{}, fmt.Errorf("llm request: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return Reply{}, fmt.Errorf("llm throttled: %s", resp.Status())
	case resp.StatusCode() >= http.StatusInternalServerError:
		return Reply{}, fmt.Errorf("llm server error: %s", resp.Status())
	case resp.IsError():
		return Reply{}, retry.Permanent(fmt.Errorf("llm api error: %s", resp.Status()))
	}
	if len(out.Choices) == 0 {
		return Reply{}, fmt.Errorf("%w: no choices in response", ErrSchemaViolation)
	}

	structured, err := ParseStructuredReply(out.Choices[0].Message.Content)
	if err != nil {
		return Reply{}, err
	}
	usage := Usage{
		InputTokens:  out.Usage.PromptTokens,
		CachedTokens: out.Usage.PromptTokensDetails.CachedTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}
	return Reply{
		StructuredReply: structured,
		Model:           model,
		Usage:           usage,
		CostUSD:         EstimateCost(model, usage),
	}, nil
}

// fallbackMessages are the hand-authored replies used when the model cannot
// be reached within the retry budget.
var fallbackMessages = map[string]string{
	domain.IntentOrders:          "Estamos teniendo demoras para consultar pedidos en este momento. Probá de nuevo en unos minutos.",
	domain.IntentRecommendations: "No puedo armarte una recomendación ahora mismo. Contame qué serie o género te interesa y lo intento de nuevo.",
	domain.IntentStoreInfo:       "No puedo traer la información del local en este momento. Probá de nuevo en unos minutos.",
	domain.IntentGreeting:        "¡Hola! ¿En qué te puedo ayudar?",
}

const fallbackDefault = "Tuvimos un problema para procesar tu mensaje. Probá de nuevo en unos minutos."

// FallbackReply returns the deterministic per-intent reply.
func FallbackReply(intent, model string) Reply {
	msg, ok := fallbackMessages[intent]
	if !ok {
		msg = fallbackDefault
	}
	return Reply{
		StructuredReply: StructuredReply{Message: msg, Intent: intent, Fallback: true},
		Model:           model,
		FellBack:        true,
	}
}

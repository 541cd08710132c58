// Package llm contains the model router, the structured-output call layer
// with guided retry, and the post-hoc cost estimator.
package llm

import (
	"strings"

	"github.com/lumakode/go-chatbot-backend/internal/config"
	"github.com/lumakode/go-chatbot-backend/internal/domain"
	"github.com/lumakode/go-chatbot-backend/internal/nlp"
)

// RoutingDecision names the model chosen for one call and why.
type RoutingDecision struct {
	SelectedModel string
	Reason        string
}

// RouteInput carries the routing signals for one message.
type RouteInput struct {
	Intent              string
	MessageLength       int
	HasMultiTurnContext bool
	ComplexSignals      bool
}

// Router maps messages to model tiers. Purely deterministic: same input,
// same decision.
type Router struct {
	cfg config.LLMConfig
}

func NewRouter(cfg config.LLMConfig) *Router {
	return &Router{cfg: cfg}
}

// Route applies the decision table. Recommendations and anything signalling
// comparison or long-form reasoning go to the stronger tier; transactional
// intents stay on the economical one.
func (r *Router) Route(in RouteInput) RoutingDecision {
	switch {
	case in.Intent == domain.IntentRecommendations:
		return RoutingDecision{SelectedModel: r.cfg.ReasoningModel, Reason: "recommendations_intent"}
	case in.ComplexSignals:
		return RoutingDecision{SelectedModel: r.cfg.ReasoningModel, Reason: "complex_signals"}
	case in.MessageLength > r.cfg.ComplexLength:
		return RoutingDecision{SelectedModel: r.cfg.ReasoningModel, Reason: "long_message"}
	default:
		return RoutingDecision{SelectedModel: r.cfg.EconomyModel, Reason: "simple_intent"}
	}
}

// complexMarkers flag explicit comparison or deliberation language.
var complexMarkers = []string{
	"compar", "diferencia", "versus", " vs ", "conviene", "mejor que",
	"pros y contras", "ventaja", "desventaja",
}

// HasComplexSignals reports whether the message carries explicit comparison
// or reasoning language.
func HasComplexSignals(text string) bool {
	normalized := " " + nlp.NormalizeText(text) + " "
	for _, m := range complexMarkers {
		if strings.Contains(normalized, m) {
			return true
		}
	}
	return false
}

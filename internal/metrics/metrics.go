// Package metrics exposes the domain-level Prometheus collectors of the
// orchestration engine. HTTP traffic metrics live in the middleware layer;
// this package covers what happens after a request is accepted: processed
// messages, fallback replies, model spend, limiter verdicts, and duplicate
// deliveries. Recording is fire-and-forget and never affects the reply path.
//
// Label cardinality is kept bounded: source and dimension come from closed
// sets, intent from the fixed classifier labels, and model from the two
// configured tiers.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// messagesProcessed counts fully processed inbound events.
	messagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_processed_total",
			Help: "Total number of processed inbound chat events.",
		},
		[]string{"source", "intent"},
	)

	// fallbackReplies counts turns answered with the deterministic fallback
	// after LLM retry exhaustion.
	fallbackReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_fallback_replies_total",
			Help: "Total number of deterministic fallback replies served.",
		},
		[]string{"intent"},
	)

	// duplicateDeliveries counts redelivered events resolved by replay.
	duplicateDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_duplicate_deliveries_total",
			Help: "Total number of duplicate event deliveries detected.",
		},
		[]string{"source"},
	)

	// llmLatency records model call duration per selected model.
	llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Duration of LLM completions in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 30},
		},
		[]string{"model"},
	)

	// llmTokens counts tokens by model and kind (input|cached|output).
	llmTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens consumed.",
		},
		[]string{"model", "kind"},
	)

	// llmCost accumulates estimated spend in USD per model.
	llmCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_cost_usd_total",
			Help: "Estimated LLM spend in USD.",
		},
		[]string{"model"},
	)

	// rateLimitBlocked counts lookups denied by the sliding-window limiter,
	// labeled with the first offending dimension.
	rateLimitBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_rate_limit_blocked_total",
			Help: "Order lookups blocked by the rate limiter.",
		},
		[]string{"dimension"},
	)

	// rateLimitDegraded counts fail-open decisions taken when the limiter
	// store was unreachable or disabled mid-flight.
	rateLimitDegraded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "order_rate_limit_degraded_total",
			Help: "Rate limiter decisions taken in degraded (fail-open) mode.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		messagesProcessed,
		fallbackReplies,
		duplicateDeliveries,
		llmLatency,
		llmTokens,
		llmCost,
		rateLimitBlocked,
		rateLimitDegraded,
	)
}

// MessageProcessed records one fully handled inbound event.
func MessageProcessed(source, intent string) {
	messagesProcessed.WithLabelValues(source, intent).Inc()
}

// FallbackServed records a deterministic fallback reply.
func FallbackServed(intent string) {
	fallbackReplies.WithLabelValues(intent).Inc()
}

// DuplicateDelivery records a redelivered event resolved without side effects.
func DuplicateDelivery(source string) {
	duplicateDeliveries.WithLabelValues(source).Inc()
}

// LLMCall records the accounting of one completed model call.
func LLMCall(model string, seconds float64, inputTokens, cachedTokens, outputTokens int, costUSD float64) {
	llmLatency.WithLabelValues(model).Observe(seconds)
	llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	llmTokens.WithLabelValues(model, "cached").Add(float64(cachedTokens))
	llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	llmCost.WithLabelValues(model).Add(costUSD)
}

// RateLimitBlocked records a denied order lookup.
func RateLimitBlocked(dimension string) {
	rateLimitBlocked.WithLabelValues(dimension).Inc()
}

// RateLimitDegraded records a fail-open limiter decision.
func RateLimitDegraded() {
	rateLimitDegraded.Inc()
}

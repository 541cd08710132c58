package llm

import "math"

// Usage is the token accounting reported by the model API for one call.
type Usage struct {
	InputTokens  int
	CachedTokens int
	OutputTokens int
}

// modelPrice holds USD rates per 1M tokens.
type modelPrice struct {
	input       float64
	cachedInput float64
	output      float64
}

// prices is the static table the estimator reads. Unknown models cost zero
// rather than guessing a rate.
var prices = map[string]modelPrice{
	"gpt-4o":      {input: 2.50, cachedInput: 1.25, output: 10.00},
	"gpt-4o-mini": {input: 0.15, cachedInput: 0.075, output: 0.60},
}

// EstimateCost computes the USD cost of one call from reported usage.
// Cached tokens bill at their own rate and are subtracted from billable
// input so they are never counted twice. Rounded to 6 decimals.
func EstimateCost(model string, u Usage) float64 {
	p, ok := prices[model]
	if !ok {
		return 0
	}
	billableInput := u.InputTokens - u.CachedTokens
	if billableInput < 0 {
		billableInput = 0
	}
	cost := (float64(billableInput)*p.input +
		float64(u.CachedTokens)*p.cachedInput +
		float64(u.OutputTokens)*p.output) / 1e6
	return math.Round(cost*1e6) / 1e6
}

// Package pricing holds the static price table behind cost estimates.
// Figures are USD per million tokens. Unknown models price at zero so
// self-hosted and local extractors never accrue spend.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ModelPricing is the USD cost per million input and output tokens.
type ModelPricing struct {
	InputPerMillion  decimal.Decimal
	OutputPerMillion decimal.Decimal
}

var million = decimal.NewFromInt(1_000_000)

func usd(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Keyed by model-name prefix so dated snapshots (gemini-2.5-flash-001)
// price like their base model. Lookup picks the longest matching prefix,
// which keeps gpt-4o-mini from pricing as gpt-4o.
var table = map[string]ModelPricing{
	"gemini-2.5-flash": {InputPerMillion: usd("0.30"), OutputPerMillion: usd("2.50")},
	"gemini-2.5-pro":   {InputPerMillion: usd("1.25"), OutputPerMillion: usd("10.00")},
	"gpt-4o-mini":      {InputPerMillion: usd("0.15"), OutputPerMillion: usd("0.60")},
	"gpt-4o":           {InputPerMillion: usd("2.50"), OutputPerMillion: usd("10.00")},
	"gpt-4.1-mini":     {InputPerMillion: usd("0.40"), OutputPerMillion: usd("1.60")},
	"gpt-4.1":          {InputPerMillion: usd("2.00"), OutputPerMillion: usd("8.00")},
	"claude-sonnet-4":  {InputPerMillion: usd("3.00"), OutputPerMillion: usd("15.00")},
	"claude-3-5-haiku": {InputPerMillion: usd("0.80"), OutputPerMillion: usd("4.00")},
}

// Lookup finds pricing for a model by longest prefix match.
func Lookup(model string) (ModelPricing, bool) {
	model = strings.ToLower(strings.TrimSpace(model))
	var best string
	var found ModelPricing
	for prefix, p := range table {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best, found = prefix, p
		}
	}
	return found, best != ""
}

// Cost prices one call from its reported token usage.
func Cost(model string, inputTokens, outputTokens int64) decimal.Decimal {
	p, ok := Lookup(model)
	if !ok {
		return decimal.Zero
	}
	in := p.InputPerMillion.Mul(decimal.NewFromInt(inputTokens)).Div(million)
	out := p.OutputPerMillion.Mul(decimal.NewFromInt(outputTokens)).Div(million)
	return in.Add(out)
}

// Token budget of a typical single-image extraction call: one downscaled
// image plus the instruction prompt in, a palette-sized JSON object out.
const (
	estimateInputTokens  = 1100
	estimateOutputTokens = 400
)

// EstimateCall prices a typical extraction call before any usage numbers
// exist. Cost-aware routing sorts candidates by this figure.
func EstimateCall(model string) decimal.Decimal {
	return Cost(model, estimateInputTokens, estimateOutputTokens)
}

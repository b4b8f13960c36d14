// Package core defines the domain types shared by every extraction
// component: requests, color tokens, per-extractor results, aggregated
// palettes, and the adapter/extractor contracts.
package core

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultMaxColors is used when a request does not bound the palette size.
const DefaultMaxColors = 12

// Strategy selects how the router orders candidate providers.
type Strategy string

const (
	StrategyCost     Strategy = "cost"
	StrategyQuality  Strategy = "quality"
	StrategySpeed    Strategy = "speed"
	StrategyBalanced Strategy = "balanced"
)

// ParseStrategy maps a raw label to a Strategy. Unknown or empty labels
// fall back to balanced.
func ParseStrategy(raw string) Strategy {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case StrategyCost:
		return StrategyCost
	case StrategyQuality:
		return StrategyQuality
	case StrategySpeed:
		return StrategySpeed
	case StrategyBalanced:
		return StrategyBalanced
	default:
		return StrategyBalanced
	}
}

// DesignIntent is the closed set of roles a color can play in a design
// system. Provider output uses free text; NormalizeIntent maps it here.
type DesignIntent string

const (
	IntentPrimary    DesignIntent = "primary"
	IntentSecondary  DesignIntent = "secondary"
	IntentAccent     DesignIntent = "accent"
	IntentBackground DesignIntent = "background"
	IntentText       DesignIntent = "text"
)

// NormalizeIntent maps a free-text intent label onto the closed enum.
// Common synonyms are folded in; any other non-empty label becomes accent.
// An empty label stays empty, meaning the extractor reported no intent.
func NormalizeIntent(raw string) DesignIntent {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return ""
	case "primary", "brand", "main":
		return IntentPrimary
	case "secondary":
		return IntentSecondary
	case "accent", "highlight", "emphasis":
		return IntentAccent
	case "background", "bg", "surface":
		return IntentBackground
	case "text", "foreground", "fg", "copy":
		return IntentText
	default:
		return IntentAccent
	}
}

// RawColorToken is a single color candidate as reported by one extractor.
type RawColorToken struct {
	// Hex is the normalized #RRGGBB form, uppercase.
	Hex string `json:"hex"`
	// Confidence is the extractor's own confidence in [0,1].
	Confidence float64 `json:"confidence"`
	Intent     DesignIntent `json:"intent,omitempty"`
	// ProminencePct is the share of the image this color covers, in
	// [0,100]. Nil when the extractor did not report coverage; absence
	// and zero mean different things to the aggregator.
	ProminencePct *float64 `json:"prominence_pct,omitempty"`
	UsageHints    []string `json:"usage_hints,omitempty"`
}

// Prominence returns the reported prominence and whether one was reported.
func (t RawColorToken) Prominence() (float64, bool) {
	if t.ProminencePct == nil {
		return 0, false
	}
	return *t.ProminencePct, true
}

// ExtractionRequest describes one image to extract a palette from.
type ExtractionRequest struct {
	Image     ImageHandle
	MaxColors int
	Strategy  Strategy
}

// Normalized returns a copy with defaults applied: MaxColors 12 when
// unset and a balanced strategy for unknown labels.
func (r ExtractionRequest) Normalized() ExtractionRequest {
	if r.MaxColors <= 0 {
		r.MaxColors = DefaultMaxColors
	}
	r.Strategy = ParseStrategy(string(r.Strategy))
	return r
}

// ExtractionResult is the outcome of running one extractor against one
// request. Failures are carried as data rather than as Go errors so that
// partial failures never abort a request.
type ExtractionResult struct {
	ProviderID        string          `json:"provider_id"`
	Colors            []RawColorToken `json:"colors,omitempty"`
	OverallConfidence float64         `json:"overall_confidence"`
	LatencyMs         int64           `json:"latency_ms"`
	CostEstimate      decimal.Decimal `json:"cost_estimate"`
	Succeeded         bool            `json:"succeeded"`
	ErrorKind         ErrorKind       `json:"error_kind,omitempty"`
	ErrorMsg          string          `json:"error_msg,omitempty"`
	// Failures lists every attempt that went into this result when it
	// failed, including fallback attempts against other providers.
	Failures []AttemptFailure `json:"failures,omitempty"`
}

// FailedResult builds a failure-valued ExtractionResult for one provider.
func FailedResult(provider string, kind ErrorKind, msg string) ExtractionResult {
	return ExtractionResult{
		ProviderID: provider,
		Succeeded:  false,
		ErrorKind:  kind,
		ErrorMsg:   msg,
		Failures:   []AttemptFailure{{Provider: provider, Kind: kind, Msg: msg}},
	}
}

// AggregatedColorToken is one deduplicated palette entry with provenance.
type AggregatedColorToken struct {
	Hex           string       `json:"hex"`
	Confidence    float64      `json:"confidence"`
	Intent        DesignIntent `json:"intent,omitempty"`
	ProminencePct *float64     `json:"prominence_pct,omitempty"`
	UsageHints    []string     `json:"usage_hints,omitempty"`
	// Provenance maps each contributing extractor id to the highest
	// confidence it reported for this color.
	Provenance map[string]float64 `json:"provenance"`
	// MergedFrom counts how many raw tokens collapsed into this entry.
	MergedFrom int `json:"merged_from"`
}

// AggregatedPalette is the final output of a request.
type AggregatedPalette struct {
	Tokens            []AggregatedColorToken `json:"tokens"`
	Dominant          []string               `json:"dominant"`
	OverallConfidence float64                `json:"overall_confidence"`
}

// RequestState is the lifecycle of one extraction request.
type RequestState string

const (
	StatePending           RequestState = "pending"
	StateRunning           RequestState = "running"
	StateComplete          RequestState = "complete"
	StatePartiallyComplete RequestState = "partially_complete"
	StateFailed            RequestState = "failed"
)

// Terminal reports whether the state is one of the three end states.
func (s RequestState) Terminal() bool {
	switch s {
	case StateComplete, StatePartiallyComplete, StateFailed:
		return true
	default:
		return false
	}
}

// Adapter is the uniform surface over one vision provider. Call either
// returns a succeeded result holding at least one valid token, or an error
// wrapping a *ProviderError with exactly one ErrorKind. Implementations
// must honor ctx cancellation and never panic on malformed provider output.
type Adapter interface {
	ID() string
	Call(ctx context.Context, image ImageHandle, maxColors int) (ExtractionResult, error)
	// EstimateCost is the a-priori per-call estimate used by cost-aware
	// routing, before any call has been made.
	EstimateCost() decimal.Decimal
}

// Extractor runs one extraction path end to end for a request: the local
// heuristic, or a router-backed chain of provider adapters. Failures come
// back inside the result, never as a panic.
type Extractor interface {
	ID() string
	Extract(ctx context.Context, req ExtractionRequest) ExtractionResult
}

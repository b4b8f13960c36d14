// Package gemini adapts Google's Gemini vision models to the extraction
// adapter contract. Replies are constrained to the shared palette payload
// via a response schema, so parsing failures are rare and always classify
// as invalid responses rather than transport faults.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/shpitdev/palettex/pkg/extraction/core"
	"github.com/shpitdev/palettex/pkg/extraction/pricing"
	"github.com/shpitdev/palettex/pkg/extraction/provider"
	"github.com/shpitdev/palettex/pkg/extraction/schema"
)

// AdapterID is the registry id of this adapter.
const AdapterID = "gemini"

// DefaultModel balances latency and cost for palette extraction.
const DefaultModel = "gemini-2.5-flash"

// Config for the Gemini adapter.
type Config struct {
	// APIKey is required.
	APIKey string
	// Model defaults to DefaultModel.
	Model string
	// BaseURL optionally redirects API traffic, e.g. through a proxy.
	BaseURL string
}

// Adapter implements core.Adapter against the Gemini API.
type Adapter struct {
	client *genai.Client
	model  string
	log    zerolog.Logger
}

// New validates cfg and builds the adapter.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Adapter, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	cc := &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		cc.HTTPOptions.BaseURL = base
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Adapter{
		client: client,
		model:  model,
		log:    log.With().Str("provider", AdapterID).Logger(),
	}, nil
}

func (a *Adapter) ID() string { return AdapterID }

func (a *Adapter) EstimateCost() decimal.Decimal { return pricing.EstimateCall(a.model) }

// paletteSchema mirrors schema.Payload so Gemini returns it directly.
var paletteSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"colors": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"hex":            {Type: genai.TypeString},
					"confidence":     {Type: genai.TypeNumber},
					"intent":         {Type: genai.TypeString},
					"prominence_pct": {Type: genai.TypeNumber},
					"usage_hints":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
				},
				Required: []string{"hex", "confidence"},
			},
		},
		"overall_confidence": {Type: genai.TypeNumber},
	},
	Required: []string{"colors", "overall_confidence"},
}

// Call sends the prompt and inline image bytes, expecting JSON back.
func (a *Adapter) Call(ctx context.Context, image core.ImageHandle, maxColors int) (core.ExtractionResult, error) {
	if image.Empty() {
		return core.ExtractionResult{}, core.NewProviderError(AdapterID, core.KindInvalidResponse, errors.New("empty image"))
	}
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: provider.ExtractionPrompt(maxColors)},
			{InlineData: &genai.Blob{MIMEType: image.MIME(), Data: image.Bytes()}},
		},
	}}
	gcfg := &genai.GenerateContentConfig{
		CandidateCount:   1,
		ResponseMIMEType: "application/json",
		ResponseSchema:   paletteSchema,
	}

	start := time.Now()
	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, gcfg)
	if err != nil {
		return core.ExtractionResult{}, classifyErr(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return core.ExtractionResult{}, core.NewProviderError(AdapterID, core.KindInvalidResponse, errors.New("empty model reply"))
	}
	tokens, overall, err := schema.ParseTokens([]byte(provider.TrimToJSON(text)), maxColors)
	if err != nil {
		return core.ExtractionResult{}, core.NewProviderError(AdapterID, core.KindInvalidResponse, err)
	}

	var inTok, outTok int64
	if resp.UsageMetadata != nil {
		inTok = int64(resp.UsageMetadata.PromptTokenCount)
		outTok = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	a.log.Debug().
		Int("colors", len(tokens)).
		Int64("input_tokens", inTok).
		Int64("output_tokens", outTok).
		Dur("latency", time.Since(start)).
		Msg("extraction call complete")

	return core.ExtractionResult{
		ProviderID:        AdapterID,
		Colors:            tokens,
		OverallConfidence: overall,
		CostEstimate:      pricing.Cost(a.model, inTok, outTok),
		Succeeded:         true,
	}, nil
}

// classifyErr folds SDK and transport failures into one ErrorKind.
func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429 || provider.RateLimitHint(apiErr.Message):
			return core.NewProviderError(AdapterID, core.KindRateLimited, err)
		default:
			return core.NewProviderError(AdapterID, provider.KindFromStatus(apiErr.Code), err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return core.NewProviderError(AdapterID, core.KindTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return core.NewProviderError(AdapterID, core.KindTimeout, err)
	}
	return core.NewProviderError(AdapterID, core.KindUnavailable, err)
}

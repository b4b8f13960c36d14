// Package anthropic adapts Claude vision models to the extraction adapter
// contract. Images travel as base64 blocks inside the user message.
package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/shpitdev/palettex/pkg/extraction/core"
	"github.com/shpitdev/palettex/pkg/extraction/pricing"
	"github.com/shpitdev/palettex/pkg/extraction/provider"
	"github.com/shpitdev/palettex/pkg/extraction/schema"
)

// AdapterID is the registry id of this adapter.
const AdapterID = "anthropic"

// DefaultModel is a dated snapshot so behavior stays stable across releases.
const DefaultModel = "claude-sonnet-4-20250514"

// maxTokens bounds the reply; a palette payload is small.
const maxTokens = 1024

// Config for the Anthropic adapter.
type Config struct {
	// APIKey is required.
	APIKey string
	// Model defaults to DefaultModel.
	Model string
	// BaseURL overrides the API endpoint, e.g. for a proxy.
	BaseURL string
}

// Adapter implements core.Adapter against the Anthropic API.
type Adapter struct {
	client anthropic.Client
	model  string
	log    zerolog.Logger
}

// New validates cfg and builds the adapter.
func New(cfg Config, log zerolog.Logger) (*Adapter, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	return &Adapter{
		client: anthropic.NewClient(opts...),
		model:  model,
		log:    log.With().Str("provider", AdapterID).Logger(),
	}, nil
}

func (a *Adapter) ID() string { return AdapterID }

func (a *Adapter) EstimateCost() decimal.Decimal { return pricing.EstimateCall(a.model) }

// Call sends the prompt and a base64 image block, then parses the JSON
// object out of the concatenated text blocks of the reply.
func (a *Adapter) Call(ctx context.Context, image core.ImageHandle, maxColors int) (core.ExtractionResult, error) {
	if image.Empty() {
		return core.ExtractionResult{}, core.NewProviderError(AdapterID, core.KindInvalidResponse, errors.New("empty image"))
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(provider.ExtractionPrompt(maxColors)),
				anthropic.NewImageBlockBase64(image.MIME(), base64.StdEncoding.EncodeToString(image.Bytes())),
			),
		},
	}

	start := time.Now()
	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return core.ExtractionResult{}, classifyErr(err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(b.Text)
		}
	}
	content := sb.String()
	if strings.TrimSpace(content) == "" {
		return core.ExtractionResult{}, core.NewProviderError(AdapterID, core.KindInvalidResponse, errors.New("empty model reply"))
	}
	tokens, overall, err := schema.ParseTokens([]byte(provider.TrimToJSON(content)), maxColors)
	if err != nil {
		return core.ExtractionResult{}, core.NewProviderError(AdapterID, core.KindInvalidResponse, err)
	}

	a.log.Debug().
		Int("colors", len(tokens)).
		Int64("input_tokens", resp.Usage.InputTokens).
		Int64("output_tokens", resp.Usage.OutputTokens).
		Dur("latency", time.Since(start)).
		Msg("extraction call complete")

	return core.ExtractionResult{
		ProviderID:        AdapterID,
		Colors:            tokens,
		OverallConfidence: overall,
		CostEstimate:      pricing.Cost(a.model, resp.Usage.InputTokens, resp.Usage.OutputTokens),
		Succeeded:         true,
	}, nil
}

// classifyErr folds SDK and transport failures into one ErrorKind.
func classifyErr(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429 || provider.RateLimitHint(err.Error()):
			return core.NewProviderError(AdapterID, core.KindRateLimited, err)
		default:
			return core.NewProviderError(AdapterID, provider.KindFromStatus(apiErr.StatusCode), err)
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

// Package openai adapts OpenAI chat-completion vision models to the
// extraction adapter contract. Images travel as data URLs inside a
// multi-part user message.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/shpitdev/palettex/pkg/extraction/core"
	"github.com/shpitdev/palettex/pkg/extraction/pricing"
	"github.com/shpitdev/palettex/pkg/extraction/provider"
	"github.com/shpitdev/palettex/pkg/extraction/schema"
)

// AdapterID is the registry id of this adapter.
const AdapterID = "openai"

// DefaultModel is the cheapest vision-capable chat model.
const DefaultModel = "gpt-4o-mini"

// maxCompletionTokens bounds the reply; a palette payload is small.
const maxCompletionTokens = 1024

// Config for the OpenAI adapter.
type Config struct {
	// APIKey is required.
	APIKey string
	// Model defaults to DefaultModel.
	Model string
	// BaseURL overrides the API endpoint for proxies and compatible hosts.
	BaseURL string
}

// Adapter implements core.Adapter against the OpenAI API.
type Adapter struct {
	client openai.Client
	model  string
	log    zerolog.Logger
}

// New validates cfg and builds the adapter.
func New(cfg Config, log zerolog.Logger) (*Adapter, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("openai: api key is required")
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
		client: openai.NewClient(opts...),
		model:  model,
		log:    log.With().Str("provider", AdapterID).Logger(),
	}, nil
}

func (a *Adapter) ID() string { return AdapterID }

func (a *Adapter) EstimateCost() decimal.Decimal { return pricing.EstimateCall(a.model) }

// Call sends the prompt plus the image as a data URL and parses the JSON
// object out of the reply.
func (a *Adapter) Call(ctx context.Context, image core.ImageHandle, maxColors int) (core.ExtractionResult, error) {
	if image.Empty() {
		return core.ExtractionResult{}, core.NewProviderError(AdapterID, core.KindInvalidResponse, errors.New("empty image"))
	}
	parts := []openai.ChatCompletionContentPartUnionParam{
		{OfText: &openai.ChatCompletionContentPartTextParam{Text: provider.ExtractionPrompt(maxColors)}},
		{OfImageURL: &openai.ChatCompletionContentPartImageParam{
			ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: provider.DataURL(image)},
		}},
	}
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: parts,
				},
			},
		}},
		MaxCompletionTokens: openai.Int(maxCompletionTokens),
	}

	start := time.Now()
	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return core.ExtractionResult{}, classifyErr(err)
	}
	if len(resp.Choices) == 0 {
		return core.ExtractionResult{}, core.NewProviderError(AdapterID, core.KindInvalidResponse, errors.New("no choices in reply"))
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return core.ExtractionResult{}, core.NewProviderError(AdapterID, core.KindInvalidResponse, errors.New("empty model reply"))
	}
	tokens, overall, err := schema.ParseTokens([]byte(provider.TrimToJSON(content)), maxColors)
	if err != nil {
		return core.ExtractionResult{}, core.NewProviderError(AdapterID, core.KindInvalidResponse, err)
	}

	a.log.Debug().
		Int("colors", len(tokens)).
		Int64("input_tokens", resp.Usage.PromptTokens).
		Int64("output_tokens", resp.Usage.CompletionTokens).
		Dur("latency", time.Since(start)).
		Msg("extraction call complete")

	return core.ExtractionResult{
		ProviderID:        AdapterID,
		Colors:            tokens,
		OverallConfidence: overall,
		CostEstimate:      pricing.Cost(a.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		Succeeded:         true,
	}, nil
}

// classifyErr folds SDK and transport failures into one ErrorKind.
func classifyErr(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429 || strings.EqualFold(apiErr.Code, "rate_limit_exceeded") || provider.RateLimitHint(apiErr.Message):
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

package httpvision

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/shpitdev/palettex/pkg/extraction/core"
	"github.com/shpitdev/palettex/pkg/extraction/provider"
	"github.com/shpitdev/palettex/pkg/extraction/schema"
)

// DefaultAdapterID is used when the config does not name the endpoint.
const DefaultAdapterID = "httpvision"

// Config for the HTTP vision adapter.
type Config struct {
	// ID is the registry id, so several endpoints can coexist. Defaults
	// to DefaultAdapterID.
	ID string
	// BaseURL is required.
	BaseURL string
	// Token is sent as a bearer credential when non-empty.
	Token string
	// CAPath optionally points at a PEM bundle for private deployments.
	CAPath string
	// Timeout caps each request; 0 means the client default.
	Timeout time.Duration
}

// Adapter implements core.Adapter against a self-hosted vision service.
type Adapter struct {
	id     string
	client *Client
	log    zerolog.Logger
}

// New validates cfg and builds the adapter.
func New(cfg Config, log zerolog.Logger) (*Adapter, error) {
	id := strings.TrimSpace(cfg.ID)
	if id == "" {
		id = DefaultAdapterID
	}
	client, err := NewClient(ClientOptions{
		BaseURL: cfg.BaseURL,
		Token:   cfg.Token,
		CAPath:  cfg.CAPath,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{
		id:     id,
		client: client,
		log:    log.With().Str("provider", id).Logger(),
	}, nil
}

func (a *Adapter) ID() string { return a.id }

// EstimateCost is zero: self-hosted capacity has no per-call price.
func (a *Adapter) EstimateCost() decimal.Decimal { return decimal.Zero }

// Call posts the image and validates the service's payload.
func (a *Adapter) Call(ctx context.Context, image core.ImageHandle, maxColors int) (core.ExtractionResult, error) {
	if image.Empty() {
		return core.ExtractionResult{}, core.NewProviderError(a.id, core.KindInvalidResponse, errors.New("empty image"))
	}
	start := time.Now()
	payload, err := a.client.ExtractPalette(ctx, PaletteRequest{
		ImageB64:  base64.StdEncoding.EncodeToString(image.Bytes()),
		MIMEType:  image.MIME(),
		MaxColors: maxColors,
	})
	if err != nil {
		return core.ExtractionResult{}, a.classifyErr(err)
	}
	tokens, overall, err := schema.FromPayload(payload, maxColors)
	if err != nil {
		return core.ExtractionResult{}, core.NewProviderError(a.id, core.KindInvalidResponse, err)
	}

	a.log.Debug().
		Int("colors", len(tokens)).
		Dur("latency", time.Since(start)).
		Msg("extraction call complete")

	return core.ExtractionResult{
		ProviderID:        a.id,
		Colors:            tokens,
		OverallConfidence: overall,
		CostEstimate:      decimal.Zero,
		Succeeded:         true,
	}, nil
}

// classifyErr folds client and transport failures into one ErrorKind.
func (a *Adapter) classifyErr(err error) error {
	var he *HTTPError
	if errors.As(err, &he) {
		return core.NewProviderError(a.id, provider.KindFromStatus(he.StatusCode), err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return core.NewProviderError(a.id, core.KindTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return core.NewProviderError(a.id, core.KindTimeout, err)
	}
	if errors.Is(err, errBadPayload) {
		return core.NewProviderError(a.id, core.KindInvalidResponse, err)
	}
	return core.NewProviderError(a.id, core.KindUnavailable, err)
}

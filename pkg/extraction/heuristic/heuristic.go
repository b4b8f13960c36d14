// Package heuristic extracts palettes locally with median-cut
// quantization over an OKLab-deduplicated histogram. It is the zero-cost
// extractor that keeps palette extraction available when every remote
// provider is down, and its prominence shares are exact because it sees
// every sampled pixel.
package heuristic

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/shpitdev/palettex/pkg/extraction/core"
)

// ProviderID identifies locally extracted results.
const ProviderID = "local"

// Options tunes the quantizer. The zero value is a usable default.
type Options struct {
	// PixelBudget caps how many pixels one extraction samples.
	PixelBudget int
	// QuantizationBits per channel for the histogram, clamped to 4..6.
	QuantizationBits int
	// MinDelta is the OKLab distance below which swatches merge.
	MinDelta float64
	// Workers for the histogram scan. Defaults to GOMAXPROCS capped at 8.
	Workers int
}

func (o Options) withDefaults() Options {
	if o.PixelBudget <= 0 {
		o.PixelBudget = 1 << 16
	}
	if o.QuantizationBits <= 0 {
		o.QuantizationBits = 5
	}
	if o.QuantizationBits < 4 {
		o.QuantizationBits = 4
	}
	if o.QuantizationBits > 6 {
		o.QuantizationBits = 6
	}
	if o.MinDelta <= 0 {
		o.MinDelta = 0.08
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
		if o.Workers > 8 {
			o.Workers = 8
		}
	}
	return o
}

// Extractor is the local median-cut extractor.
type Extractor struct {
	opts Options
}

func New(opts Options) *Extractor {
	return &Extractor{opts: opts.withDefaults()}
}

func (e *Extractor) ID() string { return ProviderID }

// Extract decodes and quantizes the image. Failures come back inside the
// result so the orchestrator treats local extraction like any provider.
func (e *Extractor) Extract(ctx context.Context, req core.ExtractionRequest) core.ExtractionResult {
	req = req.Normalized()
	start := time.Now()

	if req.Image.Empty() {
		return core.FailedResult(ProviderID, core.KindInvalidResponse, "empty image")
	}
	img, _, err := image.Decode(bytes.NewReader(req.Image.Bytes()))
	if err != nil {
		return core.FailedResult(ProviderID, core.KindInvalidResponse, fmt.Sprintf("decode image: %v", err))
	}

	swatches, err := e.quantize(ctx, img, req.MaxColors)
	if err != nil {
		if ctx.Err() != nil {
			return core.FailedResult(ProviderID, core.KindTimeout, fmt.Sprintf("local extraction canceled: %v", ctx.Err()))
		}
		return core.FailedResult(ProviderID, core.KindInvalidResponse, err.Error())
	}

	colors := tokensFromSwatches(swatches)
	res := core.ExtractionResult{
		ProviderID:        ProviderID,
		Colors:            colors,
		OverallConfidence: meanConfidence(colors),
		LatencyMs:         time.Since(start).Milliseconds(),
		CostEstimate:      decimal.Zero,
		Succeeded:         true,
	}
	return res
}

// quantize runs histogram, median cut, dedup and scoring, returning at
// most maxColors swatches ordered best first.
func (e *Extractor) quantize(ctx context.Context, img image.Image, maxColors int) ([]swatch, error) {
	src := toNRGBA(img)
	w := src.Bounds().Dx()
	h := src.Bounds().Dy()
	stride := sampleStride(w, h, e.opts.PixelBudget)

	bins, total, err := buildHistogram(ctx, src, e.opts.QuantizationBits, stride, e.opts.Workers)
	if err != nil {
		return nil, err
	}

	target := maxColors * 2
	if target < 8 {
		target = 8
	}
	if target > 96 {
		target = 96
	}
	swatches := boxesToSwatches(buildBoxes(bins, target), total, e.opts.QuantizationBits)
	if len(swatches) == 0 {
		return nil, fmt.Errorf("no color swatches extracted")
	}
	swatches = dedupSwatches(swatches, e.opts.MinDelta)
	rankSwatches(swatches)
	if len(swatches) > maxColors {
		swatches = swatches[:maxColors]
	}
	return swatches, nil
}

// rankSwatches scores and sorts swatches best first. The score favors
// populous swatches, then chroma near a design-friendly target, then
// mid-range lightness.
func rankSwatches(swatches []swatch) {
	if len(swatches) == 0 {
		return
	}
	maxShare := swatches[0].share
	for _, s := range swatches[1:] {
		if s.share > maxShare {
			maxShare = s.share
		}
	}
	if maxShare <= 0 {
		maxShare = 1
	}
	const targetChroma = 0.14
	for i := range swatches {
		s := &swatches[i]
		pop := s.share / maxShare
		chroma := 1 - math.Abs(s.chroma-targetChroma)/targetChroma
		if chroma < 0 {
			chroma = 0
		}
		light := 1 - math.Abs(s.okL-0.58)
		if light < 0 {
			light = 0
		}
		s.score = 0.52*pop + 0.33*chroma + 0.15*light
	}
	sort.Slice(swatches, func(i, j int) bool {
		if swatches[i].score == swatches[j].score {
			return swatches[i].population > swatches[j].population
		}
		return swatches[i].score > swatches[j].score
	})
}

// tokensFromSwatches converts ranked swatches into color tokens with
// prominence, confidence, intent and usage hints.
func tokensFromSwatches(swatches []swatch) []core.RawColorToken {
	if len(swatches) == 0 {
		return nil
	}
	topScore := swatches[0].score
	if topScore <= 0 {
		topScore = 1
	}

	tokens := make([]core.RawColorToken, len(swatches))
	for i, s := range swatches {
		prom := s.share * 100
		conf := 0.35 + 0.6*(s.score/topScore)
		if conf > 0.95 {
			conf = 0.95
		}
		tokens[i] = core.RawColorToken{
			Hex:           fmt.Sprintf("#%02X%02X%02X", s.r, s.g, s.b),
			Confidence:    conf,
			ProminencePct: &prom,
			UsageHints:    hintsFor(s),
		}
	}
	assignIntents(tokens, swatches)
	return tokens
}

// assignIntents applies the role rules: the most prominent near-white
// swatch is the background, the most prominent near-black one is text,
// and the strongest remaining chromas are primary then secondary.
// Everything else is an accent.
func assignIntents(tokens []core.RawColorToken, swatches []swatch) {
	assigned := make([]bool, len(swatches))

	for i, s := range swatches {
		if s.okL >= 0.85 && s.chroma <= 0.07 {
			tokens[i].Intent = core.IntentBackground
			assigned[i] = true
			break
		}
	}
	for i, s := range swatches {
		if assigned[i] {
			continue
		}
		if s.okL <= 0.22 {
			tokens[i].Intent = core.IntentText
			assigned[i] = true
			break
		}
	}

	byChroma := make([]int, 0, len(swatches))
	for i := range swatches {
		if !assigned[i] {
			byChroma = append(byChroma, i)
		}
	}
	sort.Slice(byChroma, func(a, b int) bool {
		return swatches[byChroma[a]].chroma > swatches[byChroma[b]].chroma
	})
	for rank, i := range byChroma {
		switch rank {
		case 0:
			tokens[i].Intent = core.IntentPrimary
		case 1:
			tokens[i].Intent = core.IntentSecondary
		default:
			tokens[i].Intent = core.IntentAccent
		}
	}
}

// hintsFor labels a swatch with coarse usage hints.
func hintsFor(s swatch) []string {
	var hints []string
	if s.okL < 0.35 {
		hints = append(hints, "dark")
	} else if s.okL > 0.8 {
		hints = append(hints, "light")
	}
	switch {
	case s.chroma >= 0.13:
		hints = append(hints, "vivid")
	case s.chroma <= 0.04:
		hints = append(hints, "neutral")
	default:
		hints = append(hints, "muted")
	}
	return hints
}

func meanConfidence(tokens []core.RawColorToken) float64 {
	if len(tokens) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range tokens {
		sum += t.Confidence
	}
	return sum / float64(len(tokens))
}

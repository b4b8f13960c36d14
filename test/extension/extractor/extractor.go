package extractor

import (
	"context"
	"strings"

	"github.com/shpitdev/palettex/pkg/extraction/core"
)

// Swatchbook is a stand-in vision backend: it reports a fixed brand
// palette for every image, the way a design-system lookup service would.
type Swatchbook struct {
	Hexes []string
}

func (s Swatchbook) ID() string { return "swatchbook" }

func (s Swatchbook) Extract(_ context.Context, req core.ExtractionRequest) core.ExtractionResult {
	req = req.Normalized()
	n := len(s.Hexes)
	if n > req.MaxColors {
		n = req.MaxColors
	}
	tokens := make([]core.RawColorToken, 0, n)
	for _, hex := range s.Hexes[:n] {
		tokens = append(tokens, core.RawColorToken{
			Hex:        strings.ToUpper(hex),
			Confidence: 0.9,
			Intent:     core.IntentPrimary,
		})
	}
	return core.ExtractionResult{
		ProviderID:        s.ID(),
		Colors:            tokens,
		OverallConfidence: 0.9,
		Succeeded:         true,
	}
}

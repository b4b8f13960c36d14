package consumer

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/shpitdev/palettex/pkg/extraction/aggregate"
	"github.com/shpitdev/palettex/pkg/extraction/cache"
	"github.com/shpitdev/palettex/pkg/extraction/core"
	"github.com/shpitdev/palettex/pkg/extraction/heuristic"
	"github.com/shpitdev/palettex/pkg/extraction/worker"
)

func TestPublicPackagesCompile(t *testing.T) {
	t.Parallel()

	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 0x33, G: 0x66, B: 0x99, A: 0xFF})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	req := core.ExtractionRequest{Image: core.NewImageHandle(buf.Bytes()), MaxColors: 4}
	res := heuristic.New(heuristic.Options{}).Extract(context.Background(), req)
	if !res.Succeeded || len(res.Colors) == 0 {
		t.Fatalf("local extraction failed: %+v", res)
	}

	palette := aggregate.Aggregate([]core.ExtractionResult{res}, aggregate.Options{MaxColors: 4})
	if len(palette.Tokens) == 0 {
		t.Fatalf("aggregate produced no tokens")
	}

	store := cache.NewMemory(cache.MemoryOptions{})
	key := cache.Key(req.Image.Hash(), req.MaxColors, heuristic.ProviderID)
	store.Put(key, res, time.Minute)
	if _, ok := store.Get(key); !ok {
		t.Fatalf("cached result must be readable")
	}

	out, err := worker.ProcessAll(context.Background(), []string{"x"}, func(_ context.Context, in string) (string, error) {
		return in, nil
	}, worker.Options{MaxConcurrent: 1})
	if err != nil {
		t.Fatalf("ProcessAll failed: %v", err)
	}
	if len(out) != 1 || out[0].Output != "x" {
		t.Fatalf("unexpected worker output: %#v", out)
	}
}

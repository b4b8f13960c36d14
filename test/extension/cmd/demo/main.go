package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/shpitdev/palettex/pkg/extraction/aggregate"
	"github.com/shpitdev/palettex/pkg/extraction/core"
	"github.com/shpitdev/palettex/pkg/extraction/heuristic"
	"github.com/shpitdev/palettex/test/extension/extractor"
)

func main() {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 16), G: 0x40, B: 0x80, A: 0xFF})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	req := core.ExtractionRequest{Image: core.NewImageHandle(buf.Bytes()), MaxColors: 6}

	local := heuristic.New(heuristic.Options{}).Extract(context.Background(), req)
	brand := extractor.Swatchbook{Hexes: []string{"#E81C4F", "#101418"}}.Extract(context.Background(), req)

	palette := aggregate.Aggregate([]core.ExtractionResult{local, brand}, aggregate.Options{MaxColors: 6})
	fmt.Println(palette.Dominant)
}

package heuristic

import (
	"context"
	"errors"
	"image"
	"image/draw"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
)

// alphaThreshold drops pixels that are effectively transparent.
const alphaThreshold = 16

var errNoPixels = errors.New("no opaque pixels to sample")

// bin is one occupied cell of the quantized histogram.
type bin struct {
	rq, gq, bq uint8
	count      int
}

// box is a median-cut region over occupied bins.
type box struct {
	bins       []bin
	population int
	rMin, rMax uint8
	gMin, gMax uint8
	bMin, bMax uint8
	volume     int
}

// swatch is an averaged box with its perceptual coordinates. share is the
// fraction of sampled pixels the box covers.
type swatch struct {
	r, g, b    uint8
	population int
	share      float64
	okL        float64
	okA        float64
	okB        float64
	chroma     float64
	score      float64
}

// toNRGBA flattens any decoded image into NRGBA for fast row access.
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// sampleStride spaces samples so at most budget pixels are visited.
func sampleStride(w, h, budget int) int {
	if budget <= 0 || w*h <= budget {
		return 1
	}
	return int(math.Ceil(math.Sqrt(float64(w*h) / float64(budget))))
}

// buildHistogram scans the image in parallel interleaved row chunks and
// returns the occupied bins plus the number of sampled pixels. The group
// context is checked per row so a canceled extraction stops mid-pass.
func buildHistogram(ctx context.Context, src *image.NRGBA, bits, stride, workers int) ([]bin, int, error) {
	w := src.Bounds().Dx()
	h := src.Bounds().Dy()
	if w <= 0 || h <= 0 {
		return nil, 0, errors.New("image has no pixels")
	}

	mask := (1 << bits) - 1
	shift := 8 - bits
	size := 1 << (bits * 3)

	if workers > h {
		workers = h
	}
	if workers < 1 {
		workers = 1
	}
	locals := make([][]int, workers)

	g, gctx := errgroup.WithContext(ctx)
	for wi := 0; wi < workers; wi++ {
		g.Go(func() error {
			local := make([]int, size)
			for y := wi * stride; y < h; y += workers * stride {
				if err := gctx.Err(); err != nil {
					return err
				}
				rowOffset := y * src.Stride
				for x := 0; x < w; x += stride {
					off := rowOffset + x*4
					if int(src.Pix[off+3]) <= alphaThreshold {
						continue
					}
					rq := (int(src.Pix[off]) >> shift) & mask
					gq := (int(src.Pix[off+1]) >> shift) & mask
					bq := (int(src.Pix[off+2]) >> shift) & mask
					local[(rq<<(bits*2))|(gq<<bits)|bq]++
				}
			}
			locals[wi] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	histogram := make([]int, size)
	total := 0
	for _, local := range locals {
		if local == nil {
			continue
		}
		for i, count := range local {
			histogram[i] += count
			total += count
		}
	}
	if total == 0 {
		return nil, 0, errNoPixels
	}

	bins := make([]bin, 0, size/4)
	for i, count := range histogram {
		if count == 0 {
			continue
		}
		bins = append(bins, bin{
			rq:    uint8((i >> (bits * 2)) & mask),
			gq:    uint8((i >> bits) & mask),
			bq:    uint8(i & mask),
			count: count,
		})
	}
	return bins, total, nil
}

// binCenter maps a quantized channel value back to the center of its bucket.
func binCenter(v uint8, bits int) uint8 {
	bucket := 256 >> bits
	c := int(v)*bucket + bucket/2
	if c > 255 {
		c = 255
	}
	return uint8(c)
}

func newBox(bins []bin) box {
	b := box{bins: bins}
	if len(bins) == 0 {
		return b
	}
	b.rMin, b.rMax = bins[0].rq, bins[0].rq
	b.gMin, b.gMax = bins[0].gq, bins[0].gq
	b.bMin, b.bMax = bins[0].bq, bins[0].bq
	for _, e := range bins {
		b.population += e.count
		b.rMin = min(b.rMin, e.rq)
		b.rMax = max(b.rMax, e.rq)
		b.gMin = min(b.gMin, e.gq)
		b.gMax = max(b.gMax, e.gq)
		b.bMin = min(b.bMin, e.bq)
		b.bMax = max(b.bMax, e.bq)
	}
	b.volume = int(b.rMax-b.rMin+1) * int(b.gMax-b.gMin+1) * int(b.bMax-b.bMin+1)
	return b
}

func (b box) canSplit() bool {
	return len(b.bins) > 1 && (b.rMax > b.rMin || b.gMax > b.gMin || b.bMax > b.bMin)
}

// buildBoxes grows the box set by repeatedly splitting the box with the
// highest population-weighted volume until target boxes exist or nothing
// can split further.
func buildBoxes(bins []bin, target int) []box {
	if len(bins) == 0 {
		return nil
	}
	boxes := []box{newBox(bins)}
	for len(boxes) < target {
		splittable := make([]int, 0, len(boxes))
		for i, b := range boxes {
			if b.canSplit() {
				splittable = append(splittable, i)
			}
		}
		if len(splittable) == 0 {
			break
		}
		sort.Slice(splittable, func(i, j int) bool {
			l, r := boxes[splittable[i]], boxes[splittable[j]]
			return float64(l.population)*math.Log(float64(l.volume)+1) >
				float64(r.population)*math.Log(float64(r.volume)+1)
		})

		split := false
		for _, i := range splittable {
			left, right, ok := splitBox(boxes[i])
			if !ok {
				continue
			}
			boxes[i] = boxes[len(boxes)-1]
			boxes = boxes[:len(boxes)-1]
			boxes = append(boxes, left, right)
			split = true
			break
		}
		if !split {
			break
		}
	}
	return boxes
}

// splitBox cuts a box at the population median along its longest axis.
func splitBox(b box) (box, box, bool) {
	if !b.canSplit() {
		return box{}, box{}, false
	}
	axis := longestAxis(b)
	ordered := append([]bin(nil), b.bins...)
	sort.Slice(ordered, func(i, j int) bool {
		l, r := axisValue(ordered[i], axis), axisValue(ordered[j], axis)
		if l == r {
			return ordered[i].count > ordered[j].count
		}
		return l < r
	})

	half := b.population / 2
	cum := 0
	cut := -1
	for i, e := range ordered {
		cum += e.count
		if cum >= half {
			cut = i + 1
			break
		}
	}
	if cut <= 0 || cut >= len(ordered) {
		cut = len(ordered) / 2
	}
	if cut <= 0 || cut >= len(ordered) {
		return box{}, box{}, false
	}

	left := newBox(append([]bin(nil), ordered[:cut]...))
	right := newBox(append([]bin(nil), ordered[cut:]...))
	if left.population == 0 || right.population == 0 {
		return box{}, box{}, false
	}
	return left, right, true
}

func longestAxis(b box) int {
	rr := b.rMax - b.rMin
	gr := b.gMax - b.gMin
	br := b.bMax - b.bMin
	if rr >= gr && rr >= br {
		return 0
	}
	if gr >= rr && gr >= br {
		return 1
	}
	return 2
}

func axisValue(e bin, axis int) uint8 {
	switch axis {
	case 0:
		return e.rq
	case 1:
		return e.gq
	default:
		return e.bq
	}
}

// boxesToSwatches averages each box into one color and attaches its OKLab
// coordinates. Swatches come back ordered by population.
func boxesToSwatches(boxes []box, total, bits int) []swatch {
	out := make([]swatch, 0, len(boxes))
	for _, b := range boxes {
		if b.population <= 0 {
			continue
		}
		var rSum, gSum, bSum int
		for _, e := range b.bins {
			rSum += int(binCenter(e.rq, bits)) * e.count
			gSum += int(binCenter(e.gq, bits)) * e.count
			bSum += int(binCenter(e.bq, bits)) * e.count
		}
		r := uint8(rSum / b.population)
		g := uint8(gSum / b.population)
		bb := uint8(bSum / b.population)
		okL, okA, okB := rgbToOKLab(r, g, bb)
		out = append(out, swatch{
			r:          r,
			g:          g,
			b:          bb,
			population: b.population,
			share:      float64(b.population) / float64(total),
			okL:        okL,
			okA:        okA,
			okB:        okB,
			chroma:     math.Hypot(okA, okB),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].population > out[j].population })
	return out
}

// dedupSwatches greedily merges swatches closer than minDelta in OKLab,
// keeping the more populous one. Input and output are population-ordered.
func dedupSwatches(swatches []swatch, minDelta float64) []swatch {
	if len(swatches) <= 1 {
		return swatches
	}
	unique := make([]swatch, 0, len(swatches))
	for _, cand := range swatches {
		dup := -1
		for i, existing := range unique {
			if okLabDistance(cand, existing) <= minDelta {
				dup = i
				break
			}
		}
		if dup < 0 {
			unique = append(unique, cand)
			continue
		}
		if cand.population > unique[dup].population {
			merged := cand
			merged.population += unique[dup].population
			merged.share += unique[dup].share
			unique[dup] = merged
		} else {
			unique[dup].population += cand.population
			unique[dup].share += cand.share
		}
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i].population > unique[j].population })
	return unique
}

func okLabDistance(a, b swatch) float64 {
	dl := a.okL - b.okL
	da := a.okA - b.okA
	db := a.okB - b.okB
	return math.Sqrt(dl*dl + da*da + db*db)
}

func rgbToOKLab(red, green, blue uint8) (float64, float64, float64) {
	r := srgbToLinear(red)
	g := srgbToLinear(green)
	b := srgbToLinear(blue)

	l := 0.4122214708*r + 0.5363325363*g + 0.0514459929*b
	m := 0.2119034982*r + 0.6806995451*g + 0.1073969566*b
	s := 0.0883024619*r + 0.2817188376*g + 0.6299787005*b

	lr := math.Cbrt(l)
	mr := math.Cbrt(m)
	sr := math.Cbrt(s)

	okL := 0.2104542553*lr + 0.7936177850*mr - 0.0040720468*sr
	okA := 1.9779984951*lr - 2.4285922050*mr + 0.4505937099*sr
	okB := 0.0259040371*lr + 0.7827717662*mr - 0.8086757660*sr
	return okL, okA, okB
}

func srgbToLinear(channel uint8) float64 {
	s := float64(channel) / 255
	if s <= 0.04045 {
		return s / 12.92
	}
	return math.Pow((s+0.055)/1.055, 2.4)
}

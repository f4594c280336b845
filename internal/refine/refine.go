// Package refine cleans up the alpha edge of segmented product cutouts.
// Segmentation models leave two kinds of artifacts at the subject boundary:
// background color mixed into partial-coverage pixels (fringing), and hard
// aliased alpha steps. Refinement runs erode, defringe, and feather in that
// order; color defringing touches only color channels and feathering touches
// only the mask.
package refine

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/cenkalti/dominantcolor"
	"gocv.io/x/gocv"

	"github.com/frgeek-official/fr-online-product-studio/internal/raster"
	"github.com/frgeek-official/fr-online-product-studio/pkg/geometry"
)

// MaxFeatherRadius caps the feather kernel regardless of configuration.
const MaxFeatherRadius = 16

// Options control the refinement steps.
type Options struct {
	ErodeIterations int   // 3x3 minimum-filter passes on the mask (0 = off)
	LowThreshold    uint8 // alpha at or below this is fully background
	HighThreshold   uint8 // alpha at or above this is fully subject
	SampleRadius    int   // background sampling radius for defringe, px
	FeatherRadius   int   // Gaussian radius applied to the mask, px (0 = off)
}

// DefaultOptions returns refinement settings tuned on catalog cutouts.
func DefaultOptions() Options {
	return Options{
		ErodeIterations: 0,
		LowThreshold:    10,  // BiRefNet noise floor
		HighThreshold:   245, // compression ringing below full coverage
		SampleRadius:    4,
		FeatherRadius:   2,
	}
}

// WithFeatherRadius returns a copy with the feather radius replaced.
func (o Options) WithFeatherRadius(radius int) Options {
	o.FeatherRadius = radius
	return o
}

// WithErodeIterations returns a copy with the erode pass count replaced.
func (o Options) WithErodeIterations(n int) Options {
	o.ErodeIterations = n
	return o
}

// WithThresholds returns a copy with the partial-coverage band replaced.
func (o Options) WithThresholds(low, high uint8) Options {
	o.LowThreshold = low
	o.HighThreshold = high
	return o
}

// Validate reports nonsensical settings.
func (o Options) Validate() error {
	if o.LowThreshold >= o.HighThreshold {
		return fmt.Errorf("refine: low threshold %d must be below high threshold %d", o.LowThreshold, o.HighThreshold)
	}
	if o.SampleRadius < 1 {
		return fmt.Errorf("refine: sample radius must be at least 1, got %d", o.SampleRadius)
	}
	if o.FeatherRadius < 0 || o.ErodeIterations < 0 {
		return fmt.Errorf("refine: negative step sizes")
	}
	return nil
}

// Refine returns a defringed copy of the image and a refined copy of the mask.
// The inputs are never mutated. A mask with no subject pixels above the low
// threshold yields raster.EmptySubjectError.
func Refine(ctx context.Context, img *image.NRGBA, mask *image.Gray, opts Options) (*image.NRGBA, *image.Gray, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := raster.EnsureSameSize(img, mask); err != nil {
		return nil, nil, err
	}
	if raster.CountOpaque(mask, opts.LowThreshold) == 0 {
		return nil, nil, &raster.EmptySubjectError{Threshold: opts.LowThreshold}
	}

	outImg := raster.CloneNRGBA(img)
	outMask := raster.CloneGray(mask)

	if opts.ErodeIterations > 0 {
		eroded, err := erodeMask(outMask, opts.ErodeIterations)
		if err != nil {
			return nil, nil, fmt.Errorf("erode: %w", err)
		}
		outMask = eroded
	}

	defringe(outImg, outMask, opts)

	if opts.FeatherRadius > 0 {
		if err := featherMask(outMask, opts.FeatherRadius); err != nil {
			return nil, nil, fmt.Errorf("feather: %w", err)
		}
	}

	return outImg, outMask, nil
}

// defringe un-mixes background color out of partial-coverage pixels in place.
// For an observed pixel with coverage a over background bg, the captured value
// is obs = fg*a + bg*(1-a); solving for fg recovers the subject color.
func defringe(img *image.NRGBA, mask *image.Gray, opts Options) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	offsets := sampleOffsets(opts.SampleRadius)

	var global color.NRGBA
	haveGlobal := false

	for y := 0; y < h; y++ {
		mi := mask.PixOffset(0, y)
		for x := 0; x < w; x++ {
			a := mask.Pix[mi+x]
			if a <= opts.LowThreshold || a >= opts.HighThreshold {
				continue
			}

			bg, ok := localBackground(img, mask, x, y, offsets, opts.LowThreshold)
			if !ok {
				if !haveGlobal {
					global = globalBackground(img, mask, opts.LowThreshold)
					haveGlobal = true
				}
				bg = global
			}

			alpha := float64(a) / 255.0
			pi := img.PixOffset(x, y)
			img.Pix[pi+0] = unmix(img.Pix[pi+0], bg.R, alpha)
			img.Pix[pi+1] = unmix(img.Pix[pi+1], bg.G, alpha)
			img.Pix[pi+2] = unmix(img.Pix[pi+2], bg.B, alpha)
		}
	}
}

// unmix solves obs = fg*a + bg*(1-a) for fg, clamped to the 8-bit range.
func unmix(obs, bg uint8, alpha float64) uint8 {
	fg := (float64(obs) - (1-alpha)*float64(bg)) / alpha
	if fg < 0 {
		return 0
	}
	if fg > 255 {
		return 255
	}
	return uint8(math.Round(fg))
}

type sampleOffset struct {
	dx, dy int
	weight float64
}

// sampleOffsets builds the disk of neighbor offsets with inverse-distance
// weights used for local background estimation.
func sampleOffsets(radius int) []sampleOffset {
	var offsets []sampleOffset
	center := geometry.NewPoint2D(0, 0)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if dx*dx+dy*dy > radius*radius {
				continue
			}
			d := center.Distance(geometry.NewPoint2D(float64(dx), float64(dy)))
			offsets = append(offsets, sampleOffset{dx: dx, dy: dy, weight: 1.0 / (1.0 + d)})
		}
	}
	return offsets
}

// localBackground averages fully-background neighbors around (x, y).
func localBackground(img *image.NRGBA, mask *image.Gray, x, y int, offsets []sampleOffset, low uint8) (color.NRGBA, bool) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	var sumR, sumG, sumB, sumW float64
	for _, o := range offsets {
		nx, ny := x+o.dx, y+o.dy
		if nx < 0 || nx >= w || ny < 0 || ny >= h {
			continue
		}
		if mask.Pix[mask.PixOffset(nx, ny)] > low {
			continue
		}
		pi := img.PixOffset(nx, ny)
		sumR += o.weight * float64(img.Pix[pi+0])
		sumG += o.weight * float64(img.Pix[pi+1])
		sumB += o.weight * float64(img.Pix[pi+2])
		sumW += o.weight
	}

	if sumW == 0 {
		return color.NRGBA{}, false
	}
	return color.NRGBA{
		R: uint8(math.Round(sumR / sumW)),
		G: uint8(math.Round(sumG / sumW)),
		B: uint8(math.Round(sumB / sumW)),
		A: 255,
	}, true
}

// globalBackground estimates the photo's background color from fully-background
// pixels, for partial pixels whose whole neighborhood is subject. Samples are
// packed into a scratch tile and run through the dominant-color search.
func globalBackground(img *image.NRGBA, mask *image.Gray, low uint8) color.NRGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	const step = 4
	var samples []uint8
	for y := 0; y < h; y += step {
		for x := 0; x < w; x += step {
			if mask.Pix[mask.PixOffset(x, y)] > low {
				continue
			}
			pi := img.PixOffset(x, y)
			samples = append(samples, img.Pix[pi], img.Pix[pi+1], img.Pix[pi+2], 255)
		}
	}

	if len(samples) == 0 {
		return colorWhite
	}

	n := len(samples) / 4
	side := int(math.Ceil(math.Sqrt(float64(n))))
	tile := image.NewNRGBA(image.Rect(0, 0, side, side))
	for i := 0; i < side*side; i++ {
		src := (i % n) * 4
		copy(tile.Pix[i*4:i*4+4], samples[src:src+4])
	}

	return dominantOf(tile)
}

var colorWhite = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// dominantOf runs the dominant-color search over a sample tile and keeps
// the heaviest cluster. The tile holds only background samples, so the
// heaviest cluster is the background itself.
func dominantOf(tile *image.NRGBA) color.NRGBA {
	candidates := dominantcolor.FindWeight(tile, 4)
	if len(candidates) == 0 {
		return colorWhite
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Weight > best.Weight {
			best = c
		}
	}
	return color.NRGBA{R: best.RGBA.R, G: best.RGBA.G, B: best.RGBA.B, A: 255}
}

// erodeMask applies n passes of a 3x3 rectangular minimum filter.
func erodeMask(mask *image.Gray, iterations int) (*image.Gray, error) {
	bounds := mask.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	cur, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, mask.Pix)
	if err != nil {
		return nil, err
	}

	element := gocv.GetStructuringElement(gocv.MorphRect, image.Point{3, 3})
	defer element.Close()

	for i := 0; i < iterations; i++ {
		next := gocv.NewMat()
		gocv.Erode(cur, &next, element)
		cur.Close()
		cur = next
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	copy(out.Pix, cur.ToBytes())
	cur.Close()
	return out, nil
}

// featherMask Gaussian-blurs the mask in place. The radius is capped to
// MaxFeatherRadius and to an eighth of the shorter side; a cap of zero skips
// the blur entirely.
func featherMask(mask *image.Gray, radius int) error {
	bounds := mask.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if radius > MaxFeatherRadius {
		radius = MaxFeatherRadius
	}
	short := w
	if h < short {
		short = h
	}
	if radius > short/8 {
		radius = short / 8
	}
	if radius <= 0 {
		return nil
	}

	mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, mask.Pix)
	if err != nil {
		return err
	}
	defer mat.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()

	k := 2*radius + 1
	gocv.GaussianBlur(mat, &blurred, image.Point{k, k}, 0, 0, gocv.BorderDefault)

	copy(mask.Pix, blurred.ToBytes())
	return nil
}

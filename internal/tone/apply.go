package tone

import (
	"context"
	"image"
	"math"

	"github.com/frgeek-official/fr-online-product-studio/internal/raster"
	"github.com/frgeek-official/fr-online-product-studio/pkg/colorutil"
)

// ChannelMode selects how the curve reaches the color channels.
type ChannelMode int

const (
	// PerChannel applies the curve to R, G and B independently.
	PerChannel ChannelMode = iota
	// Luminance applies the curve to BT.601 luminance and rescales RGB
	// proportionally, preserving hue and saturation.
	Luminance
)

func (m ChannelMode) String() string {
	switch m {
	case PerChannel:
		return "per_channel"
	case Luminance:
		return "luminance"
	default:
		return "unknown"
	}
}

// ApplyOptions control curve application.
type ApplyOptions struct {
	Mode          ChannelMode
	MaskThreshold uint8 // mask values above this receive correction
}

// DefaultApplyOptions returns production application settings.
func DefaultApplyOptions() ApplyOptions {
	return ApplyOptions{Mode: PerChannel, MaskThreshold: 0}
}

// Apply returns a copy of img with the tone curve applied to subject pixels.
// Background pixels and the alpha channel come back bit-identical; partial
// pixels blend between original and corrected color by their own coverage.
// Neutral parameters short-circuit to an exact copy.
func Apply(ctx context.Context, img *image.NRGBA, mask *image.Gray, params Parameters, opts ApplyOptions) (*image.NRGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := raster.EnsureSameSize(img, mask); err != nil {
		return nil, err
	}

	out := raster.CloneNRGBA(img)
	if params.IsNeutral() {
		return out, nil
	}

	var lut [256]uint8
	if opts.Mode == PerChannel {
		lut = buildLUT(params)
	}

	bounds := out.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	for y := 0; y < h; y++ {
		mi := mask.PixOffset(0, y)
		for x := 0; x < w; x++ {
			a := mask.Pix[mi+x]
			if a <= opts.MaskThreshold {
				continue
			}

			pi := out.PixOffset(x, y)
			var cr, cg, cb uint8
			if opts.Mode == PerChannel {
				cr = lut[out.Pix[pi+0]]
				cg = lut[out.Pix[pi+1]]
				cb = lut[out.Pix[pi+2]]
			} else {
				cr, cg, cb = correctLuminance(out.Pix[pi+0], out.Pix[pi+1], out.Pix[pi+2], params)
			}

			if a == 255 {
				out.Pix[pi+0] = cr
				out.Pix[pi+1] = cg
				out.Pix[pi+2] = cb
				continue
			}

			af := float64(a) / 255.0
			out.Pix[pi+0] = lerp8(out.Pix[pi+0], cr, af)
			out.Pix[pi+1] = lerp8(out.Pix[pi+1], cg, af)
			out.Pix[pi+2] = lerp8(out.Pix[pi+2], cb, af)
		}
	}

	return out, nil
}

// buildLUT evaluates the curve once per 8-bit input value.
func buildLUT(p Parameters) [256]uint8 {
	var lut [256]uint8
	for x := 0; x < 256; x++ {
		lut[x] = quantize(curve(float64(x), p))
	}
	return lut
}

// curve evaluates the tone curve at x in [0, 255], returning an unquantized
// value in the same range.
func curve(x float64, p Parameters) float64 {
	n := (x*p.Contrast + p.Brightness) / 255.0
	if n < 0 {
		n = 0
	} else if n > 1 {
		n = 1
	}
	return math.Pow(n, p.Gamma) * 255.0
}

// correctLuminance moves BT.601 luminance along the curve and rescales the
// channels by the luminance ratio. True black has no ratio to scale, so it
// lifts to the curved gray directly.
func correctLuminance(r, g, b uint8, p Parameters) (uint8, uint8, uint8) {
	y := colorutil.Luminance(r, g, b)
	y2 := curve(y, p)

	if y == 0 {
		v := quantize(y2)
		return v, v, v
	}

	ratio := y2 / y
	return quantize(float64(r) * ratio), quantize(float64(g) * ratio), quantize(float64(b) * ratio)
}

// quantize rounds to the nearest 8-bit value. Rounding (rather than
// truncation) keeps the neutral curve an exact identity.
func quantize(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}

// lerp8 blends from orig toward corrected by coverage t.
func lerp8(orig, corrected uint8, t float64) uint8 {
	return quantize(float64(orig)*(1-t) + float64(corrected)*t)
}

// Package shadow synthesizes a soft drop shadow from a subject silhouette
// and flattens the finished layers onto the output background.
//
// The shadow is the subject's own mask shifted down, blurred, and tinted,
// composited UNDER the subject. Layer order is background, shadow, subject,
// so a subject pixel is never darkened by the shadow it casts.
package shadow

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/frgeek-official/fr-online-product-studio/internal/raster"
	"github.com/frgeek-official/fr-online-product-studio/pkg/colorutil"
)

// Options configure shadow synthesis and the final flatten.
type Options struct {
	// OffsetY shifts the silhouette down by this many pixels. Negative
	// values shift up.
	OffsetY int

	// BlurRadius is the Gaussian blur radius applied to the shifted
	// silhouette. 0 disables blurring.
	BlurRadius int

	// Opacity scales the silhouette coverage, in [0, 1]. 0 disables the
	// shadow entirely.
	Opacity float64

	// Color tints the shadow. Only the RGB channels are used; coverage
	// comes from the blurred silhouette.
	Color color.NRGBA

	// Background fills the canvas before the shadow and subject are
	// composited. The zero value keeps the background transparent.
	Background color.NRGBA

	// MinSubjectPixels suppresses the shadow for subjects smaller than
	// this many mask pixels.
	MinSubjectPixels int

	// MaskThreshold: mask values above it count as subject coverage.
	MaskThreshold uint8
}

// DefaultOptions returns the studio's standard soft drop shadow on a
// white background.
func DefaultOptions() Options {
	return Options{
		OffsetY:          16,
		BlurRadius:       12,
		Opacity:          0.40,
		Color:            colorutil.Black,
		Background:       colorutil.White,
		MinSubjectPixels: 100,
	}
}

// Validate checks option values.
func (o Options) Validate() error {
	if o.Opacity < 0 || o.Opacity > 1 {
		return fmt.Errorf("shadow: opacity %.3f must be in [0, 1]", o.Opacity)
	}
	if o.BlurRadius < 0 {
		return fmt.Errorf("shadow: blur radius %d must not be negative", o.BlurRadius)
	}
	if o.MinSubjectPixels < 0 {
		return fmt.Errorf("shadow: min subject pixels %d must not be negative", o.MinSubjectPixels)
	}
	return nil
}

// Synthesize builds the shadow layer for a subject silhouette: the mask
// shifted down OffsetY pixels, blurred, tinted Color, with alpha scaled
// by Opacity. Pixels shifted past the canvas edge are clipped.
func Synthesize(ctx context.Context, mask *image.Gray, opts Options) (*image.NRGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()

	shifted := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := y - opts.OffsetY
		if sy < 0 || sy >= h {
			continue
		}
		si := mask.PixOffset(b.Min.X, b.Min.Y+sy)
		di := shifted.PixOffset(0, y)
		copy(shifted.Pix[di:di+w], mask.Pix[si:si+w])
	}

	if opts.BlurRadius > 0 {
		blurred, err := blurGray(shifted, opts.BlurRadius)
		if err != nil {
			return nil, fmt.Errorf("failed to blur shadow: %w", err)
		}
		shifted = blurred
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, v := range shifted.Pix {
		if v == 0 {
			continue
		}
		di := i * 4
		out.Pix[di+0] = opts.Color.R
		out.Pix[di+1] = opts.Color.G
		out.Pix[di+2] = opts.Color.B
		out.Pix[di+3] = uint8(math.Round(float64(v) * opts.Opacity))
	}
	return out, nil
}

// AddShadow flattens background, shadow, and subject in that order onto a
// canvas matching the subject's dimensions. The subject is expected on a
// transparent canvas with mask as its silhouette, as produced by placement.
// The shadow is skipped, but the flatten still happens, when Opacity is 0
// or the subject covers fewer than MinSubjectPixels mask pixels.
func AddShadow(ctx context.Context, subject *image.NRGBA, mask *image.Gray, opts Options) (*image.NRGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := raster.EnsureSameSize(subject, mask); err != nil {
		return nil, err
	}

	b := subject.Bounds()
	canvas := raster.NewCanvas(b.Dx(), b.Dy(), opts.Background)

	if opts.Opacity > 0 && raster.CountOpaque(mask, opts.MaskThreshold) >= opts.MinSubjectPixels {
		layer, err := Synthesize(ctx, mask, opts)
		if err != nil {
			return nil, err
		}
		if err := canvas.Over(layer, nil, image.Point{}); err != nil {
			return nil, err
		}
	}

	if err := canvas.Over(subject, mask, image.Point{}); err != nil {
		return nil, err
	}
	return canvas.Image(), nil
}

// blurGray applies a Gaussian blur with kernel size 2*radius+1 to a packed
// grayscale image.
func blurGray(src *image.Gray, radius int) (*image.Gray, error) {
	b := src.Bounds()
	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC1, src.Pix)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	k := 2*radius + 1
	gocv.GaussianBlur(mat, &dst, image.Point{X: k, Y: k}, 0, 0, gocv.BorderDefault)

	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	copy(out.Pix, dst.ToBytes())
	return out, nil
}

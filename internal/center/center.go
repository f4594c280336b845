// Package center places a masked subject onto a fixed-size output canvas.
//
// Listings render every product photo inside the same square frame, so the
// subject is located from its mask, scaled down when it does not fit inside
// the margin-inset canvas area, and composited centered on a transparent
// canvas. Subjects that already fit keep their native resolution.
package center

import (
	"context"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/frgeek-official/fr-online-product-studio/internal/raster"
	"github.com/frgeek-official/fr-online-product-studio/pkg/colorutil"
	"github.com/frgeek-official/fr-online-product-studio/pkg/geometry"
)

// Options configure subject placement.
type Options struct {
	// CanvasWidth and CanvasHeight are the output dimensions in pixels.
	CanvasWidth  int
	CanvasHeight int

	// MarginRatio reserves a border on each side when fitting: the subject
	// box must fit inside canvas * (1 - 2*MarginRatio).
	MarginRatio float64

	// FillCanvas rescales the subject so its box always fills the
	// margin-inset area, upscaling small subjects. Off by default.
	FillCanvas bool

	// MaskThreshold: mask values above it count as subject when locating
	// the box.
	MaskThreshold uint8
}

// DefaultOptions returns placement options for the standard 1200px
// square listing frame.
func DefaultOptions() Options {
	return Options{
		CanvasWidth:  1200,
		CanvasHeight: 1200,
		MarginRatio:  0.05,
	}
}

// Validate checks option values.
func (o Options) Validate() error {
	if o.CanvasWidth <= 0 || o.CanvasHeight <= 0 {
		return fmt.Errorf("center: canvas size %dx%d must be positive", o.CanvasWidth, o.CanvasHeight)
	}
	if o.MarginRatio < 0 || o.MarginRatio >= 0.5 {
		return fmt.Errorf("center: margin ratio %.3f must be in [0, 0.5)", o.MarginRatio)
	}
	return nil
}

// Placement records how a subject was mapped onto the canvas.
type Placement struct {
	// Scale applied to the subject box. 1 means source pixels were copied
	// untouched.
	Scale float64 `json:"scale"`

	// Offset of the scaled subject box's top-left corner on the canvas.
	Offset geometry.PointInt `json:"offset"`

	// Bounds of the subject box in source pixel coordinates.
	Bounds geometry.RectInt `json:"bounds"`

	// Transform maps source pixel coordinates to canvas coordinates.
	Transform geometry.AffineTransform `json:"transform"`
}

// Placed is the output of Place: the subject and its mask on a
// transparent canvas-size image, plus the placement that produced them.
type Placed struct {
	Image     *image.NRGBA
	Mask      *image.Gray
	Placement Placement
}

// Place composites the masked subject of img centered on a transparent
// canvas. The input image and mask are not modified.
func Place(ctx context.Context, img *image.NRGBA, mask *image.Gray, opts Options) (*Placed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := raster.EnsureSameSize(img, mask); err != nil {
		return nil, err
	}

	box, err := raster.SubjectBounds(mask, opts.MaskThreshold)
	if err != nil {
		return nil, err
	}

	subject := raster.ToNRGBA(img.SubImage(box))
	subjectMask := raster.CloneGray(mask.SubImage(box).(*image.Gray))

	targetW := float64(opts.CanvasWidth) * (1 - 2*opts.MarginRatio)
	targetH := float64(opts.CanvasHeight) * (1 - 2*opts.MarginRatio)
	scale := math.Min(targetW/float64(box.Dx()), targetH/float64(box.Dy()))
	if !opts.FillCanvas && scale > 1 {
		scale = 1
	}

	if scale != 1 {
		w := int(math.Round(float64(box.Dx()) * scale))
		h := int(math.Round(float64(box.Dy()) * scale))
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		subject, err = resizeNRGBA(subject, w, h)
		if err != nil {
			return nil, fmt.Errorf("failed to resize subject: %w", err)
		}
		subjectMask, err = resizeGray(subjectMask, w, h)
		if err != nil {
			return nil, fmt.Errorf("failed to resize mask: %w", err)
		}
	}

	sw := subject.Bounds().Dx()
	sh := subject.Bounds().Dy()
	offset := image.Point{
		X: (opts.CanvasWidth - sw) / 2,
		Y: (opts.CanvasHeight - sh) / 2,
	}
	// Rounding during resize can leave the box a pixel over the margin
	// area; the box itself never exceeds the canvas.
	if offset.X < 0 {
		offset.X = 0
	}
	if offset.Y < 0 {
		offset.Y = 0
	}

	canvas := raster.NewCanvas(opts.CanvasWidth, opts.CanvasHeight, colorutil.Transparent)
	if err := canvas.Over(subject, subjectMask, offset); err != nil {
		return nil, err
	}
	out := canvas.Image()

	// On a transparent canvas the composited alpha equals the mask, so the
	// placed mask is the output's alpha channel.
	transform := geometry.Translation(float64(offset.X), float64(offset.Y)).
		Compose(geometry.Scale(scale, scale)).
		Compose(geometry.Translation(-float64(box.Min.X), -float64(box.Min.Y)))

	return &Placed{
		Image: out,
		Mask:  raster.AlphaFromImage(out),
		Placement: Placement{
			Scale:  scale,
			Offset: geometry.PointIntFromImage(offset),
			Bounds: geometry.RectIntFromImage(box),
			Transform: transform,
		},
	}, nil
}

// resizeNRGBA resamples a packed NRGBA image to w x h with Lanczos-4.
func resizeNRGBA(src *image.NRGBA, w, h int) (*image.NRGBA, error) {
	b := src.Bounds()
	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, src.Pix)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(mat, &dst, image.Point{X: w, Y: h}, 0, 0, gocv.InterpolationLanczos4)

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	copy(out.Pix, dst.ToBytes())
	return out, nil
}

// resizeGray resamples a packed grayscale mask to w x h with Lanczos-4.
func resizeGray(src *image.Gray, w, h int) (*image.Gray, error) {
	b := src.Bounds()
	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC1, src.Pix)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(mat, &dst, image.Point{X: w, Y: h}, 0, 0, gocv.InterpolationLanczos4)

	out := image.NewGray(image.Rect(0, 0, w, h))
	copy(out.Pix, dst.ToBytes())
	return out, nil
}

package center

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frgeek-official/fr-online-product-studio/internal/raster"
	"github.com/frgeek-official/fr-online-product-studio/pkg/geometry"
)

// subjectAt builds a src/mask pair with an opaque colored block at the
// given rectangle.
func subjectAt(w, h int, box image.Rectangle, c color.NRGBA) (*image.NRGBA, *image.Gray) {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	mask := image.NewGray(image.Rect(0, 0, w, h))
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			img.SetNRGBA(x, y, c)
			mask.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return img, mask
}

func TestPlaceCentersSubject(t *testing.T) {
	red := color.NRGBA{R: 200, G: 30, B: 30, A: 255}
	img, mask := subjectAt(100, 100, image.Rect(0, 0, 100, 100), red)

	opts := DefaultOptions()
	opts.CanvasWidth = 200
	opts.CanvasHeight = 200

	placed, err := Place(context.Background(), img, mask, opts)
	require.NoError(t, err)

	assert.Equal(t, geometry.PointInt{X: 50, Y: 50}, placed.Placement.Offset)
	assert.Equal(t, 1.0, placed.Placement.Scale)
	assert.Equal(t, 200, placed.Image.Bounds().Dx())
	assert.Equal(t, 200, placed.Image.Bounds().Dy())

	// Subject pixels land untouched, surroundings stay transparent.
	assert.Equal(t, red, placed.Image.NRGBAAt(50, 50))
	assert.Equal(t, red, placed.Image.NRGBAAt(149, 149))
	assert.Equal(t, color.NRGBA{}, placed.Image.NRGBAAt(49, 50))
	assert.Equal(t, color.NRGBA{}, placed.Image.NRGBAAt(150, 149))
	assert.Equal(t, uint8(255), placed.Mask.GrayAt(50, 50).Y)
	assert.Equal(t, uint8(0), placed.Mask.GrayAt(49, 49).Y)
}

func TestPlaceDoesNotUpscaleSmallSubjects(t *testing.T) {
	blue := color.NRGBA{R: 20, G: 40, B: 220, A: 255}
	img, mask := subjectAt(100, 100, image.Rect(45, 45, 55, 55), blue)

	opts := DefaultOptions()
	opts.CanvasWidth = 400
	opts.CanvasHeight = 400

	placed, err := Place(context.Background(), img, mask, opts)
	require.NoError(t, err)

	assert.Equal(t, 1.0, placed.Placement.Scale)
	assert.Equal(t, geometry.PointInt{X: 195, Y: 195}, placed.Placement.Offset)

	box, err := raster.SubjectBounds(placed.Mask, 0)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(195, 195, 205, 205), box)
	assert.Equal(t, blue, placed.Image.NRGBAAt(200, 200))
}

func TestPlaceRecentersOffCenterSubject(t *testing.T) {
	c := color.NRGBA{R: 10, G: 200, B: 10, A: 255}
	img, mask := subjectAt(100, 100, image.Rect(70, 10, 90, 30), c)

	opts := DefaultOptions()
	opts.CanvasWidth = 100
	opts.CanvasHeight = 100

	placed, err := Place(context.Background(), img, mask, opts)
	require.NoError(t, err)

	assert.Equal(t, geometry.RectInt{X: 70, Y: 10, Width: 20, Height: 20}, placed.Placement.Bounds)
	assert.Equal(t, geometry.PointInt{X: 40, Y: 40}, placed.Placement.Offset)
	assert.Equal(t, c, placed.Image.NRGBAAt(50, 50))
}

func TestPlaceDownscalesOversizedSubject(t *testing.T) {
	c := color.NRGBA{R: 120, G: 120, B: 120, A: 255}
	img, mask := subjectAt(400, 100, image.Rect(0, 0, 400, 100), c)

	opts := DefaultOptions()
	opts.CanvasWidth = 200
	opts.CanvasHeight = 200
	opts.MarginRatio = 0.05

	placed, err := Place(context.Background(), img, mask, opts)
	require.NoError(t, err)

	// target = 200*0.9 = 180; scale = min(180/400, 180/100) = 0.45
	assert.InDelta(t, 0.45, placed.Placement.Scale, 1e-9)
	assert.Equal(t, geometry.PointInt{X: 10, Y: 77}, placed.Placement.Offset)

	// 180x45 box centered: interior keeps the flat color within resampling
	// tolerance.
	got := placed.Image.NRGBAAt(100, 99)
	assert.InDelta(t, 120, float64(got.R), 3)
	assert.InDelta(t, 120, float64(got.G), 3)
	assert.Equal(t, color.NRGBA{}, placed.Image.NRGBAAt(100, 10))
}

func TestPlaceFillCanvasUpscales(t *testing.T) {
	c := color.NRGBA{R: 240, G: 200, B: 40, A: 255}
	img, mask := subjectAt(50, 50, image.Rect(20, 20, 30, 30), c)

	opts := DefaultOptions()
	opts.CanvasWidth = 100
	opts.CanvasHeight = 100
	opts.MarginRatio = 0.1
	opts.FillCanvas = true

	placed, err := Place(context.Background(), img, mask, opts)
	require.NoError(t, err)

	assert.InDelta(t, 8.0, placed.Placement.Scale, 1e-9)
	assert.Equal(t, geometry.PointInt{X: 10, Y: 10}, placed.Placement.Offset)

	got := placed.Image.NRGBAAt(50, 50)
	assert.InDelta(t, 240, float64(got.R), 3)
	assert.InDelta(t, 200, float64(got.G), 3)
}

func TestPlaceTransformMapsSourceToCanvas(t *testing.T) {
	c := color.NRGBA{R: 5, G: 5, B: 5, A: 255}
	img, mask := subjectAt(100, 100, image.Rect(70, 10, 90, 30), c)

	opts := DefaultOptions()
	opts.CanvasWidth = 100
	opts.CanvasHeight = 100

	placed, err := Place(context.Background(), img, mask, opts)
	require.NoError(t, err)

	tr := placed.Placement.Transform
	corner := tr.Apply(geometry.NewPoint2D(70, 10))
	assert.InDelta(t, float64(placed.Placement.Offset.X), corner.X, 1e-9)
	assert.InDelta(t, float64(placed.Placement.Offset.Y), corner.Y, 1e-9)

	center := tr.Apply(geometry.NewPoint2D(80, 20))
	assert.InDelta(t, 50, center.X, 1e-9)
	assert.InDelta(t, 50, center.Y, 1e-9)
}

func TestPlaceIsIdempotentAtNativeScale(t *testing.T) {
	c := color.NRGBA{R: 60, G: 90, B: 130, A: 255}
	img, mask := subjectAt(100, 100, image.Rect(20, 30, 60, 70), c)

	opts := DefaultOptions()
	opts.CanvasWidth = 150
	opts.CanvasHeight = 150

	first, err := Place(context.Background(), img, mask, opts)
	require.NoError(t, err)

	second, err := Place(context.Background(), first.Image, first.Mask, opts)
	require.NoError(t, err)

	assert.Equal(t, first.Image.Pix, second.Image.Pix)
	assert.Equal(t, first.Mask.Pix, second.Mask.Pix)
}

func TestPlaceEmptyMask(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	mask := image.NewGray(image.Rect(0, 0, 10, 10))

	_, err := Place(context.Background(), img, mask, DefaultOptions())
	require.Error(t, err)

	var empty *raster.EmptySubjectError
	assert.True(t, errors.As(err, &empty))
}

func TestPlaceDimensionMismatch(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	mask := image.NewGray(image.Rect(0, 0, 10, 12))

	_, err := Place(context.Background(), img, mask, DefaultOptions())
	require.Error(t, err)

	var dim *raster.DimensionError
	assert.True(t, errors.As(err, &dim))
}

func TestOptionsValidate(t *testing.T) {
	opts := DefaultOptions()
	assert.NoError(t, opts.Validate())

	opts.CanvasWidth = 0
	assert.Error(t, opts.Validate())

	opts = DefaultOptions()
	opts.MarginRatio = 0.5
	assert.Error(t, opts.Validate())

	opts.MarginRatio = -0.01
	assert.Error(t, opts.Validate())
}

func TestPlaceCancelledContext(t *testing.T) {
	img, mask := subjectAt(10, 10, image.Rect(0, 0, 10, 10), color.NRGBA{A: 255})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Place(ctx, img, mask, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

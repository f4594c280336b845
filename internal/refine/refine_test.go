package refine

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frgeek-official/fr-online-product-studio/internal/raster"
)

// fringeFixture builds a vertical red/white edge: columns left of the split
// are white background (alpha 0), the split column is half-covered with
// background mixed in, and columns right of it are pure red subject.
func fringeFixture(w, h, split int) (*image.NRGBA, *image.Gray) {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	mask := image.NewGray(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			switch {
			case x < split:
				img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
			case x == split:
				// obs = fg*a + bg*(1-a) for fg red, bg white, a = 128/255
				img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 127, B: 127, A: 255})
				mask.SetGray(x, y, color.Gray{Y: 128})
			default:
				img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img, mask
}

func TestRefineEmptyMask(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	mask := image.NewGray(image.Rect(0, 0, 8, 8))

	_, _, err := Refine(context.Background(), img, mask, DefaultOptions())
	require.Error(t, err)

	var empty *raster.EmptySubjectError
	assert.True(t, errors.As(err, &empty))
}

func TestRefineDimensionMismatch(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	mask := image.NewGray(image.Rect(0, 0, 8, 9))

	_, _, err := Refine(context.Background(), img, mask, DefaultOptions())
	require.Error(t, err)

	var dim *raster.DimensionError
	assert.True(t, errors.As(err, &dim))
}

func TestDefringeRecoversSubjectColor(t *testing.T) {
	img, mask := fringeFixture(8, 8, 4)
	opts := DefaultOptions().WithFeatherRadius(0)

	outImg, outMask, err := Refine(context.Background(), img, mask, opts)
	require.NoError(t, err)

	got := outImg.NRGBAAt(4, 4)
	assert.Equal(t, color.NRGBA{R: 255, G: 0, B: 0, A: 255}, got)

	// Defringe never alters the mask.
	assert.Equal(t, mask.Pix, outMask.Pix)
}

func TestDefringeGlobalFallback(t *testing.T) {
	// The partial pixel sits deep inside the subject, out of reach of any
	// background sample, so un-mixing must use the global white estimate.
	img := image.NewNRGBA(image.Rect(0, 0, 24, 24))
	mask := image.NewGray(image.Rect(0, 0, 24, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
			mask.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
			mask.SetGray(x, y, color.Gray{Y: 0})
		}
	}
	img.SetNRGBA(16, 16, color.NRGBA{R: 255, G: 127, B: 127, A: 255})
	mask.SetGray(16, 16, color.Gray{Y: 128})

	opts := DefaultOptions().WithFeatherRadius(0)
	opts.SampleRadius = 2

	outImg, _, err := Refine(context.Background(), img, mask, opts)
	require.NoError(t, err)

	got := outImg.NRGBAAt(16, 16)
	assert.InDelta(t, 255, int(got.R), 2)
	assert.InDelta(t, 0, int(got.G), 2)
	assert.InDelta(t, 0, int(got.B), 2)
}

func TestDefringeBinaryMaskNoChange(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	mask := image.NewGray(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 20), G: uint8(y * 20), B: 7, A: 255})
			if x >= 5 {
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	opts := DefaultOptions().WithFeatherRadius(0)
	outImg, _, err := Refine(context.Background(), img, mask, opts)
	require.NoError(t, err)

	assert.Equal(t, img.Pix, outImg.Pix)
}

func TestRefineInputsNotMutated(t *testing.T) {
	img, mask := fringeFixture(8, 8, 4)
	imgBefore := append([]uint8(nil), img.Pix...)
	maskBefore := append([]uint8(nil), mask.Pix...)

	_, _, err := Refine(context.Background(), img, mask, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, imgBefore, img.Pix)
	assert.Equal(t, maskBefore, mask.Pix)
}

func TestFeatherTouchesOnlyMask(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	mask := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 40, G: 80, B: 120, A: 255})
			if x >= 10 && x < 22 && y >= 10 && y < 22 {
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	opts := DefaultOptions().WithFeatherRadius(2)
	outImg, outMask, err := Refine(context.Background(), img, mask, opts)
	require.NoError(t, err)

	// Colors are untouched; only alpha is smoothed.
	assert.Equal(t, img.Pix, outImg.Pix)
	// Deep interior keeps full coverage, far background stays empty.
	assert.Equal(t, uint8(255), outMask.GrayAt(16, 16).Y)
	assert.Equal(t, uint8(0), outMask.GrayAt(2, 2).Y)
	// The boundary gains intermediate coverage.
	edge := outMask.GrayAt(22, 16).Y
	assert.Greater(t, edge, uint8(0))
	assert.Less(t, edge, uint8(255))
}

func TestErodeShrinksMask(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	mask := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 10; y < 22; y++ {
		for x := 10; x < 22; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
			mask.SetGray(x, y, color.Gray{Y: 255})
		}
	}

	opts := DefaultOptions().WithFeatherRadius(0).WithErodeIterations(1)
	_, outMask, err := Refine(context.Background(), img, mask, opts)
	require.NoError(t, err)

	assert.Equal(t, uint8(0), outMask.GrayAt(10, 16).Y)
	assert.Equal(t, uint8(255), outMask.GrayAt(12, 16).Y)
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())

	bad := DefaultOptions().WithThresholds(200, 100)
	assert.Error(t, bad.Validate())

	assert.Error(t, DefaultOptions().WithFeatherRadius(-1).Validate())

	zeroSample := DefaultOptions()
	zeroSample.SampleRadius = 0
	assert.Error(t, zeroSample.Validate())
}

func TestRefineCancelledContext(t *testing.T) {
	img, mask := fringeFixture(8, 8, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Refine(ctx, img, mask, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

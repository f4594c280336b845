package classify

import (
	"encoding/json"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func uniform(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestClassifyUniformWhite(t *testing.T) {
	img := uniform(60, 60, color.NRGBA{R: 250, G: 250, B: 250, A: 255})

	got := Classify(img, DefaultOptions())

	assert.Equal(t, BackgroundWhite, got.Kind)
	assert.Equal(t, 1.0, got.WhiteRatio)
	assert.GreaterOrEqual(t, got.Confidence, 0.99)
}

func TestClassifyColoredBackground(t *testing.T) {
	img := uniform(60, 60, color.NRGBA{R: 30, G: 60, B: 180, A: 255})

	got := Classify(img, DefaultOptions())

	assert.Equal(t, BackgroundOther, got.Kind)
	assert.Equal(t, 0.0, got.WhiteRatio)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestClassifyBrightButTintedRejected(t *testing.T) {
	// V = 0.98 passes the brightness floor, S = 30/250 = 0.12 fails the
	// saturation ceiling.
	img := uniform(40, 40, color.NRGBA{R: 250, G: 220, B: 220, A: 255})

	got := Classify(img, DefaultOptions())

	assert.Equal(t, BackgroundOther, got.Kind)
	assert.Equal(t, 0.0, got.WhiteRatio)
}

func TestClassifyGrayRejectedByBrightness(t *testing.T) {
	// S = 0 but V = 180/255 = 0.71.
	img := uniform(40, 40, color.NRGBA{R: 180, G: 180, B: 180, A: 255})

	got := Classify(img, DefaultOptions())

	assert.Equal(t, BackgroundOther, got.Kind)
	assert.Equal(t, 0.0, got.WhiteRatio)
}

func TestClassifyBrightnessFloorBoundary(t *testing.T) {
	// 230/255 = 0.902 sits just above the 0.90 floor, 228/255 = 0.894
	// just below.
	above := Classify(uniform(20, 20, color.NRGBA{R: 230, G: 230, B: 230, A: 255}), DefaultOptions())
	assert.Equal(t, BackgroundWhite, above.Kind)

	below := Classify(uniform(20, 20, color.NRGBA{R: 228, G: 228, B: 228, A: 255}), DefaultOptions())
	assert.Equal(t, BackgroundOther, below.Kind)
	assert.Equal(t, 0.0, below.WhiteRatio)
}

func TestClassifySubjectOnWhite(t *testing.T) {
	img := uniform(100, 100, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	for y := 40; y < 60; y++ {
		for x := 40; x < 60; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}

	got := Classify(img, DefaultOptions())

	assert.Equal(t, BackgroundWhite, got.Kind)
	assert.InDelta(t, 0.96, got.WhiteRatio, 1e-9)
}

func TestClassifyHalfAndHalf(t *testing.T) {
	img := uniform(40, 40, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	for y := 20; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 20, G: 20, B: 160, A: 255})
		}
	}

	got := Classify(img, DefaultOptions())

	assert.Equal(t, BackgroundOther, got.Kind)
	assert.InDelta(t, 0.5, got.WhiteRatio, 1e-9)
	assert.InDelta(t, 0.5, got.Confidence, 1e-9)
}

func TestClassifyEmptyImage(t *testing.T) {
	got := Classify(image.NewNRGBA(image.Rectangle{}), DefaultOptions())

	assert.Equal(t, BackgroundOther, got.Kind)
	assert.Equal(t, 0.0, got.WhiteRatio)
}

func TestKindJSON(t *testing.T) {
	b, err := json.Marshal(BackgroundWhite)
	assert.NoError(t, err)
	assert.Equal(t, `"white"`, string(b))

	b, err = json.Marshal(BackgroundOther)
	assert.NoError(t, err)
	assert.Equal(t, `"other"`, string(b))
}

func TestClassificationString(t *testing.T) {
	c := Classification{Kind: BackgroundWhite, Confidence: 0.97, WhiteRatio: 0.97, Dominant: "#fefefe"}
	s := c.String()
	assert.Contains(t, s, "white")
	assert.Contains(t, s, "#fefefe")
	assert.Contains(t, s, "97")
}

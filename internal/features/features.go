// Package features extracts subject statistics for tone prediction.
package features

import (
	"fmt"
	"image"

	"gonum.org/v1/gonum/stat"

	"github.com/frgeek-official/fr-online-product-studio/internal/raster"
	"github.com/frgeek-official/fr-online-product-studio/pkg/colorutil"
)

// Luminance bucket limits for the tonal distribution ratios.
const (
	darkLimit   = 50.0
	brightLimit = 150.0
)

// Names lists the vector fields in canonical order. Tone model artifacts are
// trained against this exact ordering and validate it at load time.
var Names = []string{
	"luminance_mean",
	"luminance_std",
	"dark_ratio",
	"mid_ratio",
	"bright_ratio",
	"saturation_mean",
	"saturation_std",
}

// Vector holds the subject statistics consumed by the tone model.
type Vector struct {
	// Luminance features (BT.601, 0-255)
	LuminanceMean float64 `json:"luminance_mean"`
	LuminanceStd  float64 `json:"luminance_std"`

	// Tonal distribution over subject pixels
	DarkRatio   float64 `json:"dark_ratio"`   // Y < 50
	MidRatio    float64 `json:"mid_ratio"`    // 50 <= Y < 150
	BrightRatio float64 `json:"bright_ratio"` // Y >= 150

	// Saturation features (OpenCV scale, 0-255)
	SaturationMean float64 `json:"saturation_mean"`
	SaturationStd  float64 `json:"saturation_std"`
}

// Slice returns the vector in the Names ordering.
func (v Vector) Slice() []float64 {
	return []float64{
		v.LuminanceMean,
		v.LuminanceStd,
		v.DarkRatio,
		v.MidRatio,
		v.BrightRatio,
		v.SaturationMean,
		v.SaturationStd,
	}
}

// InsufficientSubjectError reports a subject too small to produce stable
// statistics.
type InsufficientSubjectError struct {
	Count int
	Min   int
}

func (e *InsufficientSubjectError) Error() string {
	return fmt.Sprintf("subject has %d pixels, need at least %d for feature extraction", e.Count, e.Min)
}

// Options control feature extraction.
type Options struct {
	MaskThreshold    uint8 // mask values above this count as subject
	MinSubjectPixels int   // below this, extraction fails
}

// DefaultOptions returns extraction settings used in production.
func DefaultOptions() Options {
	return Options{
		MaskThreshold:    0,
		MinSubjectPixels: 100,
	}
}

// Extract computes subject-only statistics over the masked image.
// Statistics are population statistics; partial-coverage pixels count as
// subject at full weight.
func Extract(img *image.NRGBA, mask *image.Gray, opts Options) (Vector, error) {
	if err := raster.EnsureSameSize(img, mask); err != nil {
		return Vector{}, err
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	lums := make([]float64, 0, w*h/4)
	sats := make([]float64, 0, w*h/4)
	var dark, mid, bright int

	for y := 0; y < h; y++ {
		mi := mask.PixOffset(0, y)
		for x := 0; x < w; x++ {
			if mask.Pix[mi+x] <= opts.MaskThreshold {
				continue
			}
			pi := img.PixOffset(x, y)
			r := img.Pix[pi+0]
			g := img.Pix[pi+1]
			b := img.Pix[pi+2]

			lum := colorutil.Luminance(r, g, b)
			lums = append(lums, lum)
			switch {
			case lum < darkLimit:
				dark++
			case lum < brightLimit:
				mid++
			default:
				bright++
			}

			_, s, _ := colorutil.RGBToHSV(float64(r), float64(g), float64(b))
			sats = append(sats, s)
		}
	}

	count := len(lums)
	if count == 0 || count < opts.MinSubjectPixels {
		return Vector{}, &InsufficientSubjectError{Count: count, Min: opts.MinSubjectPixels}
	}

	total := float64(count)
	return Vector{
		LuminanceMean:  stat.Mean(lums, nil),
		LuminanceStd:   stat.PopStdDev(lums, nil),
		DarkRatio:      float64(dark) / total,
		MidRatio:       float64(mid) / total,
		BrightRatio:    float64(bright) / total,
		SaturationMean: stat.Mean(sats, nil),
		SaturationStd:  stat.PopStdDev(sats, nil),
	}, nil
}

// Package classify decides whether a product photo already sits on a
// clean white studio background.
//
// Photos that pass skip the paid re-segmentation step upstream, so the
// test is conservative: the per-pixel white ratio and the dominant color
// cluster both have to agree before a photo is called white.
package classify

import (
	"fmt"
	"image"
	"strconv"

	"github.com/cenkalti/dominantcolor"
	"github.com/lucasb-eyer/go-colorful"
)

// Kind is the background verdict for a photo.
type Kind int

const (
	// BackgroundOther covers everything that is not a clean white studio
	// background.
	BackgroundOther Kind = iota
	// BackgroundWhite marks a clean white studio background.
	BackgroundWhite
)

func (k Kind) String() string {
	if k == BackgroundWhite {
		return "white"
	}
	return "other"
}

// MarshalJSON writes the verdict as its string form.
func (k Kind) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(k.String())), nil
}

// Options configure the white-background test.
type Options struct {
	// MinBrightness is the HSV value floor for a white-looking pixel.
	MinBrightness float64

	// MaxSaturation is the HSV saturation ceiling for a white-looking
	// pixel.
	MaxSaturation float64

	// WhiteRatio is the fraction of white-looking pixels required for a
	// white verdict.
	WhiteRatio float64
}

// DefaultOptions returns the studio's production thresholds.
func DefaultOptions() Options {
	return Options{
		MinBrightness: 0.90,
		MaxSaturation: 0.10,
		WhiteRatio:    0.80,
	}
}

// Classification is the outcome of a background check.
type Classification struct {
	Kind       Kind    `json:"kind"`
	Confidence float64 `json:"confidence"`
	WhiteRatio float64 `json:"white_ratio"`
	Dominant   string  `json:"dominant"`
}

func (c Classification) String() string {
	return fmt.Sprintf("%s (%.0f%% white pixels, dominant %s, confidence %.2f)",
		c.Kind, c.WhiteRatio*100, c.Dominant, c.Confidence)
}

// Classify checks whether img sits on a clean white background. Alpha is
// ignored; source photos arrive opaque.
func Classify(img *image.NRGBA, opts Options) Classification {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return Classification{Kind: BackgroundOther, Dominant: "#000000"}
	}

	white := 0
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < b.Dx(); x++ {
			if isWhite(row[x*4], row[x*4+1], row[x*4+2], opts) {
				white++
			}
		}
	}
	ratio := float64(white) / float64(total)

	dom := dominantColor(img)
	_, s, v := dom.Hsv()
	domWhite := v >= opts.MinBrightness && s <= opts.MaxSaturation

	out := Classification{WhiteRatio: ratio, Dominant: dom.Hex()}
	switch {
	case ratio >= opts.WhiteRatio && domWhite:
		out.Kind = BackgroundWhite
		out.Confidence = ratio
	case ratio >= opts.WhiteRatio:
		// The pixel count says white but the dominant cluster disagrees,
		// usually a bright but tinted backdrop.
		out.Kind = BackgroundOther
		out.Confidence = 0.5
	default:
		out.Kind = BackgroundOther
		out.Confidence = 1 - ratio
	}
	return out
}

func isWhite(r, g, b uint8, opts Options) bool {
	c := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	_, s, v := c.Hsv()
	return v >= opts.MinBrightness && s <= opts.MaxSaturation
}

// dominantColor returns the heaviest color cluster in the image.
func dominantColor(img image.Image) colorful.Color {
	candidates := dominantcolor.FindWeight(img, 4)
	if len(candidates) == 0 {
		return colorful.Color{}
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Weight > best.Weight {
			best = c
		}
	}
	col, _ := colorful.MakeColor(best.RGBA)
	return col.Clamped()
}

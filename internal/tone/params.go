// Package tone predicts and applies global tone correction for product shots.
//
// Correction is a three-parameter curve fitted offline against retoucher
// output and applied per pixel at 8-bit depth:
//
//	y = ((x*contrast + brightness) / 255)^gamma * 255
//
// with the normalized input clipped to [0, 1] before the exponent.
package tone

import "fmt"

// Parameters describe one tone curve.
type Parameters struct {
	Brightness float64 `json:"brightness"` // additive, pixel units
	Contrast   float64 `json:"contrast"`   // multiplicative
	Gamma      float64 `json:"gamma"`      // exponent
}

// Neutral returns the identity parameters.
func Neutral() Parameters {
	return Parameters{Brightness: 0, Contrast: 1, Gamma: 1}
}

// IsNeutral reports whether p is an identity mapping.
func (p Parameters) IsNeutral() bool {
	return p == Neutral()
}

// Bounds restrict each parameter to the range the curve behaves in.
type Bounds struct {
	BrightnessMin float64 `json:"brightness_min"`
	BrightnessMax float64 `json:"brightness_max"`
	ContrastMin   float64 `json:"contrast_min"`
	ContrastMax   float64 `json:"contrast_max"`
	GammaMin      float64 `json:"gamma_min"`
	GammaMax      float64 `json:"gamma_max"`
}

// DefaultBounds returns the ranges the production model is trained within.
func DefaultBounds() Bounds {
	return Bounds{
		BrightnessMin: -50, BrightnessMax: 50,
		ContrastMin: 0.5, ContrastMax: 2.0,
		GammaMin: 0.5, GammaMax: 2.5,
	}
}

// Validate reports inverted ranges.
func (b Bounds) Validate() error {
	if b.BrightnessMin > b.BrightnessMax {
		return fmt.Errorf("tone: brightness bounds [%g, %g] are inverted", b.BrightnessMin, b.BrightnessMax)
	}
	if b.ContrastMin > b.ContrastMax || b.ContrastMin <= 0 {
		return fmt.Errorf("tone: contrast bounds [%g, %g] must be positive and ordered", b.ContrastMin, b.ContrastMax)
	}
	if b.GammaMin > b.GammaMax || b.GammaMin <= 0 {
		return fmt.Errorf("tone: gamma bounds [%g, %g] must be positive and ordered", b.GammaMin, b.GammaMax)
	}
	return nil
}

// Clamp returns p with every component forced into b.
func (p Parameters) Clamp(b Bounds) Parameters {
	return Parameters{
		Brightness: clampF(p.Brightness, b.BrightnessMin, b.BrightnessMax),
		Contrast:   clampF(p.Contrast, b.ContrastMin, b.ContrastMax),
		Gamma:      clampF(p.Gamma, b.GammaMin, b.GammaMax),
	}
}

func clampF(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}

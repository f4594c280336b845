package pipeline

import (
	"fmt"
	"image/color"
	"time"

	"github.com/frgeek-official/fr-online-product-studio/internal/center"
	"github.com/frgeek-official/fr-online-product-studio/internal/features"
	"github.com/frgeek-official/fr-online-product-studio/internal/refine"
	"github.com/frgeek-official/fr-online-product-studio/internal/shadow"
	"github.com/frgeek-official/fr-online-product-studio/internal/tone"
	"github.com/frgeek-official/fr-online-product-studio/pkg/colorutil"
)

// Config carries every knob of a finishing run. Build one with
// DefaultConfig and the WithX modifiers; a Config is plain data and can be
// shared by any number of concurrent runs.
type Config struct {
	CanvasWidth  int
	CanvasHeight int
	MarginRatio  float64
	Background   color.NRGBA
	FillCanvas   bool

	ErodeIterations int
	FeatherRadius   int
	DefringeLow     uint8
	DefringeHigh    uint8

	ShadowOffsetY    int
	ShadowBlurRadius int
	ShadowOpacity    float64
	ShadowColor      color.NRGBA

	MaskThreshold    uint8
	MinSubjectPixels int

	ChannelMode    tone.ChannelMode
	ToneBounds     tone.Bounds
	PredictTimeout time.Duration

	// Stage toggles for incident response. Disabling tone correction skips
	// prediction and application; disabling the shadow keeps the final
	// flatten onto the background.
	DisableShadow         bool
	DisableToneCorrection bool
}

// DefaultConfig returns the studio's production settings: 1200px square
// white canvas, soft drop shadow, per-channel tone correction.
func DefaultConfig() Config {
	r := refine.DefaultOptions()
	s := shadow.DefaultOptions()
	return Config{
		CanvasWidth:  1200,
		CanvasHeight: 1200,
		MarginRatio:  0.05,
		Background:   colorutil.White,

		ErodeIterations: r.ErodeIterations,
		FeatherRadius:   r.FeatherRadius,
		DefringeLow:     r.LowThreshold,
		DefringeHigh:    r.HighThreshold,

		ShadowOffsetY:    s.OffsetY,
		ShadowBlurRadius: s.BlurRadius,
		ShadowOpacity:    s.Opacity,
		ShadowColor:      s.Color,

		MinSubjectPixels: features.DefaultOptions().MinSubjectPixels,

		ChannelMode:    tone.PerChannel,
		ToneBounds:     tone.DefaultBounds(),
		PredictTimeout: tone.DefaultPredictTimeout,
	}
}

// WithCanvasSize returns a copy with the output dimensions replaced.
func (c Config) WithCanvasSize(w, h int) Config {
	c.CanvasWidth = w
	c.CanvasHeight = h
	return c
}

// WithMarginRatio returns a copy with the placement margin replaced.
func (c Config) WithMarginRatio(m float64) Config {
	c.MarginRatio = m
	return c
}

// WithBackground returns a copy with the flatten background replaced.
func (c Config) WithBackground(bg color.NRGBA) Config {
	c.Background = bg
	return c
}

// WithFeatherRadius returns a copy with the mask feather radius replaced.
func (c Config) WithFeatherRadius(r int) Config {
	c.FeatherRadius = r
	return c
}

// WithErodeIterations returns a copy with the erode pass count replaced.
func (c Config) WithErodeIterations(n int) Config {
	c.ErodeIterations = n
	return c
}

// WithDefringeThresholds returns a copy with the partial-coverage band replaced.
func (c Config) WithDefringeThresholds(low, high uint8) Config {
	c.DefringeLow = low
	c.DefringeHigh = high
	return c
}

// WithShadow returns a copy with the shadow geometry replaced.
func (c Config) WithShadow(offsetY, blurRadius int, opacity float64) Config {
	c.ShadowOffsetY = offsetY
	c.ShadowBlurRadius = blurRadius
	c.ShadowOpacity = opacity
	return c
}

// WithShadowColor returns a copy with the shadow tint replaced.
func (c Config) WithShadowColor(col color.NRGBA) Config {
	c.ShadowColor = col
	return c
}

// WithMinSubjectPixels returns a copy with the subject size floor replaced.
func (c Config) WithMinSubjectPixels(n int) Config {
	c.MinSubjectPixels = n
	return c
}

// WithChannelMode returns a copy with the tone channel mode replaced.
func (c Config) WithChannelMode(m tone.ChannelMode) Config {
	c.ChannelMode = m
	return c
}

// WithToneBounds returns a copy with the parameter clamp ranges replaced.
func (c Config) WithToneBounds(b tone.Bounds) Config {
	c.ToneBounds = b
	return c
}

// WithPredictTimeout returns a copy with the model invocation timeout replaced.
func (c Config) WithPredictTimeout(d time.Duration) Config {
	c.PredictTimeout = d
	return c
}

// WithoutShadow returns a copy that skips shadow synthesis.
func (c Config) WithoutShadow() Config {
	c.DisableShadow = true
	return c
}

// WithoutToneCorrection returns a copy that skips tone prediction and
// application.
func (c Config) WithoutToneCorrection() Config {
	c.DisableToneCorrection = true
	return c
}

// Validate checks the whole configuration by validating each stage's view
// of it.
func (c Config) Validate() error {
	if err := c.refineOptions().Validate(); err != nil {
		return err
	}
	if err := c.centerOptions().Validate(); err != nil {
		return err
	}
	if err := c.shadowOptions().Validate(); err != nil {
		return err
	}
	if err := c.ToneBounds.Validate(); err != nil {
		return err
	}
	if c.MinSubjectPixels < 0 {
		return fmt.Errorf("pipeline: min subject pixels %d must not be negative", c.MinSubjectPixels)
	}
	if c.PredictTimeout < 0 {
		return fmt.Errorf("pipeline: predict timeout %s must not be negative", c.PredictTimeout)
	}
	return nil
}

func (c Config) refineOptions() refine.Options {
	o := refine.DefaultOptions()
	o.ErodeIterations = c.ErodeIterations
	o.FeatherRadius = c.FeatherRadius
	o.LowThreshold = c.DefringeLow
	o.HighThreshold = c.DefringeHigh
	return o
}

func (c Config) featureOptions() features.Options {
	return features.Options{
		MaskThreshold:    c.MaskThreshold,
		MinSubjectPixels: c.MinSubjectPixels,
	}
}

func (c Config) applyOptions() tone.ApplyOptions {
	return tone.ApplyOptions{
		Mode:          c.ChannelMode,
		MaskThreshold: c.MaskThreshold,
	}
}

func (c Config) centerOptions() center.Options {
	return center.Options{
		CanvasWidth:   c.CanvasWidth,
		CanvasHeight:  c.CanvasHeight,
		MarginRatio:   c.MarginRatio,
		FillCanvas:    c.FillCanvas,
		MaskThreshold: c.MaskThreshold,
	}
}

func (c Config) shadowOptions() shadow.Options {
	o := shadow.Options{
		OffsetY:          c.ShadowOffsetY,
		BlurRadius:       c.ShadowBlurRadius,
		Opacity:          c.ShadowOpacity,
		Color:            c.ShadowColor,
		Background:       c.Background,
		MinSubjectPixels: c.MinSubjectPixels,
		MaskThreshold:    c.MaskThreshold,
	}
	if c.DisableShadow {
		o.Opacity = 0
	}
	return o
}

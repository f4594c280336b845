package pipeline

import (
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frgeek-official/fr-online-product-studio/internal/tone"
)

func TestDefaultConfigValidates(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidateRejectsNonsense(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(Config) Config
	}{
		{"zero canvas", func(c Config) Config { return c.WithCanvasSize(0, 1200) }},
		{"margin too large", func(c Config) Config { return c.WithMarginRatio(0.5) }},
		{"negative margin", func(c Config) Config { return c.WithMarginRatio(-0.1) }},
		{"inverted defringe band", func(c Config) Config { return c.WithDefringeThresholds(200, 100) }},
		{"negative erode", func(c Config) Config { return c.WithErodeIterations(-1) }},
		{"opacity above one", func(c Config) Config { return c.WithShadow(16, 12, 1.5) }},
		{"negative blur", func(c Config) Config { return c.WithShadow(16, -3, 0.4) }},
		{"negative min pixels", func(c Config) Config { return c.WithMinSubjectPixels(-5) }},
		{"negative timeout", func(c Config) Config { return c.WithPredictTimeout(-time.Second) }},
		{"inverted contrast bounds", func(c Config) Config {
			b := tone.DefaultBounds()
			b.ContrastMin, b.ContrastMax = b.ContrastMax, b.ContrastMin
			return c.WithToneBounds(b)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.mutate(DefaultConfig())
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfigBuildersDoNotMutateReceiver(t *testing.T) {
	base := DefaultConfig()
	modified := base.
		WithCanvasSize(800, 600).
		WithMarginRatio(0.1).
		WithBackground(color.NRGBA{R: 10, G: 20, B: 30, A: 255}).
		WithFeatherRadius(5).
		WithShadowColor(color.NRGBA{R: 40, G: 40, B: 40, A: 255}).
		WithoutShadow().
		WithoutToneCorrection()

	assert.Equal(t, 1200, base.CanvasWidth)
	assert.False(t, base.DisableShadow)
	assert.False(t, base.DisableToneCorrection)

	assert.Equal(t, 800, modified.CanvasWidth)
	assert.Equal(t, 600, modified.CanvasHeight)
	assert.Equal(t, 0.1, modified.MarginRatio)
	assert.Equal(t, 5, modified.FeatherRadius)
	assert.True(t, modified.DisableShadow)
	assert.True(t, modified.DisableToneCorrection)
	require.NoError(t, modified.Validate())
}

func TestConfigStageOptionViews(t *testing.T) {
	cfg := DefaultConfig().
		WithDefringeThresholds(12, 240).
		WithErodeIterations(2).
		WithShadow(20, 8, 0.3).
		WithMinSubjectPixels(64)

	ro := cfg.refineOptions()
	assert.Equal(t, uint8(12), ro.LowThreshold)
	assert.Equal(t, uint8(240), ro.HighThreshold)
	assert.Equal(t, 2, ro.ErodeIterations)

	fo := cfg.featureOptions()
	assert.Equal(t, 64, fo.MinSubjectPixels)

	so := cfg.shadowOptions()
	assert.Equal(t, 20, so.OffsetY)
	assert.Equal(t, 8, so.BlurRadius)
	assert.Equal(t, 0.3, so.Opacity)
	assert.Equal(t, 64, so.MinSubjectPixels)
	assert.Equal(t, cfg.Background, so.Background)
}

func TestConfigDisableShadowZeroesOpacity(t *testing.T) {
	cfg := DefaultConfig().WithoutShadow()
	assert.Equal(t, 0.0, cfg.shadowOptions().Opacity)

	// The flatten background survives the toggle.
	assert.Equal(t, cfg.Background, cfg.shadowOptions().Background)
}

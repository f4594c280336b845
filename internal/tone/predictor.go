package tone

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frgeek-official/fr-online-product-studio/internal/features"
)

// DefaultPredictTimeout bounds one model invocation.
const DefaultPredictTimeout = 2 * time.Second

// ModelUnavailableError wraps model load or inference failures. At run time
// the pipeline recovers from it with neutral parameters and a degraded flag.
type ModelUnavailableError struct {
	Err error
}

func (e *ModelUnavailableError) Error() string {
	return "tone model unavailable: " + e.Err.Error()
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// Predictor turns extracted features into clamped tone parameters.
// It is immutable after construction and safe for concurrent use.
type Predictor struct {
	model   Model
	bounds  Bounds
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewPredictor wraps a model with bounds and an invocation timeout. A nil
// model is allowed; every prediction then falls back to neutral. A nil
// logger falls back to the standard logger.
func NewPredictor(model Model, bounds Bounds, timeout time.Duration, log logrus.FieldLogger) *Predictor {
	if timeout <= 0 {
		timeout = DefaultPredictTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Predictor{model: model, bounds: bounds, timeout: timeout, log: log}
}

// ModelVersion returns the wrapped artifact's version, or empty without a model.
func (p *Predictor) ModelVersion() string {
	if p.model == nil {
		return ""
	}
	return p.model.Version()
}

// Predict returns tone parameters for the vector. It ALWAYS returns usable
// parameters: on model failure, timeout, or cancellation the result is
// Neutral() and the error is a *ModelUnavailableError carrying the cause, so
// the caller can record the run as degraded and continue. Out-of-bounds model
// output is clamped and logged, not treated as an error.
func (p *Predictor) Predict(ctx context.Context, v features.Vector) (Parameters, error) {
	if p.model == nil {
		return Neutral(), &ModelUnavailableError{Err: errors.New("no model configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type outcome struct {
		params Parameters
		err    error
	}
	// Buffered so an abandoned invocation does not leak its goroutine.
	done := make(chan outcome, 1)
	go func() {
		params, err := p.model.Predict(v.Slice())
		done <- outcome{params: params, err: err}
	}()

	select {
	case <-ctx.Done():
		return Neutral(), &ModelUnavailableError{Err: ctx.Err()}
	case out := <-done:
		if out.err != nil {
			return Neutral(), &ModelUnavailableError{Err: out.err}
		}
		clamped := out.params.Clamp(p.bounds)
		if clamped != out.params {
			p.log.WithFields(logrus.Fields{
				"raw_brightness": out.params.Brightness,
				"raw_contrast":   out.params.Contrast,
				"raw_gamma":      out.params.Gamma,
			}).Warn("Tone parameters clamped to bounds")
		}
		return clamped, nil
	}
}

// Package pipeline sequences the finishing stages for one product photo:
// edge refinement, feature extraction, tone prediction and application,
// canvas placement, and shadow synthesis.
//
// A Pipeline is immutable after New and safe for concurrent Run calls; all
// per-run state lives inside Run. Model trouble and too-small subjects
// degrade a run to neutral tone parameters instead of failing it, and the
// result records that degradation for downstream quality review.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frgeek-official/fr-online-product-studio/internal/center"
	"github.com/frgeek-official/fr-online-product-studio/internal/features"
	"github.com/frgeek-official/fr-online-product-studio/internal/refine"
	"github.com/frgeek-official/fr-online-product-studio/internal/shadow"
	"github.com/frgeek-official/fr-online-product-studio/internal/tone"
	"github.com/frgeek-official/fr-online-product-studio/internal/version"
)

// Stage names, in execution order. They identify the failing stage in
// StageError and key the per-stage duration map.
const (
	StageRefine  = "refine"
	StageExtract = "features"
	StagePredict = "predict"
	StageTone    = "tone"
	StageCenter  = "center"
	StageShadow  = "shadow"
)

// StageError wraps a fatal stage failure with the stage name and the run
// identifier, so batch callers can report which image broke where.
type StageError struct {
	Stage string
	ID    string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed for %q: %v", e.Stage, e.ID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ParameterSource records where a run's tone parameters came from.
type ParameterSource int

const (
	// SourceDisabled means tone correction was switched off for the run.
	SourceDisabled ParameterSource = iota
	// SourceModel means the parameters came from the prediction model.
	SourceModel
	// SourceFallback means the run fell back to neutral parameters.
	SourceFallback
)

func (s ParameterSource) String() string {
	switch s {
	case SourceDisabled:
		return "disabled"
	case SourceModel:
		return "model"
	case SourceFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// MarshalJSON writes the source as its string form.
func (s ParameterSource) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(s.String())), nil
}

// Result is the outcome of one finishing run.
type Result struct {
	// ID is the caller-supplied run identifier, usually the file name.
	ID string `json:"id"`

	// Image is the finished canvas-size RGBA composite.
	Image *image.NRGBA `json:"-"`

	// Placement records how the subject was mapped onto the canvas.
	Placement center.Placement `json:"placement"`

	// Features holds the extracted statistics; nil when extraction was
	// skipped or failed.
	Features *features.Vector `json:"features,omitempty"`

	// Parameters are the tone parameters the run applied, and Source says
	// where they came from.
	Parameters tone.Parameters `json:"parameters"`
	Source     ParameterSource `json:"parameter_source"`

	// Degraded marks a run that completed on fallback parameters.
	Degraded       bool   `json:"degraded"`
	DegradedReason string `json:"degraded_reason,omitempty"`

	// StageDurations holds wall time per executed stage.
	StageDurations map[string]time.Duration `json:"-"`
	Duration       time.Duration            `json:"-"`

	PipelineVersion string `json:"pipeline_version"`
	ModelVersion    string `json:"model_version,omitempty"`
}

// Pipeline runs the finishing stages in a fixed order. Construct with New.
type Pipeline struct {
	cfg       Config
	predictor *tone.Predictor
	log       logrus.FieldLogger
}

// New validates cfg and builds a pipeline around the given tone model. The
// model may be nil; every run then degrades to neutral parameters. A nil
// logger falls back to the standard logger.
func New(cfg Config, model tone.Model, log logrus.FieldLogger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pipeline{
		cfg:       cfg,
		predictor: tone.NewPredictor(model, cfg.ToneBounds, cfg.PredictTimeout, log),
		log:       log,
	}, nil
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() Config { return p.cfg }

// Run finishes one photo. src and mask must share dimensions; id labels the
// run in logs and errors. The inputs are never modified, and a failed run
// returns a *StageError naming the stage that broke. Cancellation is honored
// between stages, never inside one.
func (p *Pipeline) Run(ctx context.Context, src *image.NRGBA, mask *image.Gray, id string) (*Result, error) {
	if src == nil || mask == nil {
		return nil, fmt.Errorf("pipeline: nil image or mask for %q", id)
	}

	started := time.Now()
	log := p.log.WithField("run_id", id)
	res := &Result{
		ID:              id,
		Parameters:      tone.Neutral(),
		Source:          SourceDisabled,
		StageDurations:  make(map[string]time.Duration, 6),
		PipelineVersion: version.Version,
		ModelVersion:    p.predictor.ModelVersion(),
	}

	t := time.Now()
	img, m, err := refine.Refine(ctx, src, mask, p.cfg.refineOptions())
	if err != nil {
		return nil, p.fail(log, StageRefine, id, err)
	}
	res.StageDurations[StageRefine] = time.Since(t)

	if !p.cfg.DisableToneCorrection {
		if err := p.toneStages(ctx, log, res, img, m); err != nil {
			return nil, err
		}
		if !res.Parameters.IsNeutral() {
			t = time.Now()
			img, err = tone.Apply(ctx, img, m, res.Parameters, p.cfg.applyOptions())
			if err != nil {
				return nil, p.fail(log, StageTone, id, err)
			}
			res.StageDurations[StageTone] = time.Since(t)
		}
	}

	t = time.Now()
	placed, err := center.Place(ctx, img, m, p.cfg.centerOptions())
	if err != nil {
		return nil, p.fail(log, StageCenter, id, err)
	}
	res.StageDurations[StageCenter] = time.Since(t)
	res.Placement = placed.Placement

	t = time.Now()
	final, err := shadow.AddShadow(ctx, placed.Image, placed.Mask, p.cfg.shadowOptions())
	if err != nil {
		return nil, p.fail(log, StageShadow, id, err)
	}
	res.StageDurations[StageShadow] = time.Since(t)

	res.Image = final
	res.Duration = time.Since(started)

	fields := logrus.Fields{"duration": res.Duration, "degraded": res.Degraded}
	for stage, d := range res.StageDurations {
		fields["stage_"+stage] = d
	}
	log.WithFields(fields).Debug("Finishing run complete")
	return res, nil
}

// toneStages extracts features and predicts parameters, downgrading the run
// to neutral parameters on the recoverable failures.
func (p *Pipeline) toneStages(ctx context.Context, log logrus.FieldLogger, res *Result, img *image.NRGBA, m *image.Gray) error {
	t := time.Now()
	vec, err := features.Extract(img, m, p.cfg.featureOptions())
	res.StageDurations[StageExtract] = time.Since(t)

	var small *features.InsufficientSubjectError
	switch {
	case errors.As(err, &small):
		res.Degraded = true
		res.DegradedReason = err.Error()
		res.Source = SourceFallback
		log.WithField("stage", StageExtract).WithError(err).Warn("Subject too small for statistics, using neutral tone")
		return nil
	case err != nil:
		return p.fail(log, StageExtract, res.ID, err)
	}
	res.Features = &vec

	t = time.Now()
	params, err := p.predictor.Predict(ctx, vec)
	res.StageDurations[StagePredict] = time.Since(t)
	res.Parameters = params

	if err != nil {
		var unavailable *tone.ModelUnavailableError
		if !errors.As(err, &unavailable) {
			return p.fail(log, StagePredict, res.ID, err)
		}
		res.Degraded = true
		res.DegradedReason = err.Error()
		res.Source = SourceFallback
		log.WithField("stage", StagePredict).WithError(err).Warn("Tone model unavailable, using neutral tone")
		return nil
	}

	res.Source = SourceModel
	return nil
}

// fail logs and wraps a fatal stage failure.
func (p *Pipeline) fail(log logrus.FieldLogger, stage, id string, err error) error {
	log.WithField("stage", stage).WithError(err).Error("Finishing run aborted")
	return &StageError{Stage: stage, ID: id, Err: err}
}

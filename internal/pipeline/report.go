package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/frgeek-official/fr-online-product-studio/internal/center"
	"github.com/frgeek-official/fr-online-product-studio/internal/tone"
)

// Item statuses in a batch report.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFailed   = "failed"
)

// ReportItem summarizes one file of a batch run.
type ReportItem struct {
	File   string `json:"file"`
	Output string `json:"output,omitempty"`
	Status string `json:"status"`

	// Failed items carry the error and the stage that raised it.
	Stage string `json:"stage,omitempty"`
	Error string `json:"error,omitempty"`

	// Completed items carry what was applied.
	Parameters     *tone.Parameters  `json:"parameters,omitempty"`
	Source         string            `json:"parameter_source,omitempty"`
	Placement      *center.Placement `json:"placement,omitempty"`
	DegradedReason string            `json:"degraded_reason,omitempty"`

	DurationMS int64 `json:"duration_ms"`
}

// Report is the JSON batch summary written next to the finished images.
// Add is safe to call from concurrent workers.
type Report struct {
	mu sync.Mutex

	PipelineVersion string    `json:"pipeline_version"`
	ModelVersion    string    `json:"model_version,omitempty"`
	Started         time.Time `json:"started"`
	Finished        time.Time `json:"finished"`

	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Degraded  int `json:"degraded"`
	Failed    int `json:"failed"`

	Items []ReportItem `json:"items"`
}

// NewReport starts a batch report.
func NewReport(pipelineVersion, modelVersion string) *Report {
	return &Report{
		PipelineVersion: pipelineVersion,
		ModelVersion:    modelVersion,
		Started:         time.Now().UTC(),
		Items:           make([]ReportItem, 0),
	}
}

// ItemFor builds the report entry for one finished run.
func ItemFor(file, output string, res *Result) ReportItem {
	item := ReportItem{
		File:       file,
		Output:     output,
		Status:     StatusOK,
		Parameters: &res.Parameters,
		Source:     res.Source.String(),
		Placement:  &res.Placement,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Degraded {
		item.Status = StatusDegraded
		item.DegradedReason = res.DegradedReason
	}
	return item
}

// FailedItem builds the report entry for a run that aborted.
func FailedItem(file string, took time.Duration, err error) ReportItem {
	item := ReportItem{
		File:       file,
		Status:     StatusFailed,
		Error:      err.Error(),
		DurationMS: took.Milliseconds(),
	}
	var stage *StageError
	if errors.As(err, &stage) {
		item.Stage = stage.Stage
	}
	return item
}

// Add appends an item and updates the counters.
func (r *Report) Add(item ReportItem) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Items = append(r.Items, item)
	r.Total++
	switch item.Status {
	case StatusOK:
		r.Succeeded++
	case StatusDegraded:
		r.Succeeded++
		r.Degraded++
	case StatusFailed:
		r.Failed++
	}
}

// Counts returns the running totals.
func (r *Report) Counts() (total, succeeded, degraded, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Total, r.Succeeded, r.Degraded, r.Failed
}

// Save finalizes the report and writes it as indented JSON.
func (r *Report) Save(path string) error {
	r.mu.Lock()
	r.Finished = time.Now().UTC()
	data, err := json.MarshalIndent(r, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// LoadReport reads a previously saved batch report.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}

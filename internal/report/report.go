// Package report turns run results into the conversion_report.json file and
// the tables printed at the end of a run.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mrsinham/dicombatch/internal/batch"
)

// FileName is the report written into the output root.
const FileName = "conversion_report.json"

// Status of one outcome.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Entry is one outcome in the report.
type Entry struct {
	RTStruct   string `json:"rtstruct"`
	SeriesDir  string `json:"series_dir,omitempty"`
	OutputDir  string `json:"output_dir,omitempty"`
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Report describes a whole conversion run.
type Report struct {
	RunID    string        `json:"run_id,omitempty"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
	Summary  batch.Summary `json:"summary"`
	Entries  []Entry       `json:"outcomes"`
}

// New builds a report from the driver's outcomes, keeping their order.
func New(runID string, started, finished time.Time, outcomes []batch.Outcome) *Report {
	r := &Report{
		RunID:    runID,
		Started:  started.UTC(),
		Finished: finished.UTC(),
		Summary:  batch.Summarize(outcomes),
		Entries:  make([]Entry, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		status := StatusFailed
		switch {
		case o.Success:
			status = StatusSuccess
		case o.Skipped:
			status = StatusSkipped
		}
		r.Entries = append(r.Entries, Entry{
			RTStruct:   o.Job.RTStructPath,
			SeriesDir:  o.Job.SeriesDir,
			OutputDir:  o.Job.OutputDir,
			Status:     status,
			Detail:     o.Detail,
			DurationMS: o.Duration.Milliseconds(),
		})
	}
	return r
}

// Failures returns the failed entries.
func (r *Report) Failures() []Entry {
	var failed []Entry
	for _, e := range r.Entries {
		if e.Status == StatusFailed {
			failed = append(failed, e)
		}
	}
	return failed
}

// Elapsed is the wall-clock duration of the run.
func (r *Report) Elapsed() time.Duration {
	return r.Finished.Sub(r.Started)
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Read loads a report written by WriteJSON.
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &r, nil
}

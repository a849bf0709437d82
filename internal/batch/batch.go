// Package batch runs conversion jobs over a bounded worker pool. A failing
// job is recorded and never stops its siblings.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/mrsinham/dicombatch/internal/converter"
	"github.com/mrsinham/dicombatch/internal/dicom"
	"github.com/mrsinham/dicombatch/internal/errlog"
	"github.com/mrsinham/dicombatch/internal/logging"
	"github.com/mrsinham/dicombatch/internal/pool"
)

// Job is one structure set to convert.
type Job struct {
	RTStructPath string
	SeriesDir    string
	OutputDir    string
	Options      converter.Options
	// PlanErr is set when pairing or structure selection failed. The job is
	// then recorded as failed without calling the converter.
	PlanErr error
	Record  *dicom.Record
}

// Outcome is the result of one Job.
type Outcome struct {
	Job      Job
	Success  bool
	Skipped  bool
	Err      error
	Detail   string
	Trace    string
	Duration time.Duration
}

// Failed reports whether the job ran and failed.
func (o Outcome) Failed() bool {
	return !o.Success && !o.Skipped
}

// Driver dispatches jobs to a Converter.
type Driver struct {
	Workers   int
	Converter converter.Converter
	ErrorLog  *errlog.Log
	// Timeout bounds a single conversion. Zero means no limit.
	Timeout time.Duration
	// SkipExisting skips jobs whose output directory already holds files.
	SkipExisting bool
	Progress     pool.ProgressCallback
	Logger       *slog.Logger
}

// Run converts every job and returns the outcomes in job order once all
// jobs have finished. Jobs not started because ctx was cancelled come back
// failed with ctx's error and are not written to the error log.
func (d *Driver) Run(ctx context.Context, jobs []Job) []Outcome {
	log := d.Logger
	if log == nil {
		log = logging.Discard()
	}

	outcomes, dispatched, err := pool.Map(ctx, jobs, pool.Options{
		Workers:          d.Workers,
		ProgressCallback: d.Progress,
	}, func(ctx context.Context, job Job) Outcome {
		return d.runJob(ctx, job, log)
	})

	if err != nil {
		for i, ran := range dispatched {
			if ran {
				continue
			}
			outcomes[i] = Outcome{
				Job:    jobs[i],
				Err:    err,
				Detail: fmt.Sprintf("not started: %v", err),
			}
		}
		log.Warn("batch interrupted", "error", err)
	}
	return outcomes
}

func (d *Driver) runJob(ctx context.Context, job Job, log *slog.Logger) (out Outcome) {
	start := time.Now()
	out.Job = job
	defer func() {
		if r := recover(); r != nil {
			out = d.fail(job, fmt.Errorf("converter panic: %v", r), string(debug.Stack()), log)
		}
		out.Duration = time.Since(start)
	}()

	if job.PlanErr != nil {
		return d.fail(job, job.PlanErr, "", log)
	}

	if err := os.MkdirAll(job.OutputDir, 0755); err != nil {
		return d.fail(job, fmt.Errorf("create output directory: %w", err), "", log)
	}

	if d.SkipExisting {
		nonEmpty, err := hasEntries(job.OutputDir)
		if err != nil {
			return d.fail(job, fmt.Errorf("inspect output directory: %w", err), "", log)
		}
		if nonEmpty {
			log.Debug("output exists, skipping", "rtstruct", job.RTStructPath, "output", job.OutputDir)
			out.Skipped = true
			out.Detail = "output directory already populated"
			return out
		}
	}

	jobCtx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	log.Debug("converting", "rtstruct", job.RTStructPath, "series", job.SeriesDir, "output", job.OutputDir)
	if err := d.Converter.Convert(jobCtx, job.RTStructPath, job.SeriesDir, job.OutputDir, job.Options); err != nil {
		return d.fail(job, err, traceOf(err), log)
	}

	out.Success = true
	return out
}

func (d *Driver) fail(job Job, err error, trace string, log *slog.Logger) Outcome {
	log.Warn("conversion failed", "rtstruct", job.RTStructPath, "error", err)
	if logErr := d.ErrorLog.Append(errlog.Entry{
		Path:    job.RTStructPath,
		Message: err.Error(),
		Trace:   trace,
	}); logErr != nil {
		log.Error("failed to write error log", "path", d.ErrorLog.Path(), "error", logErr)
	}
	return Outcome{
		Job:    job,
		Err:    err,
		Detail: err.Error(),
		Trace:  trace,
	}
}

// traceOf returns the diagnostic trace carried by err, if any.
func traceOf(err error) string {
	var tracer interface{ Trace() string }
	if errors.As(err, &tracer) {
		return tracer.Trace()
	}
	return ""
}

func hasEntries(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	names, err := f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// Summary counts outcomes.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Summarize counts outcomes by result.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch {
		case o.Success:
			s.Succeeded++
		case o.Skipped:
			s.Skipped++
		default:
			s.Failed++
		}
	}
	return s
}

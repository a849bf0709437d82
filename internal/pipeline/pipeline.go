// Package pipeline runs a complete conversion: load or build the structure
// set inventory, pair every structure set with its image series, convert
// them on a worker pool and write the run report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mrsinham/dicombatch/internal/batch"
	"github.com/mrsinham/dicombatch/internal/checkpoint"
	"github.com/mrsinham/dicombatch/internal/config"
	"github.com/mrsinham/dicombatch/internal/converter"
	"github.com/mrsinham/dicombatch/internal/dicom"
	"github.com/mrsinham/dicombatch/internal/dicom/modalities"
	"github.com/mrsinham/dicombatch/internal/discovery"
	"github.com/mrsinham/dicombatch/internal/errlog"
	"github.com/mrsinham/dicombatch/internal/logging"
	"github.com/mrsinham/dicombatch/internal/pairing"
	"github.com/mrsinham/dicombatch/internal/pool"
	"github.com/mrsinham/dicombatch/internal/report"
	"github.com/mrsinham/dicombatch/internal/seriesindex"
)

// ErrNoStructures is recorded for a structure set none of whose ROIs match
// the structure patterns.
var ErrNoStructures = errors.New("no structure matches the structure patterns")

// Missing replaces empty identifiers in output paths.
const Missing = "NA"

// Options configures Run.
type Options struct {
	Config config.ConvertConfig
	// Reader defaults to dicom.FileReader.
	Reader dicom.Reader
	// Converter overrides the one named by Config.Converter.
	Converter converter.Converter
	RunID     string
	// ScanProgress follows classification, Progress follows conversion.
	ScanProgress pool.ProgressCallback
	Progress     pool.ProgressCallback
	Logger       *slog.Logger
}

// Result describes a finished run.
type Result struct {
	Report           *report.Report
	ReportPath       string
	ErrorLogPath     string
	CheckpointPath   string
	CheckpointLoaded bool
	StructureSets    int
}

// Run executes the conversion. Per-job failures are part of the report, not
// errors; an error means the run could not be set up or was cancelled before
// the batch started.
func Run(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	reader := opts.Reader
	if reader == nil {
		reader = dicom.FileReader{}
	}

	imageModalities, _ := cfg.Modalities()
	mode, _ := pairing.ParseMode(cfg.PairingMode)
	match, _ := pairing.ParseMatchPolicy(cfg.Match)
	collision, _ := seriesindex.ParsePolicy(cfg.Collision)
	filter, _ := discovery.ParseFilter(cfg.Filter)
	timeout, _ := cfg.TimeoutDuration()
	discoveryOpts := discovery.Options{Filter: filter, FollowSymlinks: cfg.FollowSymlinks}

	conv := opts.Converter
	if conv == nil {
		kind, _ := converter.ParseKind(cfg.Converter)
		var err error
		if conv, err = converter.New(kind, cfg.ConverterBinary); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(cfg.Output, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	classifier := dicom.NewClassifier(reader, dicom.ClassifierOptions{
		ApprovedOnly:    cfg.ApprovedOnly,
		ImageModalities: imageModalities,
	}, log)

	res := &Result{CheckpointPath: CheckpointPath(cfg, mode)}
	records, loaded, err := inventory(ctx, cfg, res.CheckpointPath, classifier, discoveryOpts, opts, log)
	if err != nil {
		return nil, err
	}
	res.CheckpointLoaded = loaded

	var idx *seriesindex.Index
	if mode == pairing.ModeIndex {
		if idx, err = seriesindex.Build(records, collision, imageModalities); err != nil {
			return nil, fmt.Errorf("build series index: %w", err)
		}
		log.Info("series index built", "frames_of_reference", idx.Len(), "collisions", len(idx.Collisions()))
	}
	resolver, err := pairing.NewResolver(pairing.Options{
		Mode:      mode,
		Match:     match,
		Levels:    cfg.Levels,
		Discovery: discoveryOpts,
	}, idx, classifier, log)
	if err != nil {
		return nil, fmt.Errorf("create pairing resolver: %w", err)
	}

	jobs, err := plan(ctx, cfg, structureSets(records), resolver, reader, log)
	if err != nil {
		return nil, err
	}
	res.StructureSets = len(jobs)

	errorLogPath := cfg.ErrorLog
	if errorLogPath == "" {
		errorLogPath = filepath.Join(cfg.Output, errlog.ConversionLogName)
	}
	errorLog, err := errlog.Open(errorLogPath)
	if err != nil {
		return nil, err
	}
	res.ErrorLogPath = errorLogPath

	log.Info("converting", "structure_sets", len(jobs), "workers", cfg.Workers, "mode", mode)
	started := time.Now()
	driver := &batch.Driver{
		Workers:      cfg.Workers,
		Converter:    conv,
		ErrorLog:     errorLog,
		Timeout:      timeout,
		SkipExisting: cfg.SkipExisting,
		Progress:     opts.Progress,
		Logger:       log,
	}
	outcomes := driver.Run(ctx, jobs)

	res.Report = report.New(opts.RunID, started, time.Now(), outcomes)
	res.ReportPath = filepath.Join(cfg.Output, report.FileName)
	if err := res.Report.WriteJSON(res.ReportPath); err != nil {
		return res, err
	}
	s := res.Report.Summary
	if err := ctx.Err(); err != nil {
		log.Warn("conversion interrupted", "succeeded", s.Succeeded, "skipped", s.Skipped, "failed", s.Failed)
		return res, err
	}
	log.Info("conversion finished", "succeeded", s.Succeeded, "skipped", s.Skipped, "failed", s.Failed)
	return res, nil
}

// CheckpointPath returns the configured checkpoint or the default one for mode.
func CheckpointPath(cfg config.ConvertConfig, mode pairing.Mode) string {
	if cfg.Checkpoint != "" {
		return cfg.Checkpoint
	}
	if mode == pairing.ModeProximity {
		return filepath.Join(cfg.Output, checkpoint.PathsFileName)
	}
	return filepath.Join(cfg.Output, checkpoint.IndexFileName)
}

// inventory returns the classified records, from the checkpoint when one
// exists and from a fresh scan otherwise. A fresh scan is checkpointed before
// any conversion starts.
func inventory(ctx context.Context, cfg config.ConvertConfig, path string, classifier *dicom.Classifier,
	discoveryOpts discovery.Options, opts Options, log *slog.Logger) ([]*dicom.Record, bool, error) {
	format, err := checkpoint.FormatFor(path)
	if err != nil {
		return nil, false, err
	}

	if checkpoint.Exists(path) {
		records, err := loadCheckpoint(ctx, path, format, classifier, cfg.Workers)
		if err != nil {
			return nil, false, err
		}
		log.Info("checkpoint loaded", "path", path, "records", len(records))
		return records, true, nil
	}
	if cfg.Source == "" {
		return nil, false, fmt.Errorf("checkpoint %s not found and no source directory given", path)
	}

	records, err := Scan(ctx, cfg.Source, classifier, ScanOptions{
		Discovery: discoveryOpts,
		Workers:   cfg.Workers,
		Progress:  opts.ScanProgress,
		Logger:    log,
	})
	if err != nil {
		return nil, false, err
	}

	switch format {
	case checkpoint.FormatJSON:
		var paths []string
		for _, rec := range structureSets(records) {
			paths = append(paths, rec.Path)
		}
		err = checkpoint.SavePaths(path, paths)
	default:
		err = checkpoint.SaveRecords(path, records)
	}
	if err != nil {
		return nil, false, err
	}
	log.Info("checkpoint written", "path", path, "records", len(records))
	return records, false, nil
}

func loadCheckpoint(ctx context.Context, path string, format checkpoint.Format, classifier *dicom.Classifier, workers int) ([]*dicom.Record, error) {
	if format == checkpoint.FormatCSV {
		all, err := checkpoint.LoadRecords(path)
		if err != nil {
			return nil, err
		}
		var records []*dicom.Record
		for _, rec := range all {
			if classifier.Accept(rec) {
				records = append(records, rec)
			}
		}
		return records, nil
	}

	paths, err := checkpoint.LoadPaths(path)
	if err != nil {
		return nil, err
	}
	classified, _, err := pool.Map(ctx, paths, pool.Options{Workers: workers}, func(_ context.Context, p string) *dicom.Record {
		rec, ok := classifier.Classify(p)
		if !ok {
			return nil
		}
		return rec
	})
	if err != nil {
		return nil, err
	}
	var records []*dicom.Record
	for _, rec := range classified {
		if rec != nil && rec.Modality == modalities.RTSTRUCT {
			records = append(records, rec)
		}
	}
	return records, nil
}

func structureSets(records []*dicom.Record) []*dicom.Record {
	var out []*dicom.Record
	for _, rec := range records {
		if rec.Modality == modalities.RTSTRUCT {
			out = append(out, rec)
		}
	}
	return out
}

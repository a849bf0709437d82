package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mrsinham/dicombatch/internal/batch"
	"github.com/mrsinham/dicombatch/internal/config"
	"github.com/mrsinham/dicombatch/internal/dicom"
	"github.com/mrsinham/dicombatch/internal/pairing"
	"github.com/mrsinham/dicombatch/internal/pool"
)

// plan builds one job per structure set. Pairing and structure selection
// failures are carried in Job.PlanErr so the driver records them.
func plan(ctx context.Context, cfg config.ConvertConfig, rtstructs []*dicom.Record, resolver *pairing.Resolver,
	reader dicom.Reader, log *slog.Logger) ([]batch.Job, error) {
	base := cfg.ConverterOptions()

	jobs, _, err := pool.Map(ctx, rtstructs, pool.Options{Workers: cfg.Workers}, func(ctx context.Context, rec *dicom.Record) batch.Job {
		job := batch.Job{
			RTStructPath: rec.Path,
			OutputDir:    OutputDir(cfg.Output, rec),
			Options:      base,
			Record:       rec,
		}

		seriesDir, err := resolver.Resolve(ctx, rec)
		if err != nil {
			job.PlanErr = fmt.Errorf("pair structure set: %w", err)
			return job
		}
		job.SeriesDir = seriesDir

		if len(base.Structures) > 0 {
			names, err := roiNames(rec, reader)
			if err != nil {
				job.PlanErr = fmt.Errorf("read structure names: %w", err)
				return job
			}
			selected := base.ResolveStructures(names)
			if len(selected) == 0 {
				job.PlanErr = fmt.Errorf("%w (%s)", ErrNoStructures, describeNames(names))
				return job
			}
			job.Options.Structures = selected
		}
		return job
	})
	if err != nil {
		return nil, fmt.Errorf("plan conversions: %w", err)
	}

	disambiguate(jobs, log)
	return jobs, nil
}

// OutputDir is <output>/<PatientID>/<SeriesInstanceUID> of the structure set.
func OutputDir(output string, rec *dicom.Record) string {
	return filepath.Join(output, component(rec.PatientID), component(rec.SeriesInstanceUID))
}

// roiNames returns the ROI names of rec, reading the file when the record
// came from a checkpoint that does not store them.
func roiNames(rec *dicom.Record, reader dicom.Reader) ([]string, error) {
	if len(rec.ROINames) > 0 {
		return rec.ROINames, nil
	}
	h, err := reader.Read(rec.Path, dicom.HeaderOptions)
	if err != nil {
		return nil, err
	}
	return dicom.NewRecord(rec.Path, h).ROINames, nil
}

// disambiguate suffixes output directories shared by several jobs, which
// happens when identifiers are missing. A suffixed directory never lands on
// one another job uses.
func disambiguate(jobs []batch.Job, log *slog.Logger) {
	taken := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		taken[job.OutputDir] = true
	}
	claimed := make(map[string]bool, len(jobs))
	for i := range jobs {
		dir := jobs[i].OutputDir
		if !claimed[dir] {
			claimed[dir] = true
			continue
		}
		n := 2
		for taken[dir+"_"+strconv.Itoa(n)] {
			n++
		}
		suffixed := dir + "_" + strconv.Itoa(n)
		taken[suffixed], claimed[suffixed] = true, true
		jobs[i].OutputDir = suffixed
		log.Warn("output directory shared, suffixing", "rtstruct", jobs[i].RTStructPath, "output", suffixed)
	}
}

func component(value string) string {
	value = strings.TrimSpace(value)
	switch value {
	case "":
		return Missing
	case ".", "..":
		return strings.Repeat("_", len(value))
	}
	return strings.NewReplacer("/", "_", `\`, "_").Replace(value)
}

func describeNames(names []string) string {
	if len(names) == 0 {
		return "structure set has no ROIs"
	}
	return "ROIs: " + strings.Join(names, ", ")
}

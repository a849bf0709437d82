package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync/atomic"

	"github.com/mrsinham/dicombatch/internal/dicom"
	"github.com/mrsinham/dicombatch/internal/discovery"
	"github.com/mrsinham/dicombatch/internal/logging"
	"github.com/mrsinham/dicombatch/internal/pool"
)

// ScanOptions configures Scan.
type ScanOptions struct {
	Discovery discovery.Options
	Workers   int
	// Progress receives the number of files examined so far. The total is
	// unknown while the walk is running and is reported as -1.
	Progress pool.ProgressCallback
	Logger   *slog.Logger
}

// Scan walks root and classifies every candidate file on a worker pool.
// Records come back sorted by path. Unreadable directories are logged and
// skipped; only a missing or non-directory root is an error.
func Scan(ctx context.Context, root string, classifier *dicom.Classifier, opts ScanOptions) ([]*dicom.Record, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("open source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", root)
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	var examined atomic.Int64
	pathc, errc := discovery.Walk(ctx, root, opts.Discovery)
	recc := pool.Stream(ctx, pathc, opts.Workers, func(_ context.Context, path string) (*dicom.Record, bool) {
		rec, ok := classifier.Classify(path)
		if n := examined.Add(1); opts.Progress != nil {
			opts.Progress(int(n), -1)
		}
		return rec, ok
	})

	var records []*dicom.Record
	for rec := range recc {
		records = append(records, rec)
	}
	for err := range errc {
		log.Warn("directory skipped during scan", "error", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	log.Info("scan complete", "source", root, "examined", examined.Load(), "classified", len(records))
	return records, nil
}

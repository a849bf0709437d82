// Package sorter copies or hard-links DICOM files into a folder hierarchy
// derived from their header tags. Existing destinations are never
// overwritten, so re-running a sort is safe.
package sorter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mrsinham/dicombatch/internal/dicom"
	"github.com/mrsinham/dicombatch/internal/discovery"
	"github.com/mrsinham/dicombatch/internal/errlog"
	"github.com/mrsinham/dicombatch/internal/logging"
	"github.com/mrsinham/dicombatch/internal/pool"
)

// Options configures a Sorter.
type Options struct {
	Layout    *Layout // default DefaultLayout
	Link      bool    // hard-link instead of copying
	Workers   int
	Discovery discovery.Options
	Reader    dicom.Reader
	ErrorLog  *errlog.Log
	// Progress receives -1 as total since discovery is lazy.
	Progress pool.ProgressCallback
	Logger   *slog.Logger
}

// Stats counts what a run did.
type Stats struct {
	Linked  int
	Copied  int
	Skipped int
	Failed  int
	Bytes   int64
}

// Total returns the number of files handled.
func (s Stats) Total() int {
	return s.Linked + s.Copied + s.Skipped + s.Failed
}

func (s Stats) String() string {
	return fmt.Sprintf("%d linked, %d copied, %d skipped, %d failed (%s)",
		s.Linked, s.Copied, s.Skipped, s.Failed, humanize.Bytes(uint64(s.Bytes)))
}

func (s *Stats) add(r Result) {
	switch r.Action {
	case ActionLinked:
		s.Linked++
	case ActionCopied:
		s.Copied++
	case ActionSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
	s.Bytes += r.Bytes
}

// Result describes one sorted file.
type Result struct {
	Source      string
	Destination string
	Action      Action
	Bytes       int64
	Err         error
}

// Sorter sorts files into a destination tree.
type Sorter struct {
	opts Options
	log  *slog.Logger
}

// New returns a Sorter.
func New(opts Options) *Sorter {
	if opts.Layout == nil {
		opts.Layout = MustParseLayout(DefaultLayout)
	}
	if opts.Reader == nil {
		opts.Reader = dicom.FileReader{}
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Sorter{opts: opts, log: log}
}

// Destination returns where src goes under dstRoot.
func (s *Sorter) Destination(src, dstRoot string) (string, error) {
	h, err := s.opts.Reader.Read(src, dicom.HeaderOptions)
	if err != nil {
		return "", fmt.Errorf("read header: %w", err)
	}
	return filepath.Join(dstRoot, filepath.FromSlash(s.opts.Layout.Render(h))), nil
}

// SortFile places one file. Failures are written to the error log.
func (s *Sorter) SortFile(src, dstRoot string) Result {
	r := Result{Source: src}
	dst, err := s.Destination(src, dstRoot)
	if err == nil {
		r.Destination = dst
		r.Action, r.Bytes, err = materialize(src, dst, s.opts.Link, s.log)
	}
	if err != nil {
		r.Action, r.Err = ActionFailed, err
		s.log.Warn("sort failed", "source", src, "error", err)
		if logErr := s.opts.ErrorLog.Append(errlog.Entry{Path: src, Message: err.Error()}); logErr != nil {
			s.log.Error("failed to write error log", "path", s.opts.ErrorLog.Path(), "error", logErr)
		}
		return r
	}
	s.log.Debug("sorted", "source", src, "destination", dst, "action", r.Action)
	return r
}

// Run sorts every file discovered under srcRoot into dstRoot.
func (s *Sorter) Run(ctx context.Context, srcRoot, dstRoot string) (Stats, error) {
	src, err := filepath.Abs(srcRoot)
	if err != nil {
		return Stats{}, fmt.Errorf("resolve source: %w", err)
	}
	dst, err := filepath.Abs(dstRoot)
	if err != nil {
		return Stats{}, fmt.Errorf("resolve destination: %w", err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return Stats{}, fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return Stats{}, fmt.Errorf("source %s is not a directory", src)
	}
	if within(dst, src) {
		return Stats{}, fmt.Errorf("destination %s must not be inside source %s", dst, src)
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return Stats{}, fmt.Errorf("create destination: %w", err)
	}

	pathc, errc := discovery.Walk(ctx, src, s.opts.Discovery)
	results := pool.Stream(ctx, pathc, s.opts.Workers, func(_ context.Context, path string) (Result, bool) {
		return s.SortFile(path, dst), true
	})

	var stats Stats
	for r := range results {
		stats.add(r)
		if s.opts.Progress != nil {
			s.opts.Progress(stats.Total(), -1)
		}
	}
	for err := range errc {
		s.log.Warn("discovery error", "error", err)
	}

	s.log.Info("sort finished", "source", src, "destination", dst,
		"linked", stats.Linked, "copied", stats.Copied, "skipped", stats.Skipped,
		"failed", stats.Failed, "bytes", humanize.Bytes(uint64(stats.Bytes)))
	return stats, ctx.Err()
}

// within reports whether path equals root or lies below it.
func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Package pairing finds the image series directory a structure set was
// contoured on.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mrsinham/dicombatch/internal/dicom"
	"github.com/mrsinham/dicombatch/internal/dicom/modalities"
	"github.com/mrsinham/dicombatch/internal/discovery"
	"github.com/mrsinham/dicombatch/internal/logging"
	"github.com/mrsinham/dicombatch/internal/seriesindex"
)

// ErrNotFound is returned when no image series matches a structure set.
var ErrNotFound = errors.New("CT not found")

// Mode selects how image series are located.
type Mode string

const (
	// ModeIndex looks referenced UIDs up in a prebuilt series index.
	ModeIndex Mode = "index"
	// ModeProximity searches the tree around the structure set.
	ModeProximity Mode = "proximity"
)

// AllModes lists the supported pairing modes.
var AllModes = []Mode{ModeIndex, ModeProximity}

// MatchPolicy selects what happens when no UID matches.
type MatchPolicy string

const (
	// MatchStrict fails with ErrNotFound.
	MatchStrict MatchPolicy = "strict"
	// MatchBestEffort falls back to a nearby image series and logs a warning.
	MatchBestEffort MatchPolicy = "best-effort"
)

// AllMatchPolicies lists the supported match policies.
var AllMatchPolicies = []MatchPolicy{MatchStrict, MatchBestEffort}

// ParseMode validates a pairing mode name.
func ParseMode(s string) (Mode, error) {
	for _, m := range AllModes {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown pairing mode %q, valid options: %v", s, AllModes)
}

// ParseMatchPolicy validates a match policy name.
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	for _, p := range AllMatchPolicies {
		if strings.EqualFold(s, string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown match policy %q, valid options: %v", s, AllMatchPolicies)
}

// DefaultLevels is how far above the structure set file proximity mode
// starts searching: two levels reaches the parent of its directory.
const DefaultLevels = 2

// Options configures a Resolver.
type Options struct {
	Mode  Mode
	Match MatchPolicy
	// Levels is the number of trailing path components removed from the
	// structure set path to get the proximity search root.
	Levels    int
	Discovery discovery.Options
}

// Resolver maps structure set records to image series directories.
type Resolver struct {
	opts       Options
	index      *seriesindex.Index
	classifier *dicom.Classifier
	log        *slog.Logger

	mu    sync.Mutex
	cache map[string][]candidate
}

type candidate struct {
	dir                 string
	frameOfReferenceUID string
}

// NewResolver returns a Resolver. Index mode needs idx; proximity mode
// needs classifier.
func NewResolver(opts Options, idx *seriesindex.Index, classifier *dicom.Classifier, log *slog.Logger) (*Resolver, error) {
	if opts.Mode == "" {
		opts.Mode = ModeIndex
	}
	if opts.Match == "" {
		opts.Match = MatchStrict
	}
	if opts.Levels == 0 {
		opts.Levels = DefaultLevels
	}
	if opts.Levels < 1 {
		return nil, fmt.Errorf("levels must be >= 1, got %d", opts.Levels)
	}
	switch opts.Mode {
	case ModeIndex:
		if idx == nil {
			return nil, errors.New("index pairing needs a series index")
		}
	case ModeProximity:
		if classifier == nil {
			return nil, errors.New("proximity pairing needs a classifier")
		}
	default:
		return nil, fmt.Errorf("unknown pairing mode %q", opts.Mode)
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Resolver{
		opts:       opts,
		index:      idx,
		classifier: classifier,
		log:        log,
		cache:      map[string][]candidate{},
	}, nil
}

// Mode returns the resolver's pairing mode.
func (r *Resolver) Mode() Mode {
	return r.opts.Mode
}

// Resolve returns the image series directory for a structure set record.
// Referenced UIDs are tried in order; the first one that resolves wins.
func (r *Resolver) Resolve(ctx context.Context, rec *dicom.Record) (string, error) {
	if rec == nil || rec.Modality != modalities.RTSTRUCT {
		return "", fmt.Errorf("%w: not a structure set", ErrNotFound)
	}
	if r.opts.Mode == ModeProximity {
		return r.resolveProximity(ctx, rec)
	}
	return r.resolveIndex(rec)
}

func (r *Resolver) resolveIndex(rec *dicom.Record) (string, error) {
	for _, uid := range rec.ReferencedFrameOfReferenceUIDs {
		if dir, ok := r.index.Lookup(uid); ok {
			if candidates := r.index.Candidates(uid); len(candidates) > 1 {
				r.log.Warn("frame of reference shared by several series, using smallest path",
					"rtstruct", rec.Path, "frame_of_reference_uid", uid, "chosen", dir, "candidates", len(candidates))
			}
			return dir, nil
		}
	}

	if r.opts.Match == MatchBestEffort {
		if dirs := r.index.PatientDirs(rec.PatientID); rec.PatientID != "" && len(dirs) > 0 {
			r.log.Warn("no frame of reference match, using patient image series",
				"rtstruct", rec.Path, "patient_id", rec.PatientID, "chosen", dirs[0])
			return dirs[0], nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, describeRefs(rec, "series index"))
}

func (r *Resolver) resolveProximity(ctx context.Context, rec *dicom.Record) (string, error) {
	root := SearchRoot(rec.Path, r.opts.Levels)
	candidates, err := r.candidates(ctx, root)
	if err != nil {
		return "", err
	}

	for _, uid := range rec.ReferencedFrameOfReferenceUIDs {
		for _, c := range candidates {
			if c.frameOfReferenceUID == uid {
				return c.dir, nil
			}
		}
	}

	if r.opts.Match == MatchBestEffort && len(candidates) > 0 {
		r.log.Warn("no frame of reference match, using first image series found",
			"rtstruct", rec.Path, "search_root", root, "chosen", candidates[0].dir)
		return candidates[0].dir, nil
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, describeRefs(rec, root))
}

// candidates lists the image directories under root in walk order, each
// represented by its first classifiable image file.
func (r *Resolver) candidates(ctx context.Context, root string) ([]candidate, error) {
	r.mu.Lock()
	cached, ok := r.cache[root]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	seen := map[string]bool{}
	var found []candidate

	pathc, errc := discovery.Walk(ctx, root, r.opts.Discovery)
	for path := range pathc {
		dir := filepath.Dir(path)
		if seen[dir] {
			continue
		}
		rec, ok := r.classifier.Classify(path)
		if !ok || !modalities.Contains(r.classifier.ImageModalities(), rec.Modality) {
			continue
		}
		seen[dir] = true
		found = append(found, candidate{dir: dir, frameOfReferenceUID: rec.FrameOfReferenceUID})
	}
	for err := range errc {
		r.log.Warn("proximity search incomplete", "search_root", root, "error", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[root] = found
	r.mu.Unlock()
	return found, nil
}

// SearchRoot removes levels trailing components from path.
func SearchRoot(path string, levels int) string {
	root := filepath.Clean(path)
	for i := 0; i < levels; i++ {
		parent := filepath.Dir(root)
		if parent == root {
			break
		}
		root = parent
	}
	return root
}

func describeRefs(rec *dicom.Record, where string) string {
	if len(rec.ReferencedFrameOfReferenceUIDs) == 0 {
		return fmt.Sprintf("structure set references no frame of reference (searched %s)", where)
	}
	return fmt.Sprintf("no image series with frame of reference %s (searched %s)",
		strings.Join(rec.ReferencedFrameOfReferenceUIDs, ", "), where)
}

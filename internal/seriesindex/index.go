// Package seriesindex maps identifying keys of image series to the
// directories that hold them.
package seriesindex

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mrsinham/dicombatch/internal/dicom"
	"github.com/mrsinham/dicombatch/internal/dicom/modalities"
)

// ErrAmbiguous is returned under PolicyFail when several directories share
// a FrameOfReferenceUID.
var ErrAmbiguous = errors.New("ambiguous frame of reference")

// Policy decides what happens when a key maps to several directories.
type Policy string

const (
	// PolicySmallest picks the lexicographically smallest directory.
	PolicySmallest Policy = "smallest"
	// PolicyFail refuses to build the index.
	PolicyFail Policy = "fail"
)

// AllPolicies lists the supported collision policies.
var AllPolicies = []Policy{PolicySmallest, PolicyFail}

// ParsePolicy validates a collision policy name.
func ParsePolicy(s string) (Policy, error) {
	for _, p := range AllPolicies {
		if strings.EqualFold(s, string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown collision policy %q, valid options: %v", s, AllPolicies)
}

// Collision describes a FrameOfReferenceUID claimed by several directories.
type Collision struct {
	FrameOfReferenceUID string
	Candidates          []string // sorted
	Chosen              string
}

// Index resolves FrameOfReferenceUID, SeriesInstanceUID and PatientID to
// image series directories. It is read-only once built.
type Index struct {
	frames   map[string][]string
	series   map[string][]string
	patients map[string][]string

	collisions []Collision
}

// Build indexes the parent directory of every image record whose modality
// is listed in imageModalities (CT and MR when empty).
func Build(records []*dicom.Record, policy Policy, imageModalities []modalities.Modality) (*Index, error) {
	if len(imageModalities) == 0 {
		imageModalities = []modalities.Modality{modalities.CT, modalities.MR}
	}

	frames := map[string]map[string]bool{}
	series := map[string]map[string]bool{}
	patients := map[string]map[string]bool{}

	for _, rec := range records {
		if rec == nil || !modalities.Contains(imageModalities, rec.Modality) {
			continue
		}
		dir := rec.Dir()
		addKey(frames, rec.FrameOfReferenceUID, dir)
		addKey(series, rec.SeriesInstanceUID, dir)
		addKey(patients, rec.PatientID, dir)
	}

	idx := &Index{
		frames:   sortedSets(frames),
		series:   sortedSets(series),
		patients: sortedSets(patients),
	}

	uids := make([]string, 0, len(idx.frames))
	for uid := range idx.frames {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	for _, uid := range uids {
		candidates := idx.frames[uid]
		if len(candidates) < 2 {
			continue
		}
		if policy == PolicyFail {
			return nil, fmt.Errorf("%w: %s is shared by %s", ErrAmbiguous, uid, strings.Join(candidates, ", "))
		}
		idx.collisions = append(idx.collisions, Collision{
			FrameOfReferenceUID: uid,
			Candidates:          candidates,
			Chosen:              candidates[0],
		})
	}

	return idx, nil
}

// Lookup returns the directory registered for a FrameOfReferenceUID.
func (idx *Index) Lookup(frameOfReferenceUID string) (string, bool) {
	return first(idx.frames[frameOfReferenceUID])
}

// LookupSeries returns the directory of a SeriesInstanceUID.
func (idx *Index) LookupSeries(seriesInstanceUID string) (string, bool) {
	return first(idx.series[seriesInstanceUID])
}

// PatientDirs returns every image directory of a patient, sorted.
func (idx *Index) PatientDirs(patientID string) []string {
	return idx.patients[patientID]
}

// Candidates returns every directory sharing a FrameOfReferenceUID, sorted.
func (idx *Index) Candidates(frameOfReferenceUID string) []string {
	return idx.frames[frameOfReferenceUID]
}

// Collisions returns the ambiguous FrameOfReferenceUIDs resolved by PolicySmallest.
func (idx *Index) Collisions() []Collision {
	return idx.collisions
}

// Len returns the number of indexed FrameOfReferenceUIDs.
func (idx *Index) Len() int {
	return len(idx.frames)
}

func addKey(m map[string]map[string]bool, key, dir string) {
	if key == "" {
		return
	}
	if m[key] == nil {
		m[key] = map[string]bool{}
	}
	m[key][dir] = true
}

func sortedSets(m map[string]map[string]bool) map[string][]string {
	out := make(map[string][]string, len(m))
	for key, set := range m {
		dirs := make([]string, 0, len(set))
		for dir := range set {
			dirs = append(dirs, dir)
		}
		sort.Strings(dirs)
		out[key] = dirs
	}
	return out
}

func first(dirs []string) (string, bool) {
	if len(dirs) == 0 {
		return "", false
	}
	return dirs[0], true
}

package dicom

import (
	"path/filepath"
	"strings"

	"github.com/mrsinham/dicombatch/internal/dicom/modalities"
)

// ApprovalApproved is the ApprovalStatus value of a reviewed structure set.
const ApprovalApproved = "APPROVED"

// Record is the classified view of one DICOM file. Fields that the file did
// not carry are empty.
type Record struct {
	Path                string
	Modality            modalities.Modality
	PatientID           string
	PatientName         string
	SeriesInstanceUID   string
	FrameOfReferenceUID string // image series only

	// RTSTRUCT only
	ReferencedFrameOfReferenceUIDs []string
	ApprovalStatus                 string
	ROINames                       []string
}

// NewRecord builds a Record for path from its header.
func NewRecord(path string, h Header) *Record {
	rec := &Record{
		Path:              path,
		Modality:          modalities.Parse(h.First("Modality")),
		PatientID:         h.Get("PatientID", ""),
		PatientName:       h.Get("PatientName", ""),
		SeriesInstanceUID: h.Get("SeriesInstanceUID", ""),
	}

	if rec.Modality != modalities.RTSTRUCT {
		rec.FrameOfReferenceUID = h.Get("FrameOfReferenceUID", "")
		return rec
	}

	rec.ApprovalStatus = strings.ToUpper(h.Get("ApprovalStatus", ""))
	// ROI names and frame of reference references live in sequences.
	rec.ROINames = nonEmpty(h.All("ROIName"))
	// Per-ROI references first, then ReferencedFrameOfReferenceSequence,
	// then a top-level FrameOfReferenceUID some exporters add.
	refs := append([]string{}, h.All("ReferencedFrameOfReferenceUID")...)
	refs = append(refs, h.Nested("FrameOfReferenceUID")...)
	refs = append(refs, h.First("FrameOfReferenceUID"))
	rec.ReferencedFrameOfReferenceUIDs = uniqueNonEmpty(refs)
	return rec
}

// Dir returns the directory holding the file.
func (r *Record) Dir() string {
	return filepath.Dir(r.Path)
}

// IsApproved reports whether an RTSTRUCT carries ApprovalStatus APPROVED.
func (r *Record) IsApproved() bool {
	return r.ApprovalStatus == ApprovalApproved
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func uniqueNonEmpty(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range nonEmpty(values) {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

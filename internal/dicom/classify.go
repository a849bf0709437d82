package dicom

import (
	"log/slog"

	"github.com/mrsinham/dicombatch/internal/dicom/modalities"
	"github.com/mrsinham/dicombatch/internal/logging"
)

// ClassifierOptions selects which files the classifier keeps.
type ClassifierOptions struct {
	// ApprovedOnly drops structure sets whose ApprovalStatus is not APPROVED.
	ApprovedOnly bool
	// ImageModalities lists the modalities treated as image series. Empty means CT and MR.
	ImageModalities []modalities.Modality
}

// Classifier turns candidate files into Records.
type Classifier struct {
	reader Reader
	opts   ClassifierOptions
	log    *slog.Logger
}

// NewClassifier returns a Classifier reading headers through reader.
func NewClassifier(reader Reader, opts ClassifierOptions, log *slog.Logger) *Classifier {
	if reader == nil {
		reader = FileReader{}
	}
	if len(opts.ImageModalities) == 0 {
		opts.ImageModalities = []modalities.Modality{modalities.CT, modalities.MR}
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Classifier{reader: reader, opts: opts, log: log}
}

// ImageModalities returns the modalities this classifier treats as image series.
func (c *Classifier) ImageModalities() []modalities.Modality {
	return c.opts.ImageModalities
}

// Classify reads the header of path. ok is false when the file cannot be read
// or is not a structure set or an accepted image modality.
func (c *Classifier) Classify(path string) (rec *Record, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Debug("unclassifiable file", "path", path, "panic", r)
			rec, ok = nil, false
		}
	}()

	h, err := c.reader.Read(path, HeaderOptions)
	if err != nil {
		c.log.Debug("unclassifiable file", "path", path, "error", err)
		return nil, false
	}

	rec = NewRecord(path, h)
	if !c.Accept(rec) {
		return nil, false
	}
	return rec, true
}

// Accept applies the modality and approval filters to rec. It is also used
// for records loaded from a checkpoint.
func (c *Classifier) Accept(rec *Record) bool {
	if rec == nil {
		return false
	}
	switch {
	case rec.Modality == modalities.RTSTRUCT:
		if c.opts.ApprovedOnly && !rec.IsApproved() {
			c.log.Debug("skipping unapproved structure set", "path", rec.Path, "approval_status", rec.ApprovalStatus)
			return false
		}
		return true
	case modalities.Contains(c.opts.ImageModalities, rec.Modality):
		return true
	default:
		return false
	}
}

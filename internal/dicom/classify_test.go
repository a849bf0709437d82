package dicom

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mrsinham/dicombatch/internal/dicom/modalities"
	"github.com/mrsinham/dicombatch/internal/dicom/synth"
)

// fakeReader serves canned headers by path.
type fakeReader map[string]Header

func (f fakeReader) Read(path string, _ ReadOptions) (Header, error) {
	if path == "panic.dcm" {
		panic("boom")
	}
	h, ok := f[path]
	if !ok {
		return nil, ErrUnreadable
	}
	return h, nil
}

func TestClassifier_Classify(t *testing.T) {
	reader := fakeReader{
		"ct.dcm":         {"Modality": {"CT"}, "FrameOfReferenceUID": {"F1"}},
		"mr.dcm":         {"Modality": {"MR"}, "FrameOfReferenceUID": {"F2"}},
		"pt.dcm":         {"Modality": {"PT"}, "FrameOfReferenceUID": {"F3"}},
		"seg.dcm":        {"Modality": {"SEG"}},
		"approved.dcm":   {"Modality": {"RTSTRUCT"}, "ApprovalStatus": {"APPROVED"}},
		"unapproved.dcm": {"Modality": {"RTSTRUCT"}, "ApprovalStatus": {"UNAPPROVED"}},
		"nostatus.dcm":   {"Modality": {"RTSTRUCT"}},
	}

	tests := []struct {
		name string
		opts ClassifierOptions
		path string
		want bool
	}{
		{"CT accepted", ClassifierOptions{}, "ct.dcm", true},
		{"MR accepted", ClassifierOptions{}, "mr.dcm", true},
		{"PT rejected by default", ClassifierOptions{}, "pt.dcm", false},
		{"PT accepted when configured", ClassifierOptions{ImageModalities: []modalities.Modality{modalities.PT}}, "pt.dcm", true},
		{"irrelevant modality", ClassifierOptions{}, "seg.dcm", false},
		{"unreadable", ClassifierOptions{}, "missing.dcm", false},
		{"panicking reader", ClassifierOptions{}, "panic.dcm", false},
		{"unapproved kept without filter", ClassifierOptions{}, "unapproved.dcm", true},
		{"approved kept with filter", ClassifierOptions{ApprovedOnly: true}, "approved.dcm", true},
		{"unapproved dropped with filter", ClassifierOptions{ApprovedOnly: true}, "unapproved.dcm", false},
		{"missing status dropped with filter", ClassifierOptions{ApprovedOnly: true}, "nostatus.dcm", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(reader, tt.opts, nil)
			rec, ok := c.Classify(tt.path)
			if ok != tt.want {
				t.Fatalf("Classify(%s) ok = %v, want %v", tt.path, ok, tt.want)
			}
			if ok && rec.Path != tt.path {
				t.Errorf("Path = %q, want %q", rec.Path, tt.path)
			}
			if !ok && rec != nil {
				t.Error("rejected file should return a nil record")
			}
		})
	}
}

func TestClassifier_Accept(t *testing.T) {
	c := NewClassifier(fakeReader{}, ClassifierOptions{ApprovedOnly: true}, nil)

	if c.Accept(nil) {
		t.Error("Accept(nil) = true")
	}
	if !c.Accept(&Record{Modality: modalities.CT}) {
		t.Error("CT record should be accepted")
	}
	if c.Accept(&Record{Modality: modalities.RTSTRUCT, ApprovalStatus: "REJECTED"}) {
		t.Error("rejected structure set should not be accepted")
	}
	if got := c.ImageModalities(); !reflect.DeepEqual(got, []modalities.Modality{modalities.CT, modalities.MR}) {
		t.Errorf("ImageModalities() = %v", got)
	}
}

func TestClassifier_Deterministic(t *testing.T) {
	root := t.TempDir()
	series, err := synth.WriteSeries(synth.SeriesOptions{Dir: filepath.Join(root, "CT"), PatientID: "P1", Slices: 2})
	if err != nil {
		t.Fatalf("WriteSeries failed: %v", err)
	}
	rsPath := filepath.Join(root, "RTSTRUCT", "rs.dcm")
	if err := synth.WriteStructureSet(synth.StructureSetOptions{
		Path:                 rsPath,
		PatientID:            "P1",
		ApprovalStatus:       "APPROVED",
		FrameOfReferenceUIDs: []string{series.FrameOfReferenceUID},
		ROIs:                 []synth.ROI{{Name: "GTV", FrameOfReferenceUID: series.FrameOfReferenceUID}},
	}); err != nil {
		t.Fatalf("WriteStructureSet failed: %v", err)
	}

	c := NewClassifier(FileReader{}, ClassifierOptions{ApprovedOnly: true}, nil)
	for _, path := range append(series.Files, rsPath) {
		first, ok := c.Classify(path)
		if !ok {
			t.Fatalf("Classify(%s) rejected", path)
		}
		second, ok := c.Classify(path)
		if !ok {
			t.Fatalf("second Classify(%s) rejected", path)
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("Classify(%s) not deterministic: %+v vs %+v", path, first, second)
		}
	}

	rec, _ := c.Classify(rsPath)
	if !reflect.DeepEqual(rec.ReferencedFrameOfReferenceUIDs, []string{series.FrameOfReferenceUID}) {
		t.Errorf("ReferencedFrameOfReferenceUIDs = %v", rec.ReferencedFrameOfReferenceUIDs)
	}
	if !reflect.DeepEqual(rec.ROINames, []string{"GTV"}) {
		t.Errorf("ROINames = %v", rec.ROINames)
	}
}

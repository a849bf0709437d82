package dicom

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mrsinham/dicombatch/internal/dicom/synth"
	"github.com/suyashkumar/dicom"
)

func TestHeader_Accessors(t *testing.T) {
	h := Header{
		"PatientID": {"P1"},
		"ROIName":   {"GTV", "PTV"},
		"StudyDate": {"  "},
	}

	if got := h.First("ROIName"); got != "GTV" {
		t.Errorf("First(ROIName) = %q, want GTV", got)
	}
	if got := h.First("Missing"); got != "" {
		t.Errorf("First(Missing) = %q, want empty", got)
	}
	if got := h.Get("StudyDate", "NA"); got != "NA" {
		t.Errorf("Get(StudyDate) = %q, want NA for blank value", got)
	}
	if got := h.Get("PatientID", "NA"); got != "P1" {
		t.Errorf("Get(PatientID) = %q, want P1", got)
	}
	if got := h.All("ROIName"); !reflect.DeepEqual(got, []string{"GTV", "PTV"}) {
		t.Errorf("All(ROIName) = %v", got)
	}

	h[NestedKey("PatientID")] = []string{"OTHER"}
	if got := h.First("PatientID"); got != "P1" {
		t.Errorf("First(PatientID) = %q, nested value must not shadow P1", got)
	}
	if got := h.All("PatientID"); !reflect.DeepEqual(got, []string{"P1", "OTHER"}) {
		t.Errorf("All(PatientID) = %v, want top-level first", got)
	}
}

func TestFileReader_ImageSeries(t *testing.T) {
	series, err := synth.WriteSeries(synth.SeriesOptions{
		Dir:               filepath.Join(t.TempDir(), "CT"),
		PatientID:         "P1",
		StudyDate:         "20240102",
		SeriesDescription: "Thorax",
	})
	if err != nil {
		t.Fatalf("WriteSeries failed: %v", err)
	}

	h, err := FileReader{}.Read(series.Files[0], HeaderOptions)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	tests := map[string]string{
		"Modality":            "CT",
		"PatientID":           "P1",
		"StudyDate":           "20240102",
		"SeriesDescription":   "Thorax",
		"SeriesInstanceUID":   series.SeriesInstanceUID,
		"FrameOfReferenceUID": series.FrameOfReferenceUID,
		"InstanceNumber":      "1",
	}
	for name, want := range tests {
		if got := h.First(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	if _, ok := h["PixelData"]; ok {
		t.Error("PixelData should not be part of the header")
	}
}

func TestFileReader_NestedSeriesUID(t *testing.T) {
	series, err := synth.WriteSeries(synth.SeriesOptions{
		Dir:                      filepath.Join(t.TempDir(), "CT"),
		PatientID:                "P1",
		SeriesInstanceUID:        "1.1.1",
		RelatedSeriesInstanceUID: "9.9.9",
	})
	if err != nil {
		t.Fatalf("WriteSeries failed: %v", err)
	}

	h, err := FileReader{}.Read(series.Files[0], HeaderOptions)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if got := h.First("SeriesInstanceUID"); got != "1.1.1" {
		t.Errorf("First(SeriesInstanceUID) = %q, want the top-level 1.1.1", got)
	}
	if got := h.Nested("SeriesInstanceUID"); !reflect.DeepEqual(got, []string{"9.9.9"}) {
		t.Errorf("Nested(SeriesInstanceUID) = %v, want [9.9.9]", got)
	}
	if got := h.All("SeriesInstanceUID"); !reflect.DeepEqual(got, []string{"1.1.1", "9.9.9"}) {
		t.Errorf("All(SeriesInstanceUID) = %v", got)
	}
	if rec := NewRecord(series.Files[0], h); rec.SeriesInstanceUID != "1.1.1" {
		t.Errorf("Record.SeriesInstanceUID = %q, want 1.1.1", rec.SeriesInstanceUID)
	}
}

func TestFileReader_StructureSetSequences(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rs.dcm")
	err := synth.WriteStructureSet(synth.StructureSetOptions{
		Path:                 path,
		PatientID:            "P1",
		ApprovalStatus:       "APPROVED",
		FrameOfReferenceUIDs: []string{"1.2.3.9"},
		ROIs: []synth.ROI{
			{Name: "GTV", FrameOfReferenceUID: "1.2.3.1"},
			{Name: "PTV", FrameOfReferenceUID: "1.2.3.2"},
		},
	})
	if err != nil {
		t.Fatalf("WriteStructureSet failed: %v", err)
	}

	h, err := FileReader{}.Read(path, HeaderOptions)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if got := h.All("ROIName"); !reflect.DeepEqual(got, []string{"GTV", "PTV"}) {
		t.Errorf("ROIName = %v, want [GTV PTV]", got)
	}
	if got := h.All("ReferencedFrameOfReferenceUID"); !reflect.DeepEqual(got, []string{"1.2.3.1", "1.2.3.2"}) {
		t.Errorf("ReferencedFrameOfReferenceUID = %v", got)
	}
	if got := h.All("FrameOfReferenceUID"); !reflect.DeepEqual(got, []string{"1.2.3.9"}) {
		t.Errorf("FrameOfReferenceUID = %v", got)
	}
	if got := h.First("ApprovalStatus"); got != "APPROVED" {
		t.Errorf("ApprovalStatus = %q", got)
	}
}

func TestFileReader_DamagedFiles(t *testing.T) {
	files, err := synth.WriteDamaged(t.TempDir())
	if err != nil {
		t.Fatalf("WriteDamaged failed: %v", err)
	}

	for _, path := range files {
		name := filepath.Base(path)
		t.Run(name, func(t *testing.T) {
			h, err := FileReader{}.Read(path, HeaderOptions)
			if name == synth.NotDICOMFile {
				if !errors.Is(err, ErrUnreadable) {
					t.Errorf("Expected ErrUnreadable, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if got := h.First("PatientID"); got != "DAMAGED" {
				t.Errorf("PatientID = %q, want DAMAGED", got)
			}
			if got := h.First("Modality"); got != "CT" {
				t.Errorf("Modality = %q, want CT", got)
			}
			if name == synth.TruncatedFile {
				if _, err := dicom.ParseFile(path, nil); err == nil {
					t.Error("strict parse of the truncated file should fail")
				}
			}
		})
	}
}

func TestFileReader_Unreadable(t *testing.T) {
	dir := t.TempDir()
	notDicom := filepath.Join(dir, "notes.dcm")
	if err := os.WriteFile(notDicom, []byte("not a dicom file"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"text file", notDicom},
		{"directory", dir},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FileReader{}.Read(tt.path, HeaderOptions)
			if !errors.Is(err, ErrUnreadable) {
				t.Errorf("Expected ErrUnreadable, got %v", err)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		if _, err := (FileReader{}).Read(filepath.Join(dir, "missing.dcm"), HeaderOptions); err == nil {
			t.Error("Expected error for missing file")
		}
	})
}

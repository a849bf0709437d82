package synth

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mrsinham/dicombatch/internal/dicom/modalities"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func readString(t *testing.T, ds dicom.Dataset, tg tag.Tag) string {
	t.Helper()
	elem, err := ds.FindElementByTag(tg)
	if err != nil {
		t.Fatalf("tag %v missing: %v", tg, err)
	}
	values := dicom.MustGetStrings(elem.Value)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func TestWriteSeries(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "CT")
	series, err := WriteSeries(SeriesOptions{
		Dir:       dir,
		PatientID: "P1",
		Slices:    3,
	})
	if err != nil {
		t.Fatalf("WriteSeries failed: %v", err)
	}
	if len(series.Files) != 3 {
		t.Fatalf("Expected 3 files, got %d", len(series.Files))
	}

	ds, err := dicom.ParseFile(series.Files[0], nil, dicom.SkipPixelData())
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if got := readString(t, ds, tag.Modality); got != "CT" {
		t.Errorf("Modality = %q, want CT", got)
	}
	if got := readString(t, ds, tag.FrameOfReferenceUID); got != series.FrameOfReferenceUID {
		t.Errorf("FrameOfReferenceUID = %q, want %q", got, series.FrameOfReferenceUID)
	}
	if _, err := ds.FindElementByTag(tag.StudyDate); err == nil {
		t.Error("StudyDate should be omitted when empty")
	}
}

func TestWriteSeries_Deterministic(t *testing.T) {
	root := t.TempDir()
	a, err := WriteSeries(SeriesOptions{Dir: filepath.Join(root, "a"), Seed: "same", Modality: modalities.MR})
	if err != nil {
		t.Fatalf("WriteSeries failed: %v", err)
	}
	b, err := WriteSeries(SeriesOptions{Dir: filepath.Join(root, "b"), Seed: "same", Modality: modalities.MR})
	if err != nil {
		t.Fatalf("WriteSeries failed: %v", err)
	}
	if a.SeriesInstanceUID != b.SeriesInstanceUID || a.FrameOfReferenceUID != b.FrameOfReferenceUID {
		t.Error("same seed should produce the same UIDs")
	}
}

func TestWriteStructureSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "RTSTRUCT", "rs.dcm")
	err := WriteStructureSet(StructureSetOptions{
		Path:                 path,
		PatientID:            "P1",
		ApprovalStatus:       "APPROVED",
		FrameOfReferenceUIDs: []string{"1.2.3"},
		ROIs: []ROI{
			{Name: "GTV", FrameOfReferenceUID: "1.2.3"},
			{Name: "PTV", FrameOfReferenceUID: "1.2.4"},
		},
	})
	if err != nil {
		t.Fatalf("WriteStructureSet failed: %v", err)
	}

	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if got := readString(t, ds, tag.Modality); got != "RTSTRUCT" {
		t.Errorf("Modality = %q, want RTSTRUCT", got)
	}
}

func TestWriteDemoTree(t *testing.T) {
	root := t.TempDir()
	patients, err := WriteDemoTree(DemoOptions{Root: root, Patients: 3, Slices: 2, Orphans: 1, Unapproved: 1})
	if err != nil {
		t.Fatalf("WriteDemoTree failed: %v", err)
	}
	if len(patients) != 3 {
		t.Fatalf("Expected 3 patients, got %d", len(patients))
	}
	if patients[0].Approved || !patients[1].Approved {
		t.Error("only the first patient should be unapproved")
	}
	if !patients[2].Orphan || patients[1].Orphan {
		t.Error("only the last patient should be an orphan")
	}
	for _, p := range patients {
		if _, err := os.Stat(p.StructureSet); err != nil {
			t.Errorf("structure set missing for %s: %v", p.PatientID, err)
		}
		if len(p.Series.Files) != 2 {
			t.Errorf("Expected 2 slices for %s, got %d", p.PatientID, len(p.Series.Files))
		}
	}
}

func TestWriteDemoTree_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opts DemoOptions
	}{
		{"no patients", DemoOptions{Patients: 0}},
		{"too many orphans", DemoOptions{Patients: 1, Orphans: 2}},
		{"negative unapproved", DemoOptions{Patients: 1, Unapproved: -1}},
		{"structure set modality", DemoOptions{Patients: 1, Modality: modalities.RTSTRUCT}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Root = t.TempDir()
			if _, err := WriteDemoTree(tt.opts); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestWriteDamaged(t *testing.T) {
	root := t.TempDir()
	files, err := WriteDamaged(root)
	if err != nil {
		t.Fatalf("WriteDamaged failed: %v", err)
	}
	want := []string{TruncatedFile, OddLengthFile, NotDICOMFile}
	if len(files) != len(want) {
		t.Fatalf("Expected %d files, got %v", len(want), files)
	}
	for i, name := range want {
		if files[i] != filepath.Join(root, DamagedDirName, name) {
			t.Errorf("files[%d] = %s, want %s", i, files[i], name)
		}
	}

	entries, err := os.ReadDir(filepath.Join(root, DamagedDirName))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("damaged directory should hold only the 3 damaged files, got %d", len(entries))
	}

	data, err := os.ReadFile(files[1])
	if err != nil {
		t.Fatal(err)
	}
	i := findPixelData(data)
	if i < 0 {
		t.Fatal("PixelData element not found")
	}
	if vl := binary.LittleEndian.Uint32(data[i+8 : i+12]); vl%2 != 1 {
		t.Errorf("PixelData length %d should be odd", vl)
	}

	if _, err := dicom.ParseFile(files[0], nil); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("strict parse of the truncated file: err = %v, want unexpected EOF", err)
	}
}

func TestWriteDemoTree_Damaged(t *testing.T) {
	root := t.TempDir()
	if _, err := WriteDemoTree(DemoOptions{Root: root, Patients: 1, Damaged: true}); err != nil {
		t.Fatalf("WriteDemoTree failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, DamagedDirName, OddLengthFile)); err != nil {
		t.Errorf("damaged files missing: %v", err)
	}
}

func TestDemoPatientName(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		name := DemoPatientName(i)
		if name != DemoPatientName(i) {
			t.Fatalf("DemoPatientName(%d) is not deterministic", i)
		}
		if !strings.Contains(name, "^") {
			t.Errorf("DemoPatientName(%d) = %q, want FAMILY^Given", i, name)
		}
		if seen[name] {
			t.Errorf("DemoPatientName(%d) = %q repeats", i, name)
		}
		seen[name] = true
	}
}

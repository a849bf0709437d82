package modalities

import (
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func TestGetGenerator_MR(t *testing.T) {
	gen := GetGenerator(MR)
	if gen.Modality() != MR {
		t.Errorf("Expected MR modality, got %v", gen.Modality())
	}
	if gen.SOPClassUID() != "1.2.840.10008.5.1.4.1.1.4" {
		t.Errorf("Unexpected MR SOP Class UID: %s", gen.SOPClassUID())
	}
}

func TestGetGenerator_CT(t *testing.T) {
	gen := GetGenerator(CT)
	if gen.Modality() != CT {
		t.Errorf("Expected CT modality, got %v", gen.Modality())
	}
	if gen.SOPClassUID() != "1.2.840.10008.5.1.4.1.1.2" {
		t.Errorf("Unexpected CT SOP Class UID: %s", gen.SOPClassUID())
	}
}

func TestGetGenerator_Default(t *testing.T) {
	gen := GetGenerator(RTSTRUCT)
	if gen.Modality() != CT {
		t.Errorf("Non-image modality should default to CT, got %v", gen.Modality())
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"MR", true},
		{"CT", true},
		{"PT", true},
		{"RTSTRUCT", true},
		{"OTHER", true},
		{"mr", false}, // case sensitive
		{"RTPLAN", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := IsValid(tt.input)
			if got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Modality
	}{
		{"CT", CT},
		{" ct ", CT},
		{"rtstruct", RTSTRUCT},
		{"RTDOSE", OTHER},
		{"", OTHER},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Parse(tt.input); got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseList(t *testing.T) {
	mods, err := ParseList("ct, MR")
	if err != nil {
		t.Fatalf("ParseList failed: %v", err)
	}
	if len(mods) != 2 || mods[0] != CT || mods[1] != MR {
		t.Errorf("ParseList = %v, want [CT MR]", mods)
	}

	if _, err := ParseList("CT,XA"); err == nil {
		t.Error("Expected error for unknown modality")
	}
	if _, err := ParseList("OTHER"); err == nil {
		t.Error("OTHER should not be selectable")
	}
}

func TestModality_IsImage(t *testing.T) {
	for _, m := range []Modality{CT, MR, PT} {
		if !m.IsImage() {
			t.Errorf("%v should be an image modality", m)
		}
	}
	for _, m := range []Modality{RTSTRUCT, OTHER} {
		if m.IsImage() {
			t.Errorf("%v should not be an image modality", m)
		}
	}
}

func TestGenerators_Scanner(t *testing.T) {
	for _, gen := range []Generator{&CTGenerator{}, &MRGenerator{}} {
		for i := -3; i < 10; i++ {
			s := gen.Scanner(i)
			if s.Manufacturer == "" || s.Model == "" {
				t.Errorf("%v scanner %d has empty fields: %+v", gen.Modality(), i, s)
			}
		}
	}
}

func TestCTGenerator_AppendModalityElements(t *testing.T) {
	gen := &CTGenerator{}
	ds := &dicom.Dataset{}
	if err := gen.AppendModalityElements(ds, gen.Scanner(0)); err != nil {
		t.Fatalf("AppendModalityElements failed: %v", err)
	}
	elem, err := ds.FindElementByTag(tag.RescaleIntercept)
	if err != nil {
		t.Fatalf("RescaleIntercept missing: %v", err)
	}
	if got := dicom.MustGetStrings(elem.Value); len(got) != 1 || got[0] != "-1024" {
		t.Errorf("RescaleIntercept = %v, want [-1024]", got)
	}
}

func TestMRGenerator_PixelConfig(t *testing.T) {
	cfg := (&MRGenerator{}).PixelConfig()
	if cfg.BitsAllocated != 16 {
		t.Errorf("Expected 16 bits allocated, got %d", cfg.BitsAllocated)
	}
	if cfg.BitsStored != 12 {
		t.Errorf("Expected 12 bits stored, got %d", cfg.BitsStored)
	}
	if cfg.HighBit != 11 {
		t.Errorf("Expected high bit 11, got %d", cfg.HighBit)
	}
}

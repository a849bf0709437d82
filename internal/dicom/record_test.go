package dicom

import (
	"reflect"
	"testing"

	"github.com/mrsinham/dicombatch/internal/dicom/modalities"
)

func TestNewRecord(t *testing.T) {
	tests := []struct {
		name   string
		header Header
		want   Record
	}{
		{
			name: "CT image",
			header: Header{
				"Modality":            {"CT"},
				"PatientID":           {"P1"},
				"SeriesInstanceUID":   {"1.2.1"},
				"FrameOfReferenceUID": {"F1"},
			},
			want: Record{
				Path:                "/src/A/CT/1.dcm",
				Modality:            modalities.CT,
				PatientID:           "P1",
				SeriesInstanceUID:   "1.2.1",
				FrameOfReferenceUID: "F1",
			},
		},
		{
			name: "nested series UID does not shadow the top-level one",
			header: Header{
				"Modality":                            {"CT"},
				"PatientID":                           {"P1"},
				NestedKey("SeriesInstanceUID"):        {"9.9.9"},
				"SeriesInstanceUID":                   {"1.1.1"},
				NestedKey("FrameOfReferenceUID"):      {"F9"},
				"FrameOfReferenceUID":                 {"F1"},
				NestedKey("ReferencedSOPInstanceUID"): {"x"},
			},
			want: Record{
				Path:                "/src/A/CT/1.dcm",
				Modality:            modalities.CT,
				PatientID:           "P1",
				SeriesInstanceUID:   "1.1.1",
				FrameOfReferenceUID: "F1",
			},
		},
		{
			name: "nested CT series UID only",
			header: Header{
				"Modality":                     {"CT"},
				NestedKey("SeriesInstanceUID"): {"9.9.9"},
			},
			want: Record{
				Path:     "/src/A/CT/1.dcm",
				Modality: modalities.CT,
			},
		},
		{
			name: "structure set reads sequence values",
			header: Header{
				"Modality":                                 {"RTSTRUCT"},
				"SeriesInstanceUID":                        {"5.5.5"},
				NestedKey("SeriesInstanceUID"):             {"1.1.1"},
				NestedKey("ROIName"):                       {"GTV", "PTV"},
				NestedKey("ReferencedFrameOfReferenceUID"): {"F1", "F1"},
				NestedKey("FrameOfReferenceUID"):           {"F2"},
			},
			want: Record{
				Path:                           "/src/A/CT/1.dcm",
				Modality:                       modalities.RTSTRUCT,
				SeriesInstanceUID:              "5.5.5",
				ROINames:                       []string{"GTV", "PTV"},
				ReferencedFrameOfReferenceUIDs: []string{"F1", "F2"},
			},
		},
		{
			name: "structure set deduplicates references",
			header: Header{
				"Modality":                       {"rtstruct"},
				"PatientID":                      {"P1"},
				"ApprovalStatus":                 {" approved "},
				"ROIName":                        {"GTV", "", "PTV"},
				"ReferencedFrameOfReferenceUID":  {"F2", "F1", "F2"},
				NestedKey("FrameOfReferenceUID"): {"F1", "F3"},
			},
			want: Record{
				Path:                           "/src/A/CT/1.dcm",
				Modality:                       modalities.RTSTRUCT,
				PatientID:                      "P1",
				ApprovalStatus:                 "APPROVED",
				ROINames:                       []string{"GTV", "PTV"},
				ReferencedFrameOfReferenceUIDs: []string{"F2", "F1", "F3"},
			},
		},
		{
			name:   "missing tags stay empty",
			header: Header{},
			want: Record{
				Path:     "/src/A/CT/1.dcm",
				Modality: modalities.OTHER,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewRecord("/src/A/CT/1.dcm", tt.header)
			if !reflect.DeepEqual(*got, tt.want) {
				t.Errorf("NewRecord() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestRecord_DirAndApproval(t *testing.T) {
	rec := &Record{Path: "/src/A/RTSTRUCT/rs.dcm", ApprovalStatus: "APPROVED"}
	if rec.Dir() != "/src/A/RTSTRUCT" {
		t.Errorf("Dir() = %q", rec.Dir())
	}
	if !rec.IsApproved() {
		t.Error("IsApproved() = false, want true")
	}
	rec.ApprovalStatus = "UNAPPROVED"
	if rec.IsApproved() {
		t.Error("IsApproved() = true for UNAPPROVED")
	}
}

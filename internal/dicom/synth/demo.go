package synth

import (
	"fmt"
	"path/filepath"

	"github.com/mrsinham/dicombatch/internal/dicom/modalities"
	"github.com/mrsinham/dicombatch/internal/util"
)

// DemoOptions configures WriteDemoTree.
type DemoOptions struct {
	Root     string
	Patients int
	Slices   int
	Modality modalities.Modality
	// Orphans is the number of trailing patients whose structure set points
	// at a frame of reference that no image series carries.
	Orphans int
	// Unapproved is the number of leading patients whose structure set is UNAPPROVED.
	Unapproved int
	// Damaged adds the files of WriteDamaged under <root>/damaged.
	Damaged bool
}

// DemoPatient describes what WriteDemoTree wrote for one patient.
type DemoPatient struct {
	PatientID    string
	Series       Series
	StructureSet string
	Approved     bool
	Orphan       bool
}

// demoROIs are the structure names written into every demo structure set.
var demoROIs = []string{"GTV", "PTV", "Heart", "Lung_L", "Lung_R", "SpinalCord"}

// WriteDemoTree writes <root>/<patient>/<modality>/*.dcm and
// <root>/<patient>/RTSTRUCT/rs.dcm for every patient.
func WriteDemoTree(opts DemoOptions) ([]DemoPatient, error) {
	if opts.Patients <= 0 {
		return nil, fmt.Errorf("number of patients must be > 0, got %d", opts.Patients)
	}
	if opts.Orphans < 0 || opts.Orphans > opts.Patients {
		return nil, fmt.Errorf("orphans must be between 0 and %d, got %d", opts.Patients, opts.Orphans)
	}
	if opts.Unapproved < 0 || opts.Unapproved > opts.Patients {
		return nil, fmt.Errorf("unapproved must be between 0 and %d, got %d", opts.Patients, opts.Unapproved)
	}
	if opts.Modality == "" {
		opts.Modality = modalities.CT
	}
	if !opts.Modality.IsImage() || opts.Modality == modalities.PT {
		return nil, fmt.Errorf("demo series modality must be CT or MR, got %s", opts.Modality)
	}

	patients := make([]DemoPatient, 0, opts.Patients)
	for i := 0; i < opts.Patients; i++ {
		patientID := fmt.Sprintf("DEMO%03d", i+1)
		patientDir := filepath.Join(opts.Root, patientID)

		series, err := WriteSeries(SeriesOptions{
			Dir:               filepath.Join(patientDir, string(opts.Modality)),
			Modality:          opts.Modality,
			PatientID:         patientID,
			PatientName:       DemoPatientName(i),
			StudyDate:         "20240101",
			SeriesDescription: "Planning " + string(opts.Modality),
			Slices:            opts.Slices,
			Seed:              patientID,
		})
		if err != nil {
			return nil, fmt.Errorf("write series for %s: %w", patientID, err)
		}

		orphan := i >= opts.Patients-opts.Orphans
		approved := i >= opts.Unapproved
		frameOfReference := series.FrameOfReferenceUID
		if orphan {
			frameOfReference = util.GenerateDeterministicUID(patientID + "_orphan_frame")
		}
		approval := "APPROVED"
		if !approved {
			approval = "UNAPPROVED"
		}

		rois := make([]ROI, 0, len(demoROIs))
		for _, name := range demoROIs {
			rois = append(rois, ROI{Name: name, FrameOfReferenceUID: frameOfReference})
		}

		rsPath := filepath.Join(patientDir, "RTSTRUCT", "rs.dcm")
		if err := WriteStructureSet(StructureSetOptions{
			Path:                 rsPath,
			PatientID:            patientID,
			PatientName:          DemoPatientName(i),
			StudyInstanceUID:     series.StudyInstanceUID,
			ApprovalStatus:       approval,
			FrameOfReferenceUIDs: []string{frameOfReference},
			ROIs:                 rois,
		}); err != nil {
			return nil, fmt.Errorf("write structure set for %s: %w", patientID, err)
		}

		patients = append(patients, DemoPatient{
			PatientID:    patientID,
			Series:       series,
			StructureSet: rsPath,
			Approved:     approved,
			Orphan:       orphan,
		})
	}

	if opts.Damaged {
		if _, err := WriteDamaged(opts.Root); err != nil {
			return nil, fmt.Errorf("write damaged files: %w", err)
		}
	}
	return patients, nil
}

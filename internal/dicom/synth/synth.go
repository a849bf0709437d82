// Package synth writes small but valid DICOM image series and RT structure
// sets. It backs the synth command and the test fixtures of the pairing,
// sorting and conversion packages.
package synth

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mrsinham/dicombatch/internal/dicom/modalities"
	"github.com/mrsinham/dicombatch/internal/util"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

const explicitVRLittleEndian = "1.2.840.10008.1.2.1"

// SeriesOptions describes an image series to write. Empty string fields are
// left out of the files, which is how tests model missing tags.
type SeriesOptions struct {
	Dir                 string
	Modality            modalities.Modality // CT or MR, default CT
	PatientID           string
	PatientName         string
	StudyDate           string
	SeriesDescription   string
	StudyInstanceUID    string // generated when empty
	SeriesInstanceUID   string // generated when empty
	FrameOfReferenceUID string // generated when empty
	// RelatedSeriesInstanceUID, when set, is written inside a
	// RelatedSeriesSequence item, ahead of the top-level SeriesInstanceUID.
	RelatedSeriesInstanceUID string
	Slices                   int    // default 1
	Width, Height            int    // default 32x32
	FileNamePattern          string // default "%d.dcm", receives the 1-based instance number
	Seed                     string // feeds UID generation, default Dir
}

// Series describes a written image series.
type Series struct {
	Dir                 string
	StudyInstanceUID    string
	SeriesInstanceUID   string
	FrameOfReferenceUID string
	Files               []string
}

// WriteSeries writes opts.Slices image files into opts.Dir.
func WriteSeries(opts SeriesOptions) (Series, error) {
	if opts.Modality == "" {
		opts.Modality = modalities.CT
	}
	if opts.Slices <= 0 {
		opts.Slices = 1
	}
	if opts.Width <= 0 {
		opts.Width = 32
	}
	if opts.Height <= 0 {
		opts.Height = 32
	}
	if opts.FileNamePattern == "" {
		opts.FileNamePattern = "%d.dcm"
	}
	if opts.Seed == "" {
		opts.Seed = opts.Dir
	}
	if opts.StudyInstanceUID == "" {
		opts.StudyInstanceUID = util.GenerateDeterministicUID(opts.Seed + "_study")
	}
	if opts.SeriesInstanceUID == "" {
		opts.SeriesInstanceUID = util.GenerateDeterministicUID(opts.Seed + "_series")
	}
	if opts.FrameOfReferenceUID == "" {
		opts.FrameOfReferenceUID = util.GenerateDeterministicUID(opts.Seed + "_frame")
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return Series{}, fmt.Errorf("create series directory: %w", err)
	}

	gen := modalities.GetGenerator(opts.Modality)
	pixelConfig := gen.PixelConfig()
	series := Series{
		Dir:                 opts.Dir,
		StudyInstanceUID:    opts.StudyInstanceUID,
		SeriesInstanceUID:   opts.SeriesInstanceUID,
		FrameOfReferenceUID: opts.FrameOfReferenceUID,
	}

	for instance := 1; instance <= opts.Slices; instance++ {
		sopInstanceUID := util.GenerateDeterministicUID(fmt.Sprintf("%s_instance_%d", opts.Seed, instance))
		z := float64(instance-1) * 2.5

		metadata := []*dicom.Element{
			mustNewElement(tag.TransferSyntaxUID, []string{explicitVRLittleEndian}),
			mustNewElement(tag.MediaStorageSOPClassUID, []string{gen.SOPClassUID()}),
			mustNewElement(tag.MediaStorageSOPInstanceUID, []string{sopInstanceUID}),
			mustNewElement(tag.SOPClassUID, []string{gen.SOPClassUID()}),
			mustNewElement(tag.SOPInstanceUID, []string{sopInstanceUID}),
			mustNewElement(tag.Modality, []string{string(gen.Modality())}),
			mustNewElement(tag.StudyInstanceUID, []string{opts.StudyInstanceUID}),
			mustNewElement(tag.SeriesInstanceUID, []string{opts.SeriesInstanceUID}),
			mustNewElement(tag.FrameOfReferenceUID, []string{opts.FrameOfReferenceUID}),
			mustNewElement(tag.InstanceNumber, []string{fmt.Sprintf("%d", instance)}),
			mustNewElement(tag.ImagePositionPatient, []string{"-100.000000", "-100.000000", fmt.Sprintf("%.6f", z)}),
			mustNewElement(tag.ImageOrientationPatient, []string{"1", "0", "0", "0", "1", "0"}),
			mustNewElement(tag.PixelSpacing, []string{"1.000000", "1.000000"}),
			mustNewElement(tag.SliceThickness, []string{"2.500000"}),
			mustNewElement(tag.Rows, []int{opts.Height}),
			mustNewElement(tag.Columns, []int{opts.Width}),
			mustNewElement(tag.BitsAllocated, []int{int(pixelConfig.BitsAllocated)}),
			mustNewElement(tag.BitsStored, []int{int(pixelConfig.BitsStored)}),
			mustNewElement(tag.HighBit, []int{int(pixelConfig.HighBit)}),
			mustNewElement(tag.PixelRepresentation, []int{int(pixelConfig.PixelRepresentation)}),
			mustNewElement(tag.SamplesPerPixel, []int{1}),
			mustNewElement(tag.PhotometricInterpretation, []string{"MONOCHROME2"}),
		}
		metadata = appendIfSet(metadata, tag.PatientID, opts.PatientID)
		metadata = appendIfSet(metadata, tag.PatientName, opts.PatientName)
		metadata = appendIfSet(metadata, tag.StudyDate, opts.StudyDate)
		metadata = appendIfSet(metadata, tag.SeriesDescription, opts.SeriesDescription)
		if opts.RelatedSeriesInstanceUID != "" {
			metadata = append(metadata, mustNewElement(tag.RelatedSeriesSequence, [][]*dicom.Element{{
				mustNewElement(tag.StudyInstanceUID, []string{opts.StudyInstanceUID}),
				mustNewElement(tag.SeriesInstanceUID, []string{opts.RelatedSeriesInstanceUID}),
			}}))
		}

		ds := &dicom.Dataset{Elements: metadata}
		if err := gen.AppendModalityElements(ds, gen.Scanner(len(opts.Seed))); err != nil {
			return Series{}, fmt.Errorf("add modality elements for instance %d: %w", instance, err)
		}

		pixels := frame.NewNativeFrame[uint16](16, opts.Height, opts.Width, opts.Width*opts.Height, 1)
		for i := range pixels.RawData {
			pixels.RawData[i] = uint16(pixelConfig.BaseValue)
		}
		label := fmt.Sprintf("%s %d/%d", gen.Modality(), instance, opts.Slices)
		maxValue := (1 << int(pixelConfig.BitsStored)) - 1
		drawLabel(pixels, opts.Width, opts.Height, label, uint16(maxValue))

		ds.Elements = append(ds.Elements, mustNewElement(tag.PixelData, dicom.PixelDataInfo{
			Frames: []*frame.Frame{
				{
					Encapsulated: false,
					NativeData:   pixels,
				},
			},
		}))

		path := filepath.Join(opts.Dir, fmt.Sprintf(opts.FileNamePattern, instance))
		if err := writeDatasetToFile(path, *ds); err != nil {
			return Series{}, fmt.Errorf("write %s: %w", path, err)
		}
		series.Files = append(series.Files, path)
	}

	return series, nil
}

// ROI is one structure of a structure set.
type ROI struct {
	Name                string
	FrameOfReferenceUID string
}

// StructureSetOptions describes an RTSTRUCT file to write.
type StructureSetOptions struct {
	Path              string
	PatientID         string
	PatientName       string
	StudyInstanceUID  string
	SeriesInstanceUID string // generated when empty
	ApprovalStatus    string // APPROVED, UNAPPROVED, REJECTED or empty
	// FrameOfReferenceUIDs are written into ReferencedFrameOfReferenceSequence.
	FrameOfReferenceUIDs []string
	ROIs                 []ROI
}

// WriteStructureSet writes an RT structure set file.
func WriteStructureSet(opts StructureSetOptions) error {
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
		return fmt.Errorf("create structure set directory: %w", err)
	}
	if opts.SeriesInstanceUID == "" {
		opts.SeriesInstanceUID = util.GenerateDeterministicUID(opts.Path + "_series")
	}
	sopInstanceUID := util.GenerateDeterministicUID(opts.Path + "_instance")

	metadata := []*dicom.Element{
		mustNewElement(tag.TransferSyntaxUID, []string{explicitVRLittleEndian}),
		mustNewElement(tag.MediaStorageSOPClassUID, []string{modalities.RTStructureSetStorage}),
		mustNewElement(tag.MediaStorageSOPInstanceUID, []string{sopInstanceUID}),
		mustNewElement(tag.SOPClassUID, []string{modalities.RTStructureSetStorage}),
		mustNewElement(tag.SOPInstanceUID, []string{sopInstanceUID}),
		mustNewElement(tag.Modality, []string{string(modalities.RTSTRUCT)}),
		mustNewElement(tag.SeriesInstanceUID, []string{opts.SeriesInstanceUID}),
		mustNewElement(util.TagStructureSetLabel, []string{"RTSTRUCT"}),
	}
	metadata = appendIfSet(metadata, tag.PatientID, opts.PatientID)
	metadata = appendIfSet(metadata, tag.PatientName, opts.PatientName)
	metadata = appendIfSet(metadata, tag.StudyInstanceUID, opts.StudyInstanceUID)
	metadata = appendIfSet(metadata, util.TagApprovalStatus, opts.ApprovalStatus)

	if len(opts.FrameOfReferenceUIDs) > 0 {
		items := make([][]*dicom.Element, 0, len(opts.FrameOfReferenceUIDs))
		for _, uid := range opts.FrameOfReferenceUIDs {
			items = append(items, []*dicom.Element{
				mustNewElement(tag.FrameOfReferenceUID, []string{uid}),
			})
		}
		metadata = append(metadata, mustNewElement(util.TagReferencedFrameOfReferenceSequence, items))
	}

	if len(opts.ROIs) > 0 {
		items := make([][]*dicom.Element, 0, len(opts.ROIs))
		for i, roi := range opts.ROIs {
			item := []*dicom.Element{
				mustNewElement(util.TagROINumber, []string{fmt.Sprintf("%d", i+1)}),
			}
			item = appendIfSet(item, util.TagReferencedFrameOfReferenceUID, roi.FrameOfReferenceUID)
			item = appendIfSet(item, util.TagROIName, roi.Name)
			items = append(items, item)
		}
		metadata = append(metadata, mustNewElement(util.TagStructureSetROISequence, items))
	}

	return writeDatasetToFile(opts.Path, dicom.Dataset{Elements: metadata})
}

// writeDatasetToFile writes a DICOM dataset to a file, elements in tag order.
func writeDatasetToFile(filename string, ds dicom.Dataset, opts ...dicom.WriteOption) error {
	sort.SliceStable(ds.Elements, func(i, j int) bool {
		if ds.Elements[i].Tag.Group != ds.Elements[j].Tag.Group {
			return ds.Elements[i].Tag.Group < ds.Elements[j].Tag.Group
		}
		return ds.Elements[i].Tag.Element < ds.Elements[j].Tag.Element
	})

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := dicom.Write(f, ds, opts...); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func appendIfSet(elems []*dicom.Element, t tag.Tag, value string) []*dicom.Element {
	if value == "" {
		return elems
	}
	return append(elems, mustNewElement(t, []string{value}))
}

// mustNewElement creates a new DICOM element, panicking on error.
func mustNewElement(t tag.Tag, value interface{}) *dicom.Element {
	elem, err := dicom.NewElement(t, value)
	if err != nil {
		panic(fmt.Sprintf("failed to create element %v: %v", t, err))
	}
	return elem
}

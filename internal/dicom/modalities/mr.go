package modalities

import (
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// MRGenerator writes MR (Magnetic Resonance) specific metadata.
type MRGenerator struct{}

// Modality returns the MR modality type.
func (g *MRGenerator) Modality() Modality {
	return MR
}

// SOPClassUID returns the MR Image Storage SOP Class UID.
func (g *MRGenerator) SOPClassUID() string {
	return "1.2.840.10008.5.1.4.1.1.4"
}

var mrScanners = []Scanner{
	{Manufacturer: "SIEMENS", Model: "MAGNETOM Skyra", FieldStrength: 3.0},
	{Manufacturer: "GE MEDICAL SYSTEMS", Model: "Optima MR450w", FieldStrength: 1.5},
	{Manufacturer: "PHILIPS", Model: "Ingenia", FieldStrength: 1.5},
}

// Scanner returns an MR scanner, cycling through the known configurations.
func (g *MRGenerator) Scanner(i int) Scanner {
	if i < 0 {
		i = -i
	}
	return mrScanners[i%len(mrScanners)]
}

// PixelConfig returns MR pixel data configuration.
func (g *MRGenerator) PixelConfig() PixelConfig {
	return PixelConfig{
		BitsAllocated:       16,
		BitsStored:          12,
		HighBit:             11,
		PixelRepresentation: 0,
		BaseValue:           512,
	}
}

// AppendModalityElements appends MR-specific DICOM elements to a dataset.
func (g *MRGenerator) AppendModalityElements(ds *dicom.Dataset, scanner Scanner) error {
	elements := []*dicom.Element{
		mustNewElement(tag.Manufacturer, []string{scanner.Manufacturer}),
		mustNewElement(tag.ManufacturerModelName, []string{scanner.Model}),
		mustNewElement(tag.MagneticFieldStrength, []string{floatToDS(scanner.FieldStrength)}),
		mustNewElement(tag.ImagingFrequency, []string{floatToDS(scanner.FieldStrength * 42.58)}),
		mustNewElement(tag.WindowCenter, []string{floatToDS(1024)}),
		mustNewElement(tag.WindowWidth, []string{floatToDS(2048)}),
	}

	ds.Elements = append(ds.Elements, elements...)
	return nil
}

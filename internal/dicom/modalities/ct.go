package modalities

import (
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// CTGenerator writes CT (Computed Tomography) specific metadata.
type CTGenerator struct{}

// Modality returns the CT modality type.
func (g *CTGenerator) Modality() Modality {
	return CT
}

// SOPClassUID returns the CT Image Storage SOP Class UID.
func (g *CTGenerator) SOPClassUID() string {
	return "1.2.840.10008.5.1.4.1.1.2"
}

var ctScanners = []Scanner{
	{Manufacturer: "SIEMENS", Model: "SOMATOM Definition AS+", DetectorRows: 128},
	{Manufacturer: "GE MEDICAL SYSTEMS", Model: "Revolution CT", DetectorRows: 256},
	{Manufacturer: "PHILIPS", Model: "Brilliance Big Bore", DetectorRows: 16},
	{Manufacturer: "CANON", Model: "Aquilion LB", DetectorRows: 16},
}

// Scanner returns a CT scanner, cycling through the known configurations.
func (g *CTGenerator) Scanner(i int) Scanner {
	if i < 0 {
		i = -i
	}
	return ctScanners[i%len(ctScanners)]
}

// PixelConfig returns CT pixel data configuration.
func (g *CTGenerator) PixelConfig() PixelConfig {
	return PixelConfig{
		BitsAllocated:       16,
		BitsStored:          16,
		HighBit:             15,
		PixelRepresentation: 0,
		BaseValue:           1024, // Water = 0 HU with a -1024 intercept
	}
}

// AppendModalityElements appends CT-specific DICOM elements to a dataset.
func (g *CTGenerator) AppendModalityElements(ds *dicom.Dataset, scanner Scanner) error {
	elements := []*dicom.Element{
		mustNewElement(tag.Manufacturer, []string{scanner.Manufacturer}),
		mustNewElement(tag.ManufacturerModelName, []string{scanner.Model}),
		mustNewElement(tag.KVP, []string{floatToDS(120)}),
		mustNewElement(tag.RescaleIntercept, []string{floatToDS(-1024)}),
		mustNewElement(tag.RescaleSlope, []string{floatToDS(1)}),
		mustNewElement(tag.RescaleType, []string{"HU"}),
		mustNewElement(tag.WindowCenter, []string{floatToDS(40)}),
		mustNewElement(tag.WindowWidth, []string{floatToDS(400)}),
	}

	ds.Elements = append(ds.Elements, elements...)
	return nil
}

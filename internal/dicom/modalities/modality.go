// Package modalities describes the DICOM modalities dicombatch distinguishes
// and the per-modality details needed to write synthetic image series.
package modalities

import (
	"fmt"
	"strings"

	"github.com/suyashkumar/dicom"
)

// Modality represents a DICOM modality value (0008,0060).
type Modality string

const (
	CT       Modality = "CT"       // Computed Tomography
	MR       Modality = "MR"       // Magnetic Resonance
	PT       Modality = "PT"       // Positron Emission Tomography
	RTSTRUCT Modality = "RTSTRUCT" // Radiotherapy Structure Set
	OTHER    Modality = "OTHER"    // Anything else
)

// RTStructureSetStorage is the SOP Class UID of an RT Structure Set.
const RTStructureSetStorage = "1.2.840.10008.5.1.4.1.1.481.3"

// AllModalities returns every modality the classifier can produce.
func AllModalities() []Modality {
	return []Modality{CT, MR, PT, RTSTRUCT, OTHER}
}

// IsValid checks if a modality string names one of AllModalities.
func IsValid(m string) bool {
	for _, valid := range AllModalities() {
		if string(valid) == m {
			return true
		}
	}
	return false
}

// Parse maps a raw Modality tag value to a Modality. Unknown or empty values
// become OTHER.
func Parse(raw string) Modality {
	m := Modality(strings.ToUpper(strings.TrimSpace(raw)))
	if IsValid(string(m)) {
		return m
	}
	return OTHER
}

// ParseList parses a comma-separated list of modalities, rejecting unknown names.
func ParseList(input string) ([]Modality, error) {
	var result []Modality
	for _, p := range strings.Split(input, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		m := Modality(strings.ToUpper(p))
		if !IsValid(string(m)) || m == OTHER {
			return nil, fmt.Errorf("unknown modality %q, valid options: %v", p, []Modality{CT, MR, PT, RTSTRUCT})
		}
		result = append(result, m)
	}
	return result, nil
}

// IsImage reports whether m is a volumetric image series a structure set can
// be drawn on.
func (m Modality) IsImage() bool {
	return m == CT || m == MR || m == PT
}

// Contains reports whether list holds m.
func Contains(list []Modality, m Modality) bool {
	for _, l := range list {
		if l == m {
			return true
		}
	}
	return false
}

// Scanner represents an imaging device configuration.
type Scanner struct {
	Manufacturer string
	Model        string
	// MR-specific
	FieldStrength float64 // Tesla (1.5, 3.0)
	// CT-specific
	DetectorRows int
}

// PixelConfig holds pixel data configuration for a modality.
type PixelConfig struct {
	BitsAllocated       uint16
	BitsStored          uint16
	HighBit             uint16
	PixelRepresentation uint16 // 0 = unsigned, 1 = signed
	BaseValue           int    // Background value for synthetic frames
}

// Generator describes how to write an image series of one modality.
type Generator interface {
	// Modality returns the modality type.
	Modality() Modality

	// SOPClassUID returns the SOP Class UID for this modality.
	SOPClassUID() string

	// Scanner returns the scanner configuration used for series index i.
	Scanner(i int) Scanner

	// PixelConfig returns pixel data configuration.
	PixelConfig() PixelConfig

	// AppendModalityElements appends modality-specific DICOM elements to a dataset.
	AppendModalityElements(ds *dicom.Dataset, scanner Scanner) error
}

// GetGenerator returns the image generator for m. Only CT and MR series can
// be synthesized; everything else gets the CT generator.
func GetGenerator(m Modality) Generator {
	switch m {
	case MR:
		return &MRGenerator{}
	case CT:
		fallthrough
	default:
		return &CTGenerator{}
	}
}

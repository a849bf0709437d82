// Package converter turns a structure set and its image series into
// volumetric files by delegating to an external tool.
package converter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrConversion wraps every failure reported by a Converter.
var ErrConversion = errors.New("conversion failed")

// Converter converts one structure set. Files are written into outputDir,
// which already exists.
type Converter interface {
	Convert(ctx context.Context, rtstructPath, seriesDir, outputDir string, opts Options) error
}

// Func adapts a function to the Converter interface.
type Func func(ctx context.Context, rtstructPath, seriesDir, outputDir string, opts Options) error

// Convert calls f.
func (f Func) Convert(ctx context.Context, rtstructPath, seriesDir, outputDir string, opts Options) error {
	return f(ctx, rtstructPath, seriesDir, outputDir, opts)
}

// Kind names a Converter implementation.
type Kind string

const (
	// KindExec runs the external converter binary.
	KindExec Kind = "exec"
	// KindManifest writes a conversion.json describing the request instead.
	KindManifest Kind = "manifest"
)

// AllKinds lists the supported converter kinds.
var AllKinds = []Kind{KindExec, KindManifest}

// ParseKind validates a converter kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range AllKinds {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown converter %q, valid options: %v", s, AllKinds)
}

// New returns the Converter for kind. binary is only used by KindExec.
func New(kind Kind, binary string) (Converter, error) {
	switch kind {
	case KindExec, "":
		return &ExecConverter{Binary: binary}, nil
	case KindManifest:
		return ManifestConverter{}, nil
	default:
		return nil, fmt.Errorf("unknown converter %q", kind)
	}
}

// ManifestFileName is the file ManifestConverter writes.
const ManifestFileName = "conversion.json"

// Manifest is the content of a conversion.json file.
type Manifest struct {
	RTStruct             string   `json:"rtstruct"`
	Dicom                string   `json:"dicom"`
	Output               string   `json:"output"`
	XYScalingFactor      int      `json:"xy_scaling_factor"`
	CropMask             bool     `json:"crop_mask"`
	ConvertOriginalDicom bool     `json:"convert_original_dicom"`
	Structures           []string `json:"structures,omitempty"`
}

// ManifestConverter is a dry-run Converter. It records what would have been
// converted in outputDir/conversion.json.
type ManifestConverter struct{}

// Convert writes the manifest.
func (ManifestConverter) Convert(ctx context.Context, rtstructPath, seriesDir, outputDir string, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := Manifest{
		RTStruct:             rtstructPath,
		Dicom:                seriesDir,
		Output:               outputDir,
		XYScalingFactor:      opts.scalingFactor(),
		CropMask:             opts.CropMask,
		ConvertOriginalDicom: opts.ConvertOriginal,
		Structures:           opts.Structures,
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode manifest: %v", ErrConversion, err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, ManifestFileName), append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("%w: write manifest: %v", ErrConversion, err)
	}
	return nil
}

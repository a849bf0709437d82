package synth

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// DamagedDirName is the directory of the root that WriteDamaged fills.
const DamagedDirName = "damaged"

// Names of the files WriteDamaged produces.
const (
	TruncatedFile = "truncated.dcm"
	OddLengthFile = "odd_pixel_length.dcm"
	NotDICOMFile  = "not_dicom.dcm"
)

const damagedPatient = "DAMAGED"

// WriteDamaged writes files that look like DICOM but are broken the way
// files from interrupted transfers and non-conformant scanners are:
//
//   - TruncatedFile stops halfway through a text value ahead of its pixel
//     data, so a strict parse fails with an unexpected EOF;
//   - OddLengthFile declares an odd PixelData length (OW must be even);
//   - NotDICOMFile has a .dcm name but no DICOM content.
//
// The headers of the first two remain readable.
func WriteDamaged(root string) ([]string, error) {
	dir := filepath.Join(root, DamagedDirName)
	series, err := WriteSeries(SeriesOptions{
		Dir:             dir,
		PatientID:       damagedPatient,
		PatientName:     "DAMAGED^FILES",
		Slices:          2,
		FileNamePattern: "slice%d.tmp",
		Seed:            "damaged",
	})
	if err != nil {
		return nil, err
	}

	truncated := filepath.Join(dir, TruncatedFile)
	if err := truncateCopy(series.Files[0], truncated); err != nil {
		return nil, err
	}
	oddLength := filepath.Join(dir, OddLengthFile)
	if err := os.Rename(series.Files[1], oddLength); err != nil {
		return nil, fmt.Errorf("rename %s: %w", series.Files[1], err)
	}
	if err := PatchPixelDataOddLength(oddLength); err != nil {
		return nil, err
	}
	notDICOM := filepath.Join(dir, NotDICOMFile)
	if err := os.WriteFile(notDICOM, []byte("not a dicom file"), 0644); err != nil {
		return nil, fmt.Errorf("write %s: %w", notDICOM, err)
	}
	return []string{truncated, oddLength, notDICOM}, nil
}

// truncateCopy writes src to dst cut in the middle of the
// PhotometricInterpretation value. Pixel data is read sample by sample and a
// cut there reads as a clean end of file, so the cut lands in a string value.
func truncateCopy(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	i := findShortElement(data, 0x0028, 0x0004, "CS")
	if i < 0 {
		return fmt.Errorf("%s has no PhotometricInterpretation", src)
	}
	vl := int(binary.LittleEndian.Uint16(data[i+6 : i+8]))
	if vl < 2 {
		return fmt.Errorf("%s: PhotometricInterpretation too short to cut", src)
	}
	if err := os.WriteFile(dst, data[:i+8+vl/2], 0644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return os.Remove(src)
}

// findShortElement returns the offset of an explicit VR little endian element
// with a 2-byte length field, or -1.
func findShortElement(data []byte, group, element uint16, vr string) int {
	for i := 0; i <= len(data)-8; i++ {
		if binary.LittleEndian.Uint16(data[i:i+2]) == group &&
			binary.LittleEndian.Uint16(data[i+2:i+4]) == element &&
			string(data[i+4:i+6]) == vr {
			return i
		}
	}
	return -1
}

// PatchPixelDataOddLength rewrites the value length of the explicit-VR
// PixelData element of path to an odd number.
func PatchPixelDataOddLength(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	i := findPixelData(data)
	if i < 0 {
		return fmt.Errorf("%s has no native pixel data", path)
	}
	vl := binary.LittleEndian.Uint32(data[i+8 : i+12])
	if vl > 1 && vl%2 == 0 {
		binary.LittleEndian.PutUint32(data[i+8:i+12], vl-1)
	}
	return os.WriteFile(path, data, 0644)
}

// findPixelData returns the offset of the (7FE0,0010) OB/OW element header
// in explicit VR little endian data, or -1.
func findPixelData(data []byte) int {
	for i := 0; i <= len(data)-12; i++ {
		if data[i] != 0xE0 || data[i+1] != 0x7F || data[i+2] != 0x10 || data[i+3] != 0x00 {
			continue
		}
		if vr := string(data[i+4 : i+6]); vr == "OW" || vr == "OB" {
			return i
		}
	}
	return -1
}

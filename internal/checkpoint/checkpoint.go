// Package checkpoint persists discovery results so later runs can skip the
// walk. Two flat formats are supported, chosen by file extension: a JSON
// array of structure set paths and a CSV table of classified records.
package checkpoint

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mrsinham/dicombatch/internal/dicom"
	"github.com/mrsinham/dicombatch/internal/dicom/modalities"
)

const (
	// PathsFileName is the default JSON checkpoint name.
	PathsFileName = "rtstruct_paths.json"
	// IndexFileName is the default CSV checkpoint name.
	IndexFileName = "dicom_index.csv"
)

// Format is a checkpoint file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// FormatFor returns the format implied by path's extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("checkpoint %s: extension must be .json or .csv", path)
	}
}

// Exists reports whether a checkpoint file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// SavePaths writes paths as a sorted JSON array.
func SavePaths(path string, paths []string) error {
	sorted := dedupe(paths)
	sort.Strings(sorted)
	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

// LoadPaths reads a JSON array of paths. Duplicates are dropped.
func LoadPaths(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var paths []string
	if err := json.Unmarshal(data, &paths); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	return dedupe(paths), nil
}

// CSVHeader is the column layout of the record checkpoint.
var CSVHeader = []string{
	"path", "Modality", "PatientID", "PatientName", "SeriesInstanceUID",
	"ReferencedFrameOfReferenceUID", "ApprovalStatus", "FrameOfReferenceUID",
}

// multiValueSeparator joins multi-valued cells, as in DICOM value multiplicity.
const multiValueSeparator = `\`

// SaveRecords writes records as CSV, sorted by path.
func SaveRecords(path string, records []*dicom.Record) error {
	sorted := make([]*dicom.Record, 0, len(records))
	for _, rec := range records {
		if rec != nil {
			sorted = append(sorted, rec)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(CSVHeader); err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	for _, rec := range sorted {
		row := []string{
			rec.Path,
			string(rec.Modality),
			rec.PatientID,
			rec.PatientName,
			rec.SeriesInstanceUID,
			strings.Join(rec.ReferencedFrameOfReferenceUIDs, multiValueSeparator),
			rec.ApprovalStatus,
			rec.FrameOfReferenceUID,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("encode checkpoint: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return writeAtomic(path, []byte(b.String()))
}

// LoadRecords reads a CSV record checkpoint. ROINames are not stored and
// come back empty.
func LoadRecords(path string) ([]*dicom.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	columns, err := columnIndex(header)
	if err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}

	var records []*dicom.Record
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse checkpoint %s: %w", path, err)
		}
		cell := func(name string) string { return strings.TrimSpace(row[columns[name]]) }

		rec := &dicom.Record{
			Path:                cell("path"),
			Modality:            modalities.Parse(cell("Modality")),
			PatientID:           cell("PatientID"),
			PatientName:         cell("PatientName"),
			SeriesInstanceUID:   cell("SeriesInstanceUID"),
			ApprovalStatus:      strings.ToUpper(cell("ApprovalStatus")),
			FrameOfReferenceUID: cell("FrameOfReferenceUID"),
		}
		if refs := cell("ReferencedFrameOfReferenceUID"); refs != "" {
			rec.ReferencedFrameOfReferenceUIDs = strings.Split(refs, multiValueSeparator)
		}
		records = append(records, rec)
	}
	return records, nil
}

func columnIndex(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	for _, name := range CSVHeader {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return columns, nil
}

// writeAtomic writes data to a temporary sibling of path and renames it
// into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("publish checkpoint: %w", err)
	}
	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

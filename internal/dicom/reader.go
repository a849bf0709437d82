package dicom

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mrsinham/dicombatch/internal/util"
	"github.com/suyashkumar/dicom"
)

// ErrUnreadable is returned when a file yields no DICOM elements at all.
var ErrUnreadable = errors.New("unreadable DICOM file")

// ReadOptions controls how much of a file the reader looks at.
type ReadOptions struct {
	// StopBeforePixels skips the PixelData element.
	StopBeforePixels bool
	// Force retries files that lack the DICM preamble as a raw dataset.
	Force bool
}

// HeaderOptions is what every header-only consumer passes.
var HeaderOptions = ReadOptions{StopBeforePixels: true, Force: true}

// Header maps DICOM keywords to their values. Top-level elements are stored
// under their keyword. Elements nested in sequences, at any depth, are stored
// under NestedKey(keyword) so they never shadow a top-level value.
type Header map[string][]string

const nestedPrefix = ">"

// NestedKey is the Header key holding the values of keyword found inside
// sequence items.
func NestedKey(keyword string) string {
	return nestedPrefix + keyword
}

// First returns the first top-level value stored for name, or "".
func (h Header) First(name string) string {
	if v := h[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Get returns the first top-level value for name or fallback when it is
// missing or blank.
func (h Header) Get(name, fallback string) string {
	if v := strings.TrimSpace(h.First(name)); v != "" {
		return v
	}
	return fallback
}

// All returns every value stored for name: top-level values first, then the
// ones nested in sequences, each in file order.
func (h Header) All(name string) []string {
	nested := h[NestedKey(name)]
	if len(nested) == 0 {
		return h[name]
	}
	return append(append([]string{}, h[name]...), nested...)
}

// Nested returns the values of name found inside sequence items.
func (h Header) Nested(name string) []string {
	return h[NestedKey(name)]
}

// Reader reads DICOM header metadata.
type Reader interface {
	Read(path string, opts ReadOptions) (Header, error)
}

// FileReader reads headers from the local filesystem with suyashkumar/dicom.
type FileReader struct{}

// Read parses path element by element, keeping whatever parsed before the
// first error so truncated and non-conformant files still yield metadata.
func (FileReader) Read(path string, opts ReadOptions) (Header, error) {
	elements, err := parseTolerant(path, opts, false)
	if err != nil && opts.Force {
		elements, err = parseTolerant(path, opts, true)
	}
	if err != nil {
		return nil, err
	}

	h := Header{}
	for _, elem := range elements {
		addElement(h, elem, false)
	}
	return h, nil
}

// parseTolerant parses a DICOM file element-by-element, tolerating errors in
// individual elements. raw skips the preamble and file meta information.
func parseTolerant(path string, opts ReadOptions, raw bool) ([]*dicom.Element, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: %w", path, ErrUnreadable)
	}

	var parseOpts []dicom.ParseOption
	if opts.StopBeforePixels {
		parseOpts = append(parseOpts, dicom.SkipPixelData())
	}
	if raw {
		parseOpts = append(parseOpts, dicom.SkipMetadataReadOnNewParserInit())
	}

	p, err := dicom.NewParser(f, info.Size(), nil, parseOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrUnreadable, err)
	}

	var elements []*dicom.Element
	for {
		elem, err := p.Next()
		if err != nil {
			// Stop on any error - we've collected what we can
			break
		}
		elements = append(elements, elem)
	}

	if !raw {
		elements = append(p.GetMetadata().Elements, elements...)
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("%s: %w: no elements parsed", path, ErrUnreadable)
	}
	return elements, nil
}

func addElement(h Header, elem *dicom.Element, nested bool) {
	if elem == nil || elem.Value == nil {
		return
	}

	switch elem.Value.ValueType() {
	case dicom.Sequences:
		items, _ := elem.Value.GetValue().([]*dicom.SequenceItemValue)
		for _, item := range items {
			children, _ := item.GetValue().([]*dicom.Element)
			for _, child := range children {
				addElement(h, child, true)
			}
		}
		return
	case dicom.Bytes, dicom.PixelData:
		return
	}

	name, ok := util.NameForTag(elem.Tag)
	if !ok {
		return
	}
	if nested {
		name = NestedKey(name)
	}

	switch v := elem.Value.GetValue().(type) {
	case []string:
		for _, s := range v {
			h[name] = append(h[name], strings.TrimRight(strings.TrimSpace(s), "\x00"))
		}
	case []int:
		for _, i := range v {
			h[name] = append(h[name], strconv.Itoa(i))
		}
	case []float64:
		for _, f := range v {
			h[name] = append(h[name], strconv.FormatFloat(f, 'g', -1, 64))
		}
	default:
		h[name] = append(h[name], strings.Trim(elem.Value.String(), " []"))
	}
}

package sorter

import (
	"fmt"
	"path"
	"strings"

	"github.com/mrsinham/dicombatch/internal/dicom"
	"github.com/mrsinham/dicombatch/internal/util"
	"golang.org/x/text/unicode/norm"
)

// DefaultLayout places every file under patient, study date and series
// description folders.
const DefaultLayout = "{PatientID}/{StudyDate}/{SeriesDescription}/{Modality}.{SeriesInstanceUID}.{InstanceNumber}.dcm"

// Missing replaces tags a file does not carry.
const Missing = "NA"

// Layout is a parsed destination template. Placeholders are DICOM keywords
// in braces; '/' separates directory levels.
type Layout struct {
	raw      string
	segments []segment
}

type segment struct {
	literal string
	keyword string // set for placeholders
}

// ParseLayout parses and validates a destination template. Unknown keywords
// are reported with the closest known name.
func ParseLayout(s string) (*Layout, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("layout is empty")
	}
	if strings.HasPrefix(s, "/") {
		return nil, fmt.Errorf("layout %q must be relative", s)
	}
	for _, part := range strings.Split(s, "/") {
		if part == "" || part == "." || part == ".." {
			return nil, fmt.Errorf("layout %q has an empty or relative path component", s)
		}
	}

	l := &Layout{raw: s}
	rest := s
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if strings.ContainsRune(rest, '}') {
				return nil, fmt.Errorf("layout %q has an unmatched '}'", s)
			}
			l.segments = append(l.segments, segment{literal: rest})
			break
		}
		if strings.ContainsRune(rest[:open], '}') {
			return nil, fmt.Errorf("layout %q has an unmatched '}'", s)
		}
		if open > 0 {
			l.segments = append(l.segments, segment{literal: rest[:open]})
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return nil, fmt.Errorf("layout %q has an unterminated placeholder", s)
		}
		name := rest[open+1 : open+end]
		if strings.ContainsAny(name, "{/") {
			return nil, fmt.Errorf("layout %q has a malformed placeholder %q", s, name)
		}
		info, err := util.GetTagByName(name)
		if err != nil {
			return nil, fmt.Errorf("layout placeholder: %w", err)
		}
		l.segments = append(l.segments, segment{keyword: info.Name})
		rest = rest[open+end+1:]
	}
	return l, nil
}

// MustParseLayout is ParseLayout for constant templates.
func MustParseLayout(s string) *Layout {
	l, err := ParseLayout(s)
	if err != nil {
		panic(err)
	}
	return l
}

// String returns the template.
func (l *Layout) String() string {
	return l.raw
}

// Keywords returns the placeholders in template order.
func (l *Layout) Keywords() []string {
	var out []string
	for _, seg := range l.segments {
		if seg.keyword != "" {
			out = append(out, seg.keyword)
		}
	}
	return out
}

// Render builds the slash-separated relative destination for a header.
func (l *Layout) Render(h dicom.Header) string {
	var b strings.Builder
	for _, seg := range l.segments {
		if seg.keyword == "" {
			b.WriteString(seg.literal)
			continue
		}
		b.WriteString(sanitize(h.Get(seg.keyword, Missing)))
	}
	return path.Clean(b.String())
}

var componentReplacer = strings.NewReplacer("/", "_", `\`, "_", "\x00", "")

// sanitize makes a tag value safe as (part of) a single path component.
func sanitize(value string) string {
	v := norm.NFC.String(strings.TrimSpace(value))
	v = componentReplacer.Replace(v)
	switch v {
	case "":
		return Missing
	case ".", "..":
		return strings.Repeat("_", len(v))
	}
	return v
}

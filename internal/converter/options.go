package converter

import (
	"fmt"
	"path"
	"strings"
)

// ExcludePrefix marks a structure pattern as an exclusion.
const ExcludePrefix = "!"

// Options are the conversion settings shared by every job of a run.
type Options struct {
	XYScalingFactor int  // >= 1
	CropMask        bool // crop the mask to the ROI bounding box
	ConvertOriginal bool // also write the image series as a volume
	// Structures are case-insensitive shell patterns evaluated in order; a
	// leading "!" excludes. Empty means every structure.
	Structures []string
}

// Validate checks the scaling factor and structure patterns.
func (o Options) Validate() error {
	if o.XYScalingFactor < 1 {
		return fmt.Errorf("xy scaling factor must be >= 1, got %d", o.XYScalingFactor)
	}
	for _, p := range o.Structures {
		glob, _ := splitPattern(p)
		if glob == "" {
			return fmt.Errorf("empty structure pattern %q", p)
		}
		if _, err := path.Match(glob, ""); err != nil {
			return fmt.Errorf("invalid structure pattern %q: %w", p, err)
		}
	}
	return nil
}

func (o Options) scalingFactor() int {
	if o.XYScalingFactor < 1 {
		return 1
	}
	return o.XYScalingFactor
}

// ResolveStructures applies the structure patterns to roiNames and returns
// the selected names in ROI order. The last pattern matching a name decides
// whether it is kept. Names no pattern matches are kept only when every
// pattern is an exclusion. With no patterns it returns nil, meaning all.
func (o Options) ResolveStructures(roiNames []string) []string {
	if len(o.Structures) == 0 {
		return nil
	}

	defaultKeep := true
	for _, p := range o.Structures {
		if _, exclude := splitPattern(p); !exclude {
			defaultKeep = false
			break
		}
	}

	seen := map[string]bool{}
	selected := []string{}
	for _, name := range roiNames {
		if seen[name] {
			continue
		}
		seen[name] = true

		keep := defaultKeep
		for _, p := range o.Structures {
			glob, exclude := splitPattern(p)
			if ok, _ := path.Match(strings.ToLower(glob), strings.ToLower(name)); ok {
				keep = !exclude
			}
		}
		if keep {
			selected = append(selected, name)
		}
	}
	return selected
}

func splitPattern(p string) (glob string, exclude bool) {
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, ExcludePrefix) {
		return strings.TrimSpace(strings.TrimPrefix(p, ExcludePrefix)), true
	}
	return p, false
}

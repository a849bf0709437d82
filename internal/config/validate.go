package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mrsinham/dicombatch/internal/checkpoint"
	"github.com/mrsinham/dicombatch/internal/converter"
	"github.com/mrsinham/dicombatch/internal/dicom/modalities"
	"github.com/mrsinham/dicombatch/internal/discovery"
	"github.com/mrsinham/dicombatch/internal/pairing"
	"github.com/mrsinham/dicombatch/internal/seriesindex"
	"github.com/mrsinham/dicombatch/internal/sorter"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

// Validate checks the log settings.
func (c *LogConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid("log.level must be one of debug, info, warn, error, got %q", c.Level)
	}
	switch strings.ToLower(strings.TrimSpace(c.Format)) {
	case "", "console", "json", "auto":
	default:
		return invalid("log.format must be one of console, json, auto, got %q", c.Format)
	}
	return nil
}

// Validate checks the sort settings, including the layout placeholders.
func (c *SortConfig) Validate() error {
	if c.Source == "" {
		return invalid("sort.source is required")
	}
	if c.Output == "" {
		return invalid("sort.output is required")
	}
	if c.Workers <= 0 {
		return invalid("sort.workers must be > 0, got %d", c.Workers)
	}
	if _, err := sorter.ParseLayout(c.Layout); err != nil {
		return invalid("sort.layout: %v", err)
	}
	if _, err := discovery.ParseFilter(c.Filter); err != nil {
		return invalid("sort.filter: %v", err)
	}
	return nil
}

// Validate checks the convert settings.
func (c *ConvertConfig) Validate() error {
	if c.Source == "" && c.Checkpoint == "" {
		return invalid("convert.source is required unless a checkpoint is given")
	}
	if c.Output == "" {
		return invalid("convert.output is required")
	}
	if c.Workers <= 0 {
		return invalid("convert.workers must be > 0, got %d", c.Workers)
	}
	if err := c.ConverterOptions().Validate(); err != nil {
		return invalid("convert: %v", err)
	}
	if _, err := c.Modalities(); err != nil {
		return invalid("convert.image_modalities: %v", err)
	}

	mode, err := pairing.ParseMode(c.PairingMode)
	if err != nil {
		return invalid("convert.pairing_mode: %v", err)
	}
	if _, err := pairing.ParseMatchPolicy(c.Match); err != nil {
		return invalid("convert.match: %v", err)
	}
	if _, err := seriesindex.ParsePolicy(c.Collision); err != nil {
		return invalid("convert.collision: %v", err)
	}
	if c.Levels < 1 {
		return invalid("convert.levels must be >= 1, got %d", c.Levels)
	}
	if _, err := discovery.ParseFilter(c.Filter); err != nil {
		return invalid("convert.filter: %v", err)
	}
	if _, err := converter.ParseKind(c.Converter); err != nil {
		return invalid("convert.converter: %v", err)
	}
	if _, err := c.TimeoutDuration(); err != nil {
		return invalid("convert.timeout: %v", err)
	}

	if c.Checkpoint != "" {
		format, err := checkpoint.FormatFor(c.Checkpoint)
		if err != nil {
			return invalid("convert.checkpoint: %v", err)
		}
		if mode == pairing.ModeIndex && format != checkpoint.FormatCSV {
			return invalid("convert.checkpoint: index pairing needs the CSV record checkpoint, got %s", c.Checkpoint)
		}
	}
	return nil
}

// ConverterOptions returns the per-job conversion options.
func (c *ConvertConfig) ConverterOptions() converter.Options {
	return converter.Options{
		XYScalingFactor: c.XYScalingFactor,
		CropMask:        c.CropMask,
		ConvertOriginal: c.ConvertOriginal,
		Structures:      c.Structures,
	}
}

// Modalities parses ImageModalities. RTSTRUCT is not an image modality.
func (c *ConvertConfig) Modalities() ([]modalities.Modality, error) {
	list, err := modalities.ParseList(strings.Join(c.ImageModalities, ","))
	if err != nil {
		return nil, err
	}
	for _, m := range list {
		if !m.IsImage() {
			return nil, fmt.Errorf("%s is not an image modality", m)
		}
	}
	return list, nil
}

// TimeoutDuration parses Timeout. Empty means no timeout.
func (c *ConvertConfig) TimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(c.Timeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative, got %s", c.Timeout)
	}
	return d, nil
}

// Package config holds the explicit run configuration shared by every
// command. Values come from Default, an optional YAML or TOML file and
// finally command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/mrsinham/dicombatch/internal/converter"
	"github.com/mrsinham/dicombatch/internal/discovery"
	"github.com/mrsinham/dicombatch/internal/pairing"
	"github.com/mrsinham/dicombatch/internal/seriesindex"
	"github.com/mrsinham/dicombatch/internal/sorter"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete configuration.
type Config struct {
	Sort    SortConfig    `yaml:"sort" toml:"sort"`
	Convert ConvertConfig `yaml:"convert" toml:"convert"`
	Log     LogConfig     `yaml:"log" toml:"log"`
}

// SortConfig configures the sort command.
type SortConfig struct {
	Source         string `yaml:"source" toml:"source"`
	Output         string `yaml:"output" toml:"output"`
	Workers        int    `yaml:"workers" toml:"workers"`
	Link           bool   `yaml:"link" toml:"link"`
	Layout         string `yaml:"layout" toml:"layout"`
	Filter         string `yaml:"filter" toml:"filter"`
	FollowSymlinks bool   `yaml:"follow_symlinks" toml:"follow_symlinks"`
	ErrorLog       string `yaml:"error_log,omitempty" toml:"error_log,omitempty"` // default <output>/sort_errors.log
}

// ConvertConfig configures the convert command.
type ConvertConfig struct {
	Source          string   `yaml:"source" toml:"source"`
	Output          string   `yaml:"output" toml:"output"`
	Workers         int      `yaml:"workers" toml:"workers"`
	XYScalingFactor int      `yaml:"xy_scaling_factor" toml:"xy_scaling_factor"`
	CropMask        bool     `yaml:"crop_mask" toml:"crop_mask"`
	ConvertOriginal bool     `yaml:"convert_original" toml:"convert_original"`
	ApprovedOnly    bool     `yaml:"approved_only" toml:"approved_only"`
	Structures      []string `yaml:"structures,omitempty" toml:"structures,omitempty"`
	ImageModalities []string `yaml:"image_modalities" toml:"image_modalities"`

	// Checkpoint is read when present and written otherwise. Empty means
	// <output>/rtstruct_paths.json in proximity mode and
	// <output>/dicom_index.csv in index mode.
	Checkpoint  string `yaml:"checkpoint,omitempty" toml:"checkpoint,omitempty"`
	PairingMode string `yaml:"pairing_mode" toml:"pairing_mode"`
	Levels      int    `yaml:"levels" toml:"levels"`
	Match       string `yaml:"match" toml:"match"`
	Collision   string `yaml:"collision" toml:"collision"`

	Filter         string `yaml:"filter" toml:"filter"`
	FollowSymlinks bool   `yaml:"follow_symlinks" toml:"follow_symlinks"`

	Timeout         string `yaml:"timeout,omitempty" toml:"timeout,omitempty"` // Go duration, empty for none
	SkipExisting    bool   `yaml:"skip_existing" toml:"skip_existing"`
	Converter       string `yaml:"converter" toml:"converter"`
	ConverterBinary string `yaml:"converter_binary" toml:"converter_binary"`
	ErrorLog        string `yaml:"error_log,omitempty" toml:"error_log,omitempty"` // default <output>/conversion_errors.log
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // console, json or auto
	File   string `yaml:"file,omitempty" toml:"file,omitempty"`
}

// Default returns the configuration used when nothing else is given.
func Default() Config {
	return Config{
		Sort: SortConfig{
			Workers: runtime.NumCPU(),
			Layout:  sorter.DefaultLayout,
			Filter:  string(discovery.FilterExtension),
		},
		Convert: ConvertConfig{
			Workers:         runtime.NumCPU(),
			XYScalingFactor: 1,
			ImageModalities: []string{"CT", "MR"},
			PairingMode:     string(pairing.ModeIndex),
			Levels:          pairing.DefaultLevels,
			Match:           string(pairing.MatchStrict),
			Collision:       string(seriesindex.PolicySmallest),
			Filter:          string(discovery.FilterExtension),
			Converter:       string(converter.KindExec),
			ConverterBinary: converter.DefaultBinary,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads a YAML (.yaml, .yml) or TOML (.toml) file over Default.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: config file %s must end in .yaml, .yml or .toml", ErrInvalid, path)
	}

	return &cfg, nil
}

// Save writes cfg as TOML when path ends in .toml and as YAML otherwise.
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		data, err = toml.Marshal(c)
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

package wizard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mrsinham/dicombatch/internal/config"
)

// DefaultConfigPath is where the wizard offers to save.
const DefaultConfigPath = "dicombatch.yaml"

// FromConfig fills a State from cfg for the given command.
func FromConfig(cfg config.Config, command string) *State {
	if command != CommandSort {
		command = CommandConvert
	}
	s := &State{Command: command, ConfigPath: DefaultConfigPath}

	c := cfg.Convert
	s.PairingMode = c.PairingMode
	s.Match = c.Match
	s.ApprovedOnly = c.ApprovedOnly
	s.XYScaling = strconv.Itoa(c.XYScalingFactor)
	s.CropMask = c.CropMask
	s.ConvertOriginal = c.ConvertOriginal
	s.Structures = strings.Join(c.Structures, ", ")
	s.Converter = c.Converter
	s.Timeout = c.Timeout
	s.SkipExisting = c.SkipExisting

	s.Link = cfg.Sort.Link
	s.Layout = cfg.Sort.Layout

	if command == CommandSort {
		s.Source, s.Output, s.Workers = cfg.Sort.Source, cfg.Sort.Output, strconv.Itoa(cfg.Sort.Workers)
	} else {
		s.Source, s.Output, s.Workers = c.Source, c.Output, strconv.Itoa(c.Workers)
	}
	return s
}

// ToConfig applies the answers on top of base and validates the section the
// wizard configured.
func ToConfig(s *State, base config.Config) (config.Config, error) {
	cfg := base

	workers, err := parsePositive("workers", s.Workers)
	if err != nil {
		return cfg, err
	}

	switch s.Command {
	case CommandSort:
		cfg.Sort.Source = strings.TrimSpace(s.Source)
		cfg.Sort.Output = strings.TrimSpace(s.Output)
		cfg.Sort.Workers = workers
		cfg.Sort.Link = s.Link
		if layout := strings.TrimSpace(s.Layout); layout != "" {
			cfg.Sort.Layout = layout
		}
		if err := cfg.Sort.Validate(); err != nil {
			return cfg, err
		}

	case CommandConvert:
		scaling, err := parsePositive("xy scaling factor", s.XYScaling)
		if err != nil {
			return cfg, err
		}
		c := &cfg.Convert
		c.Source = strings.TrimSpace(s.Source)
		c.Output = strings.TrimSpace(s.Output)
		c.Workers = workers
		c.PairingMode = s.PairingMode
		c.Match = s.Match
		c.ApprovedOnly = s.ApprovedOnly
		c.XYScalingFactor = scaling
		c.CropMask = s.CropMask
		c.ConvertOriginal = s.ConvertOriginal
		c.Structures = splitList(s.Structures)
		c.Converter = s.Converter
		c.Timeout = strings.TrimSpace(s.Timeout)
		c.SkipExisting = s.SkipExisting
		if err := c.Validate(); err != nil {
			return cfg, err
		}

	default:
		return cfg, fmt.Errorf("%w: unknown command %q", config.ErrInvalid, s.Command)
	}
	return cfg, nil
}

func parsePositive(name, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number, got %q", config.ErrInvalid, name, value)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %s must be greater than 0", config.ErrInvalid, name)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Normalize expands "~" and makes every path absolute.
func (c *Config) Normalize() error {
	fields := []struct {
		name  string
		value *string
	}{
		{"sort.source", &c.Sort.Source},
		{"sort.output", &c.Sort.Output},
		{"sort.error_log", &c.Sort.ErrorLog},
		{"convert.source", &c.Convert.Source},
		{"convert.output", &c.Convert.Output},
		{"convert.checkpoint", &c.Convert.Checkpoint},
		{"convert.error_log", &c.Convert.ErrorLog},
		{"log.file", &c.Log.File},
	}
	for _, f := range fields {
		expanded, err := ExpandPath(*f.value)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = expanded
	}

	c.Convert.PairingMode = strings.ToLower(strings.TrimSpace(c.Convert.PairingMode))
	c.Convert.Match = strings.ToLower(strings.TrimSpace(c.Convert.Match))
	c.Convert.Collision = strings.ToLower(strings.TrimSpace(c.Convert.Collision))
	c.Convert.Converter = strings.ToLower(strings.TrimSpace(c.Convert.Converter))
	c.Convert.Filter = strings.ToLower(strings.TrimSpace(c.Convert.Filter))
	c.Sort.Filter = strings.ToLower(strings.TrimSpace(c.Sort.Filter))
	for i, m := range c.Convert.ImageModalities {
		c.Convert.ImageModalities[i] = strings.ToUpper(strings.TrimSpace(m))
	}
	return nil
}

// ExpandPath expands a leading "~" and returns an absolute, cleaned path.
// The empty string is returned unchanged.
func ExpandPath(pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

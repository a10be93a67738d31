package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Load reads settings from a TOML file, applies BUILDIUM_* overrides from
// the process environment, and validates the result.
// An empty path skips the file and starts from Default.
func Load(path string) (Settings, error) {
	return LoadWithEnv(path, os.Environ())
}

// LoadWithEnv is Load with an explicit environment.
func LoadWithEnv(path string, environ []string) (Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return s, fmt.Errorf("%w: %s", ErrFileNotFound, path)
			}
			return s, fmt.Errorf("reading settings %s: %w", path, err)
		}
		if err := Decode(data, &s); err != nil {
			return s, fmt.Errorf("parsing settings %s: %w", path, err)
		}
	}

	if err := ApplyEnv(&s, environ); err != nil {
		return s, err
	}

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Decode overlays TOML data onto s. Keys absent from data keep their value.
func Decode(data []byte, s *Settings) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(s)
}

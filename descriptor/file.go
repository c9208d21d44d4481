package descriptor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Load reads a descriptor file. Files ending in .toml are parsed as TOML,
// everything else as JSON.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("descriptor: read %s: %w", path, err)
	}
	if isTOML(path) {
		return UnmarshalTOML(data)
	}
	return Unmarshal(data)
}

// Save writes d to path in the format its extension selects.
func Save(path string, d *Descriptor) error {
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = MarshalTOML(d)
	} else {
		data, err = Marshal(d)
	}
	if err != nil {
		return fmt.Errorf("descriptor: encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("descriptor: write %s: %w", path, err)
	}
	return nil
}

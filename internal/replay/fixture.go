package replay

import (
	"encoding/json"
	"fmt"
	"os"
)

// #region fixture-types
// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string `json:"description"`
	Cases       []Case `json:"cases"`
}

// #endregion fixture-types

// #region fixture-io
// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture writes f as indented JSON, skipping cases without output.
func WriteFixture(path string, f Fixture) error {
	kept := f
	kept.Cases = make([]Case, 0, len(f.Cases))
	for _, c := range f.Cases {
		if len(c.Output) > 0 {
			kept.Cases = append(kept.Cases, c)
		}
	}
	data, err := json.MarshalIndent(kept, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// #endregion fixture-io

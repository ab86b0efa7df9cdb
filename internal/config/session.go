package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/trellisviz/trellis/internal/core/domain"
)

// SessionFile is the operator-controlled bootstrap for one exploration
// session: which dataset columns to hide, how large the synthetic dataset
// should be, and which scatter views to open at startup.
type SessionFile struct {
	Name           string         `yaml:"name"`
	ExcludeColumns []string       `yaml:"exclude_columns"`
	Generator      *GeneratorSeed `yaml:"generator"`
	Scatters       []ScatterSeed  `yaml:"scatters"`
}

// GeneratorSeed overrides the synthetic generator's size and seed.
type GeneratorSeed struct {
	Rows int    `yaml:"rows"`
	Seed uint64 `yaml:"seed"`
}

// ScatterSeed describes one scatter view to configure at startup. Zero
// values defer to the engine defaults; column references are validated
// against the dataset when the view is configured, not here.
type ScatterSeed struct {
	X           string  `yaml:"x"`
	Y           string  `yaml:"y"`
	SizeColumn  string  `yaml:"size_column"`
	MinSize     float64 `yaml:"min_size"`
	MaxSize     float64 `yaml:"max_size"`
	Gamma       float64 `yaml:"gamma"`
	ColorColumn string  `yaml:"color_column"`
	Palette     string  `yaml:"palette"`
}

// Spec converts the seed into an engine scatter spec.
func (s ScatterSeed) Spec() domain.ScatterSpec {
	return domain.ScatterSpec{
		X:           s.X,
		Y:           s.Y,
		SizeColumn:  s.SizeColumn,
		MinSize:     s.MinSize,
		MaxSize:     s.MaxSize,
		Gamma:       s.Gamma,
		ColorColumn: s.ColorColumn,
		Palette:     s.Palette,
	}
}

// LoadSessionFile reads a YAML session file and returns its validated form.
func LoadSessionFile(path string) (*SessionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}

	var sf SessionFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing session YAML: %w", err)
	}

	if err := validateSession(&sf); err != nil {
		return nil, fmt.Errorf("validating session file: %w", err)
	}

	return &sf, nil
}

func validateSession(sf *SessionFile) error {
	for i, col := range sf.ExcludeColumns {
		if col == "" {
			return fmt.Errorf("exclude_columns[%d] is empty", i)
		}
	}
	if g := sf.Generator; g != nil && g.Rows < 0 {
		return fmt.Errorf("generator.rows must not be negative")
	}
	for i, sc := range sf.Scatters {
		if sc.X == "" || sc.Y == "" {
			return fmt.Errorf("scatters[%d]: x and y are required", i)
		}
		if sc.MinSize < 0 || sc.MaxSize < 0 || sc.Gamma < 0 {
			return fmt.Errorf("scatters[%d]: sizes and gamma must not be negative", i)
		}
	}
	return nil
}

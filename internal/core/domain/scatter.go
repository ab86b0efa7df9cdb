package domain

import (
	"fmt"
	"math"
)

// ColorMode selects how a scatter view maps its color column to colors.
type ColorMode string

const (
	ColorContinuous ColorMode = "continuous"
	ColorDiscrete   ColorMode = "discrete"
)

// Scatter defaults, applied when a spec leaves the field zero.
// DefaultPointSize is the fixed dot size of views with no size column.
const (
	DefaultMinSize   = 5.0
	DefaultMaxSize   = 20.0
	DefaultGamma     = 1.0
	DefaultPalette   = "viridis"
	DefaultPointSize = 10.0
)

// Palettes is the stock list offered to clients. Palette names are opaque
// to the engine: any identifier passes through, resolution happens in the
// rendering layer.
var Palettes = []string{
	"viridis", "plasma", "inferno", "magma", "cividis",
	"Spectral", "RdYlBu", "RdBu", "coolwarm",
	"Set1", "Set2", "Set3",
}

// ScatterSpec configures one scatter view over the shared dataset. X and Y
// are required and may name any dataset column; string-backed axes plot
// their labels. SizeColumn, when set, must be a numeric column; its values
// map into [MinSize, MaxSize] through a gamma curve. ColorColumn is any
// column; ColorMode left empty derives from the color column's kind.
type ScatterSpec struct {
	ID          string    `json:"id"`
	X           string    `json:"x"`
	Y           string    `json:"y"`
	SizeColumn  string    `json:"size_column,omitempty"`
	MinSize     float64   `json:"min_size"`
	MaxSize     float64   `json:"max_size"`
	Gamma       float64   `json:"gamma"`
	ColorColumn string    `json:"color_column,omitempty"`
	Palette     string    `json:"palette"`
	ColorMode   ColorMode `json:"color_mode,omitempty"`
}

// ScatterPoint is one render-ready dot: coordinates, sized and labelled per
// the spec, with the shared-selection flag resolved. X and Y carry float64
// for float-backed axes and the raw label for string-backed ones.
type ScatterPoint struct {
	RowID    int64   `json:"row_id"`
	X        any     `json:"x"`
	Y        any     `json:"y"`
	Size     float64 `json:"size"`
	Color    string  `json:"color,omitempty"`
	Selected bool    `json:"selected"`
}

// ValidateScatter checks a spec against the dataset's profiles and returns
// its normalized form with defaults and the derived color mode filled in.
// The input spec is not modified; on error nothing is usable, so callers
// keep whatever spec they held before.
func ValidateScatter(spec ScatterSpec, ds *Dataset, profiles map[string]ColumnProfile) (ScatterSpec, error) {
	for _, axis := range [...]string{spec.X, spec.Y} {
		if _, ok := ds.Column(axis); !ok {
			return ScatterSpec{}, fmt.Errorf("%w: axis %q", ErrUnknownColumn, axis)
		}
	}

	if spec.MinSize == 0 {
		spec.MinSize = DefaultMinSize
	}
	if spec.MaxSize == 0 {
		spec.MaxSize = DefaultMaxSize
	}
	if spec.Gamma == 0 {
		spec.Gamma = DefaultGamma
	}
	if spec.MinSize < 0 || spec.MinSize > spec.MaxSize {
		return ScatterSpec{}, fmt.Errorf("%w: size range [%v, %v]", ErrOutOfDomain, spec.MinSize, spec.MaxSize)
	}
	if spec.Gamma < 0 {
		return ScatterSpec{}, fmt.Errorf("%w: gamma %v", ErrOutOfDomain, spec.Gamma)
	}

	if spec.SizeColumn != "" {
		p, ok := profiles[spec.SizeColumn]
		if !ok {
			return ScatterSpec{}, fmt.Errorf("%w: size column %q", ErrUnknownColumn, spec.SizeColumn)
		}
		if p.Kind != KindNumeric {
			return ScatterSpec{}, fmt.Errorf("%w: %q is %s", ErrInvalidSizeColumn, spec.SizeColumn, p.Kind)
		}
	}

	if spec.Palette == "" {
		spec.Palette = DefaultPalette
	}

	if spec.ColorColumn != "" {
		p, ok := profiles[spec.ColorColumn]
		if !ok {
			return ScatterSpec{}, fmt.Errorf("%w: color column %q", ErrUnknownColumn, spec.ColorColumn)
		}
		switch spec.ColorMode {
		case "":
			if p.Kind == KindNumeric {
				spec.ColorMode = ColorContinuous
			} else {
				spec.ColorMode = ColorDiscrete
			}
		case ColorDiscrete:
		case ColorContinuous:
			if p.Kind != KindNumeric {
				return ScatterSpec{}, fmt.Errorf("%w: continuous over %s column %q",
					ErrInvalidColorMode, p.Kind, spec.ColorColumn)
			}
		default:
			return ScatterSpec{}, fmt.Errorf("%w: %q", ErrInvalidColorMode, spec.ColorMode)
		}
	} else {
		spec.ColorMode = ""
	}

	return spec, nil
}

// PointSize maps a raw size-column value into [MinSize, MaxSize]: the value
// is normalized against the column's observed range and shaped by the gamma
// exponent. A degenerate range yields MinSize for every value.
func (s ScatterSpec) PointSize(v, colMin, colMax float64) float64 {
	if colMax <= colMin {
		return s.MinSize
	}
	t := (v - colMin) / (colMax - colMin)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return s.MinSize + (s.MaxSize-s.MinSize)*math.Pow(t, s.Gamma)
}

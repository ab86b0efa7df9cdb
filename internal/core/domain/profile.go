package domain

import "sort"

// ColumnKind classifies how a column is filtered and summarized.
type ColumnKind string

const (
	KindNumeric     ColumnKind = "numeric"
	KindCategorical ColumnKind = "categorical"
	KindText        ColumnKind = "text"
)

// CardinalityThreshold is the distinct-count boundary between enum-like and
// free-form columns. Columns with fewer distinct values are categorical
// regardless of their physical type.
const CardinalityThreshold = 10

// Widget names the input control a UI should render for a filter on the
// column.
type Widget string

const (
	WidgetRangeSlider Widget = "range_slider"
	WidgetMultiSelect Widget = "multi_select"
	WidgetRegexInput  Widget = "regex_input"
)

// ColumnProfile is the one-time classification of a column: its kind, the
// suggested filter widget, and the observed value domain that bounds filter
// parameters. Missing values are excluded from every observed statistic.
type ColumnProfile struct {
	Name          string
	Kind          ColumnKind
	Widget        Widget
	DistinctCount int
	NonMissing    int
	Min           float64  // numeric kind only
	Max           float64  // numeric kind only
	Values        []string // categorical kind only, canonical form, sorted
}

// SkippedColumn records a column the profiler refused to classify, with the
// reason a UI can surface.
type SkippedColumn struct {
	Name   string
	Reason string
}

// ProfileColumn classifies a single column:
//
//   - fewer than CardinalityThreshold distinct values: categorical,
//     whatever the physical type
//   - float-backed otherwise: numeric
//   - string-backed otherwise: text
//
// A column with zero non-missing values cannot be classified and returns
// ErrInvalidColumn. An absent column returns ErrUnknownColumn.
func ProfileColumn(ds *Dataset, name string) (ColumnProfile, error) {
	col, ok := ds.Column(name)
	if !ok {
		return ColumnProfile{}, ErrUnknownColumn
	}

	distinct := make(map[string]struct{})
	nonMissing := 0
	minV, maxV := 0.0, 0.0
	for i := range col.Len() {
		if col.Missing(i) {
			continue
		}
		if col.Type() == ColumnFloat {
			v := col.Float(i)
			if nonMissing == 0 || v < minV {
				minV = v
			}
			if nonMissing == 0 || v > maxV {
				maxV = v
			}
		}
		nonMissing++
		distinct[col.Canonical(i)] = struct{}{}
	}
	if nonMissing == 0 {
		return ColumnProfile{}, ErrInvalidColumn
	}

	p := ColumnProfile{
		Name:          name,
		DistinctCount: len(distinct),
		NonMissing:    nonMissing,
	}
	switch {
	case len(distinct) < CardinalityThreshold:
		p.Kind = KindCategorical
		p.Widget = WidgetMultiSelect
		p.Values = make([]string, 0, len(distinct))
		for v := range distinct {
			p.Values = append(p.Values, v)
		}
		sort.Strings(p.Values)
	case col.Type() == ColumnFloat:
		p.Kind = KindNumeric
		p.Widget = WidgetRangeSlider
		p.Min = minV
		p.Max = maxV
	default:
		p.Kind = KindText
		p.Widget = WidgetRegexInput
	}
	return p, nil
}

// ProfileDataset classifies every column, partitioning them into a profile
// map and a skipped list. Skipped columns stay visible to callers (greyed
// out in a UI) but cannot carry filters.
func ProfileDataset(ds *Dataset) (map[string]ColumnProfile, []SkippedColumn) {
	profiles := make(map[string]ColumnProfile, len(ds.Columns()))
	var skipped []SkippedColumn
	for _, name := range ds.Columns() {
		p, err := ProfileColumn(ds, name)
		if err != nil {
			skipped = append(skipped, SkippedColumn{Name: name, Reason: "no non-missing values"})
			continue
		}
		profiles[name] = p
	}
	return profiles, skipped
}

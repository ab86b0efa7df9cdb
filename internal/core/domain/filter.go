package domain

import (
	"fmt"
	"regexp"
)

// FilterParams is the kind-specific parameter set of a filter. Exactly one
// variant exists per ColumnKind; dispatch is by type switch.
type FilterParams interface {
	Kind() ColumnKind
}

// NumericRange keeps rows whose value lies in the inclusive [Low, High]
// interval. Missing values never match.
type NumericRange struct {
	Low  float64
	High float64
}

func (NumericRange) Kind() ColumnKind { return KindNumeric }

// CategorySet keeps rows whose value, in canonical string form, is one of
// Values. Missing values never match a non-empty set. The empty set is the
// inactive state: it matches every row, missing included, like TextPattern's
// empty pattern.
type CategorySet struct {
	Values []string
}

func (CategorySet) Kind() ColumnKind { return KindCategorical }

// TextPattern keeps rows whose value contains a case-insensitive match of
// Pattern anywhere. The empty pattern is the inactive state: it matches
// every row, missing included. Any other pattern never matches missing
// values.
type TextPattern struct {
	Pattern string
}

func (TextPattern) Kind() ColumnKind { return KindText }

// FilterSpec is one element of the filter conjunction. ID and Seq are
// assigned once and survive parameter updates; Seq orders filters by
// insertion and is never reused, so removing a filter leaves the remaining
// order intact.
//
// A spec is bound to its dataset column at construction and evaluates rows
// without further lookups. Specs are immutable: updates produce a new spec
// via WithParams.
type FilterSpec struct {
	ID     string
	Column string
	Kind   ColumnKind
	Seq    int
	Params FilterParams

	profile ColumnProfile
	col     *Column
	set     map[string]struct{}
	re      *regexp.Regexp
}

// NewFilter binds params to a column of ds. The profile must describe that
// column. Fails with ErrParamsMismatch when the params variant does not
// match the column kind, ErrOutOfDomain when parameters fall outside the
// observed domain, or ErrInvalidPattern when a text pattern does not
// compile.
func NewFilter(ds *Dataset, profile ColumnProfile, id string, seq int, params FilterParams) (*FilterSpec, error) {
	col, ok := ds.Column(profile.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, profile.Name)
	}
	f := &FilterSpec{
		ID:      id,
		Column:  profile.Name,
		Kind:    profile.Kind,
		Seq:     seq,
		profile: profile,
		col:     col,
	}
	if err := f.bind(params); err != nil {
		return nil, err
	}
	return f, nil
}

// DefaultParams builds the pass-through parameters for a column: the full
// observed range, every observed category, or the empty pattern. A filter
// created with them matches every row the column has a value for (every
// row outright for text).
func DefaultParams(profile ColumnProfile) FilterParams {
	switch profile.Kind {
	case KindNumeric:
		return NumericRange{Low: profile.Min, High: profile.Max}
	case KindCategorical:
		values := make([]string, len(profile.Values))
		copy(values, profile.Values)
		return CategorySet{Values: values}
	default:
		return TextPattern{}
	}
}

// WithParams returns a copy of the spec carrying new validated parameters.
// The receiver is never modified, so a failed update leaves the previous
// parameters in effect.
func (f *FilterSpec) WithParams(params FilterParams) (*FilterSpec, error) {
	next := &FilterSpec{
		ID:      f.ID,
		Column:  f.Column,
		Kind:    f.Kind,
		Seq:     f.Seq,
		profile: f.profile,
		col:     f.col,
	}
	if err := next.bind(params); err != nil {
		return nil, err
	}
	return next, nil
}

// bind validates params against the column profile and prepares the
// evaluation state.
func (f *FilterSpec) bind(params FilterParams) error {
	if params.Kind() != f.Kind {
		return fmt.Errorf("%w: column %q is %s, params are %s",
			ErrParamsMismatch, f.Column, f.Kind, params.Kind())
	}
	switch p := params.(type) {
	case NumericRange:
		if p.Low > p.High {
			return fmt.Errorf("%w: low %v above high %v", ErrOutOfDomain, p.Low, p.High)
		}
		if p.Low < f.profile.Min || p.High > f.profile.Max {
			return fmt.Errorf("%w: [%v, %v] outside observed [%v, %v] of %q",
				ErrOutOfDomain, p.Low, p.High, f.profile.Min, f.profile.Max, f.Column)
		}
	case CategorySet:
		observed := make(map[string]struct{}, len(f.profile.Values))
		for _, v := range f.profile.Values {
			observed[v] = struct{}{}
		}
		set := make(map[string]struct{}, len(p.Values))
		for _, v := range p.Values {
			if _, ok := observed[v]; !ok {
				return fmt.Errorf("%w: %q is not an observed value of %q", ErrOutOfDomain, v, f.Column)
			}
			set[v] = struct{}{}
		}
		f.set = set
	case TextPattern:
		re, err := compilePattern(p.Pattern)
		if err != nil {
			return err
		}
		f.re = re
	}
	f.Params = params
	return nil
}

// Matches evaluates the filter's predicate against one row.
func (f *FilterSpec) Matches(row int) bool {
	switch p := f.Params.(type) {
	case NumericRange:
		if f.col.Missing(row) {
			return false
		}
		v := f.col.Float(row)
		return v >= p.Low && v <= p.High
	case CategorySet:
		if len(f.set) == 0 {
			return true
		}
		if f.col.Missing(row) {
			return false
		}
		_, ok := f.set[f.col.Canonical(row)]
		return ok
	case TextPattern:
		if f.re == nil {
			return true
		}
		if f.col.Missing(row) {
			return false
		}
		return f.re.MatchString(f.col.String(row))
	}
	return false
}

// compilePattern compiles an unanchored case-insensitive pattern. The empty
// pattern compiles to nil.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidPattern, pattern, err)
	}
	return re, nil
}

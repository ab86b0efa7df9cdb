package domain

import (
	"fmt"
	"math"
	"strconv"
)

// ColumnType is the physical backing of a dataset column. Every column is
// stored as either float64 or string; richer source types (integers, dates,
// booleans) are converted at load time.
type ColumnType string

const (
	ColumnFloat  ColumnType = "float"
	ColumnString ColumnType = "string"
)

// Column is one immutable column of a Dataset. Missing values are NaN for
// float columns and the empty string for string columns.
type Column struct {
	name    string
	typ     ColumnType
	floats  []float64
	strings []string
}

// NumberColumn builds a float-backed column. The slice is owned by the
// column after the call.
func NumberColumn(name string, values []float64) *Column {
	return &Column{name: name, typ: ColumnFloat, floats: values}
}

// StringColumn builds a string-backed column. The slice is owned by the
// column after the call.
func StringColumn(name string, values []string) *Column {
	return &Column{name: name, typ: ColumnString, strings: values}
}

func (c *Column) Name() string { return c.name }

func (c *Column) Type() ColumnType { return c.typ }

func (c *Column) Len() int {
	if c.typ == ColumnFloat {
		return len(c.floats)
	}
	return len(c.strings)
}

// Float returns the value at row i. Only meaningful for float columns.
func (c *Column) Float(i int) float64 { return c.floats[i] }

// String returns the value at row i. Only meaningful for string columns.
func (c *Column) String(i int) string { return c.strings[i] }

// Missing reports whether row i holds no value.
func (c *Column) Missing(i int) bool {
	if c.typ == ColumnFloat {
		return math.IsNaN(c.floats[i])
	}
	return c.strings[i] == ""
}

// Value returns the cell as a dynamically typed value: float64, string, or
// nil when missing.
func (c *Column) Value(i int) any {
	if c.Missing(i) {
		return nil
	}
	if c.typ == ColumnFloat {
		return c.floats[i]
	}
	return c.strings[i]
}

// Canonical renders the cell in its canonical string form: the raw string
// for string columns, strconv 'g' formatting for float columns. Category
// membership and color labels compare in this form.
func (c *Column) Canonical(i int) string {
	if c.typ == ColumnString {
		return c.strings[i]
	}
	return strconv.FormatFloat(c.floats[i], 'g', -1, 64)
}

// Dataset is an immutable columnar snapshot of the table under exploration.
// Row identity is positional and permanent: row i carries id int64(i),
// assigned once at load and never reused or renumbered, so masks and
// selections built against it stay valid for the dataset's lifetime.
type Dataset struct {
	name    string
	rows    int
	order   []string
	columns map[string]*Column
}

// NewDataset assembles columns into a dataset. All columns must have the
// same length and distinct names.
func NewDataset(name string, cols ...*Column) (*Dataset, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("dataset %q has no columns", name)
	}
	ds := &Dataset{
		name:    name,
		rows:    cols[0].Len(),
		order:   make([]string, 0, len(cols)),
		columns: make(map[string]*Column, len(cols)),
	}
	for _, c := range cols {
		if c.Len() != ds.rows {
			return nil, fmt.Errorf("column %q has %d rows, want %d", c.name, c.Len(), ds.rows)
		}
		if _, dup := ds.columns[c.name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.name)
		}
		ds.order = append(ds.order, c.name)
		ds.columns[c.name] = c
	}
	return ds, nil
}

// Without returns a dataset hiding the named columns. Columns are shared
// with the receiver and row identity is unchanged, so masks and selections
// built against either dataset stay valid for both.
func (ds *Dataset) Without(names ...string) (*Dataset, error) {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := ds.columns[n]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, n)
		}
		drop[n] = struct{}{}
	}
	kept := make([]*Column, 0, len(ds.order))
	for _, n := range ds.order {
		if _, skip := drop[n]; !skip {
			kept = append(kept, ds.columns[n])
		}
	}
	return NewDataset(ds.name, kept...)
}

func (ds *Dataset) Name() string { return ds.name }

func (ds *Dataset) Rows() int { return ds.rows }

// Columns returns the column names in load order.
func (ds *Dataset) Columns() []string {
	out := make([]string, len(ds.order))
	copy(out, ds.order)
	return out
}

// Column looks a column up by name.
func (ds *Dataset) Column(name string) (*Column, bool) {
	c, ok := ds.columns[name]
	return c, ok
}

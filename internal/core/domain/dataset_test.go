package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatasetChecksShape(t *testing.T) {
	_, err := NewDataset("empty")
	assert.Error(t, err, "a dataset needs at least one column")

	_, err = NewDataset("ragged",
		NumberColumn("a", []float64{1, 2, 3}),
		StringColumn("b", []string{"x"}),
	)
	assert.Error(t, err)

	_, err = NewDataset("dup",
		NumberColumn("a", []float64{1}),
		StringColumn("a", []string{"x"}),
	)
	assert.Error(t, err)
}

func TestDatasetAccessors(t *testing.T) {
	ds, err := NewDataset("t",
		NumberColumn("price", []float64{9.5, math.NaN(), 12}),
		StringColumn("region", []string{"North", "", "East"}),
	)
	require.NoError(t, err)

	assert.Equal(t, "t", ds.Name())
	assert.Equal(t, 3, ds.Rows())
	assert.Equal(t, []string{"price", "region"}, ds.Columns())

	price, ok := ds.Column("price")
	require.True(t, ok)
	assert.Equal(t, ColumnFloat, price.Type())
	assert.Equal(t, 9.5, price.Float(0))
	assert.True(t, price.Missing(1))
	assert.Nil(t, price.Value(1), "missing cells surface as nil")
	assert.Equal(t, 12.0, price.Value(2))

	region, ok := ds.Column("region")
	require.True(t, ok)
	assert.True(t, region.Missing(1))
	assert.Equal(t, "East", region.Value(2))

	_, ok = ds.Column("absent")
	assert.False(t, ok)
}

func TestCanonicalForm(t *testing.T) {
	col := NumberColumn("n", []float64{1, 2.5, 100000})
	assert.Equal(t, "1", col.Canonical(0))
	assert.Equal(t, "2.5", col.Canonical(1))
	assert.Equal(t, "100000", col.Canonical(2))

	s := StringColumn("s", []string{"NYC"})
	assert.Equal(t, "NYC", s.Canonical(0))
}

func TestWithoutHidesColumnsKeepsIdentity(t *testing.T) {
	ds, err := NewDataset("t",
		NumberColumn("a", []float64{1, 2}),
		NumberColumn("b", []float64{3, 4}),
		StringColumn("c", []string{"x", "y"}),
	)
	require.NoError(t, err)

	trimmed, err := ds.Without("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, trimmed.Columns())
	assert.Equal(t, 2, trimmed.Rows())

	// Same backing column: row positions are unchanged.
	a, _ := trimmed.Column("a")
	assert.Equal(t, 2.0, a.Float(1))

	_, err = ds.Without("nope")
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = ds.Without("a", "b", "c")
	assert.Error(t, err, "cannot drop every column")
}

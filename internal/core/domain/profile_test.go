package domain

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileColumnClassification(t *testing.T) {
	tests := []struct {
		name       string
		column     *Column
		wantKind   ColumnKind
		wantWidget Widget
	}{
		{
			name: "fifty distinct numerics",
			column: NumberColumn("v", func() []float64 {
				vs := make([]float64, 50)
				for i := range vs {
					vs[i] = float64(i) * 1.5
				}
				return vs
			}()),
			wantKind:   KindNumeric,
			wantWidget: WidgetRangeSlider,
		},
		{
			name: "three string values",
			column: StringColumn("v", func() []string {
				vs := make([]string, 50)
				for i := range vs {
					vs[i] = string(rune('A' + i%3))
				}
				return vs
			}()),
			wantKind:   KindCategorical,
			wantWidget: WidgetMultiSelect,
		},
		{
			name: "five hundred distinct strings",
			column: StringColumn("v", func() []string {
				vs := make([]string, 500)
				for i := range vs {
					vs[i] = fmt.Sprintf("item description %04d", i)
				}
				return vs
			}()),
			wantKind:   KindText,
			wantWidget: WidgetRegexInput,
		},
		{
			name: "three distinct numerics",
			column: NumberColumn("v", func() []float64 {
				vs := make([]float64, 50)
				for i := range vs {
					vs[i] = float64(1 + i%3)
				}
				return vs
			}()),
			wantKind:   KindCategorical,
			wantWidget: WidgetMultiSelect,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := NewDataset("t", tt.column)
			require.NoError(t, err)

			p, err := ProfileColumn(ds, "v")
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, p.Kind)
			assert.Equal(t, tt.wantWidget, p.Widget)
		})
	}
}

func TestProfileColumnObservedDomain(t *testing.T) {
	ds, err := NewDataset("t",
		NumberColumn("v", []float64{4, math.NaN(), -2, 10, 7, 3, 1, 8, 9, 5, 6}),
	)
	require.NoError(t, err)

	p, err := ProfileColumn(ds, "v")
	require.NoError(t, err)
	assert.Equal(t, KindNumeric, p.Kind)
	assert.Equal(t, -2.0, p.Min)
	assert.Equal(t, 10.0, p.Max)
	assert.Equal(t, 10, p.NonMissing)
	assert.Equal(t, 10, p.DistinctCount)
}

func TestProfileColumnCategoricalValuesSorted(t *testing.T) {
	ds, err := NewDataset("t",
		StringColumn("region", []string{"South", "North", "East", "North", "", "East"}),
	)
	require.NoError(t, err)

	p, err := ProfileColumn(ds, "region")
	require.NoError(t, err)
	assert.Equal(t, KindCategorical, p.Kind)
	assert.Equal(t, []string{"East", "North", "South"}, p.Values)
	assert.Equal(t, 5, p.NonMissing)
}

func TestProfileColumnErrors(t *testing.T) {
	ds, err := NewDataset("t",
		NumberColumn("empty", []float64{math.NaN(), math.NaN()}),
		NumberColumn("ok", []float64{1, 2}),
	)
	require.NoError(t, err)

	_, err = ProfileColumn(ds, "missing")
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = ProfileColumn(ds, "empty")
	assert.ErrorIs(t, err, ErrInvalidColumn)
}

func TestProfileDatasetSkipsUnclassifiable(t *testing.T) {
	ds, err := NewDataset("t",
		NumberColumn("ok", []float64{1, 2, 3}),
		StringColumn("blank", []string{"", "", ""}),
	)
	require.NoError(t, err)

	profiles, skipped := ProfileDataset(ds)
	assert.Len(t, profiles, 1)
	assert.Contains(t, profiles, "ok")
	require.Len(t, skipped, 1)
	assert.Equal(t, "blank", skipped[0].Name)
}

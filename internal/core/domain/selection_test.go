package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectionSetSemantics(t *testing.T) {
	s := NewSelection([]int64{9, 3, 7, 3})
	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Has(7))
	assert.False(t, s.Has(4))
	assert.Equal(t, []int64{3, 7, 9}, s.IDs())
}

func TestSelectionVisibleWithinMask(t *testing.T) {
	s := NewSelection([]int64{3, 7, 9})

	bits := make([]bool, 12)
	for i := range bits {
		bits[i] = i != 7 // row 7 filtered out
	}
	visible := s.VisibleWithin(NewRowMask(bits))

	// The selection itself is untouched by masking; only visibility shrinks.
	assert.Equal(t, []int64{3, 9}, visible)
	assert.Equal(t, []int64{3, 7, 9}, s.IDs())
}

func TestSelectionVisibleWithinIgnoresForeignIDs(t *testing.T) {
	s := NewSelection([]int64{1, 50, -2})
	visible := s.VisibleWithin(FullMask(5))
	assert.Equal(t, []int64{1}, visible)
}

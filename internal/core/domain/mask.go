package domain

// RowMask is an immutable boolean vector over dataset row positions. Masks
// are derived state: they are rebuilt from the filter conjunction on every
// edit, never maintained incrementally.
type RowMask struct {
	bits  []bool
	count int
}

// NewRowMask wraps a bit vector. The slice is owned by the mask after the
// call.
func NewRowMask(bits []bool) RowMask {
	n := 0
	for _, b := range bits {
		if b {
			n++
		}
	}
	return RowMask{bits: bits, count: n}
}

// FullMask matches every one of n rows.
func FullMask(n int) RowMask {
	bits := make([]bool, n)
	for i := range bits {
		bits[i] = true
	}
	return RowMask{bits: bits, count: n}
}

func (m RowMask) Len() int { return len(m.bits) }

func (m RowMask) At(i int) bool { return m.bits[i] }

func (m RowMask) Count() int { return m.count }

// And intersects two masks of equal length.
func (m RowMask) And(other RowMask) RowMask {
	bits := make([]bool, len(m.bits))
	n := 0
	for i := range bits {
		bits[i] = m.bits[i] && other.bits[i]
		if bits[i] {
			n++
		}
	}
	return RowMask{bits: bits, count: n}
}

// IDs returns the matching row ids in ascending order.
func (m RowMask) IDs() []int64 {
	out := make([]int64, 0, m.count)
	for i, b := range m.bits {
		if b {
			out = append(out, int64(i))
		}
	}
	return out
}

package domain

import "sort"

// Selection is an immutable set of selected row ids. It is replaced
// wholesale on every brush event; there is no element-wise mutation. Ids
// are taken as given: selection is independent of filtering, so a selected
// row excluded by the current mask stays selected and resurfaces when a
// later edit re-admits it.
type Selection struct {
	ids map[int64]struct{}
}

// NewSelection builds a selection from ids, dropping duplicates.
func NewSelection(ids []int64) Selection {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return Selection{ids: set}
}

func (s Selection) Len() int { return len(s.ids) }

func (s Selection) Has(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

// IDs returns the selected ids in ascending order.
func (s Selection) IDs() []int64 {
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// VisibleWithin intersects the selection with a row mask: the ids a view
// bound to that mask should render highlighted, ascending.
func (s Selection) VisibleWithin(m RowMask) []int64 {
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		if id >= 0 && id < int64(m.Len()) && m.At(int(id)) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

package port

import "github.com/trellisviz/trellis/internal/core/domain"

// FilterState is the wire-friendly description of one filter. The
// kind-specific parameter fields are populated per Kind and omitted
// otherwise.
type FilterState struct {
	ID      string            `json:"id"`
	Column  string            `json:"column"`
	Kind    domain.ColumnKind `json:"kind"`
	Widget  domain.Widget     `json:"widget"`
	Seq     int               `json:"seq"`
	Low     *float64          `json:"low,omitempty"`
	High    *float64          `json:"high,omitempty"`
	Values  []string          `json:"values,omitempty"`
	Pattern string            `json:"pattern,omitempty"`
}

// FrameSnapshot is the immutable result of one pipeline recompute: the
// filters in insertion order, the conjunction mask, and the leave-one-out
// baseline distribution for every filter, keyed by filter id. Version
// increases by one per recompute.
type FrameSnapshot struct {
	Version   uint64                         `json:"version"`
	Rows      int                            `json:"rows"`
	Matched   int                            `json:"matched"`
	Filters   []FilterState                  `json:"filters"`
	Baselines map[string]domain.Distribution `json:"baselines,omitempty"`
	Mask      domain.RowMask                 `json:"-"`
}

// SelectionSnapshot is the immutable result of one selection replacement.
type SelectionSnapshot struct {
	Version   uint64           `json:"version"`
	Count     int              `json:"count"`
	IDs       []int64          `json:"ids"`
	Selection domain.Selection `json:"-"`
}

// StateSnapshot pairs the two independent reactive slices for transports
// that want one coherent payload. VisibleSelected is the selection
// intersected with the current mask: the ids a view should highlight.
type StateSnapshot struct {
	Frame           FrameSnapshot     `json:"frame"`
	Selection       SelectionSnapshot `json:"selection"`
	VisibleSelected []int64           `json:"visible_selected"`
}

// FrameListener observes pipeline recomputes. Listeners run synchronously
// inside the mutation and must not call back into mutating operations.
type FrameListener func(FrameSnapshot)

// SelectionListener observes selection replacements, under the same
// re-entrancy rule as FrameListener.
type SelectionListener func(SelectionSnapshot)

// Subscription detaches a listener. Close is idempotent.
type Subscription interface {
	Close()
}

// ColumnSummary describes one dataset column for pickers: profiled columns
// carry their classification, skipped ones the reason they cannot be
// filtered.
type ColumnSummary struct {
	Name          string            `json:"name"`
	Kind          domain.ColumnKind `json:"kind,omitempty"`
	Widget        domain.Widget     `json:"widget,omitempty"`
	DistinctCount int               `json:"distinct_count,omitempty"`
	Min           *float64          `json:"min,omitempty"`
	Max           *float64          `json:"max,omitempty"`
	Values        []string          `json:"values,omitempty"`
	Skipped       bool              `json:"skipped,omitempty"`
	SkipReason    string            `json:"skip_reason,omitempty"`
}

// TableRow is one visible row of the paged table view.
type TableRow struct {
	ID       int64          `json:"id"`
	Selected bool           `json:"selected"`
	Cells    map[string]any `json:"cells"`
}

// TablePage is a window over the rows matching the current mask.
type TablePage struct {
	Offset  int        `json:"offset"`
	Limit   int        `json:"limit"`
	Total   int        `json:"total"`
	Columns []string   `json:"columns"`
	Rows    []TableRow `json:"rows"`
}

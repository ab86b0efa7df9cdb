package service

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/trellisviz/trellis/internal/core/domain"
	"github.com/trellisviz/trellis/internal/core/port"
)

// FilterPipeline owns the ordered filter conjunction over one dataset.
// Mutations serialize behind one mutex; each rebuilds the mask and the
// per-filter baselines, bumps the frame version, and notifies listeners
// before returning, so observers never see a half-applied edit.
//
// Filter identity is permanent: ids and insertion sequence numbers are
// never reused, and removing a filter does not renumber the survivors.
type FilterPipeline struct {
	ds       *domain.Dataset
	profiles map[string]domain.ColumnProfile
	logger   *slog.Logger

	mu        sync.Mutex
	filters   []*domain.FilterSpec
	nextSeq   int
	version   uint64
	snapshot  port.FrameSnapshot
	listeners map[string]port.FrameListener
}

// NewFilterPipeline starts with an empty conjunction, whose mask matches
// every row.
func NewFilterPipeline(ds *domain.Dataset, profiles map[string]domain.ColumnProfile, logger *slog.Logger) *FilterPipeline {
	p := &FilterPipeline{
		ds:        ds,
		profiles:  profiles,
		logger:    logger,
		listeners: make(map[string]port.FrameListener),
	}
	p.mu.Lock()
	p.recompute()
	p.mu.Unlock()
	return p
}

// AddFilter appends a filter over column with pass-through parameters: the
// full observed range, all observed categories, or the empty pattern. The
// same column may carry any number of filters.
func (p *FilterPipeline) AddFilter(column string) (port.FilterState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	profile, ok := p.profiles[column]
	if !ok {
		if _, present := p.ds.Column(column); present {
			return port.FilterState{}, fmt.Errorf("%w: %q", domain.ErrInvalidColumn, column)
		}
		return port.FilterState{}, fmt.Errorf("%w: %q", domain.ErrUnknownColumn, column)
	}

	f, err := domain.NewFilter(p.ds, profile, uuid.NewString(), p.nextSeq, domain.DefaultParams(profile))
	if err != nil {
		return port.FilterState{}, err
	}
	p.nextSeq++
	p.filters = append(p.filters, f)
	p.recompute()
	return filterState(f), nil
}

// UpdateFilter replaces the parameters of the filter with the given id,
// keeping its id and position. On validation failure the previous
// parameters stay in effect and no notification fires.
func (p *FilterPipeline) UpdateFilter(id string, params domain.FilterParams) (port.FilterState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.indexOf(id)
	if idx < 0 {
		return port.FilterState{}, fmt.Errorf("%w: %q", domain.ErrUnknownFilter, id)
	}
	next, err := p.filters[idx].WithParams(params)
	if err != nil {
		return port.FilterState{}, err
	}
	p.filters[idx] = next
	p.recompute()
	return filterState(next), nil
}

// RemoveFilter drops the filter with the given id. The remaining filters
// keep their order and sequence numbers. Removing an absent id is logged
// and ignored.
func (p *FilterPipeline) RemoveFilter(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.indexOf(id)
	if idx < 0 {
		p.logger.Warn("remove of unknown filter ignored", slog.String("filter_id", id))
		return nil
	}
	p.filters = slices.Delete(p.filters, idx, idx+1)
	p.recompute()
	return nil
}

// Mask returns the current conjunction mask.
func (p *FilterPipeline) Mask() domain.RowMask {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot.Mask
}

// BaselineFor returns the leave-one-out distribution for the filter with
// the given id: its column summarized over the rows passing every filter
// except this one.
func (p *FilterPipeline) BaselineFor(id string) (domain.Distribution, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, ok := p.snapshot.Baselines[id]
	if !ok {
		return domain.Distribution{}, fmt.Errorf("%w: %q", domain.ErrUnknownFilter, id)
	}
	return d, nil
}

// Snapshot returns the latest published frame.
func (p *FilterPipeline) Snapshot() port.FrameSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

// Subscribe registers a listener and synchronously delivers the current
// frame to it, so a new view renders without waiting for the next edit.
// Listeners run inside mutations and must not call back into them.
func (p *FilterPipeline) Subscribe(fn port.FrameListener) port.Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := uuid.NewString()
	p.listeners[id] = fn
	fn(p.snapshot)
	return &subscription{cancel: func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}}
}

// indexOf finds a filter by id. Callers hold mu.
func (p *FilterPipeline) indexOf(id string) int {
	for i, f := range p.filters {
		if f.ID == id {
			return i
		}
	}
	return -1
}

// recompute rebuilds the mask and every baseline from scratch and publishes
// a new frame. Callers hold mu.
func (p *FilterPipeline) recompute() {
	rows := p.ds.Rows()

	// Evaluate each filter once over all rows, then combine.
	matches := make([][]bool, len(p.filters))
	for i, f := range p.filters {
		bits := make([]bool, rows)
		for r := range rows {
			bits[r] = f.Matches(r)
		}
		matches[i] = bits
	}

	maskBits := make([]bool, rows)
	for r := range rows {
		keep := true
		for i := range matches {
			if !matches[i][r] {
				keep = false
				break
			}
		}
		maskBits[r] = keep
	}
	mask := domain.NewRowMask(maskBits)

	states := make([]port.FilterState, len(p.filters))
	baselines := make(map[string]domain.Distribution, len(p.filters))
	for i, f := range p.filters {
		states[i] = filterState(f)

		// Leave-one-out: every filter applies except the one under
		// inspection, regardless of insertion order.
		bits := make([]bool, rows)
		for r := range rows {
			keep := true
			for j := range matches {
				if j != i && !matches[j][r] {
					keep = false
					break
				}
			}
			bits[r] = keep
		}
		d, err := domain.Summarize(p.ds, p.profiles[f.Column], domain.NewRowMask(bits), mask)
		if err != nil {
			p.logger.Error("baseline summarize failed",
				slog.String("column", f.Column), slog.Any("error", err))
			continue
		}
		baselines[f.ID] = d
	}

	p.version++
	p.snapshot = port.FrameSnapshot{
		Version:   p.version,
		Rows:      rows,
		Matched:   mask.Count(),
		Filters:   states,
		Baselines: baselines,
		Mask:      mask,
	}
	for _, fn := range p.listeners {
		fn(p.snapshot)
	}
}

// filterState flattens a spec into its wire form.
func filterState(f *domain.FilterSpec) port.FilterState {
	st := port.FilterState{
		ID:     f.ID,
		Column: f.Column,
		Kind:   f.Kind,
		Seq:    f.Seq,
	}
	switch p := f.Params.(type) {
	case domain.NumericRange:
		st.Widget = domain.WidgetRangeSlider
		st.Low, st.High = &p.Low, &p.High
	case domain.CategorySet:
		st.Widget = domain.WidgetMultiSelect
		st.Values = append([]string(nil), p.Values...)
	case domain.TextPattern:
		st.Widget = domain.WidgetRegexInput
		st.Pattern = p.Pattern
	}
	return st
}

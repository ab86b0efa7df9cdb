package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/trellisviz/trellis/internal/core/domain"
	"github.com/trellisviz/trellis/internal/core/port"
)

type toolNameKey struct{}

// WithToolName returns a context carrying the transport-level operation
// name for audit logging.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

func toolNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(toolNameKey{}).(string); ok {
		return v
	}
	return ""
}

// DefaultTablePageSize is the table window served when a caller does not
// ask for a specific limit.
const DefaultTablePageSize = 10

// Session binds one immutable dataset to its reactive exploration state:
// the filter pipeline, the selection broker, and the scatter view
// registry. It is the operation surface every transport calls into, and it
// owns audit and instrumentation at that boundary.
type Session struct {
	ds       *domain.Dataset
	profiles map[string]domain.ColumnProfile
	skipped  []domain.SkippedColumn
	pipeline *FilterPipeline
	broker   *SelectionBroker

	logger  *slog.Logger
	tracer  trace.Tracer
	auditor port.MutationAuditor
	inst    port.Instrumentation

	maxTableRows int

	mu           sync.Mutex
	scatters     map[string]domain.ScatterSpec
	scatterOrder []string
}

// NewSession profiles the dataset and builds the empty exploration state
// around it. Nil tracer, auditor, or instrumentation fall back to no-ops.
func NewSession(ds *domain.Dataset, logger *slog.Logger, auditor port.MutationAuditor, tracer trace.Tracer, inst port.Instrumentation, maxTableRows int) *Session {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	if auditor == nil {
		auditor = port.NoopAuditor{}
	}
	if maxTableRows <= 0 {
		maxTableRows = 500
	}

	profiles, skipped := domain.ProfileDataset(ds)
	for _, sk := range skipped {
		logger.Warn("column not filterable",
			slog.String("column", sk.Name), slog.String("reason", sk.Reason))
	}

	return &Session{
		ds:           ds,
		profiles:     profiles,
		skipped:      skipped,
		pipeline:     NewFilterPipeline(ds, profiles, logger),
		broker:       NewSelectionBroker(logger),
		logger:       logger,
		tracer:       tracer,
		auditor:      auditor,
		inst:         inst,
		maxTableRows: maxTableRows,
		scatters:     make(map[string]domain.ScatterSpec),
	}
}

// Pipeline exposes the filter pipeline for direct subscription.
func (s *Session) Pipeline() *FilterPipeline { return s.pipeline }

// Broker exposes the selection broker for direct subscription.
func (s *Session) Broker() *SelectionBroker { return s.broker }

// Columns lists every dataset column in load order: profiled ones with
// their classification, skipped ones with the reason they cannot carry a
// filter.
func (s *Session) Columns() []port.ColumnSummary {
	skipReasons := make(map[string]string, len(s.skipped))
	for _, sk := range s.skipped {
		skipReasons[sk.Name] = sk.Reason
	}

	out := make([]port.ColumnSummary, 0, len(s.ds.Columns()))
	for _, name := range s.ds.Columns() {
		if reason, ok := skipReasons[name]; ok {
			out = append(out, port.ColumnSummary{Name: name, Skipped: true, SkipReason: reason})
			continue
		}
		p := s.profiles[name]
		cs := port.ColumnSummary{
			Name:          name,
			Kind:          p.Kind,
			Widget:        p.Widget,
			DistinctCount: p.DistinctCount,
		}
		switch p.Kind {
		case domain.KindNumeric:
			lo, hi := p.Min, p.Max
			cs.Min, cs.Max = &lo, &hi
		case domain.KindCategorical:
			cs.Values = append([]string(nil), p.Values...)
		}
		out = append(out, cs)
	}
	return out
}

// Skipped lists the columns the profiler refused to classify.
func (s *Session) Skipped() []domain.SkippedColumn {
	return slices.Clone(s.skipped)
}

// AddFilter appends a pass-through filter over column and returns its
// initial state.
func (s *Session) AddFilter(ctx context.Context, column string) (port.FilterState, error) {
	ctx, span := s.tracer.Start(ctx, "Session.AddFilter",
		trace.WithAttributes(attribute.String("filter.column", column)))
	defer span.End()

	start := time.Now()
	st, err := s.pipeline.AddFilter(column)
	s.auditMutation(ctx, "add_filter", port.MutationEntry{
		Column:   column,
		FilterID: st.ID,
		Rows:     s.pipeline.Snapshot().Matched,
	}, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementEngineErrors(ctx)
		return port.FilterState{}, fmt.Errorf("add filter: %w", err)
	}

	s.inst.IncrementFilterEdits(ctx)
	s.inst.RecordMaskRecompute(ctx, float64(time.Since(start).Milliseconds()))
	span.SetAttributes(attribute.String("filter.id", st.ID))
	return st, nil
}

// UpdateFilter replaces the parameters of an existing filter. A rejected
// update leaves the previous parameters filtering.
func (s *Session) UpdateFilter(ctx context.Context, id string, params domain.FilterParams) (port.FilterState, error) {
	ctx, span := s.tracer.Start(ctx, "Session.UpdateFilter",
		trace.WithAttributes(attribute.String("filter.id", id)))
	defer span.End()

	start := time.Now()
	st, err := s.pipeline.UpdateFilter(id, params)
	s.auditMutation(ctx, "update_filter", port.MutationEntry{
		Column:   st.Column,
		FilterID: id,
		Rows:     s.pipeline.Snapshot().Matched,
	}, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementEngineErrors(ctx)
		return port.FilterState{}, fmt.Errorf("update filter: %w", err)
	}

	s.inst.IncrementFilterEdits(ctx)
	s.inst.RecordMaskRecompute(ctx, float64(time.Since(start).Milliseconds()))
	return st, nil
}

// RemoveFilter drops a filter. Unknown ids are ignored.
func (s *Session) RemoveFilter(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "Session.RemoveFilter",
		trace.WithAttributes(attribute.String("filter.id", id)))
	defer span.End()

	start := time.Now()
	err := s.pipeline.RemoveFilter(id)
	s.auditMutation(ctx, "remove_filter", port.MutationEntry{
		FilterID: id,
		Rows:     s.pipeline.Snapshot().Matched,
	}, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementEngineErrors(ctx)
		return fmt.Errorf("remove filter: %w", err)
	}

	s.inst.IncrementFilterEdits(ctx)
	s.inst.RecordMaskRecompute(ctx, float64(time.Since(start).Milliseconds()))
	return nil
}

// ReportSelection replaces the shared selection with ids, as brushed in
// whichever view the user touched last.
func (s *Session) ReportSelection(ctx context.Context, ids []int64) port.SelectionSnapshot {
	ctx, span := s.tracer.Start(ctx, "Session.ReportSelection",
		trace.WithAttributes(attribute.Int("selection.count", len(ids))))
	defer span.End()

	start := time.Now()
	snap := s.broker.Replace(ids)
	s.auditMutation(ctx, "report_selection", port.MutationEntry{Rows: snap.Count}, start, nil)
	s.inst.IncrementSelectionReplacements(ctx)
	return snap
}

// ClearSelection empties the shared selection.
func (s *Session) ClearSelection(ctx context.Context) port.SelectionSnapshot {
	ctx, span := s.tracer.Start(ctx, "Session.ClearSelection")
	defer span.End()

	start := time.Now()
	snap := s.broker.Clear()
	s.auditMutation(ctx, "clear_selection", port.MutationEntry{Rows: 0}, start, nil)
	s.inst.IncrementSelectionReplacements(ctx)
	return snap
}

// ConfigureScatter validates and stores a scatter view configuration,
// creating it when the id is empty and replacing it otherwise. The
// returned spec carries the assigned id, applied defaults, and the derived
// color mode.
func (s *Session) ConfigureScatter(ctx context.Context, spec domain.ScatterSpec) (domain.ScatterSpec, error) {
	ctx, span := s.tracer.Start(ctx, "Session.ConfigureScatter",
		trace.WithAttributes(
			attribute.String("scatter.x", spec.X),
			attribute.String("scatter.y", spec.Y),
		))
	defer span.End()

	start := time.Now()
	valid, err := domain.ValidateScatter(spec, s.ds, s.profiles)
	if err != nil {
		s.auditMutation(ctx, "configure_scatter", port.MutationEntry{ScatterID: spec.ID}, start, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementEngineErrors(ctx)
		return domain.ScatterSpec{}, fmt.Errorf("configure scatter: %w", err)
	}
	if valid.ID == "" {
		valid.ID = uuid.NewString()
	}

	s.mu.Lock()
	if _, exists := s.scatters[valid.ID]; !exists {
		s.scatterOrder = append(s.scatterOrder, valid.ID)
	}
	s.scatters[valid.ID] = valid
	s.mu.Unlock()

	s.auditMutation(ctx, "configure_scatter", port.MutationEntry{ScatterID: valid.ID}, start, nil)
	span.SetAttributes(attribute.String("scatter.id", valid.ID))
	return valid, nil
}

// RemoveScatter drops a scatter view. Unknown ids are ignored.
func (s *Session) RemoveScatter(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "Session.RemoveScatter",
		trace.WithAttributes(attribute.String("scatter.id", id)))
	defer span.End()

	start := time.Now()
	s.mu.Lock()
	if _, ok := s.scatters[id]; !ok {
		s.mu.Unlock()
		s.logger.Warn("remove of unknown scatter ignored", slog.String("scatter_id", id))
		return nil
	}
	delete(s.scatters, id)
	if i := slices.Index(s.scatterOrder, id); i >= 0 {
		s.scatterOrder = slices.Delete(s.scatterOrder, i, i+1)
	}
	s.mu.Unlock()

	s.auditMutation(ctx, "remove_scatter", port.MutationEntry{ScatterID: id}, start, nil)
	return nil
}

// Scatters lists the configured scatter views in creation order.
func (s *Session) Scatters() []domain.ScatterSpec {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ScatterSpec, 0, len(s.scatterOrder))
	for _, id := range s.scatterOrder {
		out = append(out, s.scatters[id])
	}
	return out
}

// ScatterPoints materializes the render-ready points of one scatter view:
// rows passing the current mask with values on both axes, sized and
// flagged per the shared selection. Rows missing a size value fall back to
// the minimum size; rows missing the color value carry an empty label.
func (s *Session) ScatterPoints(ctx context.Context, id string) ([]domain.ScatterPoint, error) {
	_, span := s.tracer.Start(ctx, "Session.ScatterPoints",
		trace.WithAttributes(attribute.String("scatter.id", id)))
	defer span.End()

	s.mu.Lock()
	spec, ok := s.scatters[id]
	s.mu.Unlock()
	if !ok {
		err := fmt.Errorf("%w: %q", domain.ErrUnknownScatter, id)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	mask := s.pipeline.Mask()
	sel := s.broker.Current()

	xCol, _ := s.ds.Column(spec.X)
	yCol, _ := s.ds.Column(spec.Y)
	var sizeCol, colorCol *domain.Column
	var sizeMin, sizeMax float64
	if spec.SizeColumn != "" {
		sizeCol, _ = s.ds.Column(spec.SizeColumn)
		p := s.profiles[spec.SizeColumn]
		sizeMin, sizeMax = p.Min, p.Max
	}
	if spec.ColorColumn != "" {
		colorCol, _ = s.ds.Column(spec.ColorColumn)
	}

	points := make([]domain.ScatterPoint, 0, mask.Count())
	for i := range s.ds.Rows() {
		if !mask.At(i) || xCol.Missing(i) || yCol.Missing(i) {
			continue
		}
		pt := domain.ScatterPoint{
			RowID:    int64(i),
			X:        xCol.Value(i),
			Y:        yCol.Value(i),
			Size:     domain.DefaultPointSize,
			Selected: sel.Has(int64(i)),
		}
		if sizeCol != nil {
			if sizeCol.Missing(i) {
				pt.Size = spec.MinSize
			} else {
				pt.Size = spec.PointSize(sizeCol.Float(i), sizeMin, sizeMax)
			}
		}
		if colorCol != nil && !colorCol.Missing(i) {
			pt.Color = colorCol.Canonical(i)
		}
		points = append(points, pt)
	}

	span.SetAttributes(attribute.Int("scatter.points", len(points)))
	return points, nil
}

// TableRows pages through the rows matching the current mask, flagging the
// selected ones. Zero limit serves the default page size; limits above the
// configured maximum clamp to it.
func (s *Session) TableRows(ctx context.Context, offset, limit int) port.TablePage {
	_, span := s.tracer.Start(ctx, "Session.TableRows",
		trace.WithAttributes(attribute.Int("table.offset", offset), attribute.Int("table.limit", limit)))
	defer span.End()

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultTablePageSize
	}
	if limit > s.maxTableRows {
		limit = s.maxTableRows
	}

	mask := s.pipeline.Mask()
	sel := s.broker.Current()
	ids := mask.IDs()

	page := port.TablePage{
		Offset:  offset,
		Limit:   limit,
		Total:   len(ids),
		Columns: s.ds.Columns(),
	}
	if offset >= len(ids) {
		page.Rows = []port.TableRow{}
		return page
	}
	end := min(offset+limit, len(ids))

	page.Rows = make([]port.TableRow, 0, end-offset)
	for _, id := range ids[offset:end] {
		cells := make(map[string]any, len(page.Columns))
		for _, name := range page.Columns {
			col, _ := s.ds.Column(name)
			cells[name] = col.Value(int(id))
		}
		page.Rows = append(page.Rows, port.TableRow{
			ID:       id,
			Selected: sel.Has(id),
			Cells:    cells,
		})
	}
	return page
}

// State returns one coherent snapshot of both reactive slices plus the
// visible highlighted set their intersection produces.
func (s *Session) State() port.StateSnapshot {
	frame := s.pipeline.Snapshot()
	selection := s.broker.Snapshot()
	return port.StateSnapshot{
		Frame:           frame,
		Selection:       selection,
		VisibleSelected: selection.Selection.VisibleWithin(frame.Mask),
	}
}

// BaselineFor returns the leave-one-out distribution of one filter.
func (s *Session) BaselineFor(id string) (domain.Distribution, error) {
	return s.pipeline.BaselineFor(id)
}

// WatchState delivers a combined state snapshot on every filter recompute
// and every selection replacement, starting with the current state. The
// callback runs inside mutations and must not call back into them.
func (s *Session) WatchState(fn func(port.StateSnapshot)) port.Subscription {
	var mu sync.Mutex
	var frame port.FrameSnapshot
	var selection port.SelectionSnapshot

	emit := func() {
		fn(port.StateSnapshot{
			Frame:           frame,
			Selection:       selection,
			VisibleSelected: selection.Selection.VisibleWithin(frame.Mask),
		})
	}
	frameSub := s.pipeline.Subscribe(func(f port.FrameSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		frame = f
		emit()
	})
	selSub := s.broker.Subscribe(func(v port.SelectionSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		selection = v
		emit()
	})
	return &subscription{cancel: func() {
		frameSub.Close()
		selSub.Close()
	}}
}

// auditMutation records one mutating operation.
func (s *Session) auditMutation(ctx context.Context, op string, entry port.MutationEntry, start time.Time, err error) {
	entry.Op = op
	entry.Tool = toolNameFromCtx(ctx)
	entry.DurationMS = time.Since(start).Milliseconds()
	entry.Err = err
	s.auditor.Record(ctx, entry)
}

package service

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/trellisviz/trellis/internal/core/domain"
	"github.com/trellisviz/trellis/internal/core/port"
)

// SelectionBroker owns the single selection set shared by every view. Any
// view replaces it wholesale on a brush event; every replacement reaches
// all listeners, uncoalesced. The broker never consults the filter state:
// selected rows hidden by the current mask stay selected, and views decide
// visibility by intersecting with their mask.
type SelectionBroker struct {
	logger *slog.Logger

	mu        sync.Mutex
	version   uint64
	snapshot  port.SelectionSnapshot
	listeners map[string]port.SelectionListener
}

// NewSelectionBroker starts with an empty selection.
func NewSelectionBroker(logger *slog.Logger) *SelectionBroker {
	b := &SelectionBroker{
		logger:    logger,
		listeners: make(map[string]port.SelectionListener),
	}
	b.mu.Lock()
	b.publish(domain.NewSelection(nil))
	b.mu.Unlock()
	return b
}

// Replace swaps the whole selection. Ids are taken as given; an empty or
// nil slice is a valid selection of nothing. Duplicate ids collapse.
func (b *SelectionBroker) Replace(ids []int64) port.SelectionSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.publish(domain.NewSelection(ids))
	b.logger.Debug("selection replaced",
		slog.Int("count", b.snapshot.Count),
		slog.Uint64("version", b.version))
	return b.snapshot
}

// Clear empties the selection.
func (b *SelectionBroker) Clear() port.SelectionSnapshot {
	return b.Replace(nil)
}

// Current returns the selection as of the last replacement.
func (b *SelectionBroker) Current() domain.Selection {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot.Selection
}

// Snapshot returns the latest published selection state.
func (b *SelectionBroker) Snapshot() port.SelectionSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot
}

// Subscribe registers a listener and synchronously delivers the current
// selection to it. Listeners run inside replacements and must not call
// back into them.
func (b *SelectionBroker) Subscribe(fn port.SelectionListener) port.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.listeners[id] = fn
	fn(b.snapshot)
	return &subscription{cancel: func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}}
}

// publish stores a new snapshot and notifies listeners. Callers hold mu.
func (b *SelectionBroker) publish(sel domain.Selection) {
	b.version++
	b.snapshot = port.SelectionSnapshot{
		Version:   b.version,
		Count:     sel.Len(),
		IDs:       sel.IDs(),
		Selection: sel,
	}
	for _, fn := range b.listeners {
		fn(b.snapshot)
	}
}

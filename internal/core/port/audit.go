package port

import "context"

// MutationEntry represents a single auditable state mutation. Tool names
// the transport operation that triggered it, when one did.
type MutationEntry struct {
	Op         string
	Tool       string
	Column     string
	FilterID   string
	ScatterID  string
	Rows       int
	DurationMS int64
	Err        error
}

// MutationAuditor records mutation audit events.
type MutationAuditor interface {
	Record(ctx context.Context, entry MutationEntry)
	Close() error
}

// NoopAuditor discards audit events.
type NoopAuditor struct{}

func (NoopAuditor) Record(context.Context, MutationEntry) {}

func (NoopAuditor) Close() error { return nil }

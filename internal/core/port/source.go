package port

import (
	"context"

	"github.com/trellisviz/trellis/internal/core/domain"
)

// DatasetSource loads the immutable dataset a session explores. A source is
// consulted exactly once, at session start.
type DatasetSource interface {
	Load(ctx context.Context) (*domain.Dataset, error)
}

package compose

import (
	"context"
)

// Servicer defines the interface for the composition backend
type Servicer interface {
	// Compose concatenates clips in order, mixes in audio tracks, and
	// writes the final artifact
	Compose(ctx context.Context, req CompositionRequest) (*CompositionResult, error)

	// Export transcodes the composed artifact to one output format
	Export(ctx context.Context, req ExportRequest) (*ExportResult, error)
}

// Ensure Composer implements Servicer
var _ Servicer = (*Composer)(nil)

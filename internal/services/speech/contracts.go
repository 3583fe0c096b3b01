package speech

import (
	"context"
)

// Servicer defines the interface for voiceover and music generation
type Servicer interface {
	// Synthesize produces one audio track and returns a URI to the
	// stored result
	Synthesize(ctx context.Context, req Request) (*Response, error)
}

// Ensure Service implements Servicer
var _ Servicer = (*Service)(nil)

package videogen

import (
	"context"
)

// Servicer defines the interface for clip generation backends
type Servicer interface {
	// Generate produces one video clip, optionally conditioned on a
	// keyframe image, and returns a URI to the stored result
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Ensure Service implements Servicer
var _ Servicer = (*Service)(nil)

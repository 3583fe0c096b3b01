package imagegen

import (
	"context"
)

// Servicer defines the interface for keyframe image generation
type Servicer interface {
	// Generate produces a single still image for a prompt and returns
	// a URI to the stored result
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Ensure Service implements Servicer
var _ Servicer = (*Service)(nil)

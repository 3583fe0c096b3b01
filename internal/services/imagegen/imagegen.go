// Package imagegen is the client for the keyframe image generation
// backend.
package imagegen

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/reelflow/reelflow/internal/services/httpapi"
)

const defaultEndpoint = "https://api.reelflow.dev/v1/images:generate"

// Request describes one keyframe to generate.
type Request struct {
	Prompt         string `json:"prompt"`
	Model          string `json:"model"`
	AspectRatio    string `json:"aspect_ratio"`
	IdempotencyKey string `json:"-"`
}

// Response is the backend's result for a generated image.
type Response struct {
	URI      string            `json:"uri"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Service talks to the image generation API.
type Service struct {
	client   *httpapi.Client
	endpoint string
}

// New creates a service from the environment. IMAGEN_API_KEY is
// required; IMAGEN_ENDPOINT overrides the default API endpoint.
func New() (*Service, error) {
	apiKey := os.Getenv("IMAGEN_API_KEY")
	if apiKey == "" {
		return nil, errors.New("IMAGEN_API_KEY environment variable is not set")
	}
	endpoint := os.Getenv("IMAGEN_ENDPOINT")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Service{
		client:   httpapi.NewClient(apiKey, 60*time.Second),
		endpoint: endpoint,
	}, nil
}

// NewWithEndpoint creates a service against an explicit endpoint,
// used by tests.
func NewWithEndpoint(apiKey, endpoint string) *Service {
	return &Service{
		client:   httpapi.NewClient(apiKey, 60*time.Second),
		endpoint: endpoint,
	}
}

// Generate produces a single keyframe image.
func (s *Service) Generate(ctx context.Context, req Request) (*Response, error) {
	var resp Response
	if err := s.client.PostJSON(ctx, s.endpoint, req.IdempotencyKey, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Package videogen is the client for the clip generation backends.
// One service fronts all providers; the placement-selected provider
// and variant are part of the request.
package videogen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/reelflow/reelflow/internal/services/httpapi"
)

const defaultBaseEndpoint = "https://api.reelflow.dev/v1/videos"

// Request describes one clip to generate.
type Request struct {
	Prompt          string  `json:"prompt"`
	Provider        string  `json:"-"`
	Variant         string  `json:"variant"`
	KeyframeURI     string  `json:"keyframe_uri,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	AspectRatio     string  `json:"aspect_ratio"`
	IdempotencyKey  string  `json:"-"`
}

// Response is the backend's result for a generated clip.
type Response struct {
	URI      string            `json:"uri"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Service talks to the video generation API.
type Service struct {
	client *httpapi.Client
	base   string
}

// New creates a service from the environment. VIDEOGEN_API_KEY is
// required; VIDEOGEN_ENDPOINT overrides the default API base.
func New() (*Service, error) {
	apiKey := os.Getenv("VIDEOGEN_API_KEY")
	if apiKey == "" {
		return nil, errors.New("VIDEOGEN_API_KEY environment variable is not set")
	}
	base := os.Getenv("VIDEOGEN_ENDPOINT")
	if base == "" {
		base = defaultBaseEndpoint
	}
	return &Service{
		client: httpapi.NewClient(apiKey, 5*time.Minute),
		base:   base,
	}, nil
}

// NewWithEndpoint creates a service against an explicit base endpoint,
// used by tests.
func NewWithEndpoint(apiKey, base string) *Service {
	return &Service{
		client: httpapi.NewClient(apiKey, 5*time.Minute),
		base:   base,
	}
}

// Generate produces one clip on the provider chosen by placement.
func (s *Service) Generate(ctx context.Context, req Request) (*Response, error) {
	if req.Provider == "" {
		return nil, errors.New("provider is required")
	}
	url := fmt.Sprintf("%s/%s:generate", s.base, req.Provider)
	var resp Response
	if err := s.client.PostJSON(ctx, url, req.IdempotencyKey, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

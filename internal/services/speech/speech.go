// Package speech is the client for the audio generation backend,
// covering both voiceover synthesis and background music.
package speech

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/reelflow/reelflow/internal/services/httpapi"
)

const defaultEndpoint = "https://api.reelflow.dev/v1/audio:synthesize"

// Track kinds accepted by the backend.
const (
	KindVoiceover = "voiceover"
	KindMusic     = "music"
)

// Request describes one audio track to generate.
type Request struct {
	Kind            string  `json:"kind"`
	Script          string  `json:"script,omitempty"`
	Style           string  `json:"style,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	IdempotencyKey  string  `json:"-"`
}

// Response is the backend's result for a generated track.
type Response struct {
	URI      string            `json:"uri"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Service talks to the audio generation API.
type Service struct {
	client   *httpapi.Client
	endpoint string
}

// New creates a service from the environment. SPEECH_API_KEY is
// required; SPEECH_ENDPOINT overrides the default API endpoint.
func New() (*Service, error) {
	apiKey := os.Getenv("SPEECH_API_KEY")
	if apiKey == "" {
		return nil, errors.New("SPEECH_API_KEY environment variable is not set")
	}
	endpoint := os.Getenv("SPEECH_ENDPOINT")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Service{
		client:   httpapi.NewClient(apiKey, 2*time.Minute),
		endpoint: endpoint,
	}, nil
}

// NewWithEndpoint creates a service against an explicit endpoint,
// used by tests.
func NewWithEndpoint(apiKey, endpoint string) *Service {
	return &Service{
		client:   httpapi.NewClient(apiKey, 2*time.Minute),
		endpoint: endpoint,
	}
}

// Synthesize produces one audio track.
func (s *Service) Synthesize(ctx context.Context, req Request) (*Response, error) {
	var resp Response
	if err := s.client.PostJSON(ctx, s.endpoint, req.IdempotencyKey, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

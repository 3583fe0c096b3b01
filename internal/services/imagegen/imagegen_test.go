package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelflow/reelflow/internal/services/httpapi"
)

func TestGenerateSendsAuthAndIdempotencyKey(t *testing.T) {
	var gotAuth, gotKey string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(Response{URI: "https://cdn.example/kf.png"})
	}))
	defer server.Close()

	svc := NewWithEndpoint("test-key", server.URL)
	resp, err := svc.Generate(context.Background(), Request{
		Prompt:         "a harbor at dawn",
		Model:          "imagen-004",
		AspectRatio:    "16:9",
		IdempotencyKey: "exec-1/keyframes/shot_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/kf.png", resp.URI)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "exec-1/keyframes/shot_1", gotKey)
	assert.Equal(t, "a harbor at dawn", gotBody["prompt"])
	assert.Equal(t, "imagen-004", gotBody["model"])
	// The idempotency key travels in the header, never the body
	assert.NotContains(t, gotBody, "IdempotencyKey")
}

func TestGenerateClassifiesErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		message   string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"quota exceeded","code":"RATE_LIMIT"}}`, true, "quota exceeded"},
		{"server error", http.StatusBadGateway, "upstream crashed", true, "upstream crashed"},
		{"blocked prompt", http.StatusBadRequest, `{"error":{"message":"prompt rejected by safety filter"}}`, false, "prompt rejected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewWithEndpoint("k", server.URL).Generate(context.Background(), Request{Prompt: "x"})
			require.Error(t, err)
			var apiErr *httpapi.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.retryable, apiErr.Retryable())
			assert.Contains(t, apiErr.Message, tt.message)
		})
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("IMAGEN_API_KEY", "")
	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IMAGEN_API_KEY")

	t.Setenv("IMAGEN_API_KEY", "key")
	t.Setenv("IMAGEN_ENDPOINT", "http://localhost:9")
	svc, err := New()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9", svc.endpoint)
}

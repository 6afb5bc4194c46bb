package embedders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/owasp/nest-search/pkg/config"
)

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) (*OpenAIEmbedder, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	e, err := NewOpenAIEmbedderFromConfig(&config.EmbedderConfig{
		APIKey:    "sk-test",
		Host:      server.URL,
		Dimension: 4,
		BatchSize: 2,
	})
	if err != nil {
		t.Fatalf("NewOpenAIEmbedderFromConfig() error = %v", err)
	}
	return e, server
}

func embedHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OpenAIEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		resp := OpenAIEmbedResponse{Object: "list", Model: req.Model}
		for i := range req.Input {
			resp.Data = append(resp.Data, struct {
				Object    string    `json:"object"`
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{
				Object:    "embedding",
				Embedding: []float32{float32(i), 1, 2, 3},
				Index:     i,
			})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func TestNewOpenAIEmbedderRequiresKey(t *testing.T) {
	if _, err := NewOpenAIEmbedderFromConfig(&config.EmbedderConfig{}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestNewOpenAIEmbedderDefaults(t *testing.T) {
	e, err := NewOpenAIEmbedderFromConfig(&config.EmbedderConfig{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	if e.ModelName() != "text-embedding-3-small" {
		t.Errorf("ModelName() = %q", e.ModelName())
	}
	if e.Dimension() != 1536 {
		t.Errorf("Dimension() = %d, want 1536", e.Dimension())
	}
}

func TestEmbed(t *testing.T) {
	e, _ := newTestEmbedder(t, embedHandler(t))

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 4 {
		t.Errorf("Embed() returned %d dims, want 4", len(vec))
	}
}

func TestEmbedBatchSplitsRequests(t *testing.T) {
	var requests int
	e, _ := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		embedHandler(t)(w, r)
	})

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vecs) != 5 {
		t.Errorf("EmbedBatch() returned %d vectors, want 5", len(vecs))
	}
	// BatchSize is 2, so 5 inputs require 3 requests.
	if requests != 3 {
		t.Errorf("expected 3 upstream requests, got %d", requests)
	}
}

func TestEmbedBatchEmpty(t *testing.T) {
	e, _ := newTestEmbedder(t, embedHandler(t))
	vecs, err := e.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch(nil) error = %v", err)
	}
	if vecs != nil {
		t.Errorf("EmbedBatch(nil) = %v, want nil", vecs)
	}
}

func TestEmbedAPIError(t *testing.T) {
	e, _ := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"auth","code":"invalid_api_key"}}`))
	})

	_, err := e.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}

	var embErr *EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("expected *EmbeddingError, got %T", err)
	}
}

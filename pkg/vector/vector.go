// Package vector abstracts the approximate-nearest-neighbor store holding
// chunk embeddings. Two backends ship: qdrant for external deployments and
// chromem for embedded zero-dependency ones.
package vector

import (
	"context"
	"fmt"

	"github.com/owasp/nest-search/pkg/config"
)

// Point is one vector with its payload.
type Point struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// Result is one similarity hit.
type Result struct {
	ID       string
	Content  string
	Score    float32
	Metadata map[string]any
}

// Backend stores and searches dense vectors.
type Backend interface {
	// EnsureCollection creates the collection if absent; no-op otherwise.
	EnsureCollection(ctx context.Context, collection string, vectorSize uint64) error

	// Upsert writes one point.
	Upsert(ctx context.Context, collection string, point Point) error

	// UpsertBatch writes many points in one round trip where possible.
	UpsertBatch(ctx context.Context, collection string, points []Point) error

	// Search returns up to topK nearest points by cosine similarity,
	// optionally restricted by exact-match metadata filters.
	Search(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error)

	// Delete removes one point by id.
	Delete(ctx context.Context, collection string, id string) error

	// DeleteByFilter removes all points matching the metadata filter.
	DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error

	// DeleteCollection drops the whole collection.
	DeleteCollection(ctx context.Context, collection string) error

	Close() error
}

// NewFromConfig builds the configured backend.
func NewFromConfig(cfg *config.VectorStoreConfig) (Backend, error) {
	switch cfg.Type {
	case "qdrant":
		return NewQdrantBackend(cfg)
	case "chromem", "":
		return NewChromemBackend(ChromemConfig{PersistPath: cfg.PersistPath})
	default:
		return nil, fmt.Errorf("unknown vector store type: %q", cfg.Type)
	}
}

package vector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemBackend implements Backend using chromem-go for embedded vector
// storage. Vectors live in memory with optional file persistence; similarity
// search is a brute-force cosine scan, which is fine for corpora below ~1e5
// chunks.
type ChromemBackend struct {
	db          *chromem.DB
	persistPath string
	mu          sync.RWMutex

	collections map[string]*chromem.Collection

	// embeddingFunc is an identity guard; vectors are always pre-computed
	// by the embedder package.
	embeddingFunc chromem.EmbeddingFunc
}

// ChromemConfig configures the embedded backend.
type ChromemConfig struct {
	// PersistPath enables file persistence. Empty keeps vectors in memory.
	PersistPath string `yaml:"persist_path,omitempty"`
}

// NewChromemBackend creates an embedded vector backend.
func NewChromemBackend(cfg ChromemConfig) (*ChromemBackend, error) {
	var db *chromem.DB
	var err error

	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}

		dbPath := cfg.PersistPath + "/vectors.gob"
		if _, statErr := os.Stat(dbPath); statErr == nil {
			db, err = chromem.NewPersistentDB(dbPath, false)
			if err != nil {
				slog.Warn("Failed to load existing vector database, creating new",
					"path", dbPath,
					"error", err)
				db = chromem.NewDB()
			}
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	identityEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("embedding function called but vectors should be pre-computed")
	}

	return &ChromemBackend{
		db:            db,
		persistPath:   cfg.PersistPath,
		collections:   make(map[string]*chromem.Collection),
		embeddingFunc: identityEmbed,
	}, nil
}

func (b *ChromemBackend) getCollection(name string) (*chromem.Collection, error) {
	b.mu.RLock()
	if col, ok := b.collections[name]; ok {
		b.mu.RUnlock()
		return col, nil
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	if col, ok := b.collections[name]; ok {
		return col, nil
	}

	col, err := b.db.GetOrCreateCollection(name, nil, b.embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create collection %q: %w", name, err)
	}

	b.collections[name] = col
	return col, nil
}

func (b *ChromemBackend) EnsureCollection(ctx context.Context, collection string, vectorSize uint64) error {
	_, err := b.getCollection(collection)
	return err
}

func (b *ChromemBackend) Upsert(ctx context.Context, collection string, point Point) error {
	return b.UpsertBatch(ctx, collection, []Point{point})
}

func (b *ChromemBackend) UpsertBatch(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	col, err := b.getCollection(collection)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(points))
	for _, p := range points {
		strMetadata := make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			strMetadata[k] = fmt.Sprint(v)
		}

		content := ""
		if c, ok := p.Metadata["content"].(string); ok {
			content = c
		}

		docs = append(docs, chromem.Document{
			ID:        p.ID,
			Content:   content,
			Metadata:  strMetadata,
			Embedding: p.Vector,
		})
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert documents: %w", err)
	}
	return nil
}

func (b *ChromemBackend) Search(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error) {
	col, err := b.getCollection(collection)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults above the collection size.
	if count := col.Count(); topK > count {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}

	var whereFilter map[string]string
	if len(filter) > 0 {
		whereFilter = make(map[string]string, len(filter))
		for k, v := range filter {
			whereFilter[k] = fmt.Sprint(v)
		}
	}

	results, err := col.QueryEmbedding(ctx, vector, topK, whereFilter, nil)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		metadata := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			metadata[k] = v
		}

		out = append(out, Result{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Similarity,
			Metadata: metadata,
		})
	}

	return out, nil
}

func (b *ChromemBackend) Delete(ctx context.Context, collection string, id string) error {
	col, err := b.getCollection(collection)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

func (b *ChromemBackend) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	col, err := b.getCollection(collection)
	if err != nil {
		return err
	}

	where := make(map[string]string, len(filter))
	for k, v := range filter {
		where[k] = fmt.Sprint(v)
	}

	if err := col.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("failed to delete documents by filter: %w", err)
	}
	return nil
}

func (b *ChromemBackend) DeleteCollection(ctx context.Context, collection string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.db.DeleteCollection(collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	delete(b.collections, collection)
	return nil
}

func (b *ChromemBackend) Close() error {
	return nil
}

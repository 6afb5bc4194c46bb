package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/owasp/nest-search/pkg/config"
	"github.com/owasp/nest-search/pkg/nest"
	"github.com/owasp/nest-search/pkg/vector"
)

// fakeEmbedder maps texts to deterministic unit-ish vectors so nearest
// neighbor order is predictable in tests.
type fakeEmbedder struct {
	calls   int
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := f.vectors[t]
		if !ok {
			return nil, fmt.Errorf("no fixture vector for %q", t)
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int    { return 3 }
func (f *fakeEmbedder) ModelName() string { return "fake" }
func (f *fakeEmbedder) Close() error      { return nil }

func newTestStore(t *testing.T, emb *fakeEmbedder) *Store {
	t.Helper()
	backend, err := vector.NewChromemBackend(vector.ChromemConfig{})
	if err != nil {
		t.Fatalf("NewChromemBackend() error = %v", err)
	}
	cfg := &config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db")}
	s, err := New(cfg, backend, emb, "test_chunks")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func defaultEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vectors: map[string][]float32{
		"alpha": {1, 0, 0},
		"beta":  {0, 1, 0},
		"gamma": {0.9, 0.1, 0},
		"query": {1, 0, 0},
	}}
}

func TestUpsertContextInsertAndUpdate(t *testing.T) {
	s := newTestStore(t, defaultEmbedder())
	ctx := context.Background()
	ref := nest.EntityRef{Type: nest.EntityProject, ID: 42}

	c, err := s.UpsertContext(ctx, ref, "first text", "owasp.org")
	if err != nil {
		t.Fatalf("UpsertContext() error = %v", err)
	}
	if c.Content != "first text" || c.Entity != ref {
		t.Errorf("unexpected context %+v", c)
	}

	c2, err := s.UpsertContext(ctx, ref, "second text", "github.com")
	if err != nil {
		t.Fatalf("UpsertContext() replace error = %v", err)
	}
	if c2.ID != c.ID {
		t.Errorf("replace changed row id: %d -> %d", c.ID, c2.ID)
	}
	if c2.Content != "second text" || c2.Source != "github.com" {
		t.Errorf("unexpected replaced context %+v", c2)
	}
}

func TestUpsertContextRejectsUnknownType(t *testing.T) {
	s := newTestStore(t, defaultEmbedder())
	_, err := s.UpsertContext(context.Background(), nest.EntityRef{Type: "bogus", ID: 1}, "x", "")
	if err == nil {
		t.Fatal("expected error for unknown entity type")
	}
	var serr *StoreError
	if !errors.As(err, &serr) {
		t.Errorf("error type = %T, want *StoreError", err)
	}
}

func TestUpsertContextTruncatesSource(t *testing.T) {
	s := newTestStore(t, defaultEmbedder())
	long := ""
	for i := 0; i < 30; i++ {
		long += "abcde"
	}
	c, err := s.UpsertContext(context.Background(), nest.EntityRef{Type: nest.EntityEvent, ID: 1}, "x", long)
	if err != nil {
		t.Fatalf("UpsertContext() error = %v", err)
	}
	if len(c.Source) != maxSourceLen {
		t.Errorf("source length = %d, want %d", len(c.Source), maxSourceLen)
	}
}

func TestUpsertContextTruncatesSourceOnRuneBoundary(t *testing.T) {
	s := newTestStore(t, defaultEmbedder())
	long := strings.Repeat("ü", maxSourceLen+10)
	c, err := s.UpsertContext(context.Background(), nest.EntityRef{Type: nest.EntityEvent, ID: 2}, "x", long)
	if err != nil {
		t.Fatalf("UpsertContext() error = %v", err)
	}
	if !utf8.ValidString(c.Source) {
		t.Error("truncated source is not valid UTF-8")
	}
	if got := utf8.RuneCountInString(c.Source); got != maxSourceLen {
		t.Errorf("source runes = %d, want %d", got, maxSourceLen)
	}
}

func TestPutChunksSkipsDuplicatesAndBatchesEmbedding(t *testing.T) {
	emb := defaultEmbedder()
	s := newTestStore(t, emb)
	ctx := context.Background()

	c, err := s.UpsertContext(ctx, nest.EntityRef{Type: nest.EntityProject, ID: 1}, "content", "src")
	if err != nil {
		t.Fatalf("UpsertContext() error = %v", err)
	}

	added, err := s.PutChunks(ctx, c.ID, []string{"alpha", "beta", "alpha", ""})
	if err != nil {
		t.Fatalf("PutChunks() error = %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("added %d chunks, want 2", len(added))
	}
	if emb.calls != 1 {
		t.Errorf("embedder calls = %d, want 1", emb.calls)
	}

	// Re-putting stored texts embeds nothing.
	added, err = s.PutChunks(ctx, c.ID, []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("PutChunks() repeat error = %v", err)
	}
	if len(added) != 0 {
		t.Errorf("repeated put added %d chunks, want 0", len(added))
	}
	if emb.calls != 1 {
		t.Errorf("embedder calls after repeat = %d, want 1", emb.calls)
	}
}

func TestPutChunksMissingContext(t *testing.T) {
	s := newTestStore(t, defaultEmbedder())
	_, err := s.PutChunks(context.Background(), 999, []string{"alpha"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestVectorSearchHydratesAndFilters(t *testing.T) {
	s := newTestStore(t, defaultEmbedder())
	ctx := context.Background()

	proj, _ := s.UpsertContext(ctx, nest.EntityRef{Type: nest.EntityProject, ID: 1}, "p", "src")
	chap, _ := s.UpsertContext(ctx, nest.EntityRef{Type: nest.EntityChapter, ID: 2}, "c", "src")
	if _, err := s.PutChunks(ctx, proj.ID, []string{"alpha", "gamma"}); err != nil {
		t.Fatalf("PutChunks() error = %v", err)
	}
	if _, err := s.PutChunks(ctx, chap.ID, []string{"beta"}); err != nil {
		t.Fatalf("PutChunks() error = %v", err)
	}

	query := []float32{1, 0, 0}
	hits, err := s.VectorSearch(ctx, query, 10, "")
	if err != nil {
		t.Fatalf("VectorSearch() error = %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("hits = %d, want 3", len(hits))
	}
	if hits[0].Text != "alpha" || hits[0].Entity.Key() != "project:1" {
		t.Errorf("top hit = %+v", hits[0])
	}

	hits, err = s.VectorSearch(ctx, query, 10, nest.EntityChapter)
	if err != nil {
		t.Fatalf("VectorSearch() filtered error = %v", err)
	}
	if len(hits) != 1 || hits[0].Text != "beta" {
		t.Errorf("filtered hits = %+v", hits)
	}
}

func TestVectorSearchDropsOrphanPoints(t *testing.T) {
	s := newTestStore(t, defaultEmbedder())
	ctx := context.Background()

	proj, _ := s.UpsertContext(ctx, nest.EntityRef{Type: nest.EntityProject, ID: 1}, "p", "src")
	if _, err := s.PutChunks(ctx, proj.ID, []string{"alpha", "beta"}); err != nil {
		t.Fatalf("PutChunks() error = %v", err)
	}

	// Delete the rows behind the backend's back; the points remain.
	if _, err := s.db.Exec(`DELETE FROM chunks WHERE text = 'alpha'`); err != nil {
		t.Fatalf("raw delete error = %v", err)
	}

	hits, err := s.VectorSearch(ctx, []float32{1, 0, 0}, 10, "")
	if err != nil {
		t.Fatalf("VectorSearch() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Text != "beta" {
		t.Errorf("hits = %+v, want only beta", hits)
	}
}

func TestDeleteContextCascades(t *testing.T) {
	s := newTestStore(t, defaultEmbedder())
	ctx := context.Background()
	ref := nest.EntityRef{Type: nest.EntityProject, ID: 7}

	c, _ := s.UpsertContext(ctx, ref, "p", "src")
	if _, err := s.PutChunks(ctx, c.ID, []string{"alpha"}); err != nil {
		t.Fatalf("PutChunks() error = %v", err)
	}
	if err := s.DeleteContext(ctx, ref); err != nil {
		t.Fatalf("DeleteContext() error = %v", err)
	}

	if _, err := s.GetContext(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetContext after delete = %v, want ErrNotFound", err)
	}
	hits, err := s.VectorSearch(ctx, []float32{1, 0, 0}, 10, "")
	if err != nil {
		t.Fatalf("VectorSearch() error = %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("hits after delete = %+v, want none", hits)
	}

	// Deleting again is a no-op.
	if err := s.DeleteContext(ctx, ref); err != nil {
		t.Errorf("repeated DeleteContext() error = %v", err)
	}
}

func TestUpsertContextReplaceDropsOldChunks(t *testing.T) {
	s := newTestStore(t, defaultEmbedder())
	ctx := context.Background()
	ref := nest.EntityRef{Type: nest.EntityProject, ID: 3}

	c, _ := s.UpsertContext(ctx, ref, "v1", "src")
	if _, err := s.PutChunks(ctx, c.ID, []string{"alpha"}); err != nil {
		t.Fatalf("PutChunks() error = %v", err)
	}
	if _, err := s.UpsertContext(ctx, ref, "v2", "src"); err != nil {
		t.Fatalf("UpsertContext() replace error = %v", err)
	}

	hits, err := s.VectorSearch(ctx, []float32{1, 0, 0}, 10, "")
	if err != nil {
		t.Fatalf("VectorSearch() error = %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("stale hits after replace = %+v", hits)
	}
}

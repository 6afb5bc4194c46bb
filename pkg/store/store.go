// Package store persists retrieval contexts and their chunks.
//
// A context is the full text gathered for one entity (a project, a
// chapter, an event...). Contexts are chunked, each chunk is embedded
// once, and the vectors live in a vector.Backend keyed by the chunk id.
// The sqlite rows are the source of truth: search results are hydrated
// against live rows so stale vector points never surface.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/owasp/nest-search/pkg/config"
	"github.com/owasp/nest-search/pkg/embedders"
	"github.com/owasp/nest-search/pkg/nest"
	"github.com/owasp/nest-search/pkg/vector"
)

const maxSourceLen = 100

// ErrNotFound is returned when a context does not exist.
var ErrNotFound = errors.New("context not found")

// Context is the stored text for one entity.
type Context struct {
	ID        int64
	Entity    nest.EntityRef
	Content   string
	Source    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is one embedded slice of a context.
type Chunk struct {
	ID        string
	ContextID int64
	Text      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SearchHit is a vector search result hydrated against live rows.
type SearchHit struct {
	ChunkID string
	Text    string
	Score   float32
	Entity  nest.EntityRef
	Source  string
}

// StoreError wraps a storage failure with call context.
type StoreError struct {
	Operation string
	Message   string
	Err       error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store %s: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("store %s: %s", e.Operation, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func newStoreError(operation, message string, err error) *StoreError {
	return &StoreError{Operation: operation, Message: message, Err: err}
}

const schema = `
CREATE TABLE IF NOT EXISTS contexts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type TEXT    NOT NULL,
	entity_id   INTEGER NOT NULL,
	content     TEXT    NOT NULL,
	source      TEXT    NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL,
	UNIQUE (entity_type, entity_id)
);

CREATE TABLE IF NOT EXISTS chunks (
	id         TEXT PRIMARY KEY,
	context_id INTEGER NOT NULL REFERENCES contexts (id) ON DELETE CASCADE,
	text       TEXT    NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (context_id, text)
);

CREATE INDEX IF NOT EXISTS idx_chunks_context ON chunks (context_id);
`

// Store owns the relational rows and keeps the vector backend in sync.
type Store struct {
	db         *sql.DB
	vectors    vector.Backend
	embedder   embedders.Provider
	collection string
}

// New opens (or creates) the sqlite database and runs migrations.
func New(cfg *config.DatabaseConfig, vectors vector.Backend, embedder embedders.Provider, collection string) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = "nest.db"
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path))
	if err != nil {
		return nil, newStoreError("open", "failed to open database", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, newStoreError("open", "failed to run migrations", err)
	}
	if collection == "" {
		collection = "nest_chunks"
	}
	s := &Store{
		db:         db,
		vectors:    vectors,
		embedder:   embedder,
		collection: collection,
	}
	if err := vectors.EnsureCollection(context.Background(), collection, uint64(embedder.Dimension())); err != nil {
		db.Close()
		return nil, newStoreError("open", "failed to ensure vector collection", err)
	}
	return s, nil
}

// Close releases the database handle. The vector backend is owned by the
// caller and is not closed here.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertContext creates or replaces the context for an entity. Replacing
// a context discards its previous chunks, both rows and vector points,
// so PutChunks always starts from a clean slate.
func (s *Store) UpsertContext(ctx context.Context, entity nest.EntityRef, content, source string) (*Context, error) {
	if err := entity.Type.Validate(); err != nil {
		return nil, newStoreError("upsert_context", "invalid entity type", err)
	}
	// Trim on a rune boundary so a multi-byte character is never split.
	if runes := []rune(source); len(runes) > maxSourceLen {
		source = string(runes[:maxSourceLen])
	}

	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, newStoreError("upsert_context", "failed to begin transaction", err)
	}
	defer tx.Rollback()

	var existingID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM contexts WHERE entity_type = ? AND entity_id = ?`,
		string(entity.Type), entity.ID).Scan(&existingID)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx,
			`UPDATE contexts SET content = ?, source = ?, updated_at = ? WHERE id = ?`,
			content, source, now, existingID); err != nil {
			return nil, newStoreError("upsert_context", "failed to update context", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE context_id = ?`, existingID); err != nil {
			return nil, newStoreError("upsert_context", "failed to clear chunks", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO contexts (entity_type, entity_id, content, source, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			string(entity.Type), entity.ID, content, source, now, now)
		if err != nil {
			return nil, newStoreError("upsert_context", "failed to insert context", err)
		}
		existingID, err = res.LastInsertId()
		if err != nil {
			return nil, newStoreError("upsert_context", "failed to read insert id", err)
		}
	default:
		return nil, newStoreError("upsert_context", "failed to look up context", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, newStoreError("upsert_context", "failed to commit", err)
	}

	// Stale points for a replaced context are dropped after commit; if
	// this fails the rows stay authoritative and hydration filters the
	// leftovers out of search results.
	if err := s.vectors.DeleteByFilter(ctx, s.collection, map[string]any{
		"context_id": fmt.Sprintf("%d", existingID),
	}); err != nil {
		return nil, newStoreError("upsert_context", "failed to drop stale vectors", err)
	}

	return s.GetContextByID(ctx, existingID)
}

// GetContext returns the context for an entity, or ErrNotFound.
func (s *Store) GetContext(ctx context.Context, entity nest.EntityRef) (*Context, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, entity_type, entity_id, content, source, created_at, updated_at
		 FROM contexts WHERE entity_type = ? AND entity_id = ?`,
		string(entity.Type), entity.ID)
	return scanContext(row)
}

// GetContextByID returns the context with the given row id, or ErrNotFound.
func (s *Store) GetContextByID(ctx context.Context, id int64) (*Context, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, entity_type, entity_id, content, source, created_at, updated_at
		 FROM contexts WHERE id = ?`, id)
	return scanContext(row)
}

func scanContext(row *sql.Row) (*Context, error) {
	var c Context
	var entityType string
	err := row.Scan(&c.ID, &entityType, &c.Entity.ID, &c.Content, &c.Source, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, newStoreError("get_context", "failed to scan context", err)
	}
	c.Entity.Type = nest.EntityType(entityType)
	return &c, nil
}

// PutChunks stores chunk texts for a context and indexes their vectors.
// Texts already stored for the context are skipped, so the whole batch
// costs at most one embedding call. Returns the chunks actually added.
func (s *Store) PutChunks(ctx context.Context, contextID int64, texts []string) ([]Chunk, error) {
	parent, err := s.GetContextByID(ctx, contextID)
	if err != nil {
		return nil, err
	}

	existing, err := s.chunkTexts(ctx, contextID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[t] = true
	}
	var fresh []string
	for _, t := range texts {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		fresh = append(fresh, t)
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	vectors, err := s.embedder.EmbedBatch(ctx, fresh)
	if err != nil {
		return nil, newStoreError("put_chunks", "failed to embed chunks", err)
	}
	if len(vectors) != len(fresh) {
		return nil, newStoreError("put_chunks",
			fmt.Sprintf("embedder returned %d vectors for %d texts", len(vectors), len(fresh)), nil)
	}

	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, newStoreError("put_chunks", "failed to begin transaction", err)
	}
	defer tx.Rollback()

	chunks := make([]Chunk, 0, len(fresh))
	points := make([]vector.Point, 0, len(fresh))
	for i, text := range fresh {
		id := uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (id, context_id, text, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			id, contextID, text, now, now); err != nil {
			return nil, newStoreError("put_chunks", "failed to insert chunk", err)
		}
		chunks = append(chunks, Chunk{ID: id, ContextID: contextID, Text: text, CreatedAt: now, UpdatedAt: now})
		points = append(points, vector.Point{
			ID:     id,
			Vector: vectors[i],
			Metadata: map[string]any{
				"entity_type": string(parent.Entity.Type),
				"entity_id":   fmt.Sprintf("%d", parent.Entity.ID),
				"context_id":  fmt.Sprintf("%d", contextID),
				"text":        text,
				"source":      parent.Source,
			},
		})
	}
	if err := tx.Commit(); err != nil {
		return nil, newStoreError("put_chunks", "failed to commit", err)
	}

	if err := s.vectors.UpsertBatch(ctx, s.collection, points); err != nil {
		return nil, newStoreError("put_chunks", "failed to index vectors", err)
	}
	return chunks, nil
}

func (s *Store) chunkTexts(ctx context.Context, contextID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT text FROM chunks WHERE context_id = ?`, contextID)
	if err != nil {
		return nil, newStoreError("put_chunks", "failed to list chunks", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, newStoreError("put_chunks", "failed to scan chunk", err)
		}
		texts = append(texts, t)
	}
	return texts, rows.Err()
}

// DeleteContext removes an entity's context, its chunks, and their
// vector points. Deleting a missing context is not an error.
func (s *Store) DeleteContext(ctx context.Context, entity nest.EntityRef) error {
	existing, err := s.GetContext(ctx, entity)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM contexts WHERE id = ?`, existing.ID); err != nil {
		return newStoreError("delete_context", "failed to delete context", err)
	}
	if err := s.vectors.DeleteByFilter(ctx, s.collection, map[string]any{
		"context_id": fmt.Sprintf("%d", existing.ID),
	}); err != nil {
		return newStoreError("delete_context", "failed to drop vectors", err)
	}
	return nil
}

// VectorSearch runs nearest-neighbor search over chunk vectors and
// hydrates the hits against live rows. Points whose chunk row has been
// deleted since indexing are silently dropped, so the result may hold
// fewer than topK hits. An optional entity type narrows the search.
func (s *Store) VectorSearch(ctx context.Context, queryVector []float32, topK int, entityType nest.EntityType) ([]SearchHit, error) {
	if topK <= 0 {
		return nil, nil
	}
	var filter map[string]any
	if entityType != "" {
		if err := entityType.Validate(); err != nil {
			return nil, newStoreError("vector_search", "invalid entity type", err)
		}
		filter = map[string]any{"entity_type": string(entityType)}
	}

	results, err := s.vectors.Search(ctx, s.collection, queryVector, topK, filter)
	if err != nil {
		return nil, newStoreError("vector_search", "backend search failed", err)
	}
	return s.hydrate(ctx, results)
}

func (s *Store) hydrate(ctx context.Context, results []vector.Result) ([]SearchHit, error) {
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		row := s.db.QueryRowContext(ctx,
			`SELECT ch.text, co.entity_type, co.entity_id, co.source
			 FROM chunks ch JOIN contexts co ON co.id = ch.context_id
			 WHERE ch.id = ?`, r.ID)
		var hit SearchHit
		var entityType string
		err := row.Scan(&hit.Text, &entityType, &hit.Entity.ID, &hit.Source)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, newStoreError("vector_search", "failed to hydrate hit", err)
		}
		hit.ChunkID = r.ID
		hit.Score = r.Score
		hit.Entity.Type = nest.EntityType(entityType)
		hits = append(hits, hit)
	}
	return hits, nil
}

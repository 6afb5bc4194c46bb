package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/owasp/nest-search/pkg/chunker"
	"github.com/owasp/nest-search/pkg/embedders"
	"github.com/owasp/nest-search/pkg/engine"
	"github.com/owasp/nest-search/pkg/health"
	"github.com/owasp/nest-search/pkg/nest"
	"github.com/owasp/nest-search/pkg/store"
	"github.com/owasp/nest-search/pkg/vector"
)

// entityRecord is one ingestable entity: its retrieval text plus the
// engine-shaped document to index.
type entityRecord struct {
	EntityType string         `json:"entity_type"`
	EntityID   uint64         `json:"entity_id"`
	Key        string         `json:"key"`
	Content    string         `json:"content"`
	Source     string         `json:"source"`
	Document   map[string]any `json:"document,omitempty"`

	// Projects may carry repository metrics; their health score is
	// computed at ingest time and indexed as a ranking signal.
	Level  string          `json:"level,omitempty"`
	Health *health.Metrics `json:"health,omitempty"`
}

// IngestCmd chunks, embeds, and indexes entities from a JSON export.
type IngestCmd struct {
	EntityType string `name:"entity-type" help:"Ingest only entities of this type."`
	Key        string `help:"Ingest only the entity with this key (requires --entity-type)."`
	All        bool   `help:"Ingest every entity in the input."`
	BatchSize  int    `name:"batch-size" help:"Chunk texts embedded per batch." default:"100"`
	Input      string `help:"Path to the JSON entity export." type:"path" default:"entities.json"`
}

func (c *IngestCmd) Run(cli *CLI) error {
	if !c.All && c.EntityType == "" {
		return fmt.Errorf("%w: pass --all or --entity-type", errConfig)
	}
	if c.Key != "" && c.EntityType == "" {
		return fmt.Errorf("%w: --key requires --entity-type", errConfig)
	}
	var wantType nest.EntityType
	if c.EntityType != "" {
		t, err := nest.ParseEntityType(c.EntityType)
		if err != nil {
			return fmt.Errorf("%w: %v", errConfig, err)
		}
		wantType = t
	}

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	records, err := readRecords(c.Input)
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}

	embedder, err := embedders.NewFromConfig(&cfg.Embedder)
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}
	defer embedder.Close()

	backend, err := vector.NewFromConfig(&cfg.VectorStore)
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}
	defer backend.Close()

	st, err := store.New(&cfg.Database, backend, embedder, cfg.VectorStore.Collection)
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}
	defer st.Close()

	splitter, err := chunker.New(chunker.Config{
		ChunkSize: cfg.Chunker.ChunkSize,
		Overlap:   cfg.Chunker.Overlap,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}

	svc := engine.NewService(&cfg.Engine)
	ing := &ingestor{store: st, splitter: splitter, engine: svc, batchSize: c.BatchSize}

	ctx := context.Background()
	processed, failed := 0, 0
	for _, rec := range records {
		if wantType != "" && nest.EntityType(rec.EntityType) != wantType {
			continue
		}
		if c.Key != "" && rec.Key != c.Key {
			continue
		}
		if err := ing.ingest(ctx, rec); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s/%s: %v\n", rec.EntityType, rec.Key, err)
			continue
		}
		processed++
	}

	fmt.Printf("ingested %d entities", processed)
	if failed > 0 {
		fmt.Printf(", %d failed", failed)
	}
	fmt.Println()

	if processed == 0 && failed == 0 {
		return fmt.Errorf("%w: no entities matched the selection", errConfig)
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d entities", errPartial, failed, processed+failed)
	}
	return nil
}

func readRecords(path string) ([]entityRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []entityRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return records, nil
}

// ingestor carries one run's pipeline: chunk into the store, then
// upsert the engine document.
type ingestor struct {
	store     *store.Store
	splitter  *chunker.Splitter
	engine    *engine.Service
	batchSize int
}

func (i *ingestor) ingest(ctx context.Context, rec entityRecord) error {
	entityType, err := nest.ParseEntityType(rec.EntityType)
	if err != nil {
		return err
	}
	ref := nest.EntityRef{Type: entityType, ID: rec.EntityID}

	if rec.Content != "" {
		saved, err := i.store.UpsertContext(ctx, ref, rec.Content, rec.Source)
		if err != nil {
			return err
		}
		texts := i.splitter.Split(rec.Content)
		for start := 0; start < len(texts); start += i.batchSize {
			end := start + i.batchSize
			if end > len(texts) {
				end = len(texts)
			}
			if _, err := i.store.PutChunks(ctx, saved.ID, texts[start:end]); err != nil {
				return err
			}
		}
	}

	if rec.Document != nil {
		schema, ok := engine.CollectionSchema(entityType.Collection())
		if !ok {
			return fmt.Errorf("no schema for collection %s", entityType.Collection())
		}
		if err := i.engine.EnsureCollection(ctx, schema); err != nil {
			return err
		}
		doc := make(map[string]any, len(rec.Document)+1)
		for k, v := range rec.Document {
			doc[k] = v
		}
		doc["id"] = strconv.FormatUint(rec.EntityID, 10)
		if entityType == nest.EntityProject && rec.Health != nil {
			if err := rec.Health.Validate(); err != nil {
				return err
			}
			req := health.DefaultRequirements(nest.ParseProjectLevel(rec.Level))
			doc["health_score"] = health.Score(*rec.Health, req)
		}
		if err := i.engine.UpsertDocuments(ctx, entityType.Collection(), []map[string]any{doc}, engine.ActionUpsert); err != nil {
			return err
		}
	}
	return nil
}

// ReindexCmd drops and recreates engine collections. Documents must be
// re-ingested afterwards.
type ReindexCmd struct {
	Collection string `help:"Collection to recreate."`
	All        bool   `help:"Recreate every collection."`
}

func (c *ReindexCmd) Run(cli *CLI) error {
	if !c.All && c.Collection == "" {
		return fmt.Errorf("%w: pass --all or --collection", errConfig)
	}

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	svc := engine.NewService(&cfg.Engine)

	var schemas []engine.Schema
	if c.All {
		schemas = engine.Collections()
	} else {
		schema, ok := engine.CollectionSchema(c.Collection)
		if !ok {
			return fmt.Errorf("%w: unknown collection %q", errConfig, c.Collection)
		}
		schemas = []engine.Schema{schema}
	}

	ctx := context.Background()
	failed := 0
	for _, schema := range schemas {
		if err := svc.RecreateCollection(ctx, schema); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", schema.Name, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d collections", errPartial, failed, len(schemas))
	}
	return nil
}

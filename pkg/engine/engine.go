// Package engine maintains per-entity-type document collections in a
// Typesense backend and answers faceted full-text and geo queries.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/typesense/typesense-go/v3/typesense"
	"github.com/typesense/typesense-go/v3/typesense/api"
	"github.com/typesense/typesense-go/v3/typesense/api/pointer"

	"github.com/owasp/nest-search/pkg/config"
	"github.com/owasp/nest-search/pkg/logger"
)

// IndexAction selects the write semantics for UpsertDocuments.
type IndexAction string

const (
	ActionCreate IndexAction = "create"
	ActionUpsert IndexAction = "upsert"
)

// Params holds one search call's parameters. Zero values fall back to
// the collection schema's defaults.
type Params struct {
	Query               string
	QueryBy             []string
	QueryByWeights      []int
	FilterBy            string
	SortBy              string
	FacetBy             []string
	IncludeFields       []string
	Page                int
	PerPage             int
	DropTokensThreshold int
	NumTypos            int
	PrioritizeExact     bool
	HighlightFullFields []string
}

// Hit is one matched document with its highlights.
type Hit struct {
	Document   map[string]any
	Highlights map[string][]string
	TextMatch  int64
}

// FacetCount is one facet value with its document count.
type FacetCount struct {
	Value string
	Count int
}

// Result is the engine's answer to one search call.
type Result struct {
	Hits    []Hit
	Facets  map[string][]FacetCount
	Total   int
	Page    int
	PerPage int
	NbPages int
	TookMS  int
}

// EngineError wraps a backend failure with call context.
type EngineError struct {
	Operation  string
	Collection string
	Message    string
	Err        error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine %s [%s]: %s: %v", e.Operation, e.Collection, e.Message, e.Err)
	}
	return fmt.Sprintf("engine %s [%s]: %s", e.Operation, e.Collection, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func newEngineError(operation, collection, message string, err error) *EngineError {
	return &EngineError{Operation: operation, Collection: collection, Message: message, Err: err}
}

// Service is the search index service over one Typesense cluster.
type Service struct {
	client *typesense.Client
	logger *slog.Logger
}

// NewService builds a Service from configuration.
func NewService(cfg *config.EngineConfig) *Service {
	protocol := cfg.Protocol
	if protocol == "" {
		protocol = "http"
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := typesense.NewClient(
		typesense.WithServer(fmt.Sprintf("%s://%s:%d", protocol, cfg.Host, cfg.Port)),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(timeout),
	)
	return &Service{client: client, logger: logger.GetLogger()}
}

// Health pings the backend.
func (s *Service) Health(ctx context.Context) error {
	ok, err := s.client.Health(ctx, 2*time.Second)
	if err != nil {
		return newEngineError("health", "", "backend unreachable", err)
	}
	if !ok {
		return newEngineError("health", "", "backend reported unhealthy", nil)
	}
	return nil
}

// EnsureCollection creates the collection if absent. An existing
// collection is left untouched, even if its schema drifted; use
// RecreateCollection to force the declared schema.
func (s *Service) EnsureCollection(ctx context.Context, schema Schema) error {
	_, err := s.client.Collection(schema.Name).Retrieve(ctx)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return newEngineError("ensure_collection", schema.Name, "failed to probe collection", err)
	}
	if _, err := s.client.Collections().Create(ctx, schema.toAPI()); err != nil {
		return newEngineError("ensure_collection", schema.Name, "failed to create collection", err)
	}
	s.logger.Info("created collection", "collection", schema.Name, "fields", len(schema.Fields))
	return nil
}

// RecreateCollection drops and recreates the collection. Used by full
// re-indexing, which re-imports every document afterwards.
func (s *Service) RecreateCollection(ctx context.Context, schema Schema) error {
	if _, err := s.client.Collection(schema.Name).Delete(ctx); err != nil && !isNotFound(err) {
		return newEngineError("recreate_collection", schema.Name, "failed to drop collection", err)
	}
	if _, err := s.client.Collections().Create(ctx, schema.toAPI()); err != nil {
		return newEngineError("recreate_collection", schema.Name, "failed to create collection", err)
	}
	s.logger.Info("recreated collection", "collection", schema.Name)
	return nil
}

// UpsertDocuments imports a batch of documents. A missing collection is
// fatal on write. Partial failures surface as an error naming the
// failed count.
func (s *Service) UpsertDocuments(ctx context.Context, collection string, docs []map[string]any, action IndexAction) error {
	if len(docs) == 0 {
		return nil
	}
	if action == "" {
		action = ActionUpsert
	}
	payload := make([]any, len(docs))
	for i, d := range docs {
		payload[i] = d
	}
	responses, err := s.client.Collection(collection).Documents().Import(ctx, payload, &api.ImportDocumentsParams{
		Action:    pointer.Any(api.IndexAction(action)),
		BatchSize: pointer.Int(100),
	})
	if err != nil {
		return newEngineError("upsert_documents", collection, "import failed", err)
	}
	failed := 0
	for _, r := range responses {
		if r != nil && !r.Success {
			failed++
		}
	}
	if failed > 0 {
		return newEngineError("upsert_documents", collection,
			fmt.Sprintf("%d of %d documents rejected", failed, len(docs)), nil)
	}
	s.logger.Debug("imported documents", "collection", collection, "count", len(docs), "action", string(action))
	return nil
}

// DeleteDocument removes one document by id. Missing documents and
// missing collections are not errors.
func (s *Service) DeleteDocument(ctx context.Context, collection, id string) error {
	_, err := s.client.Collection(collection).Document(id).Delete(ctx)
	if err != nil && !isNotFound(err) {
		return newEngineError("delete_document", collection, "delete failed", err)
	}
	return nil
}

// Search runs one query against a collection. A missing collection
// yields an empty result with Total=0 rather than an error; readers
// race collection creation during first ingest.
func (s *Service) Search(ctx context.Context, collection string, p Params) (*Result, error) {
	if len(p.QueryBy) == 0 {
		if schema, ok := CollectionSchema(collection); ok {
			p.QueryBy = schema.QueryBy
			p.QueryByWeights = schema.QueryByWeights
		}
	}
	searchParams, perPage := buildSearchParams(p)

	raw, err := s.client.Collection(collection).Documents().Search(ctx, searchParams)
	if err != nil {
		if isNotFound(err) {
			return &Result{Page: pageOrDefault(p.Page), PerPage: perPage}, nil
		}
		return nil, newEngineError("search", collection, "search failed", err)
	}
	return convertResult(raw, perPage), nil
}

func pageOrDefault(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// buildSearchParams translates Params into the backend's wire form and
// returns the effective per-page size.
func buildSearchParams(p Params) (*api.SearchCollectionParams, int) {
	perPage := p.PerPage
	if perPage < 1 {
		perPage = 25
	}
	query := p.Query
	if query == "" {
		// Wildcard matches everything; ranking falls to the sort chain.
		query = "*"
	}
	sp := &api.SearchCollectionParams{
		Q:       pointer.String(query),
		QueryBy: pointer.String(strings.Join(p.QueryBy, ",")),
		Page:    pointer.Int(pageOrDefault(p.Page)),
		PerPage: pointer.Int(perPage),
	}
	if len(p.QueryByWeights) > 0 {
		weights := make([]string, len(p.QueryByWeights))
		for i, w := range p.QueryByWeights {
			weights[i] = strconv.Itoa(w)
		}
		sp.QueryByWeights = pointer.String(strings.Join(weights, ","))
	}
	if p.FilterBy != "" {
		sp.FilterBy = pointer.String(p.FilterBy)
	}
	if p.SortBy != "" {
		sp.SortBy = pointer.String(p.SortBy)
	}
	if len(p.FacetBy) > 0 {
		sp.FacetBy = pointer.String(strings.Join(p.FacetBy, ","))
	}
	if len(p.IncludeFields) > 0 {
		sp.IncludeFields = pointer.String(strings.Join(p.IncludeFields, ","))
	}
	if p.DropTokensThreshold > 0 {
		sp.DropTokensThreshold = pointer.Int(p.DropTokensThreshold)
	}
	if p.NumTypos > 0 {
		sp.NumTypos = pointer.String(strconv.Itoa(p.NumTypos))
	}
	if p.PrioritizeExact {
		sp.PrioritizeExactMatch = pointer.True()
	}
	if len(p.HighlightFullFields) > 0 {
		sp.HighlightFullFields = pointer.String(strings.Join(p.HighlightFullFields, ","))
	}
	return sp, perPage
}

func convertResult(raw *api.SearchResult, perPage int) *Result {
	out := &Result{PerPage: perPage, Facets: map[string][]FacetCount{}}
	if raw == nil {
		out.Page = 1
		return out
	}
	if raw.Found != nil {
		out.Total = *raw.Found
	}
	if raw.Page != nil {
		out.Page = *raw.Page
	} else {
		out.Page = 1
	}
	if raw.SearchTimeMs != nil {
		out.TookMS = *raw.SearchTimeMs
	}
	out.NbPages = int(math.Ceil(float64(out.Total) / float64(perPage)))
	if raw.Hits != nil {
		out.Hits = make([]Hit, 0, len(*raw.Hits))
		for _, h := range *raw.Hits {
			hit := Hit{Highlights: map[string][]string{}}
			if h.Document != nil {
				hit.Document = *h.Document
			}
			if h.TextMatch != nil {
				hit.TextMatch = *h.TextMatch
			}
			if h.Highlights != nil {
				for _, hl := range *h.Highlights {
					if hl.Field == nil {
						continue
					}
					switch {
					case hl.Snippets != nil && len(*hl.Snippets) > 0:
						hit.Highlights[*hl.Field] = *hl.Snippets
					case hl.Snippet != nil:
						hit.Highlights[*hl.Field] = []string{*hl.Snippet}
					}
				}
			}
			out.Hits = append(out.Hits, hit)
		}
	}
	if raw.FacetCounts != nil {
		for _, fc := range *raw.FacetCounts {
			if fc.FieldName == nil || fc.Counts == nil {
				continue
			}
			counts := make([]FacetCount, 0, len(*fc.Counts))
			for _, c := range *fc.Counts {
				var v FacetCount
				if c.Value != nil {
					v.Value = *c.Value
				}
				if c.Count != nil {
					v.Count = *c.Count
				}
				counts = append(counts, v)
			}
			out.Facets[*fc.FieldName] = counts
		}
	}
	return out
}

// DecodeHit maps an engine document into a typed struct using its json
// tags. Numeric fields tolerate the engine's float64 JSON decoding.
func DecodeHit(doc map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(doc)
}

func isNotFound(err error) bool {
	var httpErr *typesense.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status == 404
	}
	return false
}

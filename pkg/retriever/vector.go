package retriever

import (
	"context"
	"fmt"
	"sort"

	"github.com/owasp/nest-search/pkg/embedders"
	"github.com/owasp/nest-search/pkg/nest"
	"github.com/owasp/nest-search/pkg/store"
)

// ChunkSearcher is the slice of the chunk store vector search needs.
type ChunkSearcher interface {
	VectorSearch(ctx context.Context, queryVector []float32, topK int, entityType nest.EntityType) ([]store.SearchHit, error)
}

// VectorSearcher answers free-text queries by embedding them and
// running nearest-neighbor search over stored chunk vectors.
type VectorSearcher struct {
	embedder embedders.Provider
	chunks   ChunkSearcher
}

// NewVectorSearcher wires the semantic leg of hybrid retrieval.
func NewVectorSearcher(embedder embedders.Provider, chunks ChunkSearcher) *VectorSearcher {
	return &VectorSearcher{embedder: embedder, chunks: chunks}
}

// Search embeds the query and returns at most limit hits with cosine
// similarity at or above threshold, ordered by descending similarity.
// Ties are broken by entity type, then lower entity id, so results are
// deterministic.
func (v *VectorSearcher) Search(ctx context.Context, query string, types []nest.EntityType, limit int, threshold float64) ([]Doc, error) {
	if query == "" || limit < 1 {
		return nil, nil
	}
	vec, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var hits []store.SearchHit
	if len(types) == 0 {
		hits, err = v.chunks.VectorSearch(ctx, vec, limit, "")
		if err != nil {
			return nil, err
		}
	} else {
		// One filtered pass per requested type; the merged set is
		// re-ranked below.
		for _, t := range types {
			typed, err := v.chunks.VectorSearch(ctx, vec, limit, t)
			if err != nil {
				return nil, err
			}
			hits = append(hits, typed...)
		}
	}

	docs := make([]Doc, 0, len(hits))
	for _, h := range hits {
		score := float64(h.Score)
		if score < threshold {
			continue
		}
		docs = append(docs, Doc{
			SourceID: h.Entity.Key(),
			Text:     h.Text,
			Payload: map[string]any{
				"entity_type": string(h.Entity.Type),
				"entity_id":   h.Entity.ID,
				"chunk_id":    h.ChunkID,
				"text":        h.Text,
				"source":      h.Source,
			},
			SubScores: map[string]float64{"vector": score},
		})
	}
	sort.SliceStable(docs, func(i, j int) bool {
		si, sj := docs[i].SubScores["vector"], docs[j].SubScores["vector"]
		if si != sj {
			return si > sj
		}
		return lessSourceID(docs[i].SourceID, docs[j].SourceID)
	})

	// A chunk list can hold several chunks of one entity; keep the best
	// chunk per entity so fusion ranks entities, not chunk multiplicity.
	seen := make(map[string]bool, len(docs))
	deduped := docs[:0]
	for _, d := range docs {
		if seen[d.SourceID] {
			continue
		}
		seen[d.SourceID] = true
		deduped = append(deduped, d)
	}
	if len(deduped) > limit {
		deduped = deduped[:limit]
	}
	return deduped, nil
}

package retriever

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/owasp/nest-search/pkg/config"
	"github.com/owasp/nest-search/pkg/logger"
	"github.com/owasp/nest-search/pkg/nest"
)

// LexicalSearcher is the keyword leg seen by the hybrid retriever.
type LexicalSearcher interface {
	Search(ctx context.Context, query, filterBy string, types []nest.EntityType, limit int) ([]Doc, error)
}

// SemanticSearcher is the dense-vector leg seen by the hybrid retriever.
type SemanticSearcher interface {
	Search(ctx context.Context, query string, types []nest.EntityType, limit int, threshold float64) ([]Doc, error)
}

// Hybrid runs both retrieval legs concurrently and fuses their ranked
// lists with reciprocal rank fusion.
type Hybrid struct {
	lexical   LexicalSearcher
	semantic  SemanticSearcher
	k         int
	threshold float64
	logger    *slog.Logger
}

// NewHybrid builds the fused retriever from its two legs.
func NewHybrid(cfg *config.RetrieverConfig, lexical LexicalSearcher, semantic SemanticSearcher) *Hybrid {
	k := cfg.RRFK
	if k <= 0 {
		k = DefaultRRFK
	}
	return &Hybrid{
		lexical:   lexical,
		semantic:  semantic,
		k:         k,
		threshold: cfg.SimilarityThreshold,
		logger:    logger.GetLogger(),
	}
}

// Retrieve answers one query. Both legs run concurrently; either leg
// failing fails the call, since a silently missing leg would skew the
// fused ranking.
func (h *Hybrid) Retrieve(ctx context.Context, req QueryRequest) ([]Doc, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	threshold := req.SimilarityThreshold
	if threshold == 0 {
		threshold = h.threshold
	}

	var lexDocs, vecDocs []Doc
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lexDocs, err = h.lexical.Search(gctx, req.Query, req.Filters, req.ContentTypes, req.Limit)
		return err
	})
	g.Go(func() error {
		var err error
		vecDocs, err = h.semantic.Search(gctx, req.Query, req.ContentTypes, req.Limit, threshold)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused, err := Fuse(h.k, vecDocs, lexDocs)
	if err != nil {
		return nil, err
	}
	if len(fused) > req.Limit {
		fused = fused[:req.Limit]
	}
	h.logger.Debug("hybrid retrieval",
		"query", req.Query,
		"lexical", len(lexDocs),
		"vector", len(vecDocs),
		"fused", len(fused))
	return fused, nil
}

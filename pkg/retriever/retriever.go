// Package retriever fuses dense-vector and lexical search into one
// ranked list via reciprocal rank fusion.
package retriever

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/owasp/nest-search/pkg/nest"
)

// MaxLimit bounds the number of hits any request may ask for.
const MaxLimit = 1000

// DefaultLimit applies when a request leaves the limit unset.
const DefaultLimit = 10

// ErrMissingID reports a fused input document without a stable source
// id. Callers must not drop such documents silently.
var ErrMissingID = errors.New("document missing source id")

// Doc is one ranked document flowing through retrieval. SourceID is the
// stable entity key ("project:42") used for deduplication.
type Doc struct {
	SourceID  string
	Text      string
	Payload   map[string]any
	RRFScore  float64
	SubScores map[string]float64
}

// QueryRequest holds the inputs to one retrieval call.
type QueryRequest struct {
	Query               string
	Filters             string
	ContentTypes        []nest.EntityType
	Limit               int
	SimilarityThreshold float64
	IP                  string
}

// Normalize clamps the request into its valid ranges. A zero limit
// means unset and takes DefaultLimit; explicit values are clamped to
// [1, MaxLimit].
func (r *QueryRequest) Normalize() {
	switch {
	case r.Limit == 0:
		r.Limit = DefaultLimit
	case r.Limit < 1:
		r.Limit = 1
	case r.Limit > MaxLimit:
		r.Limit = MaxLimit
	}
	if r.SimilarityThreshold < 0 {
		r.SimilarityThreshold = 0
	}
	if r.SimilarityThreshold > 1 {
		r.SimilarityThreshold = 1
	}
}

// lessSourceID orders entity keys by type, then numeric id, so
// "project:9" sorts before "project:10". Keys without a numeric id
// fall back to plain string order.
func lessSourceID(a, b string) bool {
	at, aid, aok := splitSourceID(a)
	bt, bid, bok := splitSourceID(b)
	if aok && bok {
		if at != bt {
			return at < bt
		}
		return aid < bid
	}
	return a < b
}

func splitSourceID(key string) (string, uint64, bool) {
	entityType, rawID, found := strings.Cut(key, ":")
	if !found {
		return "", 0, false
	}
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return "", 0, false
	}
	return entityType, id, true
}

// Validate rejects requests the retriever cannot serve.
func (r *QueryRequest) Validate() error {
	for _, t := range r.ContentTypes {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("invalid content type: %w", err)
		}
	}
	return nil
}

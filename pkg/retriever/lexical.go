package retriever

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/owasp/nest-search/pkg/engine"
	"github.com/owasp/nest-search/pkg/nest"
	"github.com/owasp/nest-search/pkg/queryfilter"
)

// EngineLexical is the keyword leg of hybrid retrieval, backed by the
// document search engine's per-type collections.
type EngineLexical struct {
	svc *engine.Service
}

// NewEngineLexical wraps the search index service for retrieval.
func NewEngineLexical(svc *engine.Service) *EngineLexical {
	return &EngineLexical{svc: svc}
}

// Search queries one collection per requested type (all types when the
// set is empty) and merges the hits by text match, best first.
func (l *EngineLexical) Search(ctx context.Context, query, filterBy string, types []nest.EntityType, limit int) ([]Doc, error) {
	if query == "" || limit < 1 {
		return nil, nil
	}
	if len(types) == 0 {
		types = nest.EntityTypes()
	}

	var docs []Doc
	for _, t := range types {
		result, err := l.svc.Search(ctx, t.Collection(), engine.Params{
			Query:    query,
			FilterBy: translateFilters(t.Collection(), filterBy),
			PerPage:  limit,
		})
		if err != nil {
			return nil, err
		}
		for _, hit := range result.Hits {
			doc, err := hitToDoc(t, hit)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
	}

	sort.SliceStable(docs, func(i, j int) bool {
		si, sj := docs[i].SubScores["lexical"], docs[j].SubScores["lexical"]
		if si != sj {
			return si > sj
		}
		return docs[i].SourceID < docs[j].SourceID
	})
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// translateFilters turns a user-supplied "field:value field>n" filter
// string into engine filter_by syntax, keeping only fields the
// collection schema declares. Malformed input falls back to an
// unfiltered query.
func translateFilters(collection, filters string) string {
	if filters == "" {
		return ""
	}
	p := queryfilter.New(filterSchemaFor(collection))
	terms, err := p.Parse(filters)
	if err != nil || len(terms) == 0 {
		return ""
	}
	return p.Translate(terms)
}

func filterSchemaFor(collection string) queryfilter.Schema {
	schema, ok := engine.CollectionSchema(collection)
	if !ok {
		return queryfilter.Schema{}
	}
	out := make(queryfilter.Schema, len(schema.Fields))
	for _, f := range schema.Fields {
		switch f.Type {
		case engine.FieldInt64, engine.FieldFloat:
			out[f.Name] = queryfilter.FieldSpec{Type: queryfilter.FieldNumber}
		case engine.FieldBool:
			out[f.Name] = queryfilter.FieldSpec{Type: queryfilter.FieldString, Lookup: queryfilter.LookupExact}
		case engine.FieldString, engine.FieldStringArray:
			lookup := queryfilter.LookupIContains
			if f.Facet {
				lookup = queryfilter.LookupExact
			}
			out[f.Name] = queryfilter.FieldSpec{Type: queryfilter.FieldString, Lookup: lookup}
		}
	}
	return out
}

func hitToDoc(t nest.EntityType, hit engine.Hit) (Doc, error) {
	rawID, ok := hit.Document["id"]
	if !ok {
		return Doc{}, ErrMissingID
	}
	idStr := fmt.Sprintf("%v", rawID)
	if idStr == "" {
		return Doc{}, ErrMissingID
	}
	if _, err := strconv.ParseUint(idStr, 10, 64); err != nil {
		return Doc{}, fmt.Errorf("non-numeric document id %q in %s: %w", idStr, t.Collection(), err)
	}

	text := hit.Document["summary"]
	if text == nil || text == "" {
		text = hit.Document["description"]
	}
	if text == nil || text == "" {
		text = hit.Document["name"]
	}
	textStr, _ := text.(string)

	return Doc{
		SourceID:  string(t) + ":" + idStr,
		Text:      textStr,
		Payload:   hit.Document,
		SubScores: map[string]float64{"lexical": float64(hit.TextMatch)},
	}, nil
}

package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/owasp/nest-search/pkg/cache"
	"github.com/owasp/nest-search/pkg/engine"
)

var (
	indexNamePattern = regexp.MustCompile(`^[a-z0-9-_]+$`)
	queryPattern     = regexp.MustCompile(`^[A-Za-z0-9_\- ]*$`)
)

const (
	defaultHitsPerPage = 25
	maxHitsPerPage     = 100
)

type searchRequest struct {
	IndexName   string `json:"indexName"`
	Query       string `json:"query"`
	Page        int    `json:"page"`
	HitsPerPage int    `json:"hitsPerPage"`
}

type searchResponse struct {
	Hits      []map[string]any `json:"hits"`
	NbPages   int              `json:"nbPages"`
	TotalHits int              `json:"totalHits"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !indexNamePattern.MatchString(req.IndexName) {
		writeError(w, http.StatusBadRequest, "invalid indexName")
		return
	}
	if !queryPattern.MatchString(req.Query) {
		writeError(w, http.StatusBadRequest, "invalid query")
		return
	}
	if _, ok := engine.CollectionSchema(req.IndexName); !ok {
		writeError(w, http.StatusBadRequest, "unknown indexName")
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.HitsPerPage < 1 {
		req.HitsPerPage = defaultHitsPerPage
	}
	if req.HitsPerPage > maxHitsPerPage {
		writeError(w, http.StatusBadRequest, "hitsPerPage out of range")
		return
	}

	// Chapter searches sort by distance from the caller when the IP
	// resolves, and the cache key is salted so callers in different
	// places never share entries.
	sortBy := ""
	salt := ""
	if req.IndexName == "chapters" && s.geo != nil {
		if ip := callerIP(r); ip != "" {
			if lat, lng, ok := s.geo.Resolve(ip); ok {
				sortBy = engine.GeoSort(lat, lng)
				salt = ip
			}
		}
	}

	key := cache.Key(s.cache.Prefix(), "search", req.IndexName, cache.KeyParams{
		Query:    req.Query,
		Page:     req.Page,
		PageSize: req.HitsPerPage,
	}, salt)

	payload, hit, err := s.cache.GetOrLoad(r.Context(), "search", key, func(ctx context.Context) ([]byte, error) {
		result, err := s.engine.Search(ctx, req.IndexName, engine.Params{
			Query:               req.Query,
			SortBy:              sortBy,
			Page:                req.Page,
			PerPage:             req.HitsPerPage,
			HighlightFullFields: []string{"name"},
		})
		if err != nil {
			return nil, err
		}
		return json.Marshal(buildSearchResponse(result))
	})
	if err != nil {
		s.logger.Error("search failed", "index", req.IndexName, "error", err)
		if s.metrics != nil {
			s.metrics.ObserveSearch(req.IndexName, "error", time.Since(started))
		}
		writeError(w, http.StatusBadGateway, "search backend unavailable")
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveSearch(req.IndexName, "ok", time.Since(started))
		if hit {
			s.metrics.CacheHits.WithLabelValues("search").Inc()
		} else {
			s.metrics.CacheMisses.WithLabelValues("search").Inc()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

func buildSearchResponse(result *engine.Result) searchResponse {
	resp := searchResponse{
		Hits:      make([]map[string]any, 0, len(result.Hits)),
		NbPages:   result.NbPages,
		TotalHits: result.Total,
	}
	for _, h := range result.Hits {
		doc := make(map[string]any, len(h.Document)+1)
		for k, v := range h.Document {
			doc[k] = v
		}
		if len(h.Highlights) > 0 {
			doc["_highlights"] = h.Highlights
		}
		resp.Hits = append(resp.Hits, doc)
	}
	return resp
}

// callerIP returns the request's remote address; chi's RealIP
// middleware has already folded proxy headers into it.
func callerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/owasp/nest-search/pkg/agent"
	"github.com/owasp/nest-search/pkg/router"
	"github.com/owasp/nest-search/pkg/store"
)

type agentRequest struct {
	Query string `json:"query"`
}

type agentResponse struct {
	Answer            string            `json:"answer"`
	Iterations        int               `json:"iterations"`
	Evaluation        *agent.Evaluation `json:"evaluation,omitempty"`
	ContextChunks     []contextChunk    `json:"context_chunks"`
	History           []agent.Event     `json:"history"`
	ExtractedMetadata extractedMetadata `json:"extracted_metadata"`
}

type contextChunk struct {
	SourceID string  `json:"source_id"`
	Text     string  `json:"text"`
	RRFScore float64 `json:"rrf_score"`
}

type extractedMetadata struct {
	Intent      router.Decision `json:"intent"`
	EntityNames []string        `json:"entity_names"`
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	decision := s.intents.Route(r.Context(), req.Query)
	names := s.intents.ExtractNames(req.Query)

	// Static decisions are lookups against stored entity contexts; the
	// retrieval loop only runs when no named entity can serve them.
	if decision.Intent == router.IntentStatic {
		if resp, ok := s.lookupAnswer(r.Context(), names, decision); ok {
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}

	state, err := s.agent.Run(r.Context(), agent.Request{Query: req.Query})
	if err != nil {
		s.logger.Error("agent run failed", "query", req.Query, "error", err)
		writeError(w, http.StatusBadGateway, "agent unavailable")
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveAgent(state.Iteration, time.Since(started))
	}

	resp := agentResponse{
		Answer:     state.Answer,
		Iterations: state.Iteration,
		Evaluation: state.Evaluation,
		History:    state.History,
		ExtractedMetadata: extractedMetadata{
			Intent:      decision,
			EntityNames: names,
		},
	}
	resp.ContextChunks = make([]contextChunk, 0, len(state.ContextChunks))
	for _, ch := range state.ContextChunks {
		resp.ContextChunks = append(resp.ContextChunks, contextChunk{
			SourceID: ch.SourceID,
			Text:     ch.Text,
			RRFScore: ch.RRFScore,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// lookupAnswer serves a static-intent query from the first named entity
// with a stored context. It reports false when nothing resolves so the
// caller can fall back to retrieval.
func (s *Server) lookupAnswer(ctx context.Context, names []string, decision router.Decision) (*agentResponse, bool) {
	if s.contexts == nil {
		return nil, false
	}
	for _, name := range names {
		ref, ok := s.intents.LookupEntity(name)
		if !ok {
			continue
		}
		stored, err := s.contexts.GetContext(ctx, ref)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				s.logger.Warn("entity lookup failed", "entity", ref.Key(), "error", err)
			}
			continue
		}
		return &agentResponse{
			Answer: stored.Content,
			ContextChunks: []contextChunk{{
				SourceID: ref.Key(),
				Text:     stored.Content,
			}},
			History: []agent.Event{},
			ExtractedMetadata: extractedMetadata{
				Intent:      decision,
				EntityNames: names,
			},
		}, true
	}
	return nil, false
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/owasp/nest-search/pkg/agent"
	"github.com/owasp/nest-search/pkg/cache"
	"github.com/owasp/nest-search/pkg/config"
	"github.com/owasp/nest-search/pkg/engine"
	"github.com/owasp/nest-search/pkg/nest"
	"github.com/owasp/nest-search/pkg/router"
	"github.com/owasp/nest-search/pkg/store"
)

type fakeEngine struct {
	result    *engine.Result
	err       error
	calls     int
	lastP     engine.Params
	lastReqID string
}

func (f *fakeEngine) Search(ctx context.Context, collection string, p engine.Params) (*engine.Result, error) {
	f.calls++
	f.lastP = p
	f.lastReqID = middleware.GetReqID(ctx)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeAgent struct {
	state *agent.State
	err   error
	calls int
}

func (f *fakeAgent) Run(ctx context.Context, req agent.Request) (*agent.State, error) {
	f.calls++
	return f.state, f.err
}

type fakeIntents struct {
	decision router.Decision
	refs     map[string]nest.EntityRef
}

func (f *fakeIntents) Route(ctx context.Context, query string) router.Decision {
	if f.decision.Intent == "" {
		return router.Decision{Intent: router.IntentDynamic, Confidence: 0.8}
	}
	return f.decision
}

func (f *fakeIntents) ExtractNames(query string) []string {
	if strings.Contains(strings.ToLower(query), "juice shop") {
		return []string{"juice shop"}
	}
	return nil
}

func (f *fakeIntents) LookupEntity(name string) (nest.EntityRef, bool) {
	ref, ok := f.refs[name]
	return ref, ok
}

type fakeContexts struct {
	contexts map[string]*store.Context
}

func (f *fakeContexts) GetContext(ctx context.Context, ref nest.EntityRef) (*store.Context, error) {
	c, ok := f.contexts[ref.Key()]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func newTestServer(eng SearchEngine, runner AgentRunner, geo engine.GeoResolver) *Server {
	c := cache.New(&config.CacheConfig{TTLSeconds: 60}, "nest")
	return New(&config.ServerConfig{}, eng, runner, &fakeIntents{}, nil, c, geo, nil)
}

func postJSON(t *testing.T, h http.Handler, path string, body any, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sampleResult() *engine.Result {
	return &engine.Result{
		Hits: []engine.Hit{{
			Document:   map[string]any{"id": "42", "name": "OWASP Juice Shop"},
			Highlights: map[string][]string{"name": {"OWASP <mark>Juice</mark> Shop"}},
		}},
		Total:   1,
		NbPages: 1,
		Page:    1,
		PerPage: 25,
	}
}

func TestSearchEndpoint(t *testing.T) {
	eng := &fakeEngine{result: sampleResult()}
	srv := newTestServer(eng, &fakeAgent{}, nil)
	h := srv.Routes()

	rec := postJSON(t, h, "/api/v1/search", searchRequest{IndexName: "projects", Query: "juice shop"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalHits != 1 || len(resp.Hits) != 1 {
		t.Errorf("response = %+v", resp)
	}
	if resp.Hits[0]["name"] != "OWASP Juice Shop" {
		t.Errorf("hit = %v", resp.Hits[0])
	}
	if _, ok := resp.Hits[0]["_highlights"]; !ok {
		t.Error("highlights not passed through")
	}
	if eng.lastReqID == "" {
		t.Error("request id not propagated to backend calls")
	}
}

func TestSearchEndpointCachesByteIdentical(t *testing.T) {
	eng := &fakeEngine{result: sampleResult()}
	srv := newTestServer(eng, &fakeAgent{}, nil)
	h := srv.Routes()

	body := searchRequest{IndexName: "projects", Query: "juice shop"}
	first := postJSON(t, h, "/api/v1/search", body, "")
	second := postJSON(t, h, "/api/v1/search", body, "")
	if eng.calls != 1 {
		t.Errorf("engine calls = %d, want 1 (second call must hit cache)", eng.calls)
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Error("replayed payload differs from the original")
	}
}

func TestSearchEndpointValidation(t *testing.T) {
	srv := newTestServer(&fakeEngine{result: sampleResult()}, &fakeAgent{}, nil)
	h := srv.Routes()

	cases := []struct {
		name string
		req  searchRequest
	}{
		{"bad index chars", searchRequest{IndexName: "Projects!", Query: "x"}},
		{"unknown index", searchRequest{IndexName: "widgets", Query: "x"}},
		{"bad query chars", searchRequest{IndexName: "projects", Query: "x; DROP TABLE"}},
		{"hits per page too large", searchRequest{IndexName: "projects", Query: "x", HitsPerPage: 500}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, h, "/api/v1/search", tc.req, "")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestSearchEndpointBackendFailure(t *testing.T) {
	srv := newTestServer(&fakeEngine{err: errors.New("down")}, &fakeAgent{}, nil)
	rec := postJSON(t, srv.Routes(), "/api/v1/search", searchRequest{IndexName: "projects", Query: "x"}, "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestChapterSearchGeoSort(t *testing.T) {
	eng := &fakeEngine{result: sampleResult()}
	geo := engine.StaticGeoResolver{"203.0.113.7": {37.77, -122.42}}
	srv := newTestServer(eng, &fakeAgent{}, geo)
	h := srv.Routes()

	body := searchRequest{IndexName: "chapters", Query: "chapter"}
	postJSON(t, h, "/api/v1/search", body, "203.0.113.7:1234")
	if !strings.HasPrefix(eng.lastP.SortBy, "_geoloc(37.77") {
		t.Errorf("sort_by = %q, want geo sort", eng.lastP.SortBy)
	}

	// A caller elsewhere must not share the geo-salted cache entry.
	postJSON(t, h, "/api/v1/search", body, "198.51.100.1:1234")
	if eng.calls != 2 {
		t.Errorf("engine calls = %d, want 2 (different ips, different keys)", eng.calls)
	}
	if eng.lastP.SortBy != "" {
		t.Errorf("unresolved ip sort_by = %q, want default", eng.lastP.SortBy)
	}
}

func TestAgentEndpoint(t *testing.T) {
	state := &agent.State{
		Query:     "how do i secure juice shop",
		Iteration: 2,
		Answer:    "an answer",
		Evaluation: &agent.Evaluation{
			Grounded: 0.9, Complete: 0.9, Relevant: 0.9,
		},
		History: []agent.Event{{Node: agent.NodeRetrieve, Iteration: 1}},
	}
	srv := newTestServer(&fakeEngine{}, &fakeAgent{state: state}, nil)

	rec := postJSON(t, srv.Routes(), "/api/v1/agent", agentRequest{Query: "how do i secure juice shop"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp agentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "an answer" || resp.Iterations != 2 {
		t.Errorf("response = %+v", resp)
	}
	if resp.Evaluation == nil || resp.Evaluation.Grounded != 0.9 {
		t.Errorf("evaluation = %+v", resp.Evaluation)
	}
	if len(resp.ExtractedMetadata.EntityNames) != 1 || resp.ExtractedMetadata.EntityNames[0] != "juice shop" {
		t.Errorf("extracted metadata = %+v", resp.ExtractedMetadata)
	}
}

func TestAgentEndpointStaticLookup(t *testing.T) {
	juiceShop := nest.EntityRef{Type: nest.EntityProject, ID: 42}
	intents := &fakeIntents{
		decision: router.Decision{Intent: router.IntentStatic, Confidence: 0.9},
		refs:     map[string]nest.EntityRef{"juice shop": juiceShop},
	}
	contexts := &fakeContexts{contexts: map[string]*store.Context{
		"project:42": {Entity: juiceShop, Content: "Juice Shop is an intentionally insecure web app."},
	}}
	runner := &fakeAgent{}
	c := cache.New(&config.CacheConfig{TTLSeconds: 60}, "nest")
	srv := New(&config.ServerConfig{}, &fakeEngine{}, runner, intents, contexts, c, nil, nil)

	rec := postJSON(t, srv.Routes(), "/api/v1/agent", agentRequest{Query: "stars of juice shop"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if runner.calls != 0 {
		t.Errorf("agent runs = %d, want 0 for a lookup decision", runner.calls)
	}

	var resp agentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "Juice Shop is an intentionally insecure web app." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if resp.Iterations != 0 {
		t.Errorf("iterations = %d, want 0", resp.Iterations)
	}
	if len(resp.ContextChunks) != 1 || resp.ContextChunks[0].SourceID != "project:42" {
		t.Errorf("context chunks = %+v", resp.ContextChunks)
	}
	if resp.ExtractedMetadata.Intent.Intent != router.IntentStatic {
		t.Errorf("intent = %+v", resp.ExtractedMetadata.Intent)
	}
}

func TestAgentEndpointStaticFallsBackWithoutContext(t *testing.T) {
	intents := &fakeIntents{
		decision: router.Decision{Intent: router.IntentStatic, Confidence: 0.9},
		refs:     map[string]nest.EntityRef{"juice shop": {Type: nest.EntityProject, ID: 42}},
	}
	// The named entity has no stored context, so the query must take the
	// retrieval path.
	contexts := &fakeContexts{contexts: map[string]*store.Context{}}
	runner := &fakeAgent{state: &agent.State{Iteration: 1, Answer: "retrieved answer"}}
	c := cache.New(&config.CacheConfig{TTLSeconds: 60}, "nest")
	srv := New(&config.ServerConfig{}, &fakeEngine{}, runner, intents, contexts, c, nil, nil)

	rec := postJSON(t, srv.Routes(), "/api/v1/agent", agentRequest{Query: "stars of juice shop"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if runner.calls != 1 {
		t.Errorf("agent runs = %d, want 1 (fallback)", runner.calls)
	}
}

func TestAgentEndpointDynamicSkipsLookup(t *testing.T) {
	intents := &fakeIntents{
		refs: map[string]nest.EntityRef{"juice shop": {Type: nest.EntityProject, ID: 42}},
	}
	contexts := &fakeContexts{contexts: map[string]*store.Context{
		"project:42": {Content: "stored text"},
	}}
	runner := &fakeAgent{state: &agent.State{Iteration: 1, Answer: "retrieved answer"}}
	c := cache.New(&config.CacheConfig{TTLSeconds: 60}, "nest")
	srv := New(&config.ServerConfig{}, &fakeEngine{}, runner, intents, contexts, c, nil, nil)

	rec := postJSON(t, srv.Routes(), "/api/v1/agent", agentRequest{Query: "how do i secure juice shop"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if runner.calls != 1 {
		t.Errorf("agent runs = %d, want 1 for a dynamic decision", runner.calls)
	}
}

func TestAgentEndpointEmptyQuery(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, &fakeAgent{}, nil)
	rec := postJSON(t, srv.Routes(), "/api/v1/agent", agentRequest{Query: "   "}, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAgentEndpointFailure(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, &fakeAgent{err: errors.New("llm down")}, nil)
	rec := postJSON(t, srv.Routes(), "/api/v1/agent", agentRequest{Query: "q"}, "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, &fakeAgent{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

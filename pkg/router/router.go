// Package router classifies an incoming query into a retrieval intent:
// a direct entity lookup (static) or the hybrid retrieval path
// (dynamic). A cheap rule tier answers most queries; an LLM fallback
// handles the ambiguous rest.
package router

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/owasp/nest-search/pkg/llms"
	"github.com/owasp/nest-search/pkg/logger"
	"github.com/owasp/nest-search/pkg/nest"
)

// Intent is the router's classification of a query.
type Intent string

const (
	IntentStatic  Intent = "static"
	IntentDynamic Intent = "dynamic"
)

// ParseIntent normalizes a stored intent string. Historic data uses
// "rag" for the retrieval path; it reads back as dynamic.
func ParseIntent(s string) (Intent, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "static":
		return IntentStatic, true
	case "dynamic", "rag":
		return IntentDynamic, true
	}
	return "", false
}

// Decision is the router's answer for one query.
type Decision struct {
	Intent       Intent   `json:"intent"`
	Confidence   float64  `json:"confidence"`
	Reasoning    string   `json:"reasoning"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// Rule-tier confidence below this consults the LLM fallback.
const fallbackThreshold = 0.5

// defaultDecision is the safe answer when both tiers fail: route to
// retrieval, flagged low-confidence so callers can tell.
func defaultDecision() Decision {
	return Decision{Intent: IntentDynamic, Confidence: 0.3, Reasoning: "classifier unavailable"}
}

var lookupKeywords = []string{
	"who leads", "who is the leader", "leaders of", "stars", "how many",
	"when is", "when was", "where is", "details of", "info about",
	"contributors of", "latest release", "level of", "health score",
}

var retrievalKeywords = []string{
	"how do i", "how to", "why", "explain", "what should", "best practice",
	"recommend", "compare", "difference between", "help me", "guide",
	"tutorial", "prevent", "mitigate", "secure",
}

// Router classifies queries. Safe for concurrent use; entity names may
// be added while routing.
type Router struct {
	llm    llms.Provider
	logger *slog.Logger

	mu    sync.RWMutex
	names *trie
	refs  map[string]nest.EntityRef
}

// New builds a router. llm may be nil, in which case low-confidence
// rule decisions are returned as-is.
func New(llm llms.Provider) *Router {
	return &Router{
		llm:    llm,
		logger: logger.GetLogger(),
		names:  newTrie(),
		refs:   make(map[string]nest.EntityRef),
	}
}

// AddEntityNames teaches the rule tier the names and keys of known
// entities so queries naming them route to a direct lookup.
func (r *Router) AddEntityNames(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		if strings.TrimSpace(n) != "" {
			r.names.insert(n)
		}
	}
}

// RegisterEntity teaches the rule tier a name and remembers which
// entity it belongs to, so static decisions can be served by a direct
// lookup instead of retrieval.
func (r *Router) RegisterEntity(name string, ref nest.EntityRef) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names.insert(name)
	r.refs[strings.ToLower(name)] = ref
}

// LookupEntity resolves a name found by ExtractNames back to its
// entity. Names added without a reference do not resolve.
func (r *Router) LookupEntity(name string) (nest.EntityRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.refs[strings.ToLower(strings.TrimSpace(name))]
	return ref, ok
}

// ExtractNames returns the known entity names found in a query, in
// order of appearance.
func (r *Router) ExtractNames(query string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names.matchAll(query)
}

// Route classifies one query. It never returns an error: every failure
// path degrades to the default dynamic decision.
func (r *Router) Route(ctx context.Context, query string) Decision {
	decision := r.classify(query)
	if decision.Confidence >= fallbackThreshold {
		return decision
	}
	if r.llm == nil {
		return decision
	}

	llmDecision, ok := r.consultLLM(ctx, query)
	if !ok {
		return defaultDecision()
	}
	return llmDecision
}

func (r *Router) classify(query string) Decision {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return defaultDecision()
	}

	r.mu.RLock()
	name, named := r.names.match(q)
	r.mu.RUnlock()

	for _, kw := range retrievalKeywords {
		if strings.Contains(q, kw) {
			return Decision{
				Intent:       IntentDynamic,
				Confidence:   0.8,
				Reasoning:    "question keyword: " + kw,
				Alternatives: []string{string(IntentStatic)},
			}
		}
	}
	for _, kw := range lookupKeywords {
		if strings.Contains(q, kw) {
			conf := 0.6
			if named {
				conf = 0.9
			}
			return Decision{
				Intent:       IntentStatic,
				Confidence:   conf,
				Reasoning:    "lookup keyword: " + kw,
				Alternatives: []string{string(IntentDynamic)},
			}
		}
	}
	if named {
		return Decision{
			Intent:       IntentStatic,
			Confidence:   0.6,
			Reasoning:    "query names known entity: " + name,
			Alternatives: []string{string(IntentDynamic)},
		}
	}
	return Decision{Intent: IntentDynamic, Confidence: 0.4, Reasoning: "no rule matched"}
}

const classifySystemPrompt = `You classify search queries for a community knowledge platform.
Intents:
- static: the query asks for stored attributes of one known entity (a project, chapter, committee, event, user).
- dynamic: the query needs retrieval over documentation and prose to answer.

Respond with exactly these lines:
intent: <static|dynamic>
confidence: <0.0-1.0>
reasoning: <one sentence>
alternatives: <comma-separated intents, or none>`

func (r *Router) consultLLM(ctx context.Context, query string) (Decision, bool) {
	out, err := r.llm.Generate(ctx, classifySystemPrompt, "Query: "+query)
	if err != nil {
		r.logger.Warn("intent fallback failed", "error", err)
		return Decision{}, false
	}
	return parseDecision(out)
}

// parseDecision reads the fallback's line-keyed output. Anything it
// cannot parse fails the whole decision; the caller falls back to the
// default.
func parseDecision(out string) (Decision, bool) {
	var d Decision
	haveIntent, haveConfidence := false, false
	for _, line := range strings.Split(out, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "intent":
			intent, ok := ParseIntent(value)
			if !ok {
				return Decision{}, false
			}
			d.Intent = intent
			haveIntent = true
		case "confidence":
			c, err := strconv.ParseFloat(value, 64)
			if err != nil || c < 0 || c > 1 {
				return Decision{}, false
			}
			d.Confidence = c
			haveConfidence = true
		case "reasoning":
			d.Reasoning = value
		case "alternatives":
			if value == "" || strings.EqualFold(value, "none") {
				continue
			}
			for _, alt := range strings.Split(value, ",") {
				if alt = strings.TrimSpace(alt); alt != "" {
					d.Alternatives = append(d.Alternatives, alt)
				}
			}
		}
	}
	if !haveIntent || !haveConfidence {
		return Decision{}, false
	}
	return d, true
}

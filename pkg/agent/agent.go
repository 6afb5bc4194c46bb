// Package agent drives retrieve -> generate -> evaluate loops over the
// hybrid retriever, with bounded self-correction when the evaluation
// finds the answer lacking.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/owasp/nest-search/pkg/config"
	"github.com/owasp/nest-search/pkg/logger"
	"github.com/owasp/nest-search/pkg/nest"
	"github.com/owasp/nest-search/pkg/retriever"
)

const (
	NodeRetrieve = "retrieve"
	NodeGenerate = "generate"
	NodeEvaluate = "evaluate"
)

// Evaluation scores one answer on three dimensions, each in [0, 1].
type Evaluation struct {
	Grounded float64 `json:"grounded"`
	Complete float64 `json:"complete"`
	Relevant float64 `json:"relevant"`
	Critique string  `json:"critique,omitempty"`
}

// Min returns the weakest dimension.
func (e Evaluation) Min() float64 {
	min := e.Grounded
	if e.Complete < min {
		min = e.Complete
	}
	if e.Relevant < min {
		min = e.Relevant
	}
	return min
}

// Event records one node visit.
type Event struct {
	Node      string    `json:"node"`
	Iteration int       `json:"iteration"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// State is the controller's working memory for a single query. It is
// created per request and discarded after the terminal state.
type State struct {
	Query               string            `json:"query"`
	Iteration           int               `json:"iteration"`
	Feedback            string            `json:"feedback,omitempty"`
	History             []Event           `json:"history"`
	ContentTypes        []nest.EntityType `json:"content_types,omitempty"`
	Limit               int               `json:"limit"`
	SimilarityThreshold float64           `json:"similarity_threshold"`
	ContextChunks       []retriever.Doc   `json:"context_chunks"`
	Answer              string            `json:"answer"`
	Evaluation          *Evaluation       `json:"evaluation,omitempty"`
}

func (s *State) record(node, detail string) {
	s.History = append(s.History, Event{Node: node, Iteration: s.Iteration, Detail: detail, At: time.Now().UTC()})
}

// Request is one agent invocation.
type Request struct {
	Query               string
	ContentTypes        []nest.EntityType
	Limit               int
	SimilarityThreshold float64
}

// Retriever is the retrieval leg the controller drives.
type Retriever interface {
	Retrieve(ctx context.Context, req retriever.QueryRequest) ([]retriever.Doc, error)
}

// Generator produces an answer grounded in context chunks, steering by
// the previous round's feedback when present.
type Generator interface {
	Generate(ctx context.Context, query, feedback string, chunks []retriever.Doc) (string, error)
}

// Evaluator judges an answer against its evidence.
type Evaluator interface {
	Evaluate(ctx context.Context, query, answer string, chunks []retriever.Doc) (Evaluation, error)
}

// Controller is the three-node state machine.
type Controller struct {
	retriever Retriever
	generator Generator
	evaluator Evaluator

	maxIterations int
	threshold     float64
	logger        *slog.Logger
}

// New builds a controller from configuration.
func New(cfg *config.AgentConfig, r Retriever, g Generator, e Evaluator) *Controller {
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 3
	}
	threshold := cfg.ScoreThreshold
	if threshold <= 0 {
		threshold = 0.7
	}
	return &Controller{
		retriever:     r,
		generator:     g,
		evaluator:     e,
		maxIterations: maxIter,
		threshold:     threshold,
		logger:        logger.GetLogger(),
	}
}

// Run answers one query. The returned state is terminal: iteration is
// at most the configured maximum and, on success, the answer is
// non-empty. Context cancellation is honored between nodes.
func (c *Controller) Run(ctx context.Context, req Request) (*State, error) {
	state := &State{
		Query:               req.Query,
		Iteration:           1,
		ContentTypes:        req.ContentTypes,
		Limit:               req.Limit,
		SimilarityThreshold: req.SimilarityThreshold,
	}

	if err := ctx.Err(); err != nil {
		return state, err
	}
	chunks, err := c.retriever.Retrieve(ctx, retriever.QueryRequest{
		Query:               req.Query,
		ContentTypes:        req.ContentTypes,
		Limit:               req.Limit,
		SimilarityThreshold: req.SimilarityThreshold,
	})
	if err != nil {
		return state, fmt.Errorf("retrieve: %w", err)
	}
	state.ContextChunks = chunks
	state.record(NodeRetrieve, fmt.Sprintf("%d chunks", len(chunks)))

	evalFailed := false
	for {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		answer, err := c.generator.Generate(ctx, state.Query, state.Feedback, state.ContextChunks)
		if err != nil {
			return state, fmt.Errorf("generate: %w", err)
		}
		if answer == "" {
			return state, fmt.Errorf("generate: empty answer on iteration %d", state.Iteration)
		}
		state.Answer = answer
		state.record(NodeGenerate, "")

		if err := ctx.Err(); err != nil {
			return state, err
		}
		eval, err := c.evaluator.Evaluate(ctx, state.Query, state.Answer, state.ContextChunks)
		if err != nil {
			// One evaluation failure buys one more generation pass;
			// a second failure returns the answer unjudged.
			c.logger.Warn("evaluation failed", "iteration", state.Iteration, "error", err)
			state.record(NodeEvaluate, "failed")
			if evalFailed || state.Iteration >= c.maxIterations {
				return state, nil
			}
			evalFailed = true
			state.Feedback = "the previous answer could not be verified; restate it strictly from the provided context"
			state.Iteration++
			continue
		}
		state.Evaluation = &eval
		state.record(NodeEvaluate, fmt.Sprintf("grounded=%.2f complete=%.2f relevant=%.2f", eval.Grounded, eval.Complete, eval.Relevant))

		if eval.Min() >= c.threshold || state.Iteration >= c.maxIterations {
			c.logger.Debug("agent complete", "iterations", state.Iteration, "min_score", eval.Min())
			return state, nil
		}

		state.Feedback = refineFeedback(eval, c.threshold)
		state.Iteration++
	}
}

// refineFeedback turns a weak evaluation into a short critique for the
// next generation pass.
func refineFeedback(eval Evaluation, threshold float64) string {
	feedback := eval.Critique
	if feedback == "" {
		switch {
		case eval.Grounded < threshold:
			feedback = "cite only facts present in the provided context"
		case eval.Complete < threshold:
			feedback = "the answer misses parts of the question; address all of it"
		default:
			feedback = "keep the answer focused on the question asked"
		}
	}
	return feedback
}

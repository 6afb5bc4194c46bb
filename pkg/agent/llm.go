package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/owasp/nest-search/pkg/config"
	"github.com/owasp/nest-search/pkg/llms"
	"github.com/owasp/nest-search/pkg/retriever"
)

const generateSystemPrompt = `You answer questions about the OWASP community: its projects, chapters, committees, events, and people.
Ground every statement in the provided context. If the context does not cover the question, say so instead of guessing.
Answer concisely in plain prose.`

const evaluateSystemPrompt = `You judge an answer against the evidence it was produced from.
Score three dimensions from 0.0 to 1.0:
- grounded: every claim in the answer is supported by the context.
- complete: the answer addresses the whole question.
- relevant: the answer stays on the question.

Respond with exactly these lines:
grounded: <score>
complete: <score>
relevant: <score>
critique: <one sentence naming the main weakness, or "none">`

// LLMGenerator produces answers with a language model, trimming the
// retrieved context to a token budget first.
type LLMGenerator struct {
	llm         llms.Provider
	tokenBudget int
}

// NewLLMGenerator builds the production generator.
func NewLLMGenerator(cfg *config.AgentConfig, llm llms.Provider) *LLMGenerator {
	budget := cfg.ContextTokenBudget
	if budget <= 0 {
		budget = 3000
	}
	return &LLMGenerator{llm: llm, tokenBudget: budget}
}

func (g *LLMGenerator) Generate(ctx context.Context, query, feedback string, chunks []retriever.Doc) (string, error) {
	kept := trimToBudget(chunks, g.tokenBudget, nil)

	var b strings.Builder
	b.WriteString("Context:\n")
	if len(kept) == 0 {
		b.WriteString("(no relevant context found)\n")
	}
	for i, ch := range kept {
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, ch.SourceID, ch.Text)
	}
	if feedback != "" {
		b.WriteString("\nFeedback on the previous attempt: ")
		b.WriteString(feedback)
		b.WriteString("\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(query)

	answer, err := g.llm.Generate(ctx, generateSystemPrompt, b.String())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// LLMEvaluator judges answers with a language model.
type LLMEvaluator struct {
	llm llms.Provider
}

// NewLLMEvaluator builds the production evaluator.
func NewLLMEvaluator(llm llms.Provider) *LLMEvaluator {
	return &LLMEvaluator{llm: llm}
}

func (e *LLMEvaluator) Evaluate(ctx context.Context, query, answer string, chunks []retriever.Doc) (Evaluation, error) {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, ch := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, ch.Text)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\n\nAnswer: ")
	b.WriteString(answer)

	out, err := e.llm.Generate(ctx, evaluateSystemPrompt, b.String())
	if err != nil {
		return Evaluation{}, err
	}
	eval, ok := parseEvaluation(out)
	if !ok {
		return Evaluation{}, fmt.Errorf("unparseable evaluation: %q", firstLine(out))
	}
	return eval, nil
}

// parseEvaluation reads the judge's line-keyed output. All three scores
// must be present and in range.
func parseEvaluation(out string) (Evaluation, bool) {
	var eval Evaluation
	have := map[string]bool{}
	for _, line := range strings.Split(out, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "grounded", "complete", "relevant":
			score, err := strconv.ParseFloat(value, 64)
			if err != nil || score < 0 || score > 1 {
				return Evaluation{}, false
			}
			switch key {
			case "grounded":
				eval.Grounded = score
			case "complete":
				eval.Complete = score
			case "relevant":
				eval.Relevant = score
			}
			have[key] = true
		case "critique":
			if !strings.EqualFold(value, "none") {
				eval.Critique = value
			}
		}
	}
	if !have["grounded"] || !have["complete"] || !have["relevant"] {
		return Evaluation{}, false
	}
	return eval, true
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/owasp/nest-search/pkg/config"
	"github.com/owasp/nest-search/pkg/retriever"
)

type fakeRetriever struct {
	docs []retriever.Doc
	err  error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, req retriever.QueryRequest) ([]retriever.Doc, error) {
	return f.docs, f.err
}

type fakeGenerator struct {
	answers   []string
	calls     int
	feedbacks []string
	err       error
}

func (f *fakeGenerator) Generate(ctx context.Context, query, feedback string, chunks []retriever.Doc) (string, error) {
	f.feedbacks = append(f.feedbacks, feedback)
	if f.err != nil {
		return "", f.err
	}
	answer := f.answers[min(f.calls, len(f.answers)-1)]
	f.calls++
	return answer, nil
}

type fakeEvaluator struct {
	evals []Evaluation
	errs  []error
	calls int
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, query, answer string, chunks []retriever.Doc) (Evaluation, error) {
	i := min(f.calls, len(f.evals)-1)
	f.calls++
	if len(f.errs) > i && f.errs[i] != nil {
		return Evaluation{}, f.errs[i]
	}
	return f.evals[i], nil
}

func chunks(n int) []retriever.Doc {
	out := make([]retriever.Doc, n)
	for i := range out {
		out[i] = retriever.Doc{SourceID: fmt.Sprintf("project:%d", i+1), Text: fmt.Sprintf("chunk %d", i+1)}
	}
	return out
}

func newController(r Retriever, g Generator, e Evaluator) *Controller {
	return New(&config.AgentConfig{MaxIterations: 3, ScoreThreshold: 0.7}, r, g, e)
}

func nodeSequence(history []Event) []string {
	out := make([]string, len(history))
	for i, ev := range history {
		out[i] = ev.Node
	}
	return out
}

func TestRunCompletesFirstPass(t *testing.T) {
	gen := &fakeGenerator{answers: []string{"solid answer"}}
	eval := &fakeEvaluator{evals: []Evaluation{{Grounded: 0.9, Complete: 0.9, Relevant: 0.9}}}
	c := newController(&fakeRetriever{docs: chunks(2)}, gen, eval)

	state, err := c.Run(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.Iteration != 1 || state.Answer != "solid answer" {
		t.Errorf("state = iteration %d answer %q", state.Iteration, state.Answer)
	}
	want := []string{NodeRetrieve, NodeGenerate, NodeEvaluate}
	if got := nodeSequence(state.History); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("history = %v, want %v", got, want)
	}
}

func TestRunRefinesOnceThenCompletes(t *testing.T) {
	gen := &fakeGenerator{answers: []string{"draft", "final"}}
	eval := &fakeEvaluator{evals: []Evaluation{
		{Grounded: 0.9, Complete: 0.4, Relevant: 0.9, Critique: "misses the second half"},
		{Grounded: 0.9, Complete: 0.9, Relevant: 0.9},
	}}
	c := newController(&fakeRetriever{docs: chunks(2)}, gen, eval)

	state, err := c.Run(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.Iteration != 2 {
		t.Errorf("iteration = %d, want 2", state.Iteration)
	}
	if state.Answer != "final" {
		t.Errorf("answer = %q, want refined answer", state.Answer)
	}
	if gen.calls != 2 || eval.calls != 2 {
		t.Errorf("calls = gen %d eval %d, want 2/2", gen.calls, eval.calls)
	}
	if gen.feedbacks[1] != "misses the second half" {
		t.Errorf("refine feedback = %q, want the critique", gen.feedbacks[1])
	}
	want := []string{NodeRetrieve, NodeGenerate, NodeEvaluate, NodeGenerate, NodeEvaluate}
	if got := nodeSequence(state.History); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("history = %v, want %v", got, want)
	}
}

func TestRunStopsAtMaxIterations(t *testing.T) {
	gen := &fakeGenerator{answers: []string{"weak answer"}}
	eval := &fakeEvaluator{evals: []Evaluation{{Grounded: 0.1, Complete: 0.1, Relevant: 0.1}}}
	c := newController(&fakeRetriever{docs: chunks(1)}, gen, eval)

	state, err := c.Run(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.Iteration != 3 {
		t.Errorf("iteration = %d, want max 3", state.Iteration)
	}
	if gen.calls != 3 {
		t.Errorf("generator calls = %d, want 3", gen.calls)
	}
	if state.Answer == "" {
		t.Error("answer empty at terminal state")
	}
}

func TestRunRetrieverFailure(t *testing.T) {
	boom := errors.New("engine down")
	c := newController(&fakeRetriever{err: boom}, &fakeGenerator{answers: []string{"x"}}, &fakeEvaluator{evals: []Evaluation{{}}})

	_, err := c.Run(context.Background(), Request{Query: "q"})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want retriever failure", err)
	}
}

func TestRunEmptyAnswerIsError(t *testing.T) {
	gen := &fakeGenerator{answers: []string{""}}
	c := newController(&fakeRetriever{}, gen, &fakeEvaluator{evals: []Evaluation{{}}})

	if _, err := c.Run(context.Background(), Request{Query: "q"}); err == nil {
		t.Fatal("expected error for empty answer")
	}
}

func TestRunSingleEvaluationFailureRefines(t *testing.T) {
	gen := &fakeGenerator{answers: []string{"draft", "final"}}
	eval := &fakeEvaluator{
		evals: []Evaluation{{}, {Grounded: 0.9, Complete: 0.9, Relevant: 0.9}},
		errs:  []error{errors.New("judge timeout"), nil},
	}
	c := newController(&fakeRetriever{docs: chunks(1)}, gen, eval)

	state, err := c.Run(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.Iteration != 2 || state.Evaluation == nil {
		t.Errorf("state = iteration %d evaluation %v", state.Iteration, state.Evaluation)
	}
}

func TestRunRepeatedEvaluationFailureCompletes(t *testing.T) {
	gen := &fakeGenerator{answers: []string{"answer"}}
	boom := errors.New("judge down")
	eval := &fakeEvaluator{evals: []Evaluation{{}, {}}, errs: []error{boom, boom}}
	c := newController(&fakeRetriever{docs: chunks(1)}, gen, eval)

	state, err := c.Run(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.Answer != "answer" || state.Evaluation != nil {
		t.Errorf("state = answer %q evaluation %v, want unjudged answer", state.Answer, state.Evaluation)
	}
	if eval.calls != 2 {
		t.Errorf("evaluator calls = %d, want 2", eval.calls)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newController(&fakeRetriever{}, &fakeGenerator{answers: []string{"x"}}, &fakeEvaluator{evals: []Evaluation{{}}})

	if _, err := c.Run(ctx, Request{Query: "q"}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestEvaluationMin(t *testing.T) {
	e := Evaluation{Grounded: 0.9, Complete: 0.4, Relevant: 0.8}
	if e.Min() != 0.4 {
		t.Errorf("Min() = %v, want 0.4", e.Min())
	}
}

func TestParseEvaluation(t *testing.T) {
	eval, ok := parseEvaluation("grounded: 0.9\ncomplete: 0.4\nrelevant: 0.8\ncritique: misses deployment steps")
	if !ok {
		t.Fatal("parse failed")
	}
	if eval.Grounded != 0.9 || eval.Complete != 0.4 || eval.Relevant != 0.8 {
		t.Errorf("eval = %+v", eval)
	}
	if eval.Critique != "misses deployment steps" {
		t.Errorf("critique = %q", eval.Critique)
	}

	if _, ok := parseEvaluation("grounded: 0.9\ncomplete: 0.4"); ok {
		t.Error("parsed with a missing dimension")
	}
	if _, ok := parseEvaluation("grounded: 1.4\ncomplete: 0.4\nrelevant: 0.8"); ok {
		t.Error("parsed an out-of-range score")
	}
	if _, ok := parseEvaluation("looks fine to me"); ok {
		t.Error("parsed prose")
	}

	eval, ok = parseEvaluation("grounded: 1\ncomplete: 1\nrelevant: 1\ncritique: none")
	if !ok || eval.Critique != "" {
		t.Errorf("eval = %+v ok=%v, want empty critique", eval, ok)
	}
}

func TestTrimToBudget(t *testing.T) {
	count := func(s string) int { return len(s) }
	docs := []retriever.Doc{
		{SourceID: "a", Text: "12345"},
		{SourceID: "b", Text: "12345"},
		{SourceID: "c", Text: "12345"},
	}

	kept := trimToBudget(docs, 12, count)
	if len(kept) != 2 {
		t.Errorf("kept %d chunks, want 2", len(kept))
	}
	if kept[0].SourceID != "a" || kept[1].SourceID != "b" {
		t.Error("budget trim must keep the highest-ranked chunks")
	}

	// The top chunk survives even when it alone exceeds the budget.
	kept = trimToBudget(docs, 3, count)
	if len(kept) != 1 || kept[0].SourceID != "a" {
		t.Errorf("kept = %v, want just the top chunk", kept)
	}

	if got := trimToBudget(docs, 0, count); len(got) != 3 {
		t.Error("zero budget must disable trimming")
	}
}

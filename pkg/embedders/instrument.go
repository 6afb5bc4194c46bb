package embedders

import "context"

// Counter is the minimal counting surface an Instrumented provider
// reports to. prometheus.Counter satisfies it.
type Counter interface {
	Inc()
}

// Instrumented wraps a Provider and counts calls and failures on every
// outbound embedding request.
type Instrumented struct {
	inner    Provider
	calls    Counter
	failures Counter
}

// NewInstrumented wraps inner with call and failure counters. Either
// counter may be nil.
func NewInstrumented(inner Provider, calls, failures Counter) *Instrumented {
	return &Instrumented{
		inner:    inner,
		calls:    calls,
		failures: failures,
	}
}

func (i *Instrumented) Embed(ctx context.Context, text string) ([]float32, error) {
	i.count(i.calls)
	vec, err := i.inner.Embed(ctx, text)
	if err != nil {
		i.count(i.failures)
	}
	return vec, err
}

func (i *Instrumented) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	i.count(i.calls)
	vecs, err := i.inner.EmbedBatch(ctx, texts)
	if err != nil {
		i.count(i.failures)
	}
	return vecs, err
}

func (i *Instrumented) Dimension() int {
	return i.inner.Dimension()
}

func (i *Instrumented) ModelName() string {
	return i.inner.ModelName()
}

func (i *Instrumented) Close() error {
	return i.inner.Close()
}

func (i *Instrumented) count(c Counter) {
	if c != nil {
		c.Inc()
	}
}

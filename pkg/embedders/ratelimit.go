package embedders

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Provider and serializes calls behind a process-wide
// token bucket: one token per minimum interval, burst of one. A call
// arriving inside the window blocks until the window elapses; contention
// never errors. The inter-call window is measured from the previous
// admitted call, not from the current clock read.
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps inner with a minimum interval between calls.
// A non-positive interval disables the budget.
func NewRateLimited(inner Provider, minInterval time.Duration) *RateLimited {
	var limiter *rate.Limiter
	if minInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(minInterval), 1)
	} else {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	return &RateLimited{
		inner:   inner,
		limiter: limiter,
	}
}

func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, text)
}

func (r *RateLimited) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.EmbedBatch(ctx, texts)
}

func (r *RateLimited) Dimension() int {
	return r.inner.Dimension()
}

func (r *RateLimited) ModelName() string {
	return r.inner.ModelName()
}

func (r *RateLimited) Close() error {
	return r.inner.Close()
}

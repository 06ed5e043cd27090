package provider

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedProvider gates Complete calls behind a token bucket so one
// upstream cannot be hammered past its published RPS limit by a burst of
// concurrent turns. The limiter blocks (respecting ctx cancellation) rather
// than rejecting, since the orchestrator already bounds concurrency per
// request.
type RateLimitedProvider struct {
	LLMProvider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps p with a limiter allowing rps requests per
// second and bursts up to burst.
func NewRateLimitedProvider(p LLMProvider, rps float64, burst int) *RateLimitedProvider {
	return &RateLimitedProvider{LLMProvider: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimitedProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *Chunk, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.LLMProvider.Complete(ctx, req)
}

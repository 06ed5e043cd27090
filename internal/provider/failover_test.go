package provider

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

type failingProvider struct {
	name      string
	err       error
	callCount atomic.Int32
}

func (p *failingProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *Chunk, error) {
	p.callCount.Add(1)
	return nil, p.err
}
func (p *failingProvider) Name() string        { return p.name }
func (p *failingProvider) SupportsTools() bool { return true }

type successProvider struct {
	name      string
	callCount atomic.Int32
}

func (p *successProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *Chunk, error) {
	p.callCount.Add(1)
	ch := make(chan *Chunk, 1)
	ch <- &Chunk{Text: "ok", Done: true}
	close(ch)
	return ch, nil
}
func (p *successProvider) Name() string        { return p.name }
func (p *successProvider) SupportsTools() bool { return true }

func TestFailoverProvider_PrimarySuccess(t *testing.T) {
	primary := &successProvider{name: "primary"}
	secondary := &successProvider{name: "secondary"}

	f := NewFailoverProvider(DefaultFailoverConfig(), primary, secondary)
	ch, err := f.Complete(context.Background(), &CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range ch {
	}

	if primary.callCount.Load() != 1 {
		t.Errorf("primary call count = %d, want 1", primary.callCount.Load())
	}
	if secondary.callCount.Load() != 0 {
		t.Errorf("secondary should not have been called")
	}
}

func TestFailoverProvider_FailsOverOnBillingError(t *testing.T) {
	primary := &failingProvider{name: "primary", err: errors.New("billing: quota exceeded")}
	secondary := &successProvider{name: "secondary"}

	cfg := DefaultFailoverConfig()
	cfg.MaxRetries = 0
	f := NewFailoverProvider(cfg, primary, secondary)

	ch, err := f.Complete(context.Background(), &CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range ch {
	}

	if secondary.callCount.Load() != 1 {
		t.Errorf("secondary call count = %d, want 1", secondary.callCount.Load())
	}
}

func TestFailoverProvider_NonRetryableErrorStopsImmediately(t *testing.T) {
	primary := &failingProvider{name: "primary", err: errors.New("invalid request: malformed tool schema")}
	secondary := &successProvider{name: "secondary"}

	cfg := DefaultFailoverConfig()
	cfg.MaxRetries = 0
	f := NewFailoverProvider(cfg, primary, secondary)

	_, err := f.Complete(context.Background(), &CompletionRequest{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if secondary.callCount.Load() != 0 {
		t.Errorf("secondary should not have been tried for a non-retryable error")
	}
}

func TestFailoverProvider_CircuitBreakerOpensAfterThreshold(t *testing.T) {
	primary := &failingProvider{name: "primary", err: errors.New("500 internal server error")}
	secondary := &successProvider{name: "secondary"}

	cfg := DefaultFailoverConfig()
	cfg.MaxRetries = 0
	cfg.CircuitBreakerThreshold = 2
	f := NewFailoverProvider(cfg, primary, secondary)

	for i := 0; i < 2; i++ {
		ch, _ := f.Complete(context.Background(), &CompletionRequest{})
		for range ch {
		}
	}

	state := f.stateFor("primary")
	if !state.circuitOpen {
		t.Fatal("expected circuit to be open after threshold failures")
	}

	ch, err := f.Complete(context.Background(), &CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range ch {
	}
	if primary.callCount.Load() != 2 {
		t.Errorf("primary should be skipped once circuit is open, got %d calls", primary.callCount.Load())
	}
}

func TestClassifyProviderError(t *testing.T) {
	cases := map[string]string{
		"rate limit exceeded":     "rate_limit",
		"429 too many requests":  "rate_limit",
		"request timeout":        "timeout",
		"502 bad gateway":        "server_error",
		"401 unauthorized":       "auth",
		"billing quota exceeded": "billing",
		"model not found":        "model_unavailable",
		"something else":         "unknown",
	}
	for msg, want := range cases {
		if got := classifyProviderError(errors.New(msg)); got != want {
			t.Errorf("classifyProviderError(%q) = %q, want %q", msg, got, want)
		}
	}
}

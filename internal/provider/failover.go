package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// FailoverConfig tunes FailoverProvider's retry and circuit-breaker
// behavior.
type FailoverConfig struct {
	MaxRetries              int
	RetryBackoff            time.Duration
	MaxRetryBackoff         time.Duration
	FailoverOnRateLimit     bool
	FailoverOnServerError   bool
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
}

// DefaultFailoverConfig matches the gateway's production defaults: two
// retries per provider, a 30s circuit-breaker cooldown.
func DefaultFailoverConfig() FailoverConfig {
	return FailoverConfig{
		MaxRetries:              2,
		RetryBackoff:            100 * time.Millisecond,
		MaxRetryBackoff:         5 * time.Second,
		FailoverOnRateLimit:     true,
		FailoverOnServerError:   true,
		CircuitBreakerThreshold: 3,
		CircuitBreakerTimeout:   30 * time.Second,
	}
}

type providerState struct {
	failures      int
	circuitOpen   bool
	circuitOpenAt time.Time
}

func (s *providerState) isAvailable(cfg FailoverConfig) bool {
	if !s.circuitOpen {
		return true
	}
	return time.Since(s.circuitOpenAt) > cfg.CircuitBreakerTimeout
}

// FailoverProvider wraps an ordered list of LLMProviders — typically the
// model's primary upstream followed by configured fallbacks — and presents
// them as a single LLMProvider. Transient failures retry the same provider
// with exponential backoff; errors that indicate the provider itself is
// unhealthy (auth, billing, model unavailable, repeated rate limits) trip
// that provider's circuit breaker and move on to the next one.
type FailoverProvider struct {
	providers []LLMProvider
	config    FailoverConfig

	mu     sync.Mutex
	states map[string]*providerState
}

func NewFailoverProvider(config FailoverConfig, providers ...LLMProvider) *FailoverProvider {
	return &FailoverProvider{
		providers: providers,
		config:    config,
		states:    make(map[string]*providerState),
	}
}

func (f *FailoverProvider) Name() string {
	if len(f.providers) == 0 {
		return "none"
	}
	return f.providers[0].Name()
}

func (f *FailoverProvider) SupportsTools() bool {
	return len(f.providers) > 0 && f.providers[0].SupportsTools()
}

func (f *FailoverProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *Chunk, error) {
	var lastErr error

	for _, p := range f.providers {
		state := f.stateFor(p.Name())
		if !state.isAvailable(f.config) {
			continue
		}

		ch, err := f.tryProvider(ctx, p, req)
		if err == nil {
			f.recordSuccess(p.Name())
			return ch, nil
		}
		lastErr = err
		f.recordFailure(p.Name(), err)

		if !f.shouldFailover(err) {
			return nil, err
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("provider: no available upstreams")
	}
	return nil, lastErr
}

func (f *FailoverProvider) tryProvider(ctx context.Context, p LLMProvider, req *CompletionRequest) (<-chan *Chunk, error) {
	backoff := f.config.RetryBackoff

	var lastErr error
	for attempt := 0; attempt <= f.config.MaxRetries; attempt++ {
		ch, err := p.Complete(ctx, req)
		if err == nil {
			return ch, nil
		}
		lastErr = err

		if !isProviderRetryable(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt >= f.config.MaxRetries {
			break
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > f.config.MaxRetryBackoff {
				backoff = f.config.MaxRetryBackoff
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (f *FailoverProvider) shouldFailover(err error) bool {
	switch classifyProviderError(err) {
	case "billing", "auth", "model_unavailable":
		return true
	case "rate_limit":
		return f.config.FailoverOnRateLimit
	case "server_error":
		return f.config.FailoverOnServerError
	default:
		return false
	}
}

func isProviderRetryable(err error) bool {
	switch classifyProviderError(err) {
	case "rate_limit", "timeout", "server_error":
		return true
	default:
		return false
	}
}

func classifyProviderError(err error) string {
	if err == nil {
		return "unknown"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return "rate_limit"
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503"):
		return "server_error"
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key"):
		return "auth"
	case strings.Contains(msg, "billing") || strings.Contains(msg, "quota"):
		return "billing"
	case strings.Contains(msg, "model") && strings.Contains(msg, "not found"):
		return "model_unavailable"
	default:
		return "unknown"
	}
}

func (f *FailoverProvider) stateFor(name string) *providerState {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[name]
	if !ok {
		s = &providerState{}
		f.states[name] = s
	}
	return s
}

func (f *FailoverProvider) recordSuccess(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.states[name]
	if s == nil {
		return
	}
	s.failures = 0
	s.circuitOpen = false
}

func (f *FailoverProvider) recordFailure(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.states[name]
	if s == nil {
		s = &providerState{}
		f.states[name] = s
	}
	s.failures++
	if s.failures >= f.config.CircuitBreakerThreshold {
		s.circuitOpen = true
		s.circuitOpenAt = time.Now()
	}
}

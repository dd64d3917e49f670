package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/httpclient"
	"github.com/macaron-software/agentcore/internal/obslog"
)

const component = "gateway"

// Gateway is the Model Gateway (C1): it owns the provider set, the
// per-provider circuit breakers, the fallback chain, and usage
// accounting. Agents never talk to a Provider directly.
type Gateway struct {
	mu        sync.RWMutex
	providers map[string]Provider
	chain     *fallbackChain
	estimator *TokenEstimator
	tracing   *obslog.Tracing
	costTable map[string]ModelCost // providerID/modelID -> per-token cost
}

// ModelCost is the USD-per-token pricing used for Usage.CostUSD when a
// provider doesn't report a dollar figure itself.
type ModelCost struct {
	InputPerToken  float64
	OutputPerToken float64
}

// Option configures a Gateway at construction time.
type Option func(*Gateway)

// WithTracing attaches an OTel tracer/meter source. Defaults to a no-op
// if never set.
func WithTracing(t *obslog.Tracing) Option {
	return func(g *Gateway) { g.tracing = t }
}

// WithModelCost registers a cost table entry keyed "providerID/modelID".
func WithModelCost(key string, cost ModelCost) Option {
	return func(g *Gateway) { g.costTable[key] = cost }
}

// New builds a Gateway over the given providers (decorated with
// think-stripping where declared) and a default fallback order.
func New(providers []Provider, defaultChain []string, opts ...Option) (*Gateway, error) {
	if len(providers) == 0 {
		return nil, corerr.New(component, "New", corerr.ErrValidation, "at least one provider required", nil)
	}
	estimator, err := NewTokenEstimator()
	if err != nil {
		return nil, corerr.New(component, "New", corerr.ErrInternal, "build token estimator", err)
	}
	byID := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byID[p.ID()] = WrapThinkStrip(p)
	}
	g := &Gateway{
		providers: byID,
		chain:     newFallbackChain(defaultChain, byID),
		estimator: estimator,
		tracing:   obslog.NewNoop(),
		costTable: make(map[string]ModelCost),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Complete makes one pass down the fallback chain for a completion
// request: each candidate is tried at most once per call, in order,
// skipping any whose breaker is currently open or cooling down. A
// RateLimitError sets that provider's cooldown; a RetriableTransientError
// is retried once in place before the chain moves on; any other error
// counts toward that provider's breaker and the chain advances.
// providers_exhausted is returned only once every candidate has either
// been skipped (unhealthy) or tried and failed this round.
func (g *Gateway) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	g.mu.RLock()
	chain := g.chain
	g.mu.RUnlock()

	tracer := g.tracing.Tracer("gateway")
	ctx, span := tracer.Start(ctx, "gateway.complete")
	defer span.End()

	candidates := chain.Candidates(req.ProviderChain)
	if len(candidates) == 0 {
		return CompletionResult{}, corerr.New(component, "Complete", corerr.ErrProvidersExhausted, "no configured providers in chain", nil)
	}

	now := time.Now()
	var lastErr error
	for _, id := range candidates {
		breaker := chain.breakerFor(id)
		allowed, isProbe := breaker.Allow(now)
		if !allowed {
			continue
		}
		provider := chain.providers[id]
		stream, err := g.attempt(ctx, provider, breaker, req, isProbe)
		if err == nil {
			return CompletionResult{Stream: stream, ProviderID: id}, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("every candidate was unhealthy")
	}
	return CompletionResult{}, corerr.New(component, "Complete", corerr.ErrProvidersExhausted, "fallback chain exhausted", lastErr)
}

// attempt runs one provider call including its single transient retry,
// and updates the breaker according to the outcome: a synchronous Send
// failure is recorded immediately, and the stream's terminal chunk is
// recorded by the wrapping goroutine as it passes through.
func (g *Gateway) attempt(ctx context.Context, provider Provider, breaker *circuitBreaker, req CompletionRequest, isProbe bool) (<-chan StreamChunk, error) {
	stream, err := provider.Send(ctx, req)
	if err != nil {
		stream, err = g.retryOrFail(ctx, provider, breaker, req, err)
		if err != nil {
			return nil, err
		}
	}

	// Wrap the stream so the breaker observes the terminal outcome
	// without forcing every caller to know about breaker bookkeeping.
	out := make(chan StreamChunk, 64)
	go func() {
		defer close(out)
		for chunk := range stream {
			if chunk.Done {
				if chunk.Err != nil {
					g.recordFailure(provider.ID(), breaker, chunk.Err)
				} else {
					breaker.RecordSuccess()
					if chunk.Usage != nil {
						chunk.Usage.CostUSD = g.cost(provider.ID(), chunk.Usage)
					}
				}
			}
			out <- chunk
		}
	}()
	return out, nil
}

func (g *Gateway) retryOrFail(ctx context.Context, provider Provider, breaker *circuitBreaker, req CompletionRequest, err error) (<-chan StreamChunk, error) {
	var transient *RetriableTransientError
	if errors.As(err, &transient) {
		stream, retryErr := provider.Send(ctx, req)
		if retryErr == nil {
			return stream, nil
		}
		err = retryErr
	}
	g.recordFailure(provider.ID(), breaker, err)
	return nil, err
}

func (g *Gateway) recordFailure(providerID string, breaker *circuitBreaker, err error) {
	var rateLimit *RateLimitError
	if errors.As(err, &rateLimit) {
		var retryAfter time.Duration
		var retryable *httpclient.RetryableError
		if errors.As(err, &retryable) {
			retryAfter = retryable.RetryAfter
		}
		breaker.RecordRateLimit(time.Now(), retryAfter)
		return
	}
	breaker.RecordHardFailure(time.Now())
}

func (g *Gateway) cost(providerID string, usage *CompletionUsage) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	key := fmt.Sprintf("%s/%s", providerID, usage.ModelID)
	c, ok := g.costTable[key]
	if !ok {
		return 0
	}
	return float64(usage.InputTokens)*c.InputPerToken + float64(usage.OutputTokens)*c.OutputPerToken
}

// Metrics is the gateway's contribution to GetMetrics: every configured
// provider, each one's circuit breaker state, and the estimated token
// savings from <think> block stripping across all decorated providers.
type Metrics struct {
	Providers     []string
	CircuitStates map[string]string
	RTKSavings    int64
}

// Metrics snapshots the current provider/breaker/savings state.
func (g *Gateway) Metrics() Metrics {
	g.mu.RLock()
	defer g.mu.RUnlock()

	m := Metrics{CircuitStates: make(map[string]string, len(g.providers))}
	var strippedChars int64
	for id, p := range g.providers {
		m.Providers = append(m.Providers, id)
		m.CircuitStates[id] = g.chain.breakerFor(id).State()
		if d, ok := p.(*thinkStripDecorator); ok {
			strippedChars += d.StrippedChars()
		}
	}
	// ~4 characters per token, a rough character-to-token ratio.
	m.RTKSavings = strippedChars / 4
	return m
}

// EstimateTokens exposes the token estimator for callers (e.g. the
// Agent Executor) that need to budget a request before sending it.
func (g *Gateway) EstimateTokens(msgs []ChatMessage) int {
	return g.estimator.CountMessages(msgs)
}

// Drain reads a stream to completion and returns the assembled text,
// tool calls, and usage. A convenience for callers (tests, simple
// executors) that don't need token-by-token delivery.
func Drain(stream <-chan StreamChunk) (text string, toolCalls []ToolCallRequest, usage *CompletionUsage, err error) {
	for chunk := range stream {
		text += chunk.TextDelta
		if chunk.Done {
			toolCalls = chunk.ToolCalls
			usage = chunk.Usage
			err = chunk.Err
		}
	}
	return text, toolCalls, usage, err
}

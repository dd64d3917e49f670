package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/macaron-software/agentcore/internal/corerr"
)

type stubProvider struct {
	id      string
	limits  ProviderLimits
	sendFn  func(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)
	calls   int
}

func (s *stubProvider) ID() string             { return s.id }
func (s *stubProvider) Limits() ProviderLimits { return s.limits }
func (s *stubProvider) Send(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	s.calls++
	return s.sendFn(ctx, req)
}

func successStream(text string) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 2)
	ch <- StreamChunk{TextDelta: text}
	ch <- StreamChunk{Done: true, Usage: &CompletionUsage{InputTokens: 10, OutputTokens: 5}}
	close(ch)
	return ch, nil
}

// failSend simulates a provider that fails before producing any output
// (connection refused, 429, 5xx) — the realistic failure shape for the
// HTTP provider, whose transport error surfaces from Send itself rather
// than through the stream.
func failSend(err error) (<-chan StreamChunk, error) {
	return nil, err
}

func TestGateway_CompleteHappyPath(t *testing.T) {
	p := &stubProvider{
		id:     "primary",
		limits: ProviderLimits{AcceptsTemperature: true},
		sendFn: func(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
			return successStream("hello")
		},
	}
	g, err := New([]Provider{p}, []string{"primary"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := g.Complete(context.Background(), CompletionRequest{Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	text, _, usage, drainErr := Drain(result.Stream)
	if drainErr != nil {
		t.Fatalf("Drain: %v", drainErr)
	}
	if text != "hello" {
		t.Errorf("got text %q, want %q", text, "hello")
	}
	if usage == nil || usage.InputTokens != 10 {
		t.Errorf("unexpected usage: %+v", usage)
	}
}

func TestGateway_FallsBackOnHardFailure(t *testing.T) {
	primary := &stubProvider{
		id:     "primary",
		limits: ProviderLimits{},
		sendFn: func(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
			return failSend(errors.New("boom"))
		},
	}
	secondary := &stubProvider{
		id:     "secondary",
		limits: ProviderLimits{},
		sendFn: func(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
			return successStream("from secondary")
		},
	}
	g, err := New([]Provider{primary, secondary}, []string{"primary", "secondary"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// A hard failure on primary advances the chain to secondary within
	// the same request; no need to wait for the breaker to trip.
	result, err := g.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	text, _, _, _ := Drain(result.Stream)
	if text != "from secondary" {
		t.Errorf("expected fallback to secondary, got %q", text)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Errorf("expected one attempt each, got primary=%d secondary=%d", primary.calls, secondary.calls)
	}

	// Repeating the failure failureThreshold times trips primary's
	// breaker; subsequent requests should skip straight to secondary.
	for i := 0; i < failureThreshold-1; i++ {
		if _, err := g.Complete(context.Background(), CompletionRequest{}); err != nil {
			t.Fatalf("Complete repeat %d: %v", i, err)
		}
	}
	if _, err := g.Complete(context.Background(), CompletionRequest{}); err != nil {
		t.Fatalf("Complete after breaker trip: %v", err)
	}
	if primary.calls != failureThreshold {
		t.Errorf("expected primary to stop being called once its breaker opened at %d failures, got %d calls", failureThreshold, primary.calls)
	}
}

func TestGateway_RateLimitSetsCooldownNotBreaker(t *testing.T) {
	p := &stubProvider{
		id: "primary",
		sendFn: func(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
			return failSend(&RateLimitError{Err: errors.New("429")})
		},
	}
	secondary := &stubProvider{
		id: "secondary",
		sendFn: func(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
			return successStream("secondary")
		},
	}
	g, err := New([]Provider{p, secondary}, []string{"primary", "secondary"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := g.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	text, _, _, _ := Drain(result.Stream)
	if text != "secondary" {
		t.Errorf("expected immediate fallback on rate limit, got %q", text)
	}
	if p.calls != 1 {
		t.Errorf("rate-limited provider should be tried exactly once before fallback, got %d calls", p.calls)
	}
}

func TestGateway_ProvidersExhausted(t *testing.T) {
	p := &stubProvider{
		id: "only",
		sendFn: func(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
			return failSend(errors.New("boom"))
		},
	}
	g, err := New([]Provider{p}, []string{"only"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := g.Complete(context.Background(), CompletionRequest{}); !errors.Is(err, corerr.ErrProvidersExhausted) {
		t.Errorf("expected providers_exhausted when the only candidate fails this round, got %v", err)
	}
}

func TestThinkStripDecorator(t *testing.T) {
	inner := &stubProvider{
		id:     "thinker",
		limits: ProviderLimits{StripsThinkBlocks: true},
		sendFn: func(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
			ch := make(chan StreamChunk, 3)
			ch <- StreamChunk{TextDelta: "before <think>hidden "}
			ch <- StreamChunk{TextDelta: "reasoning</think> after"}
			ch <- StreamChunk{Done: true, Usage: &CompletionUsage{}}
			close(ch)
			return ch, nil
		},
	}
	wrapped := WrapThinkStrip(inner)
	stream, err := wrapped.Send(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	text, _, _, _ := Drain(stream)
	if text != "before  after" {
		t.Errorf("got %q, want think block stripped", text)
	}
}

func TestFallbackChain_SkipsOpenBreaker(t *testing.T) {
	providers := map[string]Provider{
		"a": &stubProvider{id: "a"},
		"b": &stubProvider{id: "b"},
	}
	chain := newFallbackChain([]string{"a", "b"}, providers)
	chain.breakerFor("a").state = breakerOpen
	chain.breakerFor("a").openedAt = time.Now()

	var selected string
	for _, id := range chain.Candidates(nil) {
		if allowed, _ := chain.breakerFor(id).Allow(time.Now()); allowed {
			selected = id
			break
		}
	}
	if selected != "b" {
		t.Errorf("expected chain to skip open breaker a and select b, got %q", selected)
	}
}

func TestGateway_Metrics_ReportsProvidersAndStrippedSavings(t *testing.T) {
	thinker := &stubProvider{
		id:     "thinker",
		limits: ProviderLimits{StripsThinkBlocks: true},
		sendFn: func(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
			ch := make(chan StreamChunk, 2)
			ch <- StreamChunk{TextDelta: "before <think>some hidden reasoning</think> after"}
			ch <- StreamChunk{Done: true, Usage: &CompletionUsage{}}
			close(ch)
			return ch, nil
		},
	}
	g, err := New([]Provider{thinker}, []string{"thinker"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := g.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, _, _, err := Drain(res.Stream); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	m := g.Metrics()
	if len(m.Providers) != 1 || m.Providers[0] != "thinker" {
		t.Fatalf("Providers = %v", m.Providers)
	}
	if m.CircuitStates["thinker"] != "closed" {
		t.Fatalf("CircuitStates[thinker] = %q, want closed", m.CircuitStates["thinker"])
	}
	if m.RTKSavings <= 0 {
		t.Fatalf("RTKSavings = %d, want > 0 after stripping a think block", m.RTKSavings)
	}
}

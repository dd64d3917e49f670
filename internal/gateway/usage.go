package gateway

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenEstimator estimates token counts for text that hasn't gone
// through a provider's own usage field yet (e.g. to budget a request
// before sending it, via Gateway.EstimateTokens). Usage for a completed
// call comes only from the provider's own usage field; when a provider
// omits it, the gateway does not estimate it.
type TokenEstimator struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewTokenEstimator loads the cl100k_base encoding, which is close
// enough across OpenAI-compatible models for budgeting purposes.
func NewTokenEstimator() (*TokenEstimator, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &TokenEstimator{enc: enc}, nil
}

// Count returns the estimated token count for text.
func (t *TokenEstimator) Count(text string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enc.Encode(text, nil, nil))
}

// CountMessages sums the estimated token count across a message history,
// plus a small per-message overhead to account for role/wire framing.
func (t *TokenEstimator) CountMessages(msgs []ChatMessage) int {
	total := 0
	for _, m := range msgs {
		total += t.Count(m.Content) + 4
	}
	return total
}

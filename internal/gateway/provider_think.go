package gateway

import (
	"context"
	"strings"
	"sync/atomic"
)

// thinkStripDecorator wraps a Provider whose model emits inline
// <think>...</think> reasoning blocks that must be stripped before the
// text reaches an agent.
type thinkStripDecorator struct {
	inner        Provider
	strippedChar int64 // atomic: characters removed via <think> blocks
}

// StrippedChars returns the running count of characters removed from
// this provider's output by <think> stripping, feeding GetMetrics'
// rtk_savings figure.
func (d *thinkStripDecorator) StrippedChars() int64 {
	return atomic.LoadInt64(&d.strippedChar)
}

// WrapThinkStrip returns inner unchanged if it doesn't declare
// StripsThinkBlocks, otherwise wraps it.
func WrapThinkStrip(inner Provider) Provider {
	if !inner.Limits().StripsThinkBlocks {
		return inner
	}
	return &thinkStripDecorator{inner: inner}
}

func (d *thinkStripDecorator) ID() string            { return d.inner.ID() }
func (d *thinkStripDecorator) Limits() ProviderLimits { return d.inner.Limits() }

func (d *thinkStripDecorator) Send(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	inStream, err := d.inner.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make(chan StreamChunk, 64)
	go func() {
		defer close(out)
		var insideThink bool
		var carry strings.Builder
		for chunk := range inStream {
			if chunk.TextDelta != "" {
				carry.WriteString(chunk.TextDelta)
				text := carry.String()
				carry.Reset()
				cleaned, remainder, stillInside := stripThinkBlocks(text, insideThink)
				insideThink = stillInside
				if n := len(text) - len(cleaned) - len(remainder); n > 0 {
					atomic.AddInt64(&d.strippedChar, int64(n))
				}
				if remainder != "" {
					carry.WriteString(remainder)
				}
				if cleaned != "" {
					out <- StreamChunk{TextDelta: cleaned}
				}
				continue
			}
			out <- chunk
		}
	}()
	return out, nil
}

// stripThinkBlocks removes complete <think>...</think> spans from text.
// If text ends mid-tag or mid-block, the undecided suffix is returned as
// remainder so the next chunk can complete the match.
func stripThinkBlocks(text string, insideThink bool) (cleaned, remainder string, stillInside bool) {
	const open = "<think>"
	const closeTag = "</think>"
	var b strings.Builder
	i := 0
	for i < len(text) {
		if insideThink {
			idx := strings.Index(text[i:], closeTag)
			if idx < 0 {
				return b.String(), "", true
			}
			i += idx + len(closeTag)
			insideThink = false
			continue
		}
		idx := strings.Index(text[i:], open)
		if idx < 0 {
			// hold back a suffix that could be the start of an open tag
			tail := holdbackSuffix(text[i:], open)
			b.WriteString(text[i : len(text)-len(tail)])
			return b.String(), tail, false
		}
		b.WriteString(text[i : i+idx])
		i += idx + len(open)
		insideThink = true
	}
	return b.String(), "", insideThink
}

// holdbackSuffix returns the longest suffix of s that is a proper
// prefix of tag, so a tag split across chunk boundaries isn't emitted.
func holdbackSuffix(s, tag string) string {
	max := len(tag) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return s[len(s)-n:]
		}
	}
	return ""
}

package pattern

import (
	"context"
	"strings"

	"github.com/macaron-software/agentcore/internal/gateway"
	"github.com/macaron-software/agentcore/internal/model"
)

// summarizePhase asks the gateway to condense transcript into a short
// record for PhaseState.Summary. The caller treats a non-nil error as
// non-fatal: the transcript itself stands as the record.
func summarizePhase(ctx context.Context, gw *gateway.Gateway, transcript []model.Message) (string, error) {
	if len(transcript) == 0 {
		return "", nil
	}

	var b strings.Builder
	for _, msg := range transcript {
		b.WriteString(msg.FromAgent)
		b.WriteString(" (")
		b.WriteString(string(msg.Kind))
		b.WriteString("): ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}

	req := gateway.CompletionRequest{
		Messages: []gateway.ChatMessage{
			{Role: gateway.RoleSystem, Content: "Summarize the following multi-agent phase transcript in 2-3 sentences. Note the outcome and any dissent."},
			{Role: gateway.RoleUser, Content: b.String()},
		},
		MaxTokens: 256,
	}
	result, err := gw.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	text, _, _, err := gateway.Drain(result.Stream)
	if err != nil {
		return "", err
	}
	return text, nil
}

package executor

import (
	"strings"

	"github.com/macaron-software/agentcore/internal/model"
)

// detectVerdict checks text's first non-empty line against lex,
// case-insensitively, overriding tool-call interpretation so a
// human-readable verdict survives even if the model also asked for
// tools in the same turn.
func detectVerdict(text string, lex VerdictLexicon) (model.MessageKind, bool) {
	line := firstNonEmptyLine(text)
	if line == "" {
		return "", false
	}
	lower := strings.ToLower(line)
	for _, tok := range lex.VetoTokens {
		if strings.HasPrefix(lower, strings.ToLower(tok)) {
			return model.KindVeto, true
		}
	}
	for _, tok := range lex.ApproveTokens {
		if strings.HasPrefix(lower, strings.ToLower(tok)) {
			return model.KindApprove, true
		}
	}
	return "", false
}

func firstNonEmptyLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

package model

import "time"

// MessageKind is a closed set of message kinds. Verdict lexicons
// (veto/approve tokens spoken in free text) stay data-driven elsewhere
// so they can be tuned per domain without touching this enum.
type MessageKind string

const (
	KindInform     MessageKind = "inform"
	KindRequest    MessageKind = "request"
	KindPropose    MessageKind = "propose"
	KindCounter    MessageKind = "counter"
	KindApprove    MessageKind = "approve"
	KindVeto       MessageKind = "veto"
	KindToolCall   MessageKind = "tool_call"
	KindToolResult MessageKind = "tool_result"
	KindSystem     MessageKind = "system"
)

// VetoPriority is the fixed priority a veto message always carries.
const VetoPriority = 10

// Message is the append-only unit on the bus. Once constructed, a
// Message is never mutated — the bus only ever appends.
type Message struct {
	ID        string            `json:"id"`
	RunID     string            `json:"run_id"`
	PhaseID   string            `json:"phase_id"`
	FromAgent string            `json:"from_agent"`
	ToAgent   string            `json:"to_agent,omitempty"` // "" == broadcast in phase
	Kind      MessageKind       `json:"kind"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	ParentID  string            `json:"parent_id,omitempty"`
	Priority  int               `json:"priority"`
	Timestamp time.Time         `json:"timestamp"`
}

// NormalizePriority clamps Priority into [1,10] and forces veto
// messages to the maximum priority.
func (m *Message) NormalizePriority() {
	if m.Kind == KindVeto {
		m.Priority = VetoPriority
		return
	}
	if m.Priority < 1 {
		m.Priority = 1
	}
	if m.Priority > 10 {
		m.Priority = 10
	}
}

// IsBroadcast reports whether the message has no explicit recipient.
func (m *Message) IsBroadcast() bool {
	return m.ToAgent == ""
}

package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
)

// NewID mints a new identifier. Every run_id, message id, and tool_call
// audit id in the core is a UUIDv4.
func NewID() string {
	return uuid.NewString()
}

// ContentHash computes a stable hash over the canonical JSON encoding of
// v, used to version AgentDef/WorkflowDef content so a repeated upsert
// with identical content is detectably a no-op.
func ContentHash(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

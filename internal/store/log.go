package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/model"
)

// AppendMessage durably appends msg, satisfying the append-only
// invariant the bus's WithPersist hook depends on. Re-appending the
// same message ID (a publisher retry after a transient failure) is a
// no-op rather than an error.
func (s *Store) AppendMessage(msg model.Message) error {
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return corerr.New(component, "AppendMessage", corerr.ErrInternal, "marshal metadata", err)
	}
	_, err = s.db.ExecContext(context.Background(), `
		INSERT INTO messages (id, run_id, phase_id, from_agent, to_agent, kind, content, metadata, parent_id, priority, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		msg.ID, msg.RunID, msg.PhaseID, msg.FromAgent, msg.ToAgent, string(msg.Kind), msg.Content,
		string(metadata), msg.ParentID, msg.Priority, msg.Timestamp)
	if err != nil {
		return corerr.New(component, "AppendMessage", corerr.ErrStorageUnavailable, "insert message", err)
	}
	return nil
}

// ListMessages returns every message recorded for runID/phaseID, in
// publish order. Passing an empty phaseID returns the whole run.
func (s *Store) ListMessages(runID, phaseID string) ([]model.Message, error) {
	query := `SELECT id, run_id, phase_id, from_agent, to_agent, kind, content, metadata, parent_id, priority, timestamp
		FROM messages WHERE run_id = ?`
	args := []interface{}{runID}
	if phaseID != "" {
		query += ` AND phase_id = ?`
		args = append(args, phaseID)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, corerr.New(component, "ListMessages", corerr.ErrStorageUnavailable, "query messages", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var metadata sql.NullString
		var toAgent, parentID sql.NullString
		if err := rows.Scan(&m.ID, &m.RunID, &m.PhaseID, &m.FromAgent, &toAgent, &m.Kind, &m.Content,
			&metadata, &parentID, &m.Priority, &m.Timestamp); err != nil {
			return nil, corerr.New(component, "ListMessages", corerr.ErrStorageUnavailable, "scan message row", err)
		}
		m.ToAgent = toAgent.String
		m.ParentID = parentID.String
		if metadata.Valid && metadata.String != "" && metadata.String != "null" {
			if err := json.Unmarshal([]byte(metadata.String), &m.Metadata); err != nil {
				return nil, corerr.New(component, "ListMessages", corerr.ErrInternal, "unmarshal metadata", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SearchMessages runs a substring match against message content within
// runID, most recent first, capped at limit rows.
func (s *Store) SearchMessages(runID, query string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT id, run_id, phase_id, from_agent, to_agent, kind, content, metadata, parent_id, priority, timestamp
		FROM messages WHERE run_id = ? AND content LIKE ? ORDER BY seq DESC LIMIT ?`,
		runID, "%"+query+"%", limit)
	if err != nil {
		return nil, corerr.New(component, "SearchMessages", corerr.ErrStorageUnavailable, "search messages", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var metadata, toAgent, parentID sql.NullString
		if err := rows.Scan(&m.ID, &m.RunID, &m.PhaseID, &m.FromAgent, &toAgent, &m.Kind, &m.Content,
			&metadata, &parentID, &m.Priority, &m.Timestamp); err != nil {
			return nil, corerr.New(component, "SearchMessages", corerr.ErrStorageUnavailable, "scan message row", err)
		}
		m.ToAgent = toAgent.String
		m.ParentID = parentID.String
		if metadata.Valid && metadata.String != "" && metadata.String != "null" {
			_ = json.Unmarshal([]byte(metadata.String), &m.Metadata)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AppendToolCall durably appends one tool-invocation audit record.
func (s *Store) AppendToolCall(rec model.ToolCallAudit) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO tool_calls (agent_id, run_id, tool_name, arguments_digest, result_summary, success, duration_ms, error_kind, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.AgentID, rec.RunID, rec.ToolName, rec.ArgumentsDigest, rec.ResultSummary, rec.Success,
		rec.DurationMS, rec.ErrorKind, rec.Timestamp)
	if err != nil {
		return corerr.New(component, "AppendToolCall", corerr.ErrStorageUnavailable, "insert tool call", err)
	}
	return nil
}

// ListToolCalls returns every tool-call record for runID, call order.
func (s *Store) ListToolCalls(runID string) ([]model.ToolCallAudit, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT agent_id, run_id, tool_name, arguments_digest, result_summary, success, duration_ms, error_kind, timestamp
		FROM tool_calls WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, corerr.New(component, "ListToolCalls", corerr.ErrStorageUnavailable, "query tool calls", err)
	}
	defer rows.Close()

	var out []model.ToolCallAudit
	for rows.Next() {
		var rec model.ToolCallAudit
		var digest, summary, errKind sql.NullString
		if err := rows.Scan(&rec.AgentID, &rec.RunID, &rec.ToolName, &digest, &summary, &rec.Success,
			&rec.DurationMS, &errKind, &rec.Timestamp); err != nil {
			return nil, corerr.New(component, "ListToolCalls", corerr.ErrStorageUnavailable, "scan tool call row", err)
		}
		rec.ArgumentsDigest = digest.String
		rec.ResultSummary = summary.String
		rec.ErrorKind = errKind.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

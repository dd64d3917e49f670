package store

import (
	"context"
	"database/sql"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/model"
)

// memoryRef picks the durable partition key: a memory entry's
// project_ref for project scope, the literal "global" for global scope.
func memoryRef(entry model.MemoryEntry) string {
	if entry.Scope == model.ScopeGlobal {
		return "global"
	}
	return entry.ProjectRef
}

// PutMemoryEntry durably upserts one project/global memory entry. Its
// signature matches memory.PersistFunc, so the composition root wires
// it directly: memory.WithProjectPersist(st.PutMemoryEntry).
func (s *Store) PutMemoryEntry(entry model.MemoryEntry) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO memory_entries (scope, ref, key, value, author_agent, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, ref, key) DO UPDATE SET
			value = excluded.value,
			author_agent = excluded.author_agent,
			confidence = excluded.confidence,
			created_at = excluded.created_at`,
		string(entry.Scope), memoryRef(entry), entry.Key, entry.Value, entry.AuthorAgent, entry.Confidence, entry.CreatedAt)
	if err != nil {
		return corerr.New(component, "PutMemoryEntry", corerr.ErrStorageUnavailable, "upsert memory entry", err)
	}
	return nil
}

// ListMemoryEntries returns every durable entry in scope/ref, used to
// rehydrate the in-process Memory Store's project/global maps on
// startup (chromem-go's index is rebuilt by re-indexing each entry
// through Store.Put rather than persisted itself).
func (s *Store) ListMemoryEntries(scope model.MemoryScope, ref string) ([]model.MemoryEntry, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT scope, ref, key, value, author_agent, confidence, created_at
		FROM memory_entries WHERE scope = ? AND ref = ?`, string(scope), ref)
	if err != nil {
		return nil, corerr.New(component, "ListMemoryEntries", corerr.ErrStorageUnavailable, "query memory entries", err)
	}
	defer rows.Close()

	var out []model.MemoryEntry
	for rows.Next() {
		var e model.MemoryEntry
		var scopeStr, refStr string
		var author sql.NullString
		if err := rows.Scan(&scopeStr, &refStr, &e.Key, &e.Value, &author, &e.Confidence, &e.CreatedAt); err != nil {
			return nil, corerr.New(component, "ListMemoryEntries", corerr.ErrStorageUnavailable, "scan memory entry row", err)
		}
		e.Scope = model.MemoryScope(scopeStr)
		e.AuthorAgent = author.String
		if e.Scope == model.ScopeProject {
			e.ProjectRef = refStr
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SearchMemoryEntries runs a substring match against entry values
// within scope/ref, most recent first.
func (s *Store) SearchMemoryEntries(scope model.MemoryScope, ref, query string, limit int) ([]model.MemoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT scope, ref, key, value, author_agent, confidence, created_at
		FROM memory_entries WHERE scope = ? AND ref = ? AND value LIKE ?
		ORDER BY created_at DESC LIMIT ?`, string(scope), ref, "%"+query+"%", limit)
	if err != nil {
		return nil, corerr.New(component, "SearchMemoryEntries", corerr.ErrStorageUnavailable, "search memory entries", err)
	}
	defer rows.Close()

	var out []model.MemoryEntry
	for rows.Next() {
		var e model.MemoryEntry
		var scopeStr, refStr string
		var author sql.NullString
		if err := rows.Scan(&scopeStr, &refStr, &e.Key, &e.Value, &author, &e.Confidence, &e.CreatedAt); err != nil {
			return nil, corerr.New(component, "SearchMemoryEntries", corerr.ErrStorageUnavailable, "scan memory entry row", err)
		}
		e.Scope = model.MemoryScope(scopeStr)
		e.AuthorAgent = author.String
		if e.Scope == model.ScopeProject {
			e.ProjectRef = refStr
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

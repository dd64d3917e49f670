// Package memory implements the Memory Store (C4): four reader/writer
// scopes (ephemeral run scratchpad, durable project memory, durable
// global memory, and an in-loop session scratchpad), each with exact-key,
// prefix, and best-effort full-text lookup.
//
// Durable writes go through chromem-go (github.com/philippgille/chromem-go),
// an embedded vector+keyword store, for the full-text index, and through
// an optional PersistFunc append hook mirroring bus.Bus's WithPersist
// hook.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/model"
)

const component = "memory"

// PersistFunc durably appends a project/global memory entry before Put
// acknowledges it. A nil PersistFunc runs that scope's writes in-memory
// only.
type PersistFunc func(model.MemoryEntry) error

// Store is the Memory Store (C4).
type Store struct {
	mu sync.RWMutex

	runScratch     map[string]map[string]model.MemoryEntry // runID -> key -> entry
	sessionScratch map[string]map[string]string            // sessionID -> key -> value
	projectByRef   map[string]map[string]model.MemoryEntry // projectRef -> key -> entry
	globalByKey    map[string]model.MemoryEntry

	persistProject PersistFunc
	persistGlobal  PersistFunc

	db *chromem.DB
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithProjectPersist wires the durable-append hook for project-scope
// writes.
func WithProjectPersist(fn PersistFunc) Option {
	return func(s *Store) { s.persistProject = fn }
}

// WithGlobalPersist wires the durable-append hook for global-scope
// writes.
func WithGlobalPersist(fn PersistFunc) Option {
	return func(s *Store) { s.persistGlobal = fn }
}

// New builds an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		runScratch:     make(map[string]map[string]model.MemoryEntry),
		sessionScratch: make(map[string]map[string]string),
		projectByRef:   make(map[string]map[string]model.MemoryEntry),
		globalByKey:    make(map[string]model.MemoryEntry),
		db:             chromem.NewDB(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put writes one memory entry, enforcing the scope's reader/writer rule.
// writer is the acting agent; nil means the call is made by the Mission
// Supervisor itself, the only actor allowed to write global memory.
// Session-scope entries are rejected here — use PutSession.
func (s *Store) Put(ctx context.Context, entry model.MemoryEntry, writer *model.AgentDef) error {
	if entry.Key == "" {
		return corerr.New(component, "Put", corerr.ErrInvalidArguments, "key is required", nil)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Confidence == 0 {
		entry.Confidence = 1
	}

	switch entry.Scope {
	case model.ScopeEphemeral, model.ScopeRun:
		if entry.RunID == "" {
			return corerr.New(component, "Put", corerr.ErrValidation, "run_id is required for run-scope writes", nil)
		}
		if writer != nil {
			entry.AuthorAgent = writer.ID
		}
		return s.putRunScratch(ctx, entry)

	case model.ScopeProject:
		if writer == nil || !writer.CanWriteProjectMemory {
			return corerr.New(component, "Put", corerr.ErrToolForbidden, "agent is not flagged can_write_project_memory", nil)
		}
		if entry.ProjectRef == "" {
			return corerr.New(component, "Put", corerr.ErrValidation, "project_ref is required for project-scope writes", nil)
		}
		entry.AuthorAgent = writer.ID
		return s.putDurable(ctx, entry, s.persistProject)

	case model.ScopeGlobal:
		if writer != nil {
			return corerr.New(component, "Put", corerr.ErrToolForbidden, "global memory is written only by the mission supervisor", nil)
		}
		return s.putDurable(ctx, entry, s.persistGlobal)

	case model.ScopeSession:
		return corerr.New(component, "Put", corerr.ErrValidation, "session memory is written via PutSession, not Put", nil)

	default:
		return corerr.New(component, "Put", corerr.ErrValidation, "unknown scope "+string(entry.Scope), nil)
	}
}

func (s *Store) putRunScratch(ctx context.Context, entry model.MemoryEntry) error {
	s.mu.Lock()
	m, ok := s.runScratch[entry.RunID]
	if !ok {
		m = make(map[string]model.MemoryEntry)
		s.runScratch[entry.RunID] = m
	}
	m[entry.Key] = entry
	s.mu.Unlock()

	return s.index(ctx, collectionName(model.ScopeRun, entry.RunID), entry)
}

func (s *Store) putDurable(ctx context.Context, entry model.MemoryEntry, persist PersistFunc) error {
	if persist != nil {
		if err := persist(entry); err != nil {
			return corerr.New(component, "Put", corerr.ErrStorageUnavailable, "append memory entry", err)
		}
	}

	s.mu.Lock()
	if entry.Scope == model.ScopeProject {
		m, ok := s.projectByRef[entry.ProjectRef]
		if !ok {
			m = make(map[string]model.MemoryEntry)
			s.projectByRef[entry.ProjectRef] = m
		}
		m[entry.Key] = entry
	} else {
		s.globalByKey[entry.Key] = entry
	}
	s.mu.Unlock()

	ref := entry.ProjectRef
	if entry.Scope == model.ScopeGlobal {
		ref = "global"
	}
	return s.index(ctx, collectionName(entry.Scope, ref), entry)
}

// PutSession writes a session-scope key/value pair. Session memory is
// never persisted or indexed — it backs one executor loop's
// chain-of-thought staging and is discarded with ReleaseSession.
func (s *Store) PutSession(sessionID, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.sessionScratch[sessionID]
	if !ok {
		m = make(map[string]string)
		s.sessionScratch[sessionID] = m
	}
	m[key] = value
}

// GetSession reads a session-scope value.
func (s *Store) GetSession(sessionID, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.sessionScratch[sessionID]
	if !ok {
		return "", false
	}
	v, ok := m[key]
	return v, ok
}

// ReleaseSession discards a session's scratchpad.
func (s *Store) ReleaseSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessionScratch, sessionID)
}

// ReleaseRun destroys a run's scratchpad, including its full-text index.
func (s *Store) ReleaseRun(runID string) {
	s.mu.Lock()
	delete(s.runScratch, runID)
	s.mu.Unlock()

	_ = s.db.DeleteCollection(collectionName(model.ScopeRun, runID))
}

// GetExact returns the entry stored under key in the given scope, or
// ok=false if absent. runID/projectRef select the scoped bucket; both
// are ignored for ScopeGlobal.
func (s *Store) GetExact(scope model.MemoryScope, key, runID, projectRef string) (model.MemoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch scope {
	case model.ScopeEphemeral, model.ScopeRun:
		if m, ok := s.runScratch[runID]; ok {
			e, ok2 := m[key]
			return e, ok2
		}
	case model.ScopeProject:
		if m, ok := s.projectByRef[projectRef]; ok {
			e, ok2 := m[key]
			return e, ok2
		}
	case model.ScopeGlobal:
		e, ok2 := s.globalByKey[key]
		return e, ok2
	}
	return model.MemoryEntry{}, false
}

// GetPrefix returns every entry in scope whose key starts with prefix,
// newest first.
func (s *Store) GetPrefix(scope model.MemoryScope, prefix, runID, projectRef string) []model.MemoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bucket map[string]model.MemoryEntry
	switch scope {
	case model.ScopeEphemeral, model.ScopeRun:
		bucket = s.runScratch[runID]
	case model.ScopeProject:
		bucket = s.projectByRef[projectRef]
	case model.ScopeGlobal:
		bucket = s.globalByKey
	}

	var out []model.MemoryEntry
	for k, e := range bucket {
		if strings.HasPrefix(k, prefix) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Search runs a best-effort full-text match against scope's index,
// ranked by similarity weighted by recency and confidence, and returns
// at most topK entries.
func (s *Store) Search(ctx context.Context, scope model.MemoryScope, query, runID, projectRef string, topK int) ([]model.MemoryEntry, error) {
	if topK <= 0 {
		topK = 5
	}
	ref := runID
	switch scope {
	case model.ScopeProject:
		ref = projectRef
	case model.ScopeGlobal:
		ref = "global"
	}

	col, err := s.db.GetOrCreateCollection(collectionName(scope, ref), nil, hashEmbed)
	if err != nil {
		return nil, corerr.New(component, "Search", corerr.ErrInternal, "get full-text collection", err)
	}

	vec, _ := hashEmbed(ctx, query)
	n := topK * 3
	if n > col.Count() {
		n = col.Count()
	}
	if n == 0 {
		return nil, nil
	}
	results, err := col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, corerr.New(component, "Search", corerr.ErrInternal, "query full-text index", err)
	}

	now := time.Now()
	type scored struct {
		entry model.MemoryEntry
		score float64
	}
	out := make([]scored, 0, len(results))
	for _, r := range results {
		e, ok := s.lookupByDocID(scope, ref, r.ID)
		if !ok {
			continue
		}
		ageHours := now.Sub(e.CreatedAt).Hours()
		recency := math.Exp(-ageHours / 168) // decays by a factor of e per week
		confidence := 0.5 + 0.5*e.Confidence
		out = append(out, scored{entry: e, score: float64(r.Similarity) * recency * confidence})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].score > out[j].score })
	if len(out) > topK {
		out = out[:topK]
	}
	entries := make([]model.MemoryEntry, len(out))
	for i, sc := range out {
		entries[i] = sc.entry
	}
	return entries, nil
}

func (s *Store) lookupByDocID(scope model.MemoryScope, ref, docID string) (model.MemoryEntry, bool) {
	key := keyFromDocID(docID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch scope {
	case model.ScopeEphemeral, model.ScopeRun:
		m, ok := s.runScratch[ref]
		if !ok {
			return model.MemoryEntry{}, false
		}
		e, ok := m[key]
		return e, ok
	case model.ScopeProject:
		m, ok := s.projectByRef[ref]
		if !ok {
			return model.MemoryEntry{}, false
		}
		e, ok := m[key]
		return e, ok
	case model.ScopeGlobal:
		e, ok := s.globalByKey[key]
		return e, ok
	}
	return model.MemoryEntry{}, false
}

func (s *Store) index(ctx context.Context, collection string, entry model.MemoryEntry) error {
	col, err := s.db.GetOrCreateCollection(collection, nil, hashEmbed)
	if err != nil {
		return corerr.New(component, "index", corerr.ErrInternal, "get or create collection "+collection, err)
	}
	vec, _ := hashEmbed(ctx, entry.Key+" "+entry.Value)
	doc := chromem.Document{
		ID:        docID(entry.Key),
		Content:   entry.Value,
		Embedding: vec,
	}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return corerr.New(component, "index", corerr.ErrInternal, "index memory entry", err)
	}
	return nil
}

func collectionName(scope model.MemoryScope, ref string) string {
	return string(scope) + ":" + ref
}

// docID and keyFromDocID round-trip a memory key through chromem's
// document ID space; entries are re-indexed (same ID) on every Put so a
// later write naturally overwrites the earlier full-text entry.
func docID(key string) string { return key }

func keyFromDocID(id string) string { return id }

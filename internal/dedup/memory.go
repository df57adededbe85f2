package dedup

import (
	"context"
	"sort"
	"sync"
)

// MemoryIndex is an in-process Index. It is lost on restart.
type MemoryIndex struct {
	mu       sync.RWMutex
	sessions map[string]map[string][]float32
}

// NewMemoryIndex returns an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{sessions: make(map[string]map[string][]float32)}
}

func (m *MemoryIndex) Add(_ context.Context, sessionID, id string, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		s = make(map[string][]float32)
		m.sessions[sessionID] = s
	}
	s[id] = append([]float32(nil), vec...)
	return nil
}

func (m *MemoryIndex) Remove(_ context.Context, sessionID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions[sessionID], id)
	return nil
}

func (m *MemoryIndex) Nearest(_ context.Context, sessionID string, vec []float32) (Match, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.sessions[sessionID]
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	// stable tie-breaking
	sort.Strings(ids)

	vectors := make([][]float32, len(ids))
	for i, id := range ids {
		vectors[i] = s[id]
	}
	sim, at := MaxSimilarity(vec, vectors)
	if at < 0 {
		return Match{}, false, nil
	}
	return Match{ID: ids[at], Similarity: sim}, true, nil
}

// Len returns the number of vectors stored for a session.
func (m *MemoryIndex) Len(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions[sessionID])
}

var _ Index = (*MemoryIndex)(nil)

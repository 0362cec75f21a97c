package checkpoint

import (
	"sync"
	"time"
)

type Snapshot[T any] struct {
	RunID     string
	Seq       int
	Node      string
	State     T
	CreatedAt time.Time
}

// MemorySaver keeps per-step snapshots of runs in process memory.
// Entries live until Delete is called for their run.
type MemorySaver[T any] struct {
	mu   sync.Mutex
	runs map[string][]Snapshot[T]
}

func NewMemorySaver[T any]() *MemorySaver[T] {
	return &MemorySaver[T]{
		runs: make(map[string][]Snapshot[T]),
	}
}

func (m *MemorySaver[T]) Put(runID string, seq int, node string, state T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[runID] = append(m.runs[runID], Snapshot[T]{
		RunID:     runID,
		Seq:       seq,
		Node:      node,
		State:     state,
		CreatedAt: time.Now(),
	})
}

func (m *MemorySaver[T]) Latest(runID string) (Snapshot[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.runs[runID]
	if len(list) == 0 {
		return Snapshot[T]{}, false
	}

	return list[len(list)-1], true
}

func (m *MemorySaver[T]) List(runID string) []Snapshot[T] {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.runs[runID]
	result := make([]Snapshot[T], len(list))
	copy(result, list)

	return result
}

func (m *MemorySaver[T]) Delete(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.runs, runID)
}

// Runs is the number of runs with at least one snapshot.
func (m *MemorySaver[T]) Runs() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.runs)
}

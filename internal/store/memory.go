package store

import (
	"bytes"
	"context"
	"sync"
)

// Memory is an in-process Backend, used by tests and the "memory" store mode.
type Memory struct {
	mu   sync.RWMutex
	data map[Key][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[Key][]byte)}
}

func (m *Memory) Load(_ context.Context, key Key) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (m *Memory) Apply(_ context.Context, reads []Read, writes []Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range reads {
		v, ok := m.data[r.Key]
		if !r.Matches(v, ok) {
			return ErrConflict
		}
	}

	for _, w := range writes {
		if w.Delete {
			delete(m.data, w.Key)
			continue
		}
		m.data[w.Key] = bytes.Clone(w.Value)
	}
	return nil
}

// Len reports how many keys are stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

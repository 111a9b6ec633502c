package docstore

import (
	"context"
	"sync"
)

// Memory keeps documents in process memory. Used by tests and STORE_BACKEND=memory.
type Memory struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]byte)}
}

func (m *Memory) Kind() string { return "memory" }

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ensureNotCanceled(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.docs[name]), nil
}

func (m *Memory) Update(ctx context.Context, name string, fn Mutator) error {
	if err := ensureNotCanceled(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next, write, err := fn(clone(m.docs[name]))
	if err != nil || !write {
		return err
	}
	m.docs[name] = clone(next)
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

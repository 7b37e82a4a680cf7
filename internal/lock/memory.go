package lock

import (
	"context"
	"sync"
)

// MemoryLocker is a process-local implementation for single-node deployments
// and tests.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[key]; taken {
		return false, nil
	}
	l.held[key] = struct{}{}
	return true, nil
}

func (l *MemoryLocker) Release(_ context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}

package lock

import (
	"context"
	"sync"
)

const BackendMemory = "memory"

// MemoryLocker serializes holders of the same key within one process.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]*slot)}
}

func (l *MemoryLocker) Backend() string { return BackendMemory }

func (l *MemoryLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.drop(key, s)
		})
	}, nil
}

func (l *MemoryLocker) drop(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

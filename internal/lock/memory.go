package lock

import (
	"context"
	"sync"
	"time"
)

// MemLocker is a Locker for a single process. Expired holds are reclaimed
// lazily on the next TryLock for the same key.
type MemLocker struct {
	mu   sync.Mutex
	held map[string]memHold
	now  func() time.Time
	seq  uint64
}

type memHold struct {
	id      uint64
	expires time.Time
}

type memLock struct {
	locker *MemLocker
	key    string
	id     uint64
}

var _ Locker = (*MemLocker)(nil)

func NewMemLocker() *MemLocker {
	return &MemLocker{
		held: make(map[string]memHold),
		now:  time.Now,
	}
}

func (m *MemLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Lock, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if h, ok := m.held[key]; ok && now.Before(h.expires) {
		return nil, false, nil
	}
	m.seq++
	m.held[key] = memHold{id: m.seq, expires: now.Add(ttl)}
	return &memLock{locker: m, key: key, id: m.seq}, true, nil
}

func (l *memLock) Unlock(ctx context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	// Only release our own hold; it may have expired and been retaken.
	if h, ok := l.locker.held[l.key]; ok && h.id == l.id {
		delete(l.locker.held, l.key)
	}
	return nil
}

// Package lease provides the single-writer locks guarding scan refreshes.
package lease

import (
	"context"
	"sync"
	"time"

	"RivalScanner/internal/ports"
)

// MemoryLocker is a process-local Locker used when no Redis address is configured.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]memoryEntry
	seq  uint64
	now  func() time.Time
}

type memoryEntry struct {
	token   uint64
	expires time.Time
}

var _ ports.Locker = (*MemoryLocker)(nil)

// NewMemoryLocker builds an empty locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]memoryEntry{}, now: time.Now}
}

// Acquire takes key for ttl or returns ports.ErrLeaseHeld while an unexpired holder exists.
func (m *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (ports.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if entry, ok := m.held[key]; ok && now.Before(entry.expires) {
		return nil, ports.ErrLeaseHeld
	}

	m.seq++
	m.held[key] = memoryEntry{token: m.seq, expires: now.Add(ttl)}
	return &memoryLease{locker: m, key: key, token: m.seq}, nil
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	token  uint64
}

// Release drops the key unless another holder took it over after expiry.
func (l *memoryLease) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	if entry, ok := l.locker.held[l.key]; ok && entry.token == l.token {
		delete(l.locker.held, l.key)
	}
	return nil
}

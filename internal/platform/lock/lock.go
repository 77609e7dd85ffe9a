// Package lock provides keyed mutual exclusion for critical sections that
// must not run concurrently for the same provider.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLockNotAcquired is returned when a lock could not be obtained before
// the wait budget or the context ran out.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Locker runs fn while holding the lock for key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// ProviderKey is the lock key used for all writes that touch a provider's
// availability.
func ProviderKey(providerID string) string {
	return "lock:provider:" + providerID
}

// LocalLocker serializes callers inside one process. Multi-instance
// deployments need RedisLocker.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	sem     chan struct{}
	waiters int
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localEntry)}
}

func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	entry := l.acquireEntry(key)
	defer l.releaseEntry(key, entry)

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		return errors.Join(ErrLockNotAcquired, ctx.Err())
	}
	defer func() { <-entry.sem }()

	return fn(ctx)
}

func (l *LocalLocker) acquireEntry(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &localEntry{sem: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.waiters++
	return entry
}

func (l *LocalLocker) releaseEntry(key string, entry *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.waiters--
	if entry.waiters == 0 {
		delete(l.locks, key)
	}
}

// Ping always succeeds for the in-process locker.
func (l *LocalLocker) Ping(context.Context) error { return nil }

// Package lockreg provides per-conversation mutual exclusion with
// bounded-wait acquisition. Each conversation key gets its own lock so
// exchanges for distinct conversations never serialize against each other.
package lockreg

import (
	"context"
	"sync"
	"time"
)

// DefaultTimeout is the acquisition budget used when callers pass a
// non-positive timeout.
const DefaultTimeout = 10 * time.Second

// entry is a single conversation lock. The semaphore channel has capacity
// one: holding the lock means having a token in the channel. refs counts
// holders plus waiters so the registry can evict entries nobody references.
type entry struct {
	sem  chan struct{}
	refs int
}

// Registry hands out per-key locks, creating them lazily on first use.
// The internal map is guarded by a short-lived mutex that is only held
// for look-up-or-create and eviction, never across an acquisition wait.
//
// Entries are reference counted: once a key has no holder and no waiter
// the entry is dropped, so memory stays proportional to in-flight
// exchanges rather than total conversations seen.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{locks: make(map[string]*entry)}
}

// Acquire blocks until the lock for key is granted, the timeout elapses,
// or ctx is cancelled. It returns true only when the caller now holds the
// lock and must eventually call Release with the same key. A false return
// guarantees no lock is held and no registry state is left behind.
func (r *Registry) Acquire(ctx context.Context, key string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	e := r.ref(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}

	r.unref(key, e)
	return false
}

// Release returns the lock for key. It must only be called after a
// successful Acquire by the same logical owner; calling it for a key that
// is not held is a no-op.
func (r *Registry) Release(key string) {
	r.mu.Lock()
	e := r.locks[key]
	r.mu.Unlock()
	if e == nil {
		return
	}

	select {
	case <-e.sem:
	default:
		// Not held; nothing to release.
		return
	}

	r.unref(key, e)
}

// Len reports the number of live lock entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

// ref looks up or creates the entry for key and takes a reference on it.
// This is the single short critical section that makes lazy creation
// race-free: two concurrent callers always observe the same entry.
func (r *Registry) ref(key string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.locks[key]
	if e == nil {
		e = &entry{sem: make(chan struct{}, 1)}
		r.locks[key] = e
	}
	e.refs++
	return e
}

// unref drops a reference and evicts the entry once nobody holds or waits
// on it. The map lookup is re-checked so a concurrently re-created entry
// for the same key is never evicted by a stale pointer.
func (r *Registry) unref(key string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.refs--
	if e.refs <= 0 && r.locks[key] == e {
		delete(r.locks, key)
	}
}

// Package lock serializes request acceptance per schedule slot. The default
// keyed mutex covers the single-binary deployment; the Redis locker covers
// multi-instance runs.
package lock

import (
	"context"
	"errors"
	"sync"
)

var ErrLockNotAcquired = errors.New("slot lock not acquired")

// Locker guards the critical section of the resolution service for one
// (doctor, date, time slot) key.
type Locker interface {
	WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*slotLock
}

type slotLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex returns an in-process per-key locker. Callers queue rather
// than fail, so first-committer-wins is decided by the grid, not the lock.
func NewKeyedMutex() Locker {
	return &keyedMutex{locks: make(map[string]*slotLock)}
}

func (k *keyedMutex) WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &slotLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	defer func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}()

	return fn(ctx)
}

// README: Per-doctor mutual exclusion around read-validate-commit.
package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"homecare/internal/types"
)

var ErrLockTimeout = errors.New("timed out waiting for doctor schedule lock")

const (
	DefaultLockTTL  = 10 * time.Second
	DefaultLockWait = 5 * time.Second
)

// Locker grants exclusive access to a key. The returned release func is safe
// to call once; it never fails from the caller's point of view.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

func doctorKey(id types.ID) string {
	return "booking:doctor:" + string(id)
}

// LocalLocker serializes callers within one process. Each key is a
// one-slot channel so waiting respects the context and the wait bound.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
	wait  time.Duration
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	if wait <= 0 {
		wait = DefaultLockWait
	}
	return &LocalLocker{slots: make(map[string]chan struct{}), wait: wait}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	ch := l.slot(key)
	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-timer.C:
		return nil, ErrLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

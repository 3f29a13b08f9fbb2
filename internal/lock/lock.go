// internal/lock/lock.go
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired is returned when the named lock is already held.
var ErrNotAcquired = errors.New("lock not acquired")

// Lock is a held lock.
type Lock interface {
	Unlock(ctx context.Context) error
}

// Locker acquires locks by name without blocking.
type Locker interface {
	Lock(ctx context.Context, name string) (Lock, error)
}

type noopLock struct{}

func (noopLock) Unlock(context.Context) error { return nil }

// Noop never contends. Invocations for the same job name race on the mount.
type Noop struct{}

func (Noop) Lock(context.Context, string) (Lock, error) { return noopLock{}, nil }

// Local serializes job names within one process.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) Lock(_ context.Context, name string) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[name]; ok {
		return nil, ErrNotAcquired
	}
	l.held[name] = struct{}{}
	return &localLock{owner: l, name: name}, nil
}

type localLock struct {
	owner *Local
	name  string
	once  sync.Once
}

func (l *localLock) Unlock(context.Context) error {
	l.once.Do(func() {
		l.owner.mu.Lock()
		delete(l.owner.held, l.name)
		l.owner.mu.Unlock()
	})
	return nil
}

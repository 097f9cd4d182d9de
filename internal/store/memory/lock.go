package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/binarymarket/internal/domain"
)

// LockManager implements domain.LockManager with one single-slot channel per
// key. Acquire waits for the holder to release or for ctx to end; the ttl is
// ignored because a holder cannot outlive the process.
type LockManager struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLockManager returns an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{slots: make(map[string]chan struct{})}
}

func (lm *LockManager) slot(key string) chan struct{} {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	ch, ok := lm.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		lm.slots[key] = ch
	}
	return ch
}

// Acquire blocks until key is free. The returned unlock is safe to call more
// than once.
func (lm *LockManager) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	ch := lm.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("memory: acquire lock %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)

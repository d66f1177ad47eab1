package convo

import (
	"context"
	"fmt"
	"sync"
)

// ThreadLocker provides operation-level mutual exclusion per thread.
// It keeps two concurrent turns on the same thread from interleaving
// their history appends and guarantees per-thread response ordering.
type ThreadLocker struct {
	mu    sync.Mutex
	locks map[string]*threadMutex
}

type threadMutex struct {
	mu       sync.Mutex
	refCount int
}

// NewThreadLocker creates a new thread locker.
func NewThreadLocker() *ThreadLocker {
	return &ThreadLocker{
		locks: make(map[string]*threadMutex),
	}
}

// Lock acquires the lock for the given thread ID. It blocks until the
// lock is acquired or the context is cancelled. Returns an unlock
// function that MUST be called when the turn is complete.
func (tl *ThreadLocker) Lock(ctx context.Context, threadID string) (unlock func(), err error) {
	tl.mu.Lock()
	tm, ok := tl.locks[threadID]
	if !ok {
		tm = &threadMutex{}
		tl.locks[threadID] = tm
	}
	tm.refCount++
	tl.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		tm.mu.Lock()
		close(acquired)
	}()

	release := func() {
		tm.mu.Unlock()
		tl.mu.Lock()
		tm.refCount--
		if tm.refCount == 0 {
			delete(tl.locks, threadID)
		}
		tl.mu.Unlock()
	}

	select {
	case <-acquired:
		return release, nil
	case <-ctx.Done():
		// Context cancelled before the lock was acquired. The goroutine
		// above will still take the mutex eventually; release it as soon
		// as it does so the lock is never permanently held.
		go func() {
			<-acquired
			release()
		}()
		return nil, fmt.Errorf("thread lock: %w", ctx.Err())
	}
}

// ActiveCount returns the number of threads with active or pending
// locks. Intended for testing.
func (tl *ThreadLocker) ActiveCount() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return len(tl.locks)
}

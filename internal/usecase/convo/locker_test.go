package convo

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestThreadLockerSerializes(t *testing.T) {
	tl := NewThreadLocker()
	ctx := context.Background()

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	unlock, err := tl.Lock(ctx, "t1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		u, err := tl.Lock(ctx, "t1")
		if err != nil {
			t.Errorf("second Lock: %v", err)
			return
		}
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		u()
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	unlock()
	wg.Wait()

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("order = %v, want [1 2]", order)
	}
}

func TestThreadLockerIndependentThreads(t *testing.T) {
	tl := NewThreadLocker()
	ctx := context.Background()

	u1, err := tl.Lock(ctx, "t1")
	if err != nil {
		t.Fatalf("Lock t1: %v", err)
	}
	// A different thread must not block behind t1.
	done := make(chan struct{})
	go func() {
		u2, err := tl.Lock(ctx, "t2")
		if err != nil {
			t.Errorf("Lock t2: %v", err)
			return
		}
		u2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("t2 blocked behind t1")
	}
	u1()
}

func TestThreadLockerContextCancel(t *testing.T) {
	tl := NewThreadLocker()

	unlock, err := tl.Lock(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := tl.Lock(ctx, "t1"); err == nil {
		t.Fatal("expected cancellation error")
	}

	unlock()

	// The abandoned waiter must not poison the lock.
	u2, err := tl.Lock(context.Background(), "t1")
	if err != nil {
		t.Fatalf("re-Lock after cancel: %v", err)
	}
	u2()

	deadline := time.Now().Add(time.Second)
	for tl.ActiveCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("ActiveCount = %d, want 0", tl.ActiveCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

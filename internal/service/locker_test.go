package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalLocker_Serializes(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		u, err := l.Lock(ctx, "k", time.Minute)
		if err == nil {
			u()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatalf("second holder acquired a held lock")
	case <-time.After(50 * time.Millisecond):
	}

	// other keys are independent
	other, err := l.Lock(ctx, "other", time.Minute)
	if err != nil {
		t.Fatalf("Lock other: %v", err)
	}
	other()

	unlock()
	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("waiter never acquired the lock")
	}
}

func TestLocalLocker_ContextCancel(t *testing.T) {
	l := NewLocalLocker()
	unlock, _ := l.Lock(context.Background(), "k", time.Minute)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "k", time.Minute); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

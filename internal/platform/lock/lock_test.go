package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocalLocker_SerializesSameKey(t *testing.T) {
	l := NewLocalLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), ProviderKey("p1"), func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("expected at most 1 holder, got %d", maxInside)
	}
	if len(l.locks) != 0 {
		t.Errorf("expected lock table to be empty, got %d entries", len(l.locks))
	}
}

func TestLocalLocker_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocalLocker()
	done := make(chan struct{})

	go func() {
		_ = l.WithLock(context.Background(), "a", func(ctx context.Context) error {
			<-done
			return nil
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := l.WithLock(ctx, "b", func(ctx context.Context) error { return nil })
	close(done)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLocalLocker_ContextCancelled(t *testing.T) {
	l := NewLocalLocker()
	held := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = l.WithLock(context.Background(), "k", func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err := l.WithLock(ctx, "k", func(ctx context.Context) error {
		called = true
		return nil
	})
	close(release)

	if !errors.Is(err, ErrLockNotAcquired) {
		t.Errorf("expected ErrLockNotAcquired, got %v", err)
	}
	if called {
		t.Error("fn must not run without the lock")
	}
}

func TestLocalLocker_PropagatesError(t *testing.T) {
	l := NewLocalLocker()
	sentinel := errors.New("boom")
	err := l.WithLock(context.Background(), "k", func(ctx context.Context) error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Errorf("expected sentinel error, got %v", err)
	}
}

package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestConnectionPool_acquire_release(t *testing.T) {
	pool := NewConnectionPool(PoolConfig{MaxConnsPerHost: 2, GlobalMaxConns: 10, AcquireTimeout: time.Second})
	defer pool.Close()

	release, err := pool.Acquire(context.Background(), "host-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := pool.InFlight(); got != 1 {
		t.Errorf("expected 1 in flight, got %d", got)
	}

	release()
	if got := pool.InFlight(); got != 0 {
		t.Errorf("expected 0 in flight after release, got %d", got)
	}
}

func TestConnectionPool_per_host_limit(t *testing.T) {
	pool := NewConnectionPool(PoolConfig{MaxConnsPerHost: 1, GlobalMaxConns: 10, AcquireTimeout: 50 * time.Millisecond})
	defer pool.Close()

	release, err := pool.Acquire(context.Background(), "host-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	// Same host is full; a different host still has capacity.
	if _, err := pool.Acquire(context.Background(), "host-a"); !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("expected ErrPoolExhausted, got %v", err)
	}
	releaseB, err := pool.Acquire(context.Background(), "host-b")
	if err != nil {
		t.Errorf("other host should have capacity: %v", err)
	} else {
		releaseB()
	}
}

func TestConnectionPool_waiter_gets_released_slot(t *testing.T) {
	pool := NewConnectionPool(PoolConfig{MaxConnsPerHost: 1, GlobalMaxConns: 10, AcquireTimeout: time.Second})
	defer pool.Close()

	release, err := pool.Acquire(context.Background(), "host-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		releaseSecond, err := pool.Acquire(context.Background(), "host-a")
		if err == nil {
			releaseSecond()
		}
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	release()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("waiter should acquire after release: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke up")
	}
}

func TestConnectionPool_global_limit(t *testing.T) {
	pool := NewConnectionPool(PoolConfig{MaxConnsPerHost: 5, GlobalMaxConns: 2, AcquireTimeout: 50 * time.Millisecond})
	defer pool.Close()

	r1, err := pool.Acquire(context.Background(), "host-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r1()
	r2, err := pool.Acquire(context.Background(), "host-b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r2()

	if _, err := pool.Acquire(context.Background(), "host-c"); !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("expected ErrPoolExhausted at global cap, got %v", err)
	}
}

func TestConnectionPool_closed(t *testing.T) {
	pool := NewConnectionPool(DefaultPoolConfig())
	pool.Close()

	if _, err := pool.Acquire(context.Background(), "host-a"); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
}

func TestConnectionPool_caps_hold_under_contention(t *testing.T) {
	pool := NewConnectionPool(PoolConfig{MaxConnsPerHost: 2, GlobalMaxConns: 2, AcquireTimeout: 2 * time.Second})
	defer pool.Close()

	// Waiters woken by a release race fast-path acquirers for the slot; the
	// cap must hold no matter who wins.
	var held atomic.Int32
	var exceeded atomic.Bool
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 40; j++ {
				release, err := pool.Acquire(context.Background(), "host-a")
				if err != nil {
					continue
				}
				if held.Add(1) > 2 {
					exceeded.Store(true)
				}
				held.Add(-1)
				release()
			}
		}()
	}
	wg.Wait()

	if exceeded.Load() {
		t.Error("pool exceeded its configured connection cap")
	}
	if got := pool.InFlight(); got != 0 {
		t.Errorf("expected 0 in flight after drain, got %d", got)
	}
}

func TestConnectionPool_acquire_respects_context(t *testing.T) {
	pool := NewConnectionPool(PoolConfig{MaxConnsPerHost: 1, GlobalMaxConns: 1, AcquireTimeout: time.Minute})
	defer pool.Close()

	release, err := pool.Acquire(context.Background(), "host-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if _, err := pool.Acquire(ctx, "host-a"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

package gateway

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrPoolExhausted is returned when no connection slot frees up within the
// acquire timeout.
var ErrPoolExhausted = errors.New("connection pool exhausted")

// ErrPoolClosed is returned when acquiring from a closed pool.
var ErrPoolClosed = errors.New("connection pool closed")

// PoolConfig holds configuration for origin connection pooling.
type PoolConfig struct {
	// MaxConnsPerHost is the maximum concurrent origin connections per host.
	MaxConnsPerHost int
	// GlobalMaxConns is the total maximum concurrent origin connections.
	GlobalMaxConns int
	// AcquireTimeout is how long to wait for a connection slot.
	AcquireTimeout time.Duration
}

// DefaultPoolConfig returns sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConnsPerHost: 6,
		GlobalMaxConns:  100,
		AcquireTimeout:  5 * time.Second,
	}
}

// ConnectionPool bounds concurrent origin connections per host. It is the only
// state shared across client requests; every slot is checked out before an
// origin call and released unconditionally on every exit path.
type ConnectionPool struct {
	config PoolConfig

	mu        sync.Mutex
	closed    bool
	hostConns map[string]int
	global    int
	waiters   map[string][]chan struct{}
}

// NewConnectionPool creates a new pool.
func NewConnectionPool(config PoolConfig) *ConnectionPool {
	return &ConnectionPool{
		config:    config,
		hostConns: make(map[string]int),
		waiters:   make(map[string][]chan struct{}),
	}
}

// Acquire checks out a connection slot for host. It returns a release function
// that must be called when the origin call finishes, on success or error.
func (p *ConnectionPool) Acquire(ctx context.Context, host string) (func(), error) {
	var timeoutCtx context.Context
	var cancel context.CancelFunc
	if p.config.AcquireTimeout > 0 {
		timeoutCtx, cancel = context.WithTimeout(ctx, p.config.AcquireTimeout)
	} else {
		timeoutCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		// Capacity is checked under the lock on every pass. A woken waiter
		// races fast-path acquirers for the freed slot and must not claim
		// beyond the caps when it loses.
		if p.canAcquire(host) {
			p.hostConns[host]++
			p.global++
			p.mu.Unlock()
			return func() { p.release(host) }, nil
		}

		waiter := make(chan struct{}, 1)
		p.waiters[host] = append(p.waiters[host], waiter)
		p.mu.Unlock()

		select {
		case <-waiter:

		case <-timeoutCtx.Done():
			p.mu.Lock()
			p.removeWaiter(host, waiter)
			p.mu.Unlock()
			if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
				return nil, ErrPoolExhausted
			}
			return nil, timeoutCtx.Err()
		}
	}
}

// canAcquire reports whether a slot is free. Caller must hold p.mu.
func (p *ConnectionPool) canAcquire(host string) bool {
	if p.config.GlobalMaxConns > 0 && p.global >= p.config.GlobalMaxConns {
		return false
	}
	if p.config.MaxConnsPerHost > 0 && p.hostConns[host] >= p.config.MaxConnsPerHost {
		return false
	}
	return true
}

func (p *ConnectionPool) release(host string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hostConns[host] > 0 {
		p.hostConns[host]--
		if p.hostConns[host] == 0 {
			delete(p.hostConns, host)
		}
	}
	if p.global > 0 {
		p.global--
	}

	// Hand the freed slot to a waiter on the same host first, then to any
	// host that can now acquire.
	if len(p.waiters[host]) > 0 {
		p.notify(host)
		return
	}
	for h, ws := range p.waiters {
		if len(ws) > 0 && p.canAcquire(h) {
			p.notify(h)
			return
		}
	}
}

// notify wakes the first waiter for host. Caller must hold p.mu.
func (p *ConnectionPool) notify(host string) {
	waiter := p.waiters[host][0]
	p.waiters[host] = p.waiters[host][1:]
	if len(p.waiters[host]) == 0 {
		delete(p.waiters, host)
	}
	select {
	case waiter <- struct{}{}:
	default:
	}
}

// removeWaiter drops a timed-out waiter. Caller must hold p.mu.
func (p *ConnectionPool) removeWaiter(host string, waiter chan struct{}) {
	waiters := p.waiters[host]
	for i, w := range waiters {
		if w == waiter {
			p.waiters[host] = append(waiters[:i], waiters[i+1:]...)
			if len(p.waiters[host]) == 0 {
				delete(p.waiters, host)
			}
			break
		}
	}
}

// InFlight returns the number of currently checked-out slots.
func (p *ConnectionPool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.global
}

// Close closes the pool and releases all waiters.
func (p *ConnectionPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for _, waiters := range p.waiters {
		for _, w := range waiters {
			close(w)
		}
	}
	p.waiters = nil
}

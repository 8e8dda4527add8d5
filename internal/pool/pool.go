// Package pool implements the bounded connection pool described for
// JULEA's transport layer: one LIFO of idle endpoints plus an outstanding
// counter per (backend_type, server_index), guarded by a mutex and
// condition variable so pop blocks at capacity instead of over-connecting.
package pool

import (
	"context"
	"fmt"
	"sync"
)

// BackendType names which of the three data models a pooled endpoint serves.
type BackendType string

const (
	BackendObject BackendType = "object"
	BackendKV     BackendType = "kv"
	BackendDB     BackendType = "db"
)

// Endpoint is an opaque transport handle. TCP connections, fabric handles,
// or any other implementation satisfy this by also implementing Close.
type Endpoint interface {
	Close() error
}

// EndpointFactory dials a new Endpoint to the given server address. The TCP
// implementation lives in internal/client; a fabric/RDMA implementation
// would satisfy the same interface but none ships here — see DESIGN.md.
type EndpointFactory interface {
	Dial(ctx context.Context, address string) (Endpoint, error)
}

type key struct {
	backend BackendType
	server  int
}

type bucket struct {
	mu   sync.Mutex
	cond *sync.Cond
	idle []Endpoint
	// outstanding counts every live endpoint, whether parked in idle or
	// currently borrowed by a caller.
	outstanding int
	cap         int
	address     string
}

// Pool multiplexes bounded sets of endpoints across backend types and
// server indices. Construct with New, then Pop/Push around each use of a
// connection.
type Pool struct {
	factory EndpointFactory
	maxConn int

	mu      sync.Mutex
	buckets map[key]*bucket
	// addresses maps (backend, server index) to a dial address, seeded at
	// construction from server address lists.
	addresses map[key]string

	closedMu sync.Mutex
	closed   bool
}

// Config lists, for each backend type, the ordered server addresses and the
// maximum outstanding connections any single (backend, server) pair may
// hold at once.
type Config struct {
	ObjectServers  []string
	KVServers      []string
	DBServers      []string
	MaxConnections int
}

// New constructs a Pool from cfg. factory is used to dial new endpoints; a
// production caller supplies a net.Dial-backed TCP factory.
func New(cfg Config, factory EndpointFactory) (*Pool, error) {
	if cfg.MaxConnections <= 0 {
		return nil, fmt.Errorf("pool: max-connections must be positive")
	}
	p := &Pool{
		factory:   factory,
		maxConn:   cfg.MaxConnections,
		buckets:   make(map[key]*bucket),
		addresses: make(map[key]string),
	}
	seed := func(bt BackendType, addrs []string) {
		for i, addr := range addrs {
			p.addresses[key{bt, i}] = addr
		}
	}
	seed(BackendObject, cfg.ObjectServers)
	seed(BackendKV, cfg.KVServers)
	seed(BackendDB, cfg.DBServers)
	return p, nil
}

func (p *Pool) bucketFor(bt BackendType, serverIndex int) (*bucket, error) {
	k := key{bt, serverIndex}

	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.buckets[k]; ok {
		return b, nil
	}
	addr, ok := p.addresses[k]
	if !ok {
		return nil, fmt.Errorf("pool: no server configured for %s index %d", bt, serverIndex)
	}
	b := &bucket{cap: p.maxConn, address: addr}
	b.cond = sync.NewCond(&b.mu)
	p.buckets[k] = b
	return b, nil
}

// Pop returns an idle endpoint for (backendType, serverIndex), dialing a new
// one if under capacity, or blocking until one is pushed back or ctx is
// cancelled.
func (p *Pool) Pop(ctx context.Context, backendType BackendType, serverIndex int) (Endpoint, error) {
	if p.isClosed() {
		return nil, fmt.Errorf("pool: closed")
	}
	b, err := p.bucketFor(backendType, serverIndex)
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	for {
		if n := len(b.idle); n > 0 {
			ep := b.idle[n-1]
			b.idle = b.idle[:n-1]
			b.mu.Unlock()
			return ep, nil
		}
		if b.outstanding < b.cap {
			b.outstanding++
			addr := b.address
			b.mu.Unlock()
			ep, err := p.factory.Dial(ctx, addr)
			if err != nil {
				b.mu.Lock()
				b.outstanding--
				b.cond.Signal()
				b.mu.Unlock()
				return nil, fmt.Errorf("pool: dial %s: %w", addr, err)
			}
			return ep, nil
		}
		if ctx.Err() != nil {
			b.mu.Unlock()
			return nil, ctx.Err()
		}
		b.cond.Wait()
	}
}

// Push returns a healthy endpoint to the idle LIFO and signals one waiter.
// Broken endpoints must go to Discard instead.
func (p *Pool) Push(backendType BackendType, serverIndex int, ep Endpoint) {
	if p.isClosed() {
		p.Discard(backendType, serverIndex, ep)
		return
	}
	b, err := p.bucketFor(backendType, serverIndex)
	if err != nil {
		ep.Close()
		return
	}
	b.mu.Lock()
	b.idle = append(b.idle, ep)
	b.cond.Signal()
	b.mu.Unlock()
}

// Discard drops a broken endpoint: it is closed, never returned to the LIFO,
// and the outstanding counter is decremented so a waiter may dial fresh.
func (p *Pool) Discard(backendType BackendType, serverIndex int, ep Endpoint) {
	b, err := p.bucketFor(backendType, serverIndex)
	if err != nil {
		ep.Close()
		return
	}
	ep.Close()
	b.mu.Lock()
	b.outstanding--
	b.cond.Signal()
	b.mu.Unlock()
}

func (p *Pool) isClosed() bool {
	p.closedMu.Lock()
	defer p.closedMu.Unlock()
	return p.closed
}

// Shutdown drains every bucket's idle LIFO, closes all endpoints, and
// refuses further Pop calls.
func (p *Pool) Shutdown() error {
	p.closedMu.Lock()
	p.closed = true
	p.closedMu.Unlock()

	p.mu.Lock()
	buckets := make([]*bucket, 0, len(p.buckets))
	for _, b := range p.buckets {
		buckets = append(buckets, b)
	}
	p.mu.Unlock()

	var firstErr error
	for _, b := range buckets {
		b.mu.Lock()
		for _, ep := range b.idle {
			if err := ep.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		b.idle = nil
		b.cond.Broadcast()
		b.mu.Unlock()
	}
	return firstErr
}

// Outstanding reports the current total of idle-plus-borrowed endpoints for
// a bucket, which must never exceed MaxConnections (testable property 7).
func (p *Pool) Outstanding(backendType BackendType, serverIndex int) int {
	b, err := p.bucketFor(backendType, serverIndex)
	if err != nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outstanding
}

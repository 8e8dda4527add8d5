// Package workerpool implements a fixed-size background worker pool:
// submit(f) → handle, wait(handle) blocks until f completes and returns its
// result. RunParallel, used for distributed-object fan-out, starts its own
// goroutines rather than using a Pool.
package workerpool

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultSize is max(1, NumCPU), the pool's default size absent an
// explicit override.
func DefaultSize() int {
	if n := runtime.NumCPU(); n > 1 {
		return n
	}
	return 1
}

// Task is the handle returned by Submit; Wait blocks until the task's
// function has run and returns its result.
type Task[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Wait blocks until the task completes and returns its function's result.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Pool is a fixed-size pool of goroutines fed by a buffered job channel,
// sized to DefaultSize() by default and overridable via New.
type Pool struct {
	jobs chan func()

	mu       sync.Mutex
	shutdown bool

	wg sync.WaitGroup
}

// New starts a Pool with size workers (size<=0 uses DefaultSize()).
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize()
	}
	p := &Pool{jobs: make(chan func(), size*4)}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
	return p
}

// ErrShutdown is returned by Submit after Shutdown has begun.
var ErrShutdown = fmt.Errorf("workerpool: shut down")

// Submit runs f on a worker and returns a handle for retrieving its result.
// Submitting after Shutdown returns ErrShutdown instead of a Task.
func Submit[T any](p *Pool, f func(ctx context.Context) (T, error), ctx context.Context) (*Task[T], error) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil, ErrShutdown
	}
	p.mu.Unlock()

	task := &Task[T]{done: make(chan struct{})}
	p.jobs <- func() {
		task.val, task.err = f(ctx)
		close(task.done)
	}
	return task, nil
}

// Shutdown stops accepting new submissions and blocks until every queued
// job has run to completion.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	p.mu.Unlock()

	close(p.jobs)
	p.wg.Wait()
}

// RunParallel runs f for every item on its own goroutine using errgroup
// (not on a Pool), collecting the first error (if any) while letting every
// item run with the caller's ctx — used by distributed object dispatch
// where each child updates a shared atomic counter regardless of a
// sibling's failure.
func RunParallel(ctx context.Context, items int, f func(ctx context.Context, i int) error) error {
	var g errgroup.Group
	for i := 0; i < items; i++ {
		i := i
		g.Go(func() error { return f(ctx, i) })
	}
	return g.Wait()
}

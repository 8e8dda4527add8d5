// Package batch implements the client-side batch/operation engine: a batch
// holds an ordered list of operations against a Semantics, groups adjacent
// operations that share a key into single executor calls, and applies the
// semantics-driven behaviors (eventual-consistency hand-off to a cache hook,
// atomicity degrade warnings). The trailing sync for immediate persistency
// is issued by the object client, not by this package.
package batch

import (
	"context"
	"log"

	"github.com/dreamware/julea/internal/errs"
	"github.com/dreamware/julea/internal/semantics"
)

// Executor runs one group of operations that share a key — e.g. every
// object-write destined for the same server bucket — and reports whether
// all of them succeeded.
type Executor func(ctx context.Context, group []*Operation, sem *semantics.Semantics) error

// Operation is a polymorphic queued unit of work: an opaque key identifying
// which group it coalesces into, the backend kind it targets (used to
// decide whether atomicity=batch must refuse a mixed-backend batch rather
// than merely degrade), an operation-specific payload, the executor that
// knows how to run a group containing it, and a cacheable flag used by the
// eventual-consistency path.
type Operation struct {
	Key       string
	Backend   string
	Data      any
	Exec      Executor
	Cacheable bool
	// Free releases Data when the batch is done with it. Optional.
	Free func(data any)
}

// Cloner, satisfied by Batch itself, lets the operation cache store a
// detached copy of a batch without depending on the batch package's
// internals beyond this interface.
type Cloner interface {
	Clone() *Batch
}

// Batch holds a reference to a Semantics and an ordered operation list. It
// executes at most once; a second Execute call is a no-op returning the
// first result.
type Batch struct {
	Namespace string
	sem       *semantics.Semantics
	ops       []*Operation

	executed bool
	result   error

	// onCacheable receives a clone of the batch instead of running it
	// immediately, when semantics.consistency=eventual and every queued
	// operation is cacheable. Set only through SetCacheHook; the clients in
	// internal/client never set it, so their batches always run immediately.
	onCacheable func(*Batch)
}

// New returns an empty batch against namespace, sharing sem (which is
// frozen via Ref if not already).
func New(namespace string, sem *semantics.Semantics) *Batch {
	return &Batch{Namespace: namespace, sem: sem.Ref()}
}

// Semantics returns the batch's semantics.
func (b *Batch) Semantics() *semantics.Semantics { return b.sem }

// SetCacheHook wires the callback invoked instead of direct execution when
// the batch qualifies for eventual-consistency caching.
func (b *Batch) SetCacheHook(hook func(*Batch)) { b.onCacheable = hook }

// Add appends an operation to the batch. Must be called before Execute.
func (b *Batch) Add(op *Operation) {
	b.ops = append(b.ops, op)
}

// Ops returns the queued operations in order.
func (b *Batch) Ops() []*Operation { return b.ops }

// allCacheable reports whether every queued operation is cacheable
// (side-effecting writes/inserts/puts/deletes/creates — never reads or
// queries).
func (b *Batch) allCacheable() bool {
	if len(b.ops) == 0 {
		return false
	}
	for _, op := range b.ops {
		if !op.Cacheable {
			return false
		}
	}
	return true
}

// Clone returns a detached copy of the batch sharing the same Semantics
// (already frozen) and operation list, for the operation cache to hold and
// run later via Execute.
func (b *Batch) Clone() *Batch {
	cp := &Batch{Namespace: b.Namespace, sem: b.sem}
	cp.ops = make([]*Operation, len(b.ops))
	copy(cp.ops, b.ops)
	return cp
}

// Execute runs the batch: groups adjacent same-key operations, dispatches
// each group to its executor, and combines results by conjunction. A batch
// never executes twice — a second call returns the first call's result
// without re-running anything.
//
// If the batch qualifies for eventual-consistency caching (consistency ==
// eventual and every operation is cacheable) and a cache hook is set, a
// clone is handed to the cache and this call returns success immediately
// without running anything.
func (b *Batch) Execute(ctx context.Context) error {
	if b.executed {
		return b.result
	}

	if b.sem.Consistency == semantics.ConsistencyEventual && b.allCacheable() && b.onCacheable != nil {
		b.onCacheable(b.Clone())
		b.executed = true
		b.result = nil
		return nil
	}

	b.result = b.executeInternal(ctx)
	b.executed = true
	return b.result
}

// ExecuteInternal runs the group-by-key walk directly, bypassing the
// eventual-consistency cache hook. The operation cache's flush calls this
// on each held clone so a cached batch never re-enters the cache.
func (b *Batch) ExecuteInternal(ctx context.Context) error {
	err := b.executeInternal(ctx)
	b.executed = true
	b.result = err
	return err
}

// executeInternal performs the actual group-by-key walk, used both by
// direct Execute and by the operation cache's flush.
func (b *Batch) executeInternal(ctx context.Context) error {
	if b.sem.Atomicity == semantics.AtomicityBatch {
		if b.spansMultipleBackends() {
			return ErrNotSupportedAcrossBackends
		}
		if b.spansMultipleKeys() {
			log.Printf("batch: atomicity=batch requested across multiple operation groups; degrading to atomicity=operation")
		}
	}

	var group []*Operation

	flush := func() error {
		if len(group) == 0 {
			return nil
		}
		err := group[0].Exec(ctx, group, b.sem)
		group = group[:0]
		return err
	}

	var overall error
	for _, op := range b.ops {
		if len(group) > 0 && group[0].Key != op.Key {
			if err := flush(); err != nil && overall == nil {
				overall = err
			}
		}
		group = append(group, op)
	}
	if err := flush(); err != nil && overall == nil {
		overall = err
	}
	return overall
}

// spansMultipleBackends reports whether the queued operations target more
// than one distinct backend kind (e.g. object and kv in the same batch),
// which atomicity=batch cannot honor at all: there is no single backend to
// ask for a transaction spanning both.
func (b *Batch) spansMultipleBackends() bool {
	if len(b.ops) == 0 {
		return false
	}
	first := b.ops[0].Backend
	for _, op := range b.ops[1:] {
		if op.Backend != first {
			return true
		}
	}
	return false
}

// spansMultipleKeys reports whether the queued operations span more than
// one distinct key, meaning Execute will dispatch more than one executor
// group even though they share a backend. atomicity=batch degrades to
// atomicity=operation in this case rather than failing outright.
func (b *Batch) spansMultipleKeys() bool {
	if len(b.ops) == 0 {
		return false
	}
	first := b.ops[0].Key
	for _, op := range b.ops[1:] {
		if op.Key != first {
			return true
		}
	}
	return false
}

// ExecuteAsync off-loads Execute onto the given runner (typically a single
// dedicated worker) and invokes callback with the result on completion.
func ExecuteAsync(ctx context.Context, b *Batch, runner func(func()), callback func(error)) {
	runner(func() {
		err := b.Execute(ctx)
		if callback != nil {
			callback(err)
		}
	})
}

// ErrNotSupportedAcrossBackends is returned when a batch declares
// atomicity=batch but spans multiple backend types in one call: there is no
// single backend that can make such a batch atomic, so it is refused
// outright rather than silently degraded.
var ErrNotSupportedAcrossBackends = errs.NotSupported("atomicity=batch across multiple backend types")

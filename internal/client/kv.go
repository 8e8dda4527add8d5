package client

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dreamware/julea/internal/batch"
	"github.com/dreamware/julea/internal/errs"
	"github.com/dreamware/julea/internal/message"
	"github.com/dreamware/julea/internal/pool"
	"github.com/dreamware/julea/internal/semantics"
)

// backendKindKV identifies kv operations to the batch engine's mixed-backend
// atomicity check.
const backendKindKV = "kv"

// KVClient is the client-facing key-value API: each operation targets one
// server index, chosen by the caller's own key-to-server mapping (JULEA
// itself does not hash keys to servers; that policy lives above this layer).
// Every call runs through a batch.Batch of one Operation, applying sem's
// safety flags and atomicity behaviors; no cache hook is set, so an
// eventual-consistency call still executes immediately.
type KVClient struct {
	pool   *pool.Pool
	nextID atomic.Uint32
	sem    *semantics.Semantics
}

// NewKVClient returns a KVClient dispatching over p, governed by sem. A nil
// sem falls back to semantics.TemplateDefault.
func NewKVClient(p *pool.Pool, sem *semantics.Semantics) *KVClient {
	if sem == nil {
		sem = semantics.New(semantics.TemplateDefault)
	}
	return &KVClient{pool: p, sem: sem.Ref()}
}

func (c *KVClient) newID() uint32 { return c.nextID.Add(1) }

func (c *KVClient) opKey(serverIndex int) string {
	return fmt.Sprintf("%s:%d", backendKindKV, serverIndex)
}

func (c *KVClient) roundTrip(ctx context.Context, serverIndex int, req *message.Message) (*message.Message, error) {
	ep, err := c.pool.Pop(ctx, pool.BackendKV, serverIndex)
	if err != nil {
		return nil, errs.Transport(err, "kv: pop connection")
	}
	conn := Conn(ep)

	if err := message.Send(conn, req); err != nil {
		c.pool.Discard(pool.BackendKV, serverIndex, ep)
		return nil, errs.Transport(err, "kv: send")
	}
	reply, err := message.Receive(conn)
	if err != nil {
		c.pool.Discard(pool.BackendKV, serverIndex, ep)
		return nil, errs.Transport(err, "kv: receive")
	}
	if reply.Header.ID != req.Header.ID {
		c.pool.Discard(pool.BackendKV, serverIndex, ep)
		return nil, errs.Protocol(nil, "kv: reply id %d does not match request id %d", reply.Header.ID, req.Header.ID)
	}
	c.pool.Push(pool.BackendKV, serverIndex, ep)
	return reply, nil
}

func (c *KVClient) runSingle(ctx context.Context, serverIndex int, namespace string, cacheable bool, fn func(ctx context.Context) error) error {
	b := batch.New(namespace, c.sem)
	b.Add(&batch.Operation{
		Key:       c.opKey(serverIndex),
		Backend:   backendKindKV,
		Cacheable: cacheable,
		Exec: func(ctx context.Context, group []*batch.Operation, sem *semantics.Semantics) error {
			return fn(ctx)
		},
	})
	return b.Execute(ctx)
}

// Put stores value under key in namespace on serverIndex.
func (c *KVClient) Put(ctx context.Context, serverIndex int, namespace, key string, value []byte) error {
	return c.runSingle(ctx, serverIndex, namespace, true, func(ctx context.Context) error {
		req := message.New(message.OpKVPut)
		req.Header.ID = c.newID()
		req.AppendString(namespace)
		req.AppendString(key)
		req.AppendBytes(value)
		req.IncrementOpCount()
		applySafety(req, c.sem)
		_, err := c.roundTrip(ctx, serverIndex, req)
		return err
	})
}

// Delete removes key from namespace on serverIndex.
func (c *KVClient) Delete(ctx context.Context, serverIndex int, namespace, key string) error {
	return c.runSingle(ctx, serverIndex, namespace, true, func(ctx context.Context) error {
		req := message.New(message.OpKVDelete)
		req.Header.ID = c.newID()
		req.AppendString(namespace)
		req.AppendString(key)
		req.IncrementOpCount()
		applySafety(req, c.sem)
		_, err := c.roundTrip(ctx, serverIndex, req)
		return err
	})
}

// Get returns the value stored under key in namespace on serverIndex, or a
// KindNotFound error.
func (c *KVClient) Get(ctx context.Context, serverIndex int, namespace, key string) ([]byte, error) {
	var value []byte
	err := c.runSingle(ctx, serverIndex, namespace, false, func(ctx context.Context) error {
		req := message.New(message.OpKVGet)
		req.Header.ID = c.newID()
		req.AppendString(namespace)
		req.AppendString(key)
		req.IncrementOpCount()
		applySafety(req, c.sem)

		reply, err := c.roundTrip(ctx, serverIndex, req)
		if err != nil {
			return err
		}
		found, err := reply.ReadUint8()
		if err != nil {
			return errs.Protocol(err, "kv: get reply")
		}
		if found == 0 {
			return errs.NotFound("kv: %s/%s", namespace, key)
		}
		value, err = reply.ReadBytes()
		if err != nil {
			return errs.Protocol(err, "kv: get reply value")
		}
		return nil
	})
	return value, err
}

// Entry is one key/value pair returned by an iteration call.
type Entry struct {
	Key   string
	Value []byte
}

// GetAll fetches every entry in namespace from serverIndex in a single
// round trip. A remote, single-server iterator; merging results across
// servers for a distributed namespace is the caller's responsibility (the
// ordering is not globally defined).
func (c *KVClient) GetAll(ctx context.Context, serverIndex int, namespace string) ([]Entry, error) {
	return c.getEntries(ctx, serverIndex, message.OpKVGetAll, namespace, "")
}

// GetByPrefix fetches every entry in namespace whose key starts with prefix.
func (c *KVClient) GetByPrefix(ctx context.Context, serverIndex int, namespace, prefix string) ([]Entry, error) {
	return c.getEntries(ctx, serverIndex, message.OpKVGetByPrefix, namespace, prefix)
}

func (c *KVClient) getEntries(ctx context.Context, serverIndex int, op message.OpType, namespace, prefix string) ([]Entry, error) {
	var entries []Entry
	err := c.runSingle(ctx, serverIndex, namespace, false, func(ctx context.Context) error {
		req := message.New(op)
		req.Header.ID = c.newID()
		req.AppendString(namespace)
		if op == message.OpKVGetByPrefix {
			req.AppendString(prefix)
		}
		req.IncrementOpCount()
		applySafety(req, c.sem)

		reply, err := c.roundTrip(ctx, serverIndex, req)
		if err != nil {
			return err
		}
		count, err := reply.ReadUint32()
		if err != nil {
			return errs.Protocol(err, "kv: iterate reply count")
		}
		entries = make([]Entry, 0, count)
		for i := uint32(0); i < count; i++ {
			key, err := reply.ReadString()
			if err != nil {
				return errs.Protocol(err, "kv: iterate reply key")
			}
			value, err := reply.ReadBytes()
			if err != nil {
				return errs.Protocol(err, "kv: iterate reply value")
			}
			entries = append(entries, Entry{Key: key, Value: value})
		}
		return nil
	})
	return entries, err
}

package client

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dreamware/julea/internal/batch"
	"github.com/dreamware/julea/internal/distribution"
	"github.com/dreamware/julea/internal/errs"
	"github.com/dreamware/julea/internal/message"
	"github.com/dreamware/julea/internal/pool"
	"github.com/dreamware/julea/internal/semantics"
	"github.com/dreamware/julea/internal/workerpool"
)

// backendKindObject identifies object operations to the batch engine's
// mixed-backend atomicity check.
const backendKindObject = "object"

// ObjectClient is the client-facing object-store API: single-server
// create/open/delete/status/sync/read/write, plus distributed read/write
// that fans a byte range out across servers via a Distribution. Every call
// is dispatched through a batch.Batch of one or more Operations so that
// safety flags and atomicity checks are always applied consistently with
// the governing Semantics. No cache hook is set on these batches, so an
// eventual-consistency call still executes immediately.
type ObjectClient struct {
	pool    *pool.Pool
	nextID  atomic.Uint32
	workers *workerpool.Pool
	sem     *semantics.Semantics
}

// NewObjectClient returns an ObjectClient dispatching over p, with sem
// governing safety flags, atomicity and persistency. A nil sem falls back to
// semantics.TemplateDefault. workers is stored but not used: distributed
// fan-out runs on goroutines started by workerpool.RunParallel.
func NewObjectClient(p *pool.Pool, workers *workerpool.Pool, sem *semantics.Semantics) *ObjectClient {
	if sem == nil {
		sem = semantics.New(semantics.TemplateDefault)
	}
	return &ObjectClient{pool: p, workers: workers, sem: sem.Ref()}
}

func (c *ObjectClient) newID() uint32 { return c.nextID.Add(1) }

func (c *ObjectClient) opKey(serverIndex int) string {
	return fmt.Sprintf("%s:%d", backendKindObject, serverIndex)
}

// applySafety copies sem's safety aspect into req's header flags, per the
// wire protocol's safety-bits-mirror-semantics invariant.
func applySafety(req *message.Message, sem *semantics.Semantics) {
	req.Header.Flags |= message.SafetyFlagsFor(sem.Safety == semantics.SafetyStorage, sem.Safety == semantics.SafetyNetwork)
}

func (c *ObjectClient) roundTrip(ctx context.Context, serverIndex int, req *message.Message) (*message.Message, error) {
	ep, err := c.pool.Pop(ctx, pool.BackendObject, serverIndex)
	if err != nil {
		return nil, errs.Transport(err, "object: pop connection")
	}
	conn := Conn(ep)

	if err := message.Send(conn, req); err != nil {
		c.pool.Discard(pool.BackendObject, serverIndex, ep)
		return nil, errs.Transport(err, "object: send")
	}
	reply, err := message.Receive(conn)
	if err != nil {
		c.pool.Discard(pool.BackendObject, serverIndex, ep)
		return nil, errs.Transport(err, "object: receive")
	}
	if reply.Header.ID != req.Header.ID {
		c.pool.Discard(pool.BackendObject, serverIndex, ep)
		return nil, errs.Protocol(nil, "object: reply id %d does not match request id %d", reply.Header.ID, req.Header.ID)
	}
	c.pool.Push(pool.BackendObject, serverIndex, ep)
	return reply, nil
}

// runSingle wires a single-operation call through the batch engine: it
// builds a one-operation Batch against c.sem, running fn as that
// operation's executor.
func (c *ObjectClient) runSingle(ctx context.Context, serverIndex int, namespace string, cacheable bool, fn func(ctx context.Context) error) error {
	b := batch.New(namespace, c.sem)
	b.Add(&batch.Operation{
		Key:       c.opKey(serverIndex),
		Backend:   backendKindObject,
		Cacheable: cacheable,
		Exec: func(ctx context.Context, group []*batch.Operation, sem *semantics.Semantics) error {
			return fn(ctx)
		},
	})
	return b.Execute(ctx)
}

// Create creates namespace/path on serverIndex.
func (c *ObjectClient) Create(ctx context.Context, serverIndex int, namespace, path string) error {
	return c.runSingle(ctx, serverIndex, namespace, true, func(ctx context.Context) error {
		req := message.New(message.OpObjectCreate)
		req.Header.ID = c.newID()
		req.AppendString(namespace)
		req.AppendString(path)
		req.IncrementOpCount()
		applySafety(req, c.sem)
		_, err := c.roundTrip(ctx, serverIndex, req)
		return err
	})
}

// Delete deletes namespace/path on serverIndex.
func (c *ObjectClient) Delete(ctx context.Context, serverIndex int, namespace, path string) error {
	return c.runSingle(ctx, serverIndex, namespace, true, func(ctx context.Context) error {
		req := message.New(message.OpObjectDelete)
		req.Header.ID = c.newID()
		req.AppendString(namespace)
		req.AppendString(path)
		req.IncrementOpCount()
		applySafety(req, c.sem)
		_, err := c.roundTrip(ctx, serverIndex, req)
		return err
	})
}

// Status returns (modification_time_ns, size_bytes) for namespace/path.
func (c *ObjectClient) Status(ctx context.Context, serverIndex int, namespace, path string) (int64, uint64, error) {
	var mtime int64
	var size uint64
	err := c.runSingle(ctx, serverIndex, namespace, false, func(ctx context.Context) error {
		req := message.New(message.OpObjectStatus)
		req.Header.ID = c.newID()
		req.AppendString(namespace)
		req.AppendString(path)
		req.IncrementOpCount()
		applySafety(req, c.sem)
		reply, err := c.roundTrip(ctx, serverIndex, req)
		if err != nil {
			return err
		}
		mtime, err = reply.ReadInt64()
		if err != nil {
			return errs.Protocol(err, "object: status reply")
		}
		size, err = reply.ReadUint64()
		if err != nil {
			return errs.Protocol(err, "object: status reply")
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return mtime, size, nil
}

// Sync flushes namespace/path to durable media on serverIndex.
func (c *ObjectClient) Sync(ctx context.Context, serverIndex int, namespace, path string) error {
	return c.runSingle(ctx, serverIndex, namespace, false, func(ctx context.Context) error {
		req := message.New(message.OpObjectSync)
		req.Header.ID = c.newID()
		req.AppendString(namespace)
		req.AppendString(path)
		req.IncrementOpCount()
		applySafety(req, c.sem)
		_, err := c.roundTrip(ctx, serverIndex, req)
		return err
	})
}

// Write writes buf at offset to namespace/path on serverIndex and returns
// bytes_written. If c.sem's persistency aspect is immediate, Write issues a
// trailing Sync before returning, matching the wire protocol's
// immediate-persistency contract.
func (c *ObjectClient) Write(ctx context.Context, serverIndex int, namespace, path string, buf []byte, offset uint64) (uint64, error) {
	var n uint64
	err := c.runSingle(ctx, serverIndex, namespace, true, func(ctx context.Context) error {
		req := message.New(message.OpObjectWrite)
		req.Header.ID = c.newID()
		req.AppendString(namespace)
		req.AppendString(path)
		req.AppendUint64(uint64(len(buf)))
		req.AppendUint64(offset)
		req.AppendBytes(buf)
		req.IncrementOpCount()
		applySafety(req, c.sem)

		reply, err := c.roundTrip(ctx, serverIndex, req)
		if err != nil {
			return err
		}
		n, err = reply.ReadUint64()
		if err != nil {
			return errs.Protocol(err, "object: write reply")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if c.sem.Persistency == semantics.PersistencyImmediate {
		if err := c.Sync(ctx, serverIndex, namespace, path); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Read reads length bytes at offset from namespace/path on serverIndex into
// buf and returns bytes_read.
func (c *ObjectClient) Read(ctx context.Context, serverIndex int, namespace, path string, buf []byte, length, offset uint64) (uint64, error) {
	var n uint64
	err := c.runSingle(ctx, serverIndex, namespace, false, func(ctx context.Context) error {
		req := message.New(message.OpObjectRead)
		req.Header.ID = c.newID()
		req.AppendString(namespace)
		req.AppendString(path)
		req.AppendUint64(length)
		req.AppendUint64(offset)
		req.IncrementOpCount()
		applySafety(req, c.sem)

		reply, err := c.roundTrip(ctx, serverIndex, req)
		if err != nil {
			return err
		}
		n, err = reply.ReadUint64()
		if err != nil {
			return errs.Protocol(err, "object: read reply")
		}
		data, err := reply.ReadBytes()
		if err != nil {
			return errs.Protocol(err, "object: read reply data")
		}
		copy(buf, data)
		return nil
	})
	return n, err
}

// writeStripe is one distributed-write operation's payload: the bytes and
// offset local to its server. namespace is shared by every stripe in a
// DistributedWrite call, so the message carries it once; path is written
// again for every operation.
type writeStripe struct {
	path   string
	buf    []byte
	offset uint64
}

// readStripe is one distributed-read operation's payload.
type readStripe struct {
	path   string
	buf    []byte
	length uint64
	offset uint64
}

// groupStripesByServer buckets stripes by ServerIndex, preserving the order
// in which each server index was first seen, so that every stripe destined
// for one server coalesces into a single Operation group (and therefore a
// single wire message with OpCount equal to the group size).
func groupStripesByServer(stripes []distribution.Stripe) [][]distribution.Stripe {
	var order []int
	byServer := make(map[int][]distribution.Stripe)
	for _, s := range stripes {
		if _, ok := byServer[s.ServerIndex]; !ok {
			order = append(order, s.ServerIndex)
		}
		byServer[s.ServerIndex] = append(byServer[s.ServerIndex], s)
	}
	groups := make([][]distribution.Stripe, len(order))
	for i, idx := range order {
		groups[i] = byServer[idx]
	}
	return groups
}

// DistributedWrite splits buf across servers per d. Stripes bound for the
// same server are coalesced into a single batch.Operation group and sent as
// one multi-operation message (OpCount == group size); distinct server
// groups run concurrently via the worker pool unless sem.Ordering is
// strict, in which case every stripe runs as its own one-operation batch in
// emitted order.
func (c *ObjectClient) DistributedWrite(ctx context.Context, d distribution.Distribution, sem *semantics.Semantics, namespace, path string, buf []byte, offset uint64) (uint64, error) {
	if sem == nil {
		sem = c.sem
	}
	if err := d.Reset(uint64(len(buf)), offset); err != nil {
		return 0, err
	}
	var stripes []distribution.Stripe
	for {
		s, ok := d.Next()
		if !ok {
			break
		}
		stripes = append(stripes, s)
	}

	var total atomic.Uint64

	writeGroup := func(ctx context.Context, group []distribution.Stripe) error {
		if len(group) == 0 {
			return nil
		}
		serverIndex := group[0].ServerIndex

		exec := func(ctx context.Context, ops []*batch.Operation, sem *semantics.Semantics) error {
			req := message.New(message.OpObjectWrite)
			req.Header.ID = c.newID()
			req.AppendString(namespace)
			for _, op := range ops {
				ws := op.Data.(writeStripe)
				req.AppendString(ws.path)
				req.AppendUint64(uint64(len(ws.buf)))
				req.AppendUint64(ws.offset)
				req.AppendBytes(ws.buf)
				req.IncrementOpCount()
			}
			applySafety(req, sem)

			reply, err := c.roundTrip(ctx, serverIndex, req)
			if err != nil {
				return err
			}
			for range ops {
				n, err := reply.ReadUint64()
				if err != nil {
					return errs.Protocol(err, "object: distributed write reply")
				}
				total.Add(n)
			}
			return nil
		}

		b := batch.New(namespace, sem)
		for _, s := range group {
			localBuf := buf[s.LocalOffset-offset : s.LocalOffset-offset+s.LocalLength]
			b.Add(&batch.Operation{
				Key:       c.opKey(s.ServerIndex),
				Backend:   backendKindObject,
				Cacheable: true,
				Data:      writeStripe{path: path, buf: localBuf, offset: s.LocalOffset},
				Exec:      exec,
			})
		}
		return b.Execute(ctx)
	}

	if sem.Ordering == semantics.OrderingStrict {
		for _, s := range stripes {
			if err := writeGroup(ctx, []distribution.Stripe{s}); err != nil {
				return total.Load(), err
			}
		}
		return total.Load(), nil
	}

	groups := groupStripesByServer(stripes)
	run := func(ctx context.Context, i int) error {
		return writeGroup(ctx, groups[i])
	}
	err := workerpool.RunParallel(ctx, len(groups), run)
	return total.Load(), err
}

// DistributedRead splits the requested range across servers per d, grouping
// and dispatching exactly like DistributedWrite.
func (c *ObjectClient) DistributedRead(ctx context.Context, d distribution.Distribution, sem *semantics.Semantics, namespace, path string, buf []byte, length, offset uint64) (uint64, error) {
	if sem == nil {
		sem = c.sem
	}
	if err := d.Reset(length, offset); err != nil {
		return 0, err
	}
	var stripes []distribution.Stripe
	for {
		s, ok := d.Next()
		if !ok {
			break
		}
		stripes = append(stripes, s)
	}

	var total atomic.Uint64

	readGroup := func(ctx context.Context, group []distribution.Stripe) error {
		if len(group) == 0 {
			return nil
		}
		serverIndex := group[0].ServerIndex

		exec := func(ctx context.Context, ops []*batch.Operation, sem *semantics.Semantics) error {
			req := message.New(message.OpObjectRead)
			req.Header.ID = c.newID()
			req.AppendString(namespace)
			for _, op := range ops {
				rs := op.Data.(readStripe)
				req.AppendString(rs.path)
				req.AppendUint64(rs.length)
				req.AppendUint64(rs.offset)
				req.IncrementOpCount()
			}
			applySafety(req, sem)

			reply, err := c.roundTrip(ctx, serverIndex, req)
			if err != nil {
				return err
			}
			for _, op := range ops {
				rs := op.Data.(readStripe)
				n, err := reply.ReadUint64()
				if err != nil {
					return errs.Protocol(err, "object: distributed read reply")
				}
				data, err := reply.ReadBytes()
				if err != nil {
					return errs.Protocol(err, "object: distributed read reply data")
				}
				copy(rs.buf, data)
				total.Add(n)
			}
			return nil
		}

		b := batch.New(namespace, sem)
		for _, s := range group {
			localBuf := buf[s.LocalOffset-offset : s.LocalOffset-offset+s.LocalLength]
			b.Add(&batch.Operation{
				Key:       c.opKey(s.ServerIndex),
				Backend:   backendKindObject,
				Cacheable: false,
				Data:      readStripe{path: path, buf: localBuf, length: s.LocalLength, offset: s.LocalOffset},
				Exec:      exec,
			})
		}
		return b.Execute(ctx)
	}

	if sem.Ordering == semantics.OrderingStrict {
		for _, s := range stripes {
			if err := readGroup(ctx, []distribution.Stripe{s}); err != nil {
				return total.Load(), err
			}
		}
		return total.Load(), nil
	}

	groups := groupStripesByServer(stripes)
	run := func(ctx context.Context, i int) error {
		return readGroup(ctx, groups[i])
	}
	err := workerpool.RunParallel(ctx, len(groups), run)
	return total.Load(), err
}

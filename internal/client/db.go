package client

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dreamware/julea/internal/batch"
	"github.com/dreamware/julea/internal/db"
	"github.com/dreamware/julea/internal/errs"
	"github.com/dreamware/julea/internal/message"
	"github.com/dreamware/julea/internal/pool"
	"github.com/dreamware/julea/internal/semantics"
)

// backendKindDB identifies db operations to the batch engine's mixed-backend
// atomicity check.
const backendKindDB = "db"

// DBClient is the client-facing structured database API: schema create and
// insert/update/delete/query against one server index, carrying
// db.Document payloads over the wire. It offers no schema get or schema
// delete call. Every call runs through a batch.Batch of one Operation,
// applying sem's safety flags and atomicity behaviors; no cache hook is
// set, so an eventual-consistency call still executes immediately.
type DBClient struct {
	pool   *pool.Pool
	nextID atomic.Uint32
	sem    *semantics.Semantics
}

// NewDBClient returns a DBClient dispatching over p, governed by sem. A nil
// sem falls back to semantics.TemplateDefault.
func NewDBClient(p *pool.Pool, sem *semantics.Semantics) *DBClient {
	if sem == nil {
		sem = semantics.New(semantics.TemplateDefault)
	}
	return &DBClient{pool: p, sem: sem.Ref()}
}

func (c *DBClient) newID() uint32 { return c.nextID.Add(1) }

func (c *DBClient) opKey(serverIndex int) string {
	return fmt.Sprintf("%s:%d", backendKindDB, serverIndex)
}

func (c *DBClient) roundTrip(ctx context.Context, serverIndex int, req *message.Message) (*message.Message, error) {
	ep, err := c.pool.Pop(ctx, pool.BackendDB, serverIndex)
	if err != nil {
		return nil, errs.Transport(err, "db: pop connection")
	}
	conn := Conn(ep)

	if err := message.Send(conn, req); err != nil {
		c.pool.Discard(pool.BackendDB, serverIndex, ep)
		return nil, errs.Transport(err, "db: send")
	}
	reply, err := message.Receive(conn)
	if err != nil {
		c.pool.Discard(pool.BackendDB, serverIndex, ep)
		return nil, errs.Transport(err, "db: receive")
	}
	if reply.Header.ID != req.Header.ID {
		c.pool.Discard(pool.BackendDB, serverIndex, ep)
		return nil, errs.Protocol(nil, "db: reply id %d does not match request id %d", reply.Header.ID, req.Header.ID)
	}
	c.pool.Push(pool.BackendDB, serverIndex, ep)
	return reply, nil
}

func (c *DBClient) runSingle(ctx context.Context, serverIndex int, namespace string, cacheable bool, fn func(ctx context.Context) error) error {
	b := batch.New(namespace, c.sem)
	b.Add(&batch.Operation{
		Key:       c.opKey(serverIndex),
		Backend:   backendKindDB,
		Cacheable: cacheable,
		Exec: func(ctx context.Context, group []*batch.Operation, sem *semantics.Semantics) error {
			return fn(ctx)
		},
	})
	return b.Execute(ctx)
}

func appendDocument(m *message.Message, doc *db.Document) {
	m.AppendBytes(db.EncodeDocument(doc))
}

func readDocumentReply(m *message.Message) (*db.Document, error) {
	b, err := m.ReadBytes()
	if err != nil {
		return nil, errs.Protocol(err, "db: reply document")
	}
	doc, err := db.DecodeDocument(b)
	if err != nil {
		return nil, errs.Protocol(err, "db: decode reply document")
	}
	return doc, nil
}

// SchemaCreate registers schema's definition on serverIndex and, on
// success, freezes schema so further AddField/AddIndex calls fail.
func (c *DBClient) SchemaCreate(ctx context.Context, serverIndex int, schema *db.Schema) error {
	err := c.runSingle(ctx, serverIndex, schema.Namespace, true, func(ctx context.Context) error {
		req := message.New(message.OpDBSchemaCreate)
		req.Header.ID = c.newID()
		appendDocument(req, schema.ToDocument())
		req.IncrementOpCount()
		applySafety(req, c.sem)
		_, err := c.roundTrip(ctx, serverIndex, req)
		return err
	})
	if err == nil {
		schema.Freeze()
	}
	return err
}

// Insert stores entry's values against its schema's table on serverIndex,
// returning the document the backend reports for the new row (the memory
// backend reports only its generated "id").
func (c *DBClient) Insert(ctx context.Context, serverIndex int, entry *db.Entry) (*db.Document, error) {
	var row *db.Document
	err := c.runSingle(ctx, serverIndex, entry.Schema.Namespace, true, func(ctx context.Context) error {
		req := message.New(message.OpDBInsert)
		req.Header.ID = c.newID()
		appendDocument(req, entry.Schema.ToDocument())
		appendDocument(req, entry.ToDocument())
		req.IncrementOpCount()
		applySafety(req, c.sem)

		reply, err := c.roundTrip(ctx, serverIndex, req)
		if err != nil {
			return err
		}
		row, err = readDocumentReply(reply)
		return err
	})
	return row, err
}

// Update rewrites the fields named in entry for every row matched by sel on
// serverIndex.
func (c *DBClient) Update(ctx context.Context, serverIndex int, schema *db.Schema, sel *db.Selector, entry *db.Entry) error {
	return c.runSingle(ctx, serverIndex, schema.Namespace, true, func(ctx context.Context) error {
		req := message.New(message.OpDBUpdate)
		req.Header.ID = c.newID()
		appendDocument(req, schema.ToDocument())
		appendDocument(req, sel.Finalize())
		appendDocument(req, entry.ToDocument())
		req.IncrementOpCount()
		applySafety(req, c.sem)
		_, err := c.roundTrip(ctx, serverIndex, req)
		return err
	})
}

// Delete removes every row matched by sel on serverIndex.
func (c *DBClient) Delete(ctx context.Context, serverIndex int, schema *db.Schema, sel *db.Selector) error {
	return c.runSingle(ctx, serverIndex, schema.Namespace, true, func(ctx context.Context) error {
		req := message.New(message.OpDBDelete)
		req.Header.ID = c.newID()
		appendDocument(req, schema.ToDocument())
		appendDocument(req, sel.Finalize())
		req.IncrementOpCount()
		applySafety(req, c.sem)
		_, err := c.roundTrip(ctx, serverIndex, req)
		return err
	})
}

// Query returns every row matched by sel, in the order the server reports
// them.
func (c *DBClient) Query(ctx context.Context, serverIndex int, schema *db.Schema, sel *db.Selector) ([]*db.Document, error) {
	var rows []*db.Document
	err := c.runSingle(ctx, serverIndex, schema.Namespace, false, func(ctx context.Context) error {
		req := message.New(message.OpDBQuery)
		req.Header.ID = c.newID()
		appendDocument(req, schema.ToDocument())
		appendDocument(req, sel.Finalize())
		req.IncrementOpCount()
		applySafety(req, c.sem)

		reply, err := c.roundTrip(ctx, serverIndex, req)
		if err != nil {
			return err
		}
		count, err := reply.ReadUint32()
		if err != nil {
			return errs.Protocol(err, "db: query reply count")
		}
		rows = make([]*db.Document, 0, count)
		for i := uint32(0); i < count; i++ {
			row, err := readDocumentReply(reply)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	return rows, err
}

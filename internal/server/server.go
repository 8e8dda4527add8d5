// Package server implements the daemon side of the wire protocol: it reads
// framed messages off an accepted connection, dispatches each by op-type to
// the locally configured backend, and writes back a reply built the same
// way the client expects to parse it.
package server

import (
	"context"
	"errors"
	"log"
	"net"

	"github.com/dreamware/julea/internal/backend"
	"github.com/dreamware/julea/internal/db"
	"github.com/dreamware/julea/internal/errs"
	"github.com/dreamware/julea/internal/message"
	"github.com/dreamware/julea/internal/semantics"
	"github.com/dreamware/julea/internal/trace"
)

// semanticsFromFlags reconstructs the safety aspect a client encoded into a
// message's header flags. The wire protocol only ever mirrors the safety
// bits (see message.SafetyFlagsFor), so every other aspect falls back to
// TemplateDefault; BatchStart only needs Safety to decide its own
// acknowledgment behavior.
func semanticsFromFlags(flags message.Flag) *semantics.Semantics {
	sem := semantics.New(semantics.TemplateDefault)
	switch {
	case flags&message.FlagSafetyStorage != 0:
		_ = sem.WithSafety(semantics.SafetyStorage)
	case flags&message.FlagSafetyNetwork != 0:
		_ = sem.WithSafety(semantics.SafetyNetwork)
	default:
		_ = sem.WithSafety(semantics.SafetyNone)
	}
	return sem
}

// Server serves exactly one backend capability (object, kv, or db) over
// TCP, matching JULEA's one-daemon-per-data-model process topology.
type Server struct {
	Object backend.Object
	KV     backend.KV
	DB     backend.DB
	Stats  *trace.Statistics

	listener net.Listener
}

// Listen binds addr; connections are accepted only once Serve runs.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, valid after a successful Listen.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts connections until ctx is cancelled or the listener is
// closed.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	for {
		req, err := message.Receive(conn)
		if err != nil {
			return
		}
		span := trace.Enter("server.dispatch", "op=%d", req.Header.OpType)
		reply, err := s.dispatch(ctx, req)
		span.Leave()
		if err != nil {
			log.Printf("server: dispatch op %d: %v", req.Header.OpType, err)
			reply = message.NewReply(req)
		}
		if err := message.Send(conn, reply); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req *message.Message) (*message.Message, error) {
	switch {
	case req.Header.OpType >= message.OpObjectCreate && req.Header.OpType <= message.OpObjectGetByPrefix:
		return dispatchObject(ctx, s.Object, s.Stats, req)
	case req.Header.OpType >= message.OpKVPut && req.Header.OpType <= message.OpKVGetByPrefix:
		return dispatchKV(ctx, s.KV, req)
	case req.Header.OpType >= message.OpDBSchemaCreate && req.Header.OpType <= message.OpDBQuery:
		return dispatchDB(ctx, s.DB, req)
	case req.Header.OpType == message.OpStatistics:
		reply := message.NewReply(req)
		var vals [8]uint64
		if s.Stats != nil {
			vals = s.Stats.Values()
		}
		for _, v := range vals {
			reply.AppendUint64(v)
		}
		reply.IncrementOpCount()
		return reply, nil
	default:
		return nil, errs.Protocol(nil, "server: unknown op type %d", req.Header.OpType)
	}
}

func dispatchObject(ctx context.Context, be backend.Object, stats *trace.Statistics, req *message.Message) (*message.Message, error) {
	if be == nil {
		return nil, errs.NotSupported("server: no object backend configured")
	}
	namespace, err := req.ReadString()
	if err != nil {
		return nil, errs.Protocol(err, "object: namespace")
	}

	h, err := be.BatchStart(ctx, namespace, semanticsFromFlags(req.Header.Flags))
	if err != nil {
		return nil, err
	}
	defer be.BatchExecute(ctx, h)

	reply := message.NewReply(req)

	if req.Header.OpType == message.OpObjectGetAll || req.Header.OpType == message.OpObjectGetByPrefix {
		var it backend.ObjectIterator
		if req.Header.OpType == message.OpObjectGetByPrefix {
			prefix, rerr := req.ReadString()
			if rerr != nil {
				return nil, errs.Protocol(rerr, "object: prefix")
			}
			it, err = be.GetByPrefix(ctx, namespace, prefix)
		} else {
			it, err = be.GetAll(ctx, namespace)
		}
		if err != nil {
			return nil, err
		}
		defer it.Close()
		var names []string
		for {
			name, err := it.Next(ctx)
			if errors.Is(err, errs.IteratorEnd) {
				break
			}
			if err != nil {
				return nil, err
			}
			names = append(names, name)
		}
		reply.AppendUint32(uint32(len(names)))
		for _, n := range names {
			reply.AppendString(n)
		}
		reply.IncrementOpCount()
		return reply, nil
	}

	// Every other object op-type carries OpCount repetitions of its own
	// field set (path plus op-specific arguments), one after another, so a
	// single message can batch several operations against the same backend
	// in one round trip.
	for i := uint32(0); i < req.Header.OpCount; i++ {
		path, err := req.ReadString()
		if err != nil {
			return nil, errs.Protocol(err, "object: path")
		}

		switch req.Header.OpType {
		case message.OpObjectCreate:
			if _, err := be.Create(ctx, h, namespace, path); err != nil {
				return nil, err
			}
			if stats != nil {
				stats.Add(trace.FilesCreated, 1)
			}
		case message.OpObjectDelete:
			oh, err := be.Open(ctx, h, namespace, path)
			if err != nil {
				return nil, err
			}
			if err := be.Delete(ctx, h, oh); err != nil {
				return nil, err
			}
			if stats != nil {
				stats.Add(trace.FilesDeleted, 1)
			}
		case message.OpObjectStatus:
			oh, err := be.Open(ctx, h, namespace, path)
			if err != nil {
				return nil, err
			}
			mtime, size, err := be.Status(ctx, oh)
			if err != nil {
				return nil, err
			}
			reply.AppendInt64(mtime)
			reply.AppendUint64(size)
			if stats != nil {
				stats.Add(trace.FilesStated, 1)
			}
		case message.OpObjectSync:
			oh, err := be.Open(ctx, h, namespace, path)
			if err != nil {
				return nil, err
			}
			if err := be.Sync(ctx, oh); err != nil {
				return nil, err
			}
			if stats != nil {
				stats.Add(trace.SyncCount, 1)
			}
		case message.OpObjectWrite:
			length, err := req.ReadUint64()
			if err != nil {
				return nil, errs.Protocol(err, "object: write length")
			}
			offset, err := req.ReadUint64()
			if err != nil {
				return nil, errs.Protocol(err, "object: write offset")
			}
			buf, err := req.ReadBytes()
			if err != nil {
				return nil, errs.Protocol(err, "object: write data")
			}
			_ = length
			oh, err := be.Open(ctx, h, namespace, path)
			if err != nil {
				oh, err = be.Create(ctx, h, namespace, path)
				if err != nil {
					return nil, err
				}
			}
			n, err := be.Write(ctx, oh, buf, offset)
			if err != nil {
				return nil, err
			}
			reply.AppendUint64(n)
			if stats != nil {
				stats.Add(trace.BytesWritten, n)
				stats.Add(trace.BytesReceived, uint64(len(buf)))
			}
		case message.OpObjectRead:
			length, err := req.ReadUint64()
			if err != nil {
				return nil, errs.Protocol(err, "object: read length")
			}
			offset, err := req.ReadUint64()
			if err != nil {
				return nil, errs.Protocol(err, "object: read offset")
			}
			oh, err := be.Open(ctx, h, namespace, path)
			if err != nil {
				return nil, err
			}
			buf := make([]byte, length)
			n, err := be.Read(ctx, oh, buf, length, offset)
			if err != nil && !errors.Is(err, errs.IteratorEnd) {
				return nil, err
			}
			reply.AppendUint64(n)
			reply.AppendBytes(buf[:n])
			if stats != nil {
				stats.Add(trace.BytesRead, n)
				stats.Add(trace.BytesSent, n)
			}
		default:
			return nil, errs.Protocol(nil, "object: unsupported op %d", req.Header.OpType)
		}
		reply.IncrementOpCount()
	}
	return reply, nil
}

func dispatchKV(ctx context.Context, be backend.KV, req *message.Message) (*message.Message, error) {
	if be == nil {
		return nil, errs.NotSupported("server: no kv backend configured")
	}
	namespace, err := req.ReadString()
	if err != nil {
		return nil, errs.Protocol(err, "kv: namespace")
	}

	h, err := be.BatchStart(ctx, namespace, semanticsFromFlags(req.Header.Flags))
	if err != nil {
		return nil, err
	}
	defer be.BatchExecute(ctx, h)

	reply := message.NewReply(req)

	if req.Header.OpType == message.OpKVGetAll || req.Header.OpType == message.OpKVGetByPrefix {
		var it backend.KVIterator
		if req.Header.OpType == message.OpKVGetByPrefix {
			prefix, rerr := req.ReadString()
			if rerr != nil {
				return nil, errs.Protocol(rerr, "kv: prefix")
			}
			it, err = be.GetByPrefix(ctx, namespace, prefix)
		} else {
			it, err = be.GetAll(ctx, namespace)
		}
		if err != nil {
			return nil, err
		}
		defer it.Close()
		type pair struct {
			key   string
			value []byte
		}
		var pairs []pair
		for {
			k, v, err := it.Next(ctx)
			if errors.Is(err, errs.IteratorEnd) {
				break
			}
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, pair{k, v})
		}
		reply.AppendUint32(uint32(len(pairs)))
		for _, p := range pairs {
			reply.AppendString(p.key)
			reply.AppendBytes(p.value)
		}
		reply.IncrementOpCount()
		return reply, nil
	}

	for i := uint32(0); i < req.Header.OpCount; i++ {
		switch req.Header.OpType {
		case message.OpKVPut:
			key, err := req.ReadString()
			if err != nil {
				return nil, errs.Protocol(err, "kv: key")
			}
			value, err := req.ReadBytes()
			if err != nil {
				return nil, errs.Protocol(err, "kv: value")
			}
			if err := be.Put(ctx, h, namespace, key, value); err != nil {
				return nil, err
			}
		case message.OpKVDelete:
			key, err := req.ReadString()
			if err != nil {
				return nil, errs.Protocol(err, "kv: key")
			}
			if err := be.Delete(ctx, h, namespace, key); err != nil {
				return nil, err
			}
		case message.OpKVGet:
			key, err := req.ReadString()
			if err != nil {
				return nil, errs.Protocol(err, "kv: key")
			}
			value, err := be.Get(ctx, namespace, key)
			if errs.Is(err, errs.KindNotFound) {
				reply.AppendUint8(0)
				reply.IncrementOpCount()
				continue
			}
			if err != nil {
				return nil, err
			}
			reply.AppendUint8(1)
			reply.AppendBytes(value)
		default:
			return nil, errs.Protocol(nil, "kv: unsupported op %d", req.Header.OpType)
		}
		reply.IncrementOpCount()
	}
	return reply, nil
}

func dispatchDB(ctx context.Context, be backend.DB, req *message.Message) (*message.Message, error) {
	if be == nil {
		return nil, errs.NotSupported("server: no db backend configured")
	}

	// The schema document travels first and names the table every operation
	// in this message shares; a batch groups operations by namespace (see
	// internal/client/db.go), so one BatchStart covers the whole message.
	schemaDoc, err := readDoc(req)
	if err != nil {
		return nil, err
	}
	name, err := tableName(schemaDoc)
	if err != nil {
		return nil, err
	}

	namespace := ""
	if ns, ok := schemaDoc.Get("namespace"); ok {
		namespace = ns.Str
	}
	h, err := be.BatchStart(ctx, namespace, semanticsFromFlags(req.Header.Flags))
	if err != nil {
		return nil, err
	}
	defer be.BatchExecute(ctx, h)

	reply := message.NewReply(req)

	if req.Header.OpType == message.OpDBQuery {
		selDoc, err := readDoc(req)
		if err != nil {
			return nil, err
		}
		it, err := be.Query(ctx, name, selDoc)
		if err != nil {
			return nil, err
		}
		defer it.Close()
		var rows []*db.Document
		for {
			row, err := it.Next(ctx)
			if errors.Is(err, errs.IteratorEnd) {
				break
			}
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		reply.AppendUint32(uint32(len(rows)))
		for _, row := range rows {
			reply.AppendBytes(db.EncodeDocument(row))
		}
		reply.IncrementOpCount()
		return reply, nil
	}

	for i := uint32(0); i < req.Header.OpCount; i++ {
		switch req.Header.OpType {
		case message.OpDBSchemaCreate:
			if err := be.SchemaCreate(ctx, h, name, schemaDoc); err != nil {
				return nil, err
			}
		case message.OpDBInsert:
			entryDoc, err := readDoc(req)
			if err != nil {
				return nil, err
			}
			rowDoc, err := be.Insert(ctx, h, name, entryDoc)
			if err != nil {
				return nil, err
			}
			reply.AppendBytes(db.EncodeDocument(rowDoc))
		case message.OpDBUpdate:
			selDoc, err := readDoc(req)
			if err != nil {
				return nil, err
			}
			entryDoc, err := readDoc(req)
			if err != nil {
				return nil, err
			}
			if err := be.Update(ctx, h, name, selDoc, entryDoc); err != nil {
				return nil, err
			}
		case message.OpDBDelete:
			selDoc, err := readDoc(req)
			if err != nil {
				return nil, err
			}
			if err := be.Delete(ctx, h, name, selDoc); err != nil {
				return nil, err
			}
		default:
			return nil, errs.Protocol(nil, "db: unsupported op %d", req.Header.OpType)
		}
		reply.IncrementOpCount()
	}
	return reply, nil
}

func readDoc(m *message.Message) (*db.Document, error) {
	b, err := m.ReadBytes()
	if err != nil {
		return nil, errs.Protocol(err, "db: document")
	}
	doc, err := db.DecodeDocument(b)
	if err != nil {
		return nil, errs.Protocol(err, "db: decode document")
	}
	return doc, nil
}

func tableName(schemaDoc *db.Document) (string, error) {
	ns, ok := schemaDoc.Get("namespace")
	if !ok {
		return "", errs.InvalidArgument("db: schema document missing namespace")
	}
	name, ok := schemaDoc.Get("name")
	if !ok {
		return "", errs.InvalidArgument("db: schema document missing name")
	}
	return ns.Str + "/" + name.Str, nil
}

// Shutdown closes the listener, causing Serve to return.
func (s *Server) Shutdown() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

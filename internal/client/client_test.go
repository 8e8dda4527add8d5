package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kvmemory "github.com/dreamware/julea/backend/kv/memory"
	objectmemory "github.com/dreamware/julea/backend/object/memory"
	"github.com/dreamware/julea/internal/distribution"
	"github.com/dreamware/julea/internal/pool"
	"github.com/dreamware/julea/internal/semantics"
	"github.com/dreamware/julea/internal/server"
)

func startObjectServer(t *testing.T) (string, func()) {
	t.Helper()
	srv := &server.Server{Object: objectmemory.New()}
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { srv.Serve(ctx); close(done) }()
	addr := srv.Addr().String()
	return addr, func() { cancel(); srv.Shutdown(); <-done }
}

func startKVServer(t *testing.T) (string, func()) {
	t.Helper()
	srv := &server.Server{KV: kvmemory.New()}
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { srv.Serve(ctx); close(done) }()
	addr := srv.Addr().String()
	return addr, func() { cancel(); srv.Shutdown(); <-done }
}

func TestObjectClientCreateWriteReadDelete(t *testing.T) {
	addr, stop := startObjectServer(t)
	defer stop()

	p, err := pool.New(pool.Config{ObjectServers: []string{addr}, MaxConnections: 2}, &TCPFactory{DialTimeout: time.Second})
	require.NoError(t, err)
	defer p.Shutdown()

	oc := NewObjectClient(p, nil, nil)
	ctx := context.Background()

	require.NoError(t, oc.Create(ctx, 0, "ns", "obj"))
	n, err := oc.Write(ctx, 0, "ns", "obj", []byte("payload"), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)

	buf := make([]byte, 7)
	n, err = oc.Read(ctx, 0, "ns", "obj", buf, 7, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	assert.Equal(t, "payload", string(buf))

	_, size, err := oc.Status(ctx, 0, "ns", "obj")
	require.NoError(t, err)
	assert.EqualValues(t, 7, size)

	require.NoError(t, oc.Delete(ctx, 0, "ns", "obj"))
}

func TestObjectClientDistributedWriteAndRead(t *testing.T) {
	addr, stop := startObjectServer(t)
	defer stop()

	p, err := pool.New(pool.Config{ObjectServers: []string{addr}, MaxConnections: 4}, &TCPFactory{DialTimeout: time.Second})
	require.NoError(t, err)
	defer p.Shutdown()

	oc := NewObjectClient(p, nil, nil)
	ctx := context.Background()
	require.NoError(t, oc.Create(ctx, 0, "ns", "striped"))

	d := distribution.NewSingleServer(0)
	sem := semantics.New(semantics.TemplateDefault)
	data := []byte("distributed payload contents")

	written, err := oc.DistributedWrite(ctx, d, sem, "ns", "striped", data, 0)
	require.NoError(t, err)
	assert.EqualValues(t, len(data), written)

	buf := make([]byte, len(data))
	read, err := oc.DistributedRead(ctx, d, sem, "ns", "striped", buf, uint64(len(data)), 0)
	require.NoError(t, err)
	assert.EqualValues(t, len(data), read)
	assert.Equal(t, data, buf)
}

func TestKVClientPutGetIterate(t *testing.T) {
	addr, stop := startKVServer(t)
	defer stop()

	p, err := pool.New(pool.Config{KVServers: []string{addr}, MaxConnections: 2}, &TCPFactory{DialTimeout: time.Second})
	require.NoError(t, err)
	defer p.Shutdown()

	kc := NewKVClient(p, nil)
	ctx := context.Background()

	require.NoError(t, kc.Put(ctx, 0, "ns", "a", []byte("1")))
	require.NoError(t, kc.Put(ctx, 0, "ns", "b", []byte("2")))

	v, err := kc.Get(ctx, 0, "ns", "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	_, err = kc.Get(ctx, 0, "ns", "missing")
	assert.Error(t, err)

	entries, err := kc.GetAll(ctx, 0, "ns")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kvmemory "github.com/dreamware/julea/backend/kv/memory"
	objectmemory "github.com/dreamware/julea/backend/object/memory"
	"github.com/dreamware/julea/internal/message"
)

func startTestServer(t *testing.T, srv *Server) (string, func()) {
	t.Helper()
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx)
		close(done)
	}()
	addr := srv.Addr().String()
	return addr, func() {
		cancel()
		srv.Shutdown()
		<-done
	}
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	return conn
}

func TestScenarioS1ObjectLifecycleOverWire(t *testing.T) {
	srv := &Server{Object: objectmemory.New()}
	addr, stop := startTestServer(t, srv)
	defer stop()

	conn := dial(t, addr)
	defer conn.Close()

	create := message.New(message.OpObjectCreate)
	create.Header.ID = 1
	create.AppendString("ns")
	create.AppendString("obj-1")
	create.IncrementOpCount()
	require.NoError(t, message.Send(conn, create))
	reply, err := message.Receive(conn)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), reply.Header.ID)
	assert.NotZero(t, reply.Header.Flags&message.FlagReply)

	write := message.New(message.OpObjectWrite)
	write.Header.ID = 2
	write.AppendString("ns")
	write.AppendString("obj-1")
	payload := []byte("hello world")
	write.AppendUint64(uint64(len(payload)))
	write.AppendUint64(0)
	write.AppendBytes(payload)
	write.IncrementOpCount()
	require.NoError(t, message.Send(conn, write))
	reply, err = message.Receive(conn)
	require.NoError(t, err)
	n, err := reply.ReadUint64()
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), n)

	read := message.New(message.OpObjectRead)
	read.Header.ID = 3
	read.AppendString("ns")
	read.AppendString("obj-1")
	read.AppendUint64(uint64(len(payload)))
	read.AppendUint64(0)
	read.IncrementOpCount()
	require.NoError(t, message.Send(conn, read))
	reply, err = message.Receive(conn)
	require.NoError(t, err)
	n, err = reply.ReadUint64()
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), n)
	data, err := reply.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	status := message.New(message.OpObjectStatus)
	status.Header.ID = 4
	status.AppendString("ns")
	status.AppendString("obj-1")
	status.IncrementOpCount()
	require.NoError(t, message.Send(conn, status))
	reply, err = message.Receive(conn)
	require.NoError(t, err)
	_, err = reply.ReadInt64()
	require.NoError(t, err)
	size, err := reply.ReadUint64()
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), size)

	del := message.New(message.OpObjectDelete)
	del.Header.ID = 5
	del.AppendString("ns")
	del.AppendString("obj-1")
	del.IncrementOpCount()
	require.NoError(t, message.Send(conn, del))
	reply, err = message.Receive(conn)
	require.NoError(t, err)
	assert.NotZero(t, reply.Header.Flags&message.FlagReply)

	status2 := message.New(message.OpObjectStatus)
	status2.Header.ID = 6
	status2.AppendString("ns")
	status2.AppendString("obj-1")
	status2.IncrementOpCount()
	require.NoError(t, message.Send(conn, status2))
	reply, err = message.Receive(conn)
	require.NoError(t, err)
	_, err = reply.ReadInt64()
	assert.Error(t, err, "status on a deleted object should come back as an error reply with no payload")
}

func TestKVPutGetOverWire(t *testing.T) {
	srv := &Server{KV: kvmemory.New()}
	addr, stop := startTestServer(t, srv)
	defer stop()

	conn := dial(t, addr)
	defer conn.Close()

	put := message.New(message.OpKVPut)
	put.Header.ID = 1
	put.AppendString("ns")
	put.AppendString("k1")
	put.AppendBytes([]byte("v1"))
	put.IncrementOpCount()
	require.NoError(t, message.Send(conn, put))
	_, err := message.Receive(conn)
	require.NoError(t, err)

	get := message.New(message.OpKVGet)
	get.Header.ID = 2
	get.AppendString("ns")
	get.AppendString("k1")
	get.IncrementOpCount()
	require.NoError(t, message.Send(conn, get))
	reply, err := message.Receive(conn)
	require.NoError(t, err)
	found, err := reply.ReadUint8()
	require.NoError(t, err)
	require.Equal(t, uint8(1), found)
	value, err := reply.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)

	getMissing := message.New(message.OpKVGet)
	getMissing.Header.ID = 3
	getMissing.AppendString("ns")
	getMissing.AppendString("missing")
	getMissing.IncrementOpCount()
	require.NoError(t, message.Send(conn, getMissing))
	reply, err = message.Receive(conn)
	require.NoError(t, err)
	found, err = reply.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0), found)
}

package message

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := New(OpObjectStatus)
	m.Header.ID = 7
	m.AppendString("ns")
	m.AppendString("path")
	m.IncrementOpCount()

	encoded := m.Encode()
	decoded, err := Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, OpObjectStatus, decoded.Header.OpType)
	assert.EqualValues(t, 1, decoded.Header.OpCount)
	assert.EqualValues(t, 7, decoded.Header.ID)

	ns, err := decoded.ReadString()
	require.NoError(t, err)
	path, err := decoded.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "ns", ns)
	assert.Equal(t, "path", path)
}

func TestScenarioS6StatusRoundTrip(t *testing.T) {
	req := New(OpObjectStatus)
	req.Header.ID = 42
	req.AppendString("ns")
	req.AppendString("path")
	req.IncrementOpCount()

	wire := req.Encode()
	decodedReq, err := Decode(wire)
	require.NoError(t, err)
	assert.EqualValues(t, 1, decodedReq.Header.OpCount)

	reply := NewReply(decodedReq)
	assert.Equal(t, decodedReq.Header.ID, reply.Header.ID)
	assert.Equal(t, decodedReq.Header.OpType, reply.Header.OpType)
	assert.True(t, reply.Header.Flags&FlagReply != 0)

	reply.AppendInt64(1_700_000_000_000_000_000)
	reply.AppendUint64(1024)

	replyWire := reply.Encode()
	decodedReply, err := Decode(replyWire)
	require.NoError(t, err)

	mtime, err := decodedReply.ReadInt64()
	require.NoError(t, err)
	size, err := decodedReply.ReadUint64()
	require.NoError(t, err)
	assert.EqualValues(t, 1_700_000_000_000_000_000, mtime)
	assert.EqualValues(t, 1024, size)
}

func TestSendReceive(t *testing.T) {
	m := New(OpKVPut)
	m.AppendString("ns")
	m.AppendString("k1")
	m.AppendBytes([]byte("value"))
	m.IncrementOpCount()

	var buf bytes.Buffer
	require.NoError(t, Send(&buf, m))

	received, err := Receive(&buf)
	require.NoError(t, err)
	ns, err := received.ReadString()
	require.NoError(t, err)
	key, err := received.ReadString()
	require.NoError(t, err)
	value, err := received.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, "ns", ns)
	assert.Equal(t, "k1", key)
	assert.Equal(t, []byte("value"), value)
}

func TestReceiveShortReadIsError(t *testing.T) {
	_, err := Receive(bytes.NewReader([]byte{1, 2, 3}))
	assert.Error(t, err)
}

func TestSafetyFlagsFor(t *testing.T) {
	assert.Equal(t, Flag(0), SafetyFlagsFor(false, false))
	assert.Equal(t, FlagSafetyNetwork, SafetyFlagsFor(false, true))
	assert.Equal(t, FlagSafetyNetwork|FlagSafetyStorage, SafetyFlagsFor(true, false))
}

func TestHeaderSizeIsTwentyBytes(t *testing.T) {
	m := New(OpNone)
	encoded := m.Encode()
	assert.Len(t, encoded, HeaderSize)
}

// Package message implements JULEA's wire framing: a fixed 20-byte header
// followed by a payload of appended typed fields, read back in the same
// FIFO order on the receiving side.
package message

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// OpType identifies the kind of operation(s) carried by a Message.
type OpType uint32

const (
	OpNone OpType = iota
	OpObjectCreate
	OpObjectOpen
	OpObjectDelete
	OpObjectClose
	OpObjectStatus
	OpObjectSync
	OpObjectRead
	OpObjectWrite
	OpObjectGetAll
	OpObjectGetByPrefix
	OpKVPut
	OpKVGet
	OpKVDelete
	OpKVGetAll
	OpKVGetByPrefix
	OpDBSchemaCreate
	OpDBInsert
	OpDBUpdate
	OpDBDelete
	OpDBQuery
	OpStatistics
)

// Flag is a bit in the header's flags field.
type Flag uint32

const (
	FlagReply Flag = 1 << iota
	FlagSafetyNetwork
	FlagSafetyStorage
	FlagCompressed

	FlagModifierMask = FlagReply | FlagSafetyNetwork | FlagSafetyStorage
)

// HeaderSize is the fixed size, in bytes, of every message header.
const HeaderSize = 20

// Header is the fixed leading portion of every Message, in field order.
type Header struct {
	OpType  OpType
	OpCount uint32
	ID      uint32
	Flags   Flag
	Length  uint32
}

// Message is a framed op-type plus an operation count and an append-only
// payload buffer. Builders append fields with the Append* methods; readers
// consume them in the same order with the Read* methods.
type Message struct {
	Header  Header
	payload bytes.Buffer
	reader  *bytes.Reader
}

// New constructs an empty message of the given op-type with no operations
// appended yet. Call IncrementOpCount once per appended operation.
func New(opType OpType) *Message {
	return &Message{Header: Header{OpType: opType}}
}

// IncrementOpCount bumps the header's op-count, called once per logical
// operation appended to the payload.
func (m *Message) IncrementOpCount() { m.Header.OpCount++ }

// SafetyFlagsFor derives the REPLY-mask safety flags that correspond to a
// semantics safety aspect: network implies SAFETY_NETWORK; storage implies
// both SAFETY_NETWORK and SAFETY_STORAGE.
func SafetyFlagsFor(safetyStorage, safetyNetwork bool) Flag {
	var f Flag
	if safetyNetwork || safetyStorage {
		f |= FlagSafetyNetwork
	}
	if safetyStorage {
		f |= FlagSafetyStorage
	}
	return f
}

// AppendUint8 appends a single byte field.
func (m *Message) AppendUint8(v uint8) { m.payload.WriteByte(v) }

// AppendUint32 appends a 4-byte little-endian field.
func (m *Message) AppendUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	m.payload.Write(b[:])
}

// AppendUint64 appends an 8-byte little-endian field.
func (m *Message) AppendUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	m.payload.Write(b[:])
}

// AppendInt64 appends an 8-byte little-endian signed field.
func (m *Message) AppendInt64(v int64) { m.AppendUint64(uint64(v)) }

// AppendBytes appends a u32 length prefix followed by the raw bytes.
func (m *Message) AppendBytes(b []byte) {
	m.AppendUint32(uint32(len(b)))
	m.payload.Write(b)
}

// AppendString appends s followed by a terminating NUL byte, matching the
// wire protocol's C-string fields.
func (m *Message) AppendString(s string) {
	m.payload.WriteString(s)
	m.payload.WriteByte(0)
}

// bufferedPayload returns the accumulated payload bytes; it does not touch
// the header's Length.
func (m *Message) bufferedPayload() []byte {
	return m.payload.Bytes()
}

// reset the read cursor to the start of the payload, used before the first
// Read* call on a freshly decoded message.
func (m *Message) ensureReader() {
	if m.reader == nil {
		m.reader = bytes.NewReader(m.bufferedPayload())
	}
}

// ReadUint8 reads the next single byte field.
func (m *Message) ReadUint8() (uint8, error) {
	m.ensureReader()
	return m.reader.ReadByte()
}

// ReadUint32 reads the next 4-byte little-endian field.
func (m *Message) ReadUint32() (uint32, error) {
	m.ensureReader()
	var b [4]byte
	if _, err := io.ReadFull(m.reader, b[:]); err != nil {
		return 0, fmt.Errorf("message: read uint32: %w", err)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// ReadUint64 reads the next 8-byte little-endian field.
func (m *Message) ReadUint64() (uint64, error) {
	m.ensureReader()
	var b [8]byte
	if _, err := io.ReadFull(m.reader, b[:]); err != nil {
		return 0, fmt.Errorf("message: read uint64: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// ReadInt64 reads the next 8-byte little-endian signed field.
func (m *Message) ReadInt64() (int64, error) {
	v, err := m.ReadUint64()
	return int64(v), err
}

// ReadBytes reads a u32 length prefix followed by that many raw bytes.
func (m *Message) ReadBytes() ([]byte, error) {
	n, err := m.ReadUint32()
	if err != nil {
		return nil, err
	}
	m.ensureReader()
	buf := make([]byte, n)
	if _, err := io.ReadFull(m.reader, buf); err != nil {
		return nil, fmt.Errorf("message: read bytes: %w", err)
	}
	return buf, nil
}

// ReadString reads a NUL-terminated string field.
func (m *Message) ReadString() (string, error) {
	m.ensureReader()
	s, err := m.reader.ReadString(0)
	if err != nil {
		return "", fmt.Errorf("message: read string: %w", err)
	}
	return s[:len(s)-1], nil
}

// NewReply builds a reply message for req: same id and op-type, REPLY flag
// set, empty payload ready for the handler to append its results into.
func NewReply(req *Message) *Message {
	return &Message{
		Header: Header{
			OpType: req.Header.OpType,
			ID:     req.Header.ID,
			Flags:  req.Header.Flags&FlagModifierMask&^FlagReply | FlagReply,
		},
	}
}

// Encode renders the header and payload into a contiguous byte slice ready
// to send on the wire.
func (m *Message) Encode() []byte {
	payload := m.bufferedPayload()
	m.Header.Length = uint32(len(payload))

	out := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], uint32(m.Header.OpType))
	binary.LittleEndian.PutUint32(out[4:8], m.Header.OpCount)
	binary.LittleEndian.PutUint32(out[8:12], m.Header.ID)
	binary.LittleEndian.PutUint32(out[12:16], uint32(m.Header.Flags))
	binary.LittleEndian.PutUint32(out[16:20], m.Header.Length)
	copy(out[HeaderSize:], payload)
	return out
}

// Send writes the encoded message to w in one call.
func Send(w io.Writer, m *Message) error {
	if _, err := w.Write(m.Encode()); err != nil {
		return fmt.Errorf("message: send: %w", err)
	}
	return nil
}

// Receive reads one framed message from r: the 20-byte header, then exactly
// Length more bytes. A short read at either step is an error.
func Receive(r io.Reader) (*Message, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("message: receive header: %w", err)
	}

	h := Header{
		OpType:  OpType(binary.LittleEndian.Uint32(hdr[0:4])),
		OpCount: binary.LittleEndian.Uint32(hdr[4:8]),
		ID:      binary.LittleEndian.Uint32(hdr[8:12]),
		Flags:   Flag(binary.LittleEndian.Uint32(hdr[12:16])),
		Length:  binary.LittleEndian.Uint32(hdr[16:20]),
	}

	payload := make([]byte, h.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("message: receive payload: %w", err)
	}

	m := &Message{Header: h}
	m.payload.Write(payload)
	return m, nil
}

// Decode parses a previously Encode()d byte slice back into a Message,
// without any I/O. Useful for tests and in-process transports.
func Decode(b []byte) (*Message, error) {
	return Receive(bytes.NewReader(b))
}

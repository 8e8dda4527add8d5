package db

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// EncodeDocument renders d into the self-describing binary form exchanged
// between client and backend for schema, entry, selector and row payloads:
// a field count followed by each field's name, kind tag and value bytes, in
// insertion order. Nested documents and arrays recurse.
func EncodeDocument(d *Document) []byte {
	var buf bytes.Buffer
	writeDocument(&buf, d)
	return buf.Bytes()
}

// DecodeDocument parses a byte slice produced by EncodeDocument.
func DecodeDocument(b []byte) (*Document, error) {
	r := bytes.NewReader(b)
	d, err := readDocument(r)
	if err != nil {
		return nil, fmt.Errorf("db: decode document: %w", err)
	}
	return d, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func writeDocument(buf *bytes.Buffer, d *Document) {
	fields := d.Fields()
	writeUint32(buf, uint32(len(fields)))
	for _, f := range fields {
		writeString(buf, f.Name)
		writeValue(buf, f.Value)
	}
}

func writeValue(buf *bytes.Buffer, v Value) {
	buf.WriteByte(byte(v.Kind))
	switch v.Kind {
	case KindInt32:
		writeUint32(buf, uint32(v.I32))
	case KindUint32:
		writeUint32(buf, v.U32)
	case KindInt64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v.I64))
		buf.Write(b[:])
	case KindUint64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v.U64)
		buf.Write(b[:])
	case KindFloat32:
		writeUint32(buf, math.Float32bits(v.F32))
	case KindFloat64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.F64))
		buf.Write(b[:])
	case KindString:
		writeString(buf, v.Str)
	case KindBlob:
		writeUint32(buf, uint32(len(v.Blb)))
		buf.Write(v.Blb)
	case KindID:
		b, _ := v.ID.MarshalBinary()
		buf.Write(b)
	case KindDocument:
		writeDocument(buf, v.Doc)
	case KindArray:
		writeUint32(buf, uint32(len(v.Arr)))
		for _, e := range v.Arr {
			writeValue(buf, e)
		}
	}
}

func readFull(r *bytes.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	total := 0
	for total < n {
		k, err := r.Read(b[total:])
		if k == 0 && err != nil {
			return nil, err
		}
		total += k
	}
	return b, nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	b, err := readFull(r, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	b, err := readFull(r, int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readDocument(r *bytes.Reader) (*Document, error) {
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	d := NewDocument()
	for i := uint32(0); i < count; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readValue(r)
		if err != nil {
			return nil, err
		}
		d.Set(name, v)
	}
	return d, nil
}

func readValue(r *bytes.Reader) (Value, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return Value{}, err
	}
	kind := Kind(kindByte)
	switch kind {
	case KindInt32:
		v, err := readUint32(r)
		return Int32(int32(v)), err
	case KindUint32:
		v, err := readUint32(r)
		return Uint32(v), err
	case KindInt64:
		b, err := readFull(r, 8)
		if err != nil {
			return Value{}, err
		}
		return Int64(int64(binary.LittleEndian.Uint64(b))), nil
	case KindUint64:
		b, err := readFull(r, 8)
		if err != nil {
			return Value{}, err
		}
		return Uint64(binary.LittleEndian.Uint64(b)), nil
	case KindFloat32:
		v, err := readUint32(r)
		return Float32(math.Float32frombits(v)), err
	case KindFloat64:
		b, err := readFull(r, 8)
		if err != nil {
			return Value{}, err
		}
		return Float64(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
	case KindString:
		s, err := readString(r)
		return String(s), err
	case KindBlob:
		n, err := readUint32(r)
		if err != nil {
			return Value{}, err
		}
		b, err := readFull(r, int(n))
		return Blob(b), err
	case KindID:
		b, err := readFull(r, 16)
		if err != nil {
			return Value{}, err
		}
		var id uuid.UUID
		if err := id.UnmarshalBinary(b); err != nil {
			return Value{}, err
		}
		return ID(id), nil
	case KindDocument:
		doc, err := readDocument(r)
		return Nested(doc), err
	case KindArray:
		n, err := readUint32(r)
		if err != nil {
			return Value{}, err
		}
		vals := make([]Value, 0, n)
		for i := uint32(0); i < n; i++ {
			v, err := readValue(r)
			if err != nil {
				return Value{}, err
			}
			vals = append(vals, v)
		}
		return Array(vals), nil
	default:
		return Value{}, fmt.Errorf("db: unknown value kind %d", kind)
	}
}

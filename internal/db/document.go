// Package db implements the structured database component: typed schemas,
// selector trees, entries, iterators, and the self-describing binary
// document format backends exchange for schema/entry/selector/row payloads.
package db

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind enumerates the value types a Document field may hold, each
// representable unambiguously on the wire.
type Kind int

const (
	KindInt32 Kind = iota
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	KindString
	KindBlob
	KindID
	KindDocument
	KindArray
)

// Value is one typed field value. Exactly one of the typed members is
// meaningful, selected by Kind.
type Value struct {
	Kind Kind

	I32 int32
	U32 uint32
	I64 int64
	U64 uint64
	F32 float32
	F64 float64
	Str string
	Blb []byte
	ID  uuid.UUID
	Doc *Document
	Arr []Value
}

func Int32(v int32) Value       { return Value{Kind: KindInt32, I32: v} }
func Uint32(v uint32) Value     { return Value{Kind: KindUint32, U32: v} }
func Int64(v int64) Value       { return Value{Kind: KindInt64, I64: v} }
func Uint64(v uint64) Value     { return Value{Kind: KindUint64, U64: v} }
func Float32(v float32) Value   { return Value{Kind: KindFloat32, F32: v} }
func Float64(v float64) Value   { return Value{Kind: KindFloat64, F64: v} }
func String(v string) Value     { return Value{Kind: KindString, Str: v} }
func Blob(v []byte) Value       { return Value{Kind: KindBlob, Blb: v} }
func ID(v uuid.UUID) Value      { return Value{Kind: KindID, ID: v} }
func Nested(v *Document) Value  { return Value{Kind: KindDocument, Doc: v} }
func Array(v []Value) Value     { return Value{Kind: KindArray, Arr: v} }

// Field is one named, typed entry in a Document, stored in insertion order.
type Field struct {
	Name  string
	Value Value
}

// Document is an ordered, named-field container — the self-describing
// binary structure used on the wire for schema, entry, selector and row
// payloads. Field order is insertion order and is preserved through
// iteration.
type Document struct {
	fields []Field
	index  map[string]int
}

// NewDocument returns an empty Document.
func NewDocument() *Document {
	return &Document{index: make(map[string]int)}
}

// Set appends or replaces the field named name with value.
func (d *Document) Set(name string, value Value) {
	if d.index == nil {
		d.index = make(map[string]int)
	}
	if i, ok := d.index[name]; ok {
		d.fields[i].Value = value
		return
	}
	d.index[name] = len(d.fields)
	d.fields = append(d.fields, Field{Name: name, Value: value})
}

// Get returns the field named name, if present.
func (d *Document) Get(name string) (Value, bool) {
	i, ok := d.index[name]
	if !ok {
		return Value{}, false
	}
	return d.fields[i].Value, true
}

// Fields returns the fields in insertion order. The returned slice must not
// be mutated by the caller.
func (d *Document) Fields() []Field { return d.fields }

// Len reports the number of fields.
func (d *Document) Len() int { return len(d.fields) }

// TypeCheck verifies v has the expected kind, returning a descriptive error
// otherwise. Used when reading a Document field against a schema's declared
// field type.
func TypeCheck(field string, v Value, want Kind) error {
	if v.Kind != want {
		return fmt.Errorf("db: field %q has kind %d, want %d", field, v.Kind, want)
	}
	return nil
}

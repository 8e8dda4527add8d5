package db

import (
	"bytes"
	"fmt"
)

// Operator is a leaf comparison operator.
type Operator int

const (
	OpLess Operator = iota
	OpLessOrEqual
	OpGreater
	OpGreaterOrEqual
	OpEqual
	OpNotEqual
)

// Mode is a selector internal node's logical gate.
type Mode int

const (
	ModeAND Mode = iota
	ModeOR
)

// MaxSelectorLeaves bounds the total leaf count across a selector tree.
const MaxSelectorLeaves = 500

type leaf struct {
	field string
	op    Operator
	value Value
}

// Selector is a tree whose internal nodes are logical AND/OR gates and
// whose leaves are field comparisons. It is built against a schema,
// finalized to its on-wire form at first use, and immutable afterward.
type Selector struct {
	schema *Schema
	mode   Mode

	leaves    []leaf
	children  []*Selector
	joinedSchemas map[string]*Schema
	joins         [][2]string // (left-field, right-field)

	totalLeaves *int // shared across the tree, root owns the counter
	finalized   bool
}

// NewSelector returns a selector over schema, combining its children (leaves
// and sub-selectors) with mode.
func NewSelector(schema *Schema, mode Mode) *Selector {
	n := 0
	return &Selector{schema: schema, mode: mode, totalLeaves: &n, joinedSchemas: make(map[string]*Schema)}
}

// ErrSelectorFinalized is returned by AddField/AddSelector once the selector
// has been finalized.
var ErrSelectorFinalized = fmt.Errorf("db: selector is finalized and immutable")

// ErrSelectorTooManyLeaves is returned when adding a leaf would exceed
// MaxSelectorLeaves.
var ErrSelectorTooManyLeaves = fmt.Errorf("db: selector exceeds max leaf count")

// AddField appends a comparison leaf. field must belong to the selector's
// schema or to a schema joined in via AddJoin.
func (s *Selector) AddField(field string, op Operator, value Value) error {
	if s.finalized {
		return ErrSelectorFinalized
	}
	if _, ok := s.schema.FieldType(field); !ok {
		if !s.fieldInJoinedSchema(field) {
			return fmt.Errorf("db: field %q not in schema or joined schemas", field)
		}
	}
	if *s.totalLeaves+1 > MaxSelectorLeaves {
		return ErrSelectorTooManyLeaves
	}
	*s.totalLeaves++
	s.leaves = append(s.leaves, leaf{field: field, op: op, value: value})
	return nil
}

func (s *Selector) fieldInJoinedSchema(field string) bool {
	for _, sch := range s.joinedSchemas {
		if _, ok := sch.FieldType(field); ok {
			return true
		}
	}
	return false
}

// AddSelector appends a nested sub-tree sharing this selector's leaf budget.
func (s *Selector) AddSelector(sub *Selector) error {
	if s.finalized {
		return ErrSelectorFinalized
	}
	leavesInSub := sub.countLeaves()
	if *s.totalLeaves+leavesInSub > MaxSelectorLeaves {
		return ErrSelectorTooManyLeaves
	}
	*s.totalLeaves += leavesInSub
	sub.totalLeaves = s.totalLeaves
	s.children = append(s.children, sub)
	return nil
}

func (s *Selector) countLeaves() int {
	n := len(s.leaves)
	for _, c := range s.children {
		n += c.countLeaves()
	}
	return n
}

// AddJoin registers an additional joined schema and a (left-field,
// right-field) equality pair used to correlate it with the primary schema.
func (s *Selector) AddJoin(joined *Schema, leftField, rightField string) error {
	if s.finalized {
		return ErrSelectorFinalized
	}
	s.joinedSchemas[joined.Name] = joined
	s.joins = append(s.joins, [2]string{leftField, rightField})
	return nil
}

// Finalize renders the selector to its on-wire document form and marks it
// immutable. Idempotent.
func (s *Selector) Finalize() *Document {
	s.finalized = true
	doc := NewDocument()
	doc.Set("s", s.render())
	if len(s.joinedSchemas) > 0 {
		tables := make([]Value, 0, len(s.joinedSchemas))
		for name := range s.joinedSchemas {
			tables = append(tables, String(name))
		}
		doc.Set("t", Array(tables))

		joinPairs := make([]Value, 0, len(s.joins))
		for _, j := range s.joins {
			jd := NewDocument()
			jd.Set("left", String(j[0]))
			jd.Set("right", String(j[1]))
			joinPairs = append(joinPairs, Nested(jd))
		}
		doc.Set("j", Array(joinPairs))
	}
	return doc
}

func (s *Selector) render() Value {
	entries := make([]Value, 0, len(s.leaves)+len(s.children))
	for _, l := range s.leaves {
		ld := NewDocument()
		ld.Set("field", String(l.field))
		ld.Set("op", Int32(int32(l.op)))
		ld.Set("value", l.value)
		entries = append(entries, Nested(ld))
	}
	for _, c := range s.children {
		entries = append(entries, c.render())
	}
	modeDoc := NewDocument()
	modeDoc.Set("mode", Int32(int32(s.mode)))
	modeDoc.Set("entries", Array(entries))
	return Nested(modeDoc)
}

// Finalized reports whether the selector has been rendered to wire form.
func (s *Selector) Finalized() bool { return s.finalized }

// Evaluate applies the selector against row, a map of field name to typed
// value, using the schema's declared comparison semantics per field type.
func (s *Selector) Evaluate(row map[string]Value) (bool, error) {
	results := make([]bool, 0, len(s.leaves)+len(s.children))
	for _, l := range s.leaves {
		v, ok := row[l.field]
		if !ok {
			results = append(results, false)
			continue
		}
		ok, err := compare(v, l.op, l.value)
		if err != nil {
			return false, err
		}
		results = append(results, ok)
	}
	for _, c := range s.children {
		ok, err := c.Evaluate(row)
		if err != nil {
			return false, err
		}
		results = append(results, ok)
	}
	return combine(s.mode, results), nil
}

func combine(mode Mode, results []bool) bool {
	if mode == ModeAND {
		for _, r := range results {
			if !r {
				return false
			}
		}
		return true
	}
	for _, r := range results {
		if r {
			return true
		}
	}
	return false
}

func compare(a Value, op Operator, b Value) (bool, error) {
	if a.Kind != b.Kind {
		return false, fmt.Errorf("db: cannot compare differing kinds %d and %d", a.Kind, b.Kind)
	}
	var cmp int
	switch a.Kind {
	case KindInt32:
		cmp = cmpInt64(int64(a.I32), int64(b.I32))
	case KindUint32:
		cmp = cmpUint64(uint64(a.U32), uint64(b.U32))
	case KindInt64:
		cmp = cmpInt64(a.I64, b.I64)
	case KindUint64:
		cmp = cmpUint64(a.U64, b.U64)
	case KindFloat32:
		cmp = cmpFloat64(float64(a.F32), float64(b.F32))
	case KindFloat64:
		cmp = cmpFloat64(a.F64, b.F64)
	case KindString:
		cmp = bytes.Compare([]byte(a.Str), []byte(b.Str))
	case KindBlob:
		cmp = compareBlob(a.Blb, b.Blb)
	default:
		return false, fmt.Errorf("db: unsupported comparison kind %d", a.Kind)
	}
	switch op {
	case OpLess:
		return cmp < 0, nil
	case OpLessOrEqual:
		return cmp <= 0, nil
	case OpGreater:
		return cmp > 0, nil
	case OpGreaterOrEqual:
		return cmp >= 0, nil
	case OpEqual:
		return cmp == 0, nil
	case OpNotEqual:
		return cmp != 0, nil
	default:
		return false, fmt.Errorf("db: unknown operator %d", op)
	}
}

// compareBlob orders by length first, then byte-wise, per spec.
func compareBlob(a, b []byte) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return bytes.Compare(a, b)
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

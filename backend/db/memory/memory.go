// Package memory is an in-memory structured-database backend. Each
// declared index keeps an ordered google/btree structure that insert fills;
// no operation reads it. Query, update and delete all walk the full row
// store, which is the source of truth, and update and delete do not
// maintain the index structures.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/btree"
	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/dreamware/julea/internal/backend"
	"github.com/dreamware/julea/internal/db"
	"github.com/dreamware/julea/internal/errs"
	"github.com/dreamware/julea/internal/semantics"
)

func init() {
	backend.RegisterDB("memory", func(dataPath string) (backend.DB, error) {
		return New(), nil
	})
}

type row struct {
	id     uuid.UUID
	values map[string]db.Value
}

type indexEntry struct {
	compositeKey string
	rowID        uuid.UUID
}

func (e indexEntry) Less(than btree.Item) bool {
	other := than.(indexEntry)
	if e.compositeKey != other.compositeKey {
		return e.compositeKey < other.compositeKey
	}
	return e.rowID.String() < other.rowID.String()
}

type table struct {
	mu      sync.RWMutex
	schema  *db.Schema
	rows    map[uuid.UUID]*row
	indices map[string]*btree.BTree // canonical index key -> ordered entries
}

// Backend is the in-memory database store.
type Backend struct {
	mu     sync.RWMutex
	tables map[string]*table
}

// New returns an empty in-memory db backend.
func New() *Backend {
	return &Backend{tables: make(map[string]*table)}
}

type batchHandle struct{}

func (b *Backend) BatchStart(ctx context.Context, namespace string, sem *semantics.Semantics) (backend.BatchHandle, error) {
	return batchHandle{}, nil
}

func (b *Backend) BatchExecute(ctx context.Context, h backend.BatchHandle) error { return nil }

func (b *Backend) SchemaCreate(ctx context.Context, h backend.BatchHandle, name string, schemaDoc *db.Document) error {
	schema, err := db.SchemaFromDocument(schemaDoc)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.tables[name]; exists {
		return errs.Exists("db: schema %q already exists", name)
	}
	t := &table{schema: schema, rows: make(map[uuid.UUID]*row), indices: make(map[string]*btree.BTree)}
	for _, idx := range schema.Indices() {
		t.indices[indexGroupKey(idx)] = btree.New(32)
	}
	b.tables[name] = t
	return nil
}

func (b *Backend) SchemaGet(ctx context.Context, name string) (*db.Document, error) {
	t, err := b.table(name)
	if err != nil {
		return nil, err
	}
	return t.schema.ToDocument(), nil
}

func (b *Backend) SchemaDelete(ctx context.Context, h backend.BatchHandle, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.tables[name]; !ok {
		return errs.NotFound("db: schema %q", name)
	}
	delete(b.tables, name)
	return nil
}

func (b *Backend) table(name string) (*table, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tables[name]
	if !ok {
		return nil, errs.NotFound("db: schema %q", name)
	}
	return t, nil
}

func indexGroupKey(fields []string) string { return strings.Join(fields, ",") }

func compositeIndexValue(values map[string]db.Value, fields []string) string {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(fieldValueString(values[f]))
		b.WriteByte(0)
	}
	return b.String()
}

func fieldValueString(v db.Value) string {
	switch v.Kind {
	case db.KindString:
		return v.Str
	case db.KindInt32:
		return string(rune(v.I32))
	default:
		return ""
	}
}

func (b *Backend) Insert(ctx context.Context, h backend.BatchHandle, name string, entryDoc *db.Document) (*db.Document, error) {
	t, err := b.table(name)
	if err != nil {
		return nil, err
	}

	entry, err := db.EntryFromDocument(t.schema, entryDoc)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	t.mu.Lock()
	t.rows[id] = &row{id: id, values: entry.Values}
	for _, idxFields := range t.schema.Indices() {
		key := indexGroupKey(idxFields)
		t.indices[key].ReplaceOrInsert(indexEntry{
			compositeKey: compositeIndexValue(entry.Values, idxFields),
			rowID:        id,
		})
	}
	t.mu.Unlock()

	idDoc := db.NewDocument()
	idDoc.Set("id", db.ID(id))
	return idDoc, nil
}

func (b *Backend) Update(ctx context.Context, h backend.BatchHandle, name string, selectorDoc, entryDoc *db.Document) error {
	t, err := b.table(name)
	if err != nil {
		return err
	}
	sel, err := selectorFromDocument(t.schema, selectorDoc)
	if err != nil {
		return err
	}
	patch, err := db.EntryFromDocument(t.schema, entryDoc)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.rows {
		match, err := sel.Evaluate(r.values)
		if err != nil {
			return err
		}
		if !match {
			continue
		}
		for k, v := range patch.Values {
			r.values[k] = v
		}
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, h backend.BatchHandle, name string, selectorDoc *db.Document) error {
	t, err := b.table(name)
	if err != nil {
		return err
	}
	sel, err := selectorFromDocument(t.schema, selectorDoc)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for id, r := range t.rows {
		match, err := sel.Evaluate(r.values)
		if err != nil {
			return err
		}
		if match {
			delete(t.rows, id)
		}
	}
	return nil
}

func (b *Backend) Query(ctx context.Context, name string, selectorDoc *db.Document) (backend.DBIterator, error) {
	t, err := b.table(name)
	if err != nil {
		return nil, err
	}

	var sel *db.Selector
	if selectorDoc != nil {
		sel, err = selectorFromDocument(t.schema, selectorDoc)
		if err != nil {
			return nil, err
		}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })

	var matched []*db.Document
	for _, id := range ids {
		r := t.rows[id]
		if sel != nil {
			ok, err := sel.Evaluate(r.values)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		rowDoc := db.NewDocument()
		for _, f := range t.schema.Fields() {
			if v, ok := r.values[f.Name]; ok {
				rowDoc.Set(f.Name, v)
			}
		}
		matched = append(matched, rowDoc)
	}

	return &queryIterator{rows: matched}, nil
}

type queryIterator struct {
	rows []*db.Document
	pos  int
}

func (it *queryIterator) Next(ctx context.Context) (*db.Document, error) {
	if it.pos >= len(it.rows) {
		return nil, errs.IteratorEnd
	}
	row := it.rows[it.pos]
	it.pos++
	return row, nil
}

func (it *queryIterator) Close() error {
	it.pos = len(it.rows)
	return nil
}

// selectorFromDocument reconstructs a selector from the wire "s" section,
// following Selector.render's shape: each node's mode, its leaf
// (field, op, value) entries and its nested sub-selectors, recursively. A
// document without an "s" section yields an empty AND selector.
func selectorFromDocument(schema *db.Schema, doc *db.Document) (*db.Selector, error) {
	sVal, ok := doc.Get("s")
	if !ok {
		return db.NewSelector(schema, db.ModeAND), nil
	}
	return parseSelectorNode(schema, sVal)
}

func parseSelectorNode(schema *db.Schema, v db.Value) (*db.Selector, error) {
	modeVal, _ := v.Doc.Get("mode")
	entriesVal, _ := v.Doc.Get("entries")

	mode := db.Mode(modeVal.I32)
	sel := db.NewSelector(schema, mode)
	for _, e := range entriesVal.Arr {
		if _, isLeaf := e.Doc.Get("field"); isLeaf {
			fieldVal, _ := e.Doc.Get("field")
			opVal, _ := e.Doc.Get("op")
			valueVal, _ := e.Doc.Get("value")
			if err := sel.AddField(fieldVal.Str, db.Operator(opVal.I32), valueVal); err != nil {
				return nil, err
			}
			continue
		}
		sub, err := parseSelectorNode(schema, e)
		if err != nil {
			return nil, err
		}
		if err := sel.AddSelector(sub); err != nil {
			return nil, err
		}
	}
	return sel, nil
}

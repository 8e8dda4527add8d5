package db

import "github.com/dreamware/julea/internal/errs"

// Iterator walks row documents returned by a query. At-most-once iteration
// per row; Close on an unexhausted iterator drains remaining rows so the
// underlying connection/cursor can be reused.
type Iterator struct {
	Schema *Schema
	rows   []*Document
	pos    int
	valid  bool
}

// NewIterator wraps a pre-fetched slice of row documents (the shape the
// in-memory backend and the remote merged-replies path both reduce to).
func NewIterator(schema *Schema, rows []*Document) *Iterator {
	return &Iterator{Schema: schema, rows: rows, valid: true}
}

// Next advances to the next row, returning errs.IteratorEnd once exhausted.
// Calling Next again after exhaustion is idempotent and keeps returning
// errs.IteratorEnd.
func (it *Iterator) Next() (*Document, error) {
	if !it.valid || it.pos >= len(it.rows) {
		it.valid = false
		return nil, errs.IteratorEnd
	}
	row := it.rows[it.pos]
	it.pos++
	return row, nil
}

// Close drains any remaining rows, making the iterator safe to discard.
func (it *Iterator) Close() error {
	it.pos = len(it.rows)
	it.valid = false
	return nil
}

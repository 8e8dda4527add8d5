// Package null is the canonical do-nothing database backend.
package null

import (
	"context"

	"github.com/dreamware/julea/internal/backend"
	"github.com/dreamware/julea/internal/db"
	"github.com/dreamware/julea/internal/errs"
	"github.com/dreamware/julea/internal/semantics"
)

func init() {
	backend.RegisterDB("null", func(dataPath string) (backend.DB, error) {
		return New(), nil
	})
}

// Backend is the null db backend.
type Backend struct{}

// New returns a null db backend.
func New() *Backend { return &Backend{} }

type handle struct{}

func (b *Backend) BatchStart(ctx context.Context, namespace string, sem *semantics.Semantics) (backend.BatchHandle, error) {
	return handle{}, nil
}

func (b *Backend) BatchExecute(ctx context.Context, h backend.BatchHandle) error { return nil }

func (b *Backend) SchemaCreate(ctx context.Context, h backend.BatchHandle, name string, schemaDoc *db.Document) error {
	return nil
}

func (b *Backend) SchemaGet(ctx context.Context, name string) (*db.Document, error) {
	return nil, errs.NotFound("db: schema %q", name)
}

func (b *Backend) SchemaDelete(ctx context.Context, h backend.BatchHandle, name string) error {
	return nil
}

func (b *Backend) Insert(ctx context.Context, h backend.BatchHandle, name string, entryDoc *db.Document) (*db.Document, error) {
	return db.NewDocument(), nil
}

func (b *Backend) Update(ctx context.Context, h backend.BatchHandle, name string, selectorDoc, entryDoc *db.Document) error {
	return nil
}

func (b *Backend) Delete(ctx context.Context, h backend.BatchHandle, name string, selectorDoc *db.Document) error {
	return nil
}

func (b *Backend) Query(ctx context.Context, name string, selectorDoc *db.Document) (backend.DBIterator, error) {
	return emptyIterator{}, nil
}

type emptyIterator struct{}

func (emptyIterator) Next(ctx context.Context) (*db.Document, error) {
	return nil, errs.IteratorEnd
}
func (emptyIterator) Close() error { return nil }

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/julea/internal/db"
	"github.com/dreamware/julea/internal/errs"
)

func schemaDoc(t *testing.T) *db.Document {
	t.Helper()
	s := db.NewSchema("adios2", "variables")
	require.NoError(t, s.AddField("file", db.KindString))
	require.NoError(t, s.AddField("name", db.KindString))
	require.NoError(t, s.AddField("min", db.KindFloat64))
	require.NoError(t, s.AddField("max", db.KindFloat64))
	require.NoError(t, s.AddIndex("file"))
	return s.ToDocument()
}

func TestScenarioS4InsertAndQuery(t *testing.T) {
	ctx := context.Background()
	b := New()

	require.NoError(t, b.SchemaCreate(ctx, nil, "variables", schemaDoc(t)))

	insertOne := func(file, name string, min, max float64) {
		entry := db.NewDocument()
		entry.Set("file", db.String(file))
		entry.Set("name", db.String(name))
		entry.Set("min", db.Float64(min))
		entry.Set("max", db.Float64(max))
		_, err := b.Insert(ctx, nil, "variables", entry)
		require.NoError(t, err)
	}
	insertOne("demo.bp", "temperature", 1.0, 42.0)
	insertOne("demo.bp", "pressure", 0.5, 10.0)
	insertOne("other.bp", "temperature", 2.0, 3.0)

	schema, err := db.SchemaFromDocument(schemaDoc(t))
	require.NoError(t, err)
	sel := db.NewSelector(schema, db.ModeAND)
	require.NoError(t, sel.AddField("file", db.OpEqual, db.String("demo.bp")))
	selDoc := sel.Finalize()

	it, err := b.Query(ctx, "variables", selDoc)
	require.NoError(t, err)

	var names []string
	for {
		row, err := it.Next(ctx)
		if err == errs.IteratorEnd {
			break
		}
		require.NoError(t, err)
		nameVal, _ := row.Get("name")
		names = append(names, nameVal.Str)
	}
	assert.ElementsMatch(t, []string{"temperature", "pressure"}, names)
}

func TestDeleteRemovesMatchingRows(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.SchemaCreate(ctx, nil, "variables", schemaDoc(t)))

	entry := db.NewDocument()
	entry.Set("file", db.String("demo.bp"))
	entry.Set("name", db.String("temperature"))
	entry.Set("min", db.Float64(1.0))
	entry.Set("max", db.Float64(42.0))
	_, err := b.Insert(ctx, nil, "variables", entry)
	require.NoError(t, err)

	schema, err := db.SchemaFromDocument(schemaDoc(t))
	require.NoError(t, err)
	sel := db.NewSelector(schema, db.ModeAND)
	require.NoError(t, sel.AddField("file", db.OpEqual, db.String("demo.bp")))
	require.NoError(t, b.Delete(ctx, nil, "variables", sel.Finalize()))

	it, err := b.Query(ctx, "variables", nil)
	require.NoError(t, err)
	_, err = it.Next(ctx)
	assert.ErrorIs(t, err, errs.IteratorEnd)
}

func TestSchemaCreateRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.SchemaCreate(ctx, nil, "variables", schemaDoc(t)))
	err := b.SchemaCreate(ctx, nil, "variables", schemaDoc(t))
	assert.True(t, errs.Is(err, errs.KindExists))
}

package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func variablesSchema(t *testing.T) *Schema {
	t.Helper()
	s := NewSchema("adios2", "variables")
	require.NoError(t, s.AddField("file", KindString))
	require.NoError(t, s.AddField("name", KindString))
	require.NoError(t, s.AddField("min", KindFloat64))
	require.NoError(t, s.AddField("max", KindFloat64))
	require.NoError(t, s.AddIndex("file"))
	return s
}

func TestSelectorScenarioS4Query(t *testing.T) {
	schema := variablesSchema(t)
	sel := NewSelector(schema, ModeAND)
	require.NoError(t, sel.AddField("file", OpEqual, String("demo.bp")))

	rows := []map[string]Value{
		{"file": String("demo.bp"), "name": String("temperature"), "min": Float64(1.0), "max": Float64(42.0)},
		{"file": String("demo.bp"), "name": String("pressure"), "min": Float64(0.5), "max": Float64(10.0)},
		{"file": String("other.bp"), "name": String("temperature"), "min": Float64(2.0), "max": Float64(3.0)},
	}

	var matched []string
	for _, row := range rows {
		ok, err := sel.Evaluate(row)
		require.NoError(t, err)
		if ok {
			name, _ := row["name"]
			matched = append(matched, name.Str)
		}
	}
	assert.Equal(t, []string{"temperature", "pressure"}, matched)
}

func TestSelectorRejectsUndeclaredField(t *testing.T) {
	schema := variablesSchema(t)
	sel := NewSelector(schema, ModeAND)
	assert.Error(t, sel.AddField("bogus", OpEqual, String("x")))
}

func TestSelectorRejectsAdditionAfterFinalize(t *testing.T) {
	schema := variablesSchema(t)
	sel := NewSelector(schema, ModeAND)
	require.NoError(t, sel.AddField("file", OpEqual, String("demo.bp")))
	sel.Finalize()

	assert.ErrorIs(t, sel.AddField("name", OpEqual, String("x")), ErrSelectorFinalized)
	assert.ErrorIs(t, sel.AddSelector(NewSelector(schema, ModeOR)), ErrSelectorFinalized)
}

func TestSelectorEnforcesLeafBound(t *testing.T) {
	schema := NewSchema("ns", "s")
	require.NoError(t, schema.AddField("a", KindInt32))

	sel := NewSelector(schema, ModeOR)
	var err error
	for i := 0; i < MaxSelectorLeaves; i++ {
		err = sel.AddField("a", OpEqual, Int32(int32(i)))
		require.NoError(t, err)
	}
	err = sel.AddField("a", OpEqual, Int32(0))
	assert.ErrorIs(t, err, ErrSelectorTooManyLeaves)
}

func TestSelectorNestedORUnderAND(t *testing.T) {
	schema := variablesSchema(t)
	inner := NewSelector(schema, ModeOR)
	require.NoError(t, inner.AddField("name", OpEqual, String("temperature")))
	require.NoError(t, inner.AddField("name", OpEqual, String("pressure")))

	outer := NewSelector(schema, ModeAND)
	require.NoError(t, outer.AddField("file", OpEqual, String("demo.bp")))
	require.NoError(t, outer.AddSelector(inner))

	row := map[string]Value{"file": String("demo.bp"), "name": String("pressure")}
	ok, err := outer.Evaluate(row)
	require.NoError(t, err)
	assert.True(t, ok)

	row2 := map[string]Value{"file": String("other.bp"), "name": String("pressure")}
	ok2, err := outer.Evaluate(row2)
	require.NoError(t, err)
	assert.False(t, ok2)
}

func TestSelectorFinalizeSerializesToDocument(t *testing.T) {
	schema := variablesSchema(t)
	sel := NewSelector(schema, ModeAND)
	require.NoError(t, sel.AddField("file", OpEqual, String("demo.bp")))

	doc := sel.Finalize()
	sVal, ok := doc.Get("s")
	require.True(t, ok)
	assert.Equal(t, KindDocument, sVal.Kind)
	assert.True(t, sel.Finalized())
}

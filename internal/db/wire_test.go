package db

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeDocumentRoundTrip(t *testing.T) {
	nested := NewDocument()
	nested.Set("inner", String("value"))

	doc := NewDocument()
	doc.Set("i32", Int32(-7))
	doc.Set("u32", Uint32(7))
	doc.Set("i64", Int64(-123456789))
	doc.Set("u64", Uint64(123456789))
	doc.Set("f32", Float32(1.5))
	doc.Set("f64", Float64(2.25))
	doc.Set("str", String("hello"))
	doc.Set("blob", Blob([]byte{1, 2, 3}))
	doc.Set("id", ID(uuid.New()))
	doc.Set("doc", Nested(nested))
	doc.Set("arr", Array([]Value{Int32(1), Int32(2), Int32(3)}))

	encoded := EncodeDocument(doc)
	decoded, err := DecodeDocument(encoded)
	require.NoError(t, err)

	require.Equal(t, doc.Len(), decoded.Len())
	for _, f := range doc.Fields() {
		got, ok := decoded.Get(f.Name)
		require.True(t, ok, "missing field %s", f.Name)
		assert.Equal(t, f.Value.Kind, got.Kind)
	}

	gotStr, _ := decoded.Get("str")
	assert.Equal(t, "hello", gotStr.Str)

	gotArr, _ := decoded.Get("arr")
	require.Len(t, gotArr.Arr, 3)
	assert.Equal(t, int32(2), gotArr.Arr[1].I32)

	gotDoc, _ := decoded.Get("doc")
	innerVal, ok := gotDoc.Doc.Get("inner")
	require.True(t, ok)
	assert.Equal(t, "value", innerVal.Str)
}

func TestDecodeDocumentRejectsTruncatedInput(t *testing.T) {
	_, err := DecodeDocument([]byte{1, 2, 3})
	assert.Error(t, err)
}

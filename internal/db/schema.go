package db

import (
	"fmt"
)

// FieldType is the declared type of one schema field. It reuses the
// Document Kind space minus the container kinds (Document, Array), which
// schemas don't declare directly.
type FieldType = Kind

// SchemaField is one (name, type) pair in declaration order.
type SchemaField struct {
	Name string
	Type FieldType
}

// Schema is an ordered set of typed fields plus an ordered list of index
// groups, named (namespace, name). It starts out client-side and mutable;
// SchemaCreate on a batch hands it to a backend, after which it is
// server-side and immutable — Go models that as a frozen flag rather than a
// distinct type, mirroring Semantics' freeze-on-share pattern.
type Schema struct {
	Namespace string
	Name      string

	fields      []SchemaField
	fieldNames  map[string]bool
	indices     [][]string
	indexNames  map[string]bool
	frozen      bool
}

// NewSchema returns an empty, mutable schema.
func NewSchema(namespace, name string) *Schema {
	return &Schema{
		Namespace:  namespace,
		Name:       name,
		fieldNames: make(map[string]bool),
		indexNames: make(map[string]bool),
	}
}

// ErrSchemaFrozen is returned by AddField/AddIndex once the schema is
// server-side.
var ErrSchemaFrozen = fmt.Errorf("db: schema is server-side and immutable")

// AddField appends a field in declaration order. Duplicate names are
// rejected, as is any call after the schema becomes server-side.
func (s *Schema) AddField(name string, fieldType FieldType) error {
	if s.frozen {
		return ErrSchemaFrozen
	}
	if s.fieldNames[name] {
		return fmt.Errorf("db: duplicate field %q", name)
	}
	s.fieldNames[name] = true
	s.fields = append(s.fields, SchemaField{Name: name, Type: fieldType})
	return nil
}

// AddIndex appends an index group (an ordered list of field names, kept as
// given) in declaration order. The index's key (its field names joined in
// the given order) must not repeat an existing index, so the same fields in
// a different order form a distinct index.
func (s *Schema) AddIndex(fieldNames ...string) error {
	if s.frozen {
		return ErrSchemaFrozen
	}
	if len(fieldNames) == 0 {
		return fmt.Errorf("db: index must name at least one field")
	}
	for _, fn := range fieldNames {
		if !s.fieldNames[fn] {
			return fmt.Errorf("db: index references undeclared field %q", fn)
		}
	}
	canon := indexKey(fieldNames)
	if s.indexNames[canon] {
		return fmt.Errorf("db: duplicate index over %v", fieldNames)
	}
	s.indexNames[canon] = true
	cp := make([]string, len(fieldNames))
	copy(cp, fieldNames)
	s.indices = append(s.indices, cp)
	return nil
}

func indexKey(fields []string) string {
	out := ""
	for _, f := range fields {
		out += f + ","
	}
	return out
}

// Fields returns the declared fields in insertion order.
func (s *Schema) Fields() []SchemaField { return s.fields }

// Indices returns the declared index groups in insertion order.
func (s *Schema) Indices() [][]string { return s.indices }

// FieldType looks up a declared field's type.
func (s *Schema) FieldType(name string) (FieldType, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return 0, false
}

// Freeze transitions the schema to server-side/immutable. Idempotent.
func (s *Schema) Freeze() { s.frozen = true }

// Frozen reports whether the schema is server-side.
func (s *Schema) Frozen() bool { return s.frozen }

// Equal holds iff both schemas have identical namespace, name, ordered
// field list and ordered index-name-set list.
func (s *Schema) Equal(other *Schema) bool {
	if s.Namespace != other.Namespace || s.Name != other.Name {
		return false
	}
	if len(s.fields) != len(other.fields) {
		return false
	}
	for i, f := range s.fields {
		if f != other.fields[i] {
			return false
		}
	}
	if len(s.indices) != len(other.indices) {
		return false
	}
	for i, idx := range s.indices {
		if indexKey(idx) != indexKey(other.indices[i]) {
			return false
		}
	}
	return true
}

// ToDocument renders the schema as a self-describing document suitable for
// schema_create/schema_get wire payloads.
func (s *Schema) ToDocument() *Document {
	doc := NewDocument()
	doc.Set("namespace", String(s.Namespace))
	doc.Set("name", String(s.Name))

	fieldsArr := make([]Value, 0, len(s.fields))
	for _, f := range s.fields {
		fd := NewDocument()
		fd.Set("name", String(f.Name))
		fd.Set("type", Int32(int32(f.Type)))
		fieldsArr = append(fieldsArr, Nested(fd))
	}
	doc.Set("fields", Array(fieldsArr))

	indicesArr := make([]Value, 0, len(s.indices))
	for _, idx := range s.indices {
		names := make([]Value, 0, len(idx))
		for _, n := range idx {
			names = append(names, String(n))
		}
		indicesArr = append(indicesArr, Array(names))
	}
	doc.Set("indices", Array(indicesArr))
	return doc
}

// SchemaFromDocument reconstructs a server-side (frozen) Schema from a
// document produced by ToDocument.
func SchemaFromDocument(doc *Document) (*Schema, error) {
	nsVal, ok := doc.Get("namespace")
	if !ok {
		return nil, fmt.Errorf("db: schema document missing namespace")
	}
	nameVal, ok := doc.Get("name")
	if !ok {
		return nil, fmt.Errorf("db: schema document missing name")
	}
	s := NewSchema(nsVal.Str, nameVal.Str)

	fieldsVal, ok := doc.Get("fields")
	if ok {
		for _, fv := range fieldsVal.Arr {
			nameField, _ := fv.Doc.Get("name")
			typeField, _ := fv.Doc.Get("type")
			if err := s.AddField(nameField.Str, FieldType(typeField.I32)); err != nil {
				return nil, err
			}
		}
	}

	indicesVal, ok := doc.Get("indices")
	if ok {
		for _, iv := range indicesVal.Arr {
			var names []string
			for _, nv := range iv.Arr {
				names = append(names, nv.Str)
			}
			if err := s.AddIndex(names...); err != nil {
				return nil, err
			}
		}
	}

	s.Freeze()
	return s, nil
}

package db

import "fmt"

// Entry is a row to be inserted: a schema reference plus a map of
// field-name to typed value. The map must be a subset of the schema's
// declared fields; unset fields are NULL on insert.
type Entry struct {
	Schema *Schema
	Values map[string]Value
}

// NewEntry returns an empty entry against schema.
func NewEntry(schema *Schema) *Entry {
	return &Entry{Schema: schema, Values: make(map[string]Value)}
}

// Set assigns a field's value, type-checking it against the schema.
func (e *Entry) Set(field string, value Value) error {
	declared, ok := e.Schema.FieldType(field)
	if !ok {
		return fmt.Errorf("db: field %q not declared in schema %s", field, e.Schema.Name)
	}
	if err := TypeCheck(field, value, declared); err != nil {
		return err
	}
	e.Values[field] = value
	return nil
}

// ToDocument renders the entry as a self-describing document for the
// insert/update wire payload.
func (e *Entry) ToDocument() *Document {
	doc := NewDocument()
	for _, f := range e.Schema.Fields() {
		if v, ok := e.Values[f.Name]; ok {
			doc.Set(f.Name, v)
		}
	}
	return doc
}

// EntryFromDocument reconstructs an Entry from a row document and schema,
// type-checking each present field.
func EntryFromDocument(schema *Schema, doc *Document) (*Entry, error) {
	e := NewEntry(schema)
	for _, f := range doc.Fields() {
		if err := e.Set(f.Name, f.Value); err != nil {
			return nil, err
		}
	}
	return e, nil
}

package gateway

import (
	"fmt"
	"strings"
)

// System fields present in every collection.
const (
	FieldID    = "Id"
	FieldName  = "Name"
	FieldOwner = "Owner"
)

type FieldType int

const (
	Text FieldType = iota
	Bool
	Time
	// Date holds a calendar day without time of day.
	Date
)

func (t FieldType) String() string {
	switch t {
	case Text:
		return "text"
	case Bool:
		return "bool"
	case Time:
		return "time"
	case Date:
		return "date"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

type Field struct {
	Name     string
	Column   string
	Type     FieldType
	Required bool
	Unique   bool
}

// Schema is the typed shape of one collection.
type Schema struct {
	Collection string
	Fields     []Field
}

// NewSchema builds a schema for collection with the system fields Id, Name
// and Owner placed before fields.
func NewSchema(collection string, fields ...Field) Schema {
	all := []Field{
		{Name: FieldID, Column: "id", Type: Text, Required: true},
		{Name: FieldName, Column: "name", Type: Text},
		{Name: FieldOwner, Column: "owner", Type: Text},
	}
	return Schema{Collection: collection, Fields: append(all, fields...)}
}

// WithUnique returns a copy of s with field marked unique.
func (s Schema) WithUnique(field string) Schema {
	out := Schema{Collection: s.Collection, Fields: make([]Field, len(s.Fields))}
	copy(out.Fields, s.Fields)
	for i := range out.Fields {
		if out.Fields[i].Name == field {
			out.Fields[i].Unique = true
		}
	}
	return out
}

func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Names lists field names in schema order.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

func (s Schema) Validate() error {
	if strings.TrimSpace(s.Collection) == "" {
		return fmt.Errorf("schema: collection name is empty")
	}
	seen := map[string]struct{}{}
	for _, f := range s.Fields {
		if f.Name == "" || f.Column == "" {
			return fmt.Errorf("schema %s: field with empty name or column", s.Collection)
		}
		if _, ok := seen[f.Column]; ok {
			return fmt.Errorf("schema %s: duplicate column %q", s.Collection, f.Column)
		}
		seen[f.Column] = struct{}{}
	}
	if _, ok := s.Field(FieldID); !ok {
		return fmt.Errorf("schema %s: missing %s field", s.Collection, FieldID)
	}
	return nil
}

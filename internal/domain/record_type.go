package domain

import (
	"fmt"
	"strings"
)

// FieldType represents the declared type of a field in a record-type descriptor.
// The set is closed: coercion in the validation engine switches exhaustively
// over these values.
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeNumber    FieldType = "number"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeDate      FieldType = "date"
	FieldTypeReference FieldType = "reference"
	FieldTypeEnum      FieldType = "enum"
	FieldTypeArray     FieldType = "array"
	FieldTypeObject    FieldType = "object"
)

// FieldDescriptor describes one field of a record type.
type FieldDescriptor struct {
	Path       string    `json:"path"`
	Type       FieldType `json:"type"`
	Required   bool      `json:"required"`
	Nested     bool      `json:"nested,omitempty"`
	EnumValues []string  `json:"enumValues,omitempty"`
}

// RecordType is the schema definition for one kind of business record.
// Constructed once at catalog build time and never mutated afterwards.
type RecordType struct {
	Name         string            `json:"name"`
	DisplayName  string            `json:"displayName"`
	Fields       []FieldDescriptor `json:"fields"`
	UniqueFields []string          `json:"uniqueFields,omitempty"`

	byKey map[string]FieldDescriptor
}

// NewRecordType builds a record type and its normalized field lookup.
func NewRecordType(name, displayName string, fields []FieldDescriptor, uniqueFields ...string) RecordType {
	rt := RecordType{
		Name:         name,
		DisplayName:  displayName,
		Fields:       copyFields(fields),
		UniqueFields: append([]string(nil), uniqueFields...),
		byKey:        make(map[string]FieldDescriptor, len(fields)),
	}
	for _, field := range rt.Fields {
		rt.byKey[NormalizeFieldKey(field.Path)] = field
	}
	return rt
}

// FieldForColumn resolves a raw column name to a declared field using
// case/separator-insensitive matching ("first-name" resolves "firstName").
func (rt RecordType) FieldForColumn(column string) (FieldDescriptor, bool) {
	field, ok := rt.byKey[NormalizeFieldKey(column)]
	return field, ok
}

// RequiredPaths returns the paths of all required fields in declaration order.
func (rt RecordType) RequiredPaths() []string {
	var paths []string
	for _, field := range rt.Fields {
		if field.Required {
			paths = append(paths, field.Path)
		}
	}
	return paths
}

// NormalizeFieldKey lowercases a field path or column label and strips
// separator characters so that "First Name", "first-name" and "firstName"
// compare equal.
func NormalizeFieldKey(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch r {
		case ' ', '-', '_', '.':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Catalog is the static, read-only registry of record types supplied by the
// host application at startup. Registration order is preserved because the
// model matcher uses it as the final tie-break.
type Catalog struct {
	types  []RecordType
	byName map[string]int
}

// NewCatalog builds a catalog from the given record types. Duplicate names are
// rejected so matching stays deterministic.
func NewCatalog(types ...RecordType) (Catalog, error) {
	catalog := Catalog{
		types:  make([]RecordType, 0, len(types)),
		byName: make(map[string]int, len(types)),
	}
	for _, rt := range types {
		if strings.TrimSpace(rt.Name) == "" {
			return Catalog{}, fmt.Errorf("record type with empty name")
		}
		if _, exists := catalog.byName[rt.Name]; exists {
			return Catalog{}, fmt.Errorf("record type %q registered twice", rt.Name)
		}
		catalog.byName[rt.Name] = len(catalog.types)
		catalog.types = append(catalog.types, rt)
	}
	return catalog, nil
}

// Types returns the record types in registration order.
func (c Catalog) Types() []RecordType {
	clone := make([]RecordType, len(c.types))
	copy(clone, c.types)
	return clone
}

// Get returns a record type by name.
func (c Catalog) Get(name string) (RecordType, bool) {
	idx, ok := c.byName[name]
	if !ok {
		return RecordType{}, false
	}
	return c.types[idx], true
}

// Len returns the number of registered record types.
func (c Catalog) Len() int {
	return len(c.types)
}

func copyFields(fields []FieldDescriptor) []FieldDescriptor {
	if fields == nil {
		return nil
	}
	clone := make([]FieldDescriptor, len(fields))
	copy(clone, fields)
	return clone
}

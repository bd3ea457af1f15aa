package domain

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadCatalogFile reads a catalog definition from a JSON file. The file holds
// an array of record types in registration order:
//
//	[
//	  {
//	    "name": "client",
//	    "displayName": "Client",
//	    "uniqueFields": ["email"],
//	    "fields": [
//	      {"path": "email", "type": "string", "required": true}
//	    ]
//	  }
//	]
func LoadCatalogFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog builds a catalog from raw JSON.
func ParseCatalog(data []byte) (Catalog, error) {
	var specs []struct {
		Name         string            `json:"name"`
		DisplayName  string            `json:"displayName"`
		Fields       []FieldDescriptor `json:"fields"`
		UniqueFields []string          `json:"uniqueFields"`
	}
	if err := json.Unmarshal(data, &specs); err != nil {
		return Catalog{}, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}

	types := make([]RecordType, 0, len(specs))
	for _, spec := range specs {
		for _, field := range spec.Fields {
			if !validFieldType(field.Type) {
				return Catalog{}, fmt.Errorf("record type %q: field %q has unknown type %q", spec.Name, field.Path, field.Type)
			}
		}
		types = append(types, NewRecordType(spec.Name, spec.DisplayName, spec.Fields, spec.UniqueFields...))
	}
	return NewCatalog(types...)
}

func validFieldType(t FieldType) bool {
	switch t {
	case FieldTypeString, FieldTypeNumber, FieldTypeBoolean, FieldTypeDate,
		FieldTypeReference, FieldTypeEnum, FieldTypeArray, FieldTypeObject:
		return true
	}
	return false
}

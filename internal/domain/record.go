package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record is one committed business record: the coerced, validated properties
// of a row stored under its detected record type.
type Record struct {
	ID         uuid.UUID      `json:"id"`
	RecordType string         `json:"record_type"`
	DedupeKey  string         `json:"dedupe_key"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NewRecord creates a record from coerced row values.
func NewRecord(recordType, dedupeKey string, properties map[string]any) Record {
	return Record{
		ID:         uuid.New(),
		RecordType: recordType,
		DedupeKey:  dedupeKey,
		Properties: copyProperties(properties),
		CreatedAt:  time.Now(),
	}
}

// PropertiesJSON returns the properties encoded for JSONB storage.
func (r Record) PropertiesJSON() (json.RawMessage, error) {
	if r.Properties == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(r.Properties)
}

func copyProperties(properties map[string]any) map[string]any {
	clone := make(map[string]any, len(properties))
	for k, v := range properties {
		clone[k] = v
	}
	return clone
}

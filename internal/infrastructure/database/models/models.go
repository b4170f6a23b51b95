// Package models holds the gorm row types backing the Node Repository,
// Configuration Repository, and Vector Database (see noderow.go), plus
// the JSONB column helper they share.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONB type for PostgreSQL jsonb columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = JSONB{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// GetAllModels returns every table the Node Service composition needs:
// the single polymorphic node table, its vector-search companion, and
// the Configuration Repository's three collections (spec.md §4.A/C/E).
func GetAllModels() []interface{} {
	return []interface{}{
		&NodeRow{},
		&NodeEmbedding{},
		&AspectRow{},
		&WorkflowDefinitionRow{},
		&WorkflowInstanceRow{},
	}
}

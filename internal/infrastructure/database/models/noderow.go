// NodeRow and its companion collection rows back the Node Repository
// (§4.A) and Configuration Repository (§4.C), replacing the teacher's
// Document/Folder/Tag/Category split with the node sum type's single
// aggregate table. They reuse this package's JSONB column helper.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/pgvector/pgvector-go"
)

// StringArray stores a string slice as a json array column, portable
// across the sqlite/postgres dialector split (pq.StringArray needs a
// real postgres array type, which sqlite tests don't have).
type StringArray []string

func (a StringArray) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, a)
}

// JSONFilter stores a filters.Filter (already a plain nested slice) as
// a json column.
type JSONFilter json.RawMessage

func (f JSONFilter) Value() (driver.Value, error) {
	if len(f) == 0 {
		return "[]", nil
	}
	return string(f), nil
}

func (f *JSONFilter) Scan(value interface{}) error {
	if value == nil {
		*f = JSONFilter("[]")
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*f = JSONFilter(v)
		return nil
	case string:
		*f = JSONFilter(v)
		return nil
	default:
		return errors.New("type assertion to []byte/string failed")
	}
}

// NodeRow is the single polymorphic table backing every Node variant,
// replacing the teacher's per-entity Document/Folder/Tag/Category
// split: the spec's sum type is one aggregate, so it gets one table.
type NodeRow struct {
	UUID         string `gorm:"type:varchar(64);primaryKey"`
	Fid          string `gorm:"type:varchar(255);index"`
	Title        string `gorm:"type:varchar(255);not null"`
	Description  string `gorm:"type:text"`
	Mimetype     string `gorm:"type:varchar(255);index;not null"`
	Parent       string `gorm:"type:varchar(64);index;not null"`
	Owner        string `gorm:"type:varchar(320);index"`
	Size         int64
	CreatedTime  time.Time `gorm:"not null"`
	ModifiedTime time.Time `gorm:"not null;index"`
	Fulltext     string    `gorm:"type:text;index"`

	Tags       StringArray `gorm:"type:text"`
	Aspects    StringArray `gorm:"type:text"`
	Properties JSONB       `gorm:"type:jsonb"`

	// Folder attributes
	FolderPermissions JSONB       `gorm:"type:jsonb"`
	FolderGroup       string      `gorm:"type:varchar(64)"`
	FolderOnCreate    StringArray `gorm:"type:text"`
	FolderOnUpdate    StringArray `gorm:"type:text"`

	// SmartFolder attributes
	SmartFolderFilter JSONFilter `gorm:"type:jsonb"`

	// ApiKey attributes
	ApiKeySecret string `gorm:"type:varchar(255)"`
	ApiKeyGroup  string `gorm:"type:varchar(64)"`

	// Aspect attributes (read-view only; authoritative copy lives in
	// AspectRow, below)
	AspectProperties JSONB `gorm:"type:jsonb"`

	// Feature attributes
	FeatureExposes     StringArray `gorm:"type:text"`
	FeatureRunManual   bool
	FeatureRunOnCreate bool
	FeatureRunOnUpdate bool
	FeatureGroups      StringArray `gorm:"type:text"`

	// Agent attributes
	AgentModel        string `gorm:"type:varchar(128)"`
	AgentSystemPrompt string `gorm:"type:text"`
	AgentTemperature  float64
	AgentMaxTokens    int
	AgentFeatures     StringArray `gorm:"type:text"`
}

func (NodeRow) TableName() string { return "nodes" }

// NodeEmbedding is the pgvector-backed row implementing the Vector
// Database (spec.md §4.E): one row per indexed node, cosine-compared
// against a query embedding.
type NodeEmbedding struct {
	NodeUUID  string          `gorm:"type:varchar(64);primaryKey"`
	Embedding pgvector.Vector `gorm:"type:vector(1536)"`
	UpdatedAt time.Time
}

func (NodeEmbedding) TableName() string { return "node_embeddings" }

// AspectRow is the Configuration Repository's authoritative storage
// for aspect declarations (spec.md §4.C, §4.H).
type AspectRow struct {
	UUID         string     `gorm:"type:varchar(64);primaryKey"`
	Title        string     `gorm:"type:varchar(255);not null"`
	Description  string     `gorm:"type:text"`
	Filter       JSONFilter `gorm:"type:jsonb"`
	Properties   JSONB      `gorm:"type:jsonb"`
	CreatedTime  time.Time
	ModifiedTime time.Time
}

func (AspectRow) TableName() string { return "aspects" }

// WorkflowDefinitionRow is the Configuration Repository's storage for
// workflow definitions (spec.md §4.C).
type WorkflowDefinitionRow struct {
	UUID         string `gorm:"type:varchar(64);primaryKey"`
	Title        string `gorm:"type:varchar(255);not null"`
	Description  string `gorm:"type:text"`
	Definition   JSONB  `gorm:"type:jsonb"`
	CreatedTime  time.Time
	ModifiedTime time.Time
}

func (WorkflowDefinitionRow) TableName() string { return "workflow_definitions" }

// WorkflowInstanceRow is the Configuration Repository's storage for
// in-flight workflow instances (spec.md §4.C).
type WorkflowInstanceRow struct {
	UUID           string `gorm:"type:varchar(64);primaryKey"`
	DefinitionUUID string `gorm:"type:varchar(64);index;not null"`
	NodeUUID       string `gorm:"type:varchar(64);index;not null"`
	Status         string `gorm:"type:varchar(32);not null"`
	State          JSONB  `gorm:"type:jsonb"`
	CreatedTime    time.Time
	ModifiedTime   time.Time
}

func (WorkflowInstanceRow) TableName() string { return "workflow_instances" }

// Package nodes defines the Node sum type at the center of the ECM —
// every folder, file, aspect, feature, smart folder, API key and agent
// is one Node, discriminated by Mimetype, per spec.md §3.
package nodes

import (
	"time"

	"github.com/antbox/ecm/internal/domain/filters"
)

// Base holds the attributes every Node variant carries.
type Base struct {
	UUID         string         `json:"uuid"`
	Fid          string         `json:"fid"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Mimetype     Mimetype       `json:"mimetype"`
	Parent       string         `json:"parent"`
	Owner        string         `json:"owner"`
	Group        string         `json:"group"`
	Size         int64          `json:"size"`
	CreatedTime  time.Time      `json:"createdTime"`
	ModifiedTime time.Time      `json:"modifiedTime"`
	Tags         []string       `json:"tags"`
	Aspects      []string       `json:"aspects"`
	Properties   map[string]any `json:"properties"`
	Fulltext     string         `json:"fulltext"`
}

// FolderAttrs are the extra attributes of a Folder-mimetype node
// (spec.md §3, §4.A, §4.G). The owning group tested against
// Permissions.Group in the capability decision (§4.G step 6) is the
// node's own Base.Group.
type FolderAttrs struct {
	Permissions Permissions    `json:"permissions"`
	Filter      filters.Filter `json:"filters"`
}

// SmartFolderAttrs are the extra attributes of a SmartFolder-mimetype
// node (spec.md §3, §4.I).
type SmartFolderAttrs struct {
	Filter filters.Filter `json:"filter"`
}

// ApiKeyAttrs are the extra attributes of an APIKey-mimetype node.
type ApiKeyAttrs struct {
	Secret string   `json:"secret"`
	Group  string   `json:"group"`
}

// AspectProperty describes one declared property of an Aspect
// (spec.md §3: name, type, optional arrayType, required, readonly,
// searchable, default, validationFilters).
type AspectProperty struct {
	Name             string         `json:"name"`
	Title            string         `json:"title"`
	Type             string         `json:"type"` // string|number|boolean|date|uuid|array|object
	ArrayType        string         `json:"arrayType,omitempty"`
	Required         bool           `json:"required"`
	ReadOnly         bool           `json:"readonly"`
	Searchable       bool           `json:"searchable"`
	Default          any            `json:"default,omitempty"`
	ValidationRegex  string         `json:"validationRegex,omitempty"`
	ValidationFilter filters.Filter `json:"validationFilter,omitempty"`
	ValidationList   []string       `json:"validationList,omitempty"`
}

// AspectAttrs are the extra attributes of an Aspect-mimetype node
// (spec.md §4.H). Note: Aspects are authoritatively stored by the
// Configuration Repository (§4.C); this struct backs the Node-shaped
// read view exposed under the aspects system folder.
type AspectAttrs struct {
	Filter     filters.Filter   `json:"filters"`
	Properties []AspectProperty `json:"properties"`
}

// FeatureParameter describes one parameter a Feature accepts.
type FeatureParameter struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	ArrayType string `json:"arrayType,omitempty"`
	Required  bool   `json:"required"`
}

// FeatureAttrs are the extra attributes of a Feature-mimetype node
// (spec.md §3, invariant 9): may be exposed as an Action, an
// Extension, or an AI-Tool, carries parameters/filters/returnType and
// the run-on-lifecycle flags.
type FeatureAttrs struct {
	ExposeAction    bool               `json:"exposeAction"`
	ExposeExtension bool               `json:"exposeExtension"`
	ExposeAITool    bool               `json:"exposeAITool"`
	Parameters      []FeatureParameter `json:"parameters"`
	Filter          filters.Filter     `json:"filters"`
	ReturnType      string             `json:"returnType"`
	RunOnCreates    bool               `json:"runOnCreates"`
	RunOnUpdates    bool               `json:"runOnUpdates"`
	RunOnDeletes    bool               `json:"runOnDeletes"`
	RunManually     bool               `json:"runManually"`
	RunAs           string             `json:"runAs"`
	GroupsAllowed   []string           `json:"groupsAllowed"`
}

// AgentAttrs are the extra attributes of an Agent-mimetype node.
type AgentAttrs struct {
	Model        string   `json:"model"`
	SystemPrompt string   `json:"systemPrompt"`
	Temperature  float64  `json:"temperature"`
	MaxTokens    int      `json:"maxTokens"`
	Features     []string `json:"features"`
}

// Node is the single struct representing every variant of spec.md's
// sum type: common attributes live in Base, variant-specific
// attributes live in one of the optional pointer fields below, set
// according to Mimetype. This mirrors the teacher's single
// wide-struct-with-optional-sections approach to its Document model
// rather than a Go interface per variant.
type Node struct {
	Base

	Folder      *FolderAttrs      `json:"folder,omitempty"`
	SmartFolder *SmartFolderAttrs `json:"smartFolder,omitempty"`
	ApiKey      *ApiKeyAttrs      `json:"apiKey,omitempty"`
	Aspect      *AspectAttrs      `json:"aspect,omitempty"`
	Feature     *FeatureAttrs     `json:"feature,omitempty"`
	Agent       *AgentAttrs       `json:"agent,omitempty"`
}

func (n *Node) IsFolderLike() bool {
	return n.Mimetype == MimetypeFolder || n.Mimetype == MimetypeSmartFolder
}

func (n *Node) IsFileLike() bool {
	switch n.Mimetype {
	case MimetypeFolder, MimetypeSmartFolder, MimetypeMetaNode, MimetypeAspect,
		MimetypeFeature, MimetypeAPIKey, MimetypeAgent:
		return false
	default:
		return true
	}
}

func (n *Node) IsAspectable() bool {
	return n.IsFileLike() || n.Mimetype == MimetypeMetaNode
}

func (n *Node) IsFeatureLike() bool {
	return n.Mimetype == MimetypeFeature
}

func (n *Node) IsSmartFolder() bool {
	return n.Mimetype == MimetypeSmartFolder
}

func (n *Node) IsApiKey() bool {
	return n.Mimetype == MimetypeAPIKey
}

func (n *Node) IsAspect() bool {
	return n.Mimetype == MimetypeAspect
}

func (n *Node) IsAgent() bool {
	return n.Mimetype == MimetypeAgent
}

// HasAspect reports whether the node declares membership in the given
// aspect uuid.
func (n *Node) HasAspect(aspectUUID string) bool {
	for _, a := range n.Aspects {
		if a == aspectUUID {
			return true
		}
	}
	return false
}

// PropertyKey builds the "<aspect>:<property>" key an aspect property
// is stored/read under in Properties; ToRecord exposes it in a
// filters.Record as "properties.<key>".
func PropertyKey(aspectUUID, property string) string {
	return aspectUUID + ":" + property
}

// ToRecord projects the node into the generic map the filters package
// evaluates predicates against, decoupling filters from this package.
func (n *Node) ToRecord() filters.Record {
	record := filters.Record{
		"uuid":         n.UUID,
		"fid":          n.Fid,
		"title":        n.Title,
		"description":  n.Description,
		"mimetype":     string(n.Mimetype),
		"parent":       n.Parent,
		"owner":        n.Owner,
		"group":        n.Group,
		"size":         n.Size,
		"createdTime":  n.CreatedTime,
		"modifiedTime": n.ModifiedTime,
		"tags":         n.Tags,
		"aspects":      toAnySlice(n.Aspects),
		"fulltext":     n.Fulltext,
	}
	for k, v := range n.Properties {
		record["properties."+k] = v
	}
	return record
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

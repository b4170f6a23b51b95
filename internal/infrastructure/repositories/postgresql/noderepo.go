package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/antbox/ecm/internal/domain/apperrors"
	"github.com/antbox/ecm/internal/domain/filters"
	"github.com/antbox/ecm/internal/domain/nodes"
	"github.com/antbox/ecm/internal/domain/nodeservice"
	"github.com/antbox/ecm/internal/infrastructure/database"
	"github.com/antbox/ecm/internal/infrastructure/database/models"
	"gorm.io/gorm"
)

// FilterPage is the paginated result of NodeRepository.Filter, mirroring
// spec.md §4.A's {nodes, pageCount, pageSize, pageToken}. It is an
// alias of nodeservice.FilterPage so *NodeRepository satisfies
// nodeservice.NodeRepository without an adapter.
type FilterPage = nodeservice.FilterPage

// NodeRepository implements spec.md §4.A over a single polymorphic
// table, replacing the teacher's per-entity Document/Folder/Tag/
// Category repository split.
type NodeRepository struct {
	db    *database.DB
	locks sync.Map // uuid -> *sync.Mutex, serializes same-uuid callers (spec.md §5)
}

func NewNodeRepository(db *database.DB) *NodeRepository {
	return &NodeRepository{db: db}
}

func (r *NodeRepository) lockFor(uuid string) *sync.Mutex {
	actual, _ := r.locks.LoadOrStore(uuid, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// Bootstrap inserts the reserved, always-present folder tree of
// spec.md §6 (Root, System, and System's six sub-folders) if missing.
// Safe to call on every startup: existing rows are left untouched.
func (r *NodeRepository) Bootstrap(ctx context.Context) error {
	now := time.Now().UTC()
	seed := func(uuid, title, parent string) error {
		row := models.NodeRow{
			UUID: uuid, Fid: uuid, Title: title,
			Mimetype: string(nodes.MimetypeFolder), Parent: parent,
			Owner: nodes.RootUserEmail, CreatedTime: now, ModifiedTime: now,
			FolderPermissions: permissionsToJSONB(nodes.DefaultPermissions()),
			Tags:              models.StringArray{}, Aspects: models.StringArray{},
		}
		return r.db.WithContext(ctx).
			Where(models.NodeRow{UUID: uuid}).
			FirstOrCreate(&row).Error
	}

	if err := seed(nodes.RootFolderUUID, "Root", ""); err != nil {
		return err
	}
	if err := seed(nodes.SystemFolderUUID, "System", nodes.RootFolderUUID); err != nil {
		return err
	}
	subsystemTitles := map[string]string{
		nodes.APIKeysFolderUUID:  "API Keys",
		nodes.AspectsFolderUUID:  "Aspects",
		nodes.FeaturesFolderUUID: "Features",
		nodes.UsersFolderUUID:    "Users",
		nodes.GroupsFolderUUID:   "Groups",
		nodes.AgentsFolderUUID:   "Agents",
	}
	for _, uuid := range nodes.SystemFolderUUIDs {
		if err := seed(uuid, subsystemTitles[uuid], nodes.SystemFolderUUID); err != nil {
			return err
		}
	}
	return nil
}

// Add persists a new node. Fails if uuid or fid collide.
func (r *NodeRepository) Add(ctx context.Context, n *nodes.Node) error {
	mu := r.lockFor(n.UUID)
	mu.Lock()
	defer mu.Unlock()

	row := toRow(n)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.BadRequest("uuid or fid already exists")
		}
		return apperrors.Unknown("failed to add node", err)
	}
	return nil
}

// Update replaces the full record atomically.
func (r *NodeRepository) Update(ctx context.Context, n *nodes.Node) error {
	mu := r.lockFor(n.UUID)
	mu.Lock()
	defer mu.Unlock()

	row := toRow(n)
	result := r.db.WithContext(ctx).Model(&models.NodeRow{}).Where("uuid = ?", n.UUID).Select("*").Updates(row)
	if result.Error != nil {
		return apperrors.Unknown("failed to update node", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound(apperrors.TagNodeNotFound, "node not found: "+n.UUID)
	}
	return nil
}

// Delete removes a single node by uuid. Cascade across children is the
// node service's responsibility (it owns the tree-walk and per-node
// event publication); this method only ever touches one row.
func (r *NodeRepository) Delete(ctx context.Context, uuid string) error {
	mu := r.lockFor(uuid)
	mu.Lock()
	defer mu.Unlock()

	result := r.db.WithContext(ctx).Where("uuid = ?", uuid).Delete(&models.NodeRow{})
	if result.Error != nil {
		return apperrors.Unknown("failed to delete node", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound(apperrors.TagNodeNotFound, "node not found: "+uuid)
	}
	return nil
}

func (r *NodeRepository) GetByID(ctx context.Context, uuid string) (*nodes.Node, error) {
	var row models.NodeRow
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound(apperrors.TagNodeNotFound, "node not found: "+uuid)
		}
		return nil, apperrors.Unknown("failed to get node", err)
	}
	return fromRow(&row), nil
}

func (r *NodeRepository) GetByFid(ctx context.Context, fid string) (*nodes.Node, error) {
	var row models.NodeRow
	err := r.db.WithContext(ctx).Where("fid = ?", fid).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound(apperrors.TagNodeNotFound, "node not found for fid: "+fid)
		}
		return nil, apperrors.Unknown("failed to get node by fid", err)
	}
	return fromRow(&row), nil
}

func (r *NodeRepository) GetChildren(ctx context.Context, parent string) ([]*nodes.Node, error) {
	var rows []models.NodeRow
	if err := r.db.WithContext(ctx).Where("parent = ?", parent).Order("title ASC, uuid ASC").Find(&rows).Error; err != nil {
		return nil, apperrors.Unknown("failed to list children", err)
	}
	out := make([]*nodes.Node, len(rows))
	for i := range rows {
		out[i] = fromRow(&rows[i])
	}
	return out, nil
}

// Filter evaluates ast against every stored node and returns a
// deterministically-sorted, paginated page — a SQL pushdown on
// `parent`/`mimetype` narrows the scan when the AST's top-level
// groups agree on those fields, with filters.Engine applying the full
// predicate set in process, since some operators (`contains` on a
// dotted aspect-property path, `match` glob, case-folded `fulltext`)
// have no direct SQL translation across both the postgres and sqlite
// dialectors this repository must run under.
func (r *NodeRepository) Filter(ctx context.Context, ast filters.Filter, pageSize, pageToken int) (*FilterPage, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageToken <= 0 {
		pageToken = 1
	}

	query := r.db.WithContext(ctx).Model(&models.NodeRow{})
	if parent, ok := commonEquality(ast, "parent"); ok {
		query = query.Where("parent = ?", parent)
	}
	if mimetype, ok := commonEquality(ast, "mimetype"); ok {
		query = query.Where("mimetype = ?", mimetype)
	}

	var rows []models.NodeRow
	if err := query.Order("title ASC, uuid ASC").Find(&rows).Error; err != nil {
		return nil, apperrors.Unknown("failed to filter nodes", err)
	}

	engine := filters.NewEngine()
	matched := make([]*nodes.Node, 0, len(rows))
	for i := range rows {
		n := fromRow(&rows[i])
		if engine.Matches(n.ToRecord(), ast) {
			matched = append(matched, n)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Title != matched[j].Title {
			return matched[i].Title < matched[j].Title
		}
		return matched[i].UUID < matched[j].UUID
	})

	pageCount := (len(matched) + pageSize - 1) / pageSize
	start := (pageToken - 1) * pageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}

	return &FilterPage{
		Nodes:     matched[start:end],
		PageCount: pageCount,
		PageSize:  pageSize,
		PageToken: pageToken,
	}, nil
}

// commonEquality reports the single value every group in ast
// constrains field to via `==`, if every group agrees (used only as a
// pushdown hint; Filter always re-checks precisely via the engine).
func commonEquality(ast filters.Filter, field string) (string, bool) {
	var value string
	found := false
	for _, group := range ast {
		groupHasMatch := false
		for _, pred := range group {
			if pred.Field == field && pred.Op == filters.OpEq {
				s, ok := pred.Value.(string)
				if !ok {
					return "", false
				}
				if found && s != value {
					return "", false
				}
				value = s
				found = true
				groupHasMatch = true
			}
		}
		if len(group) > 0 && !groupHasMatch {
			return "", false
		}
	}
	return value, found
}

func toRow(n *nodes.Node) *models.NodeRow {
	row := &models.NodeRow{
		UUID:         n.UUID,
		Fid:          n.Fid,
		Title:        n.Title,
		Description:  n.Description,
		Mimetype:     string(n.Mimetype),
		Parent:       n.Parent,
		Owner:        n.Owner,
		Size:         n.Size,
		CreatedTime:  n.CreatedTime,
		ModifiedTime: n.ModifiedTime,
		Fulltext:     n.Fulltext,
		Tags:         models.StringArray(n.Tags),
		Aspects:      models.StringArray(n.Aspects),
		Properties:   models.JSONB(n.Properties),
	}
	row.FolderGroup = n.Group

	if n.Folder != nil {
		row.FolderPermissions = permissionsToJSONB(n.Folder.Permissions)
		row.SmartFolderFilter = filterToJSON(n.Folder.Filter)
	}
	if n.SmartFolder != nil {
		row.SmartFolderFilter = filterToJSON(n.SmartFolder.Filter)
	}
	if n.ApiKey != nil {
		row.ApiKeySecret = n.ApiKey.Secret
		row.ApiKeyGroup = n.ApiKey.Group
	}
	if n.Aspect != nil {
		row.AspectProperties = aspectPropertiesToJSONB(n.Aspect.Properties)
	}
	if n.Feature != nil {
		row.FeatureExposes = exposesToStringArray(n.Feature)
		row.FeatureRunManual = n.Feature.RunManually
		row.FeatureRunOnCreate = n.Feature.RunOnCreates
		row.FeatureRunOnUpdate = n.Feature.RunOnUpdates
		row.FeatureGroups = models.StringArray(n.Feature.GroupsAllowed)
	}
	if n.Agent != nil {
		row.AgentModel = n.Agent.Model
		row.AgentSystemPrompt = n.Agent.SystemPrompt
		row.AgentTemperature = n.Agent.Temperature
		row.AgentMaxTokens = n.Agent.MaxTokens
		row.AgentFeatures = models.StringArray(n.Agent.Features)
	}
	return row
}

func fromRow(row *models.NodeRow) *nodes.Node {
	n := &nodes.Node{
		Base: nodes.Base{
			UUID:         row.UUID,
			Fid:          row.Fid,
			Title:        row.Title,
			Description:  row.Description,
			Mimetype:     nodes.Mimetype(row.Mimetype),
			Parent:       row.Parent,
			Owner:        row.Owner,
			Group:        row.FolderGroup,
			Size:         row.Size,
			CreatedTime:  row.CreatedTime,
			ModifiedTime: row.ModifiedTime,
			Fulltext:     row.Fulltext,
			Tags:         []string(row.Tags),
			Aspects:      []string(row.Aspects),
			Properties:   map[string]any(row.Properties),
		},
	}

	switch n.Mimetype {
	case nodes.MimetypeFolder:
		n.Folder = &nodes.FolderAttrs{
			Permissions: permissionsFromJSONB(row.FolderPermissions),
			Filter:      filterFromJSON(row.SmartFolderFilter),
		}
	case nodes.MimetypeSmartFolder:
		n.SmartFolder = &nodes.SmartFolderAttrs{Filter: filterFromJSON(row.SmartFolderFilter)}
	case nodes.MimetypeAPIKey:
		n.ApiKey = &nodes.ApiKeyAttrs{Secret: row.ApiKeySecret, Group: row.ApiKeyGroup}
	case nodes.MimetypeAspect:
		n.Aspect = &nodes.AspectAttrs{Properties: aspectPropertiesFromJSONB(row.AspectProperties)}
	case nodes.MimetypeFeature:
		n.Feature = &nodes.FeatureAttrs{
			RunManually:   row.FeatureRunManual,
			RunOnCreates:  row.FeatureRunOnCreate,
			RunOnUpdates:  row.FeatureRunOnUpdate,
			GroupsAllowed: []string(row.FeatureGroups),
		}
		applyExposes(n.Feature, []string(row.FeatureExposes))
	case nodes.MimetypeAgent:
		n.Agent = &nodes.AgentAttrs{
			Model:        row.AgentModel,
			SystemPrompt: row.AgentSystemPrompt,
			Temperature:  row.AgentTemperature,
			MaxTokens:    row.AgentMaxTokens,
			Features:     []string(row.AgentFeatures),
		}
	}
	return n
}

func permissionsToJSONB(p nodes.Permissions) models.JSONB {
	return models.JSONB{
		"anonymous":     p.Anonymous,
		"authenticated": p.Authenticated,
		"group":         p.Group,
		"advanced":      p.Advanced,
	}
}

func permissionsFromJSONB(j models.JSONB) nodes.Permissions {
	p := nodes.DefaultPermissions()
	if j == nil {
		return p
	}
	p.Anonymous = capsFromAny(j["anonymous"])
	p.Authenticated = capsFromAny(j["authenticated"])
	p.Group = capsFromAny(j["group"])
	if advanced, ok := j["advanced"].(map[string]any); ok {
		for group, caps := range advanced {
			p.Advanced[group] = capsFromAny(caps)
		}
	}
	return p
}

func capsFromAny(v any) []nodes.Capability {
	arr, ok := v.([]any)
	if !ok {
		return []nodes.Capability{}
	}
	out := make([]nodes.Capability, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, nodes.Capability(s))
		}
	}
	return out
}

func filterToJSON(f filters.Filter) models.JSONFilter {
	b, err := json.Marshal(f)
	if err != nil {
		return models.JSONFilter("[]")
	}
	return models.JSONFilter(b)
}

func filterFromJSON(j models.JSONFilter) filters.Filter {
	var f filters.Filter
	if len(j) == 0 {
		return filters.Filter{}
	}
	if err := json.Unmarshal([]byte(j), &f); err != nil {
		return filters.Filter{}
	}
	return f
}

func aspectPropertiesToJSONB(props []nodes.AspectProperty) models.JSONB {
	b, err := json.Marshal(props)
	if err != nil {
		return models.JSONB{}
	}
	var decoded []any
	_ = json.Unmarshal(b, &decoded)
	return models.JSONB{"properties": decoded}
}

func aspectPropertiesFromJSONB(j models.JSONB) []nodes.AspectProperty {
	raw, ok := j["properties"]
	if !ok {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var props []nodes.AspectProperty
	if err := json.Unmarshal(b, &props); err != nil {
		return nil
	}
	return props
}

func exposesToStringArray(f *nodes.FeatureAttrs) models.StringArray {
	var out models.StringArray
	if f.ExposeAction {
		out = append(out, "action")
	}
	if f.ExposeExtension {
		out = append(out, "extension")
	}
	if f.ExposeAITool {
		out = append(out, "aiTool")
	}
	return out
}

func applyExposes(f *nodes.FeatureAttrs, exposes []string) {
	for _, e := range exposes {
		switch e {
		case "action":
			f.ExposeAction = true
		case "extension":
			f.ExposeExtension = true
		case "aiTool":
			f.ExposeAITool = true
		}
	}
}

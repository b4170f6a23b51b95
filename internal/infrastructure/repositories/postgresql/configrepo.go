package postgresql

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/antbox/ecm/internal/domain/apperrors"
	"github.com/antbox/ecm/internal/domain/nodes"
	"github.com/antbox/ecm/internal/infrastructure/database"
	"github.com/antbox/ecm/internal/infrastructure/database/models"
	"gorm.io/gorm"
)

// AspectRepository implements the "aspects" collection of spec.md
// §4.C: save/get/list/delete, with built-in aspects merged into list
// results and protected from mutation.
type AspectRepository struct {
	db *database.DB
}

func NewAspectRepository(db *database.DB) *AspectRepository {
	return &AspectRepository{db: db}
}

// BuiltinAspect describes a reserved, always-present aspect definition
// that ships with the system rather than being stored.
type BuiltinAspect struct {
	UUID  string
	Title string
	Attrs nodes.AspectAttrs
}

// builtins is intentionally empty in the base system — a deployment
// that ships reserved aspects registers them here.
var builtins []BuiltinAspect

func (r *AspectRepository) Save(ctx context.Context, uuid, title, description string, attrs nodes.AspectAttrs) error {
	if nodes.IsBuiltin(uuid) {
		return apperrors.BadRequest("cannot modify a built-in aspect")
	}
	b, err := json.Marshal(attrs.Properties)
	if err != nil {
		return apperrors.Unknown("failed to encode aspect properties", err)
	}
	var decoded []any
	_ = json.Unmarshal(b, &decoded)

	row := models.AspectRow{
		UUID:        uuid,
		Title:       title,
		Description: description,
		Filter:      filterToJSON(attrs.Filter),
		Properties:  models.JSONB{"properties": decoded},
	}
	if err := r.db.WithContext(ctx).Save(&row).Error; err != nil {
		return apperrors.Unknown("failed to save aspect", err)
	}
	return nil
}

func (r *AspectRepository) Get(ctx context.Context, uuid string) (*nodes.AspectAttrs, bool, error) {
	for _, b := range builtins {
		if b.UUID == uuid {
			attrs := b.Attrs
			return &attrs, true, nil
		}
	}
	var row models.AspectRow
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, apperrors.Unknown("failed to get aspect", err)
	}
	return rowToAspectAttrs(&row), true, nil
}

// GetAspect implements aspects.AspectSource.
func (r *AspectRepository) GetAspect(ctx context.Context, uuid string) (*nodes.AspectAttrs, bool, error) {
	return r.Get(ctx, uuid)
}

func (r *AspectRepository) List(ctx context.Context) ([]*nodes.Node, error) {
	var rows []models.AspectRow
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, apperrors.Unknown("failed to list aspects", err)
	}
	out := make([]*nodes.Node, 0, len(rows)+len(builtins))
	for _, b := range builtins {
		attrs := b.Attrs
		out = append(out, aspectToNode(b.UUID, b.Title, "", &attrs))
	}
	for i := range rows {
		out = append(out, aspectToNode(rows[i].UUID, rows[i].Title, rows[i].Description, rowToAspectAttrs(&rows[i])))
	}
	return out, nil
}

func (r *AspectRepository) Delete(ctx context.Context, uuid string) error {
	if nodes.IsBuiltin(uuid) {
		return apperrors.BadRequest("cannot delete a built-in aspect")
	}
	result := r.db.WithContext(ctx).Where("uuid = ?", uuid).Delete(&models.AspectRow{})
	if result.Error != nil {
		return apperrors.Unknown("failed to delete aspect", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound(apperrors.TagNodeNotFound, "aspect not found: "+uuid)
	}
	return nil
}

func rowToAspectAttrs(row *models.AspectRow) *nodes.AspectAttrs {
	filter := filterFromJSON(row.Filter)
	raw, ok := row.Properties["properties"]
	if !ok {
		return &nodes.AspectAttrs{Filter: filter}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return &nodes.AspectAttrs{Filter: filter}
	}
	var props []nodes.AspectProperty
	_ = json.Unmarshal(b, &props)
	return &nodes.AspectAttrs{Filter: filter, Properties: props}
}

func aspectToNode(uuid, title, description string, attrs *nodes.AspectAttrs) *nodes.Node {
	return &nodes.Node{
		Base: nodes.Base{
			UUID:        uuid,
			Title:       title,
			Description: description,
			Mimetype:    nodes.MimetypeAspect,
			Parent:      nodes.AspectsFolderUUID,
		},
		Aspect: attrs,
	}
}

// WorkflowDefinitionRepository implements the "workflowDefinitions"
// collection of spec.md §4.C.
type WorkflowDefinitionRepository struct {
	db *database.DB
}

func NewWorkflowDefinitionRepository(db *database.DB) *WorkflowDefinitionRepository {
	return &WorkflowDefinitionRepository{db: db}
}

func (r *WorkflowDefinitionRepository) Save(ctx context.Context, uuid, title, description string, definition map[string]any) error {
	row := models.WorkflowDefinitionRow{
		UUID:        uuid,
		Title:       title,
		Description: description,
		Definition:  models.JSONB(definition),
	}
	if err := r.db.WithContext(ctx).Save(&row).Error; err != nil {
		return apperrors.Unknown("failed to save workflow definition", err)
	}
	return nil
}

func (r *WorkflowDefinitionRepository) Get(ctx context.Context, uuid string) (*models.WorkflowDefinitionRow, error) {
	var row models.WorkflowDefinitionRow
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound(apperrors.TagNodeNotFound, "workflow definition not found: "+uuid)
		}
		return nil, apperrors.Unknown("failed to get workflow definition", err)
	}
	return &row, nil
}

func (r *WorkflowDefinitionRepository) List(ctx context.Context) ([]models.WorkflowDefinitionRow, error) {
	var rows []models.WorkflowDefinitionRow
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, apperrors.Unknown("failed to list workflow definitions", err)
	}
	return rows, nil
}

func (r *WorkflowDefinitionRepository) Delete(ctx context.Context, uuid string) error {
	result := r.db.WithContext(ctx).Where("uuid = ?", uuid).Delete(&models.WorkflowDefinitionRow{})
	if result.Error != nil {
		return apperrors.Unknown("failed to delete workflow definition", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound(apperrors.TagNodeNotFound, "workflow definition not found: "+uuid)
	}
	return nil
}

// WorkflowInstanceRepository implements the "workflowInstances"
// collection of spec.md §4.C.
type WorkflowInstanceRepository struct {
	db *database.DB
}

func NewWorkflowInstanceRepository(db *database.DB) *WorkflowInstanceRepository {
	return &WorkflowInstanceRepository{db: db}
}

func (r *WorkflowInstanceRepository) Save(ctx context.Context, row models.WorkflowInstanceRow) error {
	if err := r.db.WithContext(ctx).Save(&row).Error; err != nil {
		return apperrors.Unknown("failed to save workflow instance", err)
	}
	return nil
}

func (r *WorkflowInstanceRepository) Get(ctx context.Context, uuid string) (*models.WorkflowInstanceRow, error) {
	var row models.WorkflowInstanceRow
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound(apperrors.TagNodeNotFound, "workflow instance not found: "+uuid)
		}
		return nil, apperrors.Unknown("failed to get workflow instance", err)
	}
	return &row, nil
}

func (r *WorkflowInstanceRepository) List(ctx context.Context) ([]models.WorkflowInstanceRow, error) {
	var rows []models.WorkflowInstanceRow
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, apperrors.Unknown("failed to list workflow instances", err)
	}
	return rows, nil
}

func (r *WorkflowInstanceRepository) Delete(ctx context.Context, uuid string) error {
	result := r.db.WithContext(ctx).Where("uuid = ?", uuid).Delete(&models.WorkflowInstanceRow{})
	if result.Error != nil {
		return apperrors.Unknown("failed to delete workflow instance", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound(apperrors.TagNodeNotFound, "workflow instance not found: "+uuid)
	}
	return nil
}

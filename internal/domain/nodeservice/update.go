package nodeservice

import (
	"context"
	"fmt"
	"io"

	"github.com/antbox/ecm/internal/domain/apperrors"
	"github.com/antbox/ecm/internal/domain/events"
	"github.com/antbox/ecm/internal/domain/filters"
	"github.com/antbox/ecm/internal/domain/nodes"
)

// UpdateMetadata carries the fields a caller may change via Update.
// Pointer/nil-map fields distinguish "not supplied" from "set to the
// zero value" (spec.md §4.J update).
type UpdateMetadata struct {
	Title       *string
	Description *string
	Tags        []string
	Aspects     []string
	Properties  map[string]any
	Folder      *nodes.FolderAttrs
	SmartFolder *nodes.SmartFolderAttrs
	Feature     *nodes.FeatureAttrs
	Agent       *nodes.AgentAttrs
}

// Update implements spec.md §4.J update: disallowed for api-keys,
// readonly properties are silently preserved, aspect revalidation
// fires when aspects or properties change, and a folder filter change
// revalidates every existing child, failing atomically on the first
// non-conforming one.
func (s *Service) Update(ctx context.Context, principal Principal, uuid string, patch UpdateMetadata) (*nodes.Node, error) {
	current, err := s.resolveRef(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if nodes.IsBuiltin(current.UUID) {
		return nil, apperrors.BadRequest("cannot update a built-in node")
	}
	if current.IsApiKey() {
		return nil, apperrors.BadRequest("cannot update an api-key")
	}
	if err := s.checkOnAncestry(ctx, principal, current, nodes.Write); err != nil {
		return nil, err
	}

	before := *current
	updated := *current

	if patch.Title != nil {
		updated.Title = *patch.Title
	}
	if patch.Description != nil {
		updated.Description = *patch.Description
	}
	if patch.Tags != nil {
		updated.Tags = patch.Tags
	}

	aspectsOrPropertiesChanged := patch.Aspects != nil || patch.Properties != nil

	if patch.Aspects != nil {
		updated.Aspects = patch.Aspects
	}
	if patch.Properties != nil {
		updated.Properties = s.reseedReadonly(ctx, updated.Aspects, current.Properties, patch.Properties)
	}

	filterChanged := false
	switch {
	case patch.Folder != nil && updated.Folder != nil:
		filterChanged = !filtersEqual(updated.Folder.Filter, patch.Folder.Filter)
		updated.Folder = patch.Folder
	case patch.SmartFolder != nil && updated.IsSmartFolder():
		filterChanged = !filtersEqual(updated.SmartFolder.Filter, patch.SmartFolder.Filter)
		updated.SmartFolder = patch.SmartFolder
	case patch.Feature != nil && updated.IsFeatureLike():
		updated.Feature = patch.Feature
		if err := validateFeatureRules(updated.Feature); err != nil {
			return nil, err
		}
	case patch.Agent != nil && updated.IsAgent():
		updated.Agent = patch.Agent
	}

	if aspectsOrPropertiesChanged {
		if err := s.validator.Validate(ctx, &updated); err != nil {
			return nil, err
		}
	}

	if filterChanged && updated.Folder != nil {
		if err := s.revalidateChildren(ctx, &updated); err != nil {
			return nil, err
		}
	}

	updated.ModifiedTime = s.clock()
	updated.Fulltext = s.computeFulltext(ctx, &updated)

	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, err
	}

	changedKeys, oldValues, newValues := diffNodes(&before, &updated)
	s.bus.Publish(ctx, events.Event{
		ID: events.NodeUpdated, Node: &updated,
		ChangedKeys: changedKeys, OldValues: oldValues, NewValues: newValues,
	})
	return &updated, nil
}

// UpdateFile implements spec.md §4.J updateFile: the new file's
// mimetype must match the node's current mimetype.
func (s *Service) UpdateFile(ctx context.Context, principal Principal, uuid string, content io.Reader, mimetype string) (*nodes.Node, error) {
	current, err := s.resolveRef(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if nodes.IsBuiltin(current.UUID) {
		return nil, apperrors.BadRequest("cannot update a built-in node")
	}
	if !current.IsFileLike() {
		return nil, apperrors.BadRequest("node is not file-like")
	}
	if string(current.Mimetype) != mimetype {
		return nil, apperrors.BadRequest("mimetype of new file must match current")
	}
	if err := s.checkOnAncestry(ctx, principal, current, nodes.Write); err != nil {
		return nil, err
	}

	counter := &countingReader{r: content}
	if err := s.binary.Write(ctx, current.UUID, counter, BinaryMeta{
		Title:    current.Title,
		Parent:   current.Parent,
		Mimetype: string(current.Mimetype),
	}); err != nil {
		return nil, err
	}

	before := *current
	updated := *current
	updated.Size = counter.n
	updated.ModifiedTime = s.clock()

	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, err
	}

	changedKeys, oldValues, newValues := diffNodes(&before, &updated)
	s.bus.Publish(ctx, events.Event{
		ID: events.NodeUpdated, Node: &updated,
		ChangedKeys: changedKeys, OldValues: oldValues, NewValues: newValues,
	})
	return &updated, nil
}

// reseedReadonly merges patched properties onto the prior values and
// then restores every readonly aspect property to its prior value,
// implementing spec.md invariant 5. This is the pre-seeding step the
// aspect validator's Validate documents as the caller's
// responsibility: Validate's sanitize step only drops undeclared
// keys, it does not itself revert a readonly key the caller changed.
func (s *Service) reseedReadonly(ctx context.Context, aspectUUIDs []string, prior, patch map[string]any) map[string]any {
	merged := map[string]any{}
	for k, v := range prior {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	for _, aspectUUID := range aspectUUIDs {
		aspect, ok, err := s.aspectRepo.GetAspect(ctx, aspectUUID)
		if err != nil || !ok || aspect == nil {
			continue
		}
		for _, p := range aspect.Properties {
			if !p.ReadOnly {
				continue
			}
			key := nodes.PropertyKey(aspectUUID, p.Name)
			if priorValue, present := prior[key]; present {
				merged[key] = priorValue
			}
		}
	}
	return merged
}

// revalidateChildren checks every existing child of folder against
// its (already-updated) filter, failing on the first non-conforming
// child without persisting the folder (spec.md §4.J update, folder
// filters state machine).
func (s *Service) revalidateChildren(ctx context.Context, folder *nodes.Node) error {
	children, err := s.repo.GetChildren(ctx, folder.UUID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if !s.filters.Matches(child.ToRecord(), folder.Folder.Filter) {
			return apperrors.BadRequest(fmt.Sprintf("child %s does not satisfy the new filters", child.UUID))
		}
	}
	return nil
}

func filtersEqual(a, b filters.Filter) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// diffNodes reports the record keys whose stringified value differs
// between before and after, for the NodeUpdated event payload
// (spec.md §6: payload {uuid, oldValues, newValues}).
func diffNodes(before, after *nodes.Node) (changedKeys []string, oldValues, newValues map[string]any) {
	oldRecord := before.ToRecord()
	newRecord := after.ToRecord()
	oldValues = map[string]any{}
	newValues = map[string]any{}

	seen := map[string]bool{}
	for k := range oldRecord {
		seen[k] = true
	}
	for k := range newRecord {
		seen[k] = true
	}
	for k := range seen {
		ov, oldOK := oldRecord[k]
		nv, newOK := newRecord[k]
		if !oldOK && !newOK {
			continue
		}
		if fmt.Sprintf("%v", ov) != fmt.Sprintf("%v", nv) {
			changedKeys = append(changedKeys, k)
			oldValues[k] = ov
			newValues[k] = nv
		}
	}
	return changedKeys, oldValues, newValues
}

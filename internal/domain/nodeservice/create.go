package nodeservice

import (
	"context"
	"io"

	"github.com/antbox/ecm/internal/domain/apperrors"
	"github.com/antbox/ecm/internal/domain/events"
	"github.com/antbox/ecm/internal/domain/nodes"
)

// prepare runs the checks and default-filling common to create and
// createFile (spec.md §4.J create): parent resolution, folder-ness,
// write permission, uuid/fid generation, permission inheritance,
// parent filter containment, feature structural rules, and aspect
// validation. It does not write the binary, persist, or publish.
func (s *Service) prepare(ctx context.Context, principal Principal, meta *nodes.Node) (parent *nodes.Node, err error) {
	if meta.Parent == "" {
		return nil, apperrors.BadRequest("parent is required")
	}

	parent, err = s.resolveRef(ctx, meta.Parent)
	if err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			return nil, apperrors.NotFound(apperrors.TagFolderNotFound, "parent folder not found: "+meta.Parent)
		}
		return nil, err
	}
	if !parent.IsFolderLike() {
		return nil, apperrors.BadRequest("parent is not a folder")
	}
	if err := s.perms.Can(ctx, principal, parent, nodes.Write); err != nil {
		return nil, err
	}

	if meta.UUID == "" {
		meta.UUID = s.idgen()
	}
	if meta.Fid == "" {
		meta.Fid = meta.UUID
	}
	now := s.clock()
	meta.CreatedTime = now
	meta.ModifiedTime = now
	if meta.Owner == "" {
		meta.Owner = principal.Email
	}
	meta.Parent = parent.UUID

	if meta.Mimetype == nodes.MimetypeFolder {
		if meta.Folder == nil {
			meta.Folder = &nodes.FolderAttrs{}
		}
		if isZeroPermissions(meta.Folder.Permissions) {
			if parent.Folder != nil {
				meta.Folder.Permissions = parent.Folder.Permissions
			} else {
				meta.Folder.Permissions = nodes.DefaultPermissions()
			}
		}
	}

	if parent.Folder != nil && len(parent.Folder.Filter) > 0 {
		if !s.filters.Matches(meta.ToRecord(), parent.Folder.Filter) {
			return nil, apperrors.BadRequest("node does not satisfy parent folder's filters")
		}
	}

	if meta.Mimetype == nodes.MimetypeFeature {
		if err := validateFeatureRules(meta.Feature); err != nil {
			return nil, err
		}
	}

	if err := s.validator.Validate(ctx, meta); err != nil {
		return nil, err
	}

	return parent, nil
}

// Create implements spec.md §4.J create.
func (s *Service) Create(ctx context.Context, principal Principal, meta *nodes.Node) (*nodes.Node, error) {
	if _, err := s.prepare(ctx, principal, meta); err != nil {
		return nil, err
	}
	meta.Fulltext = s.computeFulltext(ctx, meta)

	if err := s.repo.Add(ctx, meta); err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, events.Event{ID: events.NodeCreated, Node: meta})
	return meta, nil
}

// CreateFile implements spec.md §4.J createFile: same as Create but
// writes the binary first. If the subsequent repository write fails,
// the binary is NOT rolled back — a documented weakness inherited
// from the source (spec.md §9).
func (s *Service) CreateFile(ctx context.Context, principal Principal, meta *nodes.Node, content io.Reader) (*nodes.Node, error) {
	if _, err := s.prepare(ctx, principal, meta); err != nil {
		return nil, err
	}

	counter := &countingReader{r: content}
	if err := s.binary.Write(ctx, meta.UUID, counter, BinaryMeta{
		Title:    meta.Title,
		Parent:   meta.Parent,
		Mimetype: string(meta.Mimetype),
	}); err != nil {
		return nil, err
	}
	meta.Size = counter.n
	meta.Fulltext = s.computeFulltext(ctx, meta)

	if err := s.repo.Add(ctx, meta); err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, events.Event{ID: events.NodeCreated, Node: meta})
	return meta, nil
}

// Copy implements spec.md §4.J copy: disallowed for folders,
// duplicates the binary if present, generates a new uuid/fid, and
// suffixes the title with " 2".
func (s *Service) Copy(ctx context.Context, principal Principal, uuid, newParent string) (*nodes.Node, error) {
	src, err := s.resolveRef(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if src.IsFolderLike() {
		return nil, apperrors.BadRequest("cannot copy a folder")
	}

	parent, err := s.resolveRef(ctx, newParent)
	if err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			return nil, apperrors.NotFound(apperrors.TagFolderNotFound, "parent folder not found: "+newParent)
		}
		return nil, err
	}
	if !parent.IsFolderLike() {
		return nil, apperrors.BadRequest("parent is not a folder")
	}
	if err := s.perms.Can(ctx, principal, parent, nodes.Write); err != nil {
		return nil, err
	}

	clone := *src
	clone.UUID = s.idgen()
	clone.Fid = clone.UUID
	clone.Parent = parent.UUID
	clone.Title = src.Title + " 2"
	now := s.clock()
	clone.CreatedTime = now
	clone.ModifiedTime = now

	if parent.Folder != nil && len(parent.Folder.Filter) > 0 {
		if !s.filters.Matches(clone.ToRecord(), parent.Folder.Filter) {
			return nil, apperrors.BadRequest("node does not satisfy parent folder's filters")
		}
	}

	if src.IsFileLike() {
		rc, err := s.binary.Read(ctx, src.UUID)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		if err := s.binary.Write(ctx, clone.UUID, rc, BinaryMeta{
			Title:    clone.Title,
			Parent:   clone.Parent,
			Mimetype: string(clone.Mimetype),
		}); err != nil {
			return nil, err
		}
	}

	if err := s.validator.Validate(ctx, &clone); err != nil {
		return nil, err
	}
	clone.Fulltext = s.computeFulltext(ctx, &clone)

	if err := s.repo.Add(ctx, &clone); err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, events.Event{ID: events.NodeCreated, Node: &clone})
	return &clone, nil
}

// Duplicate implements spec.md §4.J duplicate: copy into the same
// parent.
func (s *Service) Duplicate(ctx context.Context, principal Principal, uuid string) (*nodes.Node, error) {
	src, err := s.resolveRef(ctx, uuid)
	if err != nil {
		return nil, err
	}
	return s.Copy(ctx, principal, uuid, src.Parent)
}

func isZeroPermissions(p nodes.Permissions) bool {
	return len(p.Anonymous) == 0 && len(p.Authenticated) == 0 && len(p.Group) == 0 && len(p.Advanced) == 0
}

// validateFeatureRules enforces spec.md §3 invariant 9: a feature
// flagged exposeAction must carry a parameter named "uuids" of type
// array/arrayType=string, and cannot carry file-typed parameters —
// those require exposeExtension instead.
func validateFeatureRules(f *nodes.FeatureAttrs) error {
	if f == nil {
		return apperrors.BadRequest("feature attributes are required")
	}
	hasFileParam := false
	hasUUIDsParam := false
	for _, p := range f.Parameters {
		if p.Type == "file" {
			hasFileParam = true
		}
		if p.Name == "uuids" && p.Type == "array" && p.ArrayType == "string" {
			hasUUIDsParam = true
		}
	}
	if f.ExposeAction && !hasUUIDsParam {
		return apperrors.BadRequest("a feature exposed as an action must carry a uuids:array<string> parameter")
	}
	if hasFileParam && !f.ExposeExtension {
		return apperrors.BadRequest("file-typed parameters require exposeExtension")
	}
	return nil
}

// countingReader wraps an io.Reader to count bytes read, recovering
// the size of a streamed upload without buffering it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

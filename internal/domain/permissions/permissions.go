// Package permissions implements the folder ACL decision table and the
// filter-rewriting that makes list/find results permission-aware,
// spec.md §4.G.
package permissions

import (
	"context"

	"github.com/antbox/ecm/internal/domain/apperrors"
	"github.com/antbox/ecm/internal/domain/filters"
	"github.com/antbox/ecm/internal/domain/nodes"
)

// Principal is the caller a capability check is evaluated for.
type Principal struct {
	Email     string
	Groups    []string
	IsAdmin   bool
	Anonymous bool
}

// FolderGetter resolves a folder node by uuid, used to walk up the
// ancestry chain for inherited permissions.
type FolderGetter interface {
	GetNode(ctx context.Context, uuid string) (*nodes.Node, bool, error)
}

// Resolver implements the capability check and filter rewrite.
type Resolver struct {
	folders FolderGetter
}

func NewResolver(folders FolderGetter) *Resolver {
	return &Resolver{folders: folders}
}

// Can implements the 8-step decision table of spec.md §4.G verbatim,
// returning nil on allow and a tagged *apperrors.Error (Unauthorized
// for an anonymous caller, Forbidden otherwise) on deny.
func (r *Resolver) Can(ctx context.Context, principal Principal, folder *nodes.Node, capability nodes.Capability) error {
	// Step 1.
	if principal.IsAdmin || principal.Email == nodes.RootUserEmail || inGroup(principal.Groups, nodes.AdminsGroupUUID) {
		return nil
	}
	if folder == nil || folder.Folder == nil {
		return apperrors.Forbidden("target is not a folder")
	}
	perms := folder.Folder.Permissions

	// Step 2.
	if nodes.HasCapability(perms.Anonymous, capability) {
		return nil
	}
	// Step 3.
	if principal.Anonymous || principal.Email == nodes.AnonymousUserEmail {
		return apperrors.Unauthorized("anonymous caller lacks capability " + string(capability))
	}
	// Step 4.
	if folder.Owner == principal.Email {
		return nil
	}
	// Step 5.
	if nodes.HasCapability(perms.Authenticated, capability) {
		return nil
	}
	// Step 6.
	if folder.Group != "" && inGroup(principal.Groups, folder.Group) && nodes.HasCapability(perms.Group, capability) {
		return nil
	}
	// Step 7.
	for group, caps := range perms.Advanced {
		if inGroup(principal.Groups, group) && nodes.HasCapability(caps, capability) {
			return nil
		}
	}
	// Step 8.
	return apperrors.Forbidden("principal lacks capability " + string(capability))
}

// CanOnAncestry checks Can against the folder that directly owns node
// (its Parent), matching spec.md §4.J get/list: "permission check is
// against parent folder (for non-folders) or the folder itself".
func (r *Resolver) CanOnAncestry(ctx context.Context, principal Principal, node *nodes.Node, capability nodes.Capability) error {
	if principal.IsAdmin || principal.Email == nodes.RootUserEmail || inGroup(principal.Groups, nodes.AdminsGroupUUID) {
		return nil
	}
	target := node
	if node.Folder == nil {
		// Only a true Folder carries its own Permissions record (spec.md
		// §3); smart folders, files, and every other variant are checked
		// against their parent's permissions instead.
		parent, found, err := r.folders.GetNode(ctx, node.Parent)
		if err != nil {
			return err
		}
		if !found {
			return apperrors.NotFound(apperrors.TagFolderNotFound, "parent folder not found")
		}
		target = parent
	}
	return r.Can(ctx, principal, target, capability)
}

// RewriteFilter expands a caller-supplied filter into a
// disjunction-of-conjunctions that additionally restricts results to
// folders the principal may Read, by ANDing a `parent in (visible…)`
// predicate into every group (spec.md §4.G, §4.I). visibleFolderUUIDs
// is precomputed by the caller (typically the node service) by walking
// the folder tree once and testing Can per folder.
func (r *Resolver) RewriteFilter(filter filters.Filter, visibleFolderUUIDs []string) filters.Filter {
	if len(filter) == 0 {
		filter = filters.Filter{{}}
	}
	rewritten := make(filters.Filter, len(filter))
	for i, group := range filter {
		rewritten[i] = filters.WithParentIn(group, visibleFolderUUIDs)
	}
	return rewritten
}

func inGroup(groups []string, target string) bool {
	for _, g := range groups {
		if g == target {
			return true
		}
	}
	return false
}

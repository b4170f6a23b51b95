package permissions

import (
	"context"
	"testing"

	"github.com/antbox/ecm/internal/domain/apperrors"
	"github.com/antbox/ecm/internal/domain/filters"
	"github.com/antbox/ecm/internal/domain/nodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFolders struct {
	byUUID map[string]*nodes.Node
}

func (f *fakeFolders) GetNode(ctx context.Context, uuid string) (*nodes.Node, bool, error) {
	n, ok := f.byUUID[uuid]
	return n, ok, nil
}

func folderWithPerms(uuid, owner, group string, perms nodes.Permissions) *nodes.Node {
	return &nodes.Node{
		Base: nodes.Base{UUID: uuid, Mimetype: nodes.MimetypeFolder, Owner: owner, Group: group},
		Folder: &nodes.FolderAttrs{Permissions: perms},
	}
}

func TestResolver_Can_AdminAlwaysAllowed(t *testing.T) {
	r := NewResolver(&fakeFolders{})
	folder := folderWithPerms("f1", "owner@x.io", "", nodes.DefaultPermissions())
	err := r.Can(context.Background(), Principal{IsAdmin: true}, folder, nodes.Write)
	assert.NoError(t, err)
}

func TestResolver_Can_RootUserAlwaysAllowed(t *testing.T) {
	r := NewResolver(&fakeFolders{})
	folder := folderWithPerms("f1", "owner@x.io", "", nodes.DefaultPermissions())
	err := r.Can(context.Background(), Principal{Email: nodes.RootUserEmail}, folder, nodes.Write)
	assert.NoError(t, err)
}

func TestResolver_Can_AdminsGroupAlwaysAllowed(t *testing.T) {
	r := NewResolver(&fakeFolders{})
	folder := folderWithPerms("f1", "owner@x.io", "", nodes.DefaultPermissions())
	err := r.Can(context.Background(), Principal{Groups: []string{nodes.AdminsGroupUUID}}, folder, nodes.Write)
	assert.NoError(t, err)
}

func TestResolver_Can_AnonymousCapabilityGrantsEveryCaller(t *testing.T) {
	r := NewResolver(&fakeFolders{})
	perms := nodes.DefaultPermissions()
	perms.Anonymous = []nodes.Capability{nodes.Read}
	folder := folderWithPerms("f1", "owner@x.io", "", perms)

	err := r.Can(context.Background(), Principal{Anonymous: true}, folder, nodes.Read)
	assert.NoError(t, err)
}

func TestResolver_Can_AnonymousCallerDeniedWithoutAnonymousCapability(t *testing.T) {
	r := NewResolver(&fakeFolders{})
	folder := folderWithPerms("f1", "owner@x.io", "", nodes.DefaultPermissions())

	err := r.Can(context.Background(), Principal{Anonymous: true}, folder, nodes.Write)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthorized))
}

func TestResolver_Can_OwnerAlwaysAllowed(t *testing.T) {
	r := NewResolver(&fakeFolders{})
	folder := folderWithPerms("f1", "owner@x.io", "", nodes.DefaultPermissions())

	err := r.Can(context.Background(), Principal{Email: "owner@x.io"}, folder, nodes.Write)
	assert.NoError(t, err)
}

func TestResolver_Can_AuthenticatedCapabilityGrantsAnyLoggedInCaller(t *testing.T) {
	r := NewResolver(&fakeFolders{})
	perms := nodes.DefaultPermissions()
	perms.Authenticated = []nodes.Capability{nodes.Read}
	folder := folderWithPerms("f1", "owner@x.io", "", perms)

	err := r.Can(context.Background(), Principal{Email: "someone@x.io"}, folder, nodes.Read)
	assert.NoError(t, err)
}

func TestResolver_Can_GroupCapabilityRequiresMembershipInFoldersOwningGroup(t *testing.T) {
	r := NewResolver(&fakeFolders{})
	perms := nodes.DefaultPermissions()
	perms.Group = []nodes.Capability{nodes.Write}
	folder := folderWithPerms("f1", "owner@x.io", "finance", perms)

	allowed := r.Can(context.Background(), Principal{Email: "a@x.io", Groups: []string{"finance"}}, folder, nodes.Write)
	assert.NoError(t, allowed)

	denied := r.Can(context.Background(), Principal{Email: "b@x.io", Groups: []string{"sales"}}, folder, nodes.Write)
	require.Error(t, denied)
	assert.True(t, apperrors.Is(denied, apperrors.KindForbidden))
}

func TestResolver_Can_AdvancedMapGrantsPerGroupCapability(t *testing.T) {
	r := NewResolver(&fakeFolders{})
	perms := nodes.DefaultPermissions()
	perms.Advanced = map[string][]nodes.Capability{"contractors": {nodes.Read}}
	folder := folderWithPerms("f1", "owner@x.io", "", perms)

	err := r.Can(context.Background(), Principal{Email: "c@x.io", Groups: []string{"contractors"}}, folder, nodes.Read)
	assert.NoError(t, err)

	deniedCap := r.Can(context.Background(), Principal{Email: "c@x.io", Groups: []string{"contractors"}}, folder, nodes.Write)
	require.Error(t, deniedCap)
	assert.True(t, apperrors.Is(deniedCap, apperrors.KindForbidden))
}

func TestResolver_Can_FallThroughDeniesWithForbidden(t *testing.T) {
	r := NewResolver(&fakeFolders{})
	folder := folderWithPerms("f1", "owner@x.io", "", nodes.DefaultPermissions())

	err := r.Can(context.Background(), Principal{Email: "stranger@x.io"}, folder, nodes.Read)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))
}

func TestResolver_Can_NonFolderTargetIsForbidden(t *testing.T) {
	r := NewResolver(&fakeFolders{})
	notAFolder := &nodes.Node{Base: nodes.Base{UUID: "n1", Mimetype: "text/plain"}}

	err := r.Can(context.Background(), Principal{Email: "a@x.io"}, notAFolder, nodes.Read)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))
}

func TestResolver_CanOnAncestry_NonFolderChecksParent(t *testing.T) {
	perms := nodes.DefaultPermissions()
	perms.Authenticated = []nodes.Capability{nodes.Read}
	parent := folderWithPerms("parent1", "owner@x.io", "", perms)
	fakes := &fakeFolders{byUUID: map[string]*nodes.Node{"parent1": parent}}
	r := NewResolver(fakes)

	file := &nodes.Node{Base: nodes.Base{UUID: "file1", Mimetype: "text/plain", Parent: "parent1"}}
	err := r.CanOnAncestry(context.Background(), Principal{Email: "reader@x.io"}, file, nodes.Read)
	assert.NoError(t, err)
}

func TestResolver_CanOnAncestry_MissingParentIsNotFound(t *testing.T) {
	fakes := &fakeFolders{byUUID: map[string]*nodes.Node{}}
	r := NewResolver(fakes)

	file := &nodes.Node{Base: nodes.Base{UUID: "file1", Mimetype: "text/plain", Parent: "ghost"}}
	err := r.CanOnAncestry(context.Background(), Principal{Email: "reader@x.io"}, file, nodes.Read)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	assert.Equal(t, apperrors.TagFolderNotFound, apperrors.TagOf(err))
}

func TestResolver_CanOnAncestry_FolderChecksItself(t *testing.T) {
	perms := nodes.DefaultPermissions()
	perms.Authenticated = []nodes.Capability{nodes.Write}
	folder := folderWithPerms("f1", "owner@x.io", "", perms)
	r := NewResolver(&fakeFolders{})

	err := r.CanOnAncestry(context.Background(), Principal{Email: "writer@x.io"}, folder, nodes.Write)
	assert.NoError(t, err)
}

func TestResolver_RewriteFilter_AddsParentInToEveryGroup(t *testing.T) {
	r := NewResolver(&fakeFolders{})
	filter := filters.Filter{
		{{Field: "mimetype", Op: filters.OpEq, Value: "text/plain"}},
	}
	visible := []string{"f1", "f2"}

	rewritten := r.RewriteFilter(filter, visible)

	require.Len(t, rewritten, 1)
	require.Len(t, rewritten[0], 2)
	last := rewritten[0][1]
	assert.Equal(t, "parent", last.Field)
	assert.Equal(t, filters.OpIn, last.Op)
}

func TestResolver_RewriteFilter_EmptyFilterStillGetsVisibilityConstraint(t *testing.T) {
	r := NewResolver(&fakeFolders{})
	rewritten := r.RewriteFilter(filters.Filter{}, []string{"f1"})

	require.Len(t, rewritten, 1)
	require.Len(t, rewritten[0], 1)
	assert.Equal(t, "parent", rewritten[0][0].Field)
}

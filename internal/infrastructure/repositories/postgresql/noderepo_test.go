package postgresql

import (
	"context"
	"testing"

	"github.com/antbox/ecm/internal/domain/apperrors"
	"github.com/antbox/ecm/internal/domain/filters"
	"github.com/antbox/ecm/internal/domain/nodes"
	"github.com/antbox/ecm/internal/infrastructure/repositories/postgresql/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNode(parent, title, mimetype string) *nodes.Node {
	id := uuid.NewString()
	return &nodes.Node{Base: nodes.Base{
		UUID: id, Fid: id, Title: title, Mimetype: nodes.Mimetype(mimetype),
		Parent: parent, Owner: nodes.RootUserEmail,
		Tags: []string{}, Aspects: []string{}, Properties: map[string]any{},
	}}
}

func TestNodeRepository_Bootstrap_SeedsReservedFolderTree(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)
	repo := NewNodeRepository(db.DB)

	require.NoError(t, repo.Bootstrap(context.Background()))

	root, err := repo.GetByID(context.Background(), nodes.RootFolderUUID)
	require.NoError(t, err)
	assert.Equal(t, "", root.Parent)

	system, err := repo.GetByID(context.Background(), nodes.SystemFolderUUID)
	require.NoError(t, err)
	assert.Equal(t, nodes.RootFolderUUID, system.Parent)

	for _, sub := range nodes.SystemFolderUUIDs {
		n, err := repo.GetByID(context.Background(), sub)
		require.NoError(t, err)
		assert.Equal(t, nodes.SystemFolderUUID, n.Parent)
	}
}

func TestNodeRepository_Bootstrap_IsIdempotent(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)
	repo := NewNodeRepository(db.DB)

	require.NoError(t, repo.Bootstrap(context.Background()))
	require.NoError(t, repo.Bootstrap(context.Background()))

	root, err := repo.GetByID(context.Background(), nodes.RootFolderUUID)
	require.NoError(t, err)
	assert.Equal(t, "Root", root.Title)
}

func TestNodeRepository_Add_RejectsDuplicateUUID(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)
	repo := NewNodeRepository(db.DB)

	n := newNode(nodes.RootFolderUUID, "Doc", "text/plain")
	require.NoError(t, repo.Add(context.Background(), n))

	err := repo.Add(context.Background(), n)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindBadRequest))
}

func TestNodeRepository_GetByID_NotFound(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)
	repo := NewNodeRepository(db.DB)

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestNodeRepository_GetByFid_ResolvesByFid(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)
	repo := NewNodeRepository(db.DB)

	n := newNode(nodes.RootFolderUUID, "Doc", "text/plain")
	require.NoError(t, repo.Add(context.Background(), n))

	found, err := repo.GetByFid(context.Background(), n.Fid)
	require.NoError(t, err)
	assert.Equal(t, n.UUID, found.UUID)
}

func TestNodeRepository_Update_NotFoundWhenMissing(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)
	repo := NewNodeRepository(db.DB)

	err := repo.Update(context.Background(), newNode(nodes.RootFolderUUID, "Ghost", "text/plain"))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestNodeRepository_Update_PersistsChangedFields(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)
	repo := NewNodeRepository(db.DB)

	n := newNode(nodes.RootFolderUUID, "Doc", "text/plain")
	require.NoError(t, repo.Add(context.Background(), n))

	n.Title = "Renamed"
	require.NoError(t, repo.Update(context.Background(), n))

	reloaded, err := repo.GetByID(context.Background(), n.UUID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", reloaded.Title)
}

func TestNodeRepository_Update_ReplacesFullRecordIncludingClearedFields(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)
	repo := NewNodeRepository(db.DB)

	n := newNode(nodes.RootFolderUUID, "Doc", "text/plain")
	n.Description = "Initial description"
	n.Tags = []string{"a", "b"}
	n.Size = 42
	require.NoError(t, repo.Add(context.Background(), n))

	n.Title = ""
	n.Description = ""
	n.Tags = nil
	n.Size = 0
	require.NoError(t, repo.Update(context.Background(), n))

	reloaded, err := repo.GetByID(context.Background(), n.UUID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Title)
	assert.Empty(t, reloaded.Description)
	assert.Empty(t, reloaded.Tags)
	assert.Zero(t, reloaded.Size)
}

func TestNodeRepository_Delete_NotFoundWhenMissing(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)
	repo := NewNodeRepository(db.DB)

	err := repo.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestNodeRepository_Delete_RemovesOnlyTheTargetedRow(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)
	repo := NewNodeRepository(db.DB)

	parent := db.CreateTestFolder(t, nodes.RootFolderUUID)
	child := db.CreateTestFile(t, parent.UUID)

	require.NoError(t, repo.Delete(context.Background(), child.UUID))

	_, err := repo.GetByID(context.Background(), child.UUID)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	_, err = repo.GetByID(context.Background(), parent.UUID)
	require.NoError(t, err)
}

func TestNodeRepository_GetChildren_SortsByTitleThenUUID(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)
	repo := NewNodeRepository(db.DB)

	parent := db.CreateTestFolder(t, nodes.RootFolderUUID)
	require.NoError(t, repo.Add(context.Background(), newNode(parent.UUID, "Zebra", "text/plain")))
	require.NoError(t, repo.Add(context.Background(), newNode(parent.UUID, "Apple", "text/plain")))

	children, err := repo.GetChildren(context.Background(), parent.UUID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "Apple", children[0].Title)
	assert.Equal(t, "Zebra", children[1].Title)
}

func TestNodeRepository_Filter_MatchesOnMimetype(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)
	repo := NewNodeRepository(db.DB)

	require.NoError(t, repo.Add(context.Background(), newNode(nodes.RootFolderUUID, "Doc", "text/plain")))
	require.NoError(t, repo.Add(context.Background(), newNode(nodes.RootFolderUUID, "Image", "image/png")))

	ast := filters.Filter{{{Field: "mimetype", Op: filters.OpEq, Value: "text/plain"}}}
	page, err := repo.Filter(context.Background(), ast, 20, 1)
	require.NoError(t, err)
	require.Len(t, page.Nodes, 1)
	assert.Equal(t, "Doc", page.Nodes[0].Title)
}

func TestNodeRepository_Filter_PaginatesResults(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)
	repo := NewNodeRepository(db.DB)

	for _, title := range []string{"A", "B", "C", "D", "E"} {
		require.NoError(t, repo.Add(context.Background(), newNode(nodes.RootFolderUUID, title, "text/plain")))
	}

	page1, err := repo.Filter(context.Background(), filters.Filter{}, 2, 1)
	require.NoError(t, err)
	require.Len(t, page1.Nodes, 2)
	assert.Equal(t, "A", page1.Nodes[0].Title)
	assert.Equal(t, 3, page1.PageCount)

	page2, err := repo.Filter(context.Background(), filters.Filter{}, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2.Nodes, 2)
	assert.Equal(t, "C", page2.Nodes[0].Title)
}

func TestNodeRepository_ToRowFromRow_RoundTripsFolderPermissions(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)
	repo := NewNodeRepository(db.DB)

	perms := nodes.DefaultPermissions()
	perms.Anonymous = []nodes.Capability{nodes.Read}
	n := newNode(nodes.RootFolderUUID, "Folder", string(nodes.MimetypeFolder))
	n.Folder = &nodes.FolderAttrs{Permissions: perms}
	require.NoError(t, repo.Add(context.Background(), n))

	reloaded, err := repo.GetByID(context.Background(), n.UUID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Folder)
	assert.Contains(t, reloaded.Folder.Permissions.Anonymous, nodes.Read)
}

func TestNodeRepository_ToRowFromRow_RoundTripsFeatureExposeFlags(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer db.Cleanup(t)
	repo := NewNodeRepository(db.DB)

	n := newNode(nodes.FeaturesFolderUUID, "Feature", string(nodes.MimetypeFeature))
	n.Feature = &nodes.FeatureAttrs{ExposeAction: true, RunOnCreates: true}
	require.NoError(t, repo.Add(context.Background(), n))

	reloaded, err := repo.GetByID(context.Background(), n.UUID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Feature)
	assert.True(t, reloaded.Feature.ExposeAction)
	assert.True(t, reloaded.Feature.RunOnCreates)
}

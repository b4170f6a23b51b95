package nodeservice

import (
	"context"
	"testing"

	"github.com/antbox/ecm/internal/domain/apperrors"
	"github.com/antbox/ecm/internal/domain/nodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Delete_CannotDeleteBuiltin(t *testing.T) {
	repo := newFakeRepo()
	seedRootFolder(t, repo, nodes.DefaultPermissions())
	svc := newTestService(repo, newFakeBinary(), newFakeAspectRepo())

	err := svc.Delete(context.Background(), adminPrincipal(), nodes.RootFolderUUID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindBadRequest))
}

func TestService_Delete_CascadesDepthFirstThroughChildren(t *testing.T) {
	repo := newFakeRepo()
	seedRootFolder(t, repo, nodes.DefaultPermissions())
	svc := newTestService(repo, newFakeBinary(), newFakeAspectRepo())

	folder, err := svc.Create(context.Background(), adminPrincipal(), &nodes.Node{
		Base:   nodes.Base{Title: "Folder", Mimetype: nodes.MimetypeFolder, Parent: nodes.RootFolderUUID},
		Folder: &nodes.FolderAttrs{},
	})
	require.NoError(t, err)

	child, err := svc.Create(context.Background(), adminPrincipal(), &nodes.Node{
		Base: nodes.Base{Title: "Child", Mimetype: "text/plain", Parent: folder.UUID},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), adminPrincipal(), folder.UUID))

	_, err = repo.GetByID(context.Background(), folder.UUID)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	_, err = repo.GetByID(context.Background(), child.UUID)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestService_Delete_RemovesBinaryForFileLikeNodes(t *testing.T) {
	repo := newFakeRepo()
	seedRootFolder(t, repo, nodes.DefaultPermissions())
	binary := newFakeBinary()
	svc := newTestService(repo, binary, newFakeAspectRepo())

	n2, err := svc.CreateFile(context.Background(), adminPrincipal(), &nodes.Node{
		Base: nodes.Base{Title: "Doc2", Mimetype: "text/plain", Parent: nodes.RootFolderUUID},
	}, emptyReader{})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), adminPrincipal(), n2.UUID))
	_, err = binary.Read(context.Background(), n2.UUID)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

type emptyReader struct{}

func (emptyReader) Read(p []byte) (int, error) { return 0, nil }

func TestService_Delete_PublishesNodeDeleted(t *testing.T) {
	repo := newFakeRepo()
	seedRootFolder(t, repo, nodes.DefaultPermissions())
	svc := newTestService(repo, newFakeBinary(), newFakeAspectRepo())

	n, err := svc.Create(context.Background(), adminPrincipal(), &nodes.Node{
		Base: nodes.Base{Title: "Doc", Mimetype: "text/plain", Parent: nodes.RootFolderUUID},
	})
	require.NoError(t, err)

	cache := &fakeCacheInvalidator{}
	svc.cache = cache
	svc.RegisterCacheInvalidation()

	require.NoError(t, svc.Delete(context.Background(), adminPrincipal(), n.UUID))
	assert.Contains(t, cache.calls(), nodes.RootFolderUUID)
}

package nodeservice

import (
	"context"

	"github.com/antbox/ecm/internal/domain/apperrors"
	"github.com/antbox/ecm/internal/domain/events"
	"github.com/antbox/ecm/internal/domain/nodes"
)

// Delete implements spec.md §4.J delete: folder deletion cascades
// depth-first to every child, each deleted node emits NodeDeleted,
// binary content for file-like nodes is removed first, and built-ins
// can never be deleted.
func (s *Service) Delete(ctx context.Context, principal Principal, uuid string) error {
	n, err := s.resolveRef(ctx, uuid)
	if err != nil {
		return err
	}
	if nodes.IsBuiltin(n.UUID) {
		return apperrors.BadRequest("cannot delete a built-in node")
	}
	if err := s.checkOnAncestry(ctx, principal, n, nodes.Write); err != nil {
		return err
	}
	return s.deleteCascade(ctx, n)
}

func (s *Service) deleteCascade(ctx context.Context, n *nodes.Node) error {
	if n.IsFolderLike() && !n.IsSmartFolder() {
		children, err := s.repo.GetChildren(ctx, n.UUID)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.deleteCascade(ctx, child); err != nil {
				return err
			}
		}
	}

	if n.IsFileLike() {
		if err := s.binary.Delete(ctx, n.UUID); err != nil && !apperrors.Is(err, apperrors.KindNotFound) {
			return err
		}
	}
	if s.vectors != nil {
		_ = s.vectors.DeleteByNodeUuid(ctx, n.UUID)
	}

	if err := s.repo.Delete(ctx, n.UUID); err != nil {
		return err
	}
	s.bus.Publish(ctx, events.Event{ID: events.NodeDeleted, Node: n})
	return nil
}

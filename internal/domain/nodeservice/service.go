// Package nodeservice implements the Node Service public contract of
// spec.md §4.J: the single façade composing the Node Repository,
// Binary Store, Configuration Repository, Event Bus, Permission
// Resolver, Aspect Validator, Filter Engine, and the optional Vector
// Database/Models plane into create/read/update/delete/find
// operations. Grounded on the teacher's DocumentService: one struct
// holding every collaborator as an injected interface, a constructor
// wiring them together, and numbered-step methods that return early on
// the first error (document_service.go's own "Coroutine-flavored
// control flow" made explicit, per spec.md §9).
package nodeservice

import (
	"context"
	"io"
	"time"

	"github.com/antbox/ecm/internal/domain/apperrors"
	"github.com/antbox/ecm/internal/domain/aspects"
	"github.com/antbox/ecm/internal/domain/events"
	"github.com/antbox/ecm/internal/domain/filters"
	"github.com/antbox/ecm/internal/domain/nodes"
	"github.com/antbox/ecm/internal/domain/permissions"
	"github.com/antbox/ecm/pkg/logger"
)

// BinaryMeta is the advisory metadata passed to a Binary Store write,
// shared by every backend (local disk, Supabase) so they stay
// interchangeable behind the BinaryStore interface.
type BinaryMeta struct {
	Title    string
	Parent   string
	Mimetype string
}

// NodeRepository is the Node Repository contract (spec.md §4.A) the
// service depends on.
type NodeRepository interface {
	Add(ctx context.Context, n *nodes.Node) error
	Update(ctx context.Context, n *nodes.Node) error
	Delete(ctx context.Context, uuid string) error
	GetByID(ctx context.Context, uuid string) (*nodes.Node, error)
	GetByFid(ctx context.Context, fid string) (*nodes.Node, error)
	GetChildren(ctx context.Context, parent string) ([]*nodes.Node, error)
	Filter(ctx context.Context, ast filters.Filter, pageSize, pageToken int) (*FilterPage, error)
}

// FilterPage is the paginated result of NodeRepository.Filter (mirrors
// the postgresql package's own FilterPage so a concrete repository can
// satisfy this interface without an adapter).
type FilterPage struct {
	Nodes     []*nodes.Node
	PageCount int
	PageSize  int
	PageToken int
}

// BinaryStore is the Binary Store contract (spec.md §4.B).
type BinaryStore interface {
	Write(ctx context.Context, uuid string, content io.Reader, meta BinaryMeta) error
	Read(ctx context.Context, uuid string) (io.ReadCloser, error)
	Delete(ctx context.Context, uuid string) error
}

// VectorMatch is one semantic-search hit (spec.md §4.E).
type VectorMatch struct {
	NodeUUID string
	Score    float64
}

// VectorSearcher is the Vector Database contract (spec.md §4.E).
// Optional for every operation except a semantic search: with a nil
// VectorSearcher (or a nil EmbeddingModel), Find rejects any `~=`
// predicate with BadRequest; the predicate is not dropped or answered
// another way.
type VectorSearcher interface {
	Upsert(ctx context.Context, nodeUUID string, vector []float32) error
	DeleteByNodeUuid(ctx context.Context, nodeUUID string) error
	Search(ctx context.Context, vector []float32, topK int) ([]VectorMatch, error)
}

// EmbeddingModel turns text into vectors (spec.md §4.F). Optional.
type EmbeddingModel interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// OCRModel extracts text from scanned/image content (spec.md §4.F).
// Optional.
type OCRModel interface {
	OCR(ctx context.Context, content io.Reader, mimetype string) (string, error)
}

// AspectRepository is the subset of the Configuration Repository
// (spec.md §4.C) the service needs directly, beyond what the aspect
// validator already resolves through aspects.AspectSource.
type AspectRepository interface {
	aspects.AspectSource
}

// FeatureInvoker executes a Feature node's action against the node
// that triggered it (spec.md §4.J automation fan-out). Optional: a
// nil invoker makes automation a no-op, logged once per fan-out
// attempt rather than failing the triggering operation.
type FeatureInvoker interface {
	Invoke(ctx context.Context, feature *nodes.Node, target *nodes.Node) error
}

// CacheInvalidator evicts cached state keyed off a parent folder's
// uuid, invalidated on every lifecycle event touching that parent
// (spec.md §9). Optional: a nil invalidator makes cache invalidation a
// no-op.
type CacheInvalidator interface {
	InvalidateParentMtime(ctx context.Context, parentUUID string) error
}

// Principal re-exports permissions.Principal so callers only need to
// import this package.
type Principal = permissions.Principal

// Service is the Node Service façade (spec.md §4.J).
type Service struct {
	repo       NodeRepository
	binary     BinaryStore
	aspectRepo AspectRepository
	bus        *events.Bus
	perms      *permissions.Resolver
	validator  *aspects.Validator
	filters    *filters.Engine
	vectors    VectorSearcher
	embedder   EmbeddingModel
	ocr        OCRModel
	invoker    FeatureInvoker
	cache      CacheInvalidator
	idgen      func() string
	clock      func() time.Time
	log        *logger.Logger
}

// Deps bundles every collaborator the Service composes. Vectors,
// Embedder, and OCR may be left nil; without Vectors and Embedder,
// Find fails a `~=` predicate with BadRequest (see VectorSearcher).
type Deps struct {
	Repo       NodeRepository
	Binary     BinaryStore
	AspectRepo AspectRepository
	Bus        *events.Bus
	Vectors    VectorSearcher
	Embedder   EmbeddingModel
	OCR        OCRModel
	Invoker    FeatureInvoker
	Cache      CacheInvalidator
	Log        *logger.Logger
}

// New wires a Service from its collaborators, constructing the
// permission resolver and aspect validator internally since both only
// need NodeRepository (reached through the nodeGetter adapter below).
func New(d Deps) *Service {
	ng := &nodeGetter{repo: d.Repo}
	return &Service{
		repo:       d.Repo,
		binary:     d.Binary,
		aspectRepo: d.AspectRepo,
		bus:        d.Bus,
		perms:      permissions.NewResolver(ng),
		validator:  aspects.NewValidator(d.AspectRepo, ng),
		filters:    filters.NewEngine(),
		vectors:    d.Vectors,
		embedder:   d.Embedder,
		ocr:        d.OCR,
		invoker:    d.Invoker,
		cache:      d.Cache,
		idgen:      newUUID,
		clock:      nowReal,
		log:        d.Log,
	}
}

// nodeGetter adapts NodeRepository.GetByID's (node, error) shape into
// the (node, found, error) shape both aspects.NodeGetter and
// permissions.FolderGetter expect, translating NotFound into found=false
// rather than an error.
type nodeGetter struct {
	repo NodeRepository
}

func (g *nodeGetter) GetNode(ctx context.Context, uuid string) (*nodes.Node, bool, error) {
	n, err := g.repo.GetByID(ctx, uuid)
	if err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return n, true, nil
}

// resolveRef resolves a uuid-or-fid reference (spec.md §6 FID encoding)
// to the concrete node.
func (s *Service) resolveRef(ctx context.Context, ref string) (*nodes.Node, error) {
	if fid, ok := nodes.FIDFromRef(ref); ok {
		return s.repo.GetByFid(ctx, fid)
	}
	return s.repo.GetByID(ctx, ref)
}

// checkOnAncestry is a thin wrapper around the permission resolver's
// ancestry rule: a Folder node is checked against its own permissions,
// every other node against its parent folder's.
func (s *Service) checkOnAncestry(ctx context.Context, principal Principal, n *nodes.Node, cap nodes.Capability) error {
	return s.perms.CanOnAncestry(ctx, principal, n, cap)
}

package nodeservice

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/antbox/ecm/internal/domain/apperrors"
	"github.com/antbox/ecm/internal/domain/events"
	"github.com/antbox/ecm/internal/domain/filters"
	"github.com/antbox/ecm/internal/domain/nodes"
)

// fakeRepo is an in-memory stand-in for NodeRepository, mirroring the
// postgresql package's own Filter semantics (engine-evaluated, sorted
// by title then uuid, paginated) without a database.
type fakeRepo struct {
	mu    sync.Mutex
	byID  map[string]*nodes.Node
	byFid map[string]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: map[string]*nodes.Node{}, byFid: map[string]string{}}
}

func (r *fakeRepo) Add(ctx context.Context, n *nodes.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[n.UUID]; exists {
		return apperrors.BadRequest("uuid or fid already exists")
	}
	clone := *n
	r.byID[n.UUID] = &clone
	r.byFid[n.Fid] = n.UUID
	return nil
}

func (r *fakeRepo) Update(ctx context.Context, n *nodes.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[n.UUID]; !exists {
		return apperrors.NotFound(apperrors.TagNodeNotFound, "node not found: "+n.UUID)
	}
	clone := *n
	r.byID[n.UUID] = &clone
	r.byFid[n.Fid] = n.UUID
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, uuid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, exists := r.byID[uuid]
	if !exists {
		return apperrors.NotFound(apperrors.TagNodeNotFound, "node not found: "+uuid)
	}
	delete(r.byID, uuid)
	delete(r.byFid, n.Fid)
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, uuid string) (*nodes.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.byID[uuid]
	if !ok {
		return nil, apperrors.NotFound(apperrors.TagNodeNotFound, "node not found: "+uuid)
	}
	clone := *n
	return &clone, nil
}

func (r *fakeRepo) GetByFid(ctx context.Context, fid string) (*nodes.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	uuid, ok := r.byFid[fid]
	if !ok {
		return nil, apperrors.NotFound(apperrors.TagNodeNotFound, "node not found for fid: "+fid)
	}
	clone := *r.byID[uuid]
	return &clone, nil
}

func (r *fakeRepo) GetChildren(ctx context.Context, parent string) ([]*nodes.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*nodes.Node
	for _, n := range r.byID {
		if n.Parent == parent {
			clone := *n
			out = append(out, &clone)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].UUID < out[j].UUID
	})
	return out, nil
}

func (r *fakeRepo) Filter(ctx context.Context, ast filters.Filter, pageSize, pageToken int) (*FilterPage, error) {
	r.mu.Lock()
	all := make([]*nodes.Node, 0, len(r.byID))
	for _, n := range r.byID {
		clone := *n
		all = append(all, &clone)
	}
	r.mu.Unlock()

	if pageSize <= 0 {
		pageSize = 20
	}
	if pageToken <= 0 {
		pageToken = 1
	}

	engine := filters.NewEngine()
	matched := make([]*nodes.Node, 0, len(all))
	for _, n := range all {
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
	return &FilterPage{Nodes: matched[start:end], PageCount: pageCount, PageSize: pageSize, PageToken: pageToken}, nil
}

// fakeBinary is an in-memory BinaryStore.
type fakeBinary struct {
	mu      sync.Mutex
	content map[string][]byte
}

func newFakeBinary() *fakeBinary {
	return &fakeBinary{content: map[string][]byte{}}
}

func (b *fakeBinary) Write(ctx context.Context, uuid string, content io.Reader, meta BinaryMeta) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.content[uuid] = data
	return nil
}

func (b *fakeBinary) Read(ctx context.Context, uuid string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.content[uuid]
	if !ok {
		return nil, apperrors.NotFound(apperrors.TagNodeFileNotFound, "binary not found: "+uuid)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *fakeBinary) Delete(ctx context.Context, uuid string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.content[uuid]; !ok {
		return apperrors.NotFound(apperrors.TagNodeFileNotFound, "binary not found: "+uuid)
	}
	delete(b.content, uuid)
	return nil
}

// fakeAspectRepo is an in-memory AspectRepository/AspectSource.
type fakeAspectRepo struct {
	byUUID map[string]*nodes.AspectAttrs
}

func newFakeAspectRepo() *fakeAspectRepo {
	return &fakeAspectRepo{byUUID: map[string]*nodes.AspectAttrs{}}
}

func (a *fakeAspectRepo) GetAspect(ctx context.Context, uuid string) (*nodes.AspectAttrs, bool, error) {
	attrs, ok := a.byUUID[uuid]
	return attrs, ok, nil
}

// fakeInvoker records every feature invocation for automation tests.
type fakeInvoker struct {
	mu        sync.Mutex
	invoked   []string
	returnErr error
}

func (f *fakeInvoker) Invoke(ctx context.Context, feature *nodes.Node, target *nodes.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoked = append(f.invoked, feature.UUID+"->"+target.UUID)
	return f.returnErr
}

func (f *fakeInvoker) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.invoked))
	copy(out, f.invoked)
	return out
}

// fakeCacheInvalidator records every InvalidateParentMtime call.
type fakeCacheInvalidator struct {
	mu          sync.Mutex
	invalidated []string
}

func (f *fakeCacheInvalidator) InvalidateParentMtime(ctx context.Context, parentUUID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, parentUUID)
	return nil
}

func (f *fakeCacheInvalidator) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.invalidated))
	copy(out, f.invalidated)
	return out
}

// fakeVectors is an in-memory VectorSearcher.
type fakeVectors struct {
	matches []VectorMatch
}

func (v *fakeVectors) Upsert(ctx context.Context, nodeUUID string, vector []float32) error { return nil }
func (v *fakeVectors) DeleteByNodeUuid(ctx context.Context, nodeUUID string) error          { return nil }
func (v *fakeVectors) Search(ctx context.Context, vector []float32, topK int) ([]VectorMatch, error) {
	return v.matches, nil
}

// fakeEmbedder is an EmbeddingModel that returns a fixed vector per call.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// fixedClockTime is the frozen "now" every test service reports, so
// assertions on CreatedTime/ModifiedTime are deterministic.
var fixedClockTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// newTestService wires a Service over the fakes above, with a
// deterministic clock/uuid generator for assertions.
func newTestService(repo *fakeRepo, binary *fakeBinary, aspectRepo *fakeAspectRepo) *Service {
	svc := New(Deps{
		Repo:       repo,
		Binary:     binary,
		AspectRepo: aspectRepo,
		Bus:        events.NewBus(nil),
	})
	counter := 0
	svc.WithIDGenerator(func() string {
		counter++
		return "generated-uuid-" + strconv.Itoa(counter)
	})
	svc.WithClock(func() time.Time { return fixedClockTime })
	return svc
}

package nodeservice

import (
	"context"
	"encoding/json"

	"github.com/antbox/ecm/internal/domain/apperrors"
	"github.com/antbox/ecm/internal/domain/filters"
	"github.com/antbox/ecm/internal/domain/nodes"
)

// FindResult is the paginated result of Find, plus the semantic
// similarity scores when a semantic predicate fired (spec.md §4.J
// find: "Results include scores only when semantic search fired").
type FindResult struct {
	Nodes     []*nodes.Node
	PageCount int
	PageSize  int
	PageToken int
	Scores    map[string]float64
}

// Find implements spec.md §4.J find: a string query is parsed as a
// filter AST; on parse failure it is treated as a content match
// `[":content", "~=", query]`. Semantic predicates are extracted and
// executed against the vector database and embedding model, then
// rewritten to a `uuid in …` clause; the permission rewrite (§4.G) and
// @-operator resolution (§4.I) are applied per remaining conjunction.
func (s *Service) Find(ctx context.Context, principal Principal, query string, pageSize, pageToken int) (*FindResult, error) {
	filter, err := parseFilterString(query)
	if err != nil {
		filter = filters.Filter{{{Field: filters.ContentField, Op: filters.OpSemantic, Value: query}}}
	}
	return s.FindFilter(ctx, principal, filter, pageSize, pageToken)
}

// FindFilter runs find with an already-built filter AST, for callers
// that assemble the AST programmatically instead of as a string.
func (s *Service) FindFilter(ctx context.Context, principal Principal, filter filters.Filter, pageSize, pageToken int) (*FindResult, error) {
	filter, scores, err := s.resolveSemanticPredicates(ctx, filter)
	if err != nil {
		return nil, err
	}

	if !principal.IsAdmin && principal.Email != nodes.RootUserEmail {
		visible, err := s.visibleFolderUUIDs(ctx, principal)
		if err != nil {
			return nil, err
		}
		filter = s.perms.RewriteFilter(filter, visible)
	}

	filter, err = s.resolveParentPredicates(ctx, filter)
	if err != nil {
		return nil, err
	}

	page, err := s.repo.Filter(ctx, filter, pageSize, pageToken)
	if err != nil {
		return nil, err
	}
	for i := range page.Nodes {
		page.Nodes[i] = redactSecret(page.Nodes[i])
	}

	result := &FindResult{
		Nodes:     page.Nodes,
		PageCount: page.PageCount,
		PageSize:  page.PageSize,
		PageToken: page.PageToken,
	}
	if len(scores) > 0 {
		result.Scores = scores
	}
	return result, nil
}

// parseFilterString decodes the JSON filter-string grammar of
// spec.md §6: a 1-D triple `[field, op, value]`, a flat list of
// triples (implicit AND), or a full 2-D OR-of-ANDs array. The shape is
// disambiguated by inspecting element types rather than array length,
// since JSON array-into-Go-array decoding silently truncates/pads on a
// length mismatch instead of erroring.
func parseFilterString(query string) (filters.Filter, error) {
	var top []json.RawMessage
	if err := json.Unmarshal([]byte(query), &top); err != nil || len(top) == 0 {
		return nil, apperrors.BadRequest("not a filter expression")
	}

	if isJSONString(top[0]) {
		pred, err := decodeTriple(top)
		if err != nil {
			return nil, err
		}
		return filters.Filter{{pred}}, nil
	}

	var firstInner []json.RawMessage
	if err := json.Unmarshal(top[0], &firstInner); err != nil || len(firstInner) == 0 {
		return nil, apperrors.BadRequest("not a filter expression")
	}

	if isJSONString(firstInner[0]) {
		group, err := decodeGroup(top)
		if err != nil {
			return nil, err
		}
		return filters.Filter{group}, nil
	}

	f := make(filters.Filter, 0, len(top))
	for _, groupRaw := range top {
		var groupItems []json.RawMessage
		if err := json.Unmarshal(groupRaw, &groupItems); err != nil {
			return nil, apperrors.BadRequest("not a filter expression")
		}
		group, err := decodeGroup(groupItems)
		if err != nil {
			return nil, err
		}
		f = append(f, group)
	}
	return f, nil
}

func isJSONString(raw json.RawMessage) bool {
	var s string
	return json.Unmarshal(raw, &s) == nil
}

func decodeGroup(items []json.RawMessage) (filters.Group, error) {
	g := make(filters.Group, 0, len(items))
	for _, item := range items {
		var triple []json.RawMessage
		if err := json.Unmarshal(item, &triple); err != nil {
			return nil, apperrors.BadRequest("not a filter expression")
		}
		pred, err := decodeTriple(triple)
		if err != nil {
			return nil, err
		}
		g = append(g, pred)
	}
	return g, nil
}

func decodeTriple(t []json.RawMessage) (filters.Predicate, error) {
	if len(t) != 3 {
		return filters.Predicate{}, apperrors.BadRequest("filter predicate must have exactly 3 elements")
	}
	var field, op string
	var value any
	if err := json.Unmarshal(t[0], &field); err != nil {
		return filters.Predicate{}, apperrors.BadRequest("filter field must be a string")
	}
	if err := json.Unmarshal(t[1], &op); err != nil {
		return filters.Predicate{}, apperrors.BadRequest("filter op must be a string")
	}
	if err := json.Unmarshal(t[2], &value); err != nil {
		return filters.Predicate{}, apperrors.BadRequest("invalid filter value")
	}
	return filters.Predicate{Field: field, Op: filters.Op(op), Value: value}, nil
}

// resolveSemanticPredicates replaces every `~=` predicate with a
// `uuid in (…)` predicate built from the vector database's top-K
// matches for the predicate's query text, and accumulates the
// similarity scores for the result payload.
func (s *Service) resolveSemanticPredicates(ctx context.Context, filter filters.Filter) (filters.Filter, map[string]float64, error) {
	scores := map[string]float64{}
	fired := false
	rewritten := make(filters.Filter, len(filter))

	for gi, group := range filter {
		newGroup := make(filters.Group, 0, len(group))
		for _, pred := range group {
			if pred.Op != filters.OpSemantic {
				newGroup = append(newGroup, pred)
				continue
			}
			fired = true
			queryText, _ := pred.Value.(string)
			if s.embedder == nil || s.vectors == nil {
				return nil, nil, apperrors.BadRequest("semantic search is not configured")
			}
			vectors, err := s.embedder.Embed(ctx, []string{queryText})
			if err != nil || len(vectors) == 0 {
				return nil, nil, apperrors.Unknown("failed to embed semantic query", err)
			}
			matches, err := s.vectors.Search(ctx, vectors[0], 20)
			if err != nil {
				return nil, nil, err
			}
			ids := make([]any, len(matches))
			for i, m := range matches {
				ids[i] = m.NodeUUID
				scores[m.NodeUUID] = m.Score
			}
			newGroup = append(newGroup, filters.Predicate{Field: "uuid", Op: filters.OpIn, Value: ids})
		}
		rewritten[gi] = newGroup
	}
	if !fired {
		return filter, nil, nil
	}
	return rewritten, scores, nil
}

// resolveParentPredicates implements spec.md §4.I's @-operator: every
// group's @-prefixed predicates are resolved against the parent
// folder's own attributes, and the matching parent uuids become a
// `parent in (…)` predicate ANDed into that group.
func (s *Service) resolveParentPredicates(ctx context.Context, filter filters.Filter) (filters.Filter, error) {
	remainder, subQueries := s.filters.ExtractParentPredicates(filter, string(nodes.MimetypeFolder))
	rewritten := make(filters.Filter, len(remainder))
	for i, group := range remainder {
		if subQueries[i] == nil {
			rewritten[i] = group
			continue
		}
		page, err := s.repo.Filter(ctx, subQueries[i], evaluateSmartFolderPageSize, 1)
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(page.Nodes))
		for j, n := range page.Nodes {
			ids[j] = n.UUID
		}
		rewritten[i] = filters.WithParentIn(group, ids)
	}
	return rewritten, nil
}

// visibleFolderUUIDs walks the folder tree from Root, testing Read
// access per folder, to build the restriction set RewriteFilter needs
// (spec.md §4.G).
func (s *Service) visibleFolderUUIDs(ctx context.Context, principal Principal) ([]string, error) {
	var visible []string
	var walk func(folder *nodes.Node) error
	walk = func(folder *nodes.Node) error {
		if err := s.perms.Can(ctx, principal, folder, nodes.Read); err == nil {
			visible = append(visible, folder.UUID)
		}
		if folder.IsSmartFolder() {
			return nil
		}
		children, err := s.repo.GetChildren(ctx, folder.UUID)
		if err != nil {
			return err
		}
		for _, c := range children {
			if c.IsFolderLike() {
				if err := walk(c); err != nil {
					return err
				}
			}
		}
		return nil
	}
	root, err := s.repo.GetByID(ctx, nodes.RootFolderUUID)
	if err != nil {
		return nil, err
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return visible, nil
}

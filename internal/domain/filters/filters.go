// Package filters implements the filter AST and evaluation engine of
// spec.md §4.I: 1-D predicates, 2-D OR-of-ANDs groups, and the
// @-operator that rewrites a predicate about a node's parent folder
// into a containment check.
//
// The engine is deliberately decoupled from the nodes package: it
// operates on a plain Record (field name -> value), which any node
// type can produce via a ToRecord-style method. This keeps the filter
// engine reusable for permission-rewriting without an import cycle.
package filters

import (
	"fmt"
	"strings"
)

// Op is a filter comparison operator.
type Op string

const (
	OpEq          Op = "=="
	OpNeq         Op = "!="
	OpLt          Op = "<"
	OpLte         Op = "<="
	OpGt          Op = ">"
	OpGte         Op = ">="
	OpIn          Op = "in"
	OpContains    Op = "contains"
	OpSemantic    Op = "~="
	OpMatch       Op = "match"
	OpStartsWith  Op = "startsWith"
	OpEndsWith    Op = "endsWith"
)

// ContentField is the virtual field that denotes a semantic-search
// predicate rather than a structured comparison.
const ContentField = ":content"

// Predicate is a 1-D filter: (field, op, value).
type Predicate struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// Group is a conjunction (AND) of predicates.
type Group []Predicate

// Filter is a 2-D filter: a disjunction (OR) of conjunctions (AND).
// An empty Filter matches every record (spec.md §4.I tie-break).
type Filter []Group

// IsParentPredicate reports whether p is an @-operator predicate.
func (p Predicate) IsParentPredicate() bool {
	return strings.HasPrefix(p.Field, "@")
}

// ParentField strips the @ prefix, yielding the field to test against
// the parent folder.
func (p Predicate) ParentField() string {
	return strings.TrimPrefix(p.Field, "@")
}

// Record is the generic field->value view a node exposes to the
// engine. Dotted aspect-property paths use the key
// "properties.<aspectUuid>:<name>"; the "aspects" key holds the
// membership array ([]string).
type Record map[string]any

// Engine evaluates predicates against Records.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Matches reports whether record satisfies filter. An empty filter
// (no groups, or a single empty group) matches everything.
func (e *Engine) Matches(record Record, filter Filter) bool {
	if len(filter) == 0 {
		return true
	}
	for _, group := range filter {
		if e.matchesGroup(record, group) {
			return true
		}
	}
	return false
}

func (e *Engine) matchesGroup(record Record, group Group) bool {
	if len(group) == 0 {
		return true
	}
	for _, pred := range group {
		if !e.matchesPredicate(record, pred) {
			return false
		}
	}
	return true
}

func (e *Engine) matchesPredicate(record Record, pred Predicate) bool {
	if pred.IsParentPredicate() {
		// Unresolved @-predicates are handled by ExtractParentPredicates
		// + the repository-level rewrite before Matches is called; if one
		// reaches here unresolved it can never match a plain record.
		return false
	}
	value, ok := record[pred.Field]
	if !ok {
		return false
	}
	return evalOp(value, pred.Op, pred.Value)
}

// ExtractParentPredicates splits filter into the @-free remainder and,
// per group, the sub-query that must be run against folders to resolve
// the @-predicates in that group (spec.md §4.I steps 1-3). Every
// sub-query is conjoined with `mimetype == folderMimetype` so the
// resolved uuids can only ever be folders, per step 1. A group with no
// @-predicates yields a nil sub-query.
func (e *Engine) ExtractParentPredicates(filter Filter, folderMimetype string) (remainder Filter, subQueries []Filter) {
	remainder = make(Filter, len(filter))
	subQueries = make([]Filter, len(filter))
	for gi, group := range filter {
		var plain Group
		var parentGroup Group
		for _, pred := range group {
			if pred.IsParentPredicate() {
				parentGroup = append(parentGroup, Predicate{Field: pred.ParentField(), Op: pred.Op, Value: pred.Value})
			} else {
				plain = append(plain, pred)
			}
		}
		remainder[gi] = plain
		if len(parentGroup) > 0 {
			parentGroup = append(parentGroup, Predicate{Field: "mimetype", Op: OpEq, Value: folderMimetype})
			subQueries[gi] = Filter{parentGroup}
		}
	}
	return remainder, subQueries
}

// WithParentIn returns a copy of group with an added `parent in ids`
// predicate, used after a parent sub-query resolves (step 3).
func WithParentIn(group Group, ids []string) Group {
	anyIDs := make([]any, len(ids))
	for i, id := range ids {
		anyIDs[i] = id
	}
	out := make(Group, len(group), len(group)+1)
	copy(out, group)
	return append(out, Predicate{Field: "parent", Op: OpIn, Value: anyIDs})
}

func evalOp(field any, op Op, want any) bool {
	switch op {
	case OpEq:
		return equal(field, want)
	case OpNeq:
		return !equal(field, want)
	case OpLt, OpLte, OpGt, OpGte:
		return compare(field, op, want)
	case OpIn:
		return in(field, want)
	case OpContains:
		return contains(field, want)
	case OpStartsWith:
		fs, ok1 := field.(string)
		ws, ok2 := want.(string)
		return ok1 && ok2 && strings.HasPrefix(fs, ws)
	case OpEndsWith:
		fs, ok1 := field.(string)
		ws, ok2 := want.(string)
		return ok1 && ok2 && strings.HasSuffix(fs, ws)
	case OpMatch:
		fs, ok1 := field.(string)
		ws, ok2 := want.(string)
		return ok1 && ok2 && globMatch(ws, fs)
	case OpSemantic:
		// Semantic predicates are resolved before reaching the engine
		// (spec.md §4.J find); if one survives, it trivially fails.
		return false
	default:
		return false
	}
}

func equal(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compare(field any, op Op, want any) bool {
	af, aok := toFloat(field)
	bf, bok := toFloat(want)
	if aok && bok {
		switch op {
		case OpLt:
			return af < bf
		case OpLte:
			return af <= bf
		case OpGt:
			return af > bf
		case OpGte:
			return af >= bf
		}
	}
	as, aok := field.(string)
	bs, bok := want.(string)
	if aok && bok {
		switch op {
		case OpLt:
			return as < bs
		case OpLte:
			return as <= bs
		case OpGt:
			return as > bs
		case OpGte:
			return as >= bs
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func in(field, want any) bool {
	values, ok := want.([]any)
	if !ok {
		return false
	}
	for _, v := range values {
		if equal(field, v) {
			return true
		}
	}
	return false
}

func contains(field, want any) bool {
	arr, ok := field.([]string)
	if ok {
		ws := fmt.Sprintf("%v", want)
		for _, v := range arr {
			if v == ws {
				return true
			}
		}
		return false
	}
	arrAny, ok := field.([]any)
	if ok {
		for _, v := range arrAny {
			if equal(v, want) {
				return true
			}
		}
		return false
	}
	return false
}

// globMatch implements simple `*`/`?` glob matching for the `match`
// operator.
func globMatch(pattern, s string) bool {
	return globMatchRec(pattern, s)
}

func globMatchRec(pattern, s string) bool {
	if pattern == "" {
		return s == ""
	}
	switch pattern[0] {
	case '*':
		if globMatchRec(pattern[1:], s) {
			return true
		}
		for i := 0; i < len(s); i++ {
			if globMatchRec(pattern[1:], s[i+1:]) {
				return true
			}
		}
		return false
	case '?':
		if len(s) == 0 {
			return false
		}
		return globMatchRec(pattern[1:], s[1:])
	default:
		if len(s) == 0 || s[0] != pattern[0] {
			return false
		}
		return globMatchRec(pattern[1:], s[1:])
	}
}

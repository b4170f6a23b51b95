// Package aspects implements schema validation for aspect-tagged
// nodes, spec.md §4.H: sanitizing declared properties, type-checking
// values, resolving uuid-typed cross-references, and aggregating every
// failure into a single ValidationError.
package aspects

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/antbox/ecm/internal/domain/apperrors"
	"github.com/antbox/ecm/internal/domain/filters"
	"github.com/antbox/ecm/internal/domain/nodes"
)

// NodeGetter resolves a node by uuid. Implemented by the node service;
// kept as a narrow interface here so this package never imports
// nodeservice (which imports aspects), avoiding a cycle.
type NodeGetter interface {
	GetNode(ctx context.Context, uuid string) (*nodes.Node, bool, error)
}

// AspectSource resolves an aspect's declaration by uuid. Implemented
// by the configuration repository.
type AspectSource interface {
	GetAspect(ctx context.Context, uuid string) (*nodes.AspectAttrs, bool, error)
}

// Validator validates a node's properties against the aspects it
// declares membership in.
type Validator struct {
	aspectSource AspectSource
	nodeGetter   NodeGetter
	filterEngine *filters.Engine
}

func NewValidator(aspectSource AspectSource, nodeGetter NodeGetter) *Validator {
	return &Validator{aspectSource: aspectSource, nodeGetter: nodeGetter, filterEngine: filters.NewEngine()}
}

// Validate sanitizes and checks n.Properties against every aspect in
// n.Aspects, mutating n.Properties in place to drop undeclared keys
// (spec.md §4.H step 2) and returning a single aggregated
// *apperrors.Error with Kind == ValidationError if anything fails.
func (v *Validator) Validate(ctx context.Context, n *nodes.Node) error {
	if len(n.Aspects) == 0 {
		n.Properties = map[string]any{}
		return nil
	}

	declaredKeys := map[string]bool{}
	var props []apperrors.PropertyError

	for _, aspectUUID := range n.Aspects {
		aspect, ok, err := v.aspectSource.GetAspect(ctx, aspectUUID)
		if err != nil {
			return apperrors.Unknown("failed to resolve aspect", err)
		}
		if !ok {
			props = append(props, apperrors.PropertyError{AspectUUID: aspectUUID, Reason: "aspect not found"})
			continue
		}
		for _, p := range aspect.Properties {
			declaredKeys[nodes.PropertyKey(aspectUUID, p.Name)] = true
		}
	}

	// Step 2: drop undeclared keys (sanitize).
	sanitized := map[string]any{}
	for key, value := range n.Properties {
		if declaredKeys[key] {
			sanitized[key] = value
		}
	}

	// Step 3: type-check and resolve references per declared property.
	for _, aspectUUID := range n.Aspects {
		aspect, ok, _ := v.aspectSource.GetAspect(ctx, aspectUUID)
		if !ok || aspect == nil {
			continue
		}
		for _, p := range aspect.Properties {
			key := nodes.PropertyKey(aspectUUID, p.Name)
			value, present := sanitized[key]

			if p.ReadOnly {
				// Readonly properties are set once at creation and
				// silently preserved thereafter (spec.md §4.H); the
				// caller is responsible for re-seeding sanitized with
				// the prior value before calling Validate on update.
				continue
			}

			if !present {
				if p.Required {
					props = append(props, apperrors.PropertyError{AspectUUID: aspectUUID, Property: p.Name, Reason: "required property missing"})
				}
				continue
			}

			if err := v.checkType(ctx, p, value); err != nil {
				props = append(props, apperrors.PropertyError{AspectUUID: aspectUUID, Property: p.Name, Reason: err.Error()})
			}
		}
	}

	n.Properties = sanitized

	if len(props) > 0 {
		return apperrors.Validation(props)
	}
	return nil
}

func (v *Validator) checkType(ctx context.Context, p nodes.AspectProperty, value any) error {
	switch p.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string")
		}
		if p.ValidationRegex != "" {
			re, err := regexp.Compile(p.ValidationRegex)
			if err != nil {
				return fmt.Errorf("invalid validation regex")
			}
			if !re.MatchString(s) {
				return fmt.Errorf("does not match pattern")
			}
		}
		if len(p.ValidationList) > 0 && !contains(p.ValidationList, s) {
			return fmt.Errorf("not in allowed list")
		}
		return nil
	case "number":
		switch value.(type) {
		case float64, float32, int, int64:
			return nil
		case string:
			if _, err := strconv.ParseFloat(value.(string), 64); err == nil {
				return nil
			}
		}
		return fmt.Errorf("expected number")
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean")
		}
		return nil
	case "uuid":
		ref, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected uuid string")
		}
		if v.nodeGetter == nil {
			return nil
		}
		target, found, err := v.nodeGetter.GetNode(ctx, ref)
		if err != nil {
			return fmt.Errorf("failed to resolve reference: %w", err)
		}
		if !found {
			return fmt.Errorf("referenced node not found")
		}
		if len(p.ValidationFilter) > 0 && !v.filterEngine.Matches(target.ToRecord(), p.ValidationFilter) {
			return fmt.Errorf("referenced node does not satisfy validation filter")
		}
		return nil
	case "array":
		elems, ok := toAnySlice(value)
		if !ok {
			return fmt.Errorf("expected array")
		}
		if p.ArrayType == "" {
			return nil
		}
		elemProp := p
		elemProp.Type = p.ArrayType
		for i, elem := range elems {
			if err := v.checkType(ctx, elemProp, elem); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		return nil
	default:
		return nil
	}
}

func toAnySlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

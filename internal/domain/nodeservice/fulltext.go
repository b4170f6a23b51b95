package nodeservice

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/antbox/ecm/internal/domain/nodes"
)

// minFulltextTokenLength drops short tokens (articles, prepositions)
// from the derived fulltext field, per spec.md §9/GLOSSARY.
const minFulltextTokenLength = 4

// computeFulltext derives the lowercased, diacritic-folded,
// short-token-stripped concatenation of title, description, tags, and
// searchable aspect property values (spec.md §9, GLOSSARY "Fulltext").
// It is recomputed on every write; the client-supplied value, if any,
// is always discarded.
func (s *Service) computeFulltext(ctx context.Context, n *nodes.Node) string {
	parts := []string{n.Title, n.Description}
	parts = append(parts, n.Tags...)

	for _, aspectUUID := range n.Aspects {
		aspect, ok, err := s.aspectRepo.GetAspect(ctx, aspectUUID)
		if err != nil || !ok || aspect == nil {
			continue
		}
		for _, p := range aspect.Properties {
			if !p.Searchable {
				continue
			}
			key := nodes.PropertyKey(aspectUUID, p.Name)
			if v, present := n.Properties[key]; present {
				parts = append(parts, fmt.Sprintf("%v", v))
			}
		}
	}

	return foldFulltext(strings.Join(parts, " "))
}

// foldFulltext applies Unicode NFD decomposition, strips combining
// marks (diacritic folding targeting Latin-script languages, per
// spec.md §9's open question), lowercases, and drops short tokens.
func foldFulltext(s string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		s,
	)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	tokens := strings.Fields(folded)
	kept := tokens[:0]
	for _, t := range tokens {
		if len(t) >= minFulltextTokenLength {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, " ")
}

// Package selector generates and ranks durable selectors for page elements.
//
// Candidates are built from a serialized page.ElementDescriptor in a fixed
// priority order (test-id attribute, ARIA label, id, class combination,
// structural CSS path, XPath, text) and scored by how stable that kind of
// selector tends to be. A Resolver reports how many elements a candidate
// currently matches; candidates that are not unique are scored down.
package selector

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/entrhq/journeyforge/pkg/page"
)

// Type is the family a suggestion belongs to.
type Type string

const (
	TypeData  Type = "data"
	TypeAria  Type = "aria"
	TypeCSS   Type = "css"
	TypeXPath Type = "xpath"
	TypeText  Type = "text"
)

// Base reliabilities per priority tier.
const (
	reliabilityData      = 1.0
	reliabilityAria      = 0.9
	reliabilityID        = 0.85
	reliabilityClass     = 0.7
	reliabilityStructure = 0.5
	reliabilityXPath     = 0.4
	reliabilityText      = 0.3

	ambiguousPenalty = 0.5
	missingPenalty   = 0.25

	maxTextLength = 50
)

// TestIDAttributes are the attributes treated as explicit test hooks, in
// preference order.
var TestIDAttributes = []string{"data-testid", "data-test", "data-cy", "data-qa"}

// stateClasses are toggled by UI state and make poor selectors.
var stateClasses = map[string]bool{
	"active": true, "hover": true, "focus": true, "focused": true,
	"selected": true, "disabled": true, "open": true, "visible": true,
}

var identRe = regexp.MustCompile(`^-?[A-Za-z_][A-Za-z0-9_-]*$`)

// Suggestion is one ranked candidate selector.
type Suggestion struct {
	Type        Type    `json:"type"`
	Selector    string  `json:"selector"`
	Reliability float64 `json:"reliability"`

	// Matches is the number of elements the selector resolved to, or -1
	// when it was not resolved.
	Matches int `json:"matches"`
}

// Unique reports whether the suggestion resolved to exactly one element.
func (s Suggestion) Unique() bool {
	return s.Matches == 1
}

// Resolver counts the elements a selector currently matches.
type Resolver interface {
	Count(ctx context.Context, selector string) (int, error)
}

// Candidates returns unresolved suggestions for desc in priority order.
func Candidates(desc *page.ElementDescriptor) []Suggestion {
	if desc == nil {
		return nil
	}
	var out []Suggestion
	add := func(t Type, sel string, r float64) {
		for _, existing := range out {
			if existing.Selector == sel {
				return
			}
		}
		out = append(out, Suggestion{Type: t, Selector: sel, Reliability: r, Matches: -1})
	}

	for _, attr := range TestIDAttributes {
		if v := desc.Attr(attr); v != "" {
			add(TypeData, attributeSelector(attr, v), reliabilityData)
		}
	}
	if v := desc.Attr("aria-label"); v != "" {
		add(TypeAria, attributeSelector("aria-label", v), reliabilityAria)
	}
	if desc.ID != "" {
		if identRe.MatchString(desc.ID) {
			add(TypeCSS, "#"+desc.ID, reliabilityID)
		} else {
			add(TypeCSS, attributeSelector("id", desc.ID), reliabilityID)
		}
	}
	if sel := classSelector(desc); sel != "" {
		add(TypeCSS, sel, reliabilityClass)
	}
	if desc.CSSPath != "" {
		add(TypeCSS, desc.CSSPath, reliabilityStructure)
	}
	if desc.XPath != "" {
		add(TypeXPath, "xpath="+desc.XPath, reliabilityXPath)
	}
	if text := strings.TrimSpace(desc.Text); text != "" && len(text) <= maxTextLength {
		add(TypeText, page.TextSelector(text), reliabilityText)
	}
	return out
}

func attributeSelector(name, value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `"`, `\"`)
	return "[" + name + `="` + value + `"]`
}

func classSelector(desc *page.ElementDescriptor) string {
	var classes []string
	for _, c := range desc.Classes {
		if c == "" || stateClasses[c] || !identRe.MatchString(c) {
			continue
		}
		classes = append(classes, c)
	}
	if len(classes) == 0 {
		return ""
	}
	tag := strings.ToLower(desc.Tag)
	if tag == "" {
		tag = "*"
	}
	return tag + "." + strings.Join(classes, ".")
}

// Suggester resolves candidates against a Resolver and ranks them.
type Suggester struct{}

// NewSuggester returns a Suggester.
func NewSuggester() *Suggester {
	return &Suggester{}
}

// Suggest returns every candidate for desc sorted by adjusted reliability.
// Candidates that are not unique keep their place in the list with a
// reduced score. Ties keep priority order.
func (s *Suggester) Suggest(ctx context.Context, resolver Resolver, desc *page.ElementDescriptor) ([]Suggestion, error) {
	candidates, err := s.resolve(ctx, resolver, desc)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Reliability > candidates[j].Reliability
	})
	return candidates, nil
}

// Best returns the first candidate in priority order that resolves to
// exactly one element, plus up to maxFallbacks further unique candidates.
// ok is false when no candidate is unique.
func (s *Suggester) Best(ctx context.Context, resolver Resolver, desc *page.ElementDescriptor, maxFallbacks int) (best Suggestion, fallbacks []Suggestion, ok bool, err error) {
	candidates, err := s.resolve(ctx, resolver, desc)
	if err != nil {
		return Suggestion{}, nil, false, err
	}
	for _, c := range candidates {
		if !c.Unique() {
			continue
		}
		if !ok {
			best, ok = c, true
			continue
		}
		if len(fallbacks) < maxFallbacks {
			fallbacks = append(fallbacks, c)
		}
	}
	return best, fallbacks, ok, nil
}

func (s *Suggester) resolve(ctx context.Context, resolver Resolver, desc *page.ElementDescriptor) ([]Suggestion, error) {
	candidates := Candidates(desc)
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := resolver.Count(ctx, candidates[i].Selector)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			n = 0
		}
		candidates[i].Matches = n
		switch {
		case n == 0:
			candidates[i].Reliability *= missingPenalty
		case n > 1:
			candidates[i].Reliability *= ambiguousPenalty
		}
	}
	return candidates, nil
}

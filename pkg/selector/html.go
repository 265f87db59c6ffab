package selector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/entrhq/journeyforge/pkg/page"
)

// HTMLResolver counts matches against a parsed HTML snapshot instead of the
// live page. CSS selectors go through cascadia; exact text selectors and
// absolute positional XPath are matched here.
type HTMLResolver struct {
	root     *html.Node
	elements []*html.Node
}

// NewHTMLResolver parses doc.
func NewHTMLResolver(doc string) (*HTMLResolver, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	r := &HTMLResolver{root: root}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			r.elements = append(r.elements, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return r, nil
}

// SnapshotResolver builds an HTMLResolver from the current content of p.
func SnapshotResolver(ctx context.Context, p page.Controller) (*HTMLResolver, error) {
	doc, err := p.Content(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}
	return NewHTMLResolver(doc)
}

// Count implements Resolver.
func (r *HTMLResolver) Count(ctx context.Context, selector string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	kind, expr := page.ParseSelector(selector)
	switch kind {
	case page.SelectorText:
		return r.countText(expr), nil
	case page.SelectorXPath:
		return r.countXPath(expr)
	default:
		sel, err := cascadia.Compile(expr)
		if err != nil {
			return 0, fmt.Errorf("invalid css selector %q: %w", expr, err)
		}
		return len(sel.MatchAll(r.root)), nil
	}
}

func (r *HTMLResolver) countText(want string) int {
	n := 0
	for _, el := range r.elements {
		if !inBody(el) || normalizedText(el) != want {
			continue
		}
		inner := false
		for c := el.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && normalizedText(c) == want {
				inner = true
				break
			}
		}
		if !inner {
			n++
		}
	}
	return n
}

func inBody(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "body" {
			return true
		}
	}
	return false
}

func normalizedText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		case n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style"):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// countXPath resolves absolute positional paths such as
// /html[1]/body[1]/div[2]. Such a path matches at most one element.
func (r *HTMLResolver) countXPath(expr string) (int, error) {
	if !strings.HasPrefix(expr, "/") || strings.HasPrefix(expr, "//") {
		return 0, fmt.Errorf("unsupported xpath %q", expr)
	}
	current := r.root
	for _, seg := range strings.Split(strings.TrimPrefix(expr, "/"), "/") {
		tag, idx := seg, 1
		if open := strings.IndexByte(seg, '['); open >= 0 {
			if !strings.HasSuffix(seg, "]") {
				return 0, fmt.Errorf("unsupported xpath segment %q", seg)
			}
			n, err := strconv.Atoi(seg[open+1 : len(seg)-1])
			if err != nil {
				return 0, fmt.Errorf("unsupported xpath segment %q", seg)
			}
			tag, idx = seg[:open], n
		}
		var next *html.Node
		seen := 0
		for c := current.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == tag {
				seen++
				if seen == idx {
					next = c
					break
				}
			}
		}
		if next == nil {
			return 0, nil
		}
		current = next
	}
	return 1, nil
}

package selector

import (
	"context"
	"fmt"

	"github.com/entrhq/journeyforge/pkg/page"
)

// countScript counts matches for one selector inside the page. Text
// selectors match the innermost elements whose normalized text equals the
// expression exactly.
const countScript = `(arg) => {
  const norm = (el) => (el.innerText || el.textContent || '').trim().replace(/\s+/g, ' ');
  try {
    if (arg.kind === 'xpath') {
      return document.evaluate(arg.expr, document, null,
        XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null).snapshotLength;
    }
    if (arg.kind === 'text') {
      let n = 0;
      for (const el of document.querySelectorAll('body *')) {
        if (norm(el) !== arg.expr) continue;
        if (Array.from(el.children).some((c) => norm(c) === arg.expr)) continue;
        n++;
      }
      return n;
    }
    return document.querySelectorAll(arg.expr).length;
  } catch (e) {
    return -1;
  }
}`

// PageResolver counts matches in a live page.
type PageResolver struct {
	page page.Controller
}

// NewPageResolver returns a resolver backed by p.
func NewPageResolver(p page.Controller) *PageResolver {
	return &PageResolver{page: p}
}

// Count implements Resolver.
func (r *PageResolver) Count(ctx context.Context, selector string) (int, error) {
	kind, expr := page.ParseSelector(selector)
	result, err := r.page.Evaluate(ctx, countScript, map[string]any{
		"kind":     string(kind),
		"expr":     expr,
		"selector": selector,
	})
	if err != nil {
		return 0, err
	}
	n, ok := toInt(result)
	if !ok {
		return 0, fmt.Errorf("unexpected count result %T", result)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid selector %q", selector)
	}
	return n, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

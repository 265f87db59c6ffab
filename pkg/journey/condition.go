package journey

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/journeyforge/pkg/page"
	"github.com/entrhq/journeyforge/pkg/selector"
)

// Condition is what an assert or wait step checks. Exactly one of
// Predicate and Compare is set. In YAML and JSON a bare string is shorthand
// for a predicate name without arguments.
type Condition struct {
	// Predicate names an entry in the Predicates registry.
	Predicate string            `yaml:"predicate,omitempty" json:"predicate,omitempty"`
	Args      map[string]string `yaml:"args,omitempty" json:"args,omitempty"`

	Compare *Comparison `yaml:"compare,omitempty" json:"compare,omitempty"`
}

// Field is the page property a comparison reads.
type Field string

const (
	FieldURL       Field = "url"
	FieldTitle     Field = "title"
	FieldText      Field = "text"
	FieldValue     Field = "value"
	FieldAttribute Field = "attribute"
	FieldCount     Field = "count"
	FieldVisible   Field = "visible"
)

// Operator compares the field against Value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpMatches     Operator = "matches"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
	OpGreater     Operator = "gt"
	OpGreaterEq   Operator = "gte"
	OpLess        Operator = "lt"
	OpLessEq      Operator = "lte"
)

var operators = map[Operator]bool{
	OpEquals: true, OpNotEquals: true, OpContains: true, OpNotContains: true,
	OpMatches: true, OpExists: true, OpNotExists: true,
	OpGreater: true, OpGreaterEq: true, OpLess: true, OpLessEq: true,
}

// Comparison is a structured check evaluated by a fixed page-side function.
// Value is data only; for OpMatches it is a regular expression.
type Comparison struct {
	Field     Field    `yaml:"field" json:"field"`
	Selector  string   `yaml:"selector,omitempty" json:"selector,omitempty"`
	Attribute string   `yaml:"attribute,omitempty" json:"attribute,omitempty"`
	Operator  Operator `yaml:"operator" json:"operator"`
	Value     string   `yaml:"value,omitempty" json:"value,omitempty"`
}

// UnmarshalJSON accepts either an object or a predicate name.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*c = Condition{Predicate: name}
		return nil
	}
	type plain Condition
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Condition(p)
	return nil
}

// UnmarshalYAML accepts either a mapping or a predicate name.
func (c *Condition) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*c = Condition{Predicate: node.Value}
		return nil
	}
	type plain Condition
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = Condition(p)
	return nil
}

// Validate checks the condition's shape.
func (c *Condition) Validate() error {
	switch {
	case c.Predicate != "" && c.Compare != nil:
		return fmt.Errorf("condition sets both predicate and compare")
	case c.Predicate != "":
		return nil
	case c.Compare != nil:
		return c.Compare.Validate()
	default:
		return fmt.Errorf("condition must set predicate or compare")
	}
}

// String renders the condition for descriptions and logs.
func (c *Condition) String() string {
	if c == nil {
		return ""
	}
	if c.Predicate != "" {
		if len(c.Args) == 0 {
			return c.Predicate
		}
		keys := make([]string, 0, len(c.Args))
		for k := range c.Args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + c.Args[k]
		}
		return c.Predicate + "(" + strings.Join(parts, ", ") + ")"
	}
	if c.Compare != nil {
		cmp := c.Compare
		subject := string(cmp.Field)
		if cmp.Selector != "" {
			subject += " of " + cmp.Selector
		}
		if cmp.Field == FieldAttribute {
			subject = cmp.Attribute + " " + subject
		}
		if cmp.Operator == OpExists || cmp.Operator == OpNotExists {
			return subject + " " + string(cmp.Operator)
		}
		return fmt.Sprintf("%s %s %q", subject, cmp.Operator, cmp.Value)
	}
	return ""
}

func (c *Condition) clone() *Condition {
	out := *c
	if c.Args != nil {
		out.Args = make(map[string]string, len(c.Args))
		for k, v := range c.Args {
			out.Args[k] = v
		}
	}
	if c.Compare != nil {
		cmp := *c.Compare
		out.Compare = &cmp
	}
	return &out
}

// Validate checks that the comparison names a known field and operator and
// carries the inputs they need.
func (c *Comparison) Validate() error {
	switch c.Field {
	case FieldURL, FieldTitle:
	case FieldText, FieldValue, FieldCount, FieldVisible:
		if c.Selector == "" {
			return fmt.Errorf("comparison on %s requires a selector", c.Field)
		}
	case FieldAttribute:
		if c.Selector == "" || c.Attribute == "" {
			return fmt.Errorf("comparison on attribute requires a selector and an attribute")
		}
	default:
		return fmt.Errorf("unknown comparison field %q", c.Field)
	}
	if !operators[c.Operator] {
		return fmt.Errorf("unknown comparison operator %q", c.Operator)
	}
	switch c.Operator {
	case OpExists, OpNotExists:
	case OpGreater, OpGreaterEq, OpLess, OpLessEq:
		if _, err := strconv.ParseFloat(c.Value, 64); err != nil {
			return fmt.Errorf("operator %s requires a numeric value", c.Operator)
		}
	default:
		if c.Value == "" && c.Operator != OpEquals && c.Operator != OpNotEquals {
			return fmt.Errorf("operator %s requires a value", c.Operator)
		}
	}
	return nil
}

func (c *Comparison) arg() map[string]any {
	kind, expr := page.ParseSelector(c.Selector)
	if c.Selector == "" {
		expr = ""
	}
	return map[string]any{
		"field":     string(c.Field),
		"kind":      string(kind),
		"expr":      expr,
		"attribute": c.Attribute,
		"operator":  string(c.Operator),
		"value":     c.Value,
	}
}

// compareScript evaluates a Comparison argument in the page.
const compareScript = `(c) => {
  const norm = (s) => String(s).trim().replace(/\s+/g, ' ');
  const textOf = (el) => norm(el.innerText || el.textContent || '');
  const find = () => {
    if (!c.expr) return [];
    try {
      if (c.kind === 'xpath') {
        const r = document.evaluate(c.expr, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
        const out = [];
        for (let i = 0; i < r.snapshotLength; i++) out.push(r.snapshotItem(i));
        return out;
      }
      if (c.kind === 'text') {
        return Array.from(document.querySelectorAll('body *')).filter((el) =>
          textOf(el) === c.expr && !Array.from(el.children).some((ch) => textOf(ch) === c.expr));
      }
      return Array.from(document.querySelectorAll(c.expr));
    } catch (e) {
      return [];
    }
  };
  let actual = null;
  let els = null;
  if (c.field === 'url') {
    actual = location.href;
  } else if (c.field === 'title') {
    actual = document.title;
  } else {
    els = find();
    const el = els[0];
    if (c.field === 'count') actual = els.length;
    else if (!el) actual = null;
    else if (c.field === 'text') actual = textOf(el);
    else if (c.field === 'value') actual = ('value' in el) ? String(el.value) : null;
    else if (c.field === 'attribute') actual = el.getAttribute(c.attribute);
    else if (c.field === 'visible') {
      const r = el.getBoundingClientRect();
      actual = (r.width > 0 || r.height > 0) && getComputedStyle(el).visibility !== 'hidden';
    }
  }
  const has = actual !== null && actual !== undefined;
  const s = has ? String(actual) : '';
  switch (c.operator) {
    case 'exists': return els ? els.length > 0 : has;
    case 'not_exists': return els ? els.length === 0 : !has;
    case 'equals': return has && s === c.value;
    case 'not_equals': return !has || s !== c.value;
    case 'contains': return has && s.includes(c.value);
    case 'not_contains': return !has || !s.includes(c.value);
    case 'matches':
      try { return has && new RegExp(c.value).test(s); } catch (e) { return false; }
    case 'gt': return has && Number(actual) > Number(c.value);
    case 'gte': return has && Number(actual) >= Number(c.value);
    case 'lt': return has && Number(actual) < Number(c.value);
    case 'lte': return has && Number(actual) <= Number(c.value);
  }
  return false;
}`

// Predicate is a named check implemented in Go against the page.
type Predicate func(ctx context.Context, p page.Controller, args map[string]string) (bool, error)

// Predicates is a registry of named predicates. The zero value is empty;
// NewPredicates returns one holding the built-ins.
type Predicates struct {
	mu sync.RWMutex
	m  map[string]Predicate
}

// BuiltinPredicates lists the predicate names NewPredicates registers.
var BuiltinPredicates = []string{
	"url_contains", "url_matches", "title_contains",
	"element_exists", "element_count", "document_ready",
}

// NewPredicates returns a registry with the built-in predicates.
func NewPredicates() *Predicates {
	p := &Predicates{}
	p.mustRegister("url_contains", urlContains)
	p.mustRegister("url_matches", urlMatches)
	p.mustRegister("title_contains", titleContains)
	p.mustRegister("element_exists", elementExists)
	p.mustRegister("element_count", elementCount)
	p.mustRegister("document_ready", documentReady)
	return p
}

// Register adds fn under name. Names are unique.
func (p *Predicates) Register(name string, fn Predicate) error {
	if name == "" {
		return fmt.Errorf("predicate name is required")
	}
	if fn == nil {
		return fmt.Errorf("predicate %q has no function", name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]Predicate)
	}
	if _, exists := p.m[name]; exists {
		return fmt.Errorf("predicate %q already registered", name)
	}
	p.m[name] = fn
	return nil
}

func (p *Predicates) mustRegister(name string, fn Predicate) {
	if err := p.Register(name, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the predicate registered under name.
func (p *Predicates) Lookup(name string) (Predicate, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fn, ok := p.m[name]
	return fn, ok
}

// Names returns the registered names in sorted order.
func (p *Predicates) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.m))
	for name := range p.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func requireArg(args map[string]string, name string) (string, error) {
	v := args[name]
	if v == "" {
		return "", fmt.Errorf("missing predicate argument %q", name)
	}
	return v, nil
}

func urlContains(_ context.Context, p page.Controller, args map[string]string) (bool, error) {
	v, err := requireArg(args, "value")
	if err != nil {
		return false, err
	}
	return strings.Contains(p.URL(), v), nil
}

func urlMatches(_ context.Context, p page.Controller, args map[string]string) (bool, error) {
	pattern, err := requireArg(args, "pattern")
	if err != nil {
		return false, err
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid url pattern %q: %w", pattern, err)
	}
	return g.Match(p.URL()), nil
}

func titleContains(ctx context.Context, p page.Controller, args map[string]string) (bool, error) {
	v, err := requireArg(args, "value")
	if err != nil {
		return false, err
	}
	title, err := p.Evaluate(ctx, "() => document.title", nil)
	if err != nil {
		return false, err
	}
	s, _ := title.(string)
	return strings.Contains(s, v), nil
}

func elementExists(ctx context.Context, p page.Controller, args map[string]string) (bool, error) {
	sel, err := requireArg(args, "selector")
	if err != nil {
		return false, err
	}
	n, err := selector.NewPageResolver(p).Count(ctx, sel)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func elementCount(ctx context.Context, p page.Controller, args map[string]string) (bool, error) {
	sel, err := requireArg(args, "selector")
	if err != nil {
		return false, err
	}
	want, err := strconv.Atoi(args["count"])
	if err != nil {
		return false, fmt.Errorf("predicate element_count requires an integer count")
	}
	n, err := selector.NewPageResolver(p).Count(ctx, sel)
	if err != nil {
		return false, err
	}
	return n == want, nil
}

func documentReady(ctx context.Context, p page.Controller, _ map[string]string) (bool, error) {
	state, err := p.Evaluate(ctx, "() => document.readyState", nil)
	if err != nil {
		return false, err
	}
	return state == "complete", nil
}

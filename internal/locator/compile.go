// internal/locator/compile.go
package locator

import (
	"fmt"
	"strconv"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/scenarist/api/schemas"
)

// Query is a locator compiled to JavaScript that runs inside a frame's
// document. The resolver function returns an array of matching elements in
// document order.
type Query struct {
	Locator schemas.Locator
	args    string
}

type resolverOptions struct {
	Exact bool   `json:"exact"`
	Name  string `json:"name,omitempty"`
}

// Compile turns l into a Query. It fails only for an invalid locator.
func Compile(l schemas.Locator) (Query, error) {
	if err := l.Validate(); err != nil {
		return Query{}, err
	}
	args, err := json.Marshal([]interface{}{
		string(l.Kind),
		l.Value,
		resolverOptions{Exact: l.Exact, Name: l.Name},
	})
	if err != nil {
		return Query{}, fmt.Errorf("encoding resolver arguments: %w", err)
	}
	// Strip the array brackets: the values become the call's argument list.
	return Query{Locator: l, args: string(args[1 : len(args)-1])}, nil
}

// Expression evaluates to the array of matches.
func (q Query) Expression() string {
	return "(" + resolverJS + ")(" + q.args + ")"
}

// SliceExpression evaluates to at most limit matches, in document order.
func (q Query) SliceExpression(limit int) string {
	return q.Expression() + ".slice(0, " + strconv.Itoa(limit) + ")"
}

// resolverJS implements the three locator kinds. Text matching keeps only the
// smallest elements whose whitespace normalized text matches, so a match never
// also reports its ancestors.
const resolverJS = `function(kind, value, opts) {
  const norm = (s) => (s || '').replace(/\s+/g, ' ').trim();
  const skip = new Set(['script', 'style', 'noscript', 'template', 'head', 'title', 'meta', 'link']);

  const textOf = (el) => {
    if (el instanceof HTMLInputElement && ['button', 'submit', 'reset'].includes(el.type)) {
      return el.value;
    }
    return el.textContent;
  };

  const byText = () => {
    const needle = opts.exact ? value : norm(value).toLowerCase();
    const matches = (el) => {
      const t = norm(textOf(el));
      return opts.exact ? t === needle : t.toLowerCase().includes(needle);
    };
    const hits = [];
    for (const el of document.querySelectorAll('*')) {
      if (skip.has(el.localName)) continue;
      if (matches(el)) hits.push(el);
    }
    const set = new Set(hits);
    return hits.filter((el) => !Array.from(el.children).some((c) => set.has(c)));
  };

  const byXPath = () => {
    const snap = document.evaluate(value, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
    const out = [];
    for (let i = 0; i < snap.snapshotLength; i++) {
      const n = snap.snapshotItem(i);
      if (n && n.nodeType === Node.ELEMENT_NODE) out.push(n);
    }
    return out;
  };

  const implicitRole = (el) => {
    const tag = el.localName;
    switch (tag) {
      case 'button': return 'button';
      case 'a': case 'area': return el.hasAttribute('href') ? 'link' : null;
      case 'input': {
        const t = (el.getAttribute('type') || 'text').toLowerCase();
        if (['button', 'submit', 'reset', 'image'].includes(t)) return 'button';
        if (t === 'checkbox') return 'checkbox';
        if (t === 'radio') return 'radio';
        if (t === 'number') return 'spinbutton';
        if (t === 'range') return 'slider';
        if (t === 'search') return el.hasAttribute('list') ? 'combobox' : 'searchbox';
        if (['text', 'email', 'tel', 'url', 'password'].includes(t)) return el.hasAttribute('list') ? 'combobox' : 'textbox';
        return null;
      }
      case 'textarea': return 'textbox';
      case 'select': return (el.multiple || el.size > 1) ? 'listbox' : 'combobox';
      case 'h1': case 'h2': case 'h3': case 'h4': case 'h5': case 'h6': return 'heading';
      case 'img': return el.getAttribute('alt') === '' ? 'presentation' : 'img';
      case 'nav': return 'navigation';
      case 'ul': case 'ol': return 'list';
      case 'li': return 'listitem';
      case 'dialog': return 'dialog';
      case 'main': return 'main';
      case 'header': return el.closest('article, aside, main, nav, section') ? null : 'banner';
      case 'footer': return el.closest('article, aside, main, nav, section') ? null : 'contentinfo';
      case 'form': return 'form';
      case 'table': return 'table';
      case 'option': return 'option';
    }
    return null;
  };

  const roleOf = (el) => {
    const explicit = norm(el.getAttribute('role')).split(' ')[0];
    return explicit || implicitRole(el);
  };

  const nameOf = (el) => {
    const label = el.getAttribute('aria-label');
    if (label) return norm(label);
    const ids = el.getAttribute('aria-labelledby');
    if (ids) {
      const parts = ids.split(/\s+/).map((id) => document.getElementById(id)).filter(Boolean);
      if (parts.length) return norm(parts.map((p) => p.textContent).join(' '));
    }
    if (el.labels && el.labels.length) return norm(Array.from(el.labels).map((l) => l.textContent).join(' '));
    if (el.getAttribute('alt')) return norm(el.getAttribute('alt'));
    if (el instanceof HTMLInputElement && ['button', 'submit', 'reset'].includes(el.type)) return norm(el.value);
    if (el.getAttribute('placeholder')) return norm(el.getAttribute('placeholder'));
    const text = norm(el.textContent);
    if (text) return text;
    return norm(el.getAttribute('title'));
  };

  const byRole = () => {
    const want = norm(value).toLowerCase();
    const name = norm(opts.name).toLowerCase();
    const out = [];
    for (const el of document.querySelectorAll('*')) {
      if (roleOf(el) !== want) continue;
      if (name && !nameOf(el).toLowerCase().includes(name)) continue;
      out.push(el);
    }
    return out;
  };

  switch (kind) {
    case 'text': return byText();
    case 'xpath': return byXPath();
    case 'role': return byRole();
  }
  throw new Error('unknown locator kind ' + kind);
}`

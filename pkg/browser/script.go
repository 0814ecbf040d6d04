package browser

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

const (
	opCount   = "count"
	opVisible = "visible"
	opElement = "element"
)

// visibleScript follows Playwright's notion of visible: a non-empty box and
// no visibility:hidden. It runs with the element as this.
const visibleScript = `function() {
  const rect = this.getBoundingClientRect();
  return rect.width > 0 && rect.height > 0 && getComputedStyle(this).visibility !== 'hidden';
}`

// locatorScript resolves text and selector queries inside the page for the
// CDP engines. Text queries keep only the innermost matching element. Role
// queries go through the accessibility tree instead.
const locatorScript = `(query, op) => {
  const norm = (s) => (s || '').replace(/\s+/g, ' ').trim();
  const matches = (value, want) => query.exact ? norm(value) === want : norm(value).toLowerCase().includes(norm(want).toLowerCase());
  const visible = (el) => (` + visibleScript + `).call(el);
  let list = [];
  if (query.kind === 'text') {
    const skip = new Set(['SCRIPT', 'STYLE', 'NOSCRIPT', 'TEMPLATE', 'HEAD']);
    const all = Array.from(document.body ? document.body.querySelectorAll('*') : []).filter((el) => !skip.has(el.tagName));
    const hit = new Set(all.filter((el) => matches(el.textContent, query.text)));
    list = all.filter((el) => hit.has(el) && !Array.from(el.children).some((child) => hit.has(child)));
  } else {
    list = Array.from(document.querySelectorAll(query.selector));
  }
  if (op === 'count') return list.length;
  if (op === 'visible') return list.length > 0 && visible(list[0]);
  return list.length > 0 ? list[0] : null;
}`

// clickPointScript scrolls the element into view and returns the centre of
// its box in viewport coordinates.
const clickPointScript = `function() {
  this.scrollIntoView({block: 'center', inline: 'center'});
  const rect = this.getBoundingClientRect();
  return {x: rect.left + rect.width / 2, y: rect.top + rect.height / 2};
}`

// locatorExpression returns a self-invoking expression for engines that
// evaluate expressions rather than functions.
func locatorExpression(q Query, op string) (string, error) {
	arg, err := json.Marshal(q)
	if err != nil {
		return "", errors.Wrapf(err, "failed to encode query %s", q)
	}
	opArg, _ := json.Marshal(op)
	return fmt.Sprintf("(%s)(%s, %s)", locatorScript, arg, opArg), nil
}

// Package discovery implements the multi-tier selector discovery ladder:
// given an intent and a live page, find the most stable locator whose
// element passes the six-layer false-positive protection, falling back
// tier by tier until one sanity-checks or the ladder is exhausted.
// Built on a per-element attribute scan
// (getAttribute reads over page.Elements) that returns
// plain Go structs the tier matchers can reason over directly.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-rod/rod"

	"testrunner/internal/adapter"
)

// interactiveSelector is the broad net cast before per-tier filtering.
const interactiveSelector = `a, button, input, select, textarea, label, [role], [aria-label], [aria-placeholder], [data-testid], [data-test-id], [data-cy], [onclick]`

// ElementInfo is the flattened attribute snapshot each tier matcher reasons
// over, collected in one DOM round trip per discovery attempt.
type ElementInfo struct {
	Index           int
	Element         *rod.Element
	Tag             string
	Type            string
	AriaLabel       string
	AriaPlaceholder string
	Name            string
	Placeholder     string
	Role            string
	DataTestID      string
	ID              string
	ClassList       []string
	Disabled        bool
	AccessibleName  string
	LabelText       string
}

type rawInfo struct {
	Tag             string `json:"tag"`
	Type            string `json:"type"`
	AriaLabel       string `json:"ariaLabel"`
	AriaPlaceholder string `json:"ariaPlaceholder"`
	Name            string `json:"name"`
	Placeholder     string `json:"placeholder"`
	Role            string `json:"role"`
	DataTestID      string `json:"dataTestId"`
	ID              string `json:"id"`
	ClassName       string `json:"className"`
	Disabled        bool   `json:"disabled"`
	AccessibleName  string `json:"accessibleName"`
	LabelText       string `json:"labelText"`
}

const elementInfoScript = `() => {
	const el = this;
	const id = el.id || '';
	let labelText = '';
	if (id) {
		const label = document.querySelector('label[for="' + CSS.escape(id) + '"]');
		if (label) { labelText = (label.innerText || '').trim(); }
	}
	return JSON.stringify({
		tag: (el.tagName || '').toLowerCase(),
		type: (el.getAttribute('type') || '').toLowerCase(),
		ariaLabel: el.getAttribute('aria-label') || '',
		ariaPlaceholder: el.getAttribute('aria-placeholder') || '',
		name: el.getAttribute('name') || '',
		placeholder: el.getAttribute('placeholder') || '',
		role: el.getAttribute('role') || '',
		dataTestId: el.getAttribute('data-testid') || el.getAttribute('data-test-id') || el.getAttribute('data-cy') || '',
		id: id,
		className: (el.className && el.className.toString()) || '',
		disabled: !!el.disabled || el.getAttribute('aria-disabled') === 'true',
		accessibleName: el.getAttribute('aria-label') || (el.innerText || '').trim().slice(0, 120) || el.value || '',
		labelText: labelText,
	});
}`

// Collect gathers attribute snapshots for every candidate element on the
// page, optionally scoped within a named container first and falling back
// to the whole page when the container cannot be resolved (scoped
// discovery).
func Collect(ctx context.Context, page *adapter.Page, within string) ([]ElementInfo, error) {
	if within != "" {
		containerSel := fmt.Sprintf(`[aria-label=%s]`, cssQuote(within))
		res, err := page.Query(ctx, interactiveSelector, containerSel)
		if err == nil && res.Count() > 0 {
			return fromElements(res.Elements)
		}
	}
	res, err := page.Query(ctx, interactiveSelector, "")
	if err != nil {
		return nil, err
	}
	return fromElements(res.Elements)
}

func fromElements(els []*rod.Element) ([]ElementInfo, error) {
	out := make([]ElementInfo, 0, len(els))
	for i, el := range els {
		res, err := el.Eval(elementInfoScript)
		if err != nil {
			continue
		}
		var raw rawInfo
		if err := json.Unmarshal([]byte(res.Value.String()), &raw); err != nil {
			continue
		}
		out = append(out, ElementInfo{
			Index:           i,
			Element:         el,
			Tag:             raw.Tag,
			Type:            raw.Type,
			AriaLabel:       raw.AriaLabel,
			AriaPlaceholder: raw.AriaPlaceholder,
			Name:            raw.Name,
			Placeholder:     raw.Placeholder,
			Role:            raw.Role,
			DataTestID:      raw.DataTestID,
			ID:              raw.ID,
			ClassList:       strings.Fields(raw.ClassName),
			Disabled:        raw.Disabled,
			AccessibleName:  raw.AccessibleName,
			LabelText:       raw.LabelText,
		})
	}
	return out, nil
}

// cssQuote escapes a value for embedding in a CSS attribute selector.
func cssQuote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

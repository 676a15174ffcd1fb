package appadapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"testrunner/internal/adapter"
	"testrunner/internal/discovery"
	"testrunner/internal/model"
)

// keystrokeDelay and debounceWait approximate a human typing into a
// type-ahead field: slow enough for the widget's own debounce timer to
// fire between keystrokes and after the last one (the adapter contract).
const (
	keystrokeDelay = 60 * time.Millisecond
	debounceWait   = 300 * time.Millisecond
	openTimeout    = 3 * time.Second
)

var comboboxHints = []string{"combobox", "autocomplete", "typeahead"}

// Autocomplete resolves and drives type-ahead comboboxes (e.g. a Salesforce
// lookup field): open, type with per-keystroke delay, confirm, verify the
// widget closed, falling back to listbox selection or keyboard navigation.
type Autocomplete struct{}

// NewAutocomplete constructs the autocomplete app adapter.
func NewAutocomplete() *Autocomplete { return &Autocomplete{} }

func (a *Autocomplete) Name() string { return "autocomplete" }

func (a *Autocomplete) Supports(intent model.Intent) bool {
	return intent.ElementType == "autocomplete"
}

// Resolve finds the combobox-role element matching the intent's declared
// element name, independent of the attribute-tier ladder.
func (a *Autocomplete) Resolve(ctx context.Context, page *adapter.Page, intent model.Intent) (model.Candidate, bool, error) {
	elements, err := discovery.Collect(ctx, page, intent.Within)
	if err != nil {
		return model.Candidate{}, false, err
	}
	for _, el := range elements {
		if !looksLikeCombobox(el) {
			continue
		}
		if !looseMatch(labelOf(el), intent.Element) && !looseMatch(el.Name, intent.Element) {
			continue
		}
		return model.Candidate{
			Selector: selectorFor(el),
			Score:    0.90,
			Strategy: "autocomplete_first_option",
			Stable:   false,
			Meta:     withMeta(a.Name()),
		}, true, nil
	}
	return model.Candidate{}, false, nil
}

func looksLikeCombobox(el discovery.ElementInfo) bool {
	if el.Role == "combobox" {
		return true
	}
	haystack := strings.ToLower(el.Tag + " " + strings.Join(el.ClassList, " "))
	for _, hint := range comboboxHints {
		if strings.Contains(haystack, hint) {
			return true
		}
	}
	return false
}

func selectorFor(el discovery.ElementInfo) string {
	if el.ID != "" {
		return fmt.Sprintf("#%s", el.ID)
	}
	if el.AriaLabel != "" {
		return fmt.Sprintf("[aria-label=%q]", el.AriaLabel)
	}
	if el.Name != "" {
		return fmt.Sprintf("[name=%q]", el.Name)
	}
	return "[role=combobox]"
}

// Act drives the combobox: click to open, type the value with a
// per-keystroke delay plus a debounce wait, press Enter, and verify
// aria-expanded flips to false. On failure it tries the aria-controls
// listbox by option text, then keyboard Down-arrow navigation.
func (a *Autocomplete) Act(ctx context.Context, page *adapter.Page, cand model.Candidate, intent model.Intent) (model.ExecResult, error) {
	res, err := discovery.Resolve(ctx, page, cand.Selector, intent.Within)
	if err != nil {
		return model.ExecResult{}, err
	}
	el, ok := res.First()
	if !ok {
		return model.ExecResult{Success: false, Failure: model.FailureDiscoveryFailed, Detail: "combobox not found"}, nil
	}

	if err := adapter.Act(ctx, el, "click", ""); err != nil {
		return model.ExecResult{}, fmt.Errorf("open combobox: %w", err)
	}
	if err := typeWithDelay(el, intent.Value); err != nil {
		return model.ExecResult{}, fmt.Errorf("type combobox value: %w", err)
	}
	time.Sleep(debounceWait)
	if err := adapter.Act(ctx, el, "press", "Enter"); err != nil {
		return model.ExecResult{}, fmt.Errorf("confirm combobox: %w", err)
	}

	if err := waitFor(ctx, openTimeout, func() (bool, error) { return ariaExpandedFalse(el) }); err == nil {
		return model.ExecResult{Success: true, Detail: "closed via type-ahead confirm"}, nil
	}

	if ok, detail := a.selectFromListbox(ctx, page, el, intent.Value); ok {
		return model.ExecResult{Success: true, Detail: detail}, nil
	}

	if err := adapter.Act(ctx, el, "press", "ArrowDown"); err != nil {
		return model.ExecResult{}, fmt.Errorf("keyboard nav fallback: %w", err)
	}
	if err := adapter.Act(ctx, el, "press", "Enter"); err != nil {
		return model.ExecResult{}, fmt.Errorf("keyboard nav confirm: %w", err)
	}
	if err := waitFor(ctx, openTimeout, func() (bool, error) { return ariaExpandedFalse(el) }); err != nil {
		return model.ExecResult{Success: false, Failure: model.FailureUnstable, Detail: "combobox never closed"}, nil
	}
	return model.ExecResult{Success: true, Detail: "closed via keyboard navigation fallback"}, nil
}

func typeWithDelay(el *rod.Element, value string) error {
	if err := el.SelectAllText(); err != nil {
		return err
	}
	var prefix strings.Builder
	for _, r := range value {
		prefix.WriteRune(r)
		if err := el.Input(prefix.String()); err != nil {
			return err
		}
		time.Sleep(keystrokeDelay)
	}
	return nil
}

func ariaExpandedFalse(el *rod.Element) (bool, error) {
	res, err := el.Eval(`() => { const v = this.getAttribute('aria-expanded'); return v === 'false' || v === null; }`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

// selectFromListbox follows aria-controls to the listbox and clicks the
// option whose text matches value, the contract's first fallback.
func (a *Autocomplete) selectFromListbox(ctx context.Context, page *adapter.Page, el *rod.Element, value string) (bool, string) {
	res, err := el.Eval(`() => this.getAttribute('aria-controls') || ''`)
	if err != nil || res.Value.String() == "" {
		return false, ""
	}
	listboxID := res.Value.String()
	result, err := page.Query(ctx, fmt.Sprintf(`#%s [role="option"]`, listboxID), "")
	if err != nil || result.Count() == 0 {
		return false, ""
	}
	options := result.Elements
	for _, opt := range options {
		text, err := opt.Text()
		if err != nil {
			continue
		}
		if looseMatch(text, value) {
			if err := adapter.Act(ctx, opt, "click", ""); err != nil {
				return false, ""
			}
			return true, "closed via aria-controls listbox option"
		}
	}
	return false, ""
}

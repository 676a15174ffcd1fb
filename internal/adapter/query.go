package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// QueryResult is the outcome of resolving a selector against the live DOM:
// the matched elements only. Count and First are what the five-point gate
// reads from it.
type QueryResult struct {
	Elements []*rod.Element
}

// Count is the number of elements the selector matched, feeding the gate's
// uniqueness check.
func (r QueryResult) Count() int { return len(r.Elements) }

// First returns the sole or first-ranked element, or false if none matched.
func (r QueryResult) First() (*rod.Element, bool) {
	if len(r.Elements) == 0 {
		return nil, false
	}
	return r.Elements[0], true
}

// Query resolves a CSS selector against the page, optionally scoped within
// a container selector (the scoped-discovery tier).
func (p *Page) Query(ctx context.Context, selector, within string) (QueryResult, error) {
	root := p.rodPage.Context(ctx)
	if within != "" {
		containers, err := root.Elements(within)
		if err != nil {
			return QueryResult{}, fmt.Errorf("resolve scope %q: %w", within, err)
		}
		var matches []*rod.Element
		for _, c := range containers {
			els, err := c.Elements(selector)
			if err != nil {
				continue
			}
			matches = append(matches, els...)
		}
		return QueryResult{Elements: matches}, nil
	}
	els, err := root.Elements(selector)
	if err != nil {
		return QueryResult{}, fmt.Errorf("resolve %q: %w", selector, err)
	}
	return QueryResult{Elements: els}, nil
}

// QueryOrdinal resolves a selector and returns the element at the given
// zero-based ordinal, supporting Intent.Ordinal (the ordinal tier).
func (p *Page) QueryOrdinal(ctx context.Context, selector, within string, ordinal int) (*rod.Element, error) {
	res, err := p.Query(ctx, selector, within)
	if err != nil {
		return nil, err
	}
	if ordinal < 0 || ordinal >= len(res.Elements) {
		return nil, fmt.Errorf("ordinal %d out of range (%d matches)", ordinal, len(res.Elements))
	}
	return res.Elements[ordinal], nil
}

// Enabled reports whether the element accepts interaction (not disabled,
// no aria-disabled="true").
func Enabled(el *rod.Element) (bool, error) {
	res, err := el.Eval(`() => !this.disabled && this.getAttribute('aria-disabled') !== 'true'`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

// Stable samples the element's bounding box the given number of times,
// spaced by interval, and reports whether every sample's X and Y stay
// within tolerancePx pixels of the first sample's; width and height are not
// compared. Used by the gate's stable_bbox point with retry-adaptive
// interval/tolerance/sample-count.
func Stable(el *rod.Element, samples int, interval time.Duration, tolerancePx float64) (bool, error) {
	if samples < 2 {
		samples = 2
	}
	boxes := make([]BoundingBox, 0, samples)
	for i := 0; i < samples; i++ {
		b, err := ElementBox(el)
		if err != nil {
			return false, err
		}
		boxes = append(boxes, b)
		if i < samples-1 {
			time.Sleep(interval)
		}
	}
	first := boxes[0]
	for _, b := range boxes[1:] {
		if abs(b.X-first.X) > tolerancePx || abs(b.Y-first.Y) > tolerancePx {
			return false, nil
		}
	}
	return true, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// namedKeys maps the Intent.Value spelling used by plan authors ("Enter",
// "Tab", "Escape", ...) to go-rod's input key constants for the "press" action.
var namedKeys = map[string]input.Key{
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"Escape":     input.Escape,
	"Backspace":  input.Backspace,
	"ArrowDown":  input.ArrowDown,
	"ArrowUp":    input.ArrowUp,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
	"Space":      input.Space,
}

// Act performs one of the supported intent actions on el.
func Act(ctx context.Context, el *rod.Element, action, value string) error {
	el = el.Context(ctx)
	switch action {
	case "click":
		return el.Click(proto.InputMouseButtonLeft, 1)
	case "hover":
		return el.Hover()
	case "focus":
		return el.Focus()
	case "fill":
		if err := el.SelectAllText(); err != nil {
			return err
		}
		return el.Input(value)
	case "type":
		return el.Input(value)
	case "press":
		key, ok := namedKeys[value]
		if !ok {
			return fmt.Errorf("unsupported key %q", value)
		}
		return el.Type(key)
	case "check":
		return setChecked(el, true)
	case "uncheck":
		return setChecked(el, false)
	case "select":
		return el.Select([]string{value}, true, rod.SelectorTypeText)
	default:
		return fmt.Errorf("unsupported action %q", action)
	}
}

func setChecked(el *rod.Element, want bool) error {
	res, err := el.Eval(`() => this.checked`)
	if err != nil {
		return err
	}
	if res.Value.Bool() != want {
		return el.Click(proto.InputMouseButtonLeft, 1)
	}
	return nil
}

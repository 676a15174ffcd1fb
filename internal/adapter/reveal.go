package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/input"
)

// closeButtonSelectors are the heuristic close-button fingerprints tried
// in order by the heal engine's reveal phase ("close-button
// heuristic"), after the ESC key and backdrop click have been tried.
var closeButtonSelectors = []string{
	`[aria-label="Close"]`, `[aria-label="close"]`,
	`button.close`, `.modal-close`, `[data-dismiss="modal"]`,
	`button[class*="close"]`,
}

// overlayBackdropSelectors are common modal-backdrop fingerprints the
// reveal phase's backdrop-click strategy tries.
var overlayBackdropSelectors = []string{
	`.modal-backdrop`, `.overlay-backdrop`, `[class*="backdrop"]`,
}

// BringToFront activates this page's tab, mirroring a user switching back
// to the run's browser tab before interacting with it (the reveal
// phase).
func (p *Page) BringToFront(ctx context.Context) error {
	if _, err := p.rodPage.Context(ctx).Activate(); err != nil {
		return fmt.Errorf("bring to front: %w", err)
	}
	return nil
}

// PressEscape sends a page-level Escape keypress, the reveal phase's
// first overlay-dismissal strategy.
func (p *Page) PressEscape(ctx context.Context) error {
	if err := p.rodPage.Context(ctx).Keyboard.Type(input.Escape); err != nil {
		return fmt.Errorf("press escape: %w", err)
	}
	return nil
}

// ClickOverlayBackdrop tries common modal-backdrop selectors, clicking
// the first match. The second overlay-dismissal strategy in reveal's
// ordered list.
func (p *Page) ClickOverlayBackdrop(ctx context.Context) (bool, error) {
	for _, sel := range overlayBackdropSelectors {
		res, err := p.Query(ctx, sel, "")
		if err != nil || res.Count() == 0 {
			continue
		}
		el, _ := res.First()
		if err := Act(ctx, el, "click", ""); err == nil {
			return true, nil
		}
	}
	return false, nil
}

// ClickCloseButtonHeuristic tries common close-button fingerprints,
// clicking the first match. The third and last overlay-dismissal strategy.
func (p *Page) ClickCloseButtonHeuristic(ctx context.Context) (bool, error) {
	for _, sel := range closeButtonSelectors {
		res, err := p.Query(ctx, sel, "")
		if err != nil || res.Count() == 0 {
			continue
		}
		el, _ := res.First()
		if err := Act(ctx, el, "click", ""); err == nil {
			return true, nil
		}
	}
	return false, nil
}

// ScrollIntoView scrolls the element matching selector into view,
// performing incremental scrolls for lazy-loaded UIs: if the first attempt
// finds nothing, it scrolls the window down one viewport, waits a short
// settle, and retries the query once.
func (p *Page) ScrollIntoView(ctx context.Context, selector, within string) error {
	res, err := p.Query(ctx, selector, within)
	if err != nil {
		return fmt.Errorf("scroll into view %q: %w", selector, err)
	}
	el, ok := res.First()
	if !ok {
		if _, err := p.rodPage.Context(ctx).Eval(`() => window.scrollBy(0, window.innerHeight)`); err != nil {
			return fmt.Errorf("scroll into view %q: %w", selector, err)
		}
		time.Sleep(500 * time.Millisecond)
		res, err = p.Query(ctx, selector, within)
		if err != nil {
			return fmt.Errorf("scroll into view %q: %w", selector, err)
		}
		if el, ok = res.First(); !ok {
			return fmt.Errorf("scroll into view %q: no match", selector)
		}
	}
	if err := el.Context(ctx).ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll into view %q: %w", selector, err)
	}
	return nil
}

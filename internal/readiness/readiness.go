// Package readiness implements the three-stage readiness gate
// the executor runs before every step's gate and action, for either
// profile: DOM idle, element
// visible, and an optional app-ready hook. Grounded in the adapter
// package's wait primitives (WaitLoad/WaitNetworkIdle) the same way the
// gate package builds on adapter.Query/ElementVisible/Stable.
package readiness

import (
	"context"
	"fmt"
	"time"

	"testrunner/internal/adapter"
	"testrunner/internal/profile"
	"testrunner/internal/telemetry"
)

// domIdleTimeout and visibleTimeout are the stage budgets; visibleTimeout
// matches the documented "10s default".
const (
	domIdleTimeout = 10 * time.Second
	visibleTimeout = 10 * time.Second
	idleQuietDelay = 500 * time.Millisecond
)

// AppReadyHook is an optional per-framework check (stage 3,
// e.g. "no pending renders"); nil means the stage always passes.
type AppReadyHook func(ctx context.Context, page *adapter.Page) (bool, error)

// Gate runs the three readiness stages in order, stopping at the first
// failure. Target is the CSS selector stage 2 waits to become visible;
// pass "" to skip stage 2 when no specific element is expected yet.
func Gate(ctx context.Context, page *adapter.Page, prof profile.Profile, target string, hook AppReadyHook, tel *telemetry.Shim) error {
	if err := domIdle(ctx, page, prof, tel); err != nil {
		tel.Readiness(1, "fail", err.Error())
		return err
	}
	tel.Readiness(1, "ok", string(prof))

	if target != "" {
		if err := elementVisible(ctx, page, target, tel); err != nil {
			tel.Readiness(2, "fail", err.Error())
			return err
		}
		tel.Readiness(2, "ok", target)
	}

	if hook != nil {
		ready, err := hook(ctx, page)
		if err != nil {
			tel.Readiness(3, "fail", err.Error())
			return fmt.Errorf("app-ready hook: %w", err)
		}
		if !ready {
			tel.Readiness(3, "fail", "app not ready")
			return fmt.Errorf("app-ready hook reported not ready")
		}
		tel.Readiness(3, "ok", "")
	} else {
		tel.Readiness(3, "skipped", "no hook registered")
	}
	return nil
}

// domIdle waits for networkidle on STATIC pages, or load-then-quiet-delay
// on DYNAMIC pages (stage 1).
func domIdle(ctx context.Context, page *adapter.Page, prof profile.Profile, _ *telemetry.Shim) error {
	dctx, cancel := context.WithTimeout(ctx, domIdleTimeout)
	defer cancel()

	if prof == profile.Dynamic {
		if err := page.WaitLoad(dctx); err != nil {
			return fmt.Errorf("dom idle (dynamic load): %w", err)
		}
		select {
		case <-time.After(idleQuietDelay):
		case <-dctx.Done():
			return dctx.Err()
		}
		return nil
	}
	if err := page.WaitNetworkIdle(dctx, idleQuietDelay); err != nil {
		return fmt.Errorf("dom idle (static networkidle): %w", err)
	}
	return nil
}

// elementVisible polls until target resolves and is visible, bounded by
// visibleTimeout (stage 2).
func elementVisible(ctx context.Context, page *adapter.Page, target string, _ *telemetry.Shim) error {
	vctx, cancel := context.WithTimeout(ctx, visibleTimeout)
	defer cancel()

	for {
		res, err := page.Query(vctx, target, "")
		if err == nil {
			if el, ok := res.First(); ok {
				if visible, err := adapter.ElementVisible(vctx, el); err == nil && visible {
					return nil
				}
			}
		}
		select {
		case <-vctx.Done():
			return fmt.Errorf("element %q not visible within %s", target, visibleTimeout)
		case <-time.After(100 * time.Millisecond):
		}
	}
}

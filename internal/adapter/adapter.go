// Package adapter wraps go-rod to expose the query, locator, wait, and
// gate primitives the rest of the engine consumes: a launcher/connect
// lifecycle and incognito-per-run ownership model, trimmed to the
// primitives a selector-discovery/actionability engine needs.
package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"testrunner/internal/config"
)

// Browser owns exactly one live Chrome instance for the process. A
// run owns its own Page exclusively; Browser is the factory that
// hands out incognito Pages so concurrent runs never share cookies/storage.
type Browser struct {
	cfg        config.BrowserConfig
	mu         sync.Mutex
	rodBrowser *rod.Browser
	controlURL string
}

// New constructs a disconnected Browser; call Start before use.
func New(cfg config.BrowserConfig) *Browser {
	return &Browser{cfg: cfg}
}

// Start connects to an existing Chrome when DebuggerURL is set and
// otherwise launches one; a failed connect returns an error without
// falling back to a launch.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rodBrowser != nil {
		if _, err := b.rodBrowser.Version(); err == nil {
			return nil
		}
		_ = b.rodBrowser.Close()
		b.rodBrowser = nil
		b.controlURL = ""
	}

	controlURL := b.cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(b.cfg.Headless)
		if len(b.cfg.Launch) > 0 {
			l = l.Bin(b.cfg.Launch[0])
			for _, raw := range b.cfg.Launch[1:] {
				name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
				if hasVal {
					l = l.Set(flags.Flag(name), val)
				} else {
					l = l.Set(flags.Flag(name))
				}
			}
		}
		url, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		controlURL = url
	}

	rb := rod.New().ControlURL(controlURL).Context(ctx)
	if err := rb.Connect(); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}
	b.rodBrowser = rb
	b.controlURL = controlURL
	return nil
}

// Shutdown closes the underlying browser. Guaranteed-shutdown scoped
// acquisition: callers defer this right after a successful Start.
func (b *Browser) Shutdown(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rodBrowser == nil {
		return nil
	}
	err := b.rodBrowser.Close()
	b.rodBrowser = nil
	b.controlURL = ""
	return err
}

// NewPage opens an incognito page and navigates to url, giving the caller
// exclusive ownership of the returned Page for the lifetime of one run.
func (b *Browser) NewPage(ctx context.Context, url string) (*Page, error) {
	b.mu.Lock()
	rb := b.rodBrowser
	b.mu.Unlock()
	if rb == nil {
		return nil, fmt.Errorf("browser not started")
	}

	incognito, err := rb.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	rp, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             viewportOr(b.cfg.ViewportWidth, 1920),
		Height:            viewportOr(b.cfg.ViewportHeight, 1080),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(rp); err != nil {
		// Non-fatal: viewport override failing does not block automation.
		_ = err
	}

	p := &Page{rodPage: rp, navTimeout: b.cfg.NavigationTimeout(), createdAt: time.Now()}
	if url != "" {
		if err := p.Navigate(ctx, url); err != nil {
			return p, err
		}
	}
	return p, nil
}

func viewportOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// Page wraps one exclusively-owned rod.Page plus the session-scope
// identity used to key the selector cache.
type Page struct {
	rodPage    *rod.Page
	navTimeout time.Duration
	createdAt  time.Time
	epoch      int
}

// Navigate loads url in the page, bounded by the configured navigation timeout.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.rodPage.Context(ctx).Timeout(p.navTimeout).Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	p.epoch++
	return nil
}

// WaitLoad blocks until the page's load event has fired, used by the
// readiness gate's DOM-idle stage for DYNAMIC profiles.
func (p *Page) WaitLoad(ctx context.Context) error {
	if err := p.rodPage.Context(ctx).WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	return nil
}

// WaitNetworkIdle blocks until no network activity has occurred for a
// quiet window, used by the readiness gate's DOM-idle stage for STATIC
// profiles.
func (p *Page) WaitNetworkIdle(ctx context.Context, quiet time.Duration) error {
	if err := p.rodPage.Context(ctx).WaitIdle(quiet); err != nil {
		return fmt.Errorf("wait network idle: %w", err)
	}
	return nil
}

// CurrentURL returns the page's current URL.
func (p *Page) CurrentURL() string {
	info, err := p.rodPage.Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

// Close closes the page. The incognito browser context it was opened in is
// not disposed here; it stays open until the Browser shuts down.
func (p *Page) Close() error {
	if p.rodPage == nil {
		return nil
	}
	return p.rodPage.Close()
}

// SessionScope derives the session-scope cache-key segment (domain + path
// + user-identity-proxy + session epoch), an identity concept adapted
// from cookie/storage session forking without actually forking a
// browser context.
func (p *Page) SessionScope(ctx context.Context) string {
	url := p.CurrentURL()
	identity := "anon"
	res, err := p.rodPage.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `() => {
			try {
				const c = document.cookie || '';
				const m = c.match(/(?:session|sid|auth)[a-zA-Z_]*=([^;]+)/i);
				return m ? m[1].slice(0, 16) : '';
			} catch (e) { return ''; }
		}`,
		ByValue: true,
	})
	if err == nil && res != nil && !res.Value.Nil() {
		if s := res.Value.String(); s != "" {
			identity = s
		}
	}
	return fmt.Sprintf("%s|%s|epoch%d", url, identity, p.epoch)
}

// HTMLSnapshot captures the live outerHTML, used for blocked/fatal forensics.
func (p *Page) HTMLSnapshot(ctx context.Context) (string, error) {
	res, err := p.rodPage.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      `() => document.documentElement.outerHTML`,
		ByValue: true,
	})
	if err != nil {
		return "", fmt.Errorf("html snapshot: %w", err)
	}
	return res.Value.String(), nil
}

// Screenshot captures a PNG of the full page, used for blocked/fatal forensics.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := p.rodPage.Context(ctx).Screenshot(true, nil)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return data, nil
}

// TextContains reports whether the page's visible body text contains substr
// (case-insensitive), used for blocked-page phrase detection.
func (p *Page) TextContains(ctx context.Context, substr string) bool {
	res, err := p.rodPage.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      `() => (document.body && document.body.innerText) || ''`,
		ByValue: true,
	})
	if err != nil || res == nil {
		return false
	}
	return strings.Contains(strings.ToLower(res.Value.String()), strings.ToLower(substr))
}

// HasAny reports whether any of the given CSS selectors matches at least
// one element, used for blocked-widget detection (e.g. recaptcha iframes).
func (p *Page) HasAny(ctx context.Context, selectors ...string) bool {
	for _, sel := range selectors {
		els, err := p.rodPage.Context(ctx).Elements(sel)
		if err == nil && len(els) > 0 {
			return true
		}
	}
	return false
}

// DOMSkeleton returns the raw structural skeleton of the page (tag + sorted
// class list per node, first 500 nodes, pipe-joined), the token set the
// cache diffs between probes to compute drift percentage.
func (p *Page) DOMSkeleton(ctx context.Context) (string, error) {
	res, err := p.rodPage.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `() => {
			const nodes = Array.from(document.querySelectorAll('*')).slice(0, 500);
			return nodes.map(el => el.tagName + '.' + (el.className || '').toString().split(' ').sort().join('.')).join('|');
		}`,
		ByValue: true,
	})
	if err != nil {
		return "", fmt.Errorf("dom skeleton: %w", err)
	}
	return res.Value.String(), nil
}

// DOMFingerprint hashes the DOM skeleton for a cheap equality check; use
// DOMSkeleton directly when a graded drift percentage is needed.
func (p *Page) DOMFingerprint(ctx context.Context) (string, error) {
	skeleton, err := p.DOMSkeleton(ctx)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(skeleton))
	return hex.EncodeToString(sum[:]), nil
}

// MutationsPerSecond samples the DOM mutation rate over window, used by
// the runtime profile detector to classify STATIC vs DYNAMIC.
func (p *Page) MutationsPerSecond(ctx context.Context, window time.Duration) (float64, error) {
	script := fmt.Sprintf(`() => new Promise(resolve => {
		let count = 0;
		const obs = new MutationObserver(muts => { count += muts.length; });
		obs.observe(document.documentElement || document.body, { childList: true, subtree: true, attributes: true });
		setTimeout(() => { obs.disconnect(); resolve(count); }, %d);
	})`, window.Milliseconds())
	res, err := p.rodPage.Context(ctx).Timeout(window + 2*time.Second).Evaluate(&rod.EvalOptions{
		JS:           script,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return 0, fmt.Errorf("mutation sample: %w", err)
	}
	count := res.Value.Int()
	seconds := window.Seconds()
	if seconds <= 0 {
		return 0, nil
	}
	return float64(count) / seconds, nil
}

package adapter

import (
	"context"
	"strings"

	"github.com/go-rod/rod"
)

// ElementVisible reports the element's effective visibility: non-zero size,
// not display:none/visibility:hidden/opacity:0. Position relative to the
// viewport is not checked. A direct boolean check the actionability
// gate can call per candidate.
func ElementVisible(ctx context.Context, el *rod.Element) (bool, error) {
	res, err := el.Eval(`() => {
		const r = this.getBoundingClientRect();
		const cs = window.getComputedStyle(this);
		if (r.width <= 0 || r.height <= 0) return false;
		if (cs.display === 'none' || cs.visibility === 'hidden') return false;
		if (parseFloat(cs.opacity) === 0) return false;
		return true;
	}`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

// BoundingBox is a simplified element rectangle for stability sampling.
type BoundingBox struct {
	X, Y, Width, Height float64
}

// ElementBox returns the element's current bounding box.
func ElementBox(el *rod.Element) (BoundingBox, error) {
	shape, err := el.Shape()
	if err != nil || shape == nil || len(shape.Quads) == 0 {
		return BoundingBox{}, err
	}
	q := shape.Quads[0]
	minX, maxX := q[0], q[0]
	minY, maxY := q[1], q[1]
	for i := 0; i < 4; i++ {
		x, y := q[i*2], q[i*2+1]
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
	}
	return BoundingBox{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, nil
}

// blockedPhrases are text fragments indicating a WAF/anti-bot interstitial
// rather than the page under test.
var blockedPhrases = []string{
	"checking your browser",
	"are you a human",
	"unusual traffic",
	"access denied",
	"request blocked",
	"please verify you are a human",
	"verify you are human",
	"security check",
	"ddos protection by",
	"rate limit exceeded",
}

// blockedWidgetSelectors are DOM fingerprints of common bot-interstitial widgets.
var blockedWidgetSelectors = []string{
	"iframe[src*='recaptcha']",
	"iframe[src*='hcaptcha']",
	"#cf-challenge-running",
	"[class*='cf-browser-verification']",
	"[id*='challenge-form']",
}

// blockedURLPatterns are substrings of the navigated URL that indicate an
// anti-bot challenge redirect ("/captcha", "/challenge",
// "chal_t=", "recaptcha", "hcaptcha").
var blockedURLPatterns = []string{"/captcha", "/challenge", "chal_t=", "recaptcha", "hcaptcha"}

// DetectBlocked reports whether the page is showing a bot-interstitial or
// access-denial page rather than the application under test, and the
// reasons matched. Checked on every step, before readiness and before any
// discovery, so healing never wastes rounds retrying a page
// that was never going to render the target element.
func DetectBlocked(ctx context.Context, page *Page) (bool, []string) {
	var reasons []string
	url := strings.ToLower(page.CurrentURL())
	for _, pattern := range blockedURLPatterns {
		if strings.Contains(url, pattern) {
			reasons = append(reasons, "url:"+pattern)
		}
	}
	for _, phrase := range blockedPhrases {
		if page.TextContains(ctx, phrase) {
			reasons = append(reasons, "phrase:"+phrase)
		}
	}
	if page.HasAny(ctx, blockedWidgetSelectors...) {
		reasons = append(reasons, "widget:challenge")
	}
	return len(reasons) > 0, reasons
}

// Package profile classifies a navigated page as STATIC or DYNAMIC so the
// readiness gate can tune its waits (the actionability gate does not use it),
// using the same DOM-probing style as the adapter package's other
// page-state checks, driven by mutation rate rather than bot-detection
// signals.
package profile

import (
	"context"
	"time"

	"testrunner/internal/config"
	"testrunner/internal/telemetry"
)

// Profile is the detected runtime classification.
type Profile string

const (
	Static  Profile = "STATIC"
	Dynamic Profile = "DYNAMIC"
)

// mutationRateThreshold is the DOM-mutations-per-second rate at or above
// which a page is classified DYNAMIC.
const mutationRateThreshold = 10.0

// sampleWindow is how long the detector observes the page before deciding.
const sampleWindow = 1500 * time.Millisecond

// Sampler is the subset of the browser adapter's Page the detector needs;
// satisfied by *adapter.Page, kept as an interface so detection logic is
// unit-testable without a live browser.
type Sampler interface {
	MutationsPerSecond(ctx context.Context, window time.Duration) (float64, error)
	CurrentURL() string
}

// Detect classifies page per the configured override or else live
// mutation-rate sampling. Deterministic for a fixed mutation rate:
// running it twice on the same trace yields the same profile.
func Detect(ctx context.Context, page Sampler, cfg *config.Config, tel *telemetry.Shim) (Profile, error) {
	switch cfg.ProfileDefault {
	case config.ProfileStatic:
		tel.Profile(string(Static), page.CurrentURL())
		return Static, nil
	case config.ProfileDynamic:
		tel.Profile(string(Dynamic), page.CurrentURL())
		return Dynamic, nil
	}

	rate, err := page.MutationsPerSecond(ctx, sampleWindow)
	if err != nil {
		return Static, err
	}
	detected := FromRate(rate)
	tel.Profile(string(detected), page.CurrentURL())
	return detected, nil
}

// FromRate is the pure classification rule: deterministic given a rate,
// so the same mutation trace always yields the same profile.
func FromRate(mutationsPerSecond float64) Profile {
	if mutationsPerSecond >= mutationRateThreshold {
		return Dynamic
	}
	return Static
}

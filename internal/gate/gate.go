// Package gate implements the five-point actionability gate: unique,
// visible, enabled, stable_bbox, scoped. All five must pass before the
// executor performs an action, and again after every heal round, with
// retry-adaptive thresholds that relax as heal_round increases.
package gate

import (
	"context"
	"errors"
	"time"

	"github.com/go-rod/rod"

	"testrunner/internal/adapter"
	"testrunner/internal/model"
	"testrunner/internal/telemetry"
)

var errNoMatch = errors.New("gate: selector matched no element")

// Thresholds are the retry-adaptive knobs for one gate evaluation,
// derived from heal_round.
type Thresholds struct {
	TimeoutMs   int
	ToleragePx  float64
	Samples     int
	SampleDelay time.Duration
}

// baseTimeoutMs is the gate's round-0 wait budget before a query is
// considered a timeout failure.
const baseTimeoutMs = 2000

// ThresholdsForRound computes timeout_ms, tolerance, and samples for a
// given heal round, per the linear relaxation formulas.
func ThresholdsForRound(healRound int) Thresholds {
	return Thresholds{
		TimeoutMs:   baseTimeoutMs + 1000*healRound,
		ToleragePx:  2.0 + 0.5*float64(healRound),
		Samples:     3 + healRound,
		SampleDelay: 80 * time.Millisecond,
	}
}

// Result is the five-tuple the gate returns.
type Result struct {
	Unique     bool
	Visible    bool
	Enabled    bool
	StableBBox bool
	Scoped     bool
}

// Pass reports whether all five checks succeeded.
func (r Result) Pass() bool {
	return r.Unique && r.Visible && r.Enabled && r.StableBBox && r.Scoped
}

// Failure maps a failed Result to the matching model.Failure variant.
// Checked in gate priority order: uniqueness first, then visibility,
// enablement, stability, and finally scope.
func (r Result) Failure() model.Failure {
	switch {
	case r.Pass():
		return model.FailureNone
	case !r.Unique:
		return model.FailureNotUnique
	case !r.Visible:
		return model.FailureNotVisible
	case !r.Enabled:
		return model.FailureDisabled
	case !r.StableBBox:
		return model.FailureUnstable
	default:
		return model.FailureTimeout // scoped failure at phase 1 maps to timeout
	}
}

// Evaluate runs all five checks against the given selector, scoped within
// `within` if set, using thresholds for the current heal round.
func Evaluate(ctx context.Context, page *adapter.Page, resolve func(context.Context, *adapter.Page, string, string) (adapter.QueryResult, error), selector, within string, healRound int, tel *telemetry.Shim) (Result, error) {
	th := ThresholdsForRound(healRound)

	qctx, cancel := context.WithTimeout(ctx, time.Duration(th.TimeoutMs)*time.Millisecond)
	defer cancel()

	res, err := resolve(qctx, page, selector, within)
	if err != nil {
		return Result{}, err
	}

	result := Result{Scoped: true} // phase 1: single-frame, always in expected scope
	result.Unique = res.Count() == 1
	if !result.Unique {
		tel.Gate(result.Unique, false, false, false, result.Scoped)
		return result, nil
	}

	el, _ := res.First()
	result.Visible, err = adapter.ElementVisible(ctx, el)
	if err != nil {
		return Result{}, err
	}
	result.Enabled, err = adapter.Enabled(el)
	if err != nil {
		return Result{}, err
	}
	result.StableBBox, err = adapter.Stable(el, th.Samples, th.SampleDelay, th.ToleragePx)
	if err != nil {
		return Result{}, err
	}

	tel.Gate(result.Unique, result.Visible, result.Enabled, result.StableBBox, result.Scoped)
	return result, nil
}

// Element returns the sole matched element for the given selector, for
// callers (the executor) that already know the gate passed and need the
// live handle to act on.
func Element(ctx context.Context, page *adapter.Page, resolve func(context.Context, *adapter.Page, string, string) (adapter.QueryResult, error), selector, within string) (*rod.Element, error) {
	res, err := resolve(ctx, page, selector, within)
	if err != nil {
		return nil, err
	}
	el, ok := res.First()
	if !ok {
		return nil, errNoMatch
	}
	return el, nil
}

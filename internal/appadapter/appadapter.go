// Package appadapter implements the pluggable, framework-specific widget
// resolvers the discovery ladder consults ahead of the attribute tiers
// an autocomplete combobox adapter and an ordinal-scoped
// clicker, both registered in a strategy-table
// style: an ordered slice of named,
// predicate-gated handlers rather than a type hierarchy).
package appadapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"testrunner/internal/adapter"
	"testrunner/internal/discovery"
	"testrunner/internal/model"
)

// Actor is the execution half of the app-adapter contract: Resolve (part of
// discovery.AppAdapter) finds the element, Act performs the
// widget-specific interaction sequence and verifies its own success
// indicator instead of falling through to the generic gate+act path.
type Actor interface {
	Act(ctx context.Context, page *adapter.Page, cand model.Candidate, intent model.Intent) (model.ExecResult, error)
}

// MetaKey is the model.Candidate.Meta key an adapter stamps on its
// candidate so the executor knows to route the action through the
// adapter's Act instead of adapter.Act.
const MetaKey = "app_adapter"

// Registry is the ordered list of app adapters the ladder tries before
// falling through to the attribute tiers.
type Registry struct {
	adapters []discovery.AppAdapter
	actors   map[string]Actor
}

// Default builds the registry shipped with this engine: the autocomplete
// combobox adapter and the ordinal-scoped clicker, in that priority order.
func Default() *Registry {
	r := &Registry{actors: map[string]Actor{}}
	r.Register(NewAutocomplete())
	r.Register(NewOrdinalClicker())
	return r
}

// Register adds an adapter, keeping an Actor lookup when the adapter also
// implements one.
func (r *Registry) Register(a discovery.AppAdapter) {
	r.adapters = append(r.adapters, a)
	if actor, ok := a.(Actor); ok {
		r.actors[a.Name()] = actor
	}
}

// Adapters returns the registered adapters in priority order, for wiring
// into discovery.New.
func (r *Registry) Adapters() []discovery.AppAdapter {
	return r.adapters
}

// ActorFor looks up the Actor registered under a candidate's app_adapter
// meta tag, if any.
func (r *Registry) ActorFor(cand model.Candidate) (Actor, bool) {
	name, ok := cand.Meta[MetaKey]
	if !ok {
		return nil, false
	}
	actor, ok := r.actors[name]
	return actor, ok
}

func withMeta(name string) map[string]string {
	return map[string]string{MetaKey: name}
}

// labelOf returns the best available accessible label for an element,
// preferring aria-label, falling back to its associated <label> text.
func labelOf(el discovery.ElementInfo) string {
	if el.AriaLabel != "" {
		return el.AriaLabel
	}
	if el.LabelText != "" {
		return el.LabelText
	}
	return el.AccessibleName
}

// looseMatch is a permissive containment match used by app adapters, which
// operate on widget fingerprints rather than the ladder's strict six-layer
// protection (that protection is the attribute tiers' job).
func looseMatch(candidate, target string) bool {
	if candidate == "" || target == "" {
		return false
	}
	return strings.Contains(strings.ToLower(candidate), strings.ToLower(target)) ||
		strings.Contains(strings.ToLower(target), strings.ToLower(candidate))
}

func waitFor(ctx context.Context, timeout time.Duration, poll func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := poll()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("condition not met within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

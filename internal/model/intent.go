// Package model defines the shared data types threaded through discovery,
// gating, caching, healing, and orchestration.
package model

import "time"

// Action is the verb portion of an Intent.
type Action string

const (
	ActionClick        Action = "click"
	ActionFill         Action = "fill"
	ActionType         Action = "type"
	ActionPress        Action = "press"
	ActionSelect       Action = "select"
	ActionCheck        Action = "check"
	ActionUncheck      Action = "uncheck"
	ActionHover        Action = "hover"
	ActionFocus        Action = "focus"
	ActionGo           Action = "go"
	ActionAssertText   Action = "assert_text"
	ActionAssertVisible Action = "assert_visible"
)

// Fillable reports whether the action requires typed text content.
func (a Action) Fillable() bool {
	switch a {
	case ActionFill, ActionType, ActionSelect, ActionPress:
		return true
	default:
		return false
	}
}

// Intent is the atomic unit of user desire compiled into a plan. Intents
// are immutable once a plan is built.
type Intent struct {
	Element     string
	Region      string
	Action      Action
	Value       string
	Within      string
	Ordinal     *int
	ElementType string
	Expected    string
}

// HasOrdinal reports whether the intent pins a positional index.
func (i Intent) HasOrdinal() bool {
	return i.Ordinal != nil
}

// PlanStep is an Intent enriched with discovery results. Discovery, the
// Healer, and the Executor all mutate these fields over a step's life.
type PlanStep struct {
	Intent        Intent
	Selector      string
	Confidence    float64
	Strategy      string
	Stable        bool
	FallbackChain []string
	DiscoveredAt  time.Time
	Meta          map[string]string
}

// Dataset is one row of substitution variables for a parameterized run.
type Dataset map[string]string

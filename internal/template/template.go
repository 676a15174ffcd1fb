// Package template implements the `${var}`/`${var|default}`/`@env:VAR`
// substitution and tabular dataset iteration required for
// parameterized runs. Unresolved variables fail plan compilation, never a
// live run: CompilePlan is the one place substitution happens, producing
// immutable Intents before the orchestrator ever sees them.
package template

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"testrunner/internal/model"
)

// varPattern matches `${...}` with the raw inner expression captured,
// covering both plain names and the `@env:VAR` and `|default` forms.
var varPattern = regexp.MustCompile(`\$\{([^}]*)\}`)

// Context is the three-layer variable scope substitution resolves against:
// dataset_row, then CLI overrides, then plan-level defaults, earlier
// layers taking precedence.
type Context struct {
	Dataset      model.Dataset
	CLIOverrides map[string]string
	PlanDefaults map[string]string
}

// Lookup resolves name against the three layers in precedence order.
func (c Context) Lookup(name string) (string, bool) {
	if v, ok := c.Dataset[name]; ok {
		return v, true
	}
	if v, ok := c.CLIOverrides[name]; ok {
		return v, true
	}
	if v, ok := c.PlanDefaults[name]; ok {
		return v, true
	}
	return "", false
}

// UnresolvedError names a variable reference that could not be resolved
// against the context and carried no literal default, raised at plan
// compile time: unresolved variables fail plan compilation, not
// a run.
type UnresolvedError struct {
	Var string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved template variable %q", e.Var)
}

// Render substitutes every `${...}` reference in s against ctx. A
// reference of the form `@env:VAR` reads the process environment instead
// of ctx; `|default` supplies a fallback when the variable is absent from
// every layer, or for `@env:VAR` when the env var is unset or empty (a
// context variable present with an empty value renders empty). A reference with no resolvable value and no default
// returns an UnresolvedError wrapping the offending variable name.
func Render(s string, ctx Context) (string, error) {
	var firstErr error
	out := varPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		inner := varPattern.FindStringSubmatch(match)[1]
		name, def, hasDef := strings.Cut(inner, "|")
		name = strings.TrimSpace(name)

		value, ok := resolve(name, ctx)
		if !ok {
			if hasDef {
				return def
			}
			firstErr = &UnresolvedError{Var: name}
			return match
		}
		return value
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func resolve(name string, ctx Context) (string, bool) {
	if rest, ok := strings.CutPrefix(name, "@env:"); ok {
		v := os.Getenv(rest)
		return v, v != ""
	}
	return ctx.Lookup(name)
}

// CompilePlan renders every Intent's Value field against ctx, returning a
// new immutable slice (Intents never mutate in place once compiled) or the
// first UnresolvedError encountered.
func CompilePlan(intents []model.Intent, ctx Context) ([]model.Intent, error) {
	out := make([]model.Intent, len(intents))
	for i, intent := range intents {
		rendered, err := Render(intent.Value, ctx)
		if err != nil {
			return nil, fmt.Errorf("compile step %d (%s): %w", i, intent.Element, err)
		}
		intent.Value = rendered
		out[i] = intent
	}
	return out, nil
}

// Rows expands a tabular dataset (one row of substitution variables per
// iteration) into one Context per row, layered over shared CLI overrides
// and plan defaults, for parameterized/data-driven run iteration.
func Rows(dataset []model.Dataset, cliOverrides, planDefaults map[string]string) []Context {
	if len(dataset) == 0 {
		return []Context{{Dataset: model.Dataset{}, CLIOverrides: cliOverrides, PlanDefaults: planDefaults}}
	}
	out := make([]Context, len(dataset))
	for i, row := range dataset {
		out[i] = Context{Dataset: row, CLIOverrides: cliOverrides, PlanDefaults: planDefaults}
	}
	return out
}

package appadapter

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"testrunner/internal/adapter"
	"testrunner/internal/discovery"
	"testrunner/internal/model"
)

// ordinalFamilies mirrors the discovery ladder's role-family heuristics
// (video/result/link/button/item/card) so "first video" / "second result"
// phrasing resolves the same way whether or not the planner pinned an
// explicit ordinal.
var ordinalFamilies = map[string]*regexp.Regexp{
	"video":  regexp.MustCompile(`(?i)video`),
	"result": regexp.MustCompile(`(?i)result`),
	"link":   regexp.MustCompile(`(?i)^a\s`),
	"button": regexp.MustCompile(`(?i)^button\s`),
	"item":   regexp.MustCompile(`(?i)item`),
	"card":   regexp.MustCompile(`(?i)card`),
}

var ordinalFamilyOrder = []string{"video", "result", "link", "button", "item", "card"}

// OrdinalClicker resolves "first video" / "second result" style intents by
// selecting the Nth element of a role family scoped to a named region,
// defaulting to the first (ordinal 0) when the planner left it unpinned
// (the "ordinal-scoped clicker" contract).
type OrdinalClicker struct{}

// NewOrdinalClicker constructs the ordinal-scoped clicker app adapter.
func NewOrdinalClicker() *OrdinalClicker { return &OrdinalClicker{} }

func (o *OrdinalClicker) Name() string { return "ordinal_scoped_clicker" }

// Supports triggers only when the intent names a region to scope within;
// intents without one are left to the core ladder's ordinal strategy.
func (o *OrdinalClicker) Supports(intent model.Intent) bool {
	if intent.Region == "" {
		return false
	}
	return o.family(intent) != ""
}

func (o *OrdinalClicker) family(intent model.Intent) string {
	if intent.ElementType != "" {
		if _, ok := ordinalFamilies[intent.ElementType]; ok {
			return intent.ElementType
		}
	}
	lower := strings.ToLower(intent.Element)
	for _, fam := range ordinalFamilyOrder {
		if strings.Contains(lower, fam) {
			return fam
		}
	}
	return ""
}

func (o *OrdinalClicker) Resolve(ctx context.Context, page *adapter.Page, intent model.Intent) (model.Candidate, bool, error) {
	family := o.family(intent)
	if family == "" {
		return model.Candidate{}, false, nil
	}
	elements, err := discovery.Collect(ctx, page, intent.Region)
	if err != nil {
		return model.Candidate{}, false, err
	}
	pattern := ordinalFamilies[family]
	var matches []discovery.ElementInfo
	for _, el := range elements {
		haystack := el.Tag + " " + strings.Join(el.ClassList, " ") + " " + el.Role
		if pattern.MatchString(haystack) {
			matches = append(matches, el)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Index < matches[j].Index })

	ord := 0
	if intent.HasOrdinal() {
		ord = *intent.Ordinal
	}
	if ord < 0 || ord >= len(matches) {
		return model.Candidate{}, false, nil
	}
	return model.Candidate{
		Selector: fmt.Sprintf("role=%s >> nth=%d", family, ord),
		Score:    0.95,
		Strategy: o.Name(),
		Stable:   false,
		Meta:     withMeta(o.Name()),
	}, true, nil
}

// Act clicks the resolved element; the ordinal-scoped clicker has no
// widget-specific verification beyond the five-point gate the executor
// already runs, so it delegates straight to the generic browser action.
func (o *OrdinalClicker) Act(ctx context.Context, page *adapter.Page, cand model.Candidate, intent model.Intent) (model.ExecResult, error) {
	res, err := discovery.Resolve(ctx, page, cand.Selector, intent.Region)
	if err != nil {
		return model.ExecResult{}, err
	}
	el, ok := res.First()
	if !ok {
		return model.ExecResult{Success: false, Failure: model.FailureDiscoveryFailed, Detail: "ordinal target not found"}, nil
	}
	if err := adapter.Act(ctx, el, string(intent.Action), intent.Value); err != nil {
		return model.ExecResult{}, err
	}
	return model.ExecResult{Success: true}, nil
}

package discovery

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"testrunner/internal/model"
)

// nonFillableTypes are input[type=] values the false-positive filter's
// layer 1 rejects for fill/type actions.
var nonFillableTypes = map[string]bool{
	"range": true, "color": true, "file": true, "button": true,
	"submit": true, "image": true, "reset": true, "hidden": true,
}

// uiControlTokens are aria-label substrings layer 2 rejects for data-field
// intents, since they indicate a generic UI widget rather than the field itself.
var uiControlTokens = []string{"resize", "width", "column", "slider", "spinner"}

// allowedSuffixes are trailing decorations layer 3 tolerates on an
// otherwise-anchored fuzzy match (e.g. "Name" matches "Name *").
var allowedSuffixes = []string{"*", "(required)", "(optional)", ":", "."}

func isFillAction(intent model.Intent) bool {
	return intent.Action.Fillable()
}

func passesLayer1(el ElementInfo, intent model.Intent) bool {
	if !isFillAction(intent) {
		return true
	}
	if el.Tag != "input" {
		return true
	}
	return !nonFillableTypes[el.Type]
}

func passesLayer2(label string, intent model.Intent) bool {
	if !isFillAction(intent) {
		return true
	}
	lower := strings.ToLower(label)
	for _, tok := range uiControlTokens {
		if strings.Contains(lower, tok) {
			return false
		}
	}
	return true
}

// anchoredMatch implements layer 3: exact match, or target followed by one
// of a whitelisted decoration, never an arbitrary continuation.
func anchoredMatch(candidate, target string) bool {
	c := strings.TrimSpace(candidate)
	t := strings.TrimSpace(target)
	if strings.EqualFold(c, t) {
		return true
	}
	lowerC := strings.ToLower(c)
	lowerT := strings.ToLower(t)
	if !strings.HasPrefix(lowerC, lowerT) {
		return false
	}
	rest := strings.TrimSpace(c[len(t):])
	if rest == "" {
		return true
	}
	for _, suf := range allowedSuffixes {
		if rest == suf {
			return true
		}
	}
	return false
}

// looseAnchoredMatch is the reprobe-only relaxation of anchoredMatch (the
// heal engine's reprobe phase): plain case-insensitive substring containment
// instead of the strict anchor + whitelisted-suffix rule, used once a
// step has already failed and healing is trying progressively looser
// matching rather than the ladder's default false-positive protection.
func looseAnchoredMatch(candidate, target string) bool {
	if candidate == "" || target == "" {
		return false
	}
	c := strings.ToLower(strings.TrimSpace(candidate))
	t := strings.ToLower(strings.TrimSpace(target))
	return strings.Contains(c, t) || strings.Contains(t, c)
}

// disabledOK rejects elements disabled for non-assertion actions.
func disabledOK(el ElementInfo, intent model.Intent) bool {
	if intent.Action == model.ActionAssertVisible || intent.Action == model.ActionAssertText {
		return true
	}
	return !el.Disabled
}

// disambiguate implements layer 5: if more than one candidate remains,
// the intent's ordinal picks one; an unresolved multi-match fails the tier.
func disambiguate(matches []ElementInfo, intent model.Intent) (ElementInfo, bool) {
	switch len(matches) {
	case 0:
		return ElementInfo{}, false
	case 1:
		return matches[0], true
	}
	if intent.HasOrdinal() {
		ord := *intent.Ordinal
		if ord >= 0 && ord < len(matches) {
			return matches[ord], true
		}
	}
	return ElementInfo{}, false
}

type tierSpec struct {
	num      int
	strategy string
	score    float64
	stable   bool
	field    func(ElementInfo) string
	selector func(ElementInfo) string
}

var tierTable = []tierSpec{
	{
		num: 1, strategy: "aria-label", score: 0.95, stable: true,
		field:    func(e ElementInfo) string { return e.AriaLabel },
		selector: func(e ElementInfo) string { return fmt.Sprintf("[aria-label=%s]", cssQuote(e.AriaLabel)) },
	},
	{
		num: 2, strategy: "aria-placeholder", score: 0.92, stable: true,
		field:    func(e ElementInfo) string { return e.AriaPlaceholder },
		selector: func(e ElementInfo) string { return fmt.Sprintf("[aria-placeholder=%s]", cssQuote(e.AriaPlaceholder)) },
	},
	{
		num: 3, strategy: "name", score: 0.98, stable: true,
		field:    func(e ElementInfo) string { return e.Name },
		selector: func(e ElementInfo) string { return fmt.Sprintf("[name=%s]", cssQuote(e.Name)) },
	},
	{
		num: 4, strategy: "placeholder", score: 0.88, stable: true,
		field:    func(e ElementInfo) string { return e.Placeholder },
		selector: func(e ElementInfo) string { return fmt.Sprintf("[placeholder=%s]", cssQuote(e.Placeholder)) },
	},
	{
		num: 5, strategy: "label-for", score: 0.92, stable: true,
		field: func(e ElementInfo) string { return e.LabelText },
		selector: func(e ElementInfo) string {
			if e.ID != "" {
				return fmt.Sprintf("#%s", cssIdent(e.ID))
			}
			return fmt.Sprintf("[name=%s]", cssQuote(e.Name))
		},
	},
	{
		num: 7, strategy: "data-test-attr", score: 0.85, stable: true,
		field:    func(e ElementInfo) string { return e.DataTestID },
		selector: func(e ElementInfo) string { return fmt.Sprintf("[data-testid=%s]", cssQuote(e.DataTestID)) },
	},
	{
		num: 8, strategy: "id-or-class", score: 0.70, stable: false,
		field: func(e ElementInfo) string {
			if e.ID != "" {
				return e.ID
			}
			if len(e.ClassList) > 0 {
				return e.ClassList[0]
			}
			return ""
		},
		selector: func(e ElementInfo) string {
			if e.ID != "" {
				return fmt.Sprintf("#%s", cssIdent(e.ID))
			}
			return fmt.Sprintf(".%s", cssIdent(e.ClassList[0]))
		},
	},
}

// matchTier runs the six-layer protection for one tier and returns a
// Candidate if exactly one element survives or the intent's ordinal picks
// one of several.
func matchTier(t tierSpec, elements []ElementInfo, intent model.Intent) (model.Candidate, bool) {
	var matches []ElementInfo
	for _, el := range elements {
		field := t.field(el)
		if field == "" {
			continue
		}
		if !anchoredMatch(field, intent.Element) {
			continue
		}
		if !passesLayer1(el, intent) {
			continue
		}
		if !passesLayer2(field, intent) {
			continue
		}
		if !disabledOK(el, intent) {
			continue
		}
		matches = append(matches, el)
	}
	winner, ok := disambiguate(matches, intent)
	if !ok {
		return model.Candidate{}, false
	}
	return model.Candidate{
		Selector: t.selector(winner),
		Score:    t.score,
		Strategy: t.strategy,
		Stable:   t.stable,
	}, true
}

// matchTierLoose is matchTier with looseAnchoredMatch substituted for the
// strict anchor rule, used by the healer's reprobe phase once a round's
// relaxation schedule enables it for a given tier (round 2
// enables tier 4-5 fallbacks).
func matchTierLoose(t tierSpec, elements []ElementInfo, intent model.Intent) (model.Candidate, bool) {
	var matches []ElementInfo
	for _, el := range elements {
		field := t.field(el)
		if field == "" {
			continue
		}
		if !looseAnchoredMatch(field, intent.Element) {
			continue
		}
		if !passesLayer1(el, intent) {
			continue
		}
		if !passesLayer2(field, intent) {
			continue
		}
		if !disabledOK(el, intent) {
			continue
		}
		matches = append(matches, el)
	}
	winner, ok := disambiguate(matches, intent)
	if !ok {
		return model.Candidate{}, false
	}
	return model.Candidate{
		Selector: t.selector(winner),
		Score:    t.score,
		Strategy: t.strategy,
		Stable:   t.stable,
	}, true
}

// role+accessible-name tier (#6): role is inferred from action plus
// keyword hints, and the candidate is name-dependent so it is not stable.
var buttonKeywords = []string{"login", "log in", "submit", "save", "continue", "sign in", "sign up", "ok", "confirm"}

func inferRole(intent model.Intent) string {
	lower := strings.ToLower(intent.Element)
	for _, kw := range buttonKeywords {
		if strings.Contains(lower, kw) {
			return "button"
		}
	}
	switch intent.Action {
	case model.ActionClick, model.ActionHover, model.ActionFocus:
		return "button"
	default:
		return "textbox"
	}
}

func matchTier6(elements []ElementInfo, intent model.Intent) (model.Candidate, bool) {
	role := inferRole(intent)
	var matches []ElementInfo
	for _, el := range elements {
		effectiveRole := el.Role
		if effectiveRole == "" {
			effectiveRole = el.Tag
		}
		if effectiveRole != role && !(role == "button" && el.Tag == "button") {
			continue
		}
		if !anchoredMatch(el.AccessibleName, intent.Element) {
			continue
		}
		if !disabledOK(el, intent) {
			continue
		}
		matches = append(matches, el)
	}
	winner, ok := disambiguate(matches, intent)
	if !ok {
		return model.Candidate{}, false
	}
	selector := fmt.Sprintf(`[role=%s]`, cssQuote(role))
	if winner.ID != "" {
		selector = fmt.Sprintf("#%s", cssIdent(winner.ID))
	}
	return model.Candidate{Selector: selector, Score: 0.95, Strategy: "role-accessible-name", Stable: false}, true
}

// matchTier6Loose is matchTier6 with looseAnchoredMatch for the
// accessible-name comparison, used by the healer's reprobe phase once
// round 1's relaxation schedule loosens tier 6 fuzzy matching.
func matchTier6Loose(elements []ElementInfo, intent model.Intent) (model.Candidate, bool) {
	role := inferRole(intent)
	var matches []ElementInfo
	for _, el := range elements {
		effectiveRole := el.Role
		if effectiveRole == "" {
			effectiveRole = el.Tag
		}
		if effectiveRole != role && !(role == "button" && el.Tag == "button") {
			continue
		}
		if !looseAnchoredMatch(el.AccessibleName, intent.Element) {
			continue
		}
		if !disabledOK(el, intent) {
			continue
		}
		matches = append(matches, el)
	}
	winner, ok := disambiguate(matches, intent)
	if !ok {
		return model.Candidate{}, false
	}
	selector := fmt.Sprintf(`[role=%s]`, cssQuote(role))
	if winner.ID != "" {
		selector = fmt.Sprintf("#%s", cssIdent(winner.ID))
	}
	return model.Candidate{Selector: selector, Score: 0.90, Strategy: "role-accessible-name-loose", Stable: false}, true
}

// roleFamilies maps the ordinal strategy's inferred role families to the
// structural/class heuristics that approximate them in plain HTML.
var roleFamilies = map[string]*regexp.Regexp{
	"video":  regexp.MustCompile(`(?i)video`),
	"result": regexp.MustCompile(`(?i)result`),
	"link":   regexp.MustCompile(`(?i)^a\s`),
	"button": regexp.MustCompile(`(?i)^button\s`),
	"item":   regexp.MustCompile(`(?i)item`),
	"card":   regexp.MustCompile(`(?i)card`),
}

var familyOrder = []string{"video", "result", "link", "button", "item", "card"}

// inferRoleFamily picks the ordinal strategy's role family from the
// intent's declared element_type, falling back to keyword hints in the
// element name.
func inferRoleFamily(intent model.Intent) string {
	if intent.ElementType != "" {
		return intent.ElementType
	}
	lower := strings.ToLower(intent.Element)
	for _, fam := range familyOrder {
		if strings.Contains(lower, fam) {
			return fam
		}
	}
	return "item"
}

// matchOrdinal implements the ordinal strategy: select the Nth element of
// the inferred role family, synthesizing the "role=ROLE >> nth=N" locator
// the resolver (resolve.go) knows how to re-query.
func matchOrdinal(elements []ElementInfo, intent model.Intent) (model.Candidate, bool) {
	if !intent.HasOrdinal() {
		return model.Candidate{}, false
	}
	family := inferRoleFamily(intent)
	pattern, ok := roleFamilies[family]
	if !ok {
		pattern = roleFamilies["item"]
	}
	var familyMatches []ElementInfo
	for _, el := range elements {
		haystack := el.Tag + " " + strings.Join(el.ClassList, " ") + " " + el.Role
		if pattern.MatchString(haystack) {
			familyMatches = append(familyMatches, el)
		}
	}
	sort.SliceStable(familyMatches, func(i, j int) bool { return familyMatches[i].Index < familyMatches[j].Index })

	ord := *intent.Ordinal
	if ord < 0 || ord >= len(familyMatches) {
		return model.Candidate{}, false
	}
	return model.Candidate{
		Selector: fmt.Sprintf("role=%s >> nth=%d", family, ord),
		Score:    0.95,
		Strategy: "ordinal",
		Stable:   false,
	}, true
}

// cssIdent escapes an id/class token for use unescaped after # or . in a
// selector (best-effort; assumes the common case of simple identifiers).
func cssIdent(v string) string {
	replacer := strings.NewReplacer(":", `\:`, ".", `\.`, " ", `\ `)
	return replacer.Replace(v)
}

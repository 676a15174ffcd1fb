package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"testrunner/internal/model"
)

func TestAnchoredMatchAcceptsWhitelistedSuffix(t *testing.T) {
	assert.True(t, anchoredMatch("Name *", "Name"))
	assert.True(t, anchoredMatch("Name (required)", "Name"))
	assert.True(t, anchoredMatch("name", "Name"))
	assert.False(t, anchoredMatch("Name of Parent Account", "Name"))
	assert.False(t, anchoredMatch("Nickname", "Name"))
}

func TestPassesLayer1RejectsNonFillableInputTypes(t *testing.T) {
	fillIntent := model.Intent{Action: model.ActionFill}
	el := ElementInfo{Tag: "input", Type: "file"}
	assert.False(t, passesLayer1(el, fillIntent))

	el.Type = "text"
	assert.True(t, passesLayer1(el, fillIntent))

	clickIntent := model.Intent{Action: model.ActionClick}
	el.Type = "file"
	assert.True(t, passesLayer1(el, clickIntent))
}

func TestPassesLayer2RejectsUIControlTokens(t *testing.T) {
	fillIntent := model.Intent{Action: model.ActionFill}
	assert.False(t, passesLayer2("Column Resize Handle", fillIntent))
	assert.True(t, passesLayer2("Amount", fillIntent))
}

func TestMatchTierAriaLabelExactMatch(t *testing.T) {
	intent := model.Intent{Element: "Search Wikipedia", Action: model.ActionFill}
	elements := []ElementInfo{
		{Tag: "input", Type: "search", AriaLabel: "Search Wikipedia"},
	}
	c, ok := matchTier(tierTable[0], elements, intent)
	if assert.True(t, ok) {
		assert.Equal(t, `[aria-label="Search Wikipedia"]`, c.Selector)
		assert.Equal(t, "aria-label", c.Strategy)
		assert.Equal(t, 0.95, c.Score)
		assert.True(t, c.Stable)
	}
}

func TestMatchTierFailsOnUnresolvedAmbiguity(t *testing.T) {
	intent := model.Intent{Element: "Name", Action: model.ActionFill}
	elements := []ElementInfo{
		{Tag: "input", Type: "text", AriaLabel: "Name"},
		{Tag: "input", Type: "text", AriaLabel: "Name"},
	}
	_, ok := matchTier(tierTable[0], elements, intent)
	assert.False(t, ok)
}

func TestMatchTierDisambiguatesWithOrdinal(t *testing.T) {
	ord := 1
	intent := model.Intent{Element: "Name", Action: model.ActionFill, Ordinal: &ord}
	elements := []ElementInfo{
		{Tag: "input", Type: "text", AriaLabel: "Name", ID: "a"},
		{Tag: "input", Type: "text", AriaLabel: "Name", ID: "b"},
	}
	c, ok := matchTier(tierTable[0], elements, intent)
	if assert.True(t, ok) {
		assert.Contains(t, c.Selector, "Name")
	}
}

func TestMatchOrdinalSelectsNthOfFamily(t *testing.T) {
	ord := 0
	intent := model.Intent{Element: "First Video", Action: model.ActionClick, Ordinal: &ord, ElementType: "video"}
	elements := []ElementInfo{
		{Index: 0, Tag: "div", ClassList: []string{"video-title"}},
		{Index: 1, Tag: "div", ClassList: []string{"video-title"}},
	}
	c, ok := matchOrdinal(elements, intent)
	if assert.True(t, ok) {
		assert.Equal(t, "role=video >> nth=0", c.Selector)
		assert.Equal(t, "ordinal", c.Strategy)
		assert.False(t, c.Stable)
	}
}

func TestMatchTier6RoleAccessibleNameNotStable(t *testing.T) {
	intent := model.Intent{Element: "Save", Action: model.ActionClick}
	elements := []ElementInfo{
		{Tag: "button", AccessibleName: "Save"},
	}
	c, ok := matchTier6(elements, intent)
	if assert.True(t, ok) {
		assert.False(t, c.Stable)
		assert.Equal(t, "role-accessible-name", c.Strategy)
	}
}

func TestInferRoleFamilyPrefersExplicitElementType(t *testing.T) {
	intent := model.Intent{Element: "thing", ElementType: "card"}
	assert.Equal(t, "card", inferRoleFamily(intent))
}

func TestInferRoleFamilyFallsBackToKeyword(t *testing.T) {
	intent := model.Intent{Element: "First Result"}
	assert.Equal(t, "result", inferRoleFamily(intent))
}

func TestLooseAnchoredMatchAcceptsSubstring(t *testing.T) {
	assert.True(t, looseAnchoredMatch("Name of Parent Account", "Name"))
	assert.False(t, looseAnchoredMatch("Unrelated", "Name"))
}

func TestMatchTier6LooseAcceptsSubstringAccessibleName(t *testing.T) {
	intent := model.Intent{Element: "Save", Action: model.ActionClick}
	elements := []ElementInfo{{Tag: "button", AccessibleName: "Save and Continue"}}

	_, strictOK := matchTier6(elements, intent)
	assert.False(t, strictOK)

	c, looseOK := matchTier6Loose(elements, intent)
	if assert.True(t, looseOK) {
		assert.False(t, c.Stable)
		assert.Equal(t, "role-accessible-name-loose", c.Strategy)
	}
}

func TestMatchTierLooseAcceptsNonAnchoredField(t *testing.T) {
	intent := model.Intent{Element: "Name", Action: model.ActionFill}
	elements := []ElementInfo{{Tag: "input", Type: "text", AriaLabel: "Name of Parent Account"}}

	_, strictOK := matchTier(tierTable[0], elements, intent)
	assert.False(t, strictOK)

	c, looseOK := matchTierLoose(tierTable[0], elements, intent)
	if assert.True(t, looseOK) {
		assert.Equal(t, "aria-label", c.Strategy)
	}
}

func TestCombineConfidenceMonotoneAndClamped(t *testing.T) {
	base := CombineConfidence(0.70, false, 0)
	assert.Equal(t, 0.70, base)

	withCache := CombineConfidence(0.70, true, 0)
	assert.Greater(t, withCache, base)

	withHealPrior := CombineConfidence(0.70, false, 1.0)
	assert.Greater(t, withHealPrior, base)

	assert.Equal(t, 1.0, CombineConfidence(0.98, true, 1.0))
	assert.LessOrEqual(t, CombineConfidence(0.98, true, 1.0), 1.0)
}

func TestParseRoleNth(t *testing.T) {
	role, nth, ok := parseRoleNth("role=link >> nth=0")
	assert.True(t, ok)
	assert.Equal(t, "link", role)
	assert.Equal(t, 0, nth)

	_, _, ok = parseRoleNth("[aria-label=\"Search\"]")
	assert.False(t, ok)
}

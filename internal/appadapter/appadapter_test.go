package appadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"testrunner/internal/discovery"
	"testrunner/internal/model"
)

func intPtr(v int) *int { return &v }

func TestAutocompleteSupportsOnlyDeclaredWidgets(t *testing.T) {
	a := NewAutocomplete()
	assert.True(t, a.Supports(model.Intent{ElementType: "autocomplete"}))
	assert.False(t, a.Supports(model.Intent{ElementType: "select"}))
	assert.False(t, a.Supports(model.Intent{}))
}

func TestLooksLikeComboboxMatchesRoleOrClassHint(t *testing.T) {
	assert.True(t, looksLikeCombobox(discovery.ElementInfo{Role: "combobox"}))
	assert.True(t, looksLikeCombobox(discovery.ElementInfo{Tag: "div", ClassList: []string{"slds-combobox"}}))
	assert.False(t, looksLikeCombobox(discovery.ElementInfo{Tag: "input", ClassList: []string{"text-field"}}))
}

func TestSelectorForPrefersIDThenAriaLabelThenName(t *testing.T) {
	assert.Equal(t, "#stage", selectorFor(discovery.ElementInfo{ID: "stage", AriaLabel: "Stage", Name: "stage"}))
	assert.Equal(t, `[aria-label="Stage"]`, selectorFor(discovery.ElementInfo{AriaLabel: "Stage", Name: "stage"}))
	assert.Equal(t, `[name="stage"]`, selectorFor(discovery.ElementInfo{Name: "stage"}))
	assert.Equal(t, "[role=combobox]", selectorFor(discovery.ElementInfo{}))
}

func TestOrdinalClickerSupportsRequiresRegionAndRecognizedFamily(t *testing.T) {
	o := NewOrdinalClicker()
	assert.True(t, o.Supports(model.Intent{Region: "search results", Element: "first video"}))
	assert.False(t, o.Supports(model.Intent{Element: "first video"})) // no region
	assert.False(t, o.Supports(model.Intent{Region: "sidebar", Element: "mystery widget"}))
}

func TestOrdinalClickerFamilyPrefersExplicitElementType(t *testing.T) {
	o := NewOrdinalClicker()
	assert.Equal(t, "card", o.family(model.Intent{ElementType: "card", Element: "result row"}))
	assert.Equal(t, "result", o.family(model.Intent{Element: "second result"}))
	assert.Equal(t, "", o.family(model.Intent{Element: "nothing recognizable"}))
}

func TestRegistryDefaultRegistersBothAdaptersInOrder(t *testing.T) {
	r := Default()
	adapters := r.Adapters()
	if assert.Len(t, adapters, 2) {
		assert.Equal(t, "autocomplete", adapters[0].Name())
		assert.Equal(t, "ordinal_scoped_clicker", adapters[1].Name())
	}
}

func TestRegistryActorForResolvesByMetaTag(t *testing.T) {
	r := Default()
	cand := model.Candidate{Strategy: "autocomplete_first_option", Meta: withMeta("autocomplete")}
	actor, ok := r.ActorFor(cand)
	assert.True(t, ok)
	assert.IsType(t, &Autocomplete{}, actor)

	_, ok = r.ActorFor(model.Candidate{})
	assert.False(t, ok)
}

func TestLooseMatchIsCaseInsensitiveAndBidirectionalContainment(t *testing.T) {
	assert.True(t, looseMatch("Stage", "stage"))
	assert.True(t, looseMatch("Opportunity Stage", "stage"))
	assert.True(t, looseMatch("stage", "opportunity stage"))
	assert.False(t, looseMatch("amount", "stage"))
	assert.False(t, looseMatch("", "stage"))
}

func TestIntPtrHelperForOrdinalIntents(t *testing.T) {
	v := intPtr(1)
	assert.Equal(t, 1, *v)
}

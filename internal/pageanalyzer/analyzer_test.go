package pageanalyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntegrals/openbrowser-sub001/internal/render"
)

func TestLocatorForPrefersCSS(t *testing.T) {
	entry := render.SelectorEntry{CSSSelector: "#submit", XPath: "/html/body/button[1]"}
	assert.Equal(t, "#submit", locatorFor(entry))
}

func TestLocatorForFallsBackToXPath(t *testing.T) {
	entry := render.SelectorEntry{XPath: "/html/body/button[1]"}
	assert.Equal(t, "xpath:/html/body/button[1]", locatorFor(entry))
}

func TestLocatorForEmptyWhenUnresolved(t *testing.T) {
	assert.Equal(t, "", locatorFor(render.SelectorEntry{}))
}

func TestAsPlaywrightSelectorConvertsXPathPrefix(t *testing.T) {
	assert.Equal(t, "xpath=/html/body", asPlaywrightSelector("xpath:/html/body"))
	assert.Equal(t, "#id", asPlaywrightSelector("#id"))
}

func TestQuadCentroid(t *testing.T) {
	// A 100x50 box at (0,0): corners clockwise from top-left.
	quad := []float64{0, 0, 100, 0, 100, 50, 0, 50}
	x, y := quadCentroid(quad)
	assert.InDelta(t, 50, x, 0.001)
	assert.InDelta(t, 25, y, 0.001)
}

func newTestAnalyzer() *Analyzer {
	return &Analyzer{}
}

func TestGetCachedTreeErrorsWhenUnset(t *testing.T) {
	a := newTestAnalyzer()
	_, err := a.GetCachedTree()
	assert.Error(t, err)
}

func TestGetElementSelectorMissing(t *testing.T) {
	a := newTestAnalyzer()
	_, ok := a.GetElementSelector(0)
	assert.False(t, ok)
}

func TestFindByTextNoStateYieldsError(t *testing.T) {
	a := newTestAnalyzer()
	_, err := a.FindByText(nil, "anything", false)
	require.Error(t, err)
}

func TestFindByTextExactAndFuzzy(t *testing.T) {
	a := newTestAnalyzer()
	a.state = &render.State{SelectorMap: map[int]render.SelectorEntry{
		0: {Text: "Sign In", AriaLabel: ""},
		1: {Text: "", AriaLabel: "Create account"},
	}}

	idx, err := a.FindByText(nil, "Sign In", true)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	idx, err = a.FindByText(nil, "create", false)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = a.FindByText(nil, "nonexistent", true)
	assert.Error(t, err)
}

func TestInteractionLogIsAppendOnlyAndClearable(t *testing.T) {
	a := newTestAnalyzer()
	a.recordInteraction(0, "click", render.SelectorEntry{TagName: "button"})
	a.recordInteraction(1, "input_text", render.SelectorEntry{TagName: "input"})

	got := a.GetInteractedElements()
	require.Len(t, got, 2)
	assert.Equal(t, "click", got[0].Action)
	assert.Equal(t, "input_text", got[1].Action)

	a.ClearInteractedElements()
	assert.Empty(t, a.GetInteractedElements())
}

func TestClearCacheDropsStateAndBaseline(t *testing.T) {
	a := newTestAnalyzer()
	a.state = &render.State{SelectorMap: map[int]render.SelectorEntry{0: {}}}
	a.priorSelectors = map[string]bool{"#x": true}

	a.ClearCache()

	_, err := a.GetCachedState()
	assert.Error(t, err)
	assert.Nil(t, a.priorSelectors)
}

func TestTrimForAudit(t *testing.T) {
	assert.Equal(t, "hello", trimForAudit("  hello  ", 10))
	assert.Equal(t, "hel", trimForAudit("hello", 3))
}

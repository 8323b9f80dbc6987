package promptbuilder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntegrals/openbrowser-sub001/internal/model"
	"github.com/ntegrals/openbrowser-sub001/internal/render"
)

func TestTruncateAtParagraphKeepsShortTextIntact(t *testing.T) {
	text := "short text"
	assert.Equal(t, text, truncateAtParagraph(text, 100))
}

func TestTruncateAtParagraphBreaksAtBlankLine(t *testing.T) {
	text := "first paragraph\n\nsecond paragraph that is quite long and would be cut mid-sentence otherwise"
	out := truncateAtParagraph(text, len("first paragraph")+5)
	assert.True(t, strings.HasPrefix(out, "first paragraph"))
	assert.Contains(t, out, "truncated")
}

func TestBuildIncludesAllSections(t *testing.T) {
	b := NewBuilder()
	parts := b.Build(Input{
		Task:              "buy a book",
		SensitiveDataKeys: []string{"password"},
		Step:              2,
		StepLimit:         20,
		Tabs:              []TabInfo{{ID: "tab-1", URL: "https://example.com", Title: "Example", Current: true}},
		State: &render.State{
			Tree:                    "[0]<button>Buy</button>\n",
			ElementCount:            5,
			InteractiveElementCount: 1,
		},
	})
	require.Len(t, parts, 1)
	text := parts[0].Text
	assert.Contains(t, text, "<agent_history>")
	assert.Contains(t, text, "<agent_state>")
	assert.Contains(t, text, "sensitive_data: password")
	assert.Contains(t, text, "<browser_state>")
	assert.Contains(t, text, "tab-1")
	assert.Contains(t, text, "[0]<button>Buy</button>")
}

func TestBuildOmitsScreenshotOnFreshBlankFirstStep(t *testing.T) {
	b := NewBuilder()
	parts := b.Build(Input{
		Task:                  "search",
		Vision:                true,
		IsFreshBlankFirstStep: true,
		Screenshot:            []byte{1, 2, 3},
	})
	for _, p := range parts {
		assert.NotEqual(t, model.PartImage, p.Type)
	}
}

func TestBuildAttachesScreenshotWhenVisionOn(t *testing.T) {
	b := NewBuilder()
	parts := b.Build(Input{
		Task:       "search",
		Vision:     true,
		Screenshot: []byte{1, 2, 3},
	})
	require.Len(t, parts, 2)
	assert.Equal(t, model.PartImage, parts[1].Type)
}

func TestBuildOmitsPageSpecificActionsWhenNone(t *testing.T) {
	b := NewBuilder()
	parts := b.Build(Input{
		Task: "checkout",
	})
	require.Len(t, parts, 1)
	assert.NotContains(t, parts[0].Text, "<page_specific_actions>")
}

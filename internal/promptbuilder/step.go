package promptbuilder

import (
	"fmt"
	"strings"

	"github.com/ntegrals/openbrowser-sub001/internal/catalog"
	"github.com/ntegrals/openbrowser-sub001/internal/history"
	"github.com/ntegrals/openbrowser-sub001/internal/model"
	"github.com/ntegrals/openbrowser-sub001/internal/render"
)

// DefaultMaxElementsLength is spec §4.5's maxElementsLength default.
const DefaultMaxElementsLength = 40000

// HistoryWindow is how many trailing steps render into <agent_history>,
// matching the teacher's last(history, 5) windowing via history.Trail.
const HistoryWindow = 5

// TabInfo is one open tab's summary for the <browser_state> tabs list.
type TabInfo struct {
	ID      string
	URL     string
	Title   string
	Current bool
}

// Input is everything StepPromptBuilder needs to compose one step's user
// message (spec §4.5 step 3).
type Input struct {
	Task              string
	Plan              string
	SensitiveDataKeys []string

	Step      int
	StepLimit int

	Tabs  []TabInfo
	State *render.State

	History []history.StepRecord

	// PageSpecificEntries is the domain-filtered catalog subset for the
	// current page's origin (spec's <page_specific_actions?>).
	PageSpecificEntries []*catalog.Entry

	// Vision enables screenshot attachment; Screenshot is omitted when the
	// page is a fresh blank-tab first step (spec §4.5 step 3).
	Vision                bool
	Screenshot            []byte
	IsFreshBlankFirstStep bool

	MaxElementsLength int
}

// Builder composes per-step user messages. Stateless; safe for reuse.
type Builder struct{}

func NewBuilder() *Builder { return &Builder{} }

// Build renders <agent_history>, <agent_state>, <browser_state>, and an
// optional <page_specific_actions> section into one user message, plus any
// image parts when vision is enabled.
func (b *Builder) Build(in Input) []model.ContentPart {
	maxLen := in.MaxElementsLength
	if maxLen <= 0 {
		maxLen = DefaultMaxElementsLength
	}

	var sb strings.Builder

	sb.WriteString("<agent_history>\n")
	sb.WriteString(history.FormatAgentHistory(lastN(in.History, HistoryWindow)))
	sb.WriteString("\n</agent_history>\n\n")

	sb.WriteString("<agent_state>\n")
	fmt.Fprintf(&sb, "task: %s\n", in.Task)
	if strings.TrimSpace(in.Plan) != "" {
		fmt.Fprintf(&sb, "plan: %s\n", in.Plan)
	}
	if len(in.SensitiveDataKeys) > 0 {
		fmt.Fprintf(&sb, "sensitive_data: %s (referenced by placeholder only, values withheld)\n", strings.Join(in.SensitiveDataKeys, ", "))
	}
	fmt.Fprintf(&sb, "step_info: %d/%d\n", in.Step, in.StepLimit)
	sb.WriteString("</agent_state>\n\n")

	sb.WriteString("<browser_state>\n")
	sb.WriteString("tabs:\n")
	for _, t := range in.Tabs {
		marker := ""
		if t.Current {
			marker = " (current)"
		}
		fmt.Fprintf(&sb, "  %s: %s %q%s\n", t.ID, t.URL, t.Title, marker)
	}
	if in.State != nil {
		fmt.Fprintf(&sb, "page_info: %d elements, %d interactive, %.0fpx above, %.0fpx below\n",
			in.State.ElementCount, in.State.InteractiveElementCount, in.State.PixelsAbove, in.State.PixelsBelow)
		sb.WriteString("interactive_elements:\n")
		sb.WriteString(truncateAtParagraph(in.State.Tree, maxLen))
		if len(in.State.OffscreenHints) > 0 {
			sb.WriteString("off-screen interactive elements:\n")
			for _, h := range in.State.OffscreenHints {
				dir := "below"
				if h.Above {
					dir = "above"
				}
				fmt.Fprintf(&sb, "  %s (%.1f pages %s)\n", h.Selector, h.PagesAway, dir)
			}
		}
	} else {
		sb.WriteString("page_info: (no page observed yet)\n")
	}
	sb.WriteString("</browser_state>\n")

	if len(in.PageSpecificEntries) > 0 {
		sb.WriteString("\n<page_specific_actions>\n")
		for _, e := range in.PageSpecificEntries {
			fmt.Fprintf(&sb, "%s: %s\n", e.Name, e.Description)
		}
		sb.WriteString("</page_specific_actions>\n")
	}

	parts := []model.ContentPart{{Type: model.PartText, Text: sb.String()}}
	if in.Vision && !in.IsFreshBlankFirstStep && len(in.Screenshot) > 0 {
		parts = append(parts, model.ContentPart{
			Type:      model.PartImage,
			ImageData: in.Screenshot,
			ImageMIME: "image/png",
			ImageAlt:  "current page screenshot",
		})
	}
	return parts
}

func lastN(steps []history.StepRecord, n int) []history.StepRecord {
	if n <= 0 || len(steps) <= n {
		return steps
	}
	return steps[len(steps)-n:]
}

// truncateAtParagraph truncates text to at most maxLen bytes, backing up to
// the nearest preceding blank-line boundary so no paragraph is cut
// mid-sentence (spec §4.5: "breaking at paragraph boundary").
func truncateAtParagraph(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	cut := strings.LastIndex(text[:maxLen], "\n\n")
	if cut <= 0 {
		cut = strings.LastIndex(text[:maxLen], "\n")
	}
	if cut <= 0 {
		cut = maxLen
	}
	return text[:cut] + "\n... (truncated; scroll to see more)\n"
}

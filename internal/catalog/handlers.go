package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ntegrals/openbrowser-sub001/internal/agenterrors"
)

// BuildDefault registers every action named in spec §3 into a fresh
// Catalog, grounded on the teacher's toolbox.go registration style
// (one newTool(...) call per action) generalized to the typed Entry shape.
func BuildDefault(opts ...Option) (*Catalog, error) {
	c := New(opts...)

	entries := []Entry{
		{
			Name:        ActionNavigate,
			Description: "Navigate the active tab to an absolute URL.",
			ParamType:   NavigateParams{},
			Needs:       Needs{Page: true},
			Handler:     handleNavigate,
		},
		{
			Name:        ActionTap,
			Description: "Click the element with the given ElementRef.",
			ParamType:   TapParams{},
			Needs:       Needs{Analyzer: true},
			Handler:     handleTap,
		},
		{
			Name:        ActionTypeText,
			Description: "Type text into the element with the given ElementRef.",
			ParamType:   TypeTextParams{},
			Needs:       Needs{Analyzer: true, MaskedValues: true},
			Handler:     handleTypeText,
		},
		{
			Name:        ActionScroll,
			Description: "Scroll the page up, down, to top, or to bottom.",
			ParamType:   ScrollParams{},
			Needs:       Needs{Page: true},
			Handler:     handleScroll,
		},
		{
			Name:        ActionScrollTo,
			Description: "Scroll a specific element into view.",
			ParamType:   ScrollToParams{},
			Needs:       Needs{Analyzer: true},
			Handler:     handleScrollTo,
		},
		{
			Name:        ActionPressKeys,
			Description: "Send a key combination to the page (e.g. Control+A, Enter).",
			ParamType:   PressKeysParams{},
			Needs:       Needs{Page: true},
			Handler:     handlePressKeys,
		},
		{
			Name:               ActionFocusTab,
			Description:        "Switch the active tab.",
			ParamType:          FocusTabParams{},
			Needs:              Needs{Page: true},
			TerminatesSequence: false,
			Handler:            handleFocusTab,
		},
		{
			Name:        ActionNewTab,
			Description: "Open a new tab, optionally navigating it immediately.",
			ParamType:   NewTabParams{},
			Needs:       Needs{Page: true},
			Handler:     handleNewTab,
		},
		{
			Name:        ActionCloseTab,
			Description: "Close a tab (defaults to the active one).",
			ParamType:   CloseTabParams{},
			Needs:       Needs{Page: true},
			Handler:     handleCloseTab,
		},
		{
			Name:        ActionExtract,
			Description: "Ask the extraction model to summarize the page toward a goal.",
			ParamType:   ExtractParams{},
			Needs:       Needs{Analyzer: true, ExtractionLM: true},
			Handler:     handleExtract,
		},
		{
			Name:        ActionExtractStructured,
			Description: "Extract named fields from the page via CSS sub-selectors.",
			ParamType:   ExtractStructuredParams{},
			Needs:       Needs{Analyzer: true},
			Handler:     handleExtractStructured,
		},
		{
			Name:               ActionFinish,
			Description:        "Terminate the run and report the outcome.",
			ParamType:          FinishParams{},
			Needs:              Needs{},
			TerminatesSequence: true,
			Handler:            handleFinish,
		},
		{
			Name:        ActionWebSearch,
			Description: "Navigate to a web search for the given query.",
			ParamType:   WebSearchParams{},
			Needs:       Needs{Page: true},
			Handler:     handleWebSearch,
		},
		{
			Name:        ActionUpload,
			Description: "Upload one or more local files to a file input element.",
			ParamType:   UploadParams{},
			Needs:       Needs{Analyzer: true, Sandbox: true},
			Handler:     handleUpload,
		},
		{
			Name:        ActionSelect,
			Description: "Select an option on a <select> element by value.",
			ParamType:   SelectParams{},
			Needs:       Needs{Analyzer: true},
			Handler:     handleSelect,
		},
		{
			Name:        ActionCapture,
			Description: "Save a screenshot of the current page.",
			ParamType:   CaptureParams{},
			Needs:       Needs{Page: true},
			Handler:     handleCapture,
		},
		{
			Name:        ActionReadPage,
			Description: "Read raw text from the page or a selector, bypassing the interactive-element tree.",
			ParamType:   ReadPageParams{},
			Needs:       Needs{Analyzer: true},
			Handler:     handleReadPage,
		},
		{
			Name:        ActionWait,
			Description: "Pause for a fixed duration in milliseconds.",
			ParamType:   WaitParams{},
			Needs:       Needs{},
			Handler:     handleWait,
		},
		{
			Name:        ActionFind,
			Description: "Find an element's ElementRef by its visible text.",
			ParamType:   FindParams{},
			Needs:       Needs{Analyzer: true},
			Handler:     handleFind,
		},
		{
			Name:        ActionListOptions,
			Description: "List the available option labels on a <select> element.",
			ParamType:   ListOptionsParams{},
			Needs:       Needs{Analyzer: true},
			Handler:     handleListOptions,
		},
		{
			Name:        ActionPickOption,
			Description: "Select a <select> option by its visible label rather than value.",
			ParamType:   PickOptionParams{},
			Needs:       Needs{Analyzer: true},
			Handler:     handlePickOption,
		},
	}

	for _, e := range entries {
		if err := c.Register(e); err != nil {
			return nil, err
		}
	}
	c.Seal()
	return c, nil
}

func handleNavigate(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p NavigateParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	if err := deps.Page.Navigate(ctx, p.URL); err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "navigate failed", err))
	}
	return ok(fmt.Sprintf("navigated to %s", p.URL))
}

func handleTap(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p TapParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	if err := deps.Analyzer.ClickElementByIndex(ctx, p.Index); err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "tap failed", err))
	}
	return ok(fmt.Sprintf("clicked element [%d]", p.Index))
}

func handleTypeText(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p TypeTextParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	clearFirst := true
	if _, present := cmd.Params["clearFirst"]; present {
		clearFirst = p.ClearFirst
	}
	if err := deps.Analyzer.InputTextByIndex(ctx, p.Index, p.Text, clearFirst); err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "type_text failed", err))
	}
	return ok(fmt.Sprintf("typed into element [%d]", p.Index))
}

func handleScroll(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p ScrollParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	if err := deps.Page.Scroll(ctx, p.Direction, p.Distance); err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "scroll failed", err))
	}
	return ok(fmt.Sprintf("scrolled %s", p.Direction))
}

func handleScrollTo(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p ScrollToParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	if err := deps.Analyzer.ScrollToIndex(ctx, p.Index); err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "scroll_to failed", err))
	}
	return ok(fmt.Sprintf("scrolled to element [%d]", p.Index))
}

func handlePressKeys(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p PressKeysParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	if err := deps.Page.PressKeys(ctx, p.Keys); err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "press_keys failed", err))
	}
	return ok(fmt.Sprintf("pressed %s", p.Keys))
}

func handleFocusTab(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p FocusTabParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	if err := deps.Page.FocusTab(ctx, p.TabID); err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "focus_tab failed", err))
	}
	return ok(fmt.Sprintf("focused tab %s", p.TabID))
}

func handleNewTab(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p NewTabParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	tabID, err := deps.Page.NewTab(ctx, p.URL)
	if err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "new_tab failed", err))
	}
	return ok(fmt.Sprintf("opened tab %s", tabID))
}

func handleCloseTab(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p CloseTabParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	if err := deps.Page.CloseTab(ctx, p.TabID); err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "close_tab failed", err))
	}
	return ok("closed tab")
}

func handleExtract(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p ExtractParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	pageText, err := deps.Analyzer.ReadPage(ctx, "", 20000)
	if err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "extract failed to read page", err))
	}
	summary, err := deps.ExtractionLM.Summarize(ctx, p.Goal, pageText)
	if err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "extract model call failed", err))
	}
	return CommandResult{Success: true, ExtractedContent: summary, IncludeInMemory: true, Observation: "extracted: " + truncate(summary, 80)}
}

func handleExtractStructured(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p ExtractStructuredParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	html, err := deps.Analyzer.ReadHTML(ctx, p.Selector, 0)
	if err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "extract_structured failed to read page", err))
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "extract_structured failed to parse HTML", err))
	}

	result := make(map[string]string, len(p.Fields))
	for field, sub := range p.Fields {
		sel := doc.Find(sub).First()
		result[field] = strings.TrimSpace(sel.Text())
	}
	rendered := renderStructured(result)
	return CommandResult{Success: true, ExtractedContent: rendered, IncludeInMemory: true, Observation: "extracted " + fmt.Sprint(len(result)) + " fields"}
}

func renderStructured(fields map[string]string) string {
	var b strings.Builder
	for k, v := range fields {
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	return b.String()
}

func handleFinish(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p FinishParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	return CommandResult{
		Success:         true,
		IsDone:          true,
		IsFinish:        true,
		FinishSuccess:   p.Success,
		FinishText:      p.Message,
		ExtractedContent: p.Message,
		IncludeInMemory: true,
		Observation:     p.Message,
	}
}

func handleWebSearch(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p WebSearchParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	url := "https://www.google.com/search?q=" + strings.ReplaceAll(p.Query, " ", "+")
	if err := deps.Page.Navigate(ctx, url); err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "web_search failed", err))
	}
	return ok(fmt.Sprintf("searched for %q", p.Query))
}

func handleUpload(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p UploadParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	resolved := make([]string, 0, len(p.FilePaths))
	for _, path := range p.FilePaths {
		r, err := deps.Sandbox.ResolvePath(path)
		if err != nil {
			return fail(agenterrors.NewCommandFailed(cmd.Action(), "upload path rejected", err))
		}
		resolved = append(resolved, r)
	}
	if err := deps.Analyzer.UploadFiles(ctx, p.Index, resolved); err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "upload failed", err))
	}
	return ok(fmt.Sprintf("uploaded %d file(s) to element [%d]", len(resolved), p.Index))
}

func handleSelect(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p SelectParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	if err := deps.Analyzer.SelectOption(ctx, p.Index, p.Value); err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "select failed", err))
	}
	return ok(fmt.Sprintf("selected %q on element [%d]", p.Value, p.Index))
}

func handleCapture(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p CaptureParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	saved, err := deps.Page.Capture(ctx, p.Path, p.FullPage)
	if err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "capture failed", err))
	}
	return ok("saved screenshot to " + saved)
}

func handleReadPage(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p ReadPageParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	text, err := deps.Analyzer.ReadPage(ctx, p.Selector, p.MaxChars)
	if err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "read_page failed", err))
	}
	return CommandResult{Success: true, ExtractedContent: text, IncludeInMemory: true, Observation: "read " + fmt.Sprint(len(text)) + " chars"}
}

func handleWait(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p WaitParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	select {
	case <-ctx.Done():
		return fail(ctx.Err())
	case <-waitDuration(p.Ms):
	}
	return ok(fmt.Sprintf("waited %dms", p.Ms))
}

func handleFind(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p FindParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	index, err := deps.Analyzer.FindByText(ctx, p.Text, p.Exact)
	if err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "find failed", err))
	}
	return CommandResult{Success: true, ExtractedContent: fmt.Sprint(index), IncludeInMemory: true, Observation: fmt.Sprintf("found [%d]", index)}
}

func handleListOptions(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p ListOptionsParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	options, err := deps.Analyzer.ListOptions(ctx, p.Index)
	if err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "list_options failed", err))
	}
	return CommandResult{Success: true, ExtractedContent: strings.Join(options, ", "), IncludeInMemory: true, Observation: fmt.Sprintf("%d options", len(options))}
}

func handlePickOption(ctx context.Context, cmd Command, deps Deps) CommandResult {
	var p PickOptionParams
	if err := cmd.Decode(&p); err != nil {
		return fail(err)
	}
	options, err := deps.Analyzer.ListOptions(ctx, p.Index)
	if err != nil {
		return fail(agenterrors.NewCommandFailed(cmd.Action(), "pick_option failed", err))
	}
	for _, label := range options {
		if strings.EqualFold(label, p.Label) {
			if err := deps.Analyzer.SelectOption(ctx, p.Index, label); err != nil {
				return fail(agenterrors.NewCommandFailed(cmd.Action(), "pick_option failed", err))
			}
			return ok(fmt.Sprintf("picked %q on element [%d]", label, p.Index))
		}
	}
	return fail(agenterrors.ElementNotFound(p.Index))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

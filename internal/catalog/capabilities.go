package catalog

import "context"

// These capability interfaces are the seam between the catalog and the
// viewport/pageanalyzer packages. The catalog never imports them directly;
// it only depends on these narrow contracts, satisfied at wiring time in
// cmd/agent.

// PageController exposes viewport-level browser primitives a handler may need.
type PageController interface {
	Navigate(ctx context.Context, url string) error
	Scroll(ctx context.Context, direction string, distancePx int) error
	PressKeys(ctx context.Context, keys string) error
	FocusTab(ctx context.Context, tabID string) error
	NewTab(ctx context.Context, url string) (tabID string, err error)
	CloseTab(ctx context.Context, tabID string) error
	Capture(ctx context.Context, path string, fullPage bool) (savedPath string, err error)
	CurrentURL(ctx context.Context) (string, error)
}

// Analyzer exposes page-analyzer operations addressed by ElementRef.
type Analyzer interface {
	ClickElementByIndex(ctx context.Context, index int) error
	InputTextByIndex(ctx context.Context, index int, text string, clearFirst bool) error
	ScrollToIndex(ctx context.Context, index int) error
	SelectOption(ctx context.Context, index int, value string) error
	ListOptions(ctx context.Context, index int) ([]string, error)
	UploadFiles(ctx context.Context, index int, paths []string) error
	FindByText(ctx context.Context, text string, exact bool) (index int, err error)
	ReadPage(ctx context.Context, selector string, maxChars int) (string, error)
	ReadHTML(ctx context.Context, selector string, maxChars int) (string, error)
}

// ExtractionModel is the narrow capability a handler needs to ask a model
// question about page content, distinct from the agent loop's own
// LanguageModel use (spec §6 "extraction-LM").
type ExtractionModel interface {
	Summarize(ctx context.Context, goal, pageText string) (string, error)
}

// Sandbox is the out-of-scope file-sandbox collaborator (spec §1); handlers
// that need file paths validated go through it when present.
type Sandbox interface {
	ResolvePath(path string) (string, error)
}

// Needs declares which contextual values a handler requires, replacing the
// source's reflection-on-parameter-names trick (spec §9) with an explicit
// per-entry descriptor inspected once at registration.
type Needs struct {
	Page         bool
	Analyzer     bool
	ExtractionLM bool
	Sandbox      bool
	MaskedValues bool
}

// Deps carries only the capabilities an entry's Needs declared; fields the
// entry did not request are left nil, so a handler that reaches past its
// declared needs fails fast with a nil-pointer rather than silently
// succeeding against the wrong dependency.
type Deps struct {
	Page         PageController
	Analyzer     Analyzer
	ExtractionLM ExtractionModel
	Sandbox      Sandbox
	MaskedValues map[string]string
}

// ExecutionContext is the full set of values the executor has available to
// satisfy any entry's Needs for one execute() call.
type ExecutionContext struct {
	Page         PageController
	Analyzer     Analyzer
	ExtractionLM ExtractionModel
	Sandbox      Sandbox
	MaskedValues map[string]string
	CurrentURL   string
}

func (ec ExecutionContext) depsFor(needs Needs) Deps {
	var d Deps
	if needs.Page {
		d.Page = ec.Page
	}
	if needs.Analyzer {
		d.Analyzer = ec.Analyzer
	}
	if needs.ExtractionLM {
		d.ExtractionLM = ec.ExtractionLM
	}
	if needs.Sandbox {
		d.Sandbox = ec.Sandbox
	}
	if needs.MaskedValues {
		d.MaskedValues = ec.MaskedValues
	}
	return d
}

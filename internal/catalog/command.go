// Package catalog implements the typed command registry and executor of
// spec §4.4: a dispatch table keyed by ActionName, schema-validated
// parameters, capability injection via an explicit needs descriptor, and
// the sequence-termination semantics the agent loop relies on.
package catalog

import "encoding/json"

// ActionName is the tagged-variant discriminator for Command (spec §3,
// §9 "Dynamic dispatch on Command variants").
type ActionName string

const (
	ActionNavigate         ActionName = "navigate"
	ActionTap              ActionName = "tap"
	ActionTypeText         ActionName = "type_text"
	ActionScroll           ActionName = "scroll"
	ActionScrollTo         ActionName = "scroll_to"
	ActionPressKeys        ActionName = "press_keys"
	ActionFocusTab         ActionName = "focus_tab"
	ActionNewTab           ActionName = "new_tab"
	ActionCloseTab         ActionName = "close_tab"
	ActionExtract          ActionName = "extract"
	ActionExtractStructured ActionName = "extract_structured"
	ActionFinish           ActionName = "finish"
	ActionWebSearch        ActionName = "web_search"
	ActionUpload           ActionName = "upload"
	ActionSelect           ActionName = "select"
	ActionCapture          ActionName = "capture"
	ActionReadPage         ActionName = "read_page"
	ActionWait             ActionName = "wait"
	ActionFind             ActionName = "find"
	ActionListOptions      ActionName = "list_options"
	ActionPickOption       ActionName = "pick_option"
)

// pageChangingActions page-changing per spec §4.4's sequence semantics:
// navigate, search, go-back (focus_tab reuses navigation-like tab focus),
// switch-tab, close-tab, new-tab.
var pageChangingActions = map[ActionName]bool{
	ActionNavigate:  true,
	ActionWebSearch: true,
	ActionFocusTab:  true,
	ActionNewTab:    true,
	ActionCloseTab:  true,
}

// IsPageChanging reports whether action is declared page-changing.
func (a ActionName) IsPageChanging() bool { return pageChangingActions[a] }

// Command is the tagged-variant payload the model emits and the executor
// runs. Params is decoded JSON (already validated against the entry's
// schema by the time a handler sees it); typed accessors below decode the
// per-variant shape without a reflective type switch on parameter names.
type Command struct {
	ActionName ActionName     `json:"action"`
	Params     map[string]any `json:"input"`
}

func (c Command) Action() string { return string(c.ActionName) }

// Decode re-marshals Params into dst, the per-variant parameter struct.
func (c Command) Decode(dst any) error {
	raw, err := json.Marshal(c.Params)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// CommandResult is returned by every handler (spec §3).
type CommandResult struct {
	Success         bool   `json:"success"`
	ExtractedContent string `json:"extractedContent,omitempty"`
	Error           string `json:"error,omitempty"`
	IsDone          bool   `json:"isDone,omitempty"`
	IncludeInMemory bool   `json:"includeInMemory,omitempty"`

	// IsFinish and FinishSuccess/FinishText let the agent loop recognize a
	// `finish` action's outcome without special-casing the action name
	// again outside the catalog.
	IsFinish      bool   `json:"-"`
	FinishSuccess bool   `json:"-"`
	FinishText    string `json:"-"`

	// Observation is a short human-readable summary used by history
	// formatting and CLI step printing (spec §7 "User-visible behavior").
	Observation string `json:"-"`
}

func ok(observation string) CommandResult {
	return CommandResult{Success: true, Observation: observation, IncludeInMemory: true}
}

func fail(err error) CommandResult {
	return CommandResult{Success: false, Error: err.Error(), Observation: "failed: " + err.Error()}
}

// Per-variant parameter shapes. Each has json tags matching the schema
// generated in schema.go via invopop/jsonschema.

type NavigateParams struct {
	URL string `json:"url" jsonschema:"required,description=Absolute URL to navigate to"`
}

type TapParams struct {
	Index int `json:"index" jsonschema:"required,description=ElementRef to click"`
}

type TypeTextParams struct {
	Index      int    `json:"index" jsonschema:"required,description=ElementRef to type into"`
	Text       string `json:"text" jsonschema:"required"`
	ClearFirst bool   `json:"clearFirst,omitempty" jsonschema:"description=Clear existing value before typing; default true"`
}

type ScrollParams struct {
	Direction string `json:"direction" jsonschema:"required,enum=down,enum=up,enum=top,enum=bottom,enum=page_down,enum=page_up"`
	Distance  int    `json:"distance,omitempty" jsonschema:"description=Pixels, defaults to viewport height"`
}

type ScrollToParams struct {
	Index int `json:"index" jsonschema:"required,description=ElementRef to scroll into view"`
}

type PressKeysParams struct {
	Keys string `json:"keys" jsonschema:"required,description=Key combination, e.g. Control+A"`
}

type FocusTabParams struct {
	TabID string `json:"tabId" jsonschema:"required"`
}

type NewTabParams struct {
	URL string `json:"url,omitempty"`
}

type CloseTabParams struct {
	TabID string `json:"tabId,omitempty" jsonschema:"description=Defaults to the active tab"`
}

type ExtractParams struct {
	Goal string `json:"goal" jsonschema:"required,description=What information to extract from the page"`
}

type ExtractStructuredParams struct {
	Selector string            `json:"selector" jsonschema:"required,description=CSS selector scoping the extraction"`
	Fields   map[string]string `json:"fields" jsonschema:"required,description=Field name to CSS sub-selector map"`
}

type FinishParams struct {
	Message string `json:"message" jsonschema:"required"`
	Success bool   `json:"success"`
}

type WebSearchParams struct {
	Query string `json:"query" jsonschema:"required"`
}

type UploadParams struct {
	Index     int      `json:"index" jsonschema:"required,description=ElementRef of the file input"`
	FilePaths []string `json:"filePaths" jsonschema:"required"`
}

type SelectParams struct {
	Index int    `json:"index" jsonschema:"required"`
	Value string `json:"value" jsonschema:"required"`
}

type CaptureParams struct {
	Path     string `json:"path,omitempty"`
	FullPage bool   `json:"fullPage,omitempty"`
}

type ReadPageParams struct {
	Selector string `json:"selector,omitempty" jsonschema:"description=Empty for full page"`
	MaxChars int    `json:"maxChars,omitempty"`
}

type WaitParams struct {
	Ms int `json:"ms" jsonschema:"required"`
}

type FindParams struct {
	Text  string `json:"text" jsonschema:"required"`
	Exact bool   `json:"exact,omitempty"`
}

type ListOptionsParams struct {
	Index int `json:"index" jsonschema:"required,description=ElementRef of a select element"`
}

type PickOptionParams struct {
	Index int    `json:"index" jsonschema:"required"`
	Label string `json:"label" jsonschema:"required"`
}

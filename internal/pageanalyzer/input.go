package pageanalyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/ntegrals/openbrowser-sub001/internal/agenterrors"
)

// InputTextByIndex focuses the element (via a click) then either fills
// (clearFirst) or types the given text (spec §4.3).
func (a *Analyzer) InputTextByIndex(ctx context.Context, index int, text string, clearFirst bool) error {
	entry, err := a.resolve(index)
	if err != nil {
		return err
	}
	page, err := a.pages.CurrentPage()
	if err != nil {
		return err
	}

	locator := locatorFor(entry)
	if locator == "" {
		return agenterrors.ElementNotFound(index)
	}
	sel := asPlaywrightSelector(locator)
	timeout := float64(5000)
	loc := page.Locator(sel)
	if err := loc.Click(playwright.LocatorClickOptions{Timeout: &timeout}); err != nil {
		return agenterrors.NewCommandFailed("input_text_by_index", fmt.Sprintf("focus index %d", index), err)
	}

	if clearFirst {
		if err := loc.Fill(text, playwright.LocatorFillOptions{Timeout: &timeout}); err != nil {
			return agenterrors.NewCommandFailed("input_text_by_index", fmt.Sprintf("fill index %d", index), err)
		}
	} else {
		if err := loc.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{Timeout: &timeout}); err != nil {
			return agenterrors.NewCommandFailed("input_text_by_index", fmt.Sprintf("type index %d", index), err)
		}
	}

	a.recordInteraction(index, "input_text", entry)
	return nil
}

// ScrollToIndex scrolls the element identified by index into view.
func (a *Analyzer) ScrollToIndex(ctx context.Context, index int) error {
	entry, err := a.resolve(index)
	if err != nil {
		return err
	}
	page, err := a.pages.CurrentPage()
	if err != nil {
		return err
	}
	locator := locatorFor(entry)
	if locator == "" {
		return agenterrors.ElementNotFound(index)
	}
	sel := asPlaywrightSelector(locator)
	if err := page.Locator(sel).ScrollIntoViewIfNeeded(); err != nil {
		return agenterrors.NewCommandFailed("scroll_to_index", fmt.Sprintf("index %d", index), err)
	}
	a.recordInteraction(index, "scroll_to", entry)
	return nil
}

// SelectOption chooses an option by its value on a <select> element
// identified by index.
func (a *Analyzer) SelectOption(ctx context.Context, index int, value string) error {
	entry, err := a.resolve(index)
	if err != nil {
		return err
	}
	page, err := a.pages.CurrentPage()
	if err != nil {
		return err
	}
	locator := locatorFor(entry)
	if locator == "" {
		return agenterrors.ElementNotFound(index)
	}
	sel := asPlaywrightSelector(locator)
	if _, err := page.Locator(sel).SelectOption(playwright.SelectOptionValues{Values: &[]string{value}}); err != nil {
		return agenterrors.NewCommandFailed("select_option", fmt.Sprintf("index %d value %q", index, value), err)
	}
	a.recordInteraction(index, "select_option", entry)
	return nil
}

// ListOptions returns the available <option> labels for a <select> element
// identified by index.
func (a *Analyzer) ListOptions(ctx context.Context, index int) ([]string, error) {
	entry, err := a.resolve(index)
	if err != nil {
		return nil, err
	}
	page, err := a.pages.CurrentPage()
	if err != nil {
		return nil, err
	}
	locator := locatorFor(entry)
	if locator == "" {
		return nil, agenterrors.ElementNotFound(index)
	}
	sel := asPlaywrightSelector(locator)

	raw, err := page.Evaluate(`(s) => {
		const el = s.startsWith('xpath:')
			? document.evaluate(s.slice(6), document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue
			: document.querySelector(s);
		if (!el || !el.options) return [];
		return Array.from(el.options).map(o => o.label || o.text || o.value);
	}`, locator)
	if err != nil {
		return nil, agenterrors.NewCommandFailed("list_options", fmt.Sprintf("index %d", index), err)
	}
	values, _ := raw.([]interface{})
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// UploadFiles sets the files for a file-input element identified by index.
func (a *Analyzer) UploadFiles(ctx context.Context, index int, paths []string) error {
	entry, err := a.resolve(index)
	if err != nil {
		return err
	}
	page, err := a.pages.CurrentPage()
	if err != nil {
		return err
	}
	locator := locatorFor(entry)
	if locator == "" {
		return agenterrors.ElementNotFound(index)
	}
	sel := asPlaywrightSelector(locator)
	if err := page.Locator(sel).SetInputFiles(paths); err != nil {
		return agenterrors.NewCommandFailed("upload_files", fmt.Sprintf("index %d", index), err)
	}
	a.recordInteraction(index, "upload_files", entry)
	return nil
}

// FindByText searches the cached selector map for an element whose text or
// aria-label matches text, returning its ElementRef.
func (a *Analyzer) FindByText(ctx context.Context, text string, exact bool) (int, error) {
	state, err := a.GetCachedState()
	if err != nil {
		return 0, err
	}
	needle := text
	if !exact {
		needle = strings.ToLower(strings.TrimSpace(needle))
	}
	for idx, entry := range state.SelectorMap {
		candidates := []string{entry.Text, entry.AriaLabel}
		for _, c := range candidates {
			if c == "" {
				continue
			}
			if exact {
				if c == text {
					return idx, nil
				}
			} else if strings.Contains(strings.ToLower(c), needle) {
				return idx, nil
			}
		}
	}
	return 0, fmt.Errorf("pageanalyzer: no element found matching %q", text)
}

// ReadPage extracts visible text from selector (or the whole document when
// empty), truncated to maxChars.
func (a *Analyzer) ReadPage(ctx context.Context, selector string, maxChars int) (string, error) {
	page, err := a.pages.CurrentPage()
	if err != nil {
		return "", err
	}
	script := `(s) => {
		const el = s ? document.querySelector(s) : document.body;
		if (!el) return '';
		return (el.innerText || el.textContent || '').trim();
	}`
	raw, err := page.Evaluate(script, selector)
	if err != nil {
		return "", agenterrors.NewCommandFailed("read_page", selector, err)
	}
	text, _ := raw.(string)
	if maxChars > 0 {
		text = trimForAudit(text, maxChars)
	}
	return text, nil
}

// ReadHTML returns the serialized markup of selector (or the whole document
// when empty), for callers that need real element structure rather than
// ReadPage's stripped innerText — e.g. extract_structured's goquery
// sub-selectors, which have nothing to match against plain text.
func (a *Analyzer) ReadHTML(ctx context.Context, selector string, maxChars int) (string, error) {
	page, err := a.pages.CurrentPage()
	if err != nil {
		return "", err
	}
	script := `(s) => {
		const el = s ? document.querySelector(s) : document.documentElement;
		if (!el) return '';
		return el.outerHTML || '';
	}`
	raw, err := page.Evaluate(script, selector)
	if err != nil {
		return "", agenterrors.NewCommandFailed("read_page", selector, err)
	}
	html, _ := raw.(string)
	if maxChars > 0 {
		html = trimForAudit(html, maxChars)
	}
	return html, nil
}

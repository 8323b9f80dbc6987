package pageanalyzer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/playwright-community/playwright-go"

	"github.com/ntegrals/openbrowser-sub001/internal/agenterrors"
	"github.com/ntegrals/openbrowser-sub001/internal/render"
)

// ClickElementByIndex resolves an ElementRef and clicks it, trying three
// strategies in order (spec §4.3): CDP box-model centroid, in-page
// JS rect lookup, then a bounded-timeout selector click.
func (a *Analyzer) ClickElementByIndex(ctx context.Context, index int) error {
	entry, err := a.resolve(index)
	if err != nil {
		return err
	}
	page, err := a.pages.CurrentPage()
	if err != nil {
		return err
	}

	var clickErr error
	if entry.BackendNodeID != 0 {
		clickErr = a.clickViaBoxModel(ctx, page, entry.BackendNodeID)
	} else {
		clickErr = fmt.Errorf("pageanalyzer: no backendNodeId for index %d", index)
	}

	if clickErr != nil {
		clickErr = a.clickViaJSRect(ctx, page, entry)
	}
	if clickErr != nil {
		clickErr = a.clickViaSelector(ctx, page, entry)
	}
	if clickErr != nil {
		return agenterrors.NewCommandFailed("click_element_by_index", fmt.Sprintf("index %d", index), clickErr)
	}

	a.recordInteraction(index, "click", entry)
	return nil
}

// clickViaBoxModel is strategy 1: DOM.getBoxModel on the backend node id,
// centroid of the content quad, trusted mouse press+release at that point.
func (a *Analyzer) clickViaBoxModel(ctx context.Context, page playwright.Page, backendNodeID int64) error {
	sess, err := page.Context().NewCDPSession(page)
	if err != nil {
		return fmt.Errorf("open cdp session: %w", err)
	}
	defer sess.Detach()

	raw, err := sess.Send("DOM.getBoxModel", map[string]interface{}{"backendNodeId": backendNodeID})
	if err != nil {
		return fmt.Errorf("DOM.getBoxModel: %w", err)
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal getBoxModel result: %w", err)
	}
	var result struct {
		Model struct {
			Content []float64 `json:"content"`
		} `json:"model"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return fmt.Errorf("decode getBoxModel result: %w", err)
	}
	if len(result.Model.Content) < 8 {
		return fmt.Errorf("getBoxModel: no content quad for backend node %d", backendNodeID)
	}

	cx, cy := quadCentroid(result.Model.Content)
	return dispatchTrustedClick(sess, cx, cy)
}

// quadCentroid averages a clockwise 4-point quad (x,y pairs) per the CDP
// BoxModel.Content shape.
func quadCentroid(quad []float64) (x, y float64) {
	for i := 0; i+1 < len(quad); i += 2 {
		x += quad[i]
		y += quad[i+1]
	}
	n := float64(len(quad) / 2)
	return x / n, y / n
}

func dispatchTrustedClick(sess playwright.CDPSession, x, y float64) error {
	press := map[string]interface{}{
		"type": "mousePressed", "x": x, "y": y, "button": "left", "clickCount": 1,
	}
	if _, err := sess.Send("Input.dispatchMouseEvent", press); err != nil {
		return fmt.Errorf("mouse press: %w", err)
	}
	release := map[string]interface{}{
		"type": "mouseReleased", "x": x, "y": y, "button": "left", "clickCount": 1,
	}
	if _, err := sess.Send("Input.dispatchMouseEvent", release); err != nil {
		return fmt.Errorf("mouse release: %w", err)
	}
	return nil
}

// clickViaJSRect is strategy 2: locate the element by selector or xpath in
// page JS, compute its bounding rect center via getBoundingClientRect, and
// click at those page coordinates.
func (a *Analyzer) clickViaJSRect(ctx context.Context, page playwright.Page, entry render.SelectorEntry) error {
	locator := locatorFor(entry)
	if locator == "" {
		return fmt.Errorf("pageanalyzer: no selector or xpath to locate element")
	}

	const script = `(sel) => {
		const el = sel.startsWith('xpath:')
			? document.evaluate(sel.slice(6), document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue
			: document.querySelector(sel);
		if (!el) return null;
		el.scrollIntoViewIfNeeded ? el.scrollIntoViewIfNeeded() : el.scrollIntoView();
		const r = el.getBoundingClientRect();
		return { x: r.x + r.width / 2, y: r.y + r.height / 2 };
	}`

	raw, err := page.Evaluate(script, locator)
	if err != nil {
		return fmt.Errorf("locate element: %w", err)
	}
	pos, ok := raw.(map[string]interface{})
	if !ok || pos == nil {
		return fmt.Errorf("pageanalyzer: element not found for %q", locator)
	}
	x, _ := pos["x"].(float64)
	y, _ := pos["y"].(float64)

	return page.Mouse().Click(x, y)
}

// clickViaSelector is strategy 3: a high-level Playwright locator click
// bounded to a 5s timeout.
func (a *Analyzer) clickViaSelector(ctx context.Context, page playwright.Page, entry render.SelectorEntry) error {
	locator := locatorFor(entry)
	if locator == "" {
		return fmt.Errorf("pageanalyzer: no selector to click")
	}
	sel := asPlaywrightSelector(locator)
	timeout := float64(5000)
	return page.Locator(sel).Click(playwright.LocatorClickOptions{Timeout: &timeout})
}

// locatorFor prefers the CSS selector, falling back to an "xpath:"-prefixed
// XPath when no CSS selector was resolved.
func locatorFor(entry render.SelectorEntry) string {
	if entry.CSSSelector != "" {
		return entry.CSSSelector
	}
	if entry.XPath != "" {
		return "xpath:" + entry.XPath
	}
	return ""
}

// asPlaywrightSelector converts an "xpath:"-prefixed locator into
// Playwright's "xpath=" engine syntax; CSS selectors pass through.
func asPlaywrightSelector(locator string) string {
	if len(locator) > 6 && locator[:6] == "xpath:" {
		return "xpath=" + locator[6:]
	}
	return locator
}

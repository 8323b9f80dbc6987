package snapshot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/domsnapshot"
	"github.com/playwright-community/playwright-go"
)

// cdpSession is the subset of playwright.CDPSession this package needs;
// narrowed so tests can fake it without a real browser.
type cdpSession interface {
	Send(method string, params map[string]interface{}) (interface{}, error)
}

// captureStyles mirrors spec §4.1 step 1's "computed styles
// display, visibility, opacity, overflow".
var captureStyles = []string{"display", "visibility", "opacity", "overflow", "overflow-x", "overflow-y"}

// captureSnapshotResult is the wire shape of DOMSnapshot.captureSnapshot's
// response, decoded into cdproto's own DocumentSnapshot/string-table types
// rather than the teacher's map[string]interface{} walk.
type captureSnapshotResult struct {
	Documents []*domsnapshot.DocumentSnapshot `json:"documents"`
	Strings   []string                        `json:"strings"`
}

// axTreeResult is the wire shape of Accessibility.getFullAXTree's response.
type axTreeResult struct {
	Nodes []*accessibility.AXNode `json:"nodes"`
}

func captureDOMSnapshot(ctx context.Context, sess cdpSession) (*captureSnapshotResult, error) {
	params := domsnapshot.CaptureSnapshot(captureStyles).
		WithIncludeDOMRects(true).
		WithIncludePaintOrder(true)

	raw, err := send(sess, "DOMSnapshot.captureSnapshot", params)
	if err != nil {
		return nil, fmt.Errorf("DOMSnapshot.captureSnapshot: %w", err)
	}
	var out captureSnapshotResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode captureSnapshot result: %w", err)
	}
	return &out, nil
}

func captureAXTree(ctx context.Context, sess cdpSession) (*axTreeResult, error) {
	params := accessibility.GetFullAXTree()

	raw, err := send(sess, "Accessibility.getFullAXTree", params)
	if err != nil {
		return nil, fmt.Errorf("Accessibility.getFullAXTree: %w", err)
	}
	var out axTreeResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode getFullAXTree result: %w", err)
	}
	return &out, nil
}

// send marshals a cdproto params struct to a generic map (the shape
// playwright-go's CDPSession.Send expects) and re-marshals the raw
// interface{} response back into bytes for typed decoding.
func send(sess cdpSession, method string, params interface{}) (json.RawMessage, error) {
	paramBytes, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	var paramMap map[string]interface{}
	if len(paramBytes) > 0 && string(paramBytes) != "null" {
		if err := json.Unmarshal(paramBytes, &paramMap); err != nil {
			return nil, fmt.Errorf("remarshal params: %w", err)
		}
	}

	result, err := sess.Send(method, paramMap)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

// newCDPSession opens a CDP session bound to page, matching the teacher's
// page.Context().NewCDPSession(page) call in browser.go.
func newCDPSession(page playwright.Page) (playwright.CDPSession, error) {
	return page.Context().NewCDPSession(page)
}

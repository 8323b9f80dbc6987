// Package pageanalyzer turns a viewport page into the observation the
// agent loop consumes and resolves ElementRef-addressed actions back onto
// real DOM elements (spec §4.3). Grounded on
// 8c835b43_zhimaAi-ChatClaw's getSnapshot/clickByRef/typeByRef shape
// (data-ref assignment, CDP-trusted mouse events, bounded selector
// fallback), generalized from a flat JS-only scan to spec §4.1/§4.2's
// typed snapshot + render pipeline.
package pageanalyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/ntegrals/openbrowser-sub001/internal/agenterrors"
	"github.com/ntegrals/openbrowser-sub001/internal/render"
	"github.com/ntegrals/openbrowser-sub001/internal/snapshot"
)

func decodeViewportMetrics(raw any) (viewportMetrics, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return viewportMetrics{}, err
	}
	var m viewportMetrics
	if err := json.Unmarshal(b, &m); err != nil {
		return viewportMetrics{}, err
	}
	return m, nil
}

// InteractedElement is an append-only audit record of a click/type
// interaction (spec §3, consumed by history + judge).
type InteractedElement struct {
	Index     int
	TagName   string
	Text      string
	Role      string
	AriaLabel string
	Action    string
	Timestamp time.Time
}

// PageSource is the narrow subset of viewport.Viewport this package needs:
// the current playwright page.
type PageSource interface {
	CurrentPage() (playwright.Page, error)
}

// Analyzer caches the most recent RenderedPageState and resolves
// ElementRef-addressed operations against it. One Analyzer per Viewport.
type Analyzer struct {
	pages PageSource

	buildOpts  snapshot.BuildOptions
	renderOpts render.Options

	mu             sync.Mutex
	tree           *snapshot.Tree
	state          *render.State
	priorSelectors map[string]bool
	interactions   []InteractedElement
}

// New constructs an Analyzer backed by pages (normally a *viewport.Viewport).
func New(pages PageSource) *Analyzer {
	return &Analyzer{
		pages:      pages,
		buildOpts:  snapshot.DefaultBuildOptions(),
		renderOpts: render.DefaultOptions(),
	}
}

// ExtractState runs §4.1 (snapshot) + §4.2 (render), caches the resulting
// tree and selector map, and rolls the "new-element" baseline forward to
// this extract's selectors (spec §4.3: "clears the previous cache's
// new-element baseline").
func (a *Analyzer) ExtractState(ctx context.Context, vp render.Viewport) (*render.State, error) {
	page, err := a.pages.CurrentPage()
	if err != nil {
		return nil, err
	}

	tree, err := snapshot.Capture(ctx, page, a.buildOpts)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	prior := a.priorSelectors
	a.mu.Unlock()

	state, err := render.Render(tree, vp, a.renderOpts, prior)
	if err != nil {
		return nil, agenterrors.ExtractionFailed("render", err)
	}

	next := make(map[string]bool, len(state.SelectorMap))
	for _, entry := range state.SelectorMap {
		if entry.CSSSelector != "" {
			next[entry.CSSSelector] = true
		}
	}

	a.mu.Lock()
	a.tree = tree
	a.state = state
	a.priorSelectors = next
	a.mu.Unlock()

	return state, nil
}

// viewportMetricsScript reads the scroll position plus viewport/document
// dimensions the renderer needs for offscreen culling and pixelsAbove/Below.
const viewportMetricsScript = `() => ({
	scrollX: window.scrollX,
	scrollY: window.scrollY,
	viewportWidth: window.innerWidth,
	viewportHeight: window.innerHeight,
	documentWidth: document.documentElement.scrollWidth,
	documentHeight: document.documentElement.scrollHeight,
})`

type viewportMetrics struct {
	ScrollX        float64 `json:"scrollX"`
	ScrollY        float64 `json:"scrollY"`
	ViewportWidth  float64 `json:"viewportWidth"`
	ViewportHeight float64 `json:"viewportHeight"`
	DocumentWidth  float64 `json:"documentWidth"`
	DocumentHeight float64 `json:"documentHeight"`
}

// CurrentViewportMetrics reads the current page's scroll/viewport/document
// metrics, the render.Viewport input ExtractState needs each step.
func (a *Analyzer) CurrentViewportMetrics(ctx context.Context) (render.Viewport, error) {
	page, err := a.pages.CurrentPage()
	if err != nil {
		return render.Viewport{}, err
	}
	raw, err := page.Evaluate(viewportMetricsScript)
	if err != nil {
		return render.Viewport{}, agenterrors.ExtractionFailed("viewport-metrics", err)
	}
	m, err := decodeViewportMetrics(raw)
	if err != nil {
		return render.Viewport{}, agenterrors.ExtractionFailed("viewport-metrics", err)
	}
	return render.Viewport{
		ScrollX:        m.ScrollX,
		ScrollY:        m.ScrollY,
		ViewportWidth:  m.ViewportWidth,
		ViewportHeight: m.ViewportHeight,
		DocumentWidth:  m.DocumentWidth,
		DocumentHeight: m.DocumentHeight,
	}, nil
}

// GetCachedTree returns the tree from the most recent ExtractState call.
func (a *Analyzer) GetCachedTree() (*snapshot.Tree, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tree == nil {
		return nil, fmt.Errorf("pageanalyzer: no cached tree, call ExtractState first")
	}
	return a.tree, nil
}

// GetCachedState returns the RenderedPageState from the most recent
// ExtractState call.
func (a *Analyzer) GetCachedState() (*render.State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == nil {
		return nil, fmt.Errorf("pageanalyzer: no cached state, call ExtractState first")
	}
	return a.state, nil
}

// ClearCache drops the cached tree/state/selector baseline.
func (a *Analyzer) ClearCache() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tree = nil
	a.state = nil
	a.priorSelectors = nil
}

// GetElementSelector is a pure lookup into the cached selector map; ok is
// false when index is unmapped.
func (a *Analyzer) GetElementSelector(index int) (entry render.SelectorEntry, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == nil {
		return render.SelectorEntry{}, false
	}
	entry, ok = a.state.SelectorMap[index]
	return entry, ok
}

// GetInteractedElements returns the append-only interaction audit log.
func (a *Analyzer) GetInteractedElements() []InteractedElement {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]InteractedElement, len(a.interactions))
	copy(out, a.interactions)
	return out
}

// ClearInteractedElements resets the audit log, e.g. at the start of a new
// top-level task.
func (a *Analyzer) ClearInteractedElements() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.interactions = nil
}

func (a *Analyzer) recordInteraction(index int, action string, entry render.SelectorEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.interactions = append(a.interactions, InteractedElement{
		Index:     index,
		TagName:   entry.TagName,
		Text:      entry.Text,
		Role:      entry.Role,
		AriaLabel: entry.AriaLabel,
		Action:    action,
		Timestamp: time.Now(),
	})
}

func (a *Analyzer) resolve(index int) (render.SelectorEntry, error) {
	entry, ok := a.GetElementSelector(index)
	if !ok {
		return render.SelectorEntry{}, agenterrors.ElementNotFound(index)
	}
	return entry, nil
}

func trimForAudit(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max]
}

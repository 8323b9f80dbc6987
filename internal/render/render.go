// Package render turns a snapshot.Tree into the text/selector-map
// observation an LM consumes, per spec §4.2: paint-order culling,
// off-screen culling, dense ElementRef assignment, and a bounded
// indented text serialization. Grounded on the teacher's
// internal/snapshot.go Summary/Element flattening (filterAndRankElements,
// scoreElement) generalized from a flat scored list into the ordered,
// occlusion-aware algorithm spec §4.2 names explicitly.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ntegrals/openbrowser-sub001/internal/snapshot"
)

// Options tunes the renderer; defaults match spec §4.2/§9.
type Options struct {
	MaxElementsInDom        int
	OffscreenMargin         float64
	CollapseSvg             bool
	CapturedAttrs           []string
	SiblingDedupThreshold   int
	SiblingContainmentRatio float64
	PageHeightEstimate      float64
	MaxOffscreenHints       int
}

func DefaultOptions() Options {
	return Options{
		MaxElementsInDom:        2000,
		OffscreenMargin:         0,
		CollapseSvg:             true,
		CapturedAttrs:           []string{"title", "type", "name", "role", "tabindex", "aria-label", "placeholder", "value", "alt", "aria-expanded"},
		SiblingDedupThreshold:   5,
		SiblingContainmentRatio: 0.95,
		PageHeightEstimate:      900,
		MaxOffscreenHints:       15,
	}
}

// Viewport describes the scroll/viewport/document metrics spec §3's
// RenderedPageState carries alongside the tree.
type Viewport struct {
	ScrollX, ScrollY           float64
	ViewportWidth, ViewportHeight float64
	DocumentWidth, DocumentHeight float64
}

// SelectorEntry is one `selectorMap` value (spec §3's SelectorIndex).
type SelectorEntry struct {
	CSSSelector   string
	XPath         string
	BackendNodeID int64
	TagName       string
	Role          string
	AriaLabel     string
	Text          string
}

// OffscreenHint describes one interactive element culled by the
// off-screen pass, for the "off-screen interactive elements" appendix.
type OffscreenHint struct {
	Selector    string
	PagesAway   float64
	Above       bool
}

// State is spec §3's RenderedPageState.
type State struct {
	Tree                     string
	SelectorMap              map[int]SelectorEntry
	ElementCount             int
	InteractiveElementCount  int
	ScrollPosition           struct{ X, Y float64 }
	ViewportSize             struct{ Width, Height float64 }
	DocumentSize             struct{ Width, Height float64 }
	PixelsAbove              float64
	PixelsBelow              float64
	OffscreenHints           []OffscreenHint
	Truncated                bool
}

type survivor struct {
	idx        int
	node       *snapshot.PageTreeNode
	docOrder   int
}

// Render implements spec §4.2's algorithm end to end.
func Render(tree *snapshot.Tree, vp Viewport, opts Options, priorSelectors map[string]bool) (*State, error) {
	if tree == nil || tree.Node(tree.Root) == nil {
		return nil, fmt.Errorf("render: empty tree")
	}

	interactive := collectInteractive(tree)
	covered := paintOrderCull(interactive)
	survivors, offscreen := offscreenCull(covered, vp, opts)

	selectorMap := make(map[int]SelectorEntry, len(survivors))
	for ref, s := range survivors {
		s.node.HighlightIndex = intPtr(ref)
		selectorMap[ref] = SelectorEntry{
			CSSSelector:   s.node.CSSSelector,
			XPath:         s.node.XPath,
			BackendNodeID: s.node.BackendNodeID,
			TagName:       s.node.Tag,
			Role:          s.node.Role,
			AriaLabel:     s.node.AriaLabel,
			Text:          s.node.Text,
		}
	}

	var sb strings.Builder
	count := 0
	truncated := false
	if vp.ScrollY <= 0 {
		sb.WriteString("[Start of page]\n")
	}
	serialize(tree, tree.Root, 0, opts, priorSelectors, &sb, &count, &truncated)
	if truncated {
		fmt.Fprintf(&sb, "[... DOM truncated at %d elements]\n", opts.MaxElementsInDom)
	}
	pixelsBelow := vp.DocumentHeight - vp.ScrollY - vp.ViewportHeight
	if pixelsBelow < 0 {
		pixelsBelow = 0
	}
	if pixelsBelow <= 0 {
		sb.WriteString("[End of page]\n")
	}

	st := &State{
		Tree:                    sb.String(),
		SelectorMap:             selectorMap,
		ElementCount:            countAll(tree),
		InteractiveElementCount: len(survivors),
		PixelsAbove:             vp.ScrollY,
		PixelsBelow:             pixelsBelow,
		OffscreenHints:          offscreen,
		Truncated:               truncated,
	}
	st.ScrollPosition.X, st.ScrollPosition.Y = vp.ScrollX, vp.ScrollY
	st.ViewportSize.Width, st.ViewportSize.Height = vp.ViewportWidth, vp.ViewportHeight
	st.DocumentSize.Width, st.DocumentSize.Height = vp.DocumentWidth, vp.DocumentHeight
	return st, nil
}

func intPtr(v int) *int { return &v }

// collectInteractive is spec §4.2 step 1: depth-first gather of
// interactive, visible nodes in document order.
func collectInteractive(tree *snapshot.Tree) []survivor {
	var out []survivor
	order := 0
	var walk func(idx int)
	walk = func(idx int) {
		n := tree.Node(idx)
		if n == nil {
			return
		}
		if !n.IsText && n.Interactive && n.Visible {
			out = append(out, survivor{idx: idx, node: n, docOrder: order})
			order++
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(tree.Root)
	return out
}

// paintOrderCull is spec §4.2 step 2: 50px grid buckets, drop the
// lower-paint-order node when two rects in the same cell overlap ≥50% of
// the smaller area; ties favor later document order.
const gridCellSize = 50.0

func paintOrderCull(nodes []survivor) []survivor {
	type bucketKey struct{ cx, cy int }
	buckets := map[bucketKey][]int{}
	for i, s := range nodes {
		if s.node.Rect == nil {
			continue
		}
		cx := int(s.node.Rect.X / gridCellSize)
		cy := int(s.node.Rect.Y / gridCellSize)
		key := bucketKey{cx, cy}
		buckets[key] = append(buckets[key], i)
	}

	dropped := make(map[int]bool)
	for _, idxs := range buckets {
		for a := 0; a < len(idxs); a++ {
			for b := a + 1; b < len(idxs); b++ {
				i, j := idxs[a], idxs[b]
				if dropped[i] || dropped[j] {
					continue
				}
				ri, rj := nodes[i].node.Rect, nodes[j].node.Rect
				if ri == nil || rj == nil {
					continue
				}
				overlap := overlapArea(ri, rj)
				smaller := minArea(ri, rj)
				if smaller <= 0 || overlap/smaller < 0.5 {
					continue
				}
				loser := i
				if nodes[i].node.PaintOrder > nodes[j].node.PaintOrder {
					loser = j
				} else if nodes[i].node.PaintOrder == nodes[j].node.PaintOrder {
					// tie: later DOM order wins, so the earlier one is dropped
					if nodes[i].docOrder < nodes[j].docOrder {
						loser = i
					} else {
						loser = j
					}
				}
				dropped[loser] = true
			}
		}
	}

	out := make([]survivor, 0, len(nodes))
	for i, s := range nodes {
		if !dropped[i] {
			out = append(out, s)
		}
	}
	return out
}

func overlapArea(a, b *snapshot.Rect) float64 {
	x1 := max64(a.X, b.X)
	y1 := max64(a.Y, b.Y)
	x2 := min64(a.X+a.Width, b.X+b.Width)
	y2 := min64(a.Y+a.Height, b.Y+b.Height)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	return (x2 - x1) * (y2 - y1)
}

func minArea(a, b *snapshot.Rect) float64 {
	aa := a.Width * a.Height
	ba := b.Width * b.Height
	if aa < ba {
		return aa
	}
	return ba
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// offscreenCull is spec §4.2 step 3. Dropped nodes are returned as
// OffscreenHints (capped at opts.MaxOffscreenHints).
func offscreenCull(nodes []survivor, vp Viewport, opts Options) ([]survivor, []OffscreenHint) {
	margin := opts.OffscreenMargin
	top := vp.ScrollY - margin
	bottom := vp.ScrollY + vp.ViewportHeight + margin

	var kept []survivor
	var hints []OffscreenHint
	upperBound := max64(vp.ViewportHeight*10, vp.DocumentHeight)

	for _, s := range nodes {
		r := s.node.Rect
		if r == nil {
			kept = append(kept, s)
			continue
		}
		nodeTop := r.Y
		nodeBottom := r.Y + r.Height
		onScreen := nodeBottom >= top && nodeTop <= bottom
		if onScreen {
			kept = append(kept, s)
			continue
		}
		if nodeBottom < top && nodeTop < -upperBound {
			continue // far enough above to not even appendix-hint
		}
		if len(hints) >= opts.MaxOffscreenHints {
			continue
		}
		above := nodeBottom < top
		var distance float64
		if above {
			distance = (top - nodeBottom) / opts.PageHeightEstimate
		} else {
			distance = (nodeTop - bottom) / opts.PageHeightEstimate
		}
		hints = append(hints, OffscreenHint{Selector: s.node.CSSSelector, PagesAway: distance, Above: above})
	}

	// Re-derive dense order after dropping elements: renumber by original
	// document order so ElementRef stays dense and stable in doc order.
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].docOrder < kept[j].docOrder })
	return kept, hints
}

func countAll(tree *snapshot.Tree) int {
	return len(tree.Nodes)
}

// Package snapshot builds a unified DOM + accessibility tree from a CDP
// session, per spec §4.1. It replaces the teacher's ad-hoc
// map[string]interface{} walk over Accessibility.getFullAXTree with typed
// decoding of DOMSnapshot.captureSnapshot + Accessibility.getFullAXTree
// into an explicit arena of PageTreeNode, matched by backend node id.
package snapshot

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/domsnapshot"
	"github.com/playwright-community/playwright-go"
)

// Rect is a node's layout box in viewport coordinates.
type Rect struct {
	X, Y, Width, Height float64
}

// PageTreeNode is one node of the unified tree (spec §3). Children are
// held as arena indices (not pointers) per design note §9's guidance on
// avoiding parent back-references; Tree.Nodes is the arena.
type PageTreeNode struct {
	Tag        string
	IsText     bool
	Text       string
	Attrs      map[string]string
	Children   []int
	Rect       *Rect
	Visible    bool
	Role       string
	AriaLabel  string
	Interactive bool
	Clickable   bool
	Editable    bool
	Scrollable  bool
	HighlightIndex *int
	BackendNodeID  int64
	CSSSelector    string
	XPath          string
	ShadowChildren []int
	PaintOrder     int64
}

// Tree is the arena-owned unified tree rooted at Root.
type Tree struct {
	Nodes []*PageTreeNode
	Root  int
}

func (t *Tree) add(n *PageTreeNode) int {
	t.Nodes = append(t.Nodes, n)
	return len(t.Nodes) - 1
}

func (t *Tree) Node(i int) *PageTreeNode {
	if i < 0 || i >= len(t.Nodes) {
		return nil
	}
	return t.Nodes[i]
}

// interactiveTags and interactiveRoles implement spec §4.1 step 4's
// classification rule.
var interactiveTags = map[string]bool{
	"a": true, "button": true, "input": true, "select": true, "textarea": true,
	"details": true, "summary": true, "label": true, "option": true,
}

var interactiveRoles = map[string]bool{
	"button": true, "link": true, "textbox": true, "checkbox": true, "radio": true,
	"combobox": true, "listbox": true, "menuitem": true, "menuitemcheckbox": true,
	"menuitemradio": true, "option": true, "searchbox": true, "slider": true,
	"spinbutton": true, "switch": true, "tab": true, "treeitem": true,
}

// BuildOptions bounds how much of the page the snapshot builder captures.
type BuildOptions struct {
	MaxIframes int
}

// DefaultBuildOptions matches the teacher's conservative defaults, trimmed
// from 500 to a smaller bound for latency (browser.go's snapshot timeout).
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{MaxIframes: 5}
}

// Build captures a DOM snapshot + AX tree from page via CDP and merges
// them into a Tree, per spec §4.1 steps 1-6.
func Build(ctx context.Context, page playwright.Page, opts BuildOptions) (*Tree, error) {
	sess, err := newCDPSession(page)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open cdp session: %w", err)
	}
	defer sess.Detach()

	domResult, err := captureDOMSnapshot(ctx, sess)
	if err != nil {
		return nil, err
	}
	axResult, err := captureAXTree(ctx, sess)
	if err != nil {
		return nil, err
	}
	if len(domResult.Documents) == 0 {
		return nil, fmt.Errorf("snapshot: captureSnapshot returned no documents")
	}

	axByBackendID := indexAXNodesByBackendID(axResult.Nodes)

	tree := &Tree{}
	maxDocs := 1 + opts.MaxIframes
	if maxDocs > len(domResult.Documents) {
		maxDocs = len(domResult.Documents)
	}

	roots := make([]int, 0, maxDocs)
	for docIdx := 0; docIdx < maxDocs; docIdx++ {
		root, err := buildDocument(tree, domResult.Documents[docIdx], domResult.Strings, axByBackendID)
		if err != nil {
			continue
		}
		roots = append(roots, root)
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("snapshot: no document produced a root node")
	}
	tree.Root = roots[0]
	// Additional documents (iframes) are attached as extra children of the
	// main root so the renderer walks them in the same pass (spec §4.1:
	// "sub-trees for same-origin iframes").
	if mainRoot := tree.Node(tree.Root); mainRoot != nil {
		for _, r := range roots[1:] {
			mainRoot.Children = append(mainRoot.Children, r)
		}
	}
	resolveSelectors(tree, tree.Root, "")
	return tree, nil
}

// resolveSelectors assigns each node a CSS selector and an XPath by
// walking the arena from root, preferring id/name/data-testid attributes
// and falling back to a tag:nth-of-type(n) path segment.
func resolveSelectors(tree *Tree, idx int, xpathPrefix string) {
	n := tree.Node(idx)
	if n == nil || n.IsText {
		return
	}

	if id := n.Attrs["id"]; id != "" {
		n.CSSSelector = "#" + cssEscape(id)
	} else if testID := n.Attrs["data-testid"]; testID != "" {
		n.CSSSelector = fmt.Sprintf(`[data-testid="%s"]`, testID)
	} else if name := n.Attrs["name"]; name != "" && n.Tag != "" {
		n.CSSSelector = fmt.Sprintf(`%s[name="%s"]`, n.Tag, name)
	} else if n.CSSSelector == "" {
		n.CSSSelector = n.Tag
	}

	tagCounts := map[string]int{}
	for _, childIdx := range n.Children {
		child := tree.Node(childIdx)
		if child == nil || child.IsText {
			continue
		}
		tagCounts[child.Tag]++
		nth := tagCounts[child.Tag]
		childXPath := fmt.Sprintf("%s/%s[%d]", xpathPrefix, child.Tag, nth)
		child.XPath = childXPath
		if !strings.HasPrefix(n.Tag, "#") && !strings.HasPrefix(child.Tag, "#") {
			child.CSSSelector = fmt.Sprintf("%s > %s:nth-of-type(%d)", n.CSSSelector, child.Tag, nth)
		}
		resolveSelectors(tree, childIdx, childXPath)
	}
}

func cssEscape(s string) string {
	return strings.NewReplacer(`"`, `\"`, "'", `\'`).Replace(s)
}

func indexAXNodesByBackendID(nodes []*accessibility.AXNode) map[int64]*accessibility.AXNode {
	out := make(map[int64]*accessibility.AXNode, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		out[int64(n.BackendDOMNodeID)] = n
	}
	return out
}

// buildDocument converts one DOMSnapshot document into arena nodes,
// stitching parent/child links from the flattened ParentIndex array
// (spec §4.1 step 2) and merging AX attributes by backend node id
// (step 3), then classifying interactivity/visibility (step 4-5).
func buildDocument(tree *Tree, doc *domsnapshot.DocumentSnapshot, strings_ []string, axByBackendID map[int64]*accessibility.AXNode) (int, error) {
	if doc == nil || doc.Nodes == nil {
		return 0, fmt.Errorf("snapshot: empty document")
	}
	nodes := doc.Nodes
	count := len(nodes.NodeType)

	str := func(idx int64) string {
		if idx < 0 || int(idx) >= len(strings_) {
			return ""
		}
		return strings_[idx]
	}

	rects := buildRectIndex(doc.Layout)

	localIdx := make([]int, count)
	for i := 0; i < count; i++ {
		localIdx[i] = -1
	}

	// First pass: create nodes.
	for i := 0; i < count; i++ {
		nodeType := nodes.NodeType[i]
		isText := nodeType == 3 // DOM Node.TEXT_NODE

		n := &PageTreeNode{
			Attrs: map[string]string{},
		}
		if i < len(nodes.NodeName) {
			n.Tag = strings.ToLower(str(nodes.NodeName[i]))
		}
		if isText {
			n.IsText = true
			if i < len(nodes.NodeValue) {
				n.Text = str(nodes.NodeValue[i])
			}
		}
		if i < len(nodes.BackendNodeID) {
			n.BackendNodeID = int64(nodes.BackendNodeID[i])
		}
		if i < len(nodes.Attributes) {
			pairs := nodes.Attributes[i]
			for p := 0; p+1 < len(pairs); p += 2 {
				key := str(pairs[p])
				val := str(pairs[p+1])
				n.Attrs[key] = val
			}
		}
		if r, ok := rects[i]; ok {
			n.Rect = r
		}
		n.Visible = isVisibleNode(n)
		n.Interactive = isInteractiveNode(n)
		n.Clickable = n.Interactive

		if ax, ok := axByBackendID[n.BackendNodeID]; ok {
			mergeAXAttrs(n, ax)
		}

		localIdx[i] = tree.add(n)
	}

	// Second pass: link children by ParentIndex, preserving document order.
	for i := 0; i < count; i++ {
		parent := int64(-1)
		if i < len(nodes.ParentIndex) {
			parent = nodes.ParentIndex[i]
		}
		if parent < 0 {
			continue
		}
		parentArena := localIdx[parent]
		childArena := localIdx[i]
		if parentNode := tree.Node(parentArena); parentNode != nil {
			parentNode.Children = append(parentNode.Children, childArena)
		}
	}

	// Root is the node with no parent (index 0 in CDP's convention).
	root := 0
	for i := 0; i < count; i++ {
		p := int64(-1)
		if i < len(nodes.ParentIndex) {
			p = nodes.ParentIndex[i]
		}
		if p < 0 {
			root = i
			break
		}
	}
	return localIdx[root], nil
}

func buildRectIndex(layout *domsnapshot.LayoutTreeSnapshot) map[int]*Rect {
	out := map[int]*Rect{}
	if layout == nil {
		return out
	}
	for i, nodeIdx := range layout.NodeIndex {
		if i >= len(layout.Bounds) {
			break
		}
		b := layout.Bounds[i]
		if len(b) < 4 {
			continue
		}
		out[int(nodeIdx)] = &Rect{X: b[0], Y: b[1], Width: b[2], Height: b[3]}
	}
	return out
}

func isVisibleNode(n *PageTreeNode) bool {
	if n.Rect == nil {
		return false
	}
	if n.Rect.Width <= 0 || n.Rect.Height <= 0 {
		return false
	}
	if v := strings.ToLower(n.Attrs["style"]); strings.Contains(v, "display:none") || strings.Contains(v, "visibility:hidden") {
		return false
	}
	return true
}

func isInteractiveNode(n *PageTreeNode) bool {
	if n.IsText {
		return false
	}
	if interactiveTags[n.Tag] {
		return true
	}
	if role := strings.ToLower(n.Attrs["role"]); interactiveRoles[role] {
		return true
	}
	if _, ok := n.Attrs["onclick"]; ok {
		return true
	}
	if ti, ok := n.Attrs["tabindex"]; ok && ti != "-1" {
		return true
	}
	if ce := n.Attrs["contenteditable"]; ce == "true" {
		return true
	}
	return false
}

func mergeAXAttrs(n *PageTreeNode, ax *accessibility.AXNode) {
	if ax.Role != nil {
		if role, ok := ax.Role.Value.(string); ok {
			n.Role = role
			if interactiveRoles[strings.ToLower(role)] {
				n.Interactive = true
				n.Clickable = true
			}
		}
	}
	if ax.Name != nil {
		if name, ok := ax.Name.Value.(string); ok {
			n.AriaLabel = name
		}
	}
	for _, prop := range ax.Properties {
		if prop == nil || prop.Name == "" {
			continue
		}
		switch string(prop.Name) {
		case "editable":
			n.Editable = true
		case "scrollable":
			n.Scrollable = true
		}
	}
}

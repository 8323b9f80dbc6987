package render

import (
	"fmt"
	"strings"

	"github.com/ntegrals/openbrowser-sub001/internal/snapshot"
)

// serialize implements spec §4.2 step 5: depth-first pretty-print of the
// tree, `[idx]<tag attr="v" …>text</tag>` for interactive nodes, omitting
// `[idx]` for non-interactive ones (emitted only when they contain an
// emitted descendant), indented one tab per depth, with sibling
// deduplication and SVG collapse.
func serialize(tree *snapshot.Tree, idx int, depth int, opts Options, priorSelectors map[string]bool, sb *strings.Builder, count *int, truncated *bool) bool {
	if *truncated {
		return false
	}
	n := tree.Node(idx)
	if n == nil {
		return false
	}
	if n.IsText {
		text := strings.TrimSpace(n.Text)
		if text == "" {
			return false
		}
		writeIndent(sb, depth)
		sb.WriteString(text)
		sb.WriteByte('\n')
		*count++
		return true
	}

	if opts.CollapseSvg && n.Tag == "svg" {
		writeIndent(sb, depth)
		sb.WriteString("<svg/>\n")
		*count++
		return true
	}

	childIndices := dedupSiblings(tree, n.Children, opts)

	var childBuilders []string
	anyChildEmitted := false
	for _, c := range childIndices {
		if *count >= opts.MaxElementsInDom {
			*truncated = true
			break
		}
		var childSB strings.Builder
		emitted := serialize(tree, c, depth+1, opts, priorSelectors, &childSB, count, truncated)
		if emitted {
			anyChildEmitted = true
			childBuilders = append(childBuilders, childSB.String())
		}
	}

	isInteractive := n.Interactive && n.Visible
	if !isInteractive && !anyChildEmitted {
		return false
	}

	// A non-interactive node reaches this point only with an emitted
	// descendant; it has no HighlightIndex and prints without `[idx]`.
	if isInteractive || anyChildEmitted {
		writeIndent(sb, depth)
		marker := ""
		if n.HighlightIndex != nil {
			if priorSelectors != nil && !priorSelectors[n.CSSSelector] {
				marker = "*"
			}
			fmt.Fprintf(sb, "%s[%d]<%s", marker, *n.HighlightIndex, n.Tag)
		} else {
			fmt.Fprintf(sb, "<%s", n.Tag)
		}
		writeAttrs(sb, n, opts.CapturedAttrs)
		sb.WriteString(">")
		if t := strings.TrimSpace(n.Text); t != "" {
			sb.WriteString(t)
		}
		sb.WriteString(fmt.Sprintf("</%s>\n", n.Tag))
		*count++
	}

	for _, c := range childBuilders {
		sb.WriteString(c)
	}
	return isInteractive || anyChildEmitted
}

func writeIndent(sb *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		sb.WriteByte('\t')
	}
}

func writeAttrs(sb *strings.Builder, n *snapshot.PageTreeNode, captured []string) {
	for _, a := range captured {
		v, ok := n.Attrs[a]
		if !ok || v == "" {
			continue
		}
		fmt.Fprintf(sb, ` %s="%s"`, a, v)
	}
}

// dedupSiblings collapses runs of ≥SiblingDedupThreshold near-identical
// siblings (≥SiblingContainmentRatio attribute containment, same tag)
// into the first occurrence plus a count marker child appended after it
// (spec §4.2 "(N more similar)").
func dedupSiblings(tree *snapshot.Tree, children []int, opts Options) []int {
	if opts.SiblingDedupThreshold <= 0 || len(children) < opts.SiblingDedupThreshold {
		return children
	}

	out := make([]int, 0, len(children))
	i := 0
	for i < len(children) {
		n := tree.Node(children[i])
		if n == nil || n.IsText {
			out = append(out, children[i])
			i++
			continue
		}
		runEnd := i + 1
		for runEnd < len(children) && similar(tree, children[i], children[runEnd], opts.SiblingContainmentRatio) {
			runEnd++
		}
		runLen := runEnd - i
		out = append(out, children[i])
		if runLen >= opts.SiblingDedupThreshold {
			// the rest of the run collapses into a synthetic note attached
			// as a text sibling; callers render it via the normal text path.
			out = append(out, synthesizeMoreNote(tree, runLen-1))
			i = runEnd
			continue
		}
		for k := i + 1; k < runEnd; k++ {
			out = append(out, children[k])
		}
		i = runEnd
	}
	return out
}

func similar(tree *snapshot.Tree, aIdx, bIdx int, ratio float64) bool {
	a, b := tree.Node(aIdx), tree.Node(bIdx)
	if a == nil || b == nil || a.IsText || b.IsText || a.Tag != b.Tag {
		return false
	}
	if len(a.Attrs) == 0 && len(b.Attrs) == 0 {
		return true
	}
	matches := 0
	total := 0
	for k, v := range a.Attrs {
		total++
		if b.Attrs[k] == v {
			matches++
		}
	}
	if total == 0 {
		return true
	}
	return float64(matches)/float64(total) >= ratio
}

// synthesizeMoreNote appends a text node announcing a collapsed run to the
// tree's arena and returns its index.
func synthesizeMoreNote(tree *snapshot.Tree, n int) int {
	node := &snapshot.PageTreeNode{IsText: true, Text: fmt.Sprintf("(%d more similar)", n)}
	tree.Nodes = append(tree.Nodes, node)
	return len(tree.Nodes) - 1
}

package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/ntegrals/openbrowser-sub001/internal/render"
)

// PageSignature is a cheap per-step fingerprint used for stall detection
// (spec §3, §4.5 step 7): `{url, domHash, scrollY, interactiveCount}`.
type PageSignature struct {
	URL              string
	DomHash          uint64
	ScrollY          float64
	InteractiveCount int
}

// Equal reports whether two signatures describe the same observed state.
func (s PageSignature) Equal(other PageSignature) bool {
	return s.URL == other.URL && s.DomHash == other.DomHash &&
		s.ScrollY == other.ScrollY && s.InteractiveCount == other.InteractiveCount
}

// computeSignature implements spec §8's resolved Open Question: domHash is
// the hash of the sorted selectorMap CSS selectors plus the URL and scrollY
// rounded to the nearest 100px, so near-identical re-renders of an
// unchanged page collapse to the same signature.
func computeSignature(url string, state *render.State) PageSignature {
	if state == nil {
		return PageSignature{URL: url}
	}
	selectors := make([]string, 0, len(state.SelectorMap))
	for _, entry := range state.SelectorMap {
		selectors = append(selectors, entry.CSSSelector)
	}
	sort.Strings(selectors)

	roundedScroll := roundTo(state.ScrollPosition.Y, 100)

	var sb strings.Builder
	sb.WriteString(url)
	fmt.Fprintf(&sb, "|%.0f", roundedScroll)
	for _, sel := range selectors {
		sb.WriteString("|")
		sb.WriteString(sel)
	}

	return PageSignature{
		URL:              url,
		DomHash:          xxhash.Sum64String(sb.String()),
		ScrollY:          roundedScroll,
		InteractiveCount: state.InteractiveElementCount,
	}
}

func roundTo(v float64, step float64) float64 {
	if step <= 0 {
		return v
	}
	return float64(int(v/step+0.5)) * step
}

// signatureRing is a fixed-capacity ring buffer of the last K signatures
// (spec §4.5 step 2: "append to ring of last K=8").
type signatureRing struct {
	buf []PageSignature
	cap int
}

func newSignatureRing(capacity int) *signatureRing {
	if capacity <= 0 {
		capacity = 8
	}
	return &signatureRing{cap: capacity}
}

func (r *signatureRing) push(sig PageSignature) {
	r.buf = append(r.buf, sig)
	if len(r.buf) > r.cap {
		r.buf = r.buf[len(r.buf)-r.cap:]
	}
}

// lastNIdentical reports whether the trailing n entries are all equal to
// one another (spec §4.5 step 7: "last 3 signatures are identical").
func (r *signatureRing) lastNIdentical(n int) bool {
	if n <= 1 || len(r.buf) < n {
		return false
	}
	tail := r.buf[len(r.buf)-n:]
	for i := 1; i < len(tail); i++ {
		if !tail[i].Equal(tail[0]) {
			return false
		}
	}
	return true
}

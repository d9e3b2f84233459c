package usfm

import (
	"fmt"
	"strings"

	"github.com/FocuswithJustin/usfmcheck/core/errors"
	"github.com/FocuswithJustin/usfmcheck/internal/logging"
)

// Flatten serializes the tree back to USFM. For a tree returned by Parse the
// result equals the parsed input byte for byte.
func (t *Tree) Flatten() string {
	var sb strings.Builder
	sb.Grow(len(t.Input))
	t.flatten(&sb, t.Roots)
	return sb.String()
}

// FlattenElem serializes a single element and its subtree.
func (t *Tree) FlattenElem(id ElemID) string {
	var sb strings.Builder
	t.flatten(&sb, []Child{ElemNode(id)})
	return sb.String()
}

func (t *Tree) flatten(sb *strings.Builder, children []Child) {
	for _, c := range children {
		if c.Kind == TextChild {
			sb.WriteString(c.Text)
			continue
		}
		e := &t.Elems[c.Elem]
		sb.WriteString(e.OpenMarker)
		sb.WriteString(e.LeftArg)
		t.flatten(sb, e.Children)
		sb.WriteString(e.Trailer)
		sb.WriteString(e.CloseMarker)
	}
}

// VerifyRoundTrip checks that the tree flattens back to its input. A
// mismatch is a tokenizer bug, not a property of the file: it is logged on
// the diagnostics logger and returned as an InternalError, and never
// recorded as a finding.
func (t *Tree) VerifyRoundTrip() error {
	got := t.Flatten()
	if got == t.Input {
		return nil
	}
	line, want, have := firstDiff(t.Input, got)
	logging.RoundTripFailure(t.Name, line, want, have)
	return errors.NewRoundTrip("tokenizer", fmt.Sprintf("%s: flattened tree differs from input at line %d", t.Name, line))
}

// firstDiff returns the 1-based line of the first difference between a and
// b, with both lines, for round-trip diagnostics.
func firstDiff(a, b string) (line int, la, lb string) {
	al := strings.SplitAfter(a, "\n")
	bl := strings.SplitAfter(b, "\n")
	for i := 0; i < len(al) || i < len(bl); i++ {
		var x, y string
		if i < len(al) {
			x = al[i]
		}
		if i < len(bl) {
			y = bl[i]
		}
		if x != y {
			return i + 1, x, y
		}
	}
	return 0, "", ""
}

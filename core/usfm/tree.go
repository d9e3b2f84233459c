// Package usfm parses USFM files into element trees and checks, repairs and
// extracts them.
//
// Elements live in a per-parse arena and refer to each other by ElemID, so
// trees carry no pointer cycles. A Tree is built by one goroutine and is
// read-only afterwards.
package usfm

import (
	"strings"

	"github.com/FocuswithJustin/usfmcheck/core/grammar"
	"github.com/FocuswithJustin/usfmcheck/core/lines"
)

// ElemID indexes Tree.Elems.
type ElemID int

// NoElem is the parent of top-level elements.
const NoElem ElemID = -1

// ChildKind discriminates Child.
type ChildKind uint8

// Child kinds.
const (
	TextChild ChildKind = iota
	ElemChild
)

// Child is either a literal text run or a nested element.
type Child struct {
	Kind ChildKind
	Text string
	Elem ElemID
}

// TextNode returns a text child.
func TextNode(s string) Child { return Child{Kind: TextChild, Text: s, Elem: NoElem} }

// ElemNode returns an element child.
func ElemNode(id ElemID) Child { return Child{Kind: ElemChild, Elem: id} }

// CloseKind records how an element was closed.
type CloseKind uint8

// Close kinds.
const (
	StillOpen CloseKind = iota
	ClosedExplicit
	ClosedImplicit // by a tag that closes it per the grammar
	ClosedEOL
	ClosedForced // popped by a crossed close or implicit close further down
	ClosedEOF
	ClosedSelf
)

func (k CloseKind) String() string {
	switch k {
	case StillOpen:
		return "open"
	case ClosedExplicit:
		return "explicit"
	case ClosedImplicit:
		return "implicit"
	case ClosedEOL:
		return "eol"
	case ClosedForced:
		return "forced"
	case ClosedEOF:
		return "eof"
	case ClosedSelf:
		return "self"
	}
	return "unknown"
}

// Pos is a byte offset into the current text of a line fragment.
type Pos struct {
	Frag   *lines.Fragment
	Offset int
}

// Element is one tagged node.
type Element struct {
	ID  ElemID
	Tag string // core tag name, e.g. "mt1" for a written \mt
	Def *grammar.TagDefinition

	Marker      grammar.Marker
	OpenMarker  string // marker text plus the whitespace consumed after it
	LeftArg     string // verse number, chapter number, caller or book id as written
	Children    []Child
	Trailer     string // "|..." attribute trailer
	Attrs       map[string]string
	CloseMarker string

	Parent ElemID
	Orphan bool // a close marker with no open element
	Close  CloseKind
	// ForcedBy is the tag whose close force-closed this element.
	ForcedBy string

	OpenSpan, CloseSpan lines.Span
	OpenAt, CloseAt     Pos

	// Ref is the versification string when the element was opened.
	Ref  string
	Book string
}

// Arg returns the left argument without surrounding whitespace.
func (e *Element) Arg() string { return strings.TrimSpace(e.LeftArg) }

// Is reports whether the element's tag carries category c.
func (e *Element) Is(c grammar.Category) bool { return e.Def.Is(c) }

// Registered reports whether the tag is in the grammar.
func (e *Element) Registered() bool { return e.Def != nil }

// Tree is the parse result for one file.
type Tree struct {
	Name  string
	Elems []Element
	Roots []Child

	// Input is the text the tree was parsed from.
	Input string
	// Versification holds the numbering state gathered during the parse.
	Versification *Tracker
}

// Elem returns the element with the given id.
func (t *Tree) Elem(id ElemID) *Element { return &t.Elems[id] }

// Children returns the children of id, or the roots for NoElem.
func (t *Tree) Children(id ElemID) []Child {
	if id == NoElem {
		return t.Roots
	}
	return t.Elems[id].Children
}

// Parent returns the parent element, or nil at top level.
func (t *Tree) Parent(id ElemID) *Element {
	p := t.Elems[id].Parent
	if p == NoElem {
		return nil
	}
	return &t.Elems[p]
}

// Walk visits elements in document order. Returning false from fn skips the
// element's subtree.
func (t *Tree) Walk(fn func(e *Element) bool) {
	t.walk(t.Roots, fn)
}

func (t *Tree) walk(children []Child, fn func(e *Element) bool) {
	for _, c := range children {
		if c.Kind != ElemChild {
			continue
		}
		e := &t.Elems[c.Elem]
		if fn(e) {
			t.walk(e.Children, fn)
		}
	}
}

// Text returns the literal text below id, attribute trailers and left
// arguments excluded.
func (t *Tree) Text(id ElemID) string {
	var sb strings.Builder
	t.text(&sb, t.Children(id))
	return sb.String()
}

func (t *Tree) text(sb *strings.Builder, children []Child) {
	for _, c := range children {
		if c.Kind == TextChild {
			sb.WriteString(c.Text)
			continue
		}
		t.text(sb, t.Elems[c.Elem].Children)
	}
}

// NextSibling returns the child following id in its parent, if any.
func (t *Tree) NextSibling(id ElemID) (Child, bool) {
	siblings := t.Children(t.Elems[id].Parent)
	for i, c := range siblings {
		if c.Kind == ElemChild && c.Elem == id {
			if i+1 < len(siblings) {
				return siblings[i+1], true
			}
			break
		}
	}
	return Child{}, false
}

// Count returns the number of elements with core tag name tag.
func (t *Tree) Count(tag string) int {
	n := 0
	for i := range t.Elems {
		if t.Elems[i].Tag == tag && !t.Elems[i].Orphan {
			n++
		}
	}
	return n
}

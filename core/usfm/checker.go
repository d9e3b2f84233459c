package usfm

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/FocuswithJustin/usfmcheck/core/grammar"
	"github.com/FocuswithJustin/usfmcheck/core/ledger"
)

// userTagPattern matches the \z* extension namespace.
var userTagPattern = regexp.MustCompile(`^z[A-Za-z0-9_-]*$`)

// Checker applies structural rules to a parsed tree.
type Checker struct {
	tree *Tree
	reg  *grammar.Registry
	rec  recorder

	userTags    map[string]*userTag
	userOrder   []string
	variantUses map[string]map[string]int // core tag -> name as written -> count
}

type userTag struct {
	first string
	count int
}

// NewChecker returns a checker that records findings to l.
func NewChecker(tree *Tree, reg *grammar.Registry, l *ledger.Ledger) *Checker {
	return &Checker{
		tree:        tree,
		reg:         reg,
		rec:         recorder{ledger: l},
		userTags:    make(map[string]*userTag),
		variantUses: make(map[string]map[string]int),
	}
}

// CheckAll checks every element in document order, then runs the whole-file
// passes.
func (c *Checker) CheckAll() {
	c.tree.Walk(func(e *Element) bool {
		c.Check(e.ID)
		return true
	})
	c.Finish()
}

func (c *Checker) record(e *Element, path ledger.Path, detail string, opts ...ledger.Option) {
	c.rec.record(e.Book, path, e.Ref, detail, opts...)
}

// Check applies the per-element rules to one element. It only writes to the
// ledger.
func (c *Checker) Check(id ElemID) {
	e := c.tree.Elem(id)
	tag := `\` + e.Tag

	if e.Def == nil {
		if userTagPattern.MatchString(e.Tag) {
			c.seeUserTag(e)
			return
		}
		c.record(e, ledger.P(ledger.SevereErrors, pathTags, "Unrecognized tags", `\`+e.Marker.Name), "")
		return
	}

	if e.Orphan {
		c.record(e, ledger.P(ledger.Errors, pathPaired, "Missing open tag", e.CloseMarker), "")
		return
	}

	if e.Marker.NumeralAdded || strings.HasSuffix(e.Tag, "1") {
		uses := c.variantUses[e.Tag]
		if uses == nil {
			uses = make(map[string]int)
			c.variantUses[e.Tag] = uses
		}
		uses[e.Marker.Name]++
	}

	if e.Def.Deprecated {
		c.record(e, ledger.P(ledger.Warnings, pathTags, "Deprecated tag", tag), e.Def.Explanation)
	}

	c.checkClose(e, tag)

	if sev, ok := c.NeedsPlus(id); ok {
		from := fmt.Sprintf(`\%s …\%s*`, e.Marker.Name, e.Marker.Name)
		to := fmt.Sprintf(`\+%s …\+%s*`, e.Marker.Name, e.Marker.Name)
		leaf := fmt.Sprintf(`Change \%s to \+%s inside nested markup`, e.Marker.Name, e.Marker.Name)
		c.record(e, ledger.P(sev, "Nested tags", leaf), from+" → "+to)
	}

	c.checkExclusive(e)
}

func (c *Checker) checkClose(e *Element, tag string) {
	switch {
	case e.CloseMarker != "" && e.Close == ClosedExplicit:
		if e.Def.Closing == grammar.ClosingNever {
			if e.Def.DeprecatedClose {
				c.record(e, ledger.P(ledger.AutoRepairable, pathPaired, "Deprecated close tag", e.CloseMarker), "")
			} else {
				c.record(e, ledger.P(ledger.Errors, pathPaired, "Unexpected close tag", e.CloseMarker), "")
			}
			return
		}
		if want := e.Marker.Raw + "*"; e.CloseMarker != want {
			c.record(e, ledger.P(ledger.Errors, pathPaired, "Open/close tags do not match"),
				e.Marker.Raw+" … "+e.CloseMarker)
		}
	case e.Def.Closing == grammar.ClosingRequired:
		if e.Close == ClosedEOF || e.Close == ClosedSelf {
			return
		}
		closer := e.ForcedBy
		if parent := c.tree.Parent(e.ID); closer == "" && parent != nil {
			closer = parent.Tag
		}
		if closer != "" && e.Def.MayStayOpenInside(closer) {
			return
		}
		c.record(e, ledger.P(ledger.Errors, pathPaired, "Missing closing tag", tag), "")
	}
}

// NeedsPlus reports whether a character-level element nested in other
// character-level markup lacks its "+" prefix, and at which severity.
func (c *Checker) NeedsPlus(id ElemID) (string, bool) {
	e := c.tree.Elem(id)
	if e.Def == nil || e.Orphan || e.Marker.Plus || e.Def.Is(grammar.CatOneLiner) {
		return "", false
	}
	if !e.Def.Is(grammar.CatChar) {
		return "", false
	}
	parent := c.tree.Parent(id)
	if parent == nil || parent.Def == nil || parent.Def.AllowsChild(e.Tag) {
		return "", false
	}
	switch {
	case parent.Def.Is(grammar.CatChar), parent.Def.Is(grammar.CatWordLevel):
		return ledger.AutoRepairable, true
	case parent.Def.Is(grammar.CatNoteContent) && !parent.Def.Is(grammar.CatXrefContent):
		return ledger.Warnings, true
	}
	return "", false
}

func (c *Checker) checkExclusive(e *Element) {
	if len(e.Def.Exclusive) == 0 {
		return
	}
	present := make(map[string]bool)
	for _, ch := range e.Children {
		if ch.Kind == ElemChild {
			present[c.tree.Elem(ch.Elem).Tag] = true
		}
	}
	for _, group := range e.Def.Exclusive {
		var used []string
		for _, t := range group {
			if present[t] {
				used = append(used, `\`+t)
			}
		}
		if len(used) > 1 {
			c.record(e, ledger.P(ledger.Errors, pathTags, "Mutually exclusive tags", `\`+e.Tag), strings.Join(used, ", "))
		}
	}
}

func (c *Checker) seeUserTag(e *Element) {
	ut, ok := c.userTags[e.Tag]
	if !ok {
		ut = &userTag{first: e.Ref}
		c.userTags[e.Tag] = ut
		c.userOrder = append(c.userOrder, e.Tag)
	}
	if !e.Orphan {
		ut.count++
	}
}

// Finish reports user-defined tags once each and inconsistent use of
// numbered tag variants.
func (c *Checker) Finish() {
	book := c.tree.Book()
	for _, name := range c.userOrder {
		ut := c.userTags[name]
		c.rec.record(book, ledger.P(ledger.Info, pathTags, "User-defined tags", `\`+name), ut.first,
			fmt.Sprintf("%d occurrences", ut.count))
	}

	cores := make([]string, 0, len(c.variantUses))
	for core := range c.variantUses {
		cores = append(cores, core)
	}
	sort.Strings(cores)
	for _, core := range cores {
		uses := c.variantUses[core]
		if len(uses) < 2 {
			continue
		}
		names := make([]string, 0, len(uses))
		for n := range uses {
			names = append(names, n)
		}
		sort.Slice(names, func(i, j int) bool {
			if uses[names[i]] != uses[names[j]] {
				return uses[names[i]] > uses[names[j]]
			}
			return names[i] < names[j]
		})
		dominant := names[0]
		var parts []string
		for _, n := range names {
			parts = append(parts, fmt.Sprintf(`\%s (%d)`, n, uses[n]))
		}
		loc := book
		if loc == "" {
			loc = c.tree.Name
		}
		leaf := `\` + strings.Join(sortedCopy(names), ` vs \`)
		c.rec.record(book, ledger.P(ledger.Warnings, "Inconsistent tag variants", leaf), loc, strings.Join(parts, ", "))
		c.rec.record(book, ledger.P(ledger.Silent, "Dominant tag variant", `\`+dominant), loc, leaf, ledger.CountOnlyFull())
	}
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

// Check runs every structural check over a finished tree.
func Check(tree *Tree, reg *grammar.Registry, l *ledger.Ledger) {
	NewChecker(tree, reg, l).CheckAll()
}

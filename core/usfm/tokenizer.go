package usfm

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/FocuswithJustin/usfmcheck/core/errors"
	"github.com/FocuswithJustin/usfmcheck/core/grammar"
	"github.com/FocuswithJustin/usfmcheck/core/ledger"
	"github.com/FocuswithJustin/usfmcheck/core/lines"
)

var (
	markerLexeme  = regexp.MustCompile(`^\\\+?[A-Za-z]+\d*(?:-[se])?\*?`)
	verseArg      = regexp.MustCompile(`^[ \t]*(\d+[a-z]?(?:-\d+[a-z]?)?)[ \t]?`)
	gluedVerseArg = regexp.MustCompile(`^([a-z]?(?:-\d+[a-z]?)?)[ \t]?`)
	chapterArg    = regexp.MustCompile(`^[ \t]*(\d+)[ \t]?`)
	callerArg     = regexp.MustCompile(`^[ \t]*([^\s\\])[ \t]?`)
	bookArg       = regexp.MustCompile(`^[ \t]*([^\s\\]+)[ \t]?`)
	chapterJunk   = regexp.MustCompile(`^[ \t]*([^\p{L}\p{N}\\\s][^\p{L}\\]{0,3}?)[ \t]*$`)
	wrongSlash    = regexp.MustCompile(`(?:^|\s)(/[A-Za-z]+)[ \t]+\d`)
	attrPair      = regexp.MustCompile(`([\w-]+)\s*=\s*"([^"]*)"`)
)

// figure attribute names for the positional USFM 2 syntax
// \fig DESC|FILE|SIZE|LOC|COPY|CAP|REF\fig*
var figurePositional = []string{"src", "size", "loc", "copy", "cap", "ref"}

const (
	pathTags   = "Tags"
	pathPaired = "Paired tags"
)

type parser struct {
	reg   *grammar.Registry
	tree  *Tree
	stack []ElemID
	track *Tracker
	rec   recorder

	frag *lines.Fragment
	text string
	pos  int
	line int
}

// Parse tokenizes doc into an element tree, reading each fragment's current
// text. Findings are recorded to l, which may be nil. Parse always returns a
// tree: malformed markup is closed synthetically and reported.
func Parse(doc *lines.Document, reg *grammar.Registry, l *ledger.Ledger) *Tree {
	p := &parser{
		reg:   reg,
		rec:   recorder{ledger: l},
		track: NewTracker(l),
		tree:  &Tree{Name: doc.Name},
	}
	p.tree.Versification = p.track

	var input strings.Builder
	for f := doc.First(); f != nil; f = f.Next {
		p.frag, p.text, p.pos = f, f.Current(), 0
		p.line = f.Span.StartLine
		input.WriteString(p.text)
		input.WriteString(f.EOL)

		p.scanLine()
		if f.EOL != "" || f.Next == nil {
			p.endOfLine()
		}
		p.addText(f.EOL)
	}
	p.endOfFile()
	p.track.Finish()

	if doc.MixedLineEndings() {
		lf, crlf := doc.LineEndings()
		loc := p.tree.Book()
		if loc == "" {
			loc = doc.Name
		}
		p.rec.record(loc, ledger.P(ledger.Info, "Line endings", "Mixed line endings"), loc,
			fmt.Sprintf("%d LF, %d CRLF", lf, crlf))
	}

	p.tree.Input = input.String()
	return p.tree
}

// Book returns the first book id seen in the tree, or "".
func (t *Tree) Book() string {
	for i := range t.Elems {
		if t.Elems[i].Book != "" {
			return t.Elems[i].Book
		}
	}
	return ""
}

func (p *parser) loc() string {
	if loc := p.track.Location(); loc != "" {
		return loc
	}
	return lineLocation(p.line)
}

func (p *parser) record(path ledger.Path, detail string, opts ...ledger.Option) {
	p.rec.record(p.track.Book(), path, p.loc(), detail, opts...)
}

func (p *parser) top() *Element {
	if len(p.stack) == 0 {
		return nil
	}
	return &p.tree.Elems[p.stack[len(p.stack)-1]]
}

func (p *parser) topID() ElemID {
	if len(p.stack) == 0 {
		return NoElem
	}
	return p.stack[len(p.stack)-1]
}

func (p *parser) span(from, to int) lines.Span {
	l1, c1 := p.frag.Position(from)
	l2, c2 := p.frag.Position(to)
	return lines.Span{StartLine: l1, StartCol: c1, EndLine: l2, EndCol: c2}
}

// scanLine is the forward scan over one fragment: literal text runs up to
// each backslash, then one marker.
func (p *parser) scanLine() {
	for p.pos < len(p.text) {
		i := strings.IndexByte(p.text[p.pos:], '\\')
		if i < 0 {
			p.textRun(p.text[p.pos:], "")
			p.pos = len(p.text)
			return
		}
		if i > 0 {
			p.textRun(p.text[p.pos:p.pos+i], p.text[p.pos+i:])
			p.pos += i
		}
		p.marker()
	}
}

// textRun adds literal text. rest is the remainder of the line starting at
// the marker that ends the run.
func (p *parser) textRun(s, rest string) {
	for _, m := range wrongSlash.FindAllStringSubmatch(s, -1) {
		if mk, ok := p.reg.Normalize(m[1]); ok && mk.Registered && mk.MissingBackslash {
			p.record(ledger.P(ledger.AutoRepairable, pathTags, "Forward slash instead of backslash", m[1]), strings.TrimSpace(m[0]))
		}
	}

	if top := p.top(); top != nil && top.Def != nil && top.Def.Attributes && top.Trailer == "" {
		if bar := strings.IndexByte(s, '|'); bar >= 0 && p.closesTop(rest) {
			p.addText(s[:bar])
			top.Trailer = s[bar:]
			top.Attrs = parseAttrs(top.Def, top.Trailer)
			return
		}
	}
	p.addText(s)
}

func (p *parser) closesTop(rest string) bool {
	raw := markerLexeme.FindString(rest)
	if raw == "" {
		return false
	}
	mk, _ := p.reg.Normalize(raw)
	top := p.top()
	return mk.Close && top != nil && mk.Core == top.Tag
}

// addText appends s to the innermost open element, merging with a preceding
// text child.
func (p *parser) addText(s string) {
	if s == "" {
		return
	}
	children := &p.tree.Roots
	if top := p.top(); top != nil {
		children = &top.Children
	}
	if n := len(*children); n > 0 && (*children)[n-1].Kind == TextChild {
		(*children)[n-1].Text += s
		return
	}
	*children = append(*children, TextNode(s))
}

func (p *parser) marker() {
	start := p.pos
	raw := markerLexeme.FindString(p.text[start:])
	if raw == "" {
		p.record(ledger.P(ledger.SevereErrors, pathTags, "Backslash not followed by tag"), excerpt(p.text, start))
		p.addText(`\`)
		p.pos++
		return
	}
	mk, _ := p.reg.Normalize(raw)
	p.pos += len(raw)
	if mk.Close {
		p.closeMarker(mk, start)
		return
	}
	p.openMarker(mk, start)
}

func (p *parser) lookup(mk grammar.Marker) *grammar.TagDefinition {
	if !mk.Registered {
		return nil
	}
	def, _ := p.reg.Lookup(mk.Core)
	return def
}

func (p *parser) openMarker(mk grammar.Marker, start int) {
	def := p.lookup(mk)
	p.closeImplicit(mk.Core, start)

	id := ElemID(len(p.tree.Elems))
	parent := p.topID()
	p.tree.Elems = append(p.tree.Elems, Element{
		ID:         id,
		Tag:        mk.Core,
		Def:        def,
		Marker:     mk,
		OpenMarker: mk.Raw,
		Parent:     parent,
		OpenAt:     Pos{Frag: p.frag, Offset: start},
	})
	if parent == NoElem {
		p.tree.Roots = append(p.tree.Roots, ElemNode(id))
	} else {
		p.tree.Elems[parent].Children = append(p.tree.Elems[parent].Children, ElemNode(id))
	}
	e := &p.tree.Elems[id]

	if !mk.MissingSpace && p.pos < len(p.text) && isBlank(p.text[p.pos]) {
		e.OpenMarker += p.text[p.pos : p.pos+1]
		p.pos++
	}
	if def != nil {
		switch def.LeftArg {
		case grammar.ArgVerse:
			p.verseArg(e)
		case grammar.ArgChapter:
			p.chapterArg(e)
		case grammar.ArgCaller:
			p.callerArg(e)
		case grammar.ArgBook:
			p.bookArg(e)
		}
	}
	e.Ref = p.loc()
	e.Book = p.track.Book()
	e.OpenSpan = p.span(start, p.pos)

	if def != nil && def.Closing == grammar.ClosingSelf {
		e.Close = ClosedSelf
		if def.Is(grammar.CatMilestone) {
			p.milestone(e)
		}
		e.CloseAt = Pos{Frag: p.frag, Offset: p.pos}
		e.CloseSpan = p.span(p.pos, p.pos)
		return
	}
	p.stack = append(p.stack, id)
}

// milestone consumes an attribute trailer and the \* that ends a milestone.
func (p *parser) milestone(e *Element) {
	rest := p.text[p.pos:]
	end := strings.Index(rest, `\*`)
	if end < 0 || strings.IndexByte(rest[:end], '\\') >= 0 {
		return
	}
	e.Trailer = rest[:end]
	e.Attrs = parseAttrs(e.Def, e.Trailer)
	e.CloseMarker = `\*`
	p.pos += end + len(e.CloseMarker)
}

func (p *parser) verseArg(e *Element) {
	rest := p.text[p.pos:]
	var arg, num string
	extra := false
	switch m := verseArg.FindStringSubmatch(rest); {
	case e.Marker.MissingSpace:
		g := gluedVerseArg.FindStringSubmatch(rest)
		arg, num = g[0], e.Marker.Glued+g[1]
	case m != nil:
		arg, num = m[0], m[1]
		extra = isBlank(arg[0])
	default:
		p.record(ledger.P(ledger.Errors, pathVerseNumbers, "Missing verse number"), excerpt(p.text, p.pos))
		return
	}
	e.LeftArg = arg
	p.pos += len(arg)
	if _, err := p.track.StartVerse(num); err != nil {
		p.formatError(err)
	}
	p.spacing(e, extra)
}

func (p *parser) chapterArg(e *Element) {
	rest := p.text[p.pos:]
	var arg, num string
	extra := false
	switch m := chapterArg.FindStringSubmatch(rest); {
	case e.Marker.MissingSpace:
		arg, num = "", e.Marker.Glued
		if rest != "" && isBlank(rest[0]) {
			arg = rest[:1]
		}
	case m != nil:
		arg, num = m[0], m[1]
		extra = isBlank(arg[0])
	default:
		p.record(ledger.P(ledger.Errors, "Chapter numbers", "Missing chapter number"), excerpt(p.text, p.pos))
		return
	}
	e.LeftArg = arg
	p.pos += len(arg)
	if err := p.track.StartChapter(num); err != nil {
		p.formatError(err)
	}
	p.spacing(e, extra)
	lineEnd := p.frag.EOL != "" || p.frag.Next == nil
	if m := chapterJunk.FindStringSubmatch(p.text[p.pos:]); m != nil && lineEnd {
		p.record(ledger.P(ledger.AutoRepairable, "Chapter numbers", "Spurious characters after chapter number"), m[1])
	}
}

func (p *parser) spacing(e *Element, extra bool) {
	tag := `\` + e.Tag
	if e.Marker.MissingSpace {
		p.record(ledger.P(ledger.AutoRepairable, pathTags, "Missing space after tag", tag), e.Marker.Raw)
	}
	if extra {
		p.record(ledger.P(ledger.AutoRepairable, pathTags, "Extra space after tag", tag), "")
	}
}

func (p *parser) callerArg(e *Element) {
	m := callerArg.FindString(p.text[p.pos:])
	if m == "" {
		p.record(ledger.P(ledger.Errors, "Notes", "Missing note caller", `\`+e.Tag), "")
		return
	}
	e.LeftArg = m
	p.pos += len(m)
}

func (p *parser) bookArg(e *Element) {
	m := bookArg.FindStringSubmatch(p.text[p.pos:])
	if m == nil {
		p.record(ledger.P(ledger.Errors, "Books", "Missing book code"), "")
		return
	}
	e.LeftArg = m[0]
	p.pos += len(m[0])
	if err := p.track.StartBook(m[1]); err != nil {
		p.formatError(err)
		return
	}
	if !KnownBook(p.track.Book()) {
		p.record(ledger.P(ledger.Errors, "Books", "Unknown book code"), m[1])
	}
}

// formatError turns a malformed chapter, verse or book value into a finding.
func (p *parser) formatError(err error) {
	var fe *errors.FormatError
	if !errors.As(err, &fe) {
		p.record(ledger.P(ledger.Errors, pathTags, "Unparsable marker argument"), err.Error())
		return
	}
	switch fe.Kind {
	case errors.KindBookCode:
		p.record(ledger.P(ledger.Errors, "Books", "Invalid book code"), fe.Value)
	case errors.KindChapterNumber:
		p.record(ledger.P(ledger.Errors, "Chapter numbers", "Invalid chapter number"), fe.Value)
	default:
		p.record(ledger.P(ledger.Errors, pathVerseNumbers, "Invalid verse number"), fe.Value)
	}
}

// closeImplicit pops every open element that tag closes per the grammar.
// Elements above such an element are force-closed first.
func (p *parser) closeImplicit(tag string, at int) {
	for {
		idx := -1
		for i := len(p.stack) - 1; i >= 0; i-- {
			if p.reg.ClosesImplicitly(tag, p.tree.Elems[p.stack[i]].Tag) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		p.popAbove(idx, at)
		p.pop(ClosedImplicit, at)
	}
}

// popAbove force-closes everything above stack index idx on behalf of the
// element at idx.
func (p *parser) popAbove(idx, at int) {
	by := p.tree.Elems[p.stack[idx]].Tag
	for len(p.stack)-1 > idx {
		p.pop(ClosedForced, at).ForcedBy = by
	}
}

func (p *parser) pop(kind CloseKind, at int) *Element {
	id := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	e := &p.tree.Elems[id]
	e.Close = kind
	e.CloseAt = Pos{Frag: p.frag, Offset: at}
	e.CloseSpan = p.span(at, at)
	if kind == ClosedImplicit || kind == ClosedEOL {
		p.rec.record(e.Book, ledger.P(ledger.Silent, "Implied close tag", `\`+e.Tag), e.Ref, "", ledger.CountOnlyFull())
	}
	return e
}

func (p *parser) closeMarker(mk grammar.Marker, start int) {
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.tree.Elems[p.stack[i]].Tag != mk.Core {
			continue
		}
		p.popAbove(i, start)
		e := p.pop(ClosedExplicit, start)
		e.CloseMarker = mk.Raw
		e.CloseSpan = p.span(start, p.pos)
		p.rec.record(e.Book, ledger.P(ledger.Silent, "Explicit close tag", `\`+e.Tag), e.Ref, "", ledger.CountOnlyFull())
		return
	}

	id := ElemID(len(p.tree.Elems))
	parent := p.topID()
	p.tree.Elems = append(p.tree.Elems, Element{
		ID:          id,
		Tag:         mk.Core,
		Def:         p.lookup(mk),
		Marker:      mk,
		CloseMarker: mk.Raw,
		Parent:      parent,
		Orphan:      true,
		Close:       ClosedExplicit,
		Ref:         p.loc(),
		Book:        p.track.Book(),
		OpenAt:      Pos{Frag: p.frag, Offset: start},
		CloseAt:     Pos{Frag: p.frag, Offset: start},
		OpenSpan:    p.span(start, start),
		CloseSpan:   p.span(start, p.pos),
	})
	if parent == NoElem {
		p.tree.Roots = append(p.tree.Roots, ElemNode(id))
	} else {
		p.tree.Elems[parent].Children = append(p.tree.Elems[parent].Children, ElemNode(id))
	}
}

func closesAtEOL(e *Element) bool {
	return e.Def == nil || e.Def.CloseAtEOL
}

// endOfLine closes one-liner and unregistered tags. Anything open above the
// outermost such tag is force-closed with it.
func (p *parser) endOfLine() {
	idx := -1
	for i, id := range p.stack {
		if closesAtEOL(&p.tree.Elems[id]) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	by := p.tree.Elems[p.stack[idx]].Tag
	for len(p.stack) > idx {
		kind := ClosedForced
		if closesAtEOL(p.top()) {
			kind = ClosedEOL
		}
		if e := p.pop(kind, len(p.text)); kind == ClosedForced {
			e.ForcedBy = by
		}
	}
}

func (p *parser) endOfFile() {
	for len(p.stack) > 0 {
		e := p.top()
		if e.Def != nil && e.Def.Closing == grammar.ClosingRequired {
			p.rec.record(e.Book, ledger.P(ledger.Warnings, pathPaired, "Tag open at end of file", `\`+e.Tag), e.Ref, "")
		}
		p.pop(ClosedEOF, len(p.text))
	}
}

// parseAttrs reads an attribute trailer: key="value" pairs, the positional
// figure syntax, or a single default attribute value.
func parseAttrs(def *grammar.TagDefinition, trailer string) map[string]string {
	body := strings.TrimSpace(trailer)
	body = strings.TrimPrefix(body, "|")
	if body == "" {
		return nil
	}
	attrs := make(map[string]string)
	if pairs := attrPair.FindAllStringSubmatch(body, -1); len(pairs) > 0 {
		for _, kv := range pairs {
			attrs[kv[1]] = kv[2]
		}
		return attrs
	}
	if def.Is(grammar.CatFigure) {
		for i, v := range strings.Split(body, "|") {
			if i < len(figurePositional) && strings.TrimSpace(v) != "" {
				attrs[figurePositional[i]] = strings.TrimSpace(v)
			}
		}
		return attrs
	}
	name := "default"
	if def != nil && def.DefaultAttr != "" {
		name = def.DefaultAttr
	}
	attrs[name] = body
	return attrs
}

func isBlank(b byte) bool { return b == ' ' || b == '\t' }

// excerpt returns about 12 bytes of s from i for finding details, cut at a
// rune boundary.
func excerpt(s string, i int) string {
	end := i + 12
	if end >= len(s) {
		return s[i:]
	}
	for end < len(s) && !utf8.RuneStart(s[end]) {
		end++
	}
	return s[i:end]
}

package usfm

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/FocuswithJustin/usfmcheck/core/grammar"
	"github.com/FocuswithJustin/usfmcheck/core/ledger"
	"github.com/FocuswithJustin/usfmcheck/core/lines"
)

// VerseKey identifies a unit of extracted verse text. Chapter is 0 and Verse
// empty when unknown; Verse may be "12", "12a" or "10-12".
type VerseKey struct {
	Book    string
	Chapter int
	Verse   string
}

func (k VerseKey) String() string {
	switch {
	case k.Chapter == 0:
		return k.Book
	case k.Verse == "":
		return fmt.Sprintf("%s %d", k.Book, k.Chapter)
	}
	return fmt.Sprintf("%s %d:%s", k.Book, k.Chapter, k.Verse)
}

// Note is an extracted footnote.
type Note struct {
	Index    int
	Tag      string
	Caller   string
	Text     string
	Quotes   []string
	Keywords []string
	Lines    lines.Span
}

// Figure is an extracted illustration.
type Figure struct {
	Index int
	Desc  string
	Attrs map[string]string
	Lines lines.Span
}

// Misc is text outside verses, such as headings and titles.
type Misc struct {
	Key   VerseKey
	Tag   string
	Text  string
	Lines lines.Span
}

// VerseExtract is the canonical text of one verse with its notes and
// figures.
type VerseExtract struct {
	Key       VerseKey
	Text      string
	Footnotes []Note
	Figures   []Figure
	Lines     lines.Span

	raw           strings.Builder
	discontiguous bool
}

// Discontiguous reports whether the verse text was interrupted by another
// verse.
func (v *VerseExtract) Discontiguous() bool { return v.discontiguous }

type slot struct {
	verse *VerseExtract
	misc  *Misc
	note  *Note
	fig   *Figure
	key   VerseKey
}

// Extraction holds the extracts of one or more files in document order.
type Extraction struct {
	verses map[VerseKey]*VerseExtract
	slots  []slot
}

func newExtraction() *Extraction {
	return &Extraction{verses: make(map[VerseKey]*VerseExtract)}
}

// Verse returns the extract for key.
func (x *Extraction) Verse(key VerseKey) (*VerseExtract, bool) {
	v, ok := x.verses[key]
	return v, ok
}

// Verses returns the verse extracts in document order.
func (x *Extraction) Verses() []*VerseExtract {
	var out []*VerseExtract
	for _, s := range x.slots {
		if s.verse != nil {
			out = append(out, s.verse)
		}
	}
	return out
}

// Len returns the number of verse extracts.
func (x *Extraction) Len() int { return len(x.verses) }

// Merge appends the extracts of other. Keys already present keep their
// first extract.
func (x *Extraction) Merge(other *Extraction) {
	if other == nil {
		return
	}
	for _, s := range other.slots {
		if s.verse != nil {
			if _, dup := x.verses[s.verse.Key]; dup {
				continue
			}
			x.verses[s.verse.Key] = s.verse
		}
		x.slots = append(x.slots, s)
	}
}

// Record is one line of the verse-extract JSONL output.
type Record struct {
	Book     string            `json:"bk,omitempty"`
	Chapter  int               `json:"c,omitempty"`
	Verse    string            `json:"v,omitempty"`
	Type     string            `json:"type"`
	Text     string            `json:"txt,omitempty"`
	Desc     string            `json:"desc,omitempty"`
	Tag      string            `json:"tag,omitempty"`
	Note     int               `json:"f#,omitempty"`
	Fig      int               `json:"fig#,omitempty"`
	Quotes   []string          `json:"quotes,omitempty"`
	Keywords []string          `json:"keywords,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Lines    string            `json:"l,omitempty"`
}

// Record types.
const (
	RecordVerse    = "v"
	RecordFootnote = "f"
	RecordFigure   = "fig"
	RecordOther    = "o"
)

func lineLabel(s lines.Span) string {
	if s.StartLine == 0 {
		return ""
	}
	return s.String()
}

// Records flattens the extraction: each verse is followed by its footnotes
// and figures.
func (x *Extraction) Records() []Record {
	var out []Record
	for _, s := range x.slots {
		switch {
		case s.verse != nil:
			v := s.verse
			out = append(out, Record{Book: v.Key.Book, Chapter: v.Key.Chapter, Verse: v.Key.Verse,
				Type: RecordVerse, Text: v.Text, Lines: lineLabel(v.Lines)})
			for _, n := range v.Footnotes {
				out = append(out, noteRecord(v.Key, n))
			}
			for _, f := range v.Figures {
				out = append(out, figureRecord(v.Key, f))
			}
		case s.note != nil:
			out = append(out, noteRecord(s.key, *s.note))
		case s.fig != nil:
			out = append(out, figureRecord(s.key, *s.fig))
		case s.misc != nil:
			m := s.misc
			out = append(out, Record{Book: m.Key.Book, Chapter: m.Key.Chapter, Type: RecordOther,
				Tag: m.Tag, Text: m.Text, Lines: lineLabel(m.Lines)})
		}
	}
	return out
}

func noteRecord(k VerseKey, n Note) Record {
	return Record{Book: k.Book, Chapter: k.Chapter, Verse: k.Verse, Type: RecordFootnote,
		Text: n.Text, Tag: n.Tag, Note: n.Index, Quotes: n.Quotes, Keywords: n.Keywords, Lines: lineLabel(n.Lines)}
}

func figureRecord(k VerseKey, f Figure) Record {
	return Record{Book: k.Book, Chapter: k.Chapter, Verse: k.Verse, Type: RecordFigure,
		Desc: f.Desc, Fig: f.Index, Attrs: f.Attrs, Lines: lineLabel(f.Lines)}
}

// WriteJSONL writes one JSON object per record.
func (x *Extraction) WriteJSONL(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, r := range x.Records() {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

type extractor struct {
	tree *Tree
	rec  recorder
	out  *Extraction

	book    string
	chapter int
	verse   string
	cur     *VerseExtract
	last    *VerseExtract
	line    int // last source line reached by the walk
}

// Extract collects verse text, footnotes, figures and other text from a
// finished tree. Discontiguous verses and footnote quotations missing from
// their verse are recorded to l.
func Extract(tree *Tree, l *ledger.Ledger) *Extraction {
	x := &extractor{tree: tree, rec: recorder{ledger: l}, out: newExtraction()}
	x.walk(tree.Roots)
	for _, v := range x.out.Verses() {
		v.Text = canonicalText(v.raw.String())
		x.checkQuotes(v)
	}
	return x.out
}

func (x *extractor) key() VerseKey {
	return VerseKey{Book: x.book, Chapter: x.chapter, Verse: x.verse}
}

func (x *extractor) walk(children []Child) {
	for _, c := range children {
		if c.Kind == TextChild {
			x.verseText(c.Text)
			continue
		}
		x.elem(x.tree.Elem(c.Elem))
	}
}

func (x *extractor) elem(e *Element) {
	if e.Orphan {
		return
	}
	if e.OpenSpan.EndLine > x.line {
		x.line = e.OpenSpan.EndLine
	}
	switch {
	case e.Tag == "id":
		x.book = strings.ToUpper(e.Arg())
		x.chapter, x.verse, x.cur = 0, "", nil
	case e.Tag == "c":
		x.chapter, _ = strconv.Atoi(markerNumber(e))
		x.verse, x.cur = "", nil
		x.walk(e.Children)
	case e.Tag == "v":
		x.verse = markerNumber(e)
		x.cur = x.verseFor(x.key(), e)
		x.walk(e.Children)
	case e.Is(grammar.CatNote):
		if !e.Is(grammar.CatXref) {
			x.footnote(e)
		}
	case e.Is(grammar.CatFigure):
		x.figure(e)
	case e.Is(grammar.CatMeta), e.Tag == "va", e.Tag == "vp", e.Tag == "ca", e.Tag == "cp":
	case e.Is(grammar.CatHeading), e.Is(grammar.CatTitle), e.Is(grammar.CatIntro),
		e.Is(grammar.CatOneLiner) && !e.Is(grammar.CatVerseText):
		x.misc(e)
	default:
		x.walk(e.Children)
	}
}

// markerNumber returns a chapter or verse argument, including digits glued
// to the marker.
func markerNumber(e *Element) string {
	if e.Marker.MissingSpace {
		return e.Marker.Glued + e.Arg()
	}
	return e.Arg()
}

func (x *extractor) verseFor(key VerseKey, e *Element) *VerseExtract {
	if key.Verse == "" {
		return nil
	}
	if v, ok := x.out.verses[key]; ok {
		return v
	}
	v := &VerseExtract{Key: key, Lines: lines.Span{StartLine: e.OpenSpan.StartLine, EndLine: e.OpenSpan.EndLine}}
	x.out.verses[key] = v
	x.out.slots = append(x.out.slots, slot{verse: v})
	return v
}

func (x *extractor) verseText(s string) {
	if x.cur == nil {
		return
	}
	if strings.TrimSpace(s) == "" {
		x.cur.raw.WriteString(s)
		return
	}
	if x.last != x.cur && strings.TrimSpace(x.cur.raw.String()) != "" {
		if !x.cur.discontiguous {
			x.cur.discontiguous = true
			x.rec.record(x.book, ledger.P(ledger.Warnings, "Verse text", "Discontiguous verse text"), x.cur.Key.String(), "")
		}
		x.cur.raw.WriteByte(' ')
	}
	x.cur.raw.WriteString(s)
	x.last = x.cur
	if x.line > x.cur.Lines.EndLine {
		x.cur.Lines.EndLine = x.line
	}
}

// textOf returns the collapsed text below e, skipping notes and the
// elements skip selects.
func (x *extractor) textOf(e *Element, skip func(*Element) bool) string {
	var sb strings.Builder
	var walk func(children []Child)
	walk = func(children []Child) {
		for _, c := range children {
			if c.Kind == TextChild {
				sb.WriteString(c.Text)
				continue
			}
			ce := x.tree.Elem(c.Elem)
			if ce.Orphan || (skip != nil && skip(ce)) {
				continue
			}
			walk(ce.Children)
		}
	}
	walk(e.Children)
	return canonicalText(sb.String())
}

func (x *extractor) footnote(e *Element) {
	n := Note{
		Tag:    e.Tag,
		Caller: e.Arg(),
		Lines:  lines.Span{StartLine: e.OpenSpan.StartLine, EndLine: e.CloseSpan.EndLine},
		Text: x.textOf(e, func(c *Element) bool {
			return c.Tag == "fr" || c.Is(grammar.CatNote)
		}),
	}
	x.tree.walk(e.Children, func(c *Element) bool {
		switch c.Tag {
		case "fq", "fqa":
			if q := x.textOf(c, nil); q != "" {
				n.Quotes = append(n.Quotes, q)
			}
		case "fk":
			if k := x.textOf(c, nil); k != "" {
				n.Keywords = append(n.Keywords, k)
			}
		}
		return true
	})

	if x.cur != nil {
		n.Index = len(x.cur.Footnotes) + 1
		x.cur.Footnotes = append(x.cur.Footnotes, n)
		return
	}
	n.Index = 1
	x.out.slots = append(x.out.slots, slot{note: &n, key: x.key()})
}

func (x *extractor) figure(e *Element) {
	f := Figure{
		Desc:  x.textOf(e, nil),
		Attrs: e.Attrs,
		Lines: lines.Span{StartLine: e.OpenSpan.StartLine, EndLine: e.CloseSpan.EndLine},
	}
	if x.cur != nil {
		f.Index = len(x.cur.Figures) + 1
		x.cur.Figures = append(x.cur.Figures, f)
		return
	}
	f.Index = 1
	x.out.slots = append(x.out.slots, slot{fig: &f, key: x.key()})
}

func (x *extractor) misc(e *Element) {
	text := x.textOf(e, func(c *Element) bool { return c.Is(grammar.CatNote) })
	if text != "" {
		x.out.slots = append(x.out.slots, slot{misc: &Misc{
			Key:   VerseKey{Book: x.book, Chapter: x.chapter},
			Tag:   e.Marker.Name,
			Text:  text,
			Lines: lines.Span{StartLine: e.OpenSpan.StartLine, EndLine: e.OpenSpan.EndLine},
		}})
	}
	x.tree.walk(e.Children, func(c *Element) bool {
		if c.Is(grammar.CatNote) && !c.Is(grammar.CatXref) {
			x.footnote(c)
			return false
		}
		return true
	})
}

func (x *extractor) checkQuotes(v *VerseExtract) {
	if v.Text == "" {
		return
	}
	for _, n := range v.Footnotes {
		for _, q := range n.Quotes {
			if !QuoteInText(q, v.Text) {
				x.rec.record(v.Key.Book, ledger.P(ledger.Warnings, "Footnotes", "Footnote quotation does not appear in verse"),
					v.Key.String(), q)
			}
		}
	}
}

// canonicalText collapses whitespace and applies NFC normalization.
func canonicalText(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

// QuoteInText reports whether quote occurs in text, ignoring case and
// punctuation. An ellipsis in the quote matches any gap, but the parts must
// appear in order.
func QuoteInText(quote, text string) bool {
	hay := foldForMatch(text)
	quote = strings.ReplaceAll(quote, "...", "…")
	pos := 0
	for _, part := range strings.Split(quote, "…") {
		p := foldForMatch(part)
		if p == "" {
			continue
		}
		i := strings.Index(hay[pos:], p)
		if i < 0 {
			return false
		}
		pos += i + len(p)
	}
	return true
}

func foldForMatch(s string) string {
	s = norm.NFC.String(strings.ToLower(s))
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.Is(unicode.Mn, r)
	})
	return strings.Join(fields, " ")
}

// MergeExtractions combines per-file extractions in the given order.
func MergeExtractions(xs ...*Extraction) *Extraction {
	out := newExtraction()
	for _, x := range xs {
		out.Merge(x)
	}
	return out
}

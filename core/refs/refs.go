// Package refs finds scripture references in footnotes and cross-references
// of a parsed USFM tree and checks them against their verse context.
package refs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/usfmcheck/core/errors"
	"github.com/FocuswithJustin/usfmcheck/core/grammar"
	"github.com/FocuswithJustin/usfmcheck/core/ledger"
	"github.com/FocuswithJustin/usfmcheck/core/usfm"
)

// Reference is a resolved chapter:verse reference. Book is a USFM book id.
type Reference struct {
	Book     string
	Chapter  int
	Verse    int
	VerseEnd int
	Text     string // as written
}

func (r Reference) String() string {
	s := fmt.Sprintf("%s %d:%d", r.Book, r.Chapter, r.Verse)
	if r.VerseEnd > r.Verse {
		s += "-" + strconv.Itoa(r.VerseEnd)
	}
	return s
}

// Covers reports whether the reference includes chapter:verse of book.
func (r Reference) Covers(book string, chapter, verse int) bool {
	if r.Book != book || r.Chapter != chapter {
		return false
	}
	end := r.VerseEnd
	if end < r.Verse {
		end = r.Verse
	}
	return verse >= r.Verse && verse <= end
}

//nolint:govet // participle grammar tags are not standard struct tags
type refGrammar struct {
	Prefix string        `parser:"@Int?"`
	Words  []string      `parser:"@Ident+"`
	Loc    *chapterVerse `parser:"@@"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type chapterVerse struct {
	Chapter int    `parser:"@Int"`
	Sep     string `parser:"@(\":\" | \".\")"`
	Verse   int    `parser:"@Int"`
	Range   *int   `parser:"( \"-\" @Int )?"`
}

var refLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `\p{L}+\.?`},
	{Name: "Punct", Pattern: `[:.\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var (
	refParser = participle.MustBuild[refGrammar](
		participle.Lexer(refLexer),
		participle.Elide("Whitespace"),
	)
	originParser = participle.MustBuild[chapterVerse](
		participle.Lexer(refLexer),
		participle.Elide("Whitespace"),
	)
)

// candidate finds text shaped like "Gen 1:1", "1 John 3:16-18" or
// "Song of Songs 2.4".
var (
	candidate = regexp.MustCompile(`(?:\b[1-4] ?)?\p{L}+\.?(?: \p{L}+\.?){0,2} \d+[:.]\d+(?:[-–]\d+)?`)
	origin    = regexp.MustCompile(`\d+[:.]\d+(?:[-–]\d+)?`)
)

// Keywords maps book names, as used in a project's language, to book ids.
type Keywords struct {
	Books map[string]string
}

// DefaultKeywords returns the English book names and the book ids
// themselves.
func DefaultKeywords() Keywords {
	k := Keywords{Books: make(map[string]string)}
	for id, name := range usfm.BookNames {
		k.Add(name, id)
		k.Add(id, id)
	}
	return k
}

// Add registers name as a spelling of book id.
func (k Keywords) Add(name, id string) {
	k.Books[bookKey(name)] = strings.ToUpper(id)
}

// Book resolves a written book name.
func (k Keywords) Book(name string) (string, bool) {
	id, ok := k.Books[bookKey(name)]
	return id, ok
}

func bookKey(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '.' {
			return -1
		}
		return unicode.ToLower(r)
	}, name)
}

// Parse parses one reference. Leading words that are not part of a book
// name are skipped, so "see John 3:16" resolves to JHN 3:16.
func (k Keywords) Parse(s string) (Reference, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "–", "-")
	parsed, err := refParser.ParseString("", s)
	if err != nil {
		return Reference{}, &errors.FormatError{Kind: errors.KindReference, Value: s, Err: err}
	}
	for i := range parsed.Words {
		name := strings.Join(parsed.Words[i:], " ")
		if i == 0 && parsed.Prefix != "" {
			name = parsed.Prefix + " " + name
		}
		if id, ok := k.Book(name); ok {
			loc := parsed.Loc
			ref := Reference{Book: id, Chapter: loc.Chapter, Verse: loc.Verse}
			ref.Text = fmt.Sprintf("%s %d%s%d", name, loc.Chapter, loc.Sep, loc.Verse)
			if loc.Range != nil {
				ref.VerseEnd = *loc.Range
				ref.Text += "-" + strconv.Itoa(ref.VerseEnd)
			}
			return ref, nil
		}
	}
	return Reference{}, errors.NewFormat(errors.KindReference, s)
}

// Find returns every resolvable reference in text.
func (k Keywords) Find(text string) []Reference {
	var out []Reference
	for _, m := range candidate.FindAllString(text, -1) {
		if ref, err := k.Parse(m); err == nil {
			out = append(out, ref)
		}
	}
	return out
}

// ParseOrigin parses a chapter:verse origin such as "3:16" or "3.16-18".
func ParseOrigin(s string) (chapter, verse, verseEnd int, err error) {
	m := origin.FindString(s)
	if m == "" {
		return 0, 0, 0, errors.NewFormat(errors.KindReference, s)
	}
	cv, err := originParser.ParseString("", strings.ReplaceAll(m, "–", "-"))
	if err != nil {
		return 0, 0, 0, &errors.FormatError{Kind: errors.KindReference, Value: s, Err: err}
	}
	verseEnd = cv.Verse
	if cv.Range != nil {
		verseEnd = *cv.Range
	}
	return cv.Chapter, cv.Verse, verseEnd, nil
}

const pathCrossRefs = "Cross-references"

// Analyzer checks the references of one tree.
type Analyzer struct {
	keywords Keywords
	ledger   *ledger.Ledger
}

// NewAnalyzer returns an analyzer that records findings to l.
func NewAnalyzer(k Keywords, l *ledger.Ledger) *Analyzer {
	return &Analyzer{keywords: k, ledger: l}
}

// Analyze walks the tree. Footnote text is searched for untagged references,
// \xo and \fr origins are compared with the verse they occur in, and \xt
// targets pointing at their own verse are noted.
func (a *Analyzer) Analyze(tree *usfm.Tree) {
	tree.Walk(func(e *usfm.Element) bool {
		if e.Orphan || e.Def == nil {
			return false
		}
		switch {
		case e.Tag == "xo" || e.Tag == "fr":
			a.origin(tree, e)
		case e.Tag == "xt":
			a.target(tree, e)
		case e.Is(grammar.CatNote) && !e.Is(grammar.CatXref):
			a.untagged(tree, e)
		}
		return true
	})
}

// here parses the chapter and verse part of an element's location.
func here(e *usfm.Element) (chapter, verse, verseEnd int, ok bool) {
	_, rest, found := strings.Cut(e.Ref, " ")
	if !found || !strings.Contains(rest, ":") {
		return 0, 0, 0, false
	}
	c, v, vEnd, err := ParseOrigin(rest)
	if err != nil {
		return 0, 0, 0, false
	}
	return c, v, vEnd, true
}

func (a *Analyzer) origin(tree *usfm.Tree, e *usfm.Element) {
	text := strings.TrimSpace(tree.Text(e.ID))
	oc, ov, _, err := ParseOrigin(text)
	if err != nil {
		return
	}
	c, v, vEnd, ok := here(e)
	if !ok {
		return
	}
	if oc == c && ov >= v && ov <= vEnd {
		return
	}
	leaf := "Cross-reference origin does not match verse"
	top := pathCrossRefs
	if e.Tag == "fr" {
		leaf, top = "Footnote origin does not match verse", "Footnotes"
	}
	a.ledger.Record(ledger.P(ledger.Warnings, top, leaf), e.Ref,
		fmt.Sprintf(`\%s %s`, e.Tag, text))
}

func (a *Analyzer) target(tree *usfm.Tree, e *usfm.Element) {
	c, v, _, ok := here(e)
	if !ok {
		return
	}
	for _, ref := range a.keywords.Find(tree.Text(e.ID)) {
		if ref.Covers(e.Book, c, v) {
			a.ledger.Record(ledger.P(ledger.Info, pathCrossRefs, "Self-reference"), e.Ref, ref.Text)
		}
	}
}

func (a *Analyzer) untagged(tree *usfm.Tree, e *usfm.Element) {
	text := plainText(tree, e.Children)
	for _, ref := range a.keywords.Find(text) {
		a.ledger.Record(ledger.P(ledger.Alerts, pathCrossRefs, "Possible missing reference tag"), e.Ref,
			fmt.Sprintf(`%s → \xt %s\xt*`, ref.Text, ref.Text))
	}
}

// plainText joins the text below children, skipping origins and tagged
// targets.
func plainText(tree *usfm.Tree, children []usfm.Child) string {
	var sb strings.Builder
	for _, c := range children {
		if c.Kind == usfm.TextChild {
			sb.WriteString(c.Text)
			continue
		}
		ce := tree.Elem(c.Elem)
		switch ce.Tag {
		case "fr", "xo", "xt", "rq":
			sb.WriteByte(' ')
			continue
		}
		sb.WriteString(plainText(tree, ce.Children))
	}
	return sb.String()
}

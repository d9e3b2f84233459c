package usfm

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/FocuswithJustin/usfmcheck/core/errors"
	"github.com/FocuswithJustin/usfmcheck/core/grammar"
	"github.com/FocuswithJustin/usfmcheck/core/ledger"
	"github.com/FocuswithJustin/usfmcheck/core/lines"
)

// Repair categories.
const (
	RepairAddPlus           = "add-plus"
	RepairFqStar            = "fq-star"
	RepairFqaStar           = "fqa-star"
	RepairPostChapterNumber = "post-chapter-number"
	RepairChapterVerseTag   = "chapter-and-verse-tag"
)

// AllRepairs lists every repair category.
var AllRepairs = []string{
	RepairAddPlus,
	RepairFqStar,
	RepairFqaStar,
	RepairPostChapterNumber,
	RepairChapterVerseTag,
}

// RepairTop is the top-level category of the repair ledger.
const RepairTop = "Repairs"

type lineRule struct {
	category string
	leaf     string
	re       *regexp.Regexp
	repl     string
}

var lineRules = []lineRule{
	{RepairChapterVerseTag, "Replaced slash before tag", regexp.MustCompile(`(^|\s)/([cv])([ \t]+\d)`), `${1}\${2}${3}`},
	{RepairChapterVerseTag, "Removed spurious characters in tag", regexp.MustCompile(`\\[^A-Za-z0-9\s\\+*|]{1,2}([cv])([ \t]+\d)`), `\${1}${2}`},
	{RepairChapterVerseTag, "Added space after tag", regexp.MustCompile(`\\([cv])(\d)`), `\${1} ${2}`},
	{RepairChapterVerseTag, "Removed extra space after tag", regexp.MustCompile(`\\([cv])(?:[ \t]{2,}|\t)(\d)`), `\${1} ${2}`},
	{RepairPostChapterNumber, "Removed junk after chapter number", regexp.MustCompile(`^(\\c[ \t]+\d+)[ \t]*[^\p{L}\p{N}\\\s][^\p{L}\\]{0,3}?[ \t]*$`), `${1}`},
}

var (
	embeddedMarker = regexp.MustCompile(`\\[cv][ \t\d]`)
	danglingTag    = regexp.MustCompile(`\\[cv][ \t]*$`)
	leadingNumber  = regexp.MustCompile(`^[ \t]*\d`)
	locatorMarker  = regexp.MustCompile(`\\(id|c|v)[ \t]+([^\s\\]+)`)
)

// Repairer applies the enabled repair categories. Every repair is recorded
// to its own ledger under RepairTop.
type Repairer struct {
	reg     *grammar.Registry
	ledger  *ledger.Ledger
	enabled map[string]bool
}

// NewRepairer enables the named categories. Unknown names are a
// ValidationError.
func NewRepairer(reg *grammar.Registry, l *ledger.Ledger, categories ...string) (*Repairer, error) {
	r := &Repairer{reg: reg, ledger: l, enabled: make(map[string]bool)}
	known := make(map[string]bool, len(AllRepairs))
	for _, c := range AllRepairs {
		known[c] = true
	}
	for _, c := range categories {
		if !known[c] {
			return nil, errors.NewValidation("repairs", "unknown repair category "+c)
		}
		r.enabled[c] = true
	}
	return r, nil
}

// Enabled reports whether category is active.
func (r *Repairer) Enabled(category string) bool { return r.enabled[category] }

// Any reports whether any category is active.
func (r *Repairer) Any() bool { return len(r.enabled) > 0 }

func (r *Repairer) record(leaf, loc, before, after string) {
	r.ledger.Record(ledger.P(RepairTop, leaf), loc, before+" → "+after)
}

// lineLocator follows \id, \c and \v markers during the line pass, which runs
// before there is a tree.
type lineLocator struct {
	book, chapter, verse string
	line                 int
}

func (l *lineLocator) advance(text string) {
	for _, m := range locatorMarker.FindAllStringSubmatch(text, -1) {
		switch m[1] {
		case "id":
			l.book, l.chapter, l.verse = strings.ToUpper(m[2]), "", ""
		case "c":
			l.chapter, l.verse = m[2], ""
		case "v":
			l.verse = m[2]
		}
	}
}

func (l *lineLocator) String() string {
	switch {
	case l.book == "":
		return lineLocation(l.line)
	case l.chapter == "":
		return l.book
	case l.verse == "":
		return l.book + " " + l.chapter
	}
	return l.book + " " + l.chapter + ":" + l.verse
}

// RepairLines runs the marker-level repairs over the line model before
// tokenizing. Lines are first split at embedded chapter and verse markers so
// that each repair is located at its own verse. It returns the number of
// repairs made.
func (r *Repairer) RepairLines(doc *lines.Document) int {
	if !r.Enabled(RepairChapterVerseTag) && !r.Enabled(RepairPostChapterNumber) {
		return 0
	}
	splitAtMarkers(doc)

	n := 0
	loc := &lineLocator{}
	for f := doc.First(); f != nil; f = f.Next {
		loc.line = f.Span.StartLine
		if r.Enabled(RepairChapterVerseTag) && f.EOL != "" && f.Next != nil &&
			danglingTag.MatchString(f.Current()) && leadingNumber.MatchString(f.Next.Current()) {
			before := strings.TrimSpace(f.Current()) + " ⏎ " + strings.TrimSpace(f.Next.Current())
			doc.SetRepaired(f, strings.TrimRight(f.Current(), " \t"))
			next := f.Next
			if m, err := doc.Merge(f, next, " "); err == nil {
				f = m
				loc.advance(f.Current())
				r.record("Joined verse number to its tag", loc.String(), before, f.Current())
				n++
			}
		}

		text := f.Current()
		lineEnd := f.EOL != "" || f.Next == nil
		var applied []lineFix
		for _, rule := range lineRules {
			if !r.Enabled(rule.category) || (rule.category == RepairPostChapterNumber && !lineEnd) {
				continue
			}
			var fixes []lineFix
			text, fixes = rule.apply(text)
			applied = append(applied, fixes...)
		}
		if text != f.Current() {
			doc.SetRepaired(f, text)
		}
		loc.advance(text)
		for _, fix := range applied {
			r.record(fix.leaf, loc.String(), fix.before, fix.after)
			n++
		}
	}
	return n
}

type lineFix struct {
	leaf, before, after string
}

func (rule lineRule) apply(text string) (string, []lineFix) {
	matches := rule.re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}
	var sb strings.Builder
	var fixes []lineFix
	last := 0
	for _, m := range matches {
		before := text[m[0]:m[1]]
		after := string(rule.re.ExpandString(nil, rule.repl, text, m))
		sb.WriteString(text[last:m[0]])
		sb.WriteString(after)
		last = m[1]
		fixes = append(fixes, lineFix{leaf: rule.leaf, before: strings.TrimSpace(before), after: strings.TrimSpace(after)})
	}
	sb.WriteString(text[last:])
	return sb.String(), fixes
}

// splitAtMarkers splits every unrepaired fragment before each chapter or
// verse marker that is not at its start.
func splitAtMarkers(doc *lines.Document) {
	for f := doc.First(); f != nil; {
		next := f.Next
		var offsets []int
		for _, m := range embeddedMarker.FindAllStringIndex(f.Current(), -1) {
			if m[0] > 0 {
				offsets = append(offsets, m[0])
			}
		}
		if len(offsets) > 0 {
			doc.Split(f, offsets...)
		}
		f = next
	}
}

type edit struct {
	frag       *lines.Fragment
	start, end int
	text       string
}

// RepairTree runs the nesting-level repairs. Fixes are written back to the
// fragments of doc, which must be the document tree was parsed from; the
// caller re-parses afterwards. It returns the number of repairs made.
func (r *Repairer) RepairTree(tree *Tree, doc *lines.Document) int {
	if !r.Enabled(RepairAddPlus) && !r.Enabled(RepairFqStar) && !r.Enabled(RepairFqaStar) {
		return 0
	}
	checker := NewChecker(tree, r.reg, nil)
	var edits []edit
	n := 0

	tree.Walk(func(e *Element) bool {
		if r.Enabled(RepairAddPlus) {
			if _, ok := checker.NeedsPlus(e.ID); ok {
				edits = append(edits, edit{frag: e.OpenAt.Frag, start: e.OpenAt.Offset + 1, end: e.OpenAt.Offset + 1, text: "+"})
				if e.Close == ClosedExplicit && e.CloseMarker != "" {
					edits = append(edits, edit{frag: e.CloseAt.Frag, start: e.CloseAt.Offset + 1, end: e.CloseAt.Offset + 1, text: "+"})
				}
				r.record("Added +", e.Ref, e.Marker.Raw, `\+`+strings.TrimPrefix(e.Marker.Raw, `\`))
				n++
			}
		}
		if (e.Tag == "fq" && r.Enabled(RepairFqStar)) || (e.Tag == "fqa" && r.Enabled(RepairFqaStar)) {
			if ed, before, after, ok := r.deprecatedClose(tree, e); ok {
				edits = append(edits, ed)
				r.record("Changed deprecated close-tag", e.Ref, before, after)
				n++
			}
		}
		return true
	})

	applyEdits(doc, edits)
	return n
}

// deprecatedClose turns "\fq quote\fq* text" into "\fq quote\ft text".
func (r *Repairer) deprecatedClose(tree *Tree, e *Element) (edit, string, string, bool) {
	if e.Close != ClosedExplicit || e.CloseMarker == "" || e.Marker.Plus {
		return edit{}, "", "", false
	}
	next, ok := tree.NextSibling(e.ID)
	if !ok || next.Kind != TextChild || strings.TrimSpace(next.Text) == "" {
		return edit{}, "", "", false
	}
	repl := `\ft`
	if !isBlank(next.Text[0]) {
		repl += " "
	}
	head := e.OpenMarker + tree.Text(e.ID)
	tail := strings.TrimRight(next.Text, "\r\n")
	before := fmt.Sprintf("%s%s%s", head, e.CloseMarker, tail)
	after := fmt.Sprintf("%s%s%s", head, repl, tail)
	ed := edit{
		frag:  e.CloseAt.Frag,
		start: e.CloseAt.Offset,
		end:   e.CloseAt.Offset + len(e.CloseMarker),
		text:  repl,
	}
	return ed, before, after, true
}

func applyEdits(doc *lines.Document, edits []edit) {
	byFrag := make(map[*lines.Fragment][]edit)
	var order []*lines.Fragment
	for _, ed := range edits {
		if ed.frag == nil {
			continue
		}
		if _, ok := byFrag[ed.frag]; !ok {
			order = append(order, ed.frag)
		}
		byFrag[ed.frag] = append(byFrag[ed.frag], ed)
	}
	for _, f := range order {
		eds := byFrag[f]
		sort.SliceStable(eds, func(i, j int) bool { return eds[i].start > eds[j].start })
		text := f.Current()
		for _, ed := range eds {
			if ed.start < 0 || ed.end > len(text) || ed.start > ed.end {
				continue
			}
			text = text[:ed.start] + ed.text + text[ed.end:]
		}
		doc.SetRepaired(f, text)
	}
}

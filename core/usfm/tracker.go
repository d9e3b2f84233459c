package usfm

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/usfmcheck/core/errors"
	"github.com/FocuswithJustin/usfmcheck/core/ledger"
)

var (
	bookCodePattern = regexp.MustCompile(`^[A-Z0-9]{3}$`)
	versePattern    = regexp.MustCompile(`^(\d+)([a-z]?)(?:-(\d+)([a-z]?))?$`)
	chapterPattern  = regexp.MustCompile(`^\d+$`)
)

const pathVerseNumbers = "Verse numbers"

// VerseSpec is a parsed verse marker argument.
type VerseSpec struct {
	Raw    string // as written, e.g. "12a" or "10-12"
	From   int
	To     int // equals From for a single verse
	Suffix string
}

// Range reports whether the spec names more than one verse.
func (v VerseSpec) Range() bool { return v.To != v.From }

// ParseVerseSpec parses "12", "12a" or "10-12".
func ParseVerseSpec(s string) (VerseSpec, error) {
	m := versePattern.FindStringSubmatch(s)
	if m == nil {
		return VerseSpec{}, errors.NewFormat(errors.KindVerseNumber, s)
	}
	from, err := strconv.Atoi(m[1])
	if err != nil {
		return VerseSpec{}, &errors.FormatError{Kind: errors.KindVerseNumber, Value: s, Err: err}
	}
	spec := VerseSpec{Raw: s, From: from, To: from, Suffix: m[2]}
	if m[3] != "" {
		to, err := strconv.Atoi(m[3])
		if err != nil {
			return VerseSpec{}, &errors.FormatError{Kind: errors.KindVerseNumber, Value: s, Err: err}
		}
		spec.To = to
		spec.Suffix = ""
	}
	return spec, nil
}

// Tracker follows the current book, chapter and verse while a file is
// tokenized and checks chapter and verse numbering as it goes.
type Tracker struct {
	rec recorder

	book    string
	chapter int
	verse   string

	chapters    map[int]bool
	lastChapter int

	verses    map[int]bool
	suffixed  map[string]bool
	lastVerse int

	// per book/chapter verse sets, kept for callers after the parse
	seen map[string]map[int][]int
}

// NewTracker returns a tracker that records numbering findings to l.
func NewTracker(l *ledger.Ledger) *Tracker {
	return &Tracker{
		rec:  recorder{ledger: l},
		seen: make(map[string]map[int][]int),
	}
}

// Book returns the current book id.
func (t *Tracker) Book() string { return t.book }

// Chapter returns the current chapter, 0 before the first chapter marker.
func (t *Tracker) Chapter() int { return t.chapter }

// Verse returns the current verse spec as written, "" before the first verse
// of a chapter.
func (t *Tracker) Verse() string { return t.verse }

// Location renders "BOOK C:V", "BOOK C" or "BOOK", whatever is known.
func (t *Tracker) Location() string {
	switch {
	case t.book == "":
		return ""
	case t.chapter == 0:
		return t.book
	case t.verse == "":
		return fmt.Sprintf("%s %d", t.book, t.chapter)
	}
	return fmt.Sprintf("%s %d:%s", t.book, t.chapter, t.verse)
}

func (t *Tracker) record(path ledger.Path, detail string) {
	t.rec.record(t.book, path, t.Location(), detail)
}

// StartBook switches to a new book. The id is upper-cased; ids that are not
// three letters or digits are a FormatError.
func (t *Tracker) StartBook(id string) error {
	code := strings.ToUpper(strings.TrimSpace(id))
	if !bookCodePattern.MatchString(code) {
		return errors.NewFormat(errors.KindBookCode, id)
	}
	t.CloseChapter()
	t.book = code
	t.chapter = 0
	t.verse = ""
	t.lastChapter = 0
	t.chapters = make(map[int]bool)
	t.verses = nil
	if _, ok := t.seen[code]; !ok {
		t.seen[code] = make(map[int][]int)
	}
	return nil
}

// StartChapter moves to chapter arg after checking the verses of the chapter
// being left.
func (t *Tracker) StartChapter(arg string) error {
	arg = strings.TrimSpace(arg)
	if !chapterPattern.MatchString(arg) {
		return errors.NewFormat(errors.KindChapterNumber, arg)
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return &errors.FormatError{Kind: errors.KindChapterNumber, Value: arg, Err: err}
	}
	t.CloseChapter()
	if t.chapters == nil {
		t.chapters = make(map[int]bool)
	}

	prev := t.lastChapter
	t.chapter = n
	t.verse = ""
	t.verses = make(map[int]bool)
	t.suffixed = make(map[string]bool)
	t.lastVerse = 0

	switch {
	case t.chapters[n]:
		t.record(ledger.P(ledger.Errors, "Chapter numbers", "Duplicate chapter number"), arg)
	case n < prev:
		t.record(ledger.P(ledger.Errors, "Chapter numbers", "Wrong order of chapter numbers"),
			fmt.Sprintf("%d after %d", n, prev))
	case n > prev+1:
		t.record(ledger.P(ledger.Errors, "Chapter numbers", "Missing chapter"), gapDetail("chapter", prev+1, n-1))
	}
	t.chapters[n] = true
	if n > t.lastChapter {
		t.lastChapter = n
	}
	return nil
}

// StartVerse registers a verse marker argument.
func (t *Tracker) StartVerse(arg string) (VerseSpec, error) {
	spec, err := ParseVerseSpec(strings.TrimSpace(arg))
	if err != nil {
		return spec, err
	}
	if t.verses == nil {
		t.verses = make(map[int]bool)
		t.suffixed = make(map[string]bool)
	}
	t.verse = spec.Raw

	switch {
	case spec.From > spec.To:
		t.record(ledger.P(ledger.Errors, pathVerseNumbers, "Wrong verse range order"), spec.Raw)
		t.registerRange(spec.Raw, spec.From, spec.From)
		return spec, nil
	case strings.Contains(spec.Raw, "-") && spec.From == spec.To && spec.Suffix == "":
		t.record(ledger.P(ledger.Warnings, pathVerseNumbers, "Overly complicated verse range"), spec.Raw)
	}

	if spec.Suffix != "" {
		key := strconv.Itoa(spec.From) + spec.Suffix
		if t.suffixed[key] {
			t.record(ledger.P(ledger.Errors, pathVerseNumbers, "Duplicate verse number"), key)
			return spec, nil
		}
		t.suffixed[key] = true
		if t.verses[spec.From] {
			// 12b after 12a continues the same verse
			return spec, nil
		}
	}
	t.registerRange(spec.Raw, spec.From, spec.To)
	return spec, nil
}

// registerRange registers from..to for the verse marker raw. Ordering is
// reported once per marker.
func (t *Tracker) registerRange(raw string, from, to int) {
	last := t.lastVerse
	reported := false
	for n := from; n <= to; n++ {
		if t.register(n) && !reported {
			t.record(ledger.P(ledger.Errors, pathVerseNumbers, "Unexpected order of verse numbers"),
				fmt.Sprintf("%s after %d", raw, last))
			reported = true
		}
	}
}

// register marks verse n as seen and reports whether it came out of order.
func (t *Tracker) register(n int) bool {
	if t.verses[n] {
		t.record(ledger.P(ledger.Errors, pathVerseNumbers, "Duplicate verse number"), strconv.Itoa(n))
		return false
	}
	t.verses[n] = true
	if n < t.lastVerse {
		return true
	}
	t.lastVerse = n
	return false
}

// CloseChapter checks the chapter being left for missing verses. Gaps are
// reported as ranges; verses on the known omission list are Info.
func (t *Tracker) CloseChapter() {
	if t.book == "" || t.chapter == 0 || len(t.verses) == 0 {
		return
	}
	nums := make([]int, 0, len(t.verses))
	for n := range t.verses {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	t.seen[t.book][t.chapter] = nums

	loc := fmt.Sprintf("%s %d", t.book, t.chapter)
	present := t.verses
	start := 0
	flush := func(end int) {
		if start == 0 {
			return
		}
		t.rec.record(t.book, ledger.P(ledger.Errors, pathVerseNumbers, "Chapters with missing verses"),
			loc, gapDetail("verse", start, end))
		start = 0
	}
	for n := 1; n <= nums[len(nums)-1]; n++ {
		switch {
		case present[n]:
			flush(n - 1)
		case IsKnownOmission(t.book, t.chapter, n):
			flush(n - 1)
			t.rec.record(t.book, ledger.P(ledger.Info, pathVerseNumbers, "Chapters with often omitted verses"),
				loc, gapDetail("verse", n, n))
		case start == 0:
			start = n
		}
	}
	t.verses = nil
}

// Finish closes the last chapter at end of file.
func (t *Tracker) Finish() {
	t.CloseChapter()
}

// Verses returns the verse numbers recorded for a closed chapter.
func (t *Tracker) Verses(book string, chapter int) []int {
	return t.seen[book][chapter]
}

// Books returns the books seen, in canonical order.
func (t *Tracker) Books() []string {
	out := make([]string, 0, len(t.seen))
	for b := range t.seen {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return LocationLess(out[i], out[j]) })
	return out
}

func gapDetail(kind string, from, to int) string {
	if from == to {
		return fmt.Sprintf("Missing %s: %d", kind, from)
	}
	return fmt.Sprintf("Missing %ss: %d-%d", kind, from, to)
}

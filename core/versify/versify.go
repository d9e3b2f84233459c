// Package versify maps extracted verse keys onto a reference versification
// and writes the parallel plain-text corpus consumed by alignment tools.
package versify

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/usfmcheck/core/errors"
	"github.com/FocuswithJustin/usfmcheck/core/usfm"
)

// VerseID is a verse of the reference versification.
type VerseID struct {
	Book    string
	Chapter int
	Verse   int
}

func (v VerseID) String() string {
	return fmt.Sprintf("%s %d:%d", v.Book, v.Chapter, v.Verse)
}

// MappingType classifies a table line.
type MappingType string

// Mapping types.
const (
	MappingExact MappingType = "exact"
	MappingMerge MappingType = "merge" // n source verses into one
	MappingSplit MappingType = "split" // one source verse into n
)

// Mapper converts between the project's verse keys and reference verse ids.
type Mapper interface {
	Map(key usfm.VerseKey) []VerseID
	Back(id VerseID) []usfm.VerseKey
}

// IdentityMapper maps every verse to the verse with the same numbers.
type IdentityMapper struct{}

// Map expands verse ranges and drops segment letters.
func (IdentityMapper) Map(key usfm.VerseKey) []VerseID {
	return expand(key)
}

// Back returns the key with the same numbers.
func (IdentityMapper) Back(id VerseID) []usfm.VerseKey {
	return []usfm.VerseKey{toKey(id)}
}

func expand(key usfm.VerseKey) []VerseID {
	if key.Book == "" || key.Chapter == 0 || key.Verse == "" {
		return nil
	}
	spec, err := usfm.ParseVerseSpec(key.Verse)
	if err != nil || spec.To < spec.From {
		return nil
	}
	ids := make([]VerseID, 0, spec.To-spec.From+1)
	for v := spec.From; v <= spec.To; v++ {
		ids = append(ids, VerseID{Book: key.Book, Chapter: key.Chapter, Verse: v})
	}
	return ids
}

func toKey(id VerseID) usfm.VerseKey {
	return usfm.VerseKey{Book: id.Book, Chapter: id.Chapter, Verse: strconv.Itoa(id.Verse)}
}

// Mapping is one parsed table line.
type Mapping struct {
	From []VerseID
	To   []VerseID
	Type MappingType
	Line int
}

// MappingTable maps project verses to reference verses. Verses the table
// does not mention map to themselves.
type MappingTable struct {
	Name     string
	Mappings []Mapping

	forward map[VerseID][]VerseID
	back    map[VerseID][]VerseID
}

//nolint:govet // participle grammar tags are not standard struct tags
type mappingLine struct {
	From *vrefRange `parser:"@@ \"=\""`
	To   *vrefRange `parser:"@@"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type vrefRange struct {
	Book    string `parser:"@Book"`
	Chapter int    `parser:"@Int \":\""`
	Verse   int    `parser:"@Int"`
	End     *int   `parser:"( \"-\" @Int )?"`
}

var mappingLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Book", Pattern: `[1-4][A-Z]{2}|[A-Z][A-Z0-9]{2}`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Punct", Pattern: `[:=\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var mappingParser = participle.MustBuild[mappingLine](
	participle.Lexer(mappingLexer),
	participle.Elide("Whitespace"),
)

func (r *vrefRange) ids() []VerseID {
	end := r.Verse
	if r.End != nil {
		end = *r.End
	}
	var out []VerseID
	for v := r.Verse; v <= end; v++ {
		out = append(out, VerseID{Book: r.Book, Chapter: r.Chapter, Verse: v})
	}
	return out
}

// ParseMappingLine parses "GEN 32:1 = GEN 31:55", "GEN 32:1-2 = GEN 31:55"
// or "GEN 32:1 = GEN 31:55-56". Equal-length ranges map verse by verse.
func ParseMappingLine(s string) (Mapping, error) {
	parsed, err := mappingParser.ParseString("", s)
	if err != nil {
		return Mapping{}, &errors.FormatError{Kind: errors.KindMapping, Value: s, Err: err}
	}
	from, to := parsed.From.ids(), parsed.To.ids()
	m := Mapping{From: from, To: to}
	switch {
	case len(from) == 0 || len(to) == 0:
		return Mapping{}, errors.NewFormat(errors.KindMapping, s)
	case len(from) == len(to):
		m.Type = MappingExact
	case len(to) == 1:
		m.Type = MappingMerge
	case len(from) == 1:
		m.Type = MappingSplit
	default:
		return Mapping{}, errors.NewFormat(errors.KindMapping, s)
	}
	return m, nil
}

// ParseMappingTable reads one mapping per line. Blank lines and lines
// starting with "#" are ignored.
func ParseMappingTable(r io.Reader, name string) (*MappingTable, error) {
	t := NewMappingTable(name)
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m, err := ParseMappingLine(line)
		if err != nil {
			return nil, errors.NewParse("versification", name, fmt.Sprintf("line %d: %v", n, err))
		}
		m.Line = n
		t.Add(m)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.NewIO("read", name, err)
	}
	return t, nil
}

// NewMappingTable returns an empty table.
func NewMappingTable(name string) *MappingTable {
	return &MappingTable{
		Name:    name,
		forward: make(map[VerseID][]VerseID),
		back:    make(map[VerseID][]VerseID),
	}
}

// Add registers a mapping.
func (t *MappingTable) Add(m Mapping) {
	t.Mappings = append(t.Mappings, m)
	if m.Type == MappingExact {
		for i := range m.From {
			t.forward[m.From[i]] = append(t.forward[m.From[i]], m.To[i])
			t.back[m.To[i]] = append(t.back[m.To[i]], m.From[i])
		}
		return
	}
	for _, f := range m.From {
		t.forward[f] = append(t.forward[f], m.To...)
	}
	for _, to := range m.To {
		t.back[to] = append(t.back[to], m.From...)
	}
}

// Map returns the reference verses of key.
func (t *MappingTable) Map(key usfm.VerseKey) []VerseID {
	var out []VerseID
	seen := make(map[VerseID]bool)
	for _, id := range expand(key) {
		targets, ok := t.forward[id]
		if !ok {
			targets = []VerseID{id}
		}
		for _, to := range targets {
			if !seen[to] {
				seen[to] = true
				out = append(out, to)
			}
		}
	}
	return out
}

// Back returns the project verses that map onto id.
func (t *MappingTable) Back(id VerseID) []usfm.VerseKey {
	from, ok := t.back[id]
	if !ok {
		if _, moved := t.forward[id]; moved {
			return nil
		}
		return []usfm.VerseKey{toKey(id)}
	}
	out := make([]usfm.VerseKey, len(from))
	for i, f := range from {
		out[i] = toKey(f)
	}
	return out
}

// RangeMarker fills the corpus lines of reference verses whose text was
// given together with the verse before them.
const RangeMarker = "<range>"

// WriteCorpus writes the verse texts of x in reference order, one verse per
// line, and the matching verse ids to vref. Texts of several verses mapping
// to one reference verse are joined with a space. When one verse maps to
// several reference verses its text goes on the first line and the others
// get RangeMarker.
func WriteCorpus(text, vref io.Writer, x *usfm.Extraction, m Mapper) error {
	type line struct {
		texts  []string
		ranged bool
	}
	corpus := make(map[VerseID]*line)
	var ids []VerseID
	get := func(id VerseID) *line {
		l, ok := corpus[id]
		if !ok {
			l = &line{}
			corpus[id] = l
			ids = append(ids, id)
		}
		return l
	}

	for _, v := range x.Verses() {
		targets := m.Map(v.Key)
		if len(targets) == 0 {
			continue
		}
		if v.Text != "" {
			first := get(targets[0])
			first.texts = append(first.texts, v.Text)
		}
		for _, id := range targets[1:] {
			get(id).ranged = true
		}
	}

	sort.SliceStable(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if a.Book != b.Book {
			return usfm.LocationLess(a.Book, b.Book)
		}
		if a.Chapter != b.Chapter {
			return a.Chapter < b.Chapter
		}
		return a.Verse < b.Verse
	})

	tw, vw := bufio.NewWriter(text), bufio.NewWriter(vref)
	for _, id := range ids {
		l := corpus[id]
		out := strings.Join(l.texts, " ")
		if out == "" && l.ranged {
			out = RangeMarker
		}
		if _, err := fmt.Fprintln(tw, out); err != nil {
			return errors.NewIO("write", "corpus", err)
		}
		if _, err := fmt.Fprintln(vw, id.String()); err != nil {
			return errors.NewIO("write", "vref", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return errors.NewIO("write", "corpus", err)
	}
	if err := vw.Flush(); err != nil {
		return errors.NewIO("write", "vref", err)
	}
	return nil
}

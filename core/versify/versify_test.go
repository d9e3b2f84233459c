package versify

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/FocuswithJustin/usfmcheck/core/errors"
	"github.com/FocuswithJustin/usfmcheck/core/grammar"
	"github.com/FocuswithJustin/usfmcheck/core/lines"
	"github.com/FocuswithJustin/usfmcheck/core/usfm"
)

func TestParseMappingLine(t *testing.T) {
	tests := []struct {
		in       string
		typ      MappingType
		from, to int
	}{
		{"GEN 32:1 = GEN 31:55", MappingExact, 1, 1},
		{"GEN 32:1-2 = GEN 31:55", MappingMerge, 2, 1},
		{"GEN 32:1 = GEN 31:55-56", MappingSplit, 1, 2},
		{"1SA 20:42 = 1SA 21:1", MappingExact, 1, 1},
		{"MAL 4:1-6 = MAL 3:19-24", MappingExact, 6, 6},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, err := ParseMappingLine(tt.in)
			if err != nil {
				t.Fatalf("ParseMappingLine(%q) error: %v", tt.in, err)
			}
			if m.Type != tt.typ || len(m.From) != tt.from || len(m.To) != tt.to {
				t.Errorf("got %s %d→%d, want %s %d→%d", m.Type, len(m.From), len(m.To), tt.typ, tt.from, tt.to)
			}
		})
	}
}

func TestParseMappingLineErrors(t *testing.T) {
	for _, in := range []string{"GEN 32:1", "GEN 32:1-3 = GEN 31:1-2", "gen 1:1 = GEN 1:1"} {
		_, err := ParseMappingLine(in)
		var fe *errors.FormatError
		if !errors.As(err, &fe) || fe.Kind != errors.KindMapping {
			t.Errorf("ParseMappingLine(%q) error = %v, want mapping FormatError", in, err)
		}
	}
}

const table = `# Hebrew to English
MAL 3:19-24 = MAL 4:1-6

GEN 32:1 = GEN 31:55
JOL 3:1-2 = JOL 2:28
`

func TestMappingTable(t *testing.T) {
	mt, err := ParseMappingTable(strings.NewReader(table), "test.vrs")
	if err != nil {
		t.Fatal(err)
	}
	if len(mt.Mappings) != 3 {
		t.Fatalf("mappings = %d, want 3", len(mt.Mappings))
	}

	got := mt.Map(usfm.VerseKey{Book: "MAL", Chapter: 3, Verse: "20"})
	if diff := cmp.Diff([]VerseID{{"MAL", 4, 2}}, got); diff != "" {
		t.Errorf("Map MAL 3:20 mismatch (-want +got):\n%s", diff)
	}

	got = mt.Map(usfm.VerseKey{Book: "JOL", Chapter: 3, Verse: "1-2"})
	if diff := cmp.Diff([]VerseID{{"JOL", 2, 28}}, got); diff != "" {
		t.Errorf("Map JOL 3:1-2 mismatch (-want +got):\n%s", diff)
	}

	got = mt.Map(usfm.VerseKey{Book: "GEN", Chapter: 1, Verse: "1"})
	if diff := cmp.Diff([]VerseID{{"GEN", 1, 1}}, got); diff != "" {
		t.Errorf("identity fallback mismatch (-want +got):\n%s", diff)
	}

	back := mt.Back(VerseID{"JOL", 2, 28})
	want := []usfm.VerseKey{{Book: "JOL", Chapter: 3, Verse: "1"}, {Book: "JOL", Chapter: 3, Verse: "2"}}
	if diff := cmp.Diff(want, back); diff != "" {
		t.Errorf("Back mismatch (-want +got):\n%s", diff)
	}
	if keys := mt.Back(VerseID{"GEN", 32, 1}); len(keys) != 0 {
		t.Errorf("Back of a moved verse = %v, want none", keys)
	}
}

func TestParseMappingTableReportsLine(t *testing.T) {
	_, err := ParseMappingTable(strings.NewReader("GEN 1:1 = GEN 1:1\nnonsense\n"), "bad.vrs")
	var pe *errors.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want ParseError", err)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error %q does not name the line", err)
	}
}

func TestIdentityMapper(t *testing.T) {
	ids := IdentityMapper{}.Map(usfm.VerseKey{Book: "GEN", Chapter: 1, Verse: "10-12"})
	if len(ids) != 3 || ids[2].Verse != 12 {
		t.Errorf("Map = %v", ids)
	}
	if ids := (IdentityMapper{}).Map(usfm.VerseKey{Book: "GEN"}); ids != nil {
		t.Errorf("Map without chapter = %v, want nil", ids)
	}
}

func TestWriteCorpus(t *testing.T) {
	src := "\\id GEN\n\\c 1\n\\p\n\\v 2 Second.\n\\v 1 First.\n\\v 3-4 Third and fourth.\n"
	tree := usfm.Parse(lines.New("gen.usfm", src), grammar.MustDefault(), nil)
	x := usfm.Extract(tree, nil)

	var text, vref strings.Builder
	if err := WriteCorpus(&text, &vref, x, IdentityMapper{}); err != nil {
		t.Fatal(err)
	}
	wantText := "First.\nSecond.\nThird and fourth.\n<range>\n"
	wantVref := "GEN 1:1\nGEN 1:2\nGEN 1:3\nGEN 1:4\n"
	if text.String() != wantText {
		t.Errorf("text = %q, want %q", text.String(), wantText)
	}
	if vref.String() != wantVref {
		t.Errorf("vref = %q, want %q", vref.String(), wantVref)
	}
}

func TestWriteCorpusMerge(t *testing.T) {
	src := "\\id JOL\n\\c 3\n\\p\n\\v 1 One.\n\\v 2 Two.\n"
	tree := usfm.Parse(lines.New("jol.usfm", src), grammar.MustDefault(), nil)
	mt, err := ParseMappingTable(strings.NewReader("JOL 3:1-2 = JOL 2:28\n"), "t")
	if err != nil {
		t.Fatal(err)
	}
	var text, vref strings.Builder
	if err := WriteCorpus(&text, &vref, usfm.Extract(tree, nil), mt); err != nil {
		t.Fatal(err)
	}
	if text.String() != "One. Two.\n" || vref.String() != "JOL 2:28\n" {
		t.Errorf("text = %q, vref = %q", text.String(), vref.String())
	}
}

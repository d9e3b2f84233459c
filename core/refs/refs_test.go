package refs

import (
	"testing"

	"github.com/FocuswithJustin/usfmcheck/core/errors"
	"github.com/FocuswithJustin/usfmcheck/core/grammar"
	"github.com/FocuswithJustin/usfmcheck/core/ledger"
	"github.com/FocuswithJustin/usfmcheck/core/lines"
	"github.com/FocuswithJustin/usfmcheck/core/usfm"
)

func TestParse(t *testing.T) {
	k := DefaultKeywords()
	tests := []struct {
		in   string
		want string
	}{
		{"Gen 1:1", "GEN 1:1"},
		{"Genesis 1:1-3", "GEN 1:1-3"},
		{"1 John 3:16", "1JN 3:16"},
		{"see John 3.16", "JHN 3:16"},
		{"Song of Solomon 2:4", "SNG 2:4"},
		{"Matthew 5:3–12", "MAT 5:3-12"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ref, err := k.Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.in, err)
			}
			if got := ref.String(); got != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseUnknownBook(t *testing.T) {
	_, err := DefaultKeywords().Parse("Hezekiah 1:1")
	var fe *errors.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want FormatError", err)
	}
	if fe.Kind != errors.KindReference {
		t.Errorf("kind = %s, want %s", fe.Kind, errors.KindReference)
	}
}

func TestCustomKeywords(t *testing.T) {
	k := DefaultKeywords()
	k.Add("Mwanzo", "gen")
	ref, err := k.Parse("Mwanzo 2:7")
	if err != nil {
		t.Fatal(err)
	}
	if ref.Book != "GEN" || ref.Chapter != 2 || ref.Verse != 7 {
		t.Errorf("got %+v", ref)
	}
}

func TestFind(t *testing.T) {
	refs := DefaultKeywords().Find("Compare Exodus 20:13 and also Deuteronomy 5:17 with this.")
	if len(refs) != 2 {
		t.Fatalf("found %d references, want 2: %v", len(refs), refs)
	}
	if refs[0].Book != "EXO" || refs[1].Book != "DEU" {
		t.Errorf("books = %s, %s", refs[0].Book, refs[1].Book)
	}
}

func TestParseOrigin(t *testing.T) {
	c, v, end, err := ParseOrigin("3:16-18 ")
	if err != nil {
		t.Fatal(err)
	}
	if c != 3 || v != 16 || end != 18 {
		t.Errorf("ParseOrigin = %d, %d, %d", c, v, end)
	}
	if _, _, _, err := ParseOrigin("no numbers"); err == nil {
		t.Error("expected an error")
	}
}

func TestCovers(t *testing.T) {
	r := Reference{Book: "GEN", Chapter: 1, Verse: 2, VerseEnd: 4}
	if !r.Covers("GEN", 1, 3) {
		t.Error("GEN 1:2-4 should cover 1:3")
	}
	if r.Covers("GEN", 1, 5) || r.Covers("EXO", 1, 3) || r.Covers("GEN", 2, 3) {
		t.Error("unexpected cover")
	}
}

func analyze(t *testing.T, text string) *ledger.Ledger {
	t.Helper()
	tree := usfm.Parse(lines.New("test.usfm", text), grammar.MustDefault(), nil)
	l := ledger.New()
	NewAnalyzer(DefaultKeywords(), l).Analyze(tree)
	return l
}

func TestAnalyzeUntaggedReference(t *testing.T) {
	l := analyze(t, "\\id GEN\n\\c 1\n\\p\n\\v 1 In the beginning\\f + \\ft Compare John 1:1.\\f* God created.\n")
	path := ledger.P(ledger.Alerts, "Cross-references", "Possible missing reference tag")
	if got := l.Count(path); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
	if locs := l.Locations(path); len(locs) != 1 || locs[0] != "GEN 1:1" {
		t.Errorf("locations = %v", locs)
	}
}

func TestAnalyzeOriginMismatch(t *testing.T) {
	l := analyze(t, "\\id GEN\n\\c 1\n\\p\n\\v 2 Text\\x - \\xo 1:3 \\xt John 1:1\\x* more.\n")
	if got := l.Count(ledger.P(ledger.Warnings, "Cross-references", "Cross-reference origin does not match verse")); got != 1 {
		t.Errorf("mismatch count = %d, want 1", got)
	}

	l = analyze(t, "\\id GEN\n\\c 1\n\\p\n\\v 2 Text\\x - \\xo 1:2 \\xt John 1:1\\x* more.\n")
	if l.Total() != 0 {
		t.Errorf("unexpected findings: %v", l.Records())
	}
}

func TestAnalyzeSelfReference(t *testing.T) {
	l := analyze(t, "\\id GEN\n\\c 1\n\\p\n\\v 2 Text\\x - \\xo 1:2 \\xt Gen 1:2\\x* more.\n")
	if got := l.Count(ledger.P(ledger.Info, "Cross-references", "Self-reference")); got != 1 {
		t.Errorf("self-reference count = %d, want 1", got)
	}
}

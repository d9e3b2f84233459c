package lines

import (
	"strings"
	"testing"
)

func TestNewRoundTrip(t *testing.T) {
	tests := []string{
		"",
		"\\id GEN\n",
		"\\id GEN\n\\c 1\n\\v 1 text",
		"\\id GEN\r\n\\c 1\r\n\\v 1 text\r\n",
		"mixed\r\nendings\nhere\n\n",
	}
	for _, text := range tests {
		d := New("t.usfm", text)
		if got := d.Text(false); got != text {
			t.Errorf("Text(false) = %q, want %q", got, text)
		}
		if got := d.Text(true); got != text {
			t.Errorf("Text(true) without repairs = %q, want %q", got, text)
		}
	}
}

func TestSpans(t *testing.T) {
	d := New("t", "\\id GEN\r\n\\c 1\n")
	frags := d.Fragments()
	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(frags))
	}
	if frags[0].EOL != "\r\n" || frags[0].Text != `\id GEN` {
		t.Errorf("fragment 0 = %q + %q", frags[0].Text, frags[0].EOL)
	}
	want := Span{StartLine: 2, StartCol: 1, EndLine: 2, EndCol: 5}
	if frags[1].Span != want {
		t.Errorf("span = %+v, want %+v", frags[1].Span, want)
	}
}

func TestSplitKeepsOriginalText(t *testing.T) {
	text := "\\v 31 end of chapter \\c 2 \\v 1 new\nnext line\n"
	d := New("t", text)
	first := d.First()

	idx := strings.Index(first.Text, `\c 2`)
	pieces := d.Split(first, idx)
	if len(pieces) != 2 {
		t.Fatalf("expected 2 pieces, got %d", len(pieces))
	}
	if pieces[0].EOL != "" || pieces[1].EOL != "\n" {
		t.Errorf("EOLs = %q, %q", pieces[0].EOL, pieces[1].EOL)
	}
	if pieces[1].Span.StartCol != idx+1 {
		t.Errorf("second piece starts at col %d, want %d", pieces[1].Span.StartCol, idx+1)
	}
	if pieces[1].DerivedFrom[0] != first || len(first.DerivedInto) != 2 {
		t.Error("derivation links not recorded")
	}
	if d.Len() != 3 {
		t.Errorf("Len() = %d, want 3", d.Len())
	}
	if got := d.Text(false); got != text {
		t.Errorf("Text(false) after split = %q", got)
	}
	if d.First() != pieces[0] || pieces[1].Next.Text != "next line" || pieces[1].Next.Prev != pieces[1] {
		t.Error("links broken after split")
	}
}

func TestSplitIgnoresBadOffsets(t *testing.T) {
	d := New("t", "abc\n")
	f := d.First()
	if got := d.Split(f, 0, 3, 10); len(got) != 1 || got[0] != f {
		t.Error("out-of-range offsets should not split")
	}
}

func TestMerge(t *testing.T) {
	text := "\\c 1\n\\v\n3 text\n\\v 4 more\n"
	d := New("t", text)
	frags := d.Fragments()

	m, err := d.Merge(frags[1], frags[2], " ")
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if got := m.Current(); got != `\v 3 text` {
		t.Errorf("merged current = %q", got)
	}
	if !m.Repaired() {
		t.Error("merged fragment should count as repaired")
	}
	if m.Span.StartLine != 2 || m.Span.EndLine != 3 {
		t.Errorf("merged span = %+v", m.Span)
	}
	if d.Len() != 3 {
		t.Errorf("Len() = %d, want 3", d.Len())
	}
	if got := d.Text(false); got != text {
		t.Errorf("Text(false) = %q, want original", got)
	}
	if got, want := d.Text(true), "\\c 1\n\\v 3 text\n\\v 4 more\n"; got != want {
		t.Errorf("Text(true) = %q, want %q", got, want)
	}
	if line, _ := m.Position(5); line != 2 {
		t.Errorf("Position in merged fragment = line %d", line)
	}
	if len(d.ChangedLines()) != 1 {
		t.Errorf("ChangedLines = %d", len(d.ChangedLines()))
	}
}

func TestMergeOutOfOrder(t *testing.T) {
	d := New("t", "a\nb\n")
	frags := d.Fragments()
	if _, err := d.Merge(frags[1], frags[0], " "); err == nil {
		t.Error("expected error when last does not follow first")
	}
}

func TestSetRepaired(t *testing.T) {
	d := New("t", "\\c 1.\n")
	f := d.First()
	d.SetRepaired(f, `\c 1`)
	if !f.Repaired() || d.Text(true) != "\\c 1\n" || d.Text(false) != "\\c 1.\n" {
		t.Error("repair not applied")
	}
	d.SetRepaired(f, `\c 1.`)
	if f.Repaired() {
		t.Error("restoring the original text should clear the repair")
	}
}

func TestLineEndings(t *testing.T) {
	d := New("t", "a\r\nb\r\nc\n")
	if !d.MixedLineEndings() {
		t.Error("expected mixed line endings")
	}
	if d.MajorityEOL() != "\r\n" {
		t.Errorf("MajorityEOL = %q", d.MajorityEOL())
	}
	if New("t", "a\nb\n").MixedLineEndings() {
		t.Error("LF-only file reported as mixed")
	}
}

func TestSpanString(t *testing.T) {
	if s := (Span{StartLine: 4, EndLine: 4}).String(); s != "4" {
		t.Errorf("got %q", s)
	}
	if s := (Span{StartLine: 4, EndLine: 6}).String(); s != "4-6" {
		t.Errorf("got %q", s)
	}
}

// Package lines models a USFM file as a doubly linked sequence of line
// fragments. Fragments remember where they came from in the original file so
// that findings and diffs can point at original positions after lines have
// been split, merged or repaired.
package lines

import (
	"fmt"
	"strings"
)

// Span is a range in the original file. Lines and columns are 1-based;
// columns count bytes. End positions are exclusive.
type Span struct {
	StartLine int `json:"start_line"`
	StartCol  int `json:"start_col"`
	EndLine   int `json:"end_line"`
	EndCol    int `json:"end_col"`
}

// String renders the span as "12" for a single line or "12-14".
func (s Span) String() string {
	if s.EndLine <= s.StartLine {
		return fmt.Sprintf("%d", s.StartLine)
	}
	return fmt.Sprintf("%d-%d", s.StartLine, s.EndLine)
}

// Fragment is one piece of a line. Text is the original text of the piece;
// the break that followed it in the file, if any, is kept in EOL. Only a
// merged fragment has line breaks inside Text.
type Fragment struct {
	Text string
	EOL  string
	Span Span

	Prev, Next *Fragment

	// DerivedFrom lists the fragments this one was split or merged from.
	DerivedFrom []*Fragment
	// DerivedInto lists the fragments produced from this one.
	DerivedInto []*Fragment

	repaired *string
}

// Current returns the repaired text if one has been set, else the original.
func (f *Fragment) Current() string {
	if f.repaired != nil {
		return *f.repaired
	}
	return f.Text
}

// Repaired reports whether a repaired text override is present.
func (f *Fragment) Repaired() bool {
	return f.repaired != nil && *f.repaired != f.Text
}

// Document is the linked fragment sequence for one file.
type Document struct {
	Name  string
	head  *Fragment
	tail  *Fragment
	count int
}

// New splits text into one fragment per physical line. Both "\n" and "\r\n"
// line endings are recognized and kept.
func New(name, text string) *Document {
	d := &Document{Name: name}
	lineNo := 1
	for len(text) > 0 {
		idx := strings.IndexByte(text, '\n')
		var body, eol string
		if idx < 0 {
			body, text = text, ""
		} else {
			body, text = text[:idx], text[idx+1:]
			eol = "\n"
			if strings.HasSuffix(body, "\r") {
				body = body[:len(body)-1]
				eol = "\r\n"
			}
		}
		d.append(&Fragment{
			Text: body,
			EOL:  eol,
			Span: Span{StartLine: lineNo, StartCol: 1, EndLine: lineNo, EndCol: len(body) + 1},
		})
		lineNo++
	}
	return d
}

func (d *Document) append(f *Fragment) {
	f.Prev = d.tail
	f.Next = nil
	if d.tail != nil {
		d.tail.Next = f
	} else {
		d.head = f
	}
	d.tail = f
	d.count++
}

// First returns the first fragment, or nil for an empty document.
func (d *Document) First() *Fragment { return d.head }

// Len returns the number of fragments.
func (d *Document) Len() int { return d.count }

// Fragments returns the fragments in order.
func (d *Document) Fragments() []*Fragment {
	out := make([]*Fragment, 0, d.count)
	for f := d.head; f != nil; f = f.Next {
		out = append(out, f)
	}
	return out
}

// Text reconstructs the file. With revised=false the result equals the
// original file text exactly, whatever splits and merges were applied.
func (d *Document) Text(revised bool) string {
	var sb strings.Builder
	for f := d.head; f != nil; f = f.Next {
		if revised {
			sb.WriteString(f.Current())
			sb.WriteString(f.EOL)
			continue
		}
		sb.WriteString(f.Text)
		sb.WriteString(f.EOL)
	}
	return sb.String()
}

func (f *Fragment) merged() bool {
	return len(f.DerivedFrom) > 1
}

// Split breaks f at the given byte offsets of its text. The pieces
// replace f in the sequence; only the last piece keeps f's EOL. Offsets
// outside (0, len) are ignored, and repaired or merged fragments are not
// split.
func (d *Document) Split(f *Fragment, offsets ...int) []*Fragment {
	if f.Repaired() || f.merged() {
		return []*Fragment{f}
	}
	text := f.Text
	var cuts []int
	last := 0
	for _, off := range offsets {
		if off > last && off < len(text) {
			cuts = append(cuts, off)
			last = off
		}
	}
	if len(cuts) == 0 {
		return []*Fragment{f}
	}
	cuts = append(cuts, len(text))

	pieces := make([]*Fragment, 0, len(cuts))
	start := 0
	for i, end := range cuts {
		p := &Fragment{
			Text:        text[start:end],
			DerivedFrom: []*Fragment{f},
			Span: Span{
				StartLine: f.Span.StartLine,
				StartCol:  f.Span.StartCol + start,
				EndLine:   f.Span.StartLine,
				EndCol:    f.Span.StartCol + end,
			},
		}
		if i == len(cuts)-1 {
			p.EOL = f.EOL
			p.Span.EndLine = f.Span.EndLine
		}
		pieces = append(pieces, p)
		start = end
	}
	f.DerivedInto = append(f.DerivedInto, pieces...)
	d.replace(f, f, pieces)
	return pieces
}

// Merge joins the fragments from first through last (inclusive, following
// Next links) into one fragment. The line breaks between them are replaced by
// sep in the merged current text, which is recorded as a repair; the
// original text remains recoverable.
func (d *Document) Merge(first, last *Fragment, sep string) (*Fragment, error) {
	var srcs []*Fragment
	for f := first; ; f = f.Next {
		if f == nil {
			return nil, fmt.Errorf("merge: fragment at line %d does not follow line %d", last.Span.StartLine, first.Span.StartLine)
		}
		srcs = append(srcs, f)
		if f == last {
			break
		}
	}
	if len(srcs) == 1 {
		return first, nil
	}

	var original, current strings.Builder
	for i, f := range srcs {
		original.WriteString(f.Text)
		current.WriteString(f.Current())
		if i < len(srcs)-1 {
			original.WriteString(f.EOL)
			current.WriteString(sep)
		}
	}
	cur := current.String()
	m := &Fragment{
		Text:        original.String(),
		EOL:         last.EOL,
		DerivedFrom: srcs,
		Span: Span{
			StartLine: first.Span.StartLine,
			StartCol:  first.Span.StartCol,
			EndLine:   last.Span.EndLine,
			EndCol:    last.Span.EndCol,
		},
		repaired: &cur,
	}
	for _, f := range srcs {
		f.DerivedInto = append(f.DerivedInto, m)
	}
	d.replace(first, last, []*Fragment{m})
	return m, nil
}

// replace swaps the run first..last for pieces.
func (d *Document) replace(first, last *Fragment, pieces []*Fragment) {
	removed := 0
	for f := first; ; f = f.Next {
		removed++
		if f == last {
			break
		}
	}
	prev, next := first.Prev, last.Next
	for i, p := range pieces {
		if i == 0 {
			p.Prev = prev
		} else {
			p.Prev = pieces[i-1]
		}
		if i == len(pieces)-1 {
			p.Next = next
		} else {
			p.Next = pieces[i+1]
		}
	}
	if prev != nil {
		prev.Next = pieces[0]
	} else {
		d.head = pieces[0]
	}
	if next != nil {
		next.Prev = pieces[len(pieces)-1]
	} else {
		d.tail = pieces[len(pieces)-1]
	}
	d.count += len(pieces) - removed
}

// SetRepaired sets the repaired text of f. Setting it back to the original
// text clears the override.
func (d *Document) SetRepaired(f *Fragment, text string) {
	if text == f.Text {
		f.repaired = nil
		return
	}
	f.repaired = &text
}

// Position maps a byte offset in f's current text to an original line and
// column. Offsets inside repaired text are clamped to the fragment's span.
func (f *Fragment) Position(offset int) (line, col int) {
	if f.Repaired() || f.merged() {
		return f.Span.StartLine, f.Span.StartCol
	}
	return f.Span.StartLine, f.Span.StartCol + offset
}

// LineEndings counts LF and CRLF line endings.
func (d *Document) LineEndings() (lf, crlf int) {
	for f := d.head; f != nil; f = f.Next {
		switch f.EOL {
		case "\n":
			lf++
		case "\r\n":
			crlf++
		}
	}
	return lf, crlf
}

// MixedLineEndings reports whether both LF and CRLF occur.
func (d *Document) MixedLineEndings() bool {
	lf, crlf := d.LineEndings()
	return lf > 0 && crlf > 0
}

// MajorityEOL returns the line ending to use for synthesized lines.
func (d *Document) MajorityEOL() string {
	lf, crlf := d.LineEndings()
	if crlf > lf {
		return "\r\n"
	}
	return "\n"
}

// ChangedLines returns the fragments whose current text differs from the
// original, in order.
func (d *Document) ChangedLines() []*Fragment {
	var out []*Fragment
	for f := d.head; f != nil; f = f.Next {
		if f.Repaired() {
			out = append(out, f)
		}
	}
	return out
}

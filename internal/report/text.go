// Package report renders check results: the category tree as styled text,
// unified diffs of repaired files, and verse extracts as JSON Lines.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/FocuswithJustin/usfmcheck/core/ledger"
)

// Styles colours the text report. Plain writers get unstyled text.
type Styles struct {
	severity map[string]lipgloss.Style
	category lipgloss.Style
	location lipgloss.Style
	detail   lipgloss.Style
}

// NewStyles builds styles for w. The colour profile follows the writer, so
// a buffer or pipe renders plain text.
func NewStyles(w io.Writer) *Styles {
	r := lipgloss.NewRenderer(w)
	bold := r.NewStyle().Bold(true)
	return &Styles{
		severity: map[string]lipgloss.Style{
			ledger.SevereErrors:   bold.Foreground(lipgloss.Color("9")),
			ledger.Errors:         bold.Foreground(lipgloss.Color("1")),
			ledger.AutoRepairable: bold.Foreground(lipgloss.Color("5")),
			ledger.ModerateErrors: bold.Foreground(lipgloss.Color("3")),
			ledger.Warnings:       bold.Foreground(lipgloss.Color("3")),
			ledger.Alerts:         bold.Foreground(lipgloss.Color("6")),
			ledger.Info:           bold.Foreground(lipgloss.Color("4")),
		},
		category: r.NewStyle(),
		location: r.NewStyle().Foreground(lipgloss.Color("2")),
		detail:   r.NewStyle().Faint(true),
	}
}

func (s *Styles) heading(depth int, name string) string {
	if depth == 0 {
		if st, ok := s.severity[name]; ok {
			return st.Render(name)
		}
	}
	return s.category.Render(name)
}

// WriteText writes the category tree of l below prefix. Each category line
// carries its rolled-up count; full categories list their bundled
// locations with details.
func WriteText(w io.Writer, l *ledger.Ledger, prefix ledger.Path, st *Styles) error {
	if st == nil {
		st = NewStyles(w)
	}
	var b strings.Builder
	for _, n := range l.Report(prefix) {
		writeNode(&b, n, 0, st)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeNode(b *strings.Builder, n *ledger.Node, depth int, st *Styles) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%s%s (%d)\n", indent, st.heading(depth, n.Name), n.Count)
	for _, loc := range n.Locations {
		line := indent + "  " + st.location.Render(loc.Label())
		if len(loc.Details) > 0 {
			line += ": " + st.detail.Render(strings.Join(loc.Details, "; "))
		}
		b.WriteString(line + "\n")
	}
	for _, c := range n.Children {
		writeNode(b, c, depth+1, st)
	}
}

// WriteSummary writes one line with the count of every non-empty severity,
// in report order, e.g. "Errors: 3, Warnings: 1".
func WriteSummary(w io.Writer, l *ledger.Ledger) error {
	counts := l.Summary()
	sevs := make([]string, 0, len(counts))
	for sev, n := range counts {
		if n > 0 {
			sevs = append(sevs, sev)
		}
	}
	sort.Slice(sevs, func(i, j int) bool {
		ri, rj := ledger.SeverityRank(sevs[i]), ledger.SeverityRank(sevs[j])
		if ri != rj {
			return ri < rj
		}
		return sevs[i] < sevs[j]
	})
	if len(sevs) == 0 {
		_, err := fmt.Fprintln(w, "No findings")
		return err
	}
	parts := make([]string, len(sevs))
	for i, sev := range sevs {
		parts[i] = fmt.Sprintf("%s: %d", sev, counts[sev])
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, ", "))
	return err
}

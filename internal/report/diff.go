package report

import (
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	"github.com/FocuswithJustin/usfmcheck/core/errors"
)

// DefaultContext is the number of context lines in a repair diff.
const DefaultContext = 3

// Diff returns a unified diff of a file before and after repairs, or "" when
// the texts are equal.
func Diff(name, original, revised string, context int) (string, error) {
	if original == revised {
		return "", nil
	}
	if context <= 0 {
		context = DefaultContext
	}
	u := difflib.UnifiedDiff{
		A:        splitLinesKeepEOL(original),
		B:        splitLinesKeepEOL(revised),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  context,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return "", errors.Wrapf(err, "diff %s", name)
	}
	return s, nil
}

// A last line without a newline gets one, with difflib's marker line, so
// the hunk stays well formed.
func splitLinesKeepEOL(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.SplitAfter(s, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	if last := parts[len(parts)-1]; !strings.HasSuffix(last, "\n") {
		parts[len(parts)-1] = last + "\n\\ No newline at end of file\n"
	}
	return parts
}

package ledger

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var missingClose = P(Errors, "Paired tags", "Missing closing tag", `\f`)

func TestRecordRollsUpCounts(t *testing.T) {
	l := New()
	l.Record(missingClose, "GEN 1:1", "line 3")
	l.Record(missingClose, "GEN 1:2", "line 4")
	l.Record(P(Errors, "Paired tags", "Missing open tag", `\bd*`), "GEN 1:2", "")

	assert.Equal(t, 3, l.Count(P(Errors)))
	assert.Equal(t, 3, l.Count(P(Errors, "Paired tags")))
	assert.Equal(t, 2, l.Count(P(Errors, "Paired tags", "Missing closing tag")))
	assert.Equal(t, 2, l.Count(missingClose))
	assert.Equal(t, 3, l.Total())
	assert.Equal(t, []string{"line 4"}, l.Details(missingClose, "GEN 1:2"))
}

func TestCountOnlyFull(t *testing.T) {
	l := New()
	l.Record(P(Silent, "Implied close tag", `\v`), "GEN 1:1", "", CountOnlyFull())
	l.Record(P(Silent, "Implied close tag", `\v`), "GEN 1:2", "", CountOnlyFull())

	assert.Equal(t, 2, l.Count(P(Silent, "Implied close tag", `\v`)))
	assert.Equal(t, 0, l.Count(P(Silent)))
	assert.Equal(t, 0, l.Total(), "silent records are excluded from the total")
	assert.Equal(t, 2, l.Len())
}

func TestBundlingDuplicateLocations(t *testing.T) {
	l := New()
	for i := 0; i < 3; i++ {
		l.Record(missingClose, "GEN 1:1", "")
	}
	l.Record(missingClose, "GEN 1:10", "")
	l.Record(missingClose, "GEN 1:9", "")

	nodes := l.Report(P(Errors, "Paired tags", "Missing closing tag"))
	require.Len(t, nodes, 1)
	leaf := nodes[0]
	assert.Equal(t, `\f`, leaf.Name)
	assert.Equal(t, 5, leaf.Count)
	require.Len(t, leaf.Locations, 3)

	var labels []string
	for _, e := range leaf.Locations {
		labels = append(labels, e.Label())
	}
	assert.Equal(t, []string{"GEN 1:1 (3)", "GEN 1:9", "GEN 1:10"}, labels)
}

func TestReportOrdering(t *testing.T) {
	l := New()
	l.Record(P(Info, "Tags", "User-defined tags", `\zx`), "GEN 1:1", "")
	l.Record(P(Warnings, "Inconsistent tag variants", `\mt vs \mt1`), "GEN", "")
	l.Record(P(Errors, "Verse numbers", "Duplicate verse number"), "GEN 1:5", "")
	l.Record(P(Errors, "Paired tags", "Missing closing tag", `\f`), "GEN 1:1", "")
	l.Record(P(Errors, "Paired tags", "Missing open tag", `\bd*`), "GEN 1:1", "")
	l.Record(P(Errors, "Paired tags", "Missing open tag", `\bd*`), "GEN 1:2", "")
	l.Record(P(SevereErrors, "Tags", "Unrecognized tags", `\xyz`), "GEN 1:3", "")
	l.Record(P(Silent, "Implied close tag", `\v`), "GEN 1:1", "")

	nodes := l.Report(nil)
	var top []string
	for _, n := range nodes {
		top = append(top, n.Name)
	}
	assert.Equal(t, []string{SevereErrors, Errors, Warnings, Info}, top)

	errs := nodes[1]
	require.Len(t, errs.Children, 2)
	assert.Equal(t, "Paired tags", errs.Children[0].Name, "higher count sorts first")
	assert.Equal(t, 3, errs.Children[0].Count)
	paired := errs.Children[0].Children
	assert.Equal(t, "Missing open tag", paired[0].Name)
	assert.Equal(t, "Missing closing tag", paired[1].Name)

	silent := l.Report(P(Silent))
	require.Len(t, silent, 1)
	assert.Equal(t, "Implied close tag", silent[0].Name)
}

func TestMergePreservesModes(t *testing.T) {
	a, b := New(), New()
	a.Record(missingClose, "GEN 1:1", "")
	b.Record(missingClose, "EXO 1:1", "")
	b.Record(P(Silent, "Implied close tag", `\v`), "EXO 1:1", "", CountOnlyFull())

	a.Merge(b)
	assert.Equal(t, 2, a.Count(P(Errors)))
	assert.Equal(t, 0, a.Count(P(Silent)))
	assert.Equal(t, 2, a.Total())
	assert.Len(t, a.Records(), 3)
}

func TestPathsAndHas(t *testing.T) {
	l := New()
	l.Record(missingClose, "GEN 1:1", "")
	l.Record(P(Warnings, "Paired tags", "Tag open at end of file", `\f`), "GEN 1:1", "")

	assert.True(t, l.Has(P(Errors, "Paired tags")))
	assert.False(t, l.Has(P(Alerts)))
	assert.Equal(t, []Path{missingClose}, l.Paths(P(Errors)))
}

func TestSummary(t *testing.T) {
	l := New()
	l.Record(missingClose, "GEN 1:1", "")
	l.Record(P(Info, "x"), "GEN 1:1", "")
	l.Record(P(Info, "y"), "GEN 1:2", "")
	l.Record(P(Silent, "z"), "GEN 1:2", "")
	assert.Equal(t, map[string]int{Errors: 1, Info: 2}, l.Summary())
}

func TestPathHelpers(t *testing.T) {
	p := P(Errors, "Verse numbers", "Duplicate verse number")
	assert.Equal(t, Errors, p.Severity())
	assert.Equal(t, "Duplicate verse number", p.Leaf())
	assert.Equal(t, "Errors > Verse numbers > Duplicate verse number", p.String())

	w := p.WithSeverity(Warnings)
	assert.Equal(t, Warnings, w.Severity())
	assert.Equal(t, Errors, p.Severity(), "WithSeverity must not modify the receiver")
}

func TestNaturalLess(t *testing.T) {
	locs := []string{"GEN 10:1", "GEN 2:10", "GEN 2:9", "EXO 1:1", "GEN 2"}
	sort.Slice(locs, func(i, j int) bool { return NaturalLess(locs[i], locs[j]) })
	assert.Equal(t, []string{"EXO 1:1", "GEN 2", "GEN 2:9", "GEN 2:10", "GEN 10:1"}, locs)
}

func TestSeverityRank(t *testing.T) {
	assert.Less(t, SeverityRank(SevereErrors), SeverityRank(Errors))
	assert.Less(t, SeverityRank(AutoRepairable), SeverityRank(Warnings))
	assert.Less(t, SeverityRank(Info), SeverityRank(Silent))
	assert.Equal(t, len(severityRank), SeverityRank("Repairs"))
}

package usfm

import (
	"github.com/FocuswithJustin/usfmcheck/core/ledger"
)

// ImpliedCloseInfoThreshold is the share of explicit closes, among all
// closes of a tag, from which implied closes of that tag are shown as Info.
// The value is a hand-tuned heuristic.
const ImpliedCloseInfoThreshold = 0.30

// PropagateImpliedCloseTags re-emits the silent implied-close bookkeeping as
// Info findings for every tag that the project also closes explicitly in at
// least threshold of its uses. It runs once, after all files are parsed.
// It returns the number of tags propagated.
func PropagateImpliedCloseTags(l *ledger.Ledger, threshold float64) int {
	prefix := ledger.P(ledger.Silent, "Implied close tag")
	propagated := 0
	for _, path := range l.Paths(prefix) {
		if len(path) != len(prefix)+1 {
			continue
		}
		tag := path.Leaf()
		implied := l.Count(path)
		explicit := l.Count(ledger.P(ledger.Silent, "Explicit close tag", tag))
		total := implied + explicit
		if total == 0 || explicit == 0 || float64(explicit)/float64(total) < threshold {
			continue
		}
		info := ledger.P(ledger.Info, "Implied close tag", tag)
		for _, loc := range l.Locations(path) {
			for i := 0; i < l.LocationCount(path, loc); i++ {
				l.Record(info, loc, "", ledger.CountOnlyFull())
			}
		}
		propagated++
	}
	return propagated
}

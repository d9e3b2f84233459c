package ledger

import (
	"fmt"
	"sort"
	"strconv"
	"unicode"
)

// Node is one category in a report tree.
type Node struct {
	Name      string          `json:"name"`
	Path      Path            `json:"path"`
	Count     int             `json:"count"`
	Children  []*Node         `json:"children,omitempty"`
	Locations []LocationEntry `json:"locations,omitempty"`
}

// LocationEntry is one bundled location under a full category path.
type LocationEntry struct {
	Location string   `json:"location"`
	N        int      `json:"n"`
	Details  []string `json:"details,omitempty"`
	Markup   []Markup `json:"markup,omitempty"`
}

// Label renders the location with its bundle count, e.g. "GEN 1:3 (2)".
func (e LocationEntry) Label() string {
	loc := e.Location
	if loc == "" {
		loc = "-"
	}
	if e.N > 1 {
		return fmt.Sprintf("%s (%d)", loc, e.N)
	}
	return loc
}

// Report returns the category tree below prefix. Silent categories are left
// out unless prefix itself starts with Silent. Top-level categories follow
// severity order; siblings below sort by descending count, then by name.
func (l *Ledger) Report(prefix Path) []*Node {
	root := &Node{Path: prefix}
	index := map[string]*Node{prefix.Key(): root}
	includeSilent := prefix.Severity() == Silent

	for _, key := range l.order {
		e := l.entries[key]
		if !e.path.HasPrefix(prefix) || len(e.path) == len(prefix) {
			continue
		}
		if e.path.Severity() == Silent && !includeSilent {
			continue
		}
		parent := root
		for i := len(prefix) + 1; i <= len(e.path); i++ {
			sub := e.path[:i]
			node, ok := index[sub.Key()]
			if !ok {
				node = &Node{Name: sub.Leaf(), Path: append(Path(nil), sub...), Count: l.counts[sub.Key()]}
				index[sub.Key()] = node
				parent.Children = append(parent.Children, node)
			}
			parent = node
		}
		parent.Locations = l.locationEntries(e)
		if parent.Count == 0 {
			// count-only-full records leave ancestors at zero; show the leaf total
			parent.Count = e.fullCount
		}
	}

	for _, n := range root.Children {
		fillCounts(n)
	}
	sortNodes(root.Children, len(prefix) == 0)
	return root.Children
}

// fillCounts gives categories that only hold count-only-full records the sum
// of their children.
func fillCounts(n *Node) int {
	sum := 0
	for _, c := range n.Children {
		sum += fillCounts(c)
	}
	if n.Count == 0 {
		n.Count = sum
	}
	return n.Count
}

func (l *Ledger) locationEntries(e *entry) []LocationEntry {
	locs := append([]string(nil), e.locs...)
	sort.SliceStable(locs, func(i, j int) bool { return l.less(locs[i], locs[j]) })
	out := make([]LocationEntry, 0, len(locs))
	for _, loc := range locs {
		out = append(out, LocationEntry{
			Location: loc,
			N:        e.locCount[loc],
			Details:  e.details[loc],
			Markup:   e.markup[loc],
		})
	}
	return out
}

func sortNodes(nodes []*Node, topLevel bool) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if topLevel {
			ra, rb := SeverityRank(a.Name), SeverityRank(b.Name)
			if ra != rb {
				return ra < rb
			}
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Name < b.Name
	})
	for _, n := range nodes {
		sortNodes(n.Children, false)
	}
}

// Summary returns the count per top-level category, Silent excluded.
func (l *Ledger) Summary() map[string]int {
	out := make(map[string]int)
	for _, key := range l.order {
		e := l.entries[key]
		sev := e.path.Severity()
		if sev == Silent {
			continue
		}
		out[sev] += e.fullCount
	}
	return out
}

// NaturalLess compares strings chunk by chunk, comparing digit runs
// numerically, so "GEN 1:9" sorts before "GEN 1:10".
func NaturalLess(a, b string) bool {
	ar, br := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ar) && j < len(br) {
		if unicode.IsDigit(ar[i]) && unicode.IsDigit(br[j]) {
			si := i
			for i < len(ar) && unicode.IsDigit(ar[i]) {
				i++
			}
			sj := j
			for j < len(br) && unicode.IsDigit(br[j]) {
				j++
			}
			na, _ := strconv.Atoi(string(ar[si:i]))
			nb, _ := strconv.Atoi(string(br[sj:j]))
			if na != nb {
				return na < nb
			}
			continue
		}
		if ar[i] != br[j] {
			return ar[i] < br[j]
		}
		i++
		j++
	}
	return len(ar)-i < len(br)-j
}

// Package ledger accumulates findings under hierarchical category paths such
// as ["Errors", "Paired tags", "Missing closing tag", `\v`]. Counts roll up to
// every ancestor category; locations are bundled per category so a report
// lists each location once with an occurrence count.
//
// A Ledger is not safe for concurrent use. Parallel checks keep one ledger per
// worker and Merge them afterwards.
package ledger

import (
	"sort"
	"strings"
)

// Top-level severity categories, in report order.
const (
	SevereErrors   = "Severe errors"
	Errors         = "Errors"
	AutoRepairable = "Auto-repairable errors"
	ModerateErrors = "Moderate errors"
	Warnings       = "Warnings"
	Alerts         = "Alerts"
	Info           = "Info"
	Silent         = "Silent"
)

var severityRank = map[string]int{
	SevereErrors:   0,
	Errors:         1,
	AutoRepairable: 2,
	ModerateErrors: 3,
	Warnings:       4,
	Alerts:         5,
	Info:           6,
	Silent:         7,
}

// SeverityRank returns the report position of a top-level category; unknown
// categories sort after the known ones.
func SeverityRank(name string) int {
	if r, ok := severityRank[name]; ok {
		return r
	}
	return len(severityRank)
}

// Path is an ordered category path.
type Path []string

// P builds a Path.
func P(parts ...string) Path { return Path(parts) }

// Key returns a map key for the path.
func (p Path) Key() string { return strings.Join(p, "\x1f") }

// String renders the path for humans.
func (p Path) String() string { return strings.Join(p, " > ") }

// Severity returns the top-level category.
func (p Path) Severity() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// Leaf returns the last element of the path.
func (p Path) Leaf() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// HasPrefix reports whether prefix is a prefix of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// WithSeverity returns a copy of p with the top-level category replaced.
func (p Path) WithSeverity(sev string) Path {
	out := make(Path, len(p))
	copy(out, p)
	if len(out) > 0 {
		out[0] = sev
	}
	return out
}

// Markup highlights a byte range of a record's detail string.
type Markup struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Class string `json:"class"`
}

// Record is one finding as it was recorded.
type Record struct {
	Path     Path     `json:"path"`
	Location string   `json:"location"`
	Detail   string   `json:"detail,omitempty"`
	Markup   []Markup `json:"markup,omitempty"`
	FullOnly bool     `json:"full_only,omitempty"`
}

// Option configures a single Record call.
type Option func(*Record)

// WithMarkup attaches highlight spans to the detail string.
func WithMarkup(m ...Markup) Option {
	return func(r *Record) { r.Markup = append(r.Markup, m...) }
}

// CountOnlyFull makes the record increment only its own full category
// instead of every ancestor. High-volume bookkeeping categories use this so
// the same fact reported under two related paths is not counted twice.
func CountOnlyFull() Option {
	return func(r *Record) { r.FullOnly = true }
}

type entry struct {
	path      Path
	locs      []string
	locCount  map[string]int
	details   map[string][]string
	markup    map[string][]Markup
	fullCount int
}

// Ledger is the accumulator.
type Ledger struct {
	counts  map[string]int
	entries map[string]*entry
	order   []string
	records []Record
	total   int
	less    func(a, b string) bool
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithLocationOrder sets the comparison used to sort locations in reports.
func WithLocationOrder(less func(a, b string) bool) LedgerOption {
	return func(l *Ledger) { l.less = less }
}

// New creates an empty Ledger.
func New(opts ...LedgerOption) *Ledger {
	l := &Ledger{
		counts:  make(map[string]int),
		entries: make(map[string]*entry),
		less:    NaturalLess,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record adds one finding.
func (l *Ledger) Record(path Path, loc, detail string, opts ...Option) {
	if len(path) == 0 {
		return
	}
	rec := Record{Path: append(Path(nil), path...), Location: loc, Detail: detail}
	for _, opt := range opts {
		opt(&rec)
	}
	l.add(rec)
}

func (l *Ledger) add(rec Record) {
	l.records = append(l.records, rec)
	path := rec.Path

	if rec.FullOnly {
		l.counts[path.Key()]++
	} else {
		for i := 1; i <= len(path); i++ {
			l.counts[path[:i].Key()]++
		}
	}
	if path.Severity() != Silent {
		l.total++
	}

	key := path.Key()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{
			path:     rec.Path,
			locCount: make(map[string]int),
			details:  make(map[string][]string),
			markup:   make(map[string][]Markup),
		}
		l.entries[key] = e
		l.order = append(l.order, key)
	}
	e.fullCount++
	if e.locCount[rec.Location] == 0 {
		e.locs = append(e.locs, rec.Location)
	}
	e.locCount[rec.Location]++
	if rec.Detail != "" {
		e.details[rec.Location] = append(e.details[rec.Location], rec.Detail)
	}
	if len(rec.Markup) > 0 {
		e.markup[rec.Location] = append(e.markup[rec.Location], rec.Markup...)
	}
}

// Merge appends every record of other, preserving its counting modes.
func (l *Ledger) Merge(other *Ledger) {
	if other == nil {
		return
	}
	for _, rec := range other.records {
		l.add(rec)
	}
}

// Count returns the rolled-up count for a category path or prefix.
func (l *Ledger) Count(path Path) int {
	return l.counts[path.Key()]
}

// Total returns the number of non-silent records.
func (l *Ledger) Total() int {
	return l.total
}

// Len returns the number of records, silent ones included.
func (l *Ledger) Len() int {
	return len(l.records)
}

// Records returns all records in insertion order.
func (l *Ledger) Records() []Record {
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Locations returns the distinct locations recorded for a full path, sorted.
func (l *Ledger) Locations(path Path) []string {
	e, ok := l.entries[path.Key()]
	if !ok {
		return nil
	}
	out := append([]string(nil), e.locs...)
	sort.SliceStable(out, func(i, j int) bool { return l.less(out[i], out[j]) })
	return out
}

// LocationCount returns how often a full path was recorded at loc.
func (l *Ledger) LocationCount(path Path, loc string) int {
	if e, ok := l.entries[path.Key()]; ok {
		return e.locCount[loc]
	}
	return 0
}

// Details returns the details recorded for a full path at loc.
func (l *Ledger) Details(path Path, loc string) []string {
	if e, ok := l.entries[path.Key()]; ok {
		return append([]string(nil), e.details[loc]...)
	}
	return nil
}

// Paths returns every full path recorded under prefix, in insertion order.
func (l *Ledger) Paths(prefix Path) []Path {
	var out []Path
	for _, key := range l.order {
		e := l.entries[key]
		if e.path.HasPrefix(prefix) {
			out = append(out, e.path)
		}
	}
	return out
}

// Has reports whether anything was recorded at or under path.
func (l *Ledger) Has(path Path) bool {
	for _, key := range l.order {
		if l.entries[key].path.HasPrefix(path) {
			return true
		}
	}
	return false
}

// Package grammar holds the USFM tag grammar: one TagDefinition per marker,
// loaded once from line-delimited JSON records and shared read-only by every
// parser instance.
package grammar

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/FocuswithJustin/usfmcheck/core/errors"
	"github.com/FocuswithJustin/usfmcheck/internal/logging"
)

//go:embed data/tags.jsonl
var defaultTags []byte

// Closing is the closing policy of a tag.
type Closing string

// Closing policies.
const (
	// ClosingRequired tags must be closed with their own close marker.
	ClosingRequired Closing = "required"
	// ClosingNever tags end implicitly and must not carry a close marker.
	ClosingNever Closing = "never"
	// ClosingOptional tags may be closed explicitly or implicitly.
	ClosingOptional Closing = "optional"
	// ClosingSelf tags close immediately and never enter the open-tag stack.
	ClosingSelf Closing = "self"
)

// LeftArg names the argument syntax that directly follows an open marker.
type LeftArg string

// Left argument kinds.
const (
	ArgNone    LeftArg = ""
	ArgVerse   LeftArg = "verse"
	ArgChapter LeftArg = "chapter"
	ArgCaller  LeftArg = "caller"
	ArgBook    LeftArg = "book"
)

// Category is a tag category flag.
type Category string

// Categories used by the checker, the repairer and the extractor.
const (
	CatParagraph    Category = "paragraph"
	CatOneLiner     Category = "one-liner"
	CatEntity       Category = "entity"
	CatQuotation    Category = "quotation"
	CatTable        Category = "table"
	CatTableContent Category = "table-content"
	CatWordLevel    Category = "word-level"
	CatChar         Category = "char"
	CatHeading      Category = "heading"
	CatIntro        Category = "intro"
	CatNote         Category = "note"
	CatNoteContent  Category = "note-content"
	CatXref         Category = "xref"
	CatXrefContent  Category = "xref-content"
	CatVerseText    Category = "verse-text"
	CatMeta         Category = "meta"
	CatBook         Category = "book"
	CatChapter      Category = "chapter"
	CatVerse        Category = "verse"
	CatFigure       Category = "figure"
	CatTitle        Category = "title"
	CatMilestone    Category = "milestone"
)

// TagDefinition describes one marker. Definitions are immutable after Load.
type TagDefinition struct {
	Name            string     `json:"tag"`
	Closing         Closing    `json:"closing"`
	ClosedBy        []string   `json:"closed-by,omitempty"`
	CloseAtEOL      bool       `json:"eol,omitempty"`
	LeftArg         LeftArg    `json:"left-arg,omitempty"`
	Attributes      bool       `json:"attrs,omitempty"`
	DefaultAttr     string     `json:"default-attr,omitempty"`
	Children        []string   `json:"children,omitempty"`
	Exclusive       [][]string `json:"exclusive,omitempty"`
	DontCloseInside []string   `json:"dont-close-inside,omitempty"`
	Categories      []Category `json:"cat,omitempty"`
	Deprecated      bool       `json:"deprecated,omitempty"`
	DeprecatedClose bool       `json:"deprecated-close,omitempty"`
	Explanation     string     `json:"explanation,omitempty"`

	cats map[Category]bool
}

// Is reports whether the tag carries category c.
func (t *TagDefinition) Is(c Category) bool {
	return t != nil && t.cats[c]
}

// AllowsChild reports whether child may be nested without a "+" prefix.
func (t *TagDefinition) AllowsChild(child string) bool {
	for _, c := range t.Children {
		if c == child {
			return true
		}
	}
	return false
}

// MayStayOpenInside reports whether the tag may be left unclosed when the
// enclosing tag closer is closed.
func (t *TagDefinition) MayStayOpenInside(closer string) bool {
	for _, p := range t.DontCloseInside {
		if p == closer {
			return true
		}
	}
	return false
}

// Registry is the loaded tag grammar.
type Registry struct {
	tags    map[string]*TagDefinition
	closers map[string]map[string]bool
}

// Default loads the grammar embedded in the binary.
func Default() (*Registry, error) {
	return Load(bytes.NewReader(defaultTags), "tags.jsonl")
}

// MustDefault is Default for initialization code and tests; it panics if the
// embedded grammar is broken.
func MustDefault() *Registry {
	reg, err := Default()
	if err != nil {
		panic(fmt.Sprintf("grammar: embedded grammar: %v", err))
	}
	return reg
}

// Load reads line-delimited JSON tag records. Malformed records and records
// without a tag are skipped with a warning; a read failure or an empty
// grammar is an error.
func Load(r io.Reader, source string) (*Registry, error) {
	reg := &Registry{tags: make(map[string]*TagDefinition)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var def TagDefinition
		if err := json.Unmarshal([]byte(line), &def); err != nil {
			logging.GrammarRecordSkipped(source, lineNo, err.Error())
			continue
		}
		if def.Name == "" {
			logging.GrammarRecordSkipped(source, lineNo, "missing tag")
			continue
		}
		switch def.Closing {
		case ClosingRequired, ClosingNever, ClosingOptional, ClosingSelf:
		case "":
			def.Closing = ClosingNever
		default:
			logging.GrammarRecordSkipped(source, lineNo, "unknown closing policy "+string(def.Closing))
			continue
		}
		def.cats = make(map[Category]bool, len(def.Categories))
		for _, c := range def.Categories {
			def.cats[c] = true
		}
		if def.CloseAtEOL {
			def.cats[CatOneLiner] = true
		}
		d := def
		reg.tags[def.Name] = &d
	}
	if err := scanner.Err(); err != nil {
		return nil, &errors.ParseError{Format: "grammar", Path: source, Line: lineNo, Message: "read failed", Err: err}
	}
	if len(reg.tags) == 0 {
		return nil, errors.NewParse("grammar", source, "no tag records")
	}

	reg.buildClosers()
	return reg, nil
}

// buildClosers expands closed-by lists, including @category groups, into
// open tag -> set of closing tags.
func (r *Registry) buildClosers() {
	r.closers = make(map[string]map[string]bool, len(r.tags))
	for name, def := range r.tags {
		set := make(map[string]bool)
		for _, entry := range def.ClosedBy {
			if cat, ok := strings.CutPrefix(entry, "@"); ok {
				for other, od := range r.tags {
					if od.cats[Category(cat)] {
						set[other] = true
					}
				}
				continue
			}
			set[entry] = true
		}
		r.closers[name] = set
	}
}

// Lookup returns the definition for name, falling back to name+"1".
func (r *Registry) Lookup(name string) (*TagDefinition, bool) {
	if def, ok := r.tags[name]; ok {
		return def, true
	}
	if def, ok := r.tags[name+"1"]; ok {
		return def, true
	}
	return nil, false
}

// IsRegistered reports whether name or name+"1" is in the grammar.
func (r *Registry) IsRegistered(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// HasExact reports whether name itself (without fallback) is in the grammar.
func (r *Registry) HasExact(name string) bool {
	_, ok := r.tags[name]
	return ok
}

// ClosesImplicitly reports whether opening newTag implicitly closes an open
// openTag. Both names are core names.
func (r *Registry) ClosesImplicitly(newTag, openTag string) bool {
	return r.closers[openTag][newTag]
}

// Names returns all registered tag names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tags))
	for n := range r.tags {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tags.
func (r *Registry) Len() int {
	return len(r.tags)
}

// Marker is a normalized marker as it appeared in the text.
type Marker struct {
	Raw              string // marker text as written, e.g. `\+bk*`
	Name             string // tag name as written, e.g. "mt" or "v1"
	Core             string // registry name it resolves to, e.g. "mt1" or "v"
	Registered       bool
	MissingSpace     bool   // a numeric argument was glued to the tag, as in \v1
	NumeralAdded     bool   // Core is Name+"1"
	MissingBackslash bool   // written with "/" or without a slash
	Plus             bool   // nested "+" prefix
	Close            bool   // trailing "*"
	Glued            string // digits split off the tag when MissingSpace
}

var markerPattern = regexp.MustCompile(`^([\\/]?)(\+?)([A-Za-z]+)(\d*)((?:-[se])?)(\*?)$`)

// Normalize resolves raw marker text against the grammar. The second return
// value is false when raw does not look like a marker at all.
func (r *Registry) Normalize(raw string) (Marker, bool) {
	m := markerPattern.FindStringSubmatch(raw)
	if m == nil {
		return Marker{Raw: raw}, false
	}
	slash, plus, letters, digits, milestone, star := m[1], m[2], m[3], m[4], m[5], m[6]
	mk := Marker{
		Raw:              raw,
		Name:             letters + digits + milestone,
		MissingBackslash: slash != `\`,
		Plus:             plus == "+",
		Close:            star == "*",
	}

	switch {
	case r.HasExact(mk.Name):
		mk.Core = mk.Name
		mk.Registered = true
	case digits != "" && milestone == "" && !mk.Close && r.takesNumber(letters):
		mk.Core = letters
		mk.Registered = true
		mk.MissingSpace = true
		mk.Glued = digits
	case digits == "" && r.HasExact(mk.Name+"1"):
		mk.Core = mk.Name + "1"
		mk.Registered = true
		mk.NumeralAdded = true
	default:
		mk.Core = mk.Name
	}
	return mk, true
}

func (r *Registry) takesNumber(name string) bool {
	def, ok := r.tags[name]
	return ok && (def.LeftArg == ArgVerse || def.LeftArg == ArgChapter)
}

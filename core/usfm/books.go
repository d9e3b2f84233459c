package usfm

import (
	"strconv"
	"strings"

	"github.com/FocuswithJustin/usfmcheck/core/ledger"
)

// bookOrder lists the USFM book ids in canonical order. Deuterocanonical and
// peripheral books follow the protestant canon.
var bookOrder = []string{
	"GEN", "EXO", "LEV", "NUM", "DEU", "JOS", "JDG", "RUT", "1SA", "2SA",
	"1KI", "2KI", "1CH", "2CH", "EZR", "NEH", "EST", "JOB", "PSA", "PRO",
	"ECC", "SNG", "ISA", "JER", "LAM", "EZK", "DAN", "HOS", "JOL", "AMO",
	"OBA", "JON", "MIC", "NAM", "HAB", "ZEP", "HAG", "ZEC", "MAL",
	"MAT", "MRK", "LUK", "JHN", "ACT", "ROM", "1CO", "2CO", "GAL", "EPH",
	"PHP", "COL", "1TH", "2TH", "1TI", "2TI", "TIT", "PHM", "HEB", "JAS",
	"1PE", "2PE", "1JN", "2JN", "3JN", "JUD", "REV",
	"TOB", "JDT", "ESG", "WIS", "SIR", "BAR", "LJE", "S3Y", "SUS", "BEL",
	"1MA", "2MA", "3MA", "4MA", "1ES", "2ES", "MAN", "PS2", "ODA", "PSS",
	"EZA", "5EZ", "6EZ", "DAG", "PS3", "2BA", "LBA", "JUB", "ENO", "1MQ",
	"2MQ", "3MQ", "REP", "4BA", "LAO",
	"FRT", "BAK", "OTH", "INT", "CNC", "GLO", "TDX", "NDX",
	"XXA", "XXB", "XXC", "XXD", "XXE", "XXF", "XXG",
}

// BookNames maps book ids of the protestant canon to English names.
var BookNames = map[string]string{
	"GEN": "Genesis", "EXO": "Exodus", "LEV": "Leviticus", "NUM": "Numbers",
	"DEU": "Deuteronomy", "JOS": "Joshua", "JDG": "Judges", "RUT": "Ruth",
	"1SA": "1 Samuel", "2SA": "2 Samuel", "1KI": "1 Kings", "2KI": "2 Kings",
	"1CH": "1 Chronicles", "2CH": "2 Chronicles", "EZR": "Ezra", "NEH": "Nehemiah",
	"EST": "Esther", "JOB": "Job", "PSA": "Psalms", "PRO": "Proverbs",
	"ECC": "Ecclesiastes", "SNG": "Song of Solomon", "ISA": "Isaiah", "JER": "Jeremiah",
	"LAM": "Lamentations", "EZK": "Ezekiel", "DAN": "Daniel", "HOS": "Hosea",
	"JOL": "Joel", "AMO": "Amos", "OBA": "Obadiah", "JON": "Jonah",
	"MIC": "Micah", "NAM": "Nahum", "HAB": "Habakkuk", "ZEP": "Zephaniah",
	"HAG": "Haggai", "ZEC": "Zechariah", "MAL": "Malachi",
	"MAT": "Matthew", "MRK": "Mark", "LUK": "Luke", "JHN": "John",
	"ACT": "Acts", "ROM": "Romans", "1CO": "1 Corinthians", "2CO": "2 Corinthians",
	"GAL": "Galatians", "EPH": "Ephesians", "PHP": "Philippians", "COL": "Colossians",
	"1TH": "1 Thessalonians", "2TH": "2 Thessalonians", "1TI": "1 Timothy", "2TI": "2 Timothy",
	"TIT": "Titus", "PHM": "Philemon", "HEB": "Hebrews", "JAS": "James",
	"1PE": "1 Peter", "2PE": "2 Peter", "1JN": "1 John", "2JN": "2 John",
	"3JN": "3 John", "JUD": "Jude", "REV": "Revelation",
}

var bookIndex = func() map[string]int {
	m := make(map[string]int, len(bookOrder))
	for i, b := range bookOrder {
		m[b] = i
	}
	return m
}()

// otherTexts are peripheral books where errors are downgraded to warnings.
var otherTexts = map[string]bool{
	"FRT": true, "BAK": true, "OTH": true, "INT": true, "CNC": true,
	"GLO": true, "TDX": true, "NDX": true,
	"XXA": true, "XXB": true, "XXC": true, "XXD": true, "XXE": true, "XXF": true, "XXG": true,
}

// KnownBook reports whether id is a USFM book id.
func KnownBook(id string) bool {
	_, ok := bookIndex[id]
	return ok
}

// IsOtherText reports whether id is front/back matter or another auxiliary
// book.
func IsOtherText(id string) bool {
	return otherTexts[id]
}

// knownOmissions are verses that many modern translations leave out.
var knownOmissions = map[string]map[int][]int{
	"MAT": {12: {47}, 17: {21}, 18: {11}, 23: {14}},
	"MRK": {7: {16}, 9: {44, 46}, 11: {26}, 15: {28}},
	"LUK": {17: {36}, 23: {17}},
	"JHN": {5: {4}},
	"ACT": {8: {37}, 15: {34}, 24: {7}, 28: {29}},
	"ROM": {16: {24}},
}

// IsKnownOmission reports whether book chapter:verse is commonly omitted.
func IsKnownOmission(book string, chapter, verse int) bool {
	for _, v := range knownOmissions[book][chapter] {
		if v == verse {
			return true
		}
	}
	return false
}

// LocationLess orders ledger locations by canonical book order, then
// chapter and verse numerically. Locations that do not start with a book id
// ("line 12") sort first, naturally.
func LocationLess(a, b string) bool {
	ba, ra := splitLocation(a)
	bb, rb := splitLocation(b)
	ia, oka := bookIndex[ba]
	ib, okb := bookIndex[bb]
	switch {
	case oka && okb && ia != ib:
		return ia < ib
	case oka != okb:
		return !oka
	case oka && okb:
		return ledger.NaturalLess(ra, rb)
	}
	return ledger.NaturalLess(a, b)
}

func splitLocation(loc string) (book, rest string) {
	book, rest, _ = strings.Cut(loc, " ")
	return book, rest
}

// downgrade applies the auxiliary book policy to a finding.
func downgrade(book string, path ledger.Path, detail string) (ledger.Path, string) {
	if !IsOtherText(book) || path.Severity() != ledger.Errors {
		return path, detail
	}
	const note = "(downgraded: auxiliary book)"
	if detail == "" {
		return path.WithSeverity(ledger.Warnings), note
	}
	return path.WithSeverity(ledger.Warnings), detail + " " + note
}

// recorder writes findings for one file, stamping locations and applying the
// auxiliary book policy.
type recorder struct {
	ledger *ledger.Ledger
}

func (r recorder) record(book string, path ledger.Path, loc, detail string, opts ...ledger.Option) {
	if r.ledger == nil {
		return
	}
	path, detail = downgrade(book, path, detail)
	r.ledger.Record(path, loc, detail, opts...)
}

func lineLocation(line int) string {
	return "line " + strconv.Itoa(line)
}

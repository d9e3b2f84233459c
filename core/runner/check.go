// Package runner checks USFM files end to end: line repairs, tokenizing,
// tree repairs, re-parse, structural checks, reference analysis and verse
// extraction.
package runner

import (
	"context"
	"time"

	"github.com/FocuswithJustin/usfmcheck/core/grammar"
	"github.com/FocuswithJustin/usfmcheck/core/ledger"
	"github.com/FocuswithJustin/usfmcheck/core/lines"
	"github.com/FocuswithJustin/usfmcheck/core/refs"
	"github.com/FocuswithJustin/usfmcheck/core/usfm"
	"github.com/FocuswithJustin/usfmcheck/internal/logging"
)

// Options configures a check.
type Options struct {
	Registry *grammar.Registry
	// Repairs lists the enabled repair categories.
	Repairs []string
	// Threshold is the implied-close propagation threshold.
	Threshold float64
	Keywords  refs.Keywords
	// Workers bounds the files checked in parallel; 0 means GOMAXPROCS.
	Workers int
}

// DefaultOptions uses the embedded grammar, no repairs, the default
// propagation threshold and English book names.
func DefaultOptions() (Options, error) {
	reg, err := grammar.Default()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Registry:  reg,
		Threshold: usfm.ImpliedCloseInfoThreshold,
		Keywords:  refs.DefaultKeywords(),
	}, nil
}

// Input is one file to check.
type Input struct {
	Name string
	Data []byte
}

// FileResult is the outcome of checking one file.
type FileResult struct {
	Name     string
	Book     string
	Document *lines.Document
	Tree     *usfm.Tree
	Findings *ledger.Ledger
	Repairs  *ledger.Ledger
	Extract  *usfm.Extraction
	Duration time.Duration
}

// Repaired reports whether any repair changed the file.
func (r *FileResult) Repaired() bool {
	return len(r.Document.ChangedLines()) > 0
}

// Text returns the file text, repaired when revised is set.
func (r *FileResult) Text(revised bool) string {
	return r.Document.Text(revised)
}

// NewLedger returns a ledger that orders locations canonically.
func NewLedger() *ledger.Ledger {
	return ledger.New(ledger.WithLocationOrder(usfm.LocationLess))
}

// CheckFile runs the whole pipeline over one file. A round-trip self-check
// failure is returned as an *errors.InternalError together with the
// complete result; every other problem with the file is a finding.
func CheckFile(ctx context.Context, in Input, opts Options) (*FileResult, error) {
	start := time.Now()
	res := &FileResult{
		Name:     in.Name,
		Document: lines.New(in.Name, string(in.Data)),
		Findings: NewLedger(),
		Repairs:  NewLedger(),
	}

	repairer, err := usfm.NewRepairer(opts.Registry, res.Repairs, opts.Repairs...)
	if err != nil {
		return nil, err
	}
	if repairer.Any() {
		repairer.RepairLines(res.Document)
		draft := usfm.Parse(res.Document, opts.Registry, nil)
		repairer.RepairTree(draft, res.Document)
	}

	res.Tree = usfm.Parse(res.Document, opts.Registry, res.Findings)
	res.Book = res.Tree.Book()
	rtErr := res.Tree.VerifyRoundTrip()

	usfm.Check(res.Tree, opts.Registry, res.Findings)
	if opts.Keywords.Books != nil {
		refs.NewAnalyzer(opts.Keywords, res.Findings).Analyze(res.Tree)
	}
	res.Extract = usfm.Extract(res.Tree, res.Findings)

	res.Duration = time.Since(start)
	logging.FileChecked(ctx, in.Name, res.Book, res.Findings.Total(), res.Duration,
		"repairs", res.Repairs.Len(), "verses", res.Extract.Len())
	return res, rtErr
}

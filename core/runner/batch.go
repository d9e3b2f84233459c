package runner

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/usfmcheck/core/ledger"
	"github.com/FocuswithJustin/usfmcheck/core/usfm"
	"github.com/FocuswithJustin/usfmcheck/internal/logging"
	"github.com/FocuswithJustin/usfmcheck/internal/workerpool"
)

// Run is the outcome of checking a set of files.
type Run struct {
	ID       string
	Started  time.Time
	Duration time.Duration

	// Files are in input order.
	Files    []*FileResult
	Findings *ledger.Ledger
	Repairs  *ledger.Ledger
	Extract  *usfm.Extraction
	// Propagated counts tags whose implied closes were re-reported as Info.
	Propagated int
	// Internal holds round-trip self-check failures. They are kept out of
	// the findings.
	Internal []error
}

type fileOutcome struct {
	res *FileResult
	err error
}

// CheckFiles checks inputs in parallel. Each file gets its own document,
// tree and ledgers; the ledgers are merged in input order once every file is
// done, and the implied-close propagation pass runs over the merged ledger.
func CheckFiles(ctx context.Context, inputs []Input, opts Options) (*Run, error) {
	// Reject bad repair names before any work starts.
	if _, err := usfm.NewRepairer(opts.Registry, nil, opts.Repairs...); err != nil {
		return nil, err
	}

	run := &Run{
		ID:       uuid.NewString(),
		Started:  time.Now(),
		Findings: NewLedger(),
		Repairs:  NewLedger(),
	}
	ctx = logging.WithRunID(ctx, run.ID)

	outcomes := workerpool.Map(ctx, opts.Workers, inputs, func(ctx context.Context, in Input) fileOutcome {
		res, err := CheckFile(ctx, in, opts)
		return fileOutcome{res: res, err: err}
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var extracts []*usfm.Extraction
	for _, o := range outcomes {
		if o.err != nil {
			run.Internal = append(run.Internal, o.err)
		}
		if o.res == nil {
			continue
		}
		run.Files = append(run.Files, o.res)
		run.Findings.Merge(o.res.Findings)
		run.Repairs.Merge(o.res.Repairs)
		extracts = append(extracts, o.res.Extract)
	}
	run.Extract = usfm.MergeExtractions(extracts...)
	run.Propagated = usfm.PropagateImpliedCloseTags(run.Findings, opts.Threshold)
	run.Duration = time.Since(run.Started)

	logging.InfoContext(ctx, "run_complete",
		"files", len(run.Files),
		"findings", run.Findings.Total(),
		"repairs", run.Repairs.Len(),
		"internal_errors", len(run.Internal),
		"duration_ms", run.Duration.Milliseconds(),
	)
	return run, nil
}

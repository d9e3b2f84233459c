package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/FocuswithJustin/usfmcheck/core/cas"
	"github.com/FocuswithJustin/usfmcheck/core/errors"
	"github.com/FocuswithJustin/usfmcheck/core/ledger"
	"github.com/FocuswithJustin/usfmcheck/core/runner"
	"github.com/FocuswithJustin/usfmcheck/core/usfm"
	"github.com/FocuswithJustin/usfmcheck/core/versify"
	"github.com/FocuswithJustin/usfmcheck/internal/archive"
	"github.com/FocuswithJustin/usfmcheck/internal/config"
	"github.com/FocuswithJustin/usfmcheck/internal/logging"
	"github.com/FocuswithJustin/usfmcheck/internal/report"
	"github.com/FocuswithJustin/usfmcheck/internal/store"
	"github.com/FocuswithJustin/usfmcheck/internal/validation"
)

// CheckCmd checks a set of USFM files as one project.
type CheckCmd struct {
	Paths []string `arg:"" help:"USFM files, directories, or .tar.gz/.tar.xz bundles" type:"path"`

	Config    string   `help:"YAML document configuration" type:"existingfile"`
	Grammar   string   `help:"Replacement tag grammar (JSON Lines)" type:"existingfile"`
	Repairs   []string `help:"Repair categories to enable, or 'all'" sep:","`
	Threshold *float64 `help:"Implied-close propagation threshold"`
	Workers   int      `help:"Files checked in parallel (0 = GOMAXPROCS)"`

	Format string `help:"Report format" default:"text" enum:"text,json"`
	Report string `help:"Write the report here instead of stdout" type:"path"`
	Diff   bool   `help:"Print a unified diff of every repaired file"`
	Output string `name:"write-repaired" help:"Directory for repaired files" type:"path"`
	Bundle string `help:"Write repaired files into a .tar.gz or .tar.xz bundle" type:"path"`

	Extract       string `help:"Write verse extracts as JSON Lines (.xz compresses)" type:"path"`
	Versification string `help:"Versification mapping table for --corpus" type:"existingfile"`
	Corpus        string `help:"Write <prefix>.txt and <prefix>.vref parallel corpus files" type:"path"`

	Store  string `help:"Keep inputs, outputs and findings in this project store" type:"path"`
	FailOn string `name:"fail-on" help:"Exit non-zero when findings of this severity or worse exist" default:"none" enum:"none,severe,errors,warnings"`
}

// Run runs the check.
func (c *CheckCmd) Run() error {
	ctx := context.Background()

	cfg := config.Default()
	if c.Config != "" {
		var err error
		if cfg, err = config.Load(c.Config); err != nil {
			return err
		}
	}
	opts, err := c.options(cfg)
	if err != nil {
		return err
	}

	inputs, err := runner.Collect(c.Paths)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return errors.NewNotFound("USFM files", strings.Join(c.Paths, ", "))
	}

	run, err := runner.CheckFiles(ctx, inputs, opts)
	if err != nil {
		return err
	}
	for _, ierr := range run.Internal {
		logging.ErrorContext(logging.WithRunID(ctx, run.ID), "internal_error", "error", ierr)
	}

	var plain bytes.Buffer
	if err := c.writeReport(&plain, run, false); err != nil {
		return err
	}
	if err := c.emitReport(run); err != nil {
		return err
	}
	if err := c.writeOutputs(run); err != nil {
		return err
	}
	if c.Store != "" {
		if err := c.keep(ctx, run, inputs, plain.Bytes()); err != nil {
			return err
		}
	}
	return c.failure(run.Findings)
}

func (c *CheckCmd) options(cfg *config.Config) (runner.Options, error) {
	grammarPath := c.Grammar
	if grammarPath == "" {
		grammarPath = cfg.Grammar
	}
	reg, err := loadGrammar(grammarPath)
	if err != nil {
		return runner.Options{}, err
	}
	if len(c.Repairs) > 0 {
		cfg.Repairs = c.Repairs
	}
	if c.Threshold != nil {
		cfg.ImpliedCloseThreshold = c.Threshold
	}
	if c.Workers > 0 {
		cfg.Workers = c.Workers
	}
	if c.Versification == "" {
		c.Versification = cfg.Versification
	}
	if err := cfg.Validate(); err != nil {
		return runner.Options{}, err
	}
	return runner.Options{
		Registry:  reg,
		Repairs:   cfg.RepairCategories(),
		Threshold: cfg.Threshold(),
		Keywords:  cfg.ReferenceKeywords(),
		Workers:   cfg.Workers,
	}, nil
}

func (c *CheckCmd) emitReport(run *runner.Run) error {
	if c.Report == "" {
		return c.writeReport(os.Stdout, run, true)
	}
	f, err := os.Create(c.Report)
	if err != nil {
		return errors.NewIO("create", c.Report, err)
	}
	if err := c.writeReport(f, run, false); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c *CheckCmd) writeReport(w io.Writer, run *runner.Run, styled bool) error {
	if c.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			RunID    string         `json:"run_id"`
			Files    int            `json:"files"`
			Summary  map[string]int `json:"summary"`
			Findings []*ledger.Node `json:"findings"`
			Repairs  []*ledger.Node `json:"repairs,omitempty"`
			Internal []string       `json:"internal_errors,omitempty"`
		}{
			RunID:    run.ID,
			Files:    len(run.Files),
			Summary:  run.Findings.Summary(),
			Findings: run.Findings.Report(nil),
			Repairs:  run.Repairs.Report(nil),
			Internal: errorStrings(run.Internal),
		})
	}

	var st *report.Styles
	if styled {
		st = report.NewStyles(w)
	} else {
		st = report.NewStyles(io.Discard)
	}
	fmt.Fprintf(w, "Checked %d files\n", len(run.Files))
	if err := report.WriteSummary(w, run.Findings); err != nil {
		return err
	}
	if err := report.WriteText(w, run.Findings, nil, st); err != nil {
		return err
	}
	if run.Repairs.Len() > 0 {
		if err := report.WriteText(w, run.Repairs, nil, st); err != nil {
			return err
		}
	}
	if !c.Diff {
		return nil
	}
	for _, f := range run.Files {
		d, err := report.Diff(f.Name, f.Text(false), f.Text(true), 0)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, d); err != nil {
			return err
		}
	}
	return nil
}

func errorStrings(errs []error) []string {
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}

func (c *CheckCmd) writeOutputs(run *runner.Run) error {
	if c.Output != "" || c.Bundle != "" {
		files, err := repairedFiles(run)
		if err != nil {
			return err
		}
		if c.Output != "" {
			if err := os.MkdirAll(c.Output, 0o755); err != nil {
				return errors.NewIO("mkdir", c.Output, err)
			}
			for _, f := range files {
				p := filepath.Join(c.Output, f.Name)
				if err := os.WriteFile(p, f.Data, 0o644); err != nil {
					return errors.NewIO("write", p, err)
				}
			}
		}
		if c.Bundle != "" {
			if err := archive.WriteBundle(c.Bundle, "", files); err != nil {
				return err
			}
		}
	}

	if c.Extract != "" {
		if err := report.WriteExtract(c.Extract, run.Extract); err != nil {
			return err
		}
	}
	if c.Corpus != "" {
		if err := c.writeCorpus(run.Extract); err != nil {
			return err
		}
	}
	return nil
}

// repairedFiles names every checked file by its flattened base name.
func repairedFiles(run *runner.Run) ([]archive.File, error) {
	files := make([]archive.File, 0, len(run.Files))
	for _, f := range run.Files {
		name := f.Name
		if i := strings.LastIndex(name, ":"); i >= 0 {
			name = name[i+1:]
		}
		name, err := validation.SanitizeFilename(filepath.Base(name))
		if err != nil {
			return nil, errors.NewValidation("file name", err.Error())
		}
		files = append(files, archive.File{Name: name, Data: []byte(f.Text(true))})
	}
	return files, nil
}

func (c *CheckCmd) writeCorpus(x *usfm.Extraction) error {
	var m versify.Mapper = versify.IdentityMapper{}
	if c.Versification != "" {
		f, err := os.Open(c.Versification)
		if err != nil {
			return errors.NewIO("open", c.Versification, err)
		}
		table, err := versify.ParseMappingTable(f, c.Versification)
		f.Close()
		if err != nil {
			return err
		}
		m = table
	}

	text, err := os.Create(c.Corpus + ".txt")
	if err != nil {
		return errors.NewIO("create", c.Corpus+".txt", err)
	}
	defer text.Close()
	vref, err := os.Create(c.Corpus + ".vref")
	if err != nil {
		return errors.NewIO("create", c.Corpus+".vref", err)
	}
	defer vref.Close()
	return versify.WriteCorpus(text, vref, x, m)
}

// keep records the run in the project store: every input and repaired file
// and the report go to the blob store under one manifest, the findings and
// verses go to the run database.
func (c *CheckCmd) keep(ctx context.Context, run *runner.Run, inputs []runner.Input, plainReport []byte) error {
	blobs, err := cas.Open(c.Store)
	if err != nil {
		return err
	}
	m := &cas.Manifest{RunID: run.ID, Created: run.Started}
	hashes := make(map[string]string, len(inputs))
	for _, in := range inputs {
		e, err := m.Add(blobs, in.Name, cas.RoleInput, in.Data)
		if err != nil {
			return err
		}
		hashes[in.Name] = e.SHA256
	}
	for _, f := range run.Files {
		if !f.Repaired() {
			continue
		}
		if _, err := m.Add(blobs, f.Name, cas.RoleRepaired, []byte(f.Text(true))); err != nil {
			return err
		}
	}
	if _, err := m.Add(blobs, "report.txt", cas.RoleReport, plainReport); err != nil {
		return err
	}
	var extract bytes.Buffer
	if err := run.Extract.WriteJSONL(&extract); err != nil {
		return err
	}
	if _, err := m.Add(blobs, "verses.jsonl", cas.RoleExtract, extract.Bytes()); err != nil {
		return err
	}
	if _, err := blobs.WriteManifest(m); err != nil {
		return err
	}

	db, err := store.Open(ctx, filepath.Join(c.Store, "runs.db"))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.SaveRun(ctx, run, hashes); err != nil {
		return err
	}
	logging.InfoContext(logging.WithRunID(ctx, run.ID), "run_kept", "store", c.Store, "entries", len(m.Entries))
	return nil
}

// failure turns --fail-on into an error.
func (c *CheckCmd) failure(l *ledger.Ledger) error {
	var sevs []string
	switch c.FailOn {
	case "severe":
		sevs = []string{ledger.SevereErrors}
	case "errors":
		sevs = []string{ledger.SevereErrors, ledger.Errors, ledger.AutoRepairable, ledger.ModerateErrors}
	case "warnings":
		sevs = []string{ledger.SevereErrors, ledger.Errors, ledger.AutoRepairable, ledger.ModerateErrors, ledger.Warnings}
	}
	for _, sev := range sevs {
		if n := l.Count(ledger.P(sev)); n > 0 {
			return fmt.Errorf("%d findings under %s", n, sev)
		}
	}
	return nil
}

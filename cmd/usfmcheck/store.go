package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/FocuswithJustin/usfmcheck/core/cas"
	"github.com/FocuswithJustin/usfmcheck/core/ledger"
	"github.com/FocuswithJustin/usfmcheck/core/refs"
	"github.com/FocuswithJustin/usfmcheck/core/usfm"
	"github.com/FocuswithJustin/usfmcheck/internal/store"
)

// StoreGroup queries a project store written by check --store.
type StoreGroup struct {
	Runs     StoreRunsCmd     `cmd:"" help:"List stored runs"`
	Findings StoreFindingsCmd `cmd:"" help:"List the findings of a run"`
	Verse    StoreVerseCmd    `cmd:"" help:"Print the stored text of a verse"`
	Manifest StoreManifestCmd `cmd:"" help:"List the files kept for a run"`
	Cat      StoreCatCmd      `cmd:"" help:"Print a stored blob"`
}

// StoreFlags locates the project store.
type StoreFlags struct {
	Dir string `help:"Project store directory" type:"existingdir" required:""`
}

func (f StoreFlags) open(ctx context.Context) (*store.Store, error) {
	return store.Open(ctx, filepath.Join(f.Dir, "runs.db"))
}

// StoreRunsCmd lists runs.
type StoreRunsCmd struct {
	StoreFlags `embed:""`
}

func (c *StoreRunsCmd) Run() error {
	ctx := context.Background()
	db, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	runs, err := db.Runs(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tFILES\tFINDINGS\tREPAIRS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", r.ID, r.Started.Local().Format(time.DateTime), r.Files, r.Findings, r.Repairs)
	}
	return tw.Flush()
}

// StoreFindingsCmd prints stored records.
type StoreFindingsCmd struct {
	StoreFlags `embed:""`

	RunID   string `arg:"" help:"Run id"`
	Prefix  string `help:"Category prefix, elements joined by ' > '"`
	Repairs bool   `help:"List repairs instead of findings"`
}

func (c *StoreFindingsCmd) Run() error {
	ctx := context.Background()
	db, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	var prefix ledger.Path
	if c.Prefix != "" {
		prefix = ledger.P(strings.Split(c.Prefix, " > ")...)
	}
	name := store.LedgerFindings
	if c.Repairs {
		name = store.LedgerRepairs
	}
	recs, err := db.Records(ctx, c.RunID, name, prefix)
	if err != nil {
		return err
	}
	for _, r := range recs {
		line := r.Path.String() + "\t" + r.Location
		if r.Detail != "" {
			line += "\t" + r.Detail
		}
		fmt.Println(line)
	}
	return nil
}

// StoreVerseCmd prints one verse, e.g. "GEN 1:1".
type StoreVerseCmd struct {
	StoreFlags `embed:""`

	RunID string `arg:"" help:"Run id"`
	Ref   string `arg:"" help:"Verse reference such as 'GEN 1:1'"`
}

func (c *StoreVerseCmd) Run() error {
	ref, err := refs.DefaultKeywords().Parse(c.Ref)
	if err != nil {
		return err
	}
	ctx := context.Background()
	db, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	verse := fmt.Sprint(ref.Verse)
	if ref.VerseEnd > ref.Verse {
		verse += fmt.Sprintf("-%d", ref.VerseEnd)
	}
	text, err := db.Verse(ctx, c.RunID, usfm.VerseKey{Book: ref.Book, Chapter: ref.Chapter, Verse: verse})
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

// StoreManifestCmd lists the blobs kept for a run.
type StoreManifestCmd struct {
	StoreFlags `embed:""`

	RunID string `arg:"" help:"Run id"`
}

func (c *StoreManifestCmd) Run() error {
	blobs, err := cas.Open(c.Dir)
	if err != nil {
		return err
	}
	m, err := blobs.ReadManifest(c.RunID)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLE\tNAME\tSIZE\tSHA256")
	for _, e := range m.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", e.Role, e.Name, e.Size, e.SHA256)
	}
	return tw.Flush()
}

// StoreCatCmd writes a blob to stdout. The digest may be SHA-256 or BLAKE3.
type StoreCatCmd struct {
	StoreFlags `embed:""`

	Digest string `arg:"" help:"SHA-256 or BLAKE3 hex digest"`
}

func (c *StoreCatCmd) Run() error {
	blobs, err := cas.Open(c.Dir)
	if err != nil {
		return err
	}
	var data []byte
	if blobs.Has(c.Digest) {
		data, err = blobs.Get(c.Digest)
	} else {
		data, err = blobs.GetByBlake3(c.Digest)
	}
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

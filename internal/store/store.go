// Package store keeps check runs in a SQLite database: the run itself, the
// files it checked, every finding and repair, and the extracted verse text.
//
// The pure Go driver (modernc.org/sqlite) is used by default. Building with
// -tags cgo_sqlite switches to mattn/go-sqlite3.
package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/FocuswithJustin/usfmcheck/core/errors"
	"github.com/FocuswithJustin/usfmcheck/core/ledger"
	"github.com/FocuswithJustin/usfmcheck/core/runner"
	"github.com/FocuswithJustin/usfmcheck/core/usfm"
	"github.com/FocuswithJustin/usfmcheck/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started     TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	files       INTEGER NOT NULL,
	findings    INTEGER NOT NULL,
	repairs     INTEGER NOT NULL,
	propagated  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS files (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	name     TEXT NOT NULL,
	book     TEXT NOT NULL,
	sha256   TEXT NOT NULL,
	findings INTEGER NOT NULL,
	repaired INTEGER NOT NULL,
	PRIMARY KEY (run_id, name)
);
CREATE TABLE IF NOT EXISTS findings (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	ledger   TEXT NOT NULL,
	seq      INTEGER NOT NULL,
	severity TEXT NOT NULL,
	path     TEXT NOT NULL,
	location TEXT NOT NULL,
	detail   TEXT NOT NULL,
	PRIMARY KEY (run_id, ledger, seq)
);
CREATE INDEX IF NOT EXISTS findings_path ON findings (run_id, path);
CREATE TABLE IF NOT EXISTS verses (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	book       TEXT NOT NULL,
	chapter    INTEGER NOT NULL,
	verse      TEXT NOT NULL,
	text       TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line   INTEGER NOT NULL,
	PRIMARY KEY (run_id, book, chapter, verse)
);
`

// Ledger names in the findings table.
const (
	LedgerFindings = "findings"
	LedgerRepairs  = "repairs"
)

// pathSep joins category path elements in the path column.
const pathSep = " > "

// Store is an open run database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.NewIO("open", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.NewIO("migrate", path, err)
	}
	logging.Debug("store_opened", "path", path, "driver", driverType)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun writes a run in one transaction. hashes maps file names to the
// SHA-256 of their input; missing names are stored with an empty digest.
func (s *Store) SaveRun(ctx context.Context, run *runner.Run, hashes map[string]string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started, duration_ms, files, findings, repairs, propagated) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Started.UTC().Format(time.RFC3339Nano), run.Duration.Milliseconds(),
		len(run.Files), run.Findings.Total(), run.Repairs.Len(), run.Propagated)
	if err != nil {
		return errors.Wrapf(err, "insert run %s", run.ID)
	}

	for _, f := range run.Files {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO files (run_id, name, book, sha256, findings, repaired) VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, f.Name, f.Book, hashes[f.Name], f.Findings.Total(), f.Repaired())
		if err != nil {
			return errors.Wrapf(err, "insert file %s", f.Name)
		}
	}

	if err = insertLedger(ctx, tx, run.ID, LedgerFindings, run.Findings); err != nil {
		return err
	}
	if err = insertLedger(ctx, tx, run.ID, LedgerRepairs, run.Repairs); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO verses (run_id, book, chapter, verse, text, start_line, end_line) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare verses")
	}
	defer stmt.Close()
	for _, v := range run.Extract.Verses() {
		if _, err = stmt.ExecContext(ctx, run.ID, v.Key.Book, v.Key.Chapter, v.Key.Verse, v.Text,
			v.Lines.StartLine, v.Lines.EndLine); err != nil {
			return errors.Wrapf(err, "insert verse %s", v.Key)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	logging.InfoContext(ctx, "run_stored", "run_id", run.ID, "files", len(run.Files))
	return nil
}

// Silent bookkeeping is not stored.
func insertLedger(ctx context.Context, tx *sql.Tx, runID, name string, l *ledger.Ledger) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO findings (run_id, ledger, seq, severity, path, location, detail) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare findings")
	}
	defer stmt.Close()
	for i, rec := range l.Records() {
		if rec.Path.Severity() == ledger.Silent {
			continue
		}
		if _, err := stmt.ExecContext(ctx, runID, name, i, rec.Path.Severity(),
			strings.Join(rec.Path, pathSep), rec.Location, rec.Detail); err != nil {
			return errors.Wrapf(err, "insert %s record %d", name, i)
		}
	}
	return nil
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	ID         string
	Started    time.Time
	Duration   time.Duration
	Files      int
	Findings   int
	Repairs    int
	Propagated int
}

// Runs lists stored runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started, duration_ms, files, findings, repairs, propagated FROM runs ORDER BY started DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r       RunSummary
			started string
			ms      int64
		)
		if err := rows.Scan(&r.ID, &started, &ms, &r.Files, &r.Findings, &r.Repairs, &r.Propagated); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		if r.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, errors.NewParse("timestamp", r.ID, err.Error())
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// Records returns the stored records of one ledger of a run whose category
// path starts with prefix, in recording order.
func (s *Store) Records(ctx context.Context, runID, ledgerName string, prefix ledger.Path) ([]ledger.Record, error) {
	pattern := strings.Join(prefix, pathSep)
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, location, detail FROM findings
		 WHERE run_id = ? AND ledger = ? AND (? = '' OR path = ? OR substr(path, 1, length(?) + 3) = ? || ' > ')
		 ORDER BY seq`,
		runID, ledgerName, pattern, pattern, pattern, pattern)
	if err != nil {
		return nil, errors.Wrap(err, "query findings")
	}
	defer rows.Close()

	var out []ledger.Record
	for rows.Next() {
		var path string
		var rec ledger.Record
		if err := rows.Scan(&path, &rec.Location, &rec.Detail); err != nil {
			return nil, errors.Wrap(err, "scan finding")
		}
		rec.Path = ledger.P(strings.Split(path, pathSep)...)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Severities counts a run's findings per top-level category.
func (s *Store) Severities(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT severity, COUNT(*) FROM findings WHERE run_id = ? AND ledger = ? GROUP BY severity`,
		runID, LedgerFindings)
	if err != nil {
		return nil, errors.Wrap(err, "query severities")
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var sev string
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, errors.Wrap(err, "scan severity")
		}
		out[sev] = n
	}
	return out, rows.Err()
}

// Verse returns the stored text of one verse.
func (s *Store) Verse(ctx context.Context, runID string, key usfm.VerseKey) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT text FROM verses WHERE run_id = ? AND book = ? AND chapter = ? AND verse = ?`,
		runID, key.Book, key.Chapter, key.Verse).Scan(&text)
	if err == sql.ErrNoRows {
		return "", errors.NewNotFound("verse", runID+" "+key.String())
	}
	if err != nil {
		return "", errors.Wrap(err, "query verse")
	}
	return text, nil
}

// DeleteRun removes a run and everything recorded for it.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return errors.Wrapf(err, "delete run %s", runID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound("run", runID)
	}
	return nil
}

// Driver names the SQLite implementation compiled in.
func Driver() string { return driverType }

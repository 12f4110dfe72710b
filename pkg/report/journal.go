package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run is one journaled validation or upload.
type Run struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	Kind          string    `json:"kind"` // validate | convert | upload | export
	Source        string    `json:"source"`
	Format        string    `json:"format"`
	Success       bool      `json:"success"`
	Entities      int       `json:"entities"`
	Relationships int       `json:"relationships"`
	Skipped       int       `json:"skipped"`
	Issues        int       `json:"issues"`
	Message       string    `json:"message,omitempty"`
}

// Journal is the run-history store. One file per installation; safe for
// sequential CLI use.
type Journal struct {
	db *sql.DB
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	started_at    TEXT NOT NULL,
	kind          TEXT NOT NULL,
	source        TEXT NOT NULL,
	format        TEXT NOT NULL,
	success       INTEGER NOT NULL,
	entities      INTEGER NOT NULL,
	relationships INTEGER NOT NULL,
	skipped       INTEGER NOT NULL,
	issues        INTEGER NOT NULL,
	message       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at DESC);
`

// OpenJournal opens or creates the journal at path.
func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(journalSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record inserts a run, assigning its ID and start time when unset, and
// returns the stored run.
func (j *Journal) Record(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, kind, source, format, success, entities, relationships, skipped, issues, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.Format(time.RFC3339Nano), run.Kind, run.Source, run.Format,
		boolToInt(run.Success), run.Entities, run.Relationships, run.Skipped, run.Issues, run.Message)
	if err != nil {
		return Run{}, fmt.Errorf("record run: %w", err)
	}
	return run, nil
}

// Recent returns the most recent runs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, started_at, kind, source, format, success, entities, relationships, skipped, issues, message
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started string
		var success int
		if err := rows.Scan(&run.ID, &started, &run.Kind, &run.Source, &run.Format,
			&success, &run.Entities, &run.Relationships, &run.Skipped, &run.Issues, &run.Message); err != nil {
			return nil, err
		}
		run.Success = success != 0
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("journal row %s: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close releases the underlying database.
func (j *Journal) Close() error { return j.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

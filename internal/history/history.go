// Package history is a purely observational SQLite ledger of past runs.
// Grounded on an upsert-over-a-transaction shape and a modernc.org/sqlite
// + database/sql pairing, but repurposed entirely from a resume-state
// schema that persists chunk offsets so a paused download can resume
// without re-probing the file — sidecar resume state of that kind is out
// of scope here. This ledger instead records only what finished, never
// what to resume — deleting the database changes nothing about whether a
// future run considers a file complete (plan.isAlreadyComplete only ever
// looks at the file on disk).
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one completed (or failed) run, as shown by "hfd history".
type Entry struct {
	RepoID          string
	CompletedAt     time.Time
	FilesTotal      int
	FilesDownloaded int
	FilesFailed     int
	BytesTotal      int64
	ElapsedMs       int64
}

// Ledger wraps one SQLite-backed history database.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if absent) the history database at path and ensures
// its schema exists.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating history db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	l := &Ledger{db: db}
	if err := l.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) ensureSchema() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			repo_id          TEXT NOT NULL,
			completed_at     INTEGER NOT NULL,
			files_total      INTEGER NOT NULL,
			files_downloaded INTEGER NOT NULL,
			files_failed     INTEGER NOT NULL,
			bytes_total      INTEGER NOT NULL,
			elapsed_ms       INTEGER NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database.
func (l *Ledger) Close() error { return l.db.Close() }

// Record appends one run to the ledger, inside its own transaction so a
// crash mid-write never leaves a half-written row.
func (l *Ledger) Record(e Entry) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("starting history tx: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO runs (repo_id, completed_at, files_total, files_downloaded, files_failed, bytes_total, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.RepoID, e.CompletedAt.Unix(), e.FilesTotal, e.FilesDownloaded, e.FilesFailed, e.BytesTotal, e.ElapsedMs)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("recording run: %w", err)
	}
	return tx.Commit()
}

// Recent returns up to limit most recent runs, newest first.
func (l *Ledger) Recent(limit int) ([]Entry, error) {
	rows, err := l.db.Query(`
		SELECT repo_id, completed_at, files_total, files_downloaded, files_failed, bytes_total, elapsed_ms
		FROM runs ORDER BY completed_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var completedAt int64
		if err := rows.Scan(&e.RepoID, &completedAt, &e.FilesTotal, &e.FilesDownloaded, &e.FilesFailed, &e.BytesTotal, &e.ElapsedMs); err != nil {
			return nil, err
		}
		e.CompletedAt = time.Unix(completedAt, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RemoveRepo deletes every ledger row for repoID ("hfd history rm").
func (l *Ledger) RemoveRepo(repoID string) (int64, error) {
	res, err := l.db.Exec(`DELETE FROM runs WHERE repo_id = ?`, repoID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

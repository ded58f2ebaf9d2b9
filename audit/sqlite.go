/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	created_at TEXT NOT NULL,
	repo TEXT NOT NULL,
	pr INTEGER NOT NULL,
	head_branch TEXT,
	base_branch TEXT,
	head_sha TEXT,
	path TEXT,
	old_code BLOB,
	changes TEXT,
	updated_code BLOB,
	failed INTEGER NOT NULL DEFAULT 0,
	attempt INTEGER NOT NULL DEFAULT 0,
	command TEXT,
	exit_code INTEGER NOT NULL DEFAULT 0,
	message TEXT,
	error_kind TEXT
);
CREATE INDEX IF NOT EXISTS idx_entries_pr ON entries(repo, pr);
CREATE INDEX IF NOT EXISTS idx_entries_run ON entries(run_id);
`

// Code bodies are stored zstd-compressed.
var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

// SQLiteStore keeps the audit trail in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Sink = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	// One writer at a time; concurrent runs share the store.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func compress(s string) []byte {
	if s == "" {
		return nil
	}
	return encoder.EncodeAll([]byte(s), nil)
}

func decompress(b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	out, err := decoder.DecodeAll(b, nil)
	if err != nil {
		return "", fmt.Errorf("decompressing code: %w", err)
	}
	return string(out), nil
}

// Write appends e.
func (s *SQLiteStore) Write(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (run_id, kind, created_at, repo, pr, head_branch, base_branch, head_sha, path,
			old_code, changes, updated_code, failed, attempt, command, exit_code, message, error_kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, string(e.Kind), e.Time.UTC().Format(time.RFC3339Nano), e.Repo, e.PR,
		e.HeadBranch, e.BaseBranch, e.HeadSHA, e.Path,
		compress(e.OldCode), e.Changes, compress(e.UpdatedCode), e.Failed,
		e.Attempt, e.Command, e.ExitCode, e.Message, e.ErrorKind,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// History returns every entry for repo and pr, oldest first.
func (s *SQLiteStore) History(ctx context.Context, repo string, pr int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, kind, created_at, repo, pr, head_branch, base_branch, head_sha, path,
			old_code, changes, updated_code, failed, attempt, command, exit_code, message, error_kind
		FROM entries WHERE repo = ? AND pr = ? ORDER BY id`, repo, pr)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                Entry
			kind, created    string
			oldCode, newCode []byte
			headBranch, base sql.NullString
			sha, path, cmd   sql.NullString
			changes, msg, ek sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.RunID, &kind, &created, &e.Repo, &e.PR, &headBranch, &base, &sha, &path,
			&oldCode, &changes, &newCode, &e.Failed, &e.Attempt, &cmd, &e.ExitCode, &msg, &ek); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.Kind = Kind(kind)
		if e.Time, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		e.HeadBranch, e.BaseBranch, e.HeadSHA, e.Path = headBranch.String, base.String, sha.String, path.String
		e.Changes, e.Command, e.Message, e.ErrorKind = changes.String, cmd.String, msg.String, ek.String
		if e.OldCode, err = decompress(oldCode); err != nil {
			return nil, err
		}
		if e.UpdatedCode, err = decompress(newCode); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ProcessedFiles returns the distinct paths regenerated for repo and pr.
func (s *SQLiteStore) ProcessedFiles(ctx context.Context, repo string, pr int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT path FROM entries
		WHERE repo = ? AND pr = ? AND kind = ? ORDER BY path`, repo, pr, string(KindFeedback))
	if err != nil {
		return nil, fmt.Errorf("querying processed files: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning path: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ProcessedAt reports whether a run over repo and pr at head sha finished
// without error.
func (s *SQLiteStore) ProcessedAt(ctx context.Context, repo string, pr int, sha string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM entries
		WHERE repo = ? AND pr = ? AND head_sha = ? AND kind = ? AND (error_kind IS NULL OR error_kind = '')`,
		repo, pr, sha, string(KindRunFinished)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying processed runs: %w", err)
	}
	return n > 0, nil
}

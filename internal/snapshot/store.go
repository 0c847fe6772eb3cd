// Package snapshot maintains the persisted file baseline that change
// detection is answered against.
package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // sqlite driver for database/sql
)

// FileState is the recorded baseline for one tracked file. Path is the
// project-relative slash path; ModTime is normalized to UTC at second
// precision.
type FileState struct {
	Path    string
	Hash    string
	Size    int64
	ModTime time.Time
}

// SnapshotInfo is the stored metadata of one snapshot run.
type SnapshotInfo struct {
	ID          string
	Root        string
	CommitHash  string
	FileCount   int
	TotalBytes  int64
	StartedAt   time.Time
	CompletedAt time.Time
}

// Store wraps the sqlite baseline database.
type Store struct {
	db *sql.DB
}

// DBPath returns the snapshot database location for a project root.
func DBPath(root string) string {
	return filepath.Join(root, ".typesmith", "index", "snapshot.db")
}

// Key converts a path (absolute or root-relative) to its baseline key:
// the slash-normalized path relative to root.
func Key(root, path string) string {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return filepath.ToSlash(filepath.Clean(path))
	}
	return filepath.ToSlash(rel)
}

// Open opens the sqlite database at the given path and applies pragmas.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(context.Background(), p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %s: %w", p, err)
		}
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// migrations is the ordered list of schema migrations, applied from
// version 0. Never modify existing migrations, only add new ones.
var migrations = []func(*sql.Tx) error{
	migrateV0,
}

func migrateV0(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS files (
            path TEXT PRIMARY KEY,
            hash TEXT NOT NULL,
            size INTEGER NOT NULL,
            mod_time TEXT NOT NULL,
            snapshot_id TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS snapshots (
            id TEXT PRIMARY KEY,
            root TEXT NOT NULL,
            commit_hash TEXT DEFAULT '',
            file_count INTEGER NOT NULL,
            total_bytes INTEGER NOT NULL,
            started_at TEXT NOT NULL,
            completed_at TEXT NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_files_snapshot ON files(snapshot_id);`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(context.Background(), stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

func ensureSchema(db *sql.DB) error {
	if _, err := db.ExecContext(context.Background(), schemaVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.QueryRowContext(context.Background(), "SELECT COALESCE(MAX(version), -1) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	for i := currentVersion + 1; i < len(migrations); i++ {
		if err := runMigration(db, i); err != nil {
			return fmt.Errorf("run migration %d: %w", i, err)
		}
	}
	return nil
}

func runMigration(db *sql.DB, version int) error {
	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := migrations[version](tx); err != nil {
		return fmt.Errorf("execute migration: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(context.Background(), "INSERT INTO schema_version (version, applied_at) VALUES (?, ?)", version, now); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}

// Write replaces the whole baseline with the given batch and records
// the snapshot row.
func (s *Store) Write(snapshotID, root, commitHash string, files []FileState, startedAt time.Time) error {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(context.Background(), "DELETE FROM files;"); err != nil {
		return fmt.Errorf("reset baseline: %w", err)
	}
	stmt, err := tx.PrepareContext(context.Background(),
		`INSERT INTO files(path, hash, size, mod_time, snapshot_id) VALUES(?, ?, ?, ?, ?);`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	var total int64
	for _, f := range files {
		if _, err := stmt.ExecContext(context.Background(),
			f.Path, f.Hash, f.Size, f.ModTime.Format(time.RFC3339), snapshotID); err != nil {
			return fmt.Errorf("insert %s: %w", f.Path, err)
		}
		total += f.Size
	}

	completed := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(context.Background(),
		`INSERT INTO snapshots(id, root, commit_hash, file_count, total_bytes, started_at, completed_at)
         VALUES(?, ?, ?, ?, ?, ?, ?);`,
		snapshotID, root, commitHash, len(files), total,
		startedAt.UTC().Format(time.RFC3339), completed); err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	return tx.Commit()
}

// Refresh upserts the given files into the baseline without pruning
// rows outside the batch. Used after generation so a regenerated
// unit's inputs read fresh on the next check.
func (s *Store) Refresh(snapshotID string, files []FileState) error {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(context.Background(),
		`INSERT INTO files(path, hash, size, mod_time, snapshot_id) VALUES(?, ?, ?, ?, ?)
         ON CONFLICT(path) DO UPDATE SET
             hash=excluded.hash, size=excluded.size,
             mod_time=excluded.mod_time, snapshot_id=excluded.snapshot_id;`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range files {
		if _, err := stmt.ExecContext(context.Background(),
			f.Path, f.Hash, f.Size, f.ModTime.Format(time.RFC3339), snapshotID); err != nil {
			return fmt.Errorf("refresh %s: %w", f.Path, err)
		}
	}
	return tx.Commit()
}

// Load returns the baseline keyed by project-relative slash path.
func (s *Store) Load() (map[string]FileState, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT path, hash, size, mod_time FROM files;`)
	if err != nil {
		return nil, fmt.Errorf("load baseline: %w", err)
	}
	defer rows.Close()

	baseline := make(map[string]FileState)
	for rows.Next() {
		var f FileState
		var modTime string
		if err := rows.Scan(&f.Path, &f.Hash, &f.Size, &modTime); err != nil {
			return nil, err
		}
		f.ModTime, err = time.Parse(time.RFC3339, modTime)
		if err != nil {
			return nil, fmt.Errorf("parse mod_time for %s: %w", f.Path, err)
		}
		baseline[f.Path] = f
	}
	return baseline, rows.Err()
}

// LatestSnapshot returns the most recent snapshot row; the zero value
// (empty ID) means no snapshot has been taken.
func (s *Store) LatestSnapshot() (SnapshotInfo, error) {
	row := s.db.QueryRowContext(context.Background(),
		`SELECT id, root, commit_hash, file_count, total_bytes, started_at, completed_at
         FROM snapshots ORDER BY rowid DESC LIMIT 1;`)

	var info SnapshotInfo
	var started, completed string
	err := row.Scan(&info.ID, &info.Root, &info.CommitHash, &info.FileCount,
		&info.TotalBytes, &started, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotInfo{}, nil
	}
	if err != nil {
		return SnapshotInfo{}, err
	}
	info.StartedAt, _ = time.Parse(time.RFC3339, started)
	info.CompletedAt, _ = time.Parse(time.RFC3339, completed)
	return info, nil
}

package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const defaultRecentLimit = 20

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based run store.
// Use ":memory:" for in-memory storage, or a file path for persistence.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS update_runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		status TEXT NOT NULL,
		commit_hash TEXT,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_update_runs_started_at ON update_runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Begin records a new running update and returns its id.
func (s *SQLiteStore) Begin(ctx context.Context, source string, startedAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO update_runs (id, source, started_at, status) VALUES (?, ?, ?, ?)",
		id, source, startedAt.Unix(), StatusRunning,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	return id, nil
}

// Finish marks a run terminal.
func (s *SQLiteStore) Finish(ctx context.Context, id, status, commitHash, errMsg string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE update_runs SET status = ?, commit_hash = ?, error = ?, finished_at = ? WHERE id = ?",
		status, commitHash, errMsg, finishedAt.Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("unknown run id %q", id)
	}

	return nil
}

// Recent returns the newest runs, most recent first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = defaultRecentLimit
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, source, started_at, finished_at, status, commit_hash, error FROM update_runs ORDER BY started_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	return s.scanRuns(rows)
}

// Prune drops all but the newest keep runs.
func (s *SQLiteStore) Prune(ctx context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM update_runs WHERE rowid NOT IN (SELECT rowid FROM update_runs ORDER BY started_at DESC, rowid DESC LIMIT ?)",
		keep,
	)
	if err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}

	return nil
}

func (s *SQLiteStore) scanRuns(rows *sql.Rows) ([]Run, error) {
	var runs []Run
	for rows.Next() {
		var r Run
		var startedUnix int64
		var finishedUnix sql.NullInt64
		var commitHash, errMsg sql.NullString

		err := rows.Scan(&r.ID, &r.Source, &startedUnix, &finishedUnix, &r.Status, &commitHash, &errMsg)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		r.StartedAt = time.Unix(startedUnix, 0).UTC()
		if finishedUnix.Valid {
			ft := time.Unix(finishedUnix.Int64, 0).UTC()
			r.FinishedAt = &ft
		}
		r.CommitHash = commitHash.String
		r.Error = errMsg.String

		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return runs, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

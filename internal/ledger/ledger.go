package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// Status values recorded for a run
const (
	StatusPublished = "published"
	StatusFailed    = "failed"
	StatusCached    = "cached"
)

// Kind values recorded for a run
const (
	KindTitle = "title"
	KindItem  = "item"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	correlation_key TEXT NOT NULL,
	kind TEXT NOT NULL,
	basename TEXT NOT NULL,
	status TEXT NOT NULL,
	record_count INTEGER NOT NULL DEFAULT 0,
	has_item_list INTEGER NOT NULL DEFAULT 0,
	archive_path TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Entry is one row of the run history
type Entry struct {
	ID             string    `json:"id"`
	CorrelationKey string    `json:"correlation_key"`
	Kind           string    `json:"kind"`
	Basename       string    `json:"basename"`
	Status         string    `json:"status"`
	RecordCount    int       `json:"record_count"`
	HasItemList    bool      `json:"has_item_list"`
	ArchivePath    string    `json:"archive_path"`
	Detail         string    `json:"detail,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Ledger wraps the SQLite run history
type Ledger struct {
	conn *sql.DB
}

// Open creates the database at path if needed and initializes the schema
func Open(path string) (*Ledger, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	if _, err := conn.Exec(createRunsTable); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create runs schema: %w", err)
	}

	return &Ledger{conn: conn}, nil
}

// Close closes the database connection
func (l *Ledger) Close() error {
	return l.conn.Close()
}

// Record inserts e, assigning an id and creation time when unset
func (l *Ledger) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := l.conn.ExecContext(ctx,
		`INSERT INTO runs (id, correlation_key, kind, basename, status, record_count, has_item_list, archive_path, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CorrelationKey, e.Kind, e.Basename, e.Status, e.RecordCount, e.HasItemList, e.ArchivePath, e.Detail, e.CreatedAt.UTC())
	if err != nil {
		return e, fmt.Errorf("failed to record run: %w", err)
	}
	return e, nil
}

// Latest returns up to limit entries, newest first
func (l *Ledger) Latest(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.conn.QueryContext(ctx,
		`SELECT id, correlation_key, kind, basename, status, record_count, has_item_list, archive_path, detail, created_at
		FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.CorrelationKey, &e.Kind, &e.Basename, &e.Status,
			&e.RecordCount, &e.HasItemList, &e.ArchivePath, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

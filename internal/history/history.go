package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// Entry statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
	StatusError  = "error"
)

const timeLayout = time.RFC3339Nano

// Entry is one recorded operation.
type Entry struct {
	ID         string    `json:"id"`
	Operation  string    `json:"operation"`
	Path       string    `json:"path"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration is how long the operation ran.
func (e Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// Filter narrows List.
type Filter struct {
	// Operation, when set, selects only entries of that operation.
	Operation string

	// Limit caps the number of entries. Zero means no limit.
	Limit int
}

// Store is the operation ledger.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the ledger at path, creating its directory.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Record stores e. A missing ID is generated and a zero FinishedAt is set
// to now. The stored entry is returned.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.Operation == "" {
		return e, fmt.Errorf("operation is required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = e.FinishedAt
	}
	if e.Status == "" {
		e.Status = StatusOK
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operations (id, operation, path, status, detail, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Operation, e.Path, e.Status, nullString(e.Detail),
		e.StartedAt.UTC().Format(timeLayout), e.FinishedAt.UTC().Format(timeLayout))
	if err != nil {
		return e, fmt.Errorf("failed to record operation: %w", err)
	}
	return e, nil
}

// List returns entries newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.Operation != "" {
		where = append(where, "operation = ?")
		args = append(args, f.Operation)
	}

	query := `SELECT id, operation, path, status, detail, started_at, finished_at FROM operations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			detail            sql.NullString
			started, finished string
		)
		if err := rows.Scan(&e.ID, &e.Operation, &e.Path, &e.Status, &detail, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		e.Detail = detail.String
		if e.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("operation %s: bad started_at: %w", e.ID, err)
		}
		if e.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("operation %s: bad finished_at: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

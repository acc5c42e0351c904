package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS history (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	timestamp TEXT NOT NULL,
	slot TEXT NOT NULL,
	manager_id TEXT NOT NULL,
	method TEXT NOT NULL,
	url TEXT NOT NULL,
	request TEXT NOT NULL,
	state TEXT NOT NULL,
	status INTEGER NOT NULL,
	status_text TEXT NOT NULL,
	response_size INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	failure_kind TEXT NOT NULL,
	failure_message TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_timestamp ON history(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_history_slot ON history(slot);
`

const selectColumns = `id, timestamp, slot, manager_id, request, state, status, status_text,
	response_size, duration_ns, failure_kind, failure_message`

// SQLiteStore keeps history in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// One writer keeps appends from contending for the file lock.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec *Record) error {
	requestJSON, err := json.Marshal(rec.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal request snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO history (
			id, timestamp, slot, manager_id, method, url, request, state,
			status, status_text, response_size, duration_ns, failure_kind, failure_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.SlotKey,
		rec.ManagerID,
		rec.Request.Method,
		rec.Request.Target,
		string(requestJSON),
		rec.State.String(),
		rec.StatusCode,
		rec.Status,
		rec.Size,
		int64(rec.Duration),
		rec.FailureKind,
		rec.FailureMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to save history entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*Record, error) {
	query := `SELECT ` + selectColumns + ` FROM history ORDER BY seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM history WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec         Record
		timestamp   string
		requestJSON string
		state       string
		durationNs  int64
	)

	err := row.Scan(&rec.ID, &timestamp, &rec.SlotKey, &rec.ManagerID, &requestJSON, &state,
		&rec.StatusCode, &rec.Status, &rec.Size, &durationNs, &rec.FailureKind, &rec.FailureMessage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan history entry: %w", err)
	}

	rec.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return nil, fmt.Errorf("invalid history timestamp %q: %w", timestamp, err)
	}
	if err := json.Unmarshal([]byte(requestJSON), &rec.Request); err != nil {
		return nil, fmt.Errorf("invalid request snapshot for %s: %w", rec.ID, err)
	}
	if err := rec.State.UnmarshalText([]byte(state)); err != nil {
		return nil, err
	}
	rec.Duration = time.Duration(durationNs)

	return &rec, nil
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

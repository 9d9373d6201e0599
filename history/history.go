// Package history records program runs in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/msq-lang/msq/vm"
)

// ErrRunNotFound indicates the requested run doesn't exist.
var ErrRunNotFound = errors.New("run not found")

// ErrAmbiguousID indicates an id prefix matched more than one run.
var ErrAmbiguousID = errors.New("ambiguous run id")

// Status is the outcome of a run.
type Status string

const (
	StatusOK           Status = "ok"
	StatusParseError   Status = "parse-error"
	StatusCompileError Status = "compile-error"
	StatusRuntimeError Status = "runtime-error"
)

// Run is one recorded execution.
type Run struct {
	ID          string
	Path        string
	Fingerprint string
	Status      Status
	Error       string
	Value       string
	HasValue    bool
	StartedAt   time.Time
	Duration    time.Duration

	// Memory is the final store contents. List leaves it empty.
	Memory []vm.DumpRow
}

// Store handles SQLite storage for runs.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	log commonlog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	path        TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	value       TEXT NOT NULL DEFAULT '',
	has_value   INTEGER NOT NULL DEFAULT 0,
	started_at  INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS slots (
	run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	slot    TEXT NOT NULL,
	mutable INTEGER NOT NULL,
	value   TEXT NOT NULL,
	PRIMARY KEY (run_id, slot)
);
CREATE INDEX IF NOT EXISTS runs_started ON runs(started_at);
`

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps PRAGMAs in effect for every statement.
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &Store{db: db, log: commonlog.GetLogger("msq.history")}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record saves a run and its memory snapshot. An empty ID is filled in.
func (s *Store) Record(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, path, fingerprint, status, error, value, has_value, started_at, duration_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Path, run.Fingerprint, string(run.Status), run.Error, run.Value,
		boolInt(run.HasValue), run.StartedAt.UnixNano(), int64(run.Duration),
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}

	for _, row := range run.Memory {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO slots (run_id, slot, mutable, value) VALUES (?, ?, ?, ?)",
			run.ID, row.ID, boolInt(row.Mutable), row.Value,
		)
		if err != nil {
			return fmt.Errorf("recording slot %s: %w", row.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	s.log.Debugf("recorded run %s (%s, %d slots)", run.ID, run.Status, len(run.Memory))
	return nil
}

const runColumns = "id, path, fingerprint, status, error, value, has_value, started_at, duration_ns"

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r        Run
		status   string
		hasValue int
		started  int64
		duration int64
	)
	if err := sc.Scan(&r.ID, &r.Path, &r.Fingerprint, &status, &r.Error, &r.Value, &hasValue, &started, &duration); err != nil {
		return nil, err
	}
	r.Status = Status(status)
	r.HasValue = hasValue != 0
	r.StartedAt = time.Unix(0, started)
	r.Duration = time.Duration(duration)
	return &r, nil
}

// Get retrieves a run with its memory snapshot. id may be a unique prefix.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs WHERE id = ? OR id LIKE ? ORDER BY id = ? DESC LIMIT 2",
		id, stripLike(id)+"%", id)
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	var found []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("reading run: %w", err)
		}
		found = append(found, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}

	switch {
	case len(found) == 0:
		return nil, ErrRunNotFound
	case found[0].ID == id:
	case len(found) > 1:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, id)
	}
	run := found[0]

	slots, err := s.db.QueryContext(ctx,
		"SELECT slot, mutable, value FROM slots WHERE run_id = ? ORDER BY slot", run.ID)
	if err != nil {
		return nil, fmt.Errorf("querying slots: %w", err)
	}
	defer slots.Close()
	for slots.Next() {
		var row vm.DumpRow
		var mutable int
		if err := slots.Scan(&row.ID, &mutable, &row.Value); err != nil {
			return nil, fmt.Errorf("reading slot: %w", err)
		}
		row.Mutable = mutable != 0
		run.Memory = append(run.Memory, row)
	}
	return run, slots.Err()
}

// List returns the most recent runs, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("reading run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// Delete removes a run and its snapshot.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// stripLike drops LIKE wildcards from a user-supplied prefix.
func stripLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' || s[i] == '_' {
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

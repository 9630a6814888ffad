// Package history stores executed command lines in an in-memory sqlite
// database, queryable by the history builtin and any future completion
// feature that wants prefix search over past commands.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a single shell session's command history.
type Store struct {
	db *sql.DB
}

// Open creates a fresh in-memory history database. History is not
// persisted across process restarts.
func Open() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1) // :memory: sqlite is one connection per handle
	if _, err := db.Exec(`
		CREATE TABLE entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			line TEXT NOT NULL,
			working_dir TEXT NOT NULL,
			ran_at DATETIME NOT NULL,
			exit_code INTEGER
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create entries table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Entry is one recorded command-line execution.
type Entry struct {
	ID         int64
	Line       string
	WorkingDir string
	RanAt      time.Time
	ExitCode   int
}

// Append records line as having just been executed from wd. ExitCode is
// recorded later via SetExitCode once the pipeline finishes ticking.
func (s *Store) Append(line, wd string) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO entries (line, working_dir, ran_at, exit_code) VALUES (?, ?, ?, NULL)",
		line, wd, time.Now().UTC().Format("2006-01-02 15:04:05.000"),
	)
	if err != nil {
		return 0, fmt.Errorf("append history entry: %w", err)
	}
	return res.LastInsertId()
}

// SetExitCode backfills the exit code for a previously appended entry.
func (s *Store) SetExitCode(id int64, exitCode int) error {
	_, err := s.db.Exec("UPDATE entries SET exit_code = ? WHERE id = ?", exitCode, id)
	if err != nil {
		return fmt.Errorf("set history exit code: %w", err)
	}
	return nil
}

// Recent returns the last n entries, most recent first.
func (s *Store) Recent(n int) ([]Entry, error) {
	rows, err := s.db.Query(
		"SELECT id, line, working_dir, ran_at, COALESCE(exit_code, -1) FROM entries ORDER BY id DESC LIMIT ?",
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Line, &e.WorkingDir, &e.RanAt, &e.ExitCode); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SearchPrefix returns up to n entries whose line starts with prefix, most
// recent first, for up-arrow-style completion.
func (s *Store) SearchPrefix(prefix string, n int) ([]Entry, error) {
	rows, err := s.db.Query(
		"SELECT id, line, working_dir, ran_at, COALESCE(exit_code, -1) FROM entries WHERE line LIKE ? ORDER BY id DESC LIMIT ?",
		prefix+"%", n,
	)
	if err != nil {
		return nil, fmt.Errorf("search history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Line, &e.WorkingDir, &e.RanAt, &e.ExitCode); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

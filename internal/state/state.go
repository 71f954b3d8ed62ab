// Package state persists the little that must survive restarts: the
// default tool, last known tool versions, and the conversation transcript.
package state

import (
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/simon/ferryctl/internal/history"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tools (
    name       TEXT PRIMARY KEY,
    version    TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS turns (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    tool    TEXT NOT NULL,
    role    TEXT NOT NULL,
    content TEXT NOT NULL,
    at      TIMESTAMP NOT NULL
);
`

const keyDefaultTool = "default_tool"

// Store wraps a SQLite database for persistent state.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the database at $XDG_STATE_HOME/ferryctl/state.db.
func Open(logger *slog.Logger) (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		stateHome = filepath.Join(home, ".local", "state")
	}
	dir := filepath.Join(stateHome, "ferryctl")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return openAt(filepath.Join(dir, "state.db"), logger)
}

func openAt(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL mode for safe concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SetDefaultTool persists which tool new runs activate first.
func (s *Store) SetDefaultTool(name string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, keyDefaultTool, name)
	return err
}

// DefaultTool returns the persisted default tool, or "" when unset.
func (s *Store) DefaultTool() (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", keyDefaultTool).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetToolVersion records the last observed version string for a tool.
func (s *Store) SetToolVersion(name, version string) error {
	_, err := s.db.Exec(`
		INSERT INTO tools (name, version, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			version = excluded.version,
			updated_at = CURRENT_TIMESTAMP
	`, name, version)
	return err
}

// ToolVersion returns the last recorded version for a tool, or "".
func (s *Store) ToolVersion(name string) (string, error) {
	var version string
	err := s.db.QueryRow("SELECT version FROM tools WHERE name = ?", name).Scan(&version)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return version, err
}

// AppendTurn persists one conversation entry. It satisfies the history
// sink contract: persistence failures are logged, never propagated into
// the in-memory log.
func (s *Store) AppendTurn(e history.Entry) {
	_, err := s.db.Exec(
		"INSERT INTO turns (tool, role, content, at) VALUES (?, ?, ?, ?)",
		e.Tool, string(e.Role), e.Content, e.At.UTC().Format(time.RFC3339),
	)
	if err != nil {
		s.logger.Warn("persist turn failed", "err", err)
	}
}

// RecentTurns returns up to limit persisted entries, oldest first.
func (s *Store) RecentTurns(limit int) ([]history.Entry, error) {
	rows, err := s.db.Query(`
		SELECT tool, role, content, at FROM (
			SELECT id, tool, role, content, at FROM turns ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []history.Entry
	for rows.Next() {
		var e history.Entry
		var role, at string
		if err := rows.Scan(&e.Tool, &role, &e.Content, &at); err != nil {
			return nil, err
		}
		e.Role = history.Role(role)
		e.At, _ = time.Parse(time.RFC3339, at)
		result = append(result, e)
	}
	return result, rows.Err()
}

// ClearTurns drops the persisted transcript.
func (s *Store) ClearTurns() error {
	_, err := s.db.Exec("DELETE FROM turns")
	return err
}

// Package store persists the chat-to-session mapping in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/acpcall/acpcall/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS acp_sessions (
	chat_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// Mapping is one chat's current agent session.
type Mapping struct {
	ChatID    string
	SessionID string
	UpdatedAt time.Time
}

// Store wraps the SQLite database holding session mappings. Reads and
// writes are single-row; there are no cross-row transactions.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open creates the database file (and parent directories) if needed and
// ensures the schema exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	// SQLite handles one writer at a time; a larger pool only produces
	// SQLITE_BUSY under contention.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure session schema: %w", err)
	}

	return &Store{db: db, log: logging.For("store")}, nil
}

// Get looks up the session for a chat. A read failure is logged and
// reported as absent, matching the persistence contract that storage
// trouble degrades to a fresh session rather than failing the prompt.
func (s *Store) Get(ctx context.Context, chatID string) (Mapping, bool) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, updated_at FROM acp_sessions WHERE chat_id = ?`, chatID)

	var m Mapping
	var updated string
	if err := row.Scan(&m.SessionID, &updated); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Error().Err(err).Str("chat_id", chatID).Msg("session lookup failed")
		}
		return Mapping{}, false
	}

	m.ChatID = chatID
	if t, err := time.Parse(time.RFC3339, updated); err == nil {
		m.UpdatedAt = t
	}
	return m, true
}

// Upsert records the session for a chat, refreshing updated_at on every
// call. Write failures are logged and swallowed.
func (s *Store) Upsert(ctx context.Context, chatID, sessionID string) {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO acp_sessions(chat_id, session_id, updated_at)
VALUES(?, ?, ?)
ON CONFLICT(chat_id) DO UPDATE SET
	session_id = excluded.session_id,
	updated_at = excluded.updated_at`,
		chatID, sessionID, now)
	if err != nil {
		s.log.Error().Err(err).Str("chat_id", chatID).Msg("session upsert failed")
		return
	}
	s.log.Debug().Str("chat_id", chatID).Str("session_id", sessionID).Msg("session mapping saved")
}

// List returns all mappings, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Mapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, session_id, updated_at FROM acp_sessions ORDER BY updated_at DESC, chat_id`)
	if err != nil {
		return nil, fmt.Errorf("list session mappings: %w", err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		var m Mapping
		var updated string
		if err := rows.Scan(&m.ChatID, &m.SessionID, &updated); err != nil {
			return nil, fmt.Errorf("scan session mapping: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, updated); err == nil {
			m.UpdatedAt = t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Delete removes a chat's mapping. Missing rows are not an error.
func (s *Store) Delete(ctx context.Context, chatID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM acp_sessions WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete session mapping: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history persists terminal client conversation state.
//
// The store keeps two tables: a profile key/value table holding the provider
// thread ID and conversation ID, and an append-only entries table holding the
// transcript. State survives restarts; Clear wipes both.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/pipechat/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrClosed        = errors.New("history store closed")
	ErrDatabaseError = errors.New("database error")
)

// Profile keys.
const (
	keyThreadID       = "chatThreadId"
	keyConversationID = "conversationId"
)

const schema = `
CREATE TABLE IF NOT EXISTS profile (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	sender     TEXT NOT NULL,
	text       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`

// =============================================================================
// STORE
// =============================================================================

// State is everything the store holds, loaded in one shot at startup.
type State struct {
	ThreadID       string
	ConversationID string
	Entries        []model.HistoryEntry
}

// Store is a SQLite-backed conversation history store.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath returns the default history database location
// (~/.pipechat/history.db).
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".pipechat", "history.db"), nil
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Load reads the full persisted state.
func (s *Store) Load() (*State, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	state := &State{}

	var err error
	if state.ThreadID, err = s.profileValue(keyThreadID); err != nil {
		return nil, err
	}
	if state.ConversationID, err = s.profileValue(keyConversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query("SELECT id, sender, text, created_at FROM entries ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		var e model.HistoryEntry
		var created int64
		if err := rows.Scan(&e.ID, &e.Sender, &e.Text, &created); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		e.CreatedAt = time.Unix(created, 0)
		state.Entries = append(state.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return state, nil
}

// AppendEntry persists one transcript entry and returns its assigned ID.
func (s *Store) AppendEntry(sender model.Sender, text string) (int64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}

	result, err := s.db.Exec(
		"INSERT INTO entries (sender, text, created_at) VALUES (?, ?, ?)",
		string(sender), text, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return result.LastInsertId()
}

// SetThreadID persists the provider thread ID.
func (s *Store) SetThreadID(id string) error {
	return s.setProfile(keyThreadID, id)
}

// SetConversationID persists the conversation ID.
func (s *Store) SetConversationID(id string) error {
	return s.setProfile(keyConversationID, id)
}

// Clear wipes the transcript and both persisted IDs.
func (s *Store) Clear() error {
	if s.db == nil {
		return ErrClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM entries"); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if _, err := tx.Exec("DELETE FROM profile"); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return tx.Commit()
}

// profileValue returns the value for key, or "" when unset.
func (s *Store) profileValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM profile WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return value, nil
}

func (s *Store) setProfile(key, value string) error {
	if s.db == nil {
		return ErrClosed
	}
	_, err := s.db.Exec(
		"INSERT INTO profile (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

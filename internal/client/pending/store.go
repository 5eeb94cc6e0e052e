// Package pending persists per-session queued user messages and pending
// permission-mode changes. The store is shared by every client instance of
// one origin; drains must be atomic because two instances can react to the
// same pause transition at once.
package pending

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const defaultBusyTimeout = 5 * time.Second

// Message is one queued user message.
type Message struct {
	Text     string    `json:"text" db:"text"`
	QueuedAt time.Time `json:"queuedAt" db:"queued_at"`
}

// Store is the SQLite-backed persistence layer. A single write connection
// serializes all mutations, and every operation rewrites a session's list as
// a unit: there are no partial concurrent writers.
type Store struct {
	db *sqlx.DB
}

// Schema namespaced with a pending_ prefix so this state can never collide
// with unrelated per-origin data in the same database file.
const schema = `
CREATE TABLE IF NOT EXISTS pending_messages (
	session_id TEXT    NOT NULL,
	position   INTEGER NOT NULL,
	text       TEXT    NOT NULL,
	queued_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (session_id, position)
);

CREATE TABLE IF NOT EXISTS pending_permissions (
	session_id TEXT PRIMARY KEY,
	mode       TEXT NOT NULL
);
`

// OpenStore opens (and creates if needed) the state database at path.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to prepare state path: %w", err)
		}
	}

	// WAL for cross-process readers, busy_timeout to ride out writer
	// contention between instances.
	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_mode=rwc&_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
		path,
		int(defaultBusyTimeout/time.Millisecond),
	)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) listTx(tx *sqlx.Tx, sessionID string) ([]Message, error) {
	var msgs []Message
	err := tx.Select(&msgs,
		`SELECT text, queued_at FROM pending_messages WHERE session_id = ? ORDER BY position`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending messages: %w", err)
	}
	return msgs, nil
}

func (s *Store) replaceTx(tx *sqlx.Tx, sessionID string, msgs []Message) error {
	if _, err := tx.Exec(`DELETE FROM pending_messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear pending messages: %w", err)
	}
	for i, msg := range msgs {
		_, err := tx.Exec(
			`INSERT INTO pending_messages (session_id, position, text, queued_at) VALUES (?, ?, ?, ?)`,
			sessionID, i, msg.Text, msg.QueuedAt)
		if err != nil {
			return fmt.Errorf("failed to write pending message: %w", err)
		}
	}
	return nil
}

// mutate runs fn against the session's full list inside one transaction.
// fn returns the replacement list and whether anything changed.
func (s *Store) mutate(sessionID string, fn func(msgs []Message) ([]Message, bool)) (changed bool, err error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	msgs, err := s.listTx(tx, sessionID)
	if err != nil {
		return false, err
	}

	next, changed := fn(msgs)
	if !changed {
		_ = tx.Rollback()
		return false, nil
	}

	if err = s.replaceTx(tx, sessionID, next); err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

// List returns the session's queued messages in insertion order.
func (s *Store) List(sessionID string) ([]Message, error) {
	var msgs []Message
	err := s.db.Select(&msgs,
		`SELECT text, queued_at FROM pending_messages WHERE session_id = ? ORDER BY position`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending messages: %w", err)
	}
	return msgs, nil
}

// Append adds a message to the end of the session's queue.
func (s *Store) Append(sessionID, text string) error {
	_, err := s.mutate(sessionID, func(msgs []Message) ([]Message, bool) {
		return append(msgs, Message{Text: text, QueuedAt: time.Now().UTC()}), true
	})
	return err
}

// Update replaces the text of the message at index. Out-of-bounds indexes
// are a no-op.
func (s *Store) Update(sessionID string, index int, text string) (bool, error) {
	return s.mutate(sessionID, func(msgs []Message) ([]Message, bool) {
		if index < 0 || index >= len(msgs) {
			return nil, false
		}
		msgs[index].Text = text
		return msgs, true
	})
}

// Remove deletes the message at index. Out-of-bounds indexes are a no-op.
func (s *Store) Remove(sessionID string, index int) (bool, error) {
	return s.mutate(sessionID, func(msgs []Message) ([]Message, bool) {
		if index < 0 || index >= len(msgs) {
			return nil, false
		}
		return append(msgs[:index], msgs[index+1:]...), true
	})
}

// DrainAll atomically returns and clears the session's queue. The read and
// the clear commit as one transaction, so of two concurrent drains exactly
// one gets the messages and the other gets an empty list.
func (s *Store) DrainAll(sessionID string) (msgs []Message, err error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	msgs, err = s.listTx(tx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		_ = tx.Rollback()
		return nil, nil
	}

	if _, err = tx.Exec(`DELETE FROM pending_messages WHERE session_id = ?`, sessionID); err != nil {
		return nil, fmt.Errorf("failed to clear pending messages: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit drain: %w", err)
	}
	return msgs, nil
}

// SetPermissionMode records a permission-mode change to apply when the
// session next becomes actionable.
func (s *Store) SetPermissionMode(sessionID, mode string) error {
	_, err := s.db.Exec(
		`INSERT INTO pending_permissions (session_id, mode) VALUES (?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET mode = excluded.mode`,
		sessionID, mode)
	if err != nil {
		return fmt.Errorf("failed to set pending permission mode: %w", err)
	}
	return nil
}

// TakePermissionMode atomically returns and clears the pending permission
// mode for a session, if any.
func (s *Store) TakePermissionMode(sessionID string) (mode string, ok bool, err error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return "", false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = tx.Get(&mode, `SELECT mode FROM pending_permissions WHERE session_id = ?`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load pending permission mode: %w", err)
	}

	if _, err = tx.Exec(`DELETE FROM pending_permissions WHERE session_id = ?`, sessionID); err != nil {
		return "", false, fmt.Errorf("failed to clear pending permission mode: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return "", false, fmt.Errorf("failed to commit: %w", err)
	}
	return mode, true, nil
}

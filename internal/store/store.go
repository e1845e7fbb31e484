// Package store persists parse sessions and their messages in sqlite.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	input      TEXT NOT NULL,
	parser     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	messages   INTEGER NOT NULL DEFAULT 0,
	skipped    INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS messages (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	idx        INTEGER NOT NULL,
	content    TEXT NOT NULL,
	PRIMARY KEY (session_id, idx)
);
`

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type Session struct {
	ID        string
	Input     string
	Parser    string
	CreatedAt time.Time
	Messages  int
	Skipped   int
}

// CreateSession records a new parse run and returns it with its new id.
func (s *Store) CreateSession(input, parser string) (*Session, error) {
	session := &Session{
		ID:        uuid.NewString(),
		Input:     input,
		Parser:    parser,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(`INSERT INTO sessions (id, input, parser, created_at) VALUES (?, ?, ?, ?)`,
		session.ID, session.Input, session.Parser, session.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// AddMessage appends one parsed message to a session.
func (s *Store) AddMessage(sessionID string, idx int, content string) error {
	_, err := s.db.Exec(`INSERT INTO messages (session_id, idx, content) VALUES (?, ?, ?)`,
		sessionID, idx, content)
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

// FinishSession stores the final counters of a run.
func (s *Store) FinishSession(id string, messages, skipped int) error {
	_, err := s.db.Exec(`UPDATE sessions SET messages = ?, skipped = ? WHERE id = ?`,
		messages, skipped, id)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(id string) (*Session, error) {
	session := &Session{}
	err := s.db.QueryRow(`SELECT id, input, parser, created_at, messages, skipped
		FROM sessions WHERE id = ?`, id).Scan(
		&session.ID, &session.Input, &session.Parser, &session.CreatedAt,
		&session.Messages, &session.Skipped)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (s *Store) ListSessions() ([]*Session, error) {
	rows, err := s.db.Query(`SELECT id, input, parser, created_at, messages, skipped
		FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var sessions []*Session
	for rows.Next() {
		session := &Session{}
		if err := rows.Scan(&session.ID, &session.Input, &session.Parser,
			&session.CreatedAt, &session.Messages, &session.Skipped); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// SessionMessages returns a session's messages in index order.
func (s *Store) SessionMessages(sessionID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT content FROM messages WHERE session_id = ? ORDER BY idx`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session messages: %w", err)
	}
	defer rows.Close()
	var messages []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, content)
	}
	return messages, rows.Err()
}

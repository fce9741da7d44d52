package history

// Transcript persistence. SQLite is the primary backend; when the database cannot be
// opened the application falls back to an in-memory store so chat keeps working.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/gustavo-go/internal/logger"
)

var ErrSessionNotFound = errors.New("session not found")

// Store persists conversation transcripts.
type Store interface {
	// Get returns the session with its messages in chronological order.
	Get(ctx context.Context, id string) (*Session, error)
	// Append adds msgs to the session atomically, creating the session if needed.
	Append(ctx context.Context, id string, msgs []Message) error
}

// Title derives a short session title from the first user text.
func Title(msgs []Message) string {
	for _, m := range msgs {
		if m.Role != RoleUser {
			continue
		}
		words := strings.Fields(m.Text())
		if len(words) == 0 {
			continue
		}
		if len(words) > 5 {
			words = words[:5]
		}
		return strings.Join(words, " ")
	}
	return DefaultTitle
}

// SQLiteStore keeps sessions and messages in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return s, nil
}

// Open returns a SQLite store, or an in-memory store if SQLite is unavailable.
func Open(path string) (Store, *SQLiteStore) {
	s, err := OpenSQLite(path)
	if err != nil {
		logger.L.Warn("sqlite open failed; using in-memory history", "path", path, "error", err)
		return NewMemoryStore(), nil
	}
	logger.L.Info("sqlite history DB initialized", "path", path)
	return s, s
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			parts TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// DB exposes the underlying handle so other stores can share the file.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	var sess Session
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Title, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	sess.CreatedAt = time.UnixMilli(created)
	sess.UpdatedAt = time.UnixMilli(updated)

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, parts, created_at FROM messages WHERE session_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var role, parts string
		var at int64
		if err := rows.Scan(&role, &parts, &at); err != nil {
			return nil, err
		}
		decoded, err := DecodeParts([]byte(parts))
		if err != nil {
			logger.L.Warn("skipping undecodable stored message", "session", id, "error", err)
			continue
		}
		sess.Messages = append(sess.Messages, Message{Role: Role(role), Parts: decoded, Timestamp: time.UnixMilli(at)})
	}
	return &sess, rows.Err()
}

func (s *SQLiteStore) Append(ctx context.Context, id string, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		id, Title(msgs), now, now,
	); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	for _, m := range msgs {
		parts, err := EncodeParts(m.Parts)
		if err != nil {
			return err
		}
		at := m.Timestamp
		if at.IsZero() {
			at = time.UnixMilli(now)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, role, parts, created_at) VALUES (?, ?, ?, ?)`,
			id, string(m.Role), string(parts), at.UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	return tx.Commit()
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	cp := *sess
	cp.Messages = append([]Message(nil), sess.Messages...)
	return &cp, nil
}

func (m *MemoryStore) Append(_ context.Context, id string, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	sess, ok := m.sessions[id]
	if !ok {
		sess = &Session{ID: id, Title: Title(msgs), CreatedAt: now}
		m.sessions[id] = sess
	}
	sess.UpdatedAt = now
	sess.Messages = append(sess.Messages, msgs...)
	return nil
}

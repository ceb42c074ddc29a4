package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/thruflo/drafter/internal/transcript"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all access through Go's pool, preventing "database is
	// locked" errors when the streaming loop and the CLI both write.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Design sessions ---

func (s *SQLiteStore) CreateSession(ctx context.Context, ds *DesignSession) error {
	if ds.ID == "" {
		ds.ID = ulid.Make().String()
	}
	now := time.Now().UTC()
	ds.CreatedAt = now
	ds.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO design_sessions (id, title, current_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		ds.ID, ds.Title, ds.CurrentCode, ds.CreatedAt, ds.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*DesignSession, error) {
	ds := &DesignSession{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, current_code, created_at, updated_at
		FROM design_sessions WHERE id = ?`, id,
	).Scan(&ds.ID, &ds.Title, &ds.CurrentCode, &ds.CreatedAt, &ds.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return ds, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*DesignSession, error) {
	query := `SELECT id, title, current_code, created_at, updated_at
		FROM design_sessions ORDER BY updated_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*DesignSession
	for rows.Next() {
		ds := &DesignSession{}
		if err := rows.Scan(&ds.ID, &ds.Title, &ds.CurrentCode, &ds.CreatedAt, &ds.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, ds)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, ds *DesignSession) error {
	ds.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE design_sessions SET title=?, current_code=?, updated_at=? WHERE id=?`,
		ds.Title, ds.CurrentCode, ds.UpdatedAt, ds.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session not found: %s", ds.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM design_sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

// --- Messages ---

// SaveMessages replaces the stored transcript for a session with the
// given messages. Replacing rather than diffing keeps the store in step
// with the in-memory transcript, which is the source of truth while a
// session is live.
func (s *SQLiteStore) SaveMessages(ctx context.Context, sessionID string, msgs []transcript.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}

	for _, m := range msgs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, session_id, role, agent, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, sessionID, string(m.Role), string(m.AgentType), m.Content, m.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("save message %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]transcript.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, agent, content, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []transcript.Message
	for rows.Next() {
		var m transcript.Message
		var role, agent string
		if err := rows.Scan(&m.ID, &role, &agent, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = transcript.Role(role)
		m.AgentType = transcript.AgentType(agent)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// --- Auto-mode rounds ---

func (s *SQLiteStore) RecordRound(ctx context.Context, r *LoopRound) error {
	if r.ID == "" {
		r.ID = ulid.Make().String()
	}
	r.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO loop_rounds (id, session_id, iteration, outcome, qa_feedback, render_url, test_summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.Iteration, r.Outcome, r.QAFeedback, r.RenderURL, r.TestSummary, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record round: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListRounds(ctx context.Context, sessionID string) ([]*LoopRound, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, iteration, outcome, qa_feedback, render_url, test_summary, created_at
		FROM loop_rounds WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rounds []*LoopRound
	for rows.Next() {
		r := &LoopRound{}
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Iteration, &r.Outcome, &r.QAFeedback, &r.RenderURL, &r.TestSummary, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

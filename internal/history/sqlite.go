package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/taxassist-go/internal/chat"
	"github.com/comigor/taxassist-go/internal/feed"
	"github.com/comigor/taxassist-go/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    message TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_conversations_role ON conversations(role, created_at);
`

// SQLiteStore persists rows in a SQLite database. created_at is stored as
// unix nanoseconds so range filters and ordering are exact.
type SQLiteStore struct {
	db    *sql.DB
	clock *stamper
	feed  *feed.Broadcaster[InsertEvent]
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions(opts)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLiteStore{
		db:    db,
		clock: &stamper{now: o.now},
		feed:  feed.New[InsertEvent]("conversations", 0, logger.L),
	}

	// Resume the monotonic clock from what is already stored.
	var last sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(created_at) FROM conversations`).Scan(&last); err != nil {
		db.Close()
		return nil, fmt.Errorf("read last created_at: %w", err)
	}
	if last.Valid {
		s.clock.last = time.Unix(0, last.Int64).UTC()
	}

	logger.L.Info("sqlite conversation store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, sessionID string, role chat.Role, message any) (Row, error) {
	raw, err := encode(role, message)
	if err != nil {
		return Row{}, err
	}
	row := Row{
		SessionID: sessionID,
		Role:      role,
		Message:   raw,
		CreatedAt: s.clock.next(),
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (session_id, role, message, created_at) VALUES (?, ?, ?, ?)`,
		row.SessionID, string(row.Role), string(row.Message), row.CreatedAt.UnixNano())
	if err != nil {
		return Row{}, fmt.Errorf("insert conversation row: %w", err)
	}
	if row.ID, err = res.LastInsertId(); err != nil {
		return Row{}, fmt.Errorf("read inserted id: %w", err)
	}

	logger.L.Debug("stored conversation row", "id", row.ID, "session_id", row.SessionID, "role", row.Role)
	s.feed.Publish(InsertEvent{Row: row})
	return row, nil
}

func (s *SQLiteStore) Select(ctx context.Context, q Query) ([]Row, error) {
	var (
		where []string
		args  []any
	)
	if q.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.Role != "" {
		where = append(where, "role = ?")
		args = append(args, string(q.Role))
	}
	if q.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if q.Until != nil {
		where = append(where, "created_at <= ?")
		args = append(args, q.Until.UnixNano())
	}

	var b strings.Builder
	b.WriteString(`SELECT id, session_id, role, message, created_at FROM conversations`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if q.Order == Descending {
		b.WriteString(" ORDER BY created_at DESC, id DESC")
	} else {
		b.WriteString(" ORDER BY created_at ASC, id ASC")
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("select conversation rows: %w", err)
	}
	defer rows.Close()

	out := make([]Row, 0)
	for rows.Next() {
		var (
			r         Row
			role, msg string
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &role, &msg, &createdAt); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		r.Role = chat.Role(role)
		r.Message = []byte(msg)
		r.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Subscribe(ctx context.Context) (<-chan InsertEvent, string) {
	return s.feed.Subscribe(ctx)
}

func (s *SQLiteStore) Unsubscribe(subID string) {
	s.feed.Unsubscribe(subID)
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	s.feed.Close()
	return s.db.Close()
}

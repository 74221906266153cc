// Package history provides persistence for conversation rows.
// Rows are append-only and keyed by session id; every insert is announced on
// a change feed. SQLiteStore is the durable implementation and MemoryStore
// keeps rows in process, both for tests and as the fallback when the
// database cannot be opened.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/comigor/taxassist-go/internal/chat"
)

// ErrInvalidMessage is returned when a raw message payload is not valid JSON.
var ErrInvalidMessage = errors.New("message is not valid JSON")

// MemoryPath selects the in-memory store in Open.
const MemoryPath = ":memory:"

// Row is one persisted conversation message.
type Row struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Role      chat.Role       `json:"role"`
	Message   json.RawMessage `json:"message"`
	CreatedAt time.Time       `json:"created_at"`
}

// Order is the created_at sort direction of Select.
type Order int

const (
	Ascending Order = iota
	Descending
)

// Query filters Select. Zero fields do not filter. Since and Until are
// inclusive bounds on created_at.
type Query struct {
	SessionID string
	Role      chat.Role
	Since     *time.Time
	Until     *time.Time
	Order     Order
	Limit     int
}

// InsertEvent is published on the change feed after a row is stored.
type InsertEvent struct {
	Row Row
}

// Store is the persistent conversation store.
type Store interface {
	// Insert appends a row. message is marshalled to JSON; created_at is
	// assigned by the store.
	Insert(ctx context.Context, sessionID string, role chat.Role, message any) (Row, error)

	// Select returns matching rows ordered by created_at, ties broken by
	// insertion order.
	Select(ctx context.Context, q Query) ([]Row, error)

	// Subscribe registers for insert events until ctx is cancelled or
	// Unsubscribe is called.
	Subscribe(ctx context.Context) (<-chan InsertEvent, string)

	// Unsubscribe removes a change feed subscription.
	Unsubscribe(subID string)

	// Close releases the store and closes all feed subscriptions.
	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used to assign created_at.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open returns the in-memory store for MemoryPath and a SQLite store
// otherwise.
func Open(path string, opts ...Option) (Store, error) {
	if path == MemoryPath {
		return NewMemoryStore(opts...), nil
	}
	return NewSQLiteStore(path, opts...)
}

// stamper hands out non-decreasing creation times.
type stamper struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func (s *stamper) next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now().UTC()
	if t.Before(s.last) {
		t = s.last
	}
	s.last = t
	return t
}

func encode(role chat.Role, message any) (json.RawMessage, error) {
	if _, err := chat.ParseRole(string(role)); err != nil {
		return nil, err
	}
	if raw, ok := message.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, ErrInvalidMessage
		}
		return raw, nil
	}
	raw, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return raw, nil
}

package history

import (
	"context"
	"slices"
	"sync"

	"github.com/comigor/taxassist-go/internal/chat"
	"github.com/comigor/taxassist-go/internal/feed"
	"github.com/comigor/taxassist-go/internal/logger"
)

// MemoryStore keeps rows in process.
type MemoryStore struct {
	mu     sync.RWMutex
	rows   []Row
	nextID int64
	clock  *stamper
	feed   *feed.Broadcaster[InsertEvent]
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		clock: &stamper{now: o.now},
		feed:  feed.New[InsertEvent]("conversations", 0, logger.L),
	}
}

func (m *MemoryStore) Insert(ctx context.Context, sessionID string, role chat.Role, message any) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	raw, err := encode(role, message)
	if err != nil {
		return Row{}, err
	}

	m.mu.Lock()
	m.nextID++
	row := Row{
		ID:        m.nextID,
		SessionID: sessionID,
		Role:      role,
		Message:   raw,
		CreatedAt: m.clock.next(),
	}
	m.rows = append(m.rows, row)
	m.mu.Unlock()

	m.feed.Publish(InsertEvent{Row: row})
	return row, nil
}

func (m *MemoryStore) Select(ctx context.Context, q Query) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	out := make([]Row, 0)
	for _, r := range m.rows {
		if matches(r, q) {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b Row) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
	if q.Order == Descending {
		slices.Reverse(out)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matches(r Row, q Query) bool {
	if q.SessionID != "" && r.SessionID != q.SessionID {
		return false
	}
	if q.Role != "" && r.Role != q.Role {
		return false
	}
	if q.Since != nil && r.CreatedAt.Before(*q.Since) {
		return false
	}
	if q.Until != nil && r.CreatedAt.After(*q.Until) {
		return false
	}
	return true
}

func (m *MemoryStore) Subscribe(ctx context.Context) (<-chan InsertEvent, string) {
	return m.feed.Subscribe(ctx)
}

func (m *MemoryStore) Unsubscribe(subID string) {
	m.feed.Unsubscribe(subID)
}

func (m *MemoryStore) Close() error {
	m.feed.Close()
	return nil
}

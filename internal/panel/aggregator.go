package panel

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/comigor/taxassist-go/internal/chat"
	"github.com/comigor/taxassist-go/internal/history"
	"github.com/comigor/taxassist-go/internal/logger"
)

// DefaultHistoryPerBucket caps the entries shown per day.
const DefaultHistoryPerBucket = 5

// HistoryView is the session picker content.
type HistoryView struct {
	Today     []chat.ConversationHistoryEntry `json:"today"`
	Yesterday []chat.ConversationHistoryEntry `json:"yesterday"`
}

// Aggregate collapses user rows of one bucket into one entry per session.
// The title comes from the session's chronologically first row while the
// ranking uses its most recent row, newest activity first. At most limit
// entries are returned.
func Aggregate(rows []history.Row, limit, titleMax int) []chat.ConversationHistoryEntry {
	ordered := slices.Clone(rows)
	slices.SortStableFunc(ordered, func(a, b history.Row) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	var (
		entries    []chat.ConversationHistoryEntry
		lastActive = make(map[string]time.Time)
	)
	for _, r := range ordered {
		if _, seen := lastActive[r.SessionID]; !seen {
			entries = append(entries, chat.ConversationHistoryEntry{
				SessionID: r.SessionID,
				Title:     chat.Title(chat.PayloadText(r.Message), titleMax),
				CreatedAt: r.CreatedAt,
			})
		}
		lastActive[r.SessionID] = r.CreatedAt
	}

	slices.SortStableFunc(entries, func(a, b chat.ConversationHistoryEntry) int {
		return lastActive[b.SessionID].Compare(lastActive[a.SessionID])
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []chat.ConversationHistoryEntry{}
	}
	return entries
}

// HistoryAggregator fetches today's and yesterday's user rows and keeps the
// last successfully built HistoryView.
type HistoryAggregator struct {
	store    history.Store
	now      func() time.Time
	limit    int
	titleMax int

	refreshMu sync.Mutex
	mu        sync.RWMutex
	view      HistoryView
}

func NewHistoryAggregator(store history.Store, now func() time.Time, limit, titleMax int) *HistoryAggregator {
	if now == nil {
		now = time.Now
	}
	if limit <= 0 {
		limit = DefaultHistoryPerBucket
	}
	if titleMax <= 0 {
		titleMax = chat.DefaultTitleMax
	}
	return &HistoryAggregator{
		store:    store,
		now:      now,
		limit:    limit,
		titleMax: titleMax,
		view:     HistoryView{Today: []chat.ConversationHistoryEntry{}, Yesterday: []chat.ConversationHistoryEntry{}},
	}
}

// dayBounds returns the inclusive range of the calendar day containing t.
func dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func (h *HistoryAggregator) fetch(ctx context.Context, since, until time.Time) ([]history.Row, error) {
	return h.store.Select(ctx, history.Query{
		Role:  chat.RoleUser,
		Since: &since,
		Until: &until,
		Order: history.Ascending,
	})
}

// Refresh rebuilds the view. On failure the previous view is kept and
// returned together with the error.
func (h *HistoryAggregator) Refresh(ctx context.Context) (HistoryView, error) {
	h.refreshMu.Lock()
	defer h.refreshMu.Unlock()

	todayStart, todayEnd := dayBounds(h.now())
	yesterdayStart, yesterdayEnd := dayBounds(todayStart.AddDate(0, 0, -1))

	today, err := h.fetch(ctx, todayStart, todayEnd)
	if err != nil {
		logger.L.Warn("failed to fetch today's conversations", "error", err)
		return h.View(), fmt.Errorf("fetch today's conversations: %w", err)
	}
	yesterday, err := h.fetch(ctx, yesterdayStart, yesterdayEnd)
	if err != nil {
		logger.L.Warn("failed to fetch yesterday's conversations", "error", err)
		return h.View(), fmt.Errorf("fetch yesterday's conversations: %w", err)
	}

	view := HistoryView{
		Today:     Aggregate(today, h.limit, h.titleMax),
		Yesterday: Aggregate(yesterday, h.limit, h.titleMax),
	}
	logger.L.Debug("conversation history refreshed", "today", len(view.Today), "yesterday", len(view.Yesterday))

	h.mu.Lock()
	h.view = view
	h.mu.Unlock()
	return view, nil
}

// View returns the last successfully built view.
func (h *HistoryAggregator) View() HistoryView {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HistoryView{
		Today:     slices.Clone(h.view.Today),
		Yesterday: slices.Clone(h.view.Yesterday),
	}
}

// Find looks a session up in the current view.
func (h *HistoryAggregator) Find(sessionID string) (chat.ConversationHistoryEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, bucket := range [][]chat.ConversationHistoryEntry{h.view.Today, h.view.Yesterday} {
		for _, e := range bucket {
			if e.SessionID == sessionID {
				return e, true
			}
		}
	}
	return chat.ConversationHistoryEntry{}, false
}

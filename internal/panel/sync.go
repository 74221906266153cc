package panel

import (
	"context"
	"sync"

	"github.com/comigor/taxassist-go/internal/history"
	"github.com/comigor/taxassist-go/internal/logger"
)

// RealtimeSync refreshes the history view on every insert into the store
// while it is running. At most one subscription is held at a time.
type RealtimeSync struct {
	store     history.Store
	history   *HistoryAggregator
	onRefresh func(HistoryView)

	mu     sync.Mutex
	subID  string
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRealtimeSync(store history.Store, agg *HistoryAggregator, onRefresh func(HistoryView)) *RealtimeSync {
	if onRefresh == nil {
		onRefresh = func(HistoryView) {}
	}
	return &RealtimeSync{store: store, history: agg, onRefresh: onRefresh}
}

// Start subscribes to the store change feed. It is a no-op when already
// running. The subscription outlives ctx cancellation only through Stop.
func (s *RealtimeSync) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	events, subID := s.store.Subscribe(subCtx)
	done := make(chan struct{})
	s.subID, s.cancel, s.done = subID, cancel, done

	go func() {
		defer close(done)
		defer s.release(done)
		for ev := range events {
			logger.L.Debug("conversation change received", "session_id", ev.Row.SessionID, "role", ev.Row.Role)
			view, err := s.history.Refresh(subCtx)
			if err != nil {
				continue
			}
			s.onRefresh(view)
		}
	}()
	logger.L.Debug("realtime sync started", "sub_id", subID)
}

// release clears the subscription state when the feed closes on its own,
// as it does when the store is closed.
func (s *RealtimeSync) release(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != done {
		return
	}
	s.cancel()
	s.subID, s.cancel, s.done = "", nil, nil
}

// Stop removes the subscription and waits for the refresh loop to exit.
func (s *RealtimeSync) Stop() {
	s.mu.Lock()
	subID, cancel, done := s.subID, s.cancel, s.done
	s.subID, s.cancel, s.done = "", nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	s.store.Unsubscribe(subID)
	cancel()
	<-done
	logger.L.Debug("realtime sync stopped")
}

// Running reports whether a subscription is held.
func (s *RealtimeSync) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

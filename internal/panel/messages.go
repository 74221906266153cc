package panel

import (
	"slices"
	"sync"

	"github.com/comigor/taxassist-go/internal/chat"
)

// MessageStore is the ordered log of the active conversation. Timestamps
// never decrease along the log: an append older than the last message is
// stamped with the last message's time.
type MessageStore struct {
	mu   sync.RWMutex
	msgs []chat.ChatMessage
}

func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

// Append adds m at the end and returns it as stored.
func (s *MessageStore) Append(m chat.ChatMessage) chat.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.msgs); n > 0 && m.Timestamp.Before(s.msgs[n-1].Timestamp) {
		m.Timestamp = s.msgs[n-1].Timestamp
	}
	s.msgs = append(s.msgs, m)
	return m
}

// Replace swaps the whole log, ordering msgs by timestamp (stable).
func (s *MessageStore) Replace(msgs []chat.ChatMessage) {
	sorted := slices.Clone(msgs)
	slices.SortStableFunc(sorted, func(a, b chat.ChatMessage) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	s.mu.Lock()
	s.msgs = sorted
	s.mu.Unlock()
}

func (s *MessageStore) Reset() {
	s.mu.Lock()
	s.msgs = nil
	s.mu.Unlock()
}

// Messages returns a copy of the log.
func (s *MessageStore) Messages() []chat.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.ChatMessage, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

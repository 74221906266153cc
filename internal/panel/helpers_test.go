package panel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/comigor/taxassist-go/internal/chat"
	"github.com/comigor/taxassist-go/internal/history"
)

type mockCompleter struct {
	mu      sync.Mutex
	calls   []chat.CompletionRequest
	release chan struct{}
	reply   chat.AIMessage
	err     error
}

func newMockCompleter(text string) *mockCompleter {
	return &mockCompleter{reply: chat.AIMessage{
		ResponseType: chat.ResponseAnswer,
		Message:      chat.MessageBody{Text: text, Confidence: chat.ConfidenceHigh},
	}}
}

// blocking makes every call wait until unblock is called.
func (m *mockCompleter) blocking() *mockCompleter {
	m.release = make(chan struct{})
	return m
}

func (m *mockCompleter) unblock() {
	close(m.release)
}

func (m *mockCompleter) Complete(ctx context.Context, req chat.CompletionRequest) (chat.AIMessage, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	release := m.release
	m.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return chat.AIMessage{}, ctx.Err()
		}
	}
	return m.reply, m.err
}

func (m *mockCompleter) Calls() []chat.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chat.CompletionRequest(nil), m.calls...)
}

type updateRecorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *updateRecorder) Emit(u Update) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

func (r *updateRecorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notice
	for _, u := range r.updates {
		if u.Kind == UpdateNotice {
			out = append(out, *u.Notice)
		}
	}
	return out
}

var errStoreDown = errors.New("store down")

// flakyStore fails Select while failing is set.
type flakyStore struct {
	history.Store
	mu      sync.Mutex
	failing bool
}

func (s *flakyStore) setFailing(v bool) {
	s.mu.Lock()
	s.failing = v
	s.mu.Unlock()
}

func (s *flakyStore) Select(ctx context.Context, q history.Query) ([]history.Row, error) {
	s.mu.Lock()
	failing := s.failing
	s.mu.Unlock()
	if failing {
		return nil, errStoreDown
	}
	return s.Store.Select(ctx, q)
}

// manualClock is a settable clock for stores and aggregators.
type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func newManualClock(t time.Time) *manualClock {
	return &manualClock{t: t}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

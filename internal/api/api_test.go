package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/taxassist-go/internal/chat"
	"github.com/comigor/taxassist-go/internal/config"
	"github.com/comigor/taxassist-go/internal/history"
	"github.com/comigor/taxassist-go/internal/panel"
)

type mockCompleter struct {
	mu    sync.Mutex
	calls []chat.CompletionRequest
	reply chat.AIMessage
	err   error
}

func (m *mockCompleter) Complete(ctx context.Context, req chat.CompletionRequest) (chat.AIMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	return m.reply, m.err
}

func (m *mockCompleter) Calls() []chat.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chat.CompletionRequest(nil), m.calls...)
}

func answer(text string) chat.AIMessage {
	return chat.AIMessage{
		ResponseType: chat.ResponseAnswer,
		Message:      chat.MessageBody{Text: text, Confidence: chat.ConfidenceHigh},
		QuickActions: []chat.QuickAction{},
		Personalization: chat.Personalization{
			UserContext:   "Final Review",
			RelevantForms: []string{"1040"},
		},
		References: []chat.Reference{},
	}
}

type testEnv struct {
	completer *mockCompleter
	store     history.Store
	panels    *panel.Manager
	router    http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	completer := &mockCompleter{reply: answer("Form 1040 is the U.S. individual income tax return.")}
	store := history.NewMemoryStore()
	panels := panel.NewManager(panel.Options{
		Store:     store,
		Completer: completer,
		Config: config.PanelConfig{
			HistoryPerBucket:    5,
			TitleMaxChars:       50,
			DiscardStaleReplies: true,
			RequestTimeout:      5 * time.Second,
		},
	})
	t.Cleanup(panels.Shutdown)
	h := NewHandler(completer, panels, store, []string{"*"})
	return &testEnv{completer: completer, store: store, panels: panels, router: h.Router()}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestChat_Success(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/chat", chat.CompletionRequest{
		Message:     "What is Form 1040?",
		SessionID:   "s1",
		UserContext: "Final Review",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[chat.AIMessage](t, rec)
	require.Equal(t, "Form 1040 is the U.S. individual income tax return.", got.Message.Text)
	require.Equal(t, []chat.CompletionRequest{{Message: "What is Form 1040?", SessionID: "s1", UserContext: "Final Review"}}, env.completer.Calls())
}

func TestChat_BadRequest(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/chat", chat.CompletionRequest{SessionID: "s1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/chat", chat.CompletionRequest{Message: "hi"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString("{not json"))
	raw := httptest.NewRecorder()
	env.router.ServeHTTP(raw, req)
	require.Equal(t, http.StatusBadRequest, raw.Code)

	require.Empty(t, env.completer.Calls())
}

func TestChat_FailureReturnsApology(t *testing.T) {
	env := newTestEnv(t)
	env.completer.err = errors.New("model unavailable")

	rec := env.do(t, http.MethodPost, "/api/chat", chat.CompletionRequest{Message: "hi", SessionID: "s1"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "model unavailable", body["error"])
	require.Equal(t, "answer", body["response_type"])
	require.Equal(t, []any{}, body["quick_actions"])

	got := decodeBody[chat.AIMessage](t, rec)
	require.Equal(t, chat.ConfidenceLow, got.Message.Confidence)
	require.Equal(t, "Error", got.Personalization.UserContext)
	require.NotEmpty(t, got.Message.Text)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

type pingStore struct {
	history.Store
	err error
}

func (s *pingStore) Ping(ctx context.Context) error { return s.err }

func TestReady(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code, "stores without Ping are always ready")

	store := &pingStore{Store: history.NewMemoryStore()}
	router := NewHandler(env.completer, env.panels, store, []string{"*"}).Router()

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	ok := httptest.NewRecorder()
	router.ServeHTTP(ok, req)
	require.Equal(t, http.StatusOK, ok.Code)

	store.err = errors.New("database is locked")
	down := httptest.NewRecorder()
	router.ServeHTTP(down, req)
	require.Equal(t, http.StatusServiceUnavailable, down.Code)
}

func TestReady_SQLiteStore(t *testing.T) {
	store, err := history.NewSQLiteStore(filepath.Join(t.TempDir(), "ready.db"))
	require.NoError(t, err)
	env := newTestEnv(t)
	router := NewHandler(env.completer, env.panels, store, []string{"*"}).Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, store.Close())
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

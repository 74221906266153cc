package panel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/taxassist-go/internal/chat"
	"github.com/comigor/taxassist-go/internal/config"
	"github.com/comigor/taxassist-go/internal/history"
)

func testOptions(store history.Store, completer Completer) Options {
	return Options{
		Store:     store,
		Completer: completer,
		Config: config.PanelConfig{
			HistoryPerBucket:    5,
			TitleMaxChars:       50,
			DiscardStaleReplies: true,
			RequestTimeout:      5 * time.Second,
		},
	}
}

func nextUpdate(t *testing.T, ch <-chan Update, kind UpdateKind) Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			require.True(t, ok, "update feed closed")
			if u.Kind == kind {
				return u
			}
		case <-deadline:
			t.Fatalf("no %s update received", kind)
		}
	}
}

func TestPanel_OpenLoadsHistoryAndSyncs(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore()
	_, err := store.Insert(ctx, "earlier", chat.RoleUser, "What is the child tax credit?")
	require.NoError(t, err)

	p := New(testOptions(store, newMockCompleter("ok")), "/deductions-credits")
	require.False(t, p.IsOpen())

	state := p.Open(ctx)
	require.True(t, state.Open)
	require.Equal(t, "Federal Taxes - Deductions & Credits", state.Milestone)
	require.Len(t, state.History.Today, 1)
	require.Equal(t, "What is the child tax credit?", state.History.Today[0].Title)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	updates, _ := p.Subscribe(subCtx)

	_, err = store.Insert(ctx, "other-tab", chat.RoleUser, "Do I need to file a state return?")
	require.NoError(t, err)

	u := nextUpdate(t, updates, UpdateHistory)
	require.Len(t, u.History.Today, 2)
	require.Equal(t, "other-tab", u.History.Today[0].SessionID)

	p.Close()
	require.False(t, p.IsOpen())
	require.False(t, p.sync.Running())
}

func TestPanel_SendUsesLocationMilestone(t *testing.T) {
	ctx := context.Background()
	completer := newMockCompleter("Sure.")
	p := New(testOptions(history.NewMemoryStore(), completer), "/personal-info")
	p.Open(ctx)
	defer p.Close()

	p.SetLocation("/state-review")
	ex := p.Controller().SendMessage(ctx, "Is my state return ready?")
	waitExchange(t, ex)

	require.Equal(t, "State Review", completer.Calls()[0].UserContext)
	require.Len(t, p.State().Session.Messages, 2)
}

func TestPanel_SessionUpdatesArePublished(t *testing.T) {
	ctx := context.Background()
	completer := newMockCompleter("Answer").blocking()
	p := New(testOptions(history.NewMemoryStore(), completer), "/")

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	updates, _ := p.Subscribe(subCtx)

	ex := p.Controller().SendMessage(ctx, "hello")
	u := nextUpdate(t, updates, UpdateSession)
	require.True(t, u.Session.Loading)
	require.Len(t, u.Session.Messages, 1)

	completer.unblock()
	waitExchange(t, ex)
	u = nextUpdate(t, updates, UpdateSession)
	require.False(t, u.Session.Loading)
	require.Len(t, u.Session.Messages, 2)
}

func TestPanel_HandleQuickAction(t *testing.T) {
	ctx := context.Background()
	p := New(testOptions(history.NewMemoryStore(), newMockCompleter("ok")), "/personal-info")

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	updates, _ := p.Subscribe(subCtx)

	out := p.HandleQuickAction(chat.QuickAction{Type: chat.QuickActionRoute, Label: "Review", Action: "/review"})
	require.Equal(t, "/review", out.Navigate)
	require.Equal(t, "Final Review", p.Milestone())
	require.Equal(t, "/review", nextUpdate(t, updates, UpdateNavigate).Navigate)

	p.HandleQuickAction(chat.QuickAction{Type: chat.QuickActionInfo, Context: "Form 8863 covers education credits."})
	n := nextUpdate(t, updates, UpdateNotice)
	require.Equal(t, "Information", n.Notice.Title)
}

func TestManager_Lifecycle(t *testing.T) {
	m := NewManager(testOptions(history.NewMemoryStore(), newMockCompleter("ok")))

	p := m.Create("/file")
	got, err := m.Get(p.ID)
	require.NoError(t, err)
	require.Same(t, p, got)
	require.Equal(t, 1, m.Len())

	updates, _ := p.Subscribe(context.Background())

	require.NoError(t, m.Remove(p.ID))
	require.ErrorIs(t, m.Remove(p.ID), ErrPanelNotFound)
	_, err = m.Get(p.ID)
	require.ErrorIs(t, err, ErrPanelNotFound)

	// The update feed is closed once the panel is removed.
	for range updates {
	}

	m.Create("/")
	m.Create("/review")
	m.Shutdown()
	require.Zero(t, m.Len())
}

package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/taxassist-go/internal/chat"
	"github.com/comigor/taxassist-go/internal/history"
)

func userRow(t *testing.T, session string, message any, at time.Time) history.Row {
	t.Helper()
	raw, err := json.Marshal(message)
	require.NoError(t, err)
	return history.Row{SessionID: session, Role: chat.RoleUser, Message: raw, CreatedAt: at}
}

func sessionIDs(entries []chat.ConversationHistoryEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.SessionID)
	}
	return ids
}

func TestAggregate_TitleFromFirstRankByLast(t *testing.T) {
	day := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	at := func(n int) time.Time { return day.Add(time.Duration(n) * time.Minute) }

	rows := []history.Row{
		userRow(t, "s1", "hi there, question about W-2 forms", at(1)),
		userRow(t, "s2", "state tax question", at(3)),
		userRow(t, "s1", "thanks!", at(5)),
	}

	entries := Aggregate(rows, 5, 50)
	require.Equal(t, []string{"s1", "s2"}, sessionIDs(entries))
	require.Equal(t, "hi there, question about W-2 forms", entries[0].Title)
	require.Equal(t, at(1), entries[0].CreatedAt)
	require.Equal(t, "state tax question", entries[1].Title)
}

func TestAggregate_UnorderedInput(t *testing.T) {
	day := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	rows := []history.Row{
		userRow(t, "s1", "later", day.Add(5*time.Minute)),
		userRow(t, "s2", "middle", day.Add(3*time.Minute)),
		userRow(t, "s1", "first", day.Add(time.Minute)),
	}

	entries := Aggregate(rows, 5, 50)
	require.Equal(t, []string{"s1", "s2"}, sessionIDs(entries))
	require.Equal(t, "first", entries[0].Title)
}

func TestAggregate_CapsEntries(t *testing.T) {
	day := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	var rows []history.Row
	for i := 0; i < 8; i++ {
		rows = append(rows, userRow(t, fmt.Sprintf("s%d", i), "question", day.Add(time.Duration(i)*time.Minute)))
	}

	entries := Aggregate(rows, 5, 50)
	require.Len(t, entries, 5)
	require.Equal(t, []string{"s7", "s6", "s5", "s4", "s3"}, sessionIDs(entries))
}

func TestAggregate_TitleExtraction(t *testing.T) {
	day := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	long := strings.Repeat("a", 60)
	rows := []history.Row{
		userRow(t, "plain", long, day.Add(4*time.Minute)),
		userRow(t, "object", chat.UserPayload{Text: "from an object", Context: "Final Review"}, day.Add(3*time.Minute)),
		userRow(t, "empty", chat.UserPayload{Text: ""}, day.Add(2*time.Minute)),
		userRow(t, "unicode", "déduction pour les frais de garde d'enfants à domicile", day.Add(time.Minute)),
	}

	entries := Aggregate(rows, 5, 50)
	byID := make(map[string]string)
	for _, e := range entries {
		byID[e.SessionID] = e.Title
	}
	require.Equal(t, strings.Repeat("a", 50)+"...", byID["plain"])
	require.Equal(t, "from an object", byID["object"])
	require.Equal(t, chat.UntitledConversation, byID["empty"])
	require.Equal(t, "déduction pour les frais de garde d'enfants à domi...", byID["unicode"])
}

func TestAggregate_Empty(t *testing.T) {
	entries := Aggregate(nil, 5, 50)
	require.NotNil(t, entries)
	require.Empty(t, entries)
}

func TestHistoryAggregator_Buckets(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 10, 15, 0, 0, 0, time.UTC)
	clock := newManualClock(now.AddDate(0, 0, -2))
	store := history.NewMemoryStore(history.WithClock(clock.Now))

	insert := func(at time.Time, session string, role chat.Role, msg any) {
		clock.Set(at)
		_, err := store.Insert(ctx, session, role, msg)
		require.NoError(t, err)
	}
	insert(now.AddDate(0, 0, -2), "old", chat.RoleUser, "two days ago")
	insert(time.Date(2026, 4, 9, 0, 0, 0, 0, time.UTC), "y1", chat.RoleUser, "yesterday at midnight")
	insert(time.Date(2026, 4, 9, 23, 59, 59, 0, time.UTC), "y2", chat.RoleUser, "yesterday late")
	insert(time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC), "t1", chat.RoleUser, "today at midnight")
	insert(time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC), "t1", chat.RoleAssistant, chat.FallbackAIMessage("reply", ""))
	insert(time.Date(2026, 4, 10, 10, 0, 0, 0, time.UTC), "t2", chat.RoleUser, "today later")

	agg := NewHistoryAggregator(store, func() time.Time { return now }, 5, 50)
	view, err := agg.Refresh(ctx)
	require.NoError(t, err)

	require.Equal(t, []string{"t2", "t1"}, sessionIDs(view.Today))
	require.Equal(t, []string{"y2", "y1"}, sessionIDs(view.Yesterday))
	require.Equal(t, view, agg.View())

	e, ok := agg.Find("y1")
	require.True(t, ok)
	require.Equal(t, "yesterday at midnight", e.Title)
	_, ok = agg.Find("old")
	require.False(t, ok)
}

func TestHistoryAggregator_KeepsLastViewOnFailure(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: history.NewMemoryStore()}
	_, err := store.Insert(ctx, "s1", chat.RoleUser, "first question")
	require.NoError(t, err)

	agg := NewHistoryAggregator(store, nil, 0, 0)
	good, err := agg.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, good.Today, 1)

	store.setFailing(true)
	_, err = store.Store.Insert(ctx, "s2", chat.RoleUser, "second question")
	require.NoError(t, err)

	stale, err := agg.Refresh(ctx)
	require.ErrorIs(t, err, errStoreDown)
	require.Equal(t, good, stale)
	require.Equal(t, good, agg.View())
}

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/pubsub"
	"github.com/roach88/rollcall/internal/roster"
	"github.com/roach88/rollcall/internal/store"
	"github.com/roach88/rollcall/internal/testutil"
)

var sheet = attendance.Sheet{Date: "2024-03-10", ScopeID: "program-7", SubjectType: attendance.SubjectPlayer}

func setupEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	clock := testutil.NewDeterministicClock()
	s, err := store.Open(t.TempDir()+"/test.db", store.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e := New(s, pubsub.New(), roster.Static{"program-7": {"p1", "p2", "p3"}},
		WithIDGenerator(testutil.NewSequenceGenerator("evt")))
	t.Cleanup(e.Close)
	return e, s
}

func subscribe(t *testing.T, e *Engine) attendance.Subscription {
	t.Helper()
	sub, err := e.Subscribe(context.Background(), attendance.FilterFor(sheet))
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })
	return sub
}

func nextEvent(t *testing.T, sub attendance.Subscription) attendance.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no change event")
		return attendance.ChangeEvent{}
	}
}

func statuses(records []attendance.Record) map[string]attendance.Status {
	out := make(map[string]attendance.Status)
	for _, r := range records {
		out[r.SubjectID] = r.Status
	}
	return out
}

func TestEngine_InitializePublishesOnce(t *testing.T) {
	e, _ := setupEngine(t)
	sub := subscribe(t, e)
	ctx := context.Background()

	created, err := e.Initialize(ctx, sheet)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	ev := nextEvent(t, sub)
	assert.Equal(t, "evt-1", ev.ID)
	assert.Equal(t, 3, ev.Count)
	assert.Empty(t, ev.Editor)

	created, err = e.Initialize(ctx, sheet)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Len(t, sub.Events(), 0, "no event when nothing was created")
}

func TestEngine_BulkUpsertPublishesOneEventPerCall(t *testing.T) {
	e, _ := setupEngine(t)
	sub := subscribe(t, e)

	err := e.BulkUpsert(context.Background(), sheet, []attendance.Entry{
		{SubjectID: "p1", Status: attendance.StatusPresent},
		{SubjectID: "p2", Status: attendance.StatusLate},
		{SubjectID: "p3", Status: attendance.StatusAbsent},
	}, "editor-a")
	require.NoError(t, err)

	ev := nextEvent(t, sub)
	assert.Equal(t, sheet.Date, ev.Date)
	assert.Equal(t, sheet.ScopeID, ev.ScopeID)
	assert.Equal(t, attendance.SubjectPlayer, ev.SubjectType)
	assert.Equal(t, "editor-a", ev.Editor)
	assert.Equal(t, 3, ev.Count)
	assert.Equal(t, int64(1), ev.Seq)
	assert.Len(t, sub.Events(), 0)
}

func TestEngine_CommitAtomicity(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()
	_, err := e.Initialize(ctx, sheet)
	require.NoError(t, err)

	before, err := e.Get(ctx, sheet)
	require.NoError(t, err)

	err = e.Commit(ctx, sheet, map[string]attendance.Status{
		"p1": attendance.StatusPresent,
		"p2": "tardy",
	}, "editor-a")
	require.True(t, attendance.IsValidation(err))

	after, err := e.Get(ctx, sheet)
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed commit leaves the sheet unchanged")

	effective := map[string]attendance.Status{
		"p1": attendance.StatusPresent,
		"p2": attendance.StatusLate,
		"p3": attendance.StatusUnset,
	}
	require.NoError(t, e.Commit(ctx, sheet, effective, "editor-a"))

	after, err = e.Get(ctx, sheet)
	require.NoError(t, err)
	assert.Equal(t, effective, statuses(after))
}

func TestEngine_LastWriteWins(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Commit(ctx, sheet, map[string]attendance.Status{"s": attendance.StatusPresent}, "c1"))
	require.NoError(t, e.Commit(ctx, sheet, map[string]attendance.Status{"s": attendance.StatusAbsent}, "c2"))

	records, err := e.Get(ctx, sheet)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, attendance.StatusAbsent, records[0].Status)
	assert.Equal(t, "c2", records[0].RecordedBy)
}

func TestEngine_EventsInCommitOrder(t *testing.T) {
	e, _ := setupEngine(t)
	sub := subscribe(t, e)
	ctx := context.Background()

	for _, editor := range []string{"a", "b", "c"} {
		require.NoError(t, e.Commit(ctx, sheet, map[string]attendance.Status{"p1": attendance.StatusPresent}, editor))
	}
	for i, editor := range []string{"a", "b", "c"} {
		ev := nextEvent(t, sub)
		assert.Equal(t, editor, ev.Editor)
		assert.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestEngine_CancelledAfterAcceptanceStillWrites(t *testing.T) {
	e, s := setupEngine(t)
	sub := subscribe(t, e)

	ctx, cancel := context.WithCancel(context.Background())
	// Cancel as soon as the store starts the write.
	s.SetCommitHook(func(sh attendance.Sheet, n int, editor string, at time.Time) {
		cancel()
		e.announce(sh, n, editor, at)
	})

	err := e.Commit(ctx, sheet, map[string]attendance.Status{"p1": attendance.StatusPresent}, "editor-a")
	require.NoError(t, err)
	nextEvent(t, sub)

	records, err := e.Get(context.Background(), sheet)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusPresent, statuses(records)["p1"])
}

func TestEngine_CancelledBeforeAcceptanceWritesNothing(t *testing.T) {
	e, _ := setupEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.Commit(ctx, sheet, map[string]attendance.Status{"p1": attendance.StatusPresent}, "editor-a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_GetUnknownScope(t *testing.T) {
	e, _ := setupEngine(t)

	_, err := e.Get(context.Background(), attendance.Sheet{Date: "2024-03-10", ScopeID: "program-99"})
	assert.True(t, attendance.IsNotFound(err))

	records, err := e.Get(context.Background(), sheet)
	require.NoError(t, err)
	assert.Empty(t, records, "known scope with no records is empty, not missing")
}

func TestEngine_InitializeWithoutResolver(t *testing.T) {
	s, err := store.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	defer s.Close()

	e := New(s, pubsub.New(), nil)
	_, err = e.Initialize(context.Background(), sheet)
	assert.True(t, attendance.IsNotFound(err))
}

func TestEngine_SubscribeValidatesFilter(t *testing.T) {
	e, _ := setupEngine(t)

	_, err := e.Subscribe(context.Background(), attendance.Filter{Date: "bad", ScopeID: "program-7"})
	assert.True(t, attendance.IsValidation(err))

	e.Close()
	_, err = e.Subscribe(context.Background(), attendance.FilterFor(sheet))
	assert.True(t, attendance.IsTransport(err))
}

func TestULIDGenerator_Sortable(t *testing.T) {
	g := NewULIDGenerator()
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 26)
	assert.Less(t, a, b)
}

func TestEngine_InitializeAnnouncesThroughCommitHook(t *testing.T) {
	e, s := setupEngine(t)
	sub := subscribe(t, e)
	ctx := context.Background()

	var hooked []int
	s.SetCommitHook(func(sh attendance.Sheet, n int, editor string, at time.Time) {
		hooked = append(hooked, n)
		e.announce(sh, n, editor, at)
	})

	_, err := e.Initialize(ctx, sheet)
	require.NoError(t, err)
	require.NoError(t, e.BulkUpsert(ctx, sheet, []attendance.Entry{
		{SubjectID: "p1", Status: attendance.StatusPresent},
	}, "editor-a"))

	assert.Equal(t, []int{3, 1}, hooked, "initialize publishes from under the sheet lock")
	first, second := nextEvent(t, sub), nextEvent(t, sub)
	assert.Empty(t, first.Editor)
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, "editor-a", second.Editor)
	assert.Equal(t, int64(2), second.Seq)
}

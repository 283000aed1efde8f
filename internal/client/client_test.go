package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/pubsub"
	"github.com/roach88/rollcall/internal/roster"
	"github.com/roach88/rollcall/internal/server"
	"github.com/roach88/rollcall/internal/session"
	"github.com/roach88/rollcall/internal/store"
	"github.com/roach88/rollcall/internal/testutil"
)

var sheet = attendance.Sheet{Date: "2024-03-10", ScopeID: "program-7", SubjectType: attendance.SubjectPlayer}

var _ session.Backend = (*Client)(nil)

func setup(t *testing.T) (*Client, *engine.Engine, *httptest.Server) {
	t.Helper()
	clock := testutil.NewDeterministicClock()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	e := engine.New(st, pubsub.New(), roster.Static{"program-7": {"p1", "p2", "p3"}})
	ts := httptest.NewServer(server.New(e).Handler())
	t.Cleanup(func() {
		e.Close()
		ts.Close()
	})

	c, err := New(ts.URL)
	require.NoError(t, err)
	return c, e, ts
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.True(t, attendance.IsValidation(err))

	_, err = New("://nope")
	assert.True(t, attendance.IsValidation(err))
}

func TestClient_RoundTrip(t *testing.T) {
	c, _, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	created, err := c.Initialize(ctx, sheet)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	require.NoError(t, c.BulkUpsert(ctx, sheet, []attendance.Entry{
		{SubjectID: "p1", Status: attendance.StatusPresent},
		{SubjectID: "p2", Status: attendance.StatusAbsent},
	}, "coach-a"))

	records, err := c.Get(ctx, sheet)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, attendance.StatusPresent, records[0].Status)
	assert.Equal(t, "coach-a", records[0].RecordedBy)
	assert.Equal(t, attendance.StatusUnset, records[2].Status)
}

func TestClient_TypedErrors(t *testing.T) {
	c, _, _ := setup(t)
	ctx := context.Background()

	err := c.BulkUpsert(ctx, sheet, []attendance.Entry{{SubjectID: "p1", Status: "tardy"}}, "coach-a")
	assert.True(t, attendance.IsValidation(err), "got %v", err)

	_, err = c.Get(ctx, attendance.Sheet{Date: "2024-03-10", ScopeID: "nowhere"})
	assert.True(t, attendance.IsNotFound(err), "got %v", err)

	_, err = c.Subscribe(ctx, attendance.Filter{Date: "yesterday", ScopeID: "program-7"})
	assert.True(t, attendance.IsValidation(err), "got %v", err)
}

func TestClient_ScopeIsEscaped(t *testing.T) {
	c, e, _ := setup(t)
	ctx := context.Background()
	odd := attendance.Sheet{Date: "2024-03-10", ScopeID: "branch/north 2", SubjectType: attendance.SubjectStaff}

	require.NoError(t, c.BulkUpsert(ctx, odd, []attendance.Entry{{SubjectID: "coach-1", Status: attendance.StatusLate}}, "admin"))

	records, err := e.Get(ctx, odd)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "branch/north 2", records[0].ScopeID)
}

func TestClient_TransportErrorWhenServerDown(t *testing.T) {
	c, _, ts := setup(t)
	ts.Close()

	_, err := c.Get(context.Background(), sheet)
	assert.True(t, attendance.IsTransport(err), "got %v", err)

	_, err = c.Subscribe(context.Background(), attendance.FilterFor(sheet))
	assert.True(t, attendance.IsTransport(err), "got %v", err)
}

func TestClient_SubscribeStreamsAndCloses(t *testing.T) {
	c, e, _ := setup(t)
	ctx := context.Background()

	sub, err := c.Subscribe(ctx, attendance.FilterFor(sheet))
	require.NoError(t, err)

	require.NoError(t, e.BulkUpsert(ctx, sheet, []attendance.Entry{{SubjectID: "p3", Status: attendance.StatusExcused}}, "coach-b"))

	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok)
		assert.Equal(t, "coach-b", ev.Editor)
		assert.Equal(t, 1, ev.Count)
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	_, ok := <-sub.Events()
	assert.False(t, ok, "channel closed after Close")
}

func TestClient_SessionFallsBackWhenStreamDrops(t *testing.T) {
	c, e, _ := setup(t)
	ctx := context.Background()
	_, err := e.Initialize(ctx, sheet)
	require.NoError(t, err)

	s, err := session.Open(ctx, c, sheet, "coach-a", session.WithPollInterval(20*time.Millisecond))
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, session.ModeLive, s.Mode())

	require.NoError(t, e.BulkUpsert(ctx, sheet, []attendance.Entry{{SubjectID: "p1", Status: attendance.StatusLate}}, "coach-b"))
	require.Eventually(t, func() bool {
		st, _ := s.Effective("p1")
		return st == attendance.StatusLate
	}, 2*time.Second, 5*time.Millisecond, "live push refresh")

	// Shutting the publisher ends every stream; the server sends a close
	// frame and new subscriptions are refused.
	e.Close()
	require.Eventually(t, func() bool { return s.Mode() == session.ModePolling }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, e.BulkUpsert(ctx, sheet, []attendance.Entry{{SubjectID: "p2", Status: attendance.StatusPresent}}, "coach-b"))
	require.Eventually(t, func() bool {
		st, _ := s.Effective("p2")
		return st == attendance.StatusPresent
	}, 2*time.Second, 5*time.Millisecond, "polling keeps the baseline fresh")

	require.NoError(t, s.Edit("p3", attendance.StatusAbsent))
	require.NoError(t, s.Commit(ctx))

	records, err := c.Get(ctx, sheet)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusAbsent, records[2].Status)
}

func TestDecodeError_UntypedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()

	c, err := New(ts.URL)
	require.NoError(t, err)
	_, err = c.Get(context.Background(), sheet)
	assert.True(t, attendance.IsTransport(err))
}

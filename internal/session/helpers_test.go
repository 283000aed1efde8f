package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/pubsub"
	"github.com/roach88/rollcall/internal/roster"
	"github.com/roach88/rollcall/internal/store"
	"github.com/roach88/rollcall/internal/testutil"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
	poll    = 20 * time.Millisecond
)

var sheet = attendance.Sheet{Date: "2024-03-10", ScopeID: "program-7", SubjectType: attendance.SubjectPlayer}

// flakyBackend wraps a real engine and can refuse subscriptions, fail reads
// or commits, hold commits open, run a callback after a commit is stored, or
// sever every open subscription.
type flakyBackend struct {
	*engine.Engine
	pub *pubsub.Publisher

	mu            sync.Mutex
	failSubscribe bool
	failGet       error
	failCommit    error
	holdCommit    chan struct{}
	afterCommit   func()
	subscribes    int
	subs          []attendance.Subscription
}

func (f *flakyBackend) Subscribe(ctx context.Context, filter attendance.Filter) (attendance.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	if f.failSubscribe {
		return nil, attendance.Transport("subscribe", errors.New("push channel unavailable"))
	}
	sub, err := f.Engine.Subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *flakyBackend) BulkUpsert(ctx context.Context, s attendance.Sheet, entries []attendance.Entry, editor string) error {
	f.mu.Lock()
	fail, hold := f.failCommit, f.holdCommit
	f.mu.Unlock()

	if hold != nil {
		<-hold
	}
	if fail != nil {
		return fail
	}
	if err := f.Engine.BulkUpsert(ctx, s, entries, editor); err != nil {
		return err
	}

	f.mu.Lock()
	after := f.afterCommit
	f.afterCommit = nil
	f.mu.Unlock()
	if after != nil {
		after()
	}
	return nil
}

func (f *flakyBackend) Get(ctx context.Context, s attendance.Sheet) ([]attendance.Record, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return f.Engine.Get(ctx, s)
}

func (f *flakyBackend) setFailGet(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet = err
}

func (f *flakyBackend) setFailSubscribe(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSubscribe = v
}

// dropAll severs every subscription handed out so far.
func (f *flakyBackend) dropAll() {
	f.mu.Lock()
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

func (f *flakyBackend) subscribeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes
}

func setupBackend(t *testing.T) *flakyBackend {
	t.Helper()
	clock := testutil.NewDeterministicClock()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	pub := pubsub.New()
	e := engine.New(st, pub, roster.Static{"program-7": {"p1", "p2", "p3"}},
		engine.WithIDGenerator(testutil.NewSequenceGenerator("evt")))
	t.Cleanup(e.Close)

	_, err = e.Initialize(context.Background(), sheet)
	require.NoError(t, err)
	return &flakyBackend{Engine: e, pub: pub}
}

func openSession(t *testing.T, b Backend, editor string, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithPollInterval(poll)}, opts...)
	s, err := Open(context.Background(), b, sheet, editor, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func effective(s *Session, id string) attendance.Status {
	st, _ := s.Effective(id)
	return st
}

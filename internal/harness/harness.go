package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/engine"
	"github.com/roach88/rollcall/internal/pubsub"
	"github.com/roach88/rollcall/internal/roster"
	"github.com/roach88/rollcall/internal/session"
	"github.com/roach88/rollcall/internal/store"
	"github.com/roach88/rollcall/internal/testutil"
)

// eventBuffer is large enough that no scenario drops a change event.
const eventBuffer = 1024

// Harness is the scenario execution engine.
// It runs scenarios with a deterministic clock and sequential ids.
type Harness struct {
	engine   *engine.Engine
	backend  *quietBackend
	sheet    attendance.Sheet
	roster   []string
	sessions map[string]*session.Session
	ids      *testutil.SequenceGenerator
	events   attendance.Subscription
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database, engine, and event subscription
// 2. Execute steps, checking each expect clause
// 3. Record published change events after every step
// 4. Evaluate assertions against the final state
func Run(scenario *Scenario) (*Result, error) {
	sheet, err := scenario.Sheet.Sheet()
	if err != nil {
		return nil, fmt.Errorf("invalid sheet: %w", err)
	}

	clock := testutil.NewDeterministicClock()
	st, err := store.Open(":memory:", store.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	eng := engine.New(st, pubsub.New(pubsub.WithBuffer(eventBuffer)), roster.Static(scenario.Roster),
		engine.WithIDGenerator(testutil.NewSequenceGenerator("evt")))
	defer eng.Close()

	ctx := context.Background()
	events, err := eng.Subscribe(ctx, attendance.FilterFor(sheet))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	defer events.Close()

	h := &Harness{
		engine:   eng,
		backend:  &quietBackend{Engine: eng},
		sheet:    sheet,
		roster:   scenario.Roster[sheet.ScopeID],
		sessions: make(map[string]*session.Session),
		ids:      testutil.NewSequenceGenerator("session"),
		events:   events,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	defer h.closeSessions()

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.executeStep(ctx, step)
		ev.Outcome = outcome(err)
		result.addTrace(ev)
		checkExpect(result, i, step, ev, err)
		h.drainEvents(result)

		h.logger.Info("step completed", "step", i, "action", step.Action, "outcome", ev.Outcome)
	}

	records, err := eng.Get(ctx, sheet)
	if err != nil && !attendance.IsNotFound(err) {
		return nil, fmt.Errorf("failed to read final sheet: %w", err)
	}
	for _, rec := range records {
		result.Stored[rec.SubjectID] = string(rec.Status)
	}

	actx := &AssertionContext{
		Records:  records,
		Sessions: h.sessions,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// executeStep runs one step and returns its trace entry, without Outcome.
func (h *Harness) executeStep(ctx context.Context, step Step) (TraceEvent, error) {
	ev := TraceEvent{
		Type:    "step",
		Action:  step.Action,
		Session: step.Session,
		Subject: step.Subject,
		Status:  step.Status,
		Editor:  step.Editor,
	}

	var err error
	switch step.Action {
	case ActionInitialize:
		var n int
		n, err = h.engine.Initialize(ctx, h.sheet)
		if err == nil {
			ev.Created = &n
		}
		return ev, err

	case ActionWrite:
		entries := make(map[string]attendance.Status, len(step.Entries))
		for id, st := range step.Entries {
			entries[id] = attendance.Status(st)
		}
		return ev, h.engine.BulkUpsert(ctx, h.sheet, attendance.EntriesFromMap(entries), step.Editor)

	case ActionOpen:
		if _, ok := h.sessions[step.Session]; ok {
			return ev, attendance.Invalid("session", "session %s already open", step.Session)
		}
		var s *session.Session
		s, err = session.Open(ctx, h.backend, h.sheet, step.Session,
			session.WithRoster(h.roster),
			session.WithIDGenerator(h.ids),
		)
		if err != nil {
			return ev, err
		}
		h.sessions[step.Session] = s
		fillView(&ev, s)
		return ev, nil
	}

	s, ok := h.sessions[step.Session]
	if !ok {
		return ev, attendance.NotFound("session %s is not open", step.Session)
	}

	switch step.Action {
	case ActionEdit:
		err = s.Edit(step.Subject, attendance.Status(step.Status))
	case ActionCommit:
		err = s.Commit(ctx)
	case ActionDiscard:
		s.Discard()
	case ActionRefresh:
		err = s.Refresh(ctx)
	case ActionClose:
		err = s.Close()
		delete(h.sessions, step.Session)
		return ev, err
	default:
		return ev, attendance.Invalid("action", "unknown action %q", step.Action)
	}

	fillView(&ev, s)
	return ev, err
}

// drainEvents records every change event published so far.
func (h *Harness) drainEvents(result *Result) {
	for {
		select {
		case ev, ok := <-h.events.Events():
			if !ok {
				return
			}
			result.Events++
			result.addTrace(TraceEvent{
				Type:    "event",
				EventID: ev.ID,
				Editor:  ev.Editor,
				Count:   ev.Count,
			})
		default:
			return
		}
	}
}

func (h *Harness) closeSessions() {
	for name, s := range h.sessions {
		s.Close()
		delete(h.sessions, name)
	}
}

// fillView copies a session's current view into ev.
func fillView(ev *TraceEvent, s *session.Session) {
	ev.Effective = statusStrings(s.EffectiveMap())
	ev.Pending = statusStrings(s.Pending())
	for _, n := range s.Conflicts() {
		ev.Conflicts = append(ev.Conflicts, n.SubjectID)
	}
}

func statusStrings(m map[string]attendance.Status) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for id, st := range m {
		out[id] = string(st)
	}
	return out
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := attendance.CodeOf(err); code != "" {
		return string(code)
	}
	return "ERROR"
}

// checkExpect validates one step against its expect clause.
func checkExpect(result *Result, i int, step Step, ev TraceEvent, err error) {
	exp := step.Expect
	if exp == nil {
		if err != nil {
			result.AddError(fmt.Sprintf("step %d (%s): unexpected error: %v", i, step.Action, err))
		}
		return
	}

	want := exp.Error
	if want == "" {
		want = "ok"
	}
	if ev.Outcome != want {
		result.AddError(fmt.Sprintf("step %d (%s): expected %s, got %s (%v)", i, step.Action, want, ev.Outcome, err))
		return
	}

	if exp.Created != nil {
		got := 0
		if ev.Created != nil {
			got = *ev.Created
		}
		if got != *exp.Created {
			result.AddError(fmt.Sprintf("step %d (%s): expected %d created, got %d", i, step.Action, *exp.Created, got))
		}
	}

	for _, msg := range subsetMismatches(exp.Effective, ev.Effective) {
		result.AddError(fmt.Sprintf("step %d (%s): effective: %s", i, step.Action, msg))
	}

	if exp.Pending != nil {
		for _, msg := range exactMismatches(exp.Pending, ev.Pending) {
			result.AddError(fmt.Sprintf("step %d (%s): pending: %s", i, step.Action, msg))
		}
	}

	if exp.Conflicts != nil && !sameStrings(exp.Conflicts, ev.Conflicts) {
		result.AddError(fmt.Sprintf("step %d (%s): expected conflicts %v, got %v", i, step.Action, exp.Conflicts, ev.Conflicts))
	}
}

// quietBackend hands sessions a push stream that never fires, so their
// baselines change only on explicit refresh and commit.
type quietBackend struct {
	*engine.Engine
}

func (b *quietBackend) Subscribe(ctx context.Context, f attendance.Filter) (attendance.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, attendance.Transport("subscribe", err)
	}
	return &quietSubscription{ch: make(chan attendance.ChangeEvent)}, nil
}

type quietSubscription struct {
	ch   chan attendance.ChangeEvent
	once sync.Once
}

func (s *quietSubscription) Events() <-chan attendance.ChangeEvent { return s.ch }

func (s *quietSubscription) Close() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a = append([]string(nil), a...)
	b = append([]string(nil), b...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

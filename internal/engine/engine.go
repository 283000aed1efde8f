package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/pubsub"
	"github.com/roach88/rollcall/internal/roster"
	"github.com/roach88/rollcall/internal/store"
)

// Engine serves attendance sheets to editors.
//
// Thread-safety model:
//   - every method is safe from any goroutine
//   - writes to one (date, scope) are serialized by the store
//   - the publisher fans events out without blocking writers
type Engine struct {
	store       *store.Store
	publisher   *pubsub.Publisher
	resolver    roster.Resolver
	initializer *roster.Initializer
	seq         Sequencer
	ids         IDGenerator
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithIDGenerator overrides the change event id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// New creates an Engine over st and pub. resolver may be nil, in which case
// Initialize reports not-found for every scope.
//
// New installs the store's commit hook; st must not be shared with another
// engine.
func New(st *store.Store, pub *pubsub.Publisher, resolver roster.Resolver, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		publisher: pub,
		resolver:  resolver,
		ids:       NewULIDGenerator(),
	}
	if resolver != nil {
		e.initializer = roster.NewInitializer(resolver, st)
	}

	for _, opt := range opts {
		opt(e)
	}

	st.SetCommitHook(e.announce)
	return e
}

// Get returns the authoritative records on sheet.
//
// An empty sheet whose scope the resolver does not know is reported as
// not-found; any other resolver failure is ignored on this read path.
func (e *Engine) Get(ctx context.Context, sheet attendance.Sheet) ([]attendance.Record, error) {
	sheet, err := sheet.Normalize(false)
	if err != nil {
		return nil, err
	}

	records, err := e.store.Get(ctx, sheet)
	if err != nil {
		return nil, attendance.AsTransport("read sheet", err)
	}

	if len(records) == 0 && e.resolver != nil {
		if _, err := e.resolver.ResolveRoster(ctx, sheet); attendance.IsNotFound(err) {
			return nil, err
		}
	}

	return records, nil
}

// BulkUpsert writes entries onto sheet as editor, all or nothing, and
// publishes one ChangeEvent on success.
//
// Validation happens against the caller's context. After that the write is
// detached: cancelling ctx no longer stops it.
func (e *Engine) BulkUpsert(ctx context.Context, sheet attendance.Sheet, entries []attendance.Entry, editor string) error {
	sheet, err := sheet.Normalize(true)
	if err != nil {
		return err
	}
	entries, err = attendance.ValidateEntries(entries)
	if err != nil {
		return err
	}
	editor, err = attendance.NormalizeID("editor", editor)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	slog.Debug("bulk upsert", "sheet", sheet.String(), "entries", len(entries), "editor", editor)

	if _, err := e.store.BulkUpsert(context.WithoutCancel(ctx), sheet, entries, editor); err != nil {
		return attendance.AsTransport("write sheet", err)
	}

	slog.Info("sheet committed", "sheet", sheet.String(), "entries", len(entries), "editor", editor)
	return nil
}

// Commit writes an effective map as one bulk upsert.
func (e *Engine) Commit(ctx context.Context, sheet attendance.Sheet, effective map[string]attendance.Status, editor string) error {
	return e.BulkUpsert(ctx, sheet, attendance.EntriesFromMap(effective), editor)
}

// Initialize seeds default records for roster members of sheet that have
// none and returns how many were created. A ChangeEvent is published only
// when at least one record was created.
func (e *Engine) Initialize(ctx context.Context, sheet attendance.Sheet) (int, error) {
	if e.initializer == nil {
		return 0, attendance.NotFound("no roster resolver configured")
	}

	created, err := e.initializer.Initialize(ctx, sheet)
	if err != nil {
		return 0, attendance.AsTransport("initialize sheet", err)
	}

	// The store hook has already announced any created records.
	return created, nil
}

// Subscribe opens a change event stream for f.
func (e *Engine) Subscribe(ctx context.Context, f attendance.Filter) (attendance.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, attendance.Transport("subscribe", err)
	}
	if _, err := attendance.ParseDate(string(f.Date)); err != nil {
		return nil, err
	}
	scope, err := attendance.NormalizeID("scope_id", f.ScopeID)
	if err != nil {
		return nil, err
	}
	f.ScopeID = scope

	sub, err := e.publisher.Subscribe(f)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Ping checks the store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return attendance.Transport("store unreachable", err)
	}
	return nil
}

// Close ends every open subscription. The store is owned by the caller.
func (e *Engine) Close() {
	e.publisher.Close()
}

// announce publishes the ChangeEvent for one committed batch. It runs as the
// store commit hook, under the sheet lock.
func (e *Engine) announce(sheet attendance.Sheet, entries int, editor string, _ time.Time) {
	ev := attendance.ChangeEvent{
		ID:          e.ids.Generate(),
		Date:        sheet.Date,
		ScopeID:     sheet.ScopeID,
		SubjectType: sheet.SubjectType,
		Editor:      editor,
		Count:       entries,
	}
	e.seq.Stamp(&ev)
	delivered := e.publisher.Publish(ev)

	slog.Debug("change event published",
		"id", ev.ID,
		"seq", ev.Seq,
		"sheet", sheet.String(),
		"delivered", delivered,
	)
}

// String renders an engine summary for logs.
func (e *Engine) String() string {
	return fmt.Sprintf("engine(dialect=%s, subscribers=%d)", e.store.Dialect(), e.publisher.Len())
}

package session

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/roach88/rollcall/internal/attendance"
)

// DefaultPollInterval is the re-fetch period while POLLING.
const DefaultPollInterval = 30 * time.Second

var (
	// ErrCommitInProgress is returned by Commit while another Commit on the
	// same session has not finished.
	ErrCommitInProgress = errors.New("session: commit already in progress")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session: closed")
)

// Backend is the authoritative side of a session: an in-process engine or a
// remote client.
type Backend interface {
	Get(ctx context.Context, sheet attendance.Sheet) ([]attendance.Record, error)
	BulkUpsert(ctx context.Context, sheet attendance.Sheet, entries []attendance.Entry, editor string) error
	Subscribe(ctx context.Context, f attendance.Filter) (attendance.Subscription, error)
}

// Session is one editor's view of one sheet.
//
// Thread-safety model:
//   - every exported method is safe from any goroutine
//   - mu guards baseline, overlay, conflicts and the flags; it is never held
//     across backend I/O
//   - refreshMu orders re-fetches so an older fetch cannot overwrite a newer one
//   - one background goroutine owns the subscription and the poll ticker
type Session struct {
	id      string
	sheet   attendance.Sheet
	editor  string
	backend Backend
	filter  attendance.Filter

	pollInterval time.Duration
	roster       []string
	onConflict   func(ConflictNotice)
	onRefresh    func()
	onMode       func(Mode)
	ids          IDGenerator

	mu         sync.Mutex
	baseline   map[string]attendance.Record
	overlay    *Overlay
	conflicts  map[string]ConflictNotice
	mode       Mode
	committing bool
	closed     bool

	refreshMu sync.Mutex

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Session.
type Option func(*Session)

// WithPollInterval sets the POLLING re-fetch period.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithRoster seeds subjects that have no record yet with the unset status,
// so they show up in the effective map and are sent on Commit.
func WithRoster(subjectIDs []string) Option {
	return func(s *Session) {
		s.roster = append([]string(nil), subjectIDs...)
	}
}

// WithConflictHandler registers a callback for conflict notices. It runs on
// the goroutine that performed the refresh, outside the session lock.
func WithConflictHandler(fn func(ConflictNotice)) Option {
	return func(s *Session) {
		s.onConflict = fn
	}
}

// WithRefreshHandler registers a callback run after every baseline refresh.
func WithRefreshHandler(fn func()) Option {
	return func(s *Session) {
		s.onRefresh = fn
	}
}

// WithModeHandler registers a callback run on every LIVE/POLLING transition.
func WithModeHandler(fn func(Mode)) Option {
	return func(s *Session) {
		s.onMode = fn
	}
}

// WithIDGenerator overrides the session id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Session) {
		s.ids = g
	}
}

// Open loads the baseline for sheet and starts watching it.
//
// A failed Get fails Open. A failed Subscribe does not: the session starts in
// POLLING and keeps retrying on each tick.
func Open(ctx context.Context, backend Backend, sheet attendance.Sheet, editor string, opts ...Option) (*Session, error) {
	sheet, err := sheet.Normalize(true)
	if err != nil {
		return nil, err
	}
	editor, err = attendance.NormalizeID("editor", editor)
	if err != nil {
		return nil, err
	}

	s := &Session{
		sheet:        sheet,
		editor:       editor,
		backend:      backend,
		filter:       attendance.FilterFor(sheet),
		pollInterval: DefaultPollInterval,
		ids:          UUIDv7Generator{},
		baseline:     make(map[string]attendance.Record),
		overlay:      NewOverlay(),
		conflicts:    make(map[string]ConflictNotice),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.id = s.ids.Generate()

	for _, id := range s.roster {
		norm, err := attendance.NormalizeID("subject_id", id)
		if err != nil {
			return nil, err
		}
		s.baseline[norm] = attendance.Record{
			Date:        sheet.Date,
			ScopeID:     sheet.ScopeID,
			SubjectType: sheet.SubjectType,
			SubjectID:   norm,
			Status:      attendance.DefaultStatus,
		}
	}

	records, err := backend.Get(ctx, sheet)
	if err != nil {
		return nil, err
	}
	s.applyBaseline(records)

	sub, err := backend.Subscribe(ctx, s.filter)
	if err != nil {
		slog.Warn("subscribe failed, polling",
			"session", s.id,
			"sheet", sheet.String(),
			"error", err,
		)
		s.mode = ModePolling
		sub = nil
	} else {
		s.mode = ModeLive
	}

	slog.Info("session opened",
		"session", s.id,
		"sheet", sheet.String(),
		"editor", editor,
		"mode", s.mode.String(),
		"subjects", len(s.baseline),
	)

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go s.run(loopCtx, sub)

	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Sheet returns the sheet this session edits.
func (s *Session) Sheet() attendance.Sheet { return s.sheet }

// Editor returns the identity commits are recorded under.
func (s *Session) Editor() string { return s.editor }

// Edit records a pending status for subjectID. It never waits for an
// in-flight Commit.
func (s *Session) Edit(subjectID string, status attendance.Status) error {
	id, err := attendance.NormalizeID("subject_id", subjectID)
	if err != nil {
		return err
	}
	if !status.Valid() {
		return attendance.Invalid("status", "unknown status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.overlay.Set(id, status)
	return nil
}

// Revert drops the pending edit for subjectID, if any.
func (s *Session) Revert(subjectID string) {
	id, err := attendance.NormalizeID("subject_id", subjectID)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlay.Delete(id)
	delete(s.conflicts, id)
}

// Discard drops every pending edit and every conflict notice.
func (s *Session) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlay.Clear()
	clear(s.conflicts)
}

// Effective returns the status the editor currently sees for subjectID.
func (s *Session) Effective(subjectID string) (attendance.Status, bool) {
	id, err := attendance.NormalizeID("subject_id", subjectID)
	if err != nil {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.overlay.Get(id); ok {
		return st, true
	}
	rec, ok := s.baseline[id]
	return rec.Status, ok
}

// EffectiveMap returns the effective status of every known subject.
func (s *Session) EffectiveMap() map[string]attendance.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effectiveLocked()
}

// Baseline returns a copy of the last fetched records, ordered by subject id.
func (s *Session) Baseline() []attendance.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]attendance.Record, 0, len(s.baseline))
	for _, rec := range s.baseline {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out
}

// Pending returns a copy of the overlay.
func (s *Session) Pending() map[string]attendance.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlay.Snapshot()
}

// Conflicts returns the outstanding conflict notices, ordered by subject id.
func (s *Session) Conflicts() []ConflictNotice {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ConflictNotice, 0, len(s.conflicts))
	for _, n := range s.conflicts {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out
}

// Mode returns the current connectivity mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// State returns the session flags.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Mode:       s.mode,
		Dirty:      s.overlay.Len() > 0,
		Committing: s.committing,
		Pending:    s.overlay.Len(),
		Conflicts:  len(s.conflicts),
	}
}

// Commit sends the effective status of every known subject as one bulk
// upsert.
//
// On success the baseline takes the submitted values, except for subjects a
// concurrent refresh already moved, and every overlay entry still holding the
// value that was submitted is removed. The baseline is then re-fetched so it
// carries the stored stamps. On failure nothing changes.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.committing {
		s.mu.Unlock()
		return ErrCommitInProgress
	}
	effective := s.effectiveLocked()
	if len(effective) == 0 {
		s.mu.Unlock()
		return nil
	}
	submitted := s.overlay.Snapshot()
	before := maps.Clone(s.baseline)
	s.committing = true
	s.mu.Unlock()

	err := s.backend.BulkUpsert(ctx, s.sheet, attendance.EntriesFromMap(effective), s.editor)

	s.mu.Lock()
	s.committing = false

	if err != nil {
		slog.Warn("commit failed",
			"session", s.id,
			"sheet", s.sheet.String(),
			"pending", s.overlay.Len(),
			"error", err,
		)
		s.mu.Unlock()
		return err
	}

	for id, st := range effective {
		rec, ok := s.baseline[id]
		if prev, had := before[id]; ok && (!had || !sameRecord(prev, rec)) {
			// A refresh landed mid-commit. Keep its record; the re-fetch below settles it.
			continue
		}
		if !ok {
			rec = attendance.Record{
				Date:        s.sheet.Date,
				ScopeID:     s.sheet.ScopeID,
				SubjectType: s.sheet.SubjectType,
				SubjectID:   id,
			}
		}
		rec.Status = st
		rec.RecordedBy = s.editor
		s.baseline[id] = rec
	}
	for id, st := range submitted {
		if cur, ok := s.overlay.Get(id); ok && cur == st {
			s.overlay.Delete(id)
			delete(s.conflicts, id)
		}
	}
	pending := s.overlay.Len()
	s.mu.Unlock()

	slog.Info("commit succeeded",
		"session", s.id,
		"sheet", s.sheet.String(),
		"entries", len(effective),
		"pending", pending,
	)

	if err := s.Refresh(ctx); err != nil && ctx.Err() == nil && !errors.Is(err, ErrClosed) {
		slog.Warn("refresh after commit failed", "session", s.id, "error", err)
	}
	return nil
}

// Refresh re-fetches the baseline. Subjects without a pending edit adopt the
// fetched value; subjects with one keep it and may raise a conflict notice.
func (s *Session) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	records, err := s.backend.Get(ctx, s.sheet)
	if err != nil {
		return attendance.AsTransport("refresh", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	notices := s.applyBaseline(records)
	s.mu.Unlock()

	for _, n := range notices {
		slog.Info("conflict",
			"session", s.id,
			"subject", n.SubjectID,
			"local", n.Local,
			"remote", n.Remote,
			"recorded_by", n.RecordedBy,
		)
		if s.onConflict != nil {
			s.onConflict(n)
		}
	}
	if s.onRefresh != nil {
		s.onRefresh()
	}
	return nil
}

// Close stops the background loop and ends the subscription. Pending edits
// are dropped.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		<-s.done

		slog.Debug("session closed", "session", s.id)
	})
	return nil
}

// effectiveLocked layers the overlay over the baseline. Caller holds mu.
func (s *Session) effectiveLocked() map[string]attendance.Status {
	base := make(map[string]attendance.Status, len(s.baseline))
	for id, rec := range s.baseline {
		base[id] = rec.Status
	}
	return s.overlay.Resolve(base)
}

// applyBaseline merges fetched records into the baseline and returns the new
// conflict notices. Caller holds mu (or owns s exclusively).
//
// A notice is raised when the fetched record differs from the previous
// baseline record, was written by another editor, and disagrees with the
// pending edit. Subjects absent from records keep their previous baseline.
func (s *Session) applyBaseline(records []attendance.Record) []ConflictNotice {
	var notices []ConflictNotice
	for _, rec := range records {
		prev, had := s.baseline[rec.SubjectID]
		s.baseline[rec.SubjectID] = rec

		local, pending := s.overlay.Get(rec.SubjectID)
		if !pending {
			continue
		}
		if rec.Status == local {
			delete(s.conflicts, rec.SubjectID)
			continue
		}
		if had && sameRecord(prev, rec) {
			continue
		}
		if rec.RecordedBy == s.editor {
			continue
		}

		n := ConflictNotice{
			SubjectID:  rec.SubjectID,
			Local:      local,
			Remote:     rec.Status,
			RecordedBy: rec.RecordedBy,
			RecordedAt: rec.RecordedAt,
		}
		s.conflicts[rec.SubjectID] = n
		notices = append(notices, n)
	}
	return notices
}

func sameRecord(a, b attendance.Record) bool {
	return a.Status == b.Status && a.RecordedBy == b.RecordedBy && a.RecordedAt.Equal(b.RecordedAt)
}

func (s *Session) setMode(m Mode) {
	s.mu.Lock()
	changed := s.mode != m
	s.mode = m
	s.mu.Unlock()

	if !changed {
		return
	}
	slog.Info("connectivity changed", "session", s.id, "mode", m.String())
	if s.onMode != nil {
		s.onMode(m)
	}
}

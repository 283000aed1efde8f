package session

import (
	"sort"

	"github.com/roach88/rollcall/internal/attendance"
)

// Overlay is the set of uncommitted edits, subject id -> status.
// The zero value is not usable; use NewOverlay.
type Overlay struct {
	edits map[string]attendance.Status
}

// NewOverlay creates an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{edits: make(map[string]attendance.Status)}
}

// Set records an edit, replacing any earlier edit of the same subject.
func (o *Overlay) Set(subjectID string, status attendance.Status) {
	o.edits[subjectID] = status
}

// Get returns the pending edit for subjectID.
func (o *Overlay) Get(subjectID string) (attendance.Status, bool) {
	st, ok := o.edits[subjectID]
	return st, ok
}

// Delete drops the pending edit for subjectID.
func (o *Overlay) Delete(subjectID string) {
	delete(o.edits, subjectID)
}

// Clear drops every pending edit.
func (o *Overlay) Clear() {
	clear(o.edits)
}

// Len returns the number of pending edits.
func (o *Overlay) Len() int {
	return len(o.edits)
}

// Snapshot returns a copy of the pending edits.
func (o *Overlay) Snapshot() map[string]attendance.Status {
	out := make(map[string]attendance.Status, len(o.edits))
	for id, st := range o.edits {
		out[id] = st
	}
	return out
}

// Subjects returns the edited subject ids in sorted order.
func (o *Overlay) Subjects() []string {
	ids := make([]string, 0, len(o.edits))
	for id := range o.edits {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve layers the overlay over baseline and returns the effective map:
// overlay[s] if present, else baseline[s], for every subject in either.
func (o *Overlay) Resolve(baseline map[string]attendance.Status) map[string]attendance.Status {
	out := make(map[string]attendance.Status, len(baseline)+len(o.edits))
	for id, st := range baseline {
		out[id] = st
	}
	for id, st := range o.edits {
		out[id] = st
	}
	return out
}

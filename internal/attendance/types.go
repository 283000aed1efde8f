package attendance

import (
	"fmt"
	"sort"
	"time"
)

// DateLayout is the canonical wire and storage form of a Date.
const DateLayout = "2006-01-02"

// Date is a calendar date with no time-of-day or timezone component.
type Date string

// ParseDate validates s and returns it as a canonical Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", Invalid("date", "date %q is not a YYYY-MM-DD calendar date", s)
	}
	return Date(t.Format(DateLayout)), nil
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

// String returns the canonical form.
func (d Date) String() string {
	return string(d)
}

// Status is the recorded presence of one subject on one date.
type Status string

const (
	// StatusUnset is the default written by the roster initializer for
	// subjects nobody has marked yet.
	StatusUnset   Status = "unset"
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
	StatusExcused Status = "excused"
)

// Statuses lists every accepted status in display order.
var Statuses = []Status{StatusUnset, StatusPresent, StatusLate, StatusAbsent, StatusExcused}

// DefaultStatus is the status given to initializer-created records.
const DefaultStatus = StatusUnset

// Valid reports whether s is a member of the status enum.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseStatus returns s as a Status or a validation error.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", Invalid("status", "unknown status %q", s)
	}
	return st, nil
}

// SubjectType distinguishes the two populations that take attendance.
type SubjectType string

const (
	SubjectPlayer SubjectType = "player"
	SubjectStaff  SubjectType = "staff"
)

// Valid reports whether t is a known subject type.
func (t SubjectType) Valid() bool {
	return t == SubjectPlayer || t == SubjectStaff
}

// ParseSubjectType returns s as a SubjectType or a validation error.
func ParseSubjectType(s string) (SubjectType, error) {
	t := SubjectType(s)
	if !t.Valid() {
		return "", Invalid("subject_type", "unknown subject type %q", s)
	}
	return t, nil
}

// Sheet identifies one attendance sheet: a date, a scope, and the population
// being recorded. An empty SubjectType on a read means every population.
type Sheet struct {
	Date        Date        `json:"date"`
	ScopeID     string      `json:"scope_id"`
	SubjectType SubjectType `json:"subject_type,omitempty"`
}

// String renders the sheet for logs.
func (s Sheet) String() string {
	if s.SubjectType == "" {
		return fmt.Sprintf("%s/%s", s.Date, s.ScopeID)
	}
	return fmt.Sprintf("%s/%s/%s", s.Date, s.ScopeID, s.SubjectType)
}

// Key returns the (date, scope) pair writes are serialized on. Dates have a
// fixed width, so the separator cannot be ambiguous.
func (s Sheet) Key() string {
	return string(s.Date) + "|" + s.ScopeID
}

// Normalize validates the sheet and returns it with identifiers normalized.
// requireType rejects an empty SubjectType; writes need one, reads do not.
func (s Sheet) Normalize(requireType bool) (Sheet, error) {
	date, err := ParseDate(string(s.Date))
	if err != nil {
		return Sheet{}, err
	}
	scope, err := NormalizeID("scope_id", s.ScopeID)
	if err != nil {
		return Sheet{}, err
	}
	if s.SubjectType != "" || requireType {
		if _, err := ParseSubjectType(string(s.SubjectType)); err != nil {
			return Sheet{}, err
		}
	}
	return Sheet{Date: date, ScopeID: scope, SubjectType: s.SubjectType}, nil
}

// Record is the authoritative attendance of one subject on one sheet.
type Record struct {
	Date        Date        `json:"date"`
	ScopeID     string      `json:"scope_id"`
	SubjectType SubjectType `json:"subject_type"`
	SubjectID   string      `json:"subject_id"`
	Status      Status      `json:"status"`
	RecordedBy  string      `json:"recorded_by,omitempty"`
	RecordedAt  time.Time   `json:"recorded_at"`
}

// Entry is one subject's status inside a bulk commit.
type Entry struct {
	SubjectID string `json:"subject_id" validate:"required"`
	Status    Status `json:"status" validate:"required"`
}

// ValidateEntries normalizes subject ids and rejects unknown statuses and
// duplicate subjects. The returned slice is sorted by subject id.
func ValidateEntries(entries []Entry) ([]Entry, error) {
	if len(entries) == 0 {
		return nil, Invalid("entries", "commit carries no entries")
	}
	out := make([]Entry, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		id, err := NormalizeID("subject_id", e.SubjectID)
		if err != nil {
			return nil, err
		}
		if !e.Status.Valid() {
			return nil, Invalid("status", "unknown status %q for subject %s", e.Status, id)
		}
		if _, dup := seen[id]; dup {
			return nil, Invalid("subject_id", "subject %s appears twice in one commit", id)
		}
		seen[id] = struct{}{}
		out = append(out, Entry{SubjectID: id, Status: e.Status})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out, nil
}

// EntriesFromMap converts an effective map into sorted entries.
func EntriesFromMap(m map[string]Status) []Entry {
	out := make([]Entry, 0, len(m))
	for id, st := range m {
		out = append(out, Entry{SubjectID: id, Status: st})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out
}

// ChangeEvent announces that a bulk write landed on a sheet. It never carries
// record contents; receivers re-fetch.
type ChangeEvent struct {
	ID          string      `json:"id"`
	Seq         int64       `json:"seq"`
	Date        Date        `json:"date"`
	ScopeID     string      `json:"scope_id"`
	SubjectType SubjectType `json:"subject_type"`
	Editor      string      `json:"editor,omitempty"`
	Count       int         `json:"count"`
}

// Sheet returns the sheet the event refers to.
func (e ChangeEvent) Sheet() Sheet {
	return Sheet{Date: e.Date, ScopeID: e.ScopeID, SubjectType: e.SubjectType}
}

// Filter selects the change events a subscriber cares about. Date and scope
// must match exactly; an empty SubjectType matches both populations.
type Filter struct {
	Date        Date        `json:"date"`
	ScopeID     string      `json:"scope_id"`
	SubjectType SubjectType `json:"subject_type,omitempty"`
}

// FilterFor returns the filter that matches events on sheet.
func FilterFor(sheet Sheet) Filter {
	return Filter{Date: sheet.Date, ScopeID: sheet.ScopeID, SubjectType: sheet.SubjectType}
}

// Matches reports whether ev is relevant to the filter.
func (f Filter) Matches(ev ChangeEvent) bool {
	if f.Date != ev.Date || f.ScopeID != ev.ScopeID {
		return false
	}
	return f.SubjectType == "" || f.SubjectType == ev.SubjectType
}

// Subscription is a live stream of change events. The channel returned by
// Events is closed when the subscription ends for any reason.
type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}

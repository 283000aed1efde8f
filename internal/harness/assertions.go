package harness

import (
	"fmt"
	"sort"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/session"
)

// AssertionContext carries the final state assertions are checked against.
type AssertionContext struct {
	// Records is the final stored sheet.
	Records []attendance.Record

	// Sessions are the sessions still open at the end of the run.
	Sessions map[string]*session.Session
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		for _, msg := range evaluateAssertion(result, a, actx) {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %s", i, a.Type, msg))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) []string {
	switch a.Type {
	case AssertStored:
		return assertStored(a, actx.Records)
	case AssertEffective:
		s, ok := actx.Sessions[a.Session]
		if !ok {
			return []string{fmt.Sprintf("session %s is not open", a.Session)}
		}
		return subsetMismatches(a.Expect, statusStrings(s.EffectiveMap()))
	case AssertConflicts:
		s, ok := actx.Sessions[a.Session]
		if !ok {
			return []string{fmt.Sprintf("session %s is not open", a.Session)}
		}
		var got []string
		for _, n := range s.Conflicts() {
			got = append(got, n.SubjectID)
		}
		if !sameStrings(a.Subjects, got) {
			return []string{fmt.Sprintf("expected conflicts %v, got %v", a.Subjects, got)}
		}
		return nil
	case AssertEvents:
		if result.Events != a.Count {
			return []string{fmt.Sprintf("expected %d events, got %d", a.Count, result.Events)}
		}
		return nil
	default:
		return []string{fmt.Sprintf("unknown assertion type %q", a.Type)}
	}
}

func assertStored(a Assertion, records []attendance.Record) []string {
	status := make(map[string]string, len(records))
	by := make(map[string]string, len(records))
	for _, r := range records {
		status[r.SubjectID] = string(r.Status)
		by[r.SubjectID] = r.RecordedBy
	}

	errs := subsetMismatches(a.Expect, status)
	for _, id := range sortedKeys(a.RecordedBy) {
		want := a.RecordedBy[id]
		got, ok := by[id]
		if !ok {
			errs = append(errs, fmt.Sprintf("%s: no record", id))
			continue
		}
		if got != want {
			errs = append(errs, fmt.Sprintf("%s: recorded_by %q, want %q", id, got, want))
		}
	}
	return errs
}

// subsetMismatches reports every key of want that is missing from got or
// holds a different value.
func subsetMismatches(want, got map[string]string) []string {
	var errs []string
	for _, id := range sortedKeys(want) {
		g, ok := got[id]
		switch {
		case !ok:
			errs = append(errs, fmt.Sprintf("%s: missing, want %s", id, want[id]))
		case g != want[id]:
			errs = append(errs, fmt.Sprintf("%s: got %s, want %s", id, g, want[id]))
		}
	}
	return errs
}

// exactMismatches is subsetMismatches plus keys present only in got.
func exactMismatches(want, got map[string]string) []string {
	errs := subsetMismatches(want, got)
	for _, id := range sortedKeys(got) {
		if _, ok := want[id]; !ok {
			errs = append(errs, fmt.Sprintf("%s: unexpected %s", id, got[id]))
		}
	}
	return errs
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

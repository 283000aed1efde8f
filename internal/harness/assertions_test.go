package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/rollcall/internal/attendance"
)

func TestEvaluateAssertions_Stored(t *testing.T) {
	actx := &AssertionContext{Records: []attendance.Record{
		{SubjectID: "p1", Status: attendance.StatusPresent, RecordedBy: "coach-a"},
		{SubjectID: "p2", Status: attendance.StatusUnset},
	}}

	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertStored, Expect: map[string]string{"p1": "present"}, RecordedBy: map[string]string{"p2": ""}},
	}, actx)
	assert.Empty(t, errs)

	errs = EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertStored, Expect: map[string]string{"p1": "late", "p9": "absent"}},
		{Type: AssertStored, RecordedBy: map[string]string{"p1": "coach-b", "p7": "coach-a"}},
	}, actx)
	assert.Equal(t, []string{
		`assertion 0 (stored): p1: got present, want late`,
		`assertion 0 (stored): p9: missing, want absent`,
		`assertion 1 (stored): p1: recorded_by "coach-a", want "coach-b"`,
		`assertion 1 (stored): p7: no record`,
	}, errs)
}

func TestEvaluateAssertions_Events(t *testing.T) {
	result := NewResult()
	result.Events = 2

	assert.Empty(t, EvaluateAssertions(result, []Assertion{{Type: AssertEvents, Count: 2}}, &AssertionContext{}))
	assert.Equal(t,
		[]string{"assertion 0 (events): expected 0 events, got 2"},
		EvaluateAssertions(result, []Assertion{{Type: AssertEvents}}, &AssertionContext{}))
}

func TestEvaluateAssertions_MissingSession(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertEffective, Session: "ghost", Expect: map[string]string{"p1": "late"}},
		{Type: AssertConflicts, Session: "ghost"},
	}, &AssertionContext{})
	assert.Len(t, errs, 2)
	assert.Contains(t, errs[0], "session ghost is not open")
}

func TestMismatchHelpers(t *testing.T) {
	assert.Empty(t, subsetMismatches(map[string]string{"a": "1"}, map[string]string{"a": "1", "b": "2"}))
	assert.Equal(t, []string{"b: unexpected 2"}, exactMismatches(map[string]string{"a": "1"}, map[string]string{"a": "1", "b": "2"}))
	assert.Empty(t, exactMismatches(map[string]string{}, nil))

	assert.True(t, sameStrings([]string{"b", "a"}, []string{"a", "b"}))
	assert.True(t, sameStrings([]string{}, nil))
	assert.False(t, sameStrings([]string{"a"}, []string{"b"}))
}

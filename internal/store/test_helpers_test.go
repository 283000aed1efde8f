package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/testutil"
)

// createTestStore creates a new file-backed store with a deterministic clock.
func createTestStore(t *testing.T) (*Store, *testutil.DeterministicClock) {
	t.Helper()
	clock := testutil.NewDeterministicClock()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clock
}

// testSheet is the program-7 player sheet most tests write to.
func testSheet() attendance.Sheet {
	return attendance.Sheet{Date: "2024-03-10", ScopeID: "program-7", SubjectType: attendance.SubjectPlayer}
}

// statusMap flattens records to subject -> status.
func statusMap(records []attendance.Record) map[string]attendance.Status {
	out := make(map[string]attendance.Status, len(records))
	for _, r := range records {
		out[r.SubjectID] = r.Status
	}
	return out
}

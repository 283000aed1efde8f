// Package session is one editor's synchronized view of an attendance sheet.
//
// A Session holds two maps:
//   - baseline: the last state fetched from the backend, read-only to the editor
//   - overlay: edits not yet committed
//
// The effective status of a subject is its overlay value if there is one and
// its baseline value otherwise. Commit sends the effective status of every
// known subject, not just the edited ones, so a save always reflects the
// whole sheet as the editor sees it.
//
// # State
//
// Connectivity is a two-state machine, LIVE (push subscription) or POLLING
// (periodic re-fetch), driven by a single goroutine so exactly one of the two
// sources is active at any moment. DIRTY (overlay non-empty) and COMMITTING
// are independent flags.
//
// # Invariants
//
//   - The overlay is cleared only by a successful Commit or by Discard/Revert,
//     never by a remote change.
//   - A failed Commit leaves the overlay exactly as it was.
//   - Edit never waits for an in-flight Commit; edits made while committing
//     stay in the overlay for the next Commit.
//   - A remote change under a pending edit is reported as a ConflictNotice and
//     never resolved automatically.
package session

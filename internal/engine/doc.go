// Package engine is the authoritative side of attendance synchronization.
//
// The engine owns the store, the change publisher, and the roster
// initializer, and exposes the four operations editors use: Get, Initialize,
// BulkUpsert (Commit), and Subscribe.
//
// ARCHITECTURE:
//
// Single writer of truth:
// The store is the only place records change. BulkUpsert is the only
// mutation path; there is no per-subject update.
//
// Commit flow:
// 1. Sheet, entries, and editor are validated synchronously
// 2. The write is detached from the caller's cancellation
// 3. The store applies the whole batch in one transaction under a per-sheet lock
// 4. The store's commit hook publishes exactly one ChangeEvent, still under the lock
//
// Because step 4 runs before the sheet lock is released, events for one
// (date, scope) are published in commit order.
//
// CRITICAL PATTERNS:
//
// Client-local cancellation:
// A caller that abandons a commit only stops waiting. Once the batch passes
// validation it is written and announced regardless.
//
// Last-write-wins:
// BulkUpsert never compares against the baseline a client started from.
package engine

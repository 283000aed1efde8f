// Package store provides durable storage for attendance records.
//
// The store keeps exactly one row per (date, scope_id, subject_id) and
// exposes three operations:
//   - Get: read every record on a sheet, ordered by subject_id
//   - InsertMissing: idempotent creation of default rows for roster subjects
//   - BulkUpsert: the only mutation path, all-or-nothing in one transaction
//
// # Critical Patterns
//
// Whole-batch writes: every row written by one BulkUpsert shares the same
// recorded_by and recorded_at, and either all rows land or none do.
//
// Per-sheet serialization: BulkUpsert and InsertMissing for the same
// (date, scope) are serialized by a keyed lock before the transaction opens,
// so two batches never interleave row by row. PostgreSQL additionally takes a
// transaction-scoped advisory lock on the same key so separate processes
// serialize too.
//
// Never delete: records are superseded in place, never removed.
//
// # Database Configuration
//
// SQLite (github.com/mattn/go-sqlite3):
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - single open connection: SQLite allows one writer
//
// PostgreSQL (github.com/lib/pq) shares the same SQL; placeholders are
// rebound from ? to $n.
package store

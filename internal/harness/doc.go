// Package harness runs YAML attendance scenarios against a real engine and
// real sessions, and compares the resulting trace with golden files.
//
// A scenario names one sheet and a roster, then lists steps:
//
//	initialize                         seed default records from the roster
//	open      session: A               open a session for editor A
//	edit      session: A, subject, status
//	commit    session: A
//	discard   session: A
//	refresh   session: A               re-fetch A's baseline
//	write     editor, entries          bulk upsert straight to the engine
//	close     session: A
//
// Every step may carry an expect clause checked right after it runs.
// Assertions are checked once all steps have run.
//
// # Determinism
//
// Each run gets a fresh in-memory database, a deterministic clock, and
// sequential event ids. Sessions are opened over a backend whose push stream
// never fires, so baselines move only on explicit refresh and commit steps.
// Timestamps never appear in traces.
package harness

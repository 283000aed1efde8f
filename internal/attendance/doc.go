// Package attendance defines the value types shared by every rollcall layer.
//
// This package contains type definitions, validation, and the error taxonomy.
// All other internal packages import attendance; attendance imports nothing
// internal.
//
// Key constraints:
//   - Dates are calendar dates in canonical YYYY-MM-DD form, never timestamps
//   - Identifiers are NFC-normalized before comparison or storage
//   - Status is a flat enum; any value may transition to any other
//   - All JSON tags use snake_case
package attendance

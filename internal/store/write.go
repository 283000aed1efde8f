package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/rollcall/internal/attendance"
)

// BulkUpsert writes every entry onto sheet in one transaction, stamping each
// row with the same editor and time. It is the only way records change.
//
// Either all rows are written or none are. A subject already recorded on the
// sheet's (date, scope) under a different subject type aborts the batch with
// a validation error. Entries are validated before the transaction opens.
//
// The commit hook, if any, runs once per successful call.
// Returns the recorded_at stamp shared by the batch.
func (s *Store) BulkUpsert(ctx context.Context, sheet attendance.Sheet, entries []attendance.Entry, editor string) (time.Time, error) {
	sheet, err := sheet.Normalize(true)
	if err != nil {
		return time.Time{}, err
	}
	entries, err = attendance.ValidateEntries(entries)
	if err != nil {
		return time.Time{}, err
	}
	editor, err = attendance.NormalizeID("editor", editor)
	if err != nil {
		return time.Time{}, err
	}

	unlock := s.locks.Lock(sheet.Key())
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("bulk upsert: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := s.lockSheet(ctx, tx, sheet); err != nil {
		return time.Time{}, fmt.Errorf("bulk upsert: %w", err)
	}

	at := s.now().UTC()
	stamp := formatTime(at)

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO attendance_records
		(date, scope_id, subject_id, subject_type, status, recorded_by, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (date, scope_id, subject_id) DO UPDATE SET
			status = excluded.status,
			recorded_by = excluded.recorded_by,
			recorded_at = excluded.recorded_at
		WHERE attendance_records.subject_type = excluded.subject_type
	`))
	if err != nil {
		return time.Time{}, fmt.Errorf("bulk upsert: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		result, err := stmt.ExecContext(ctx,
			string(sheet.Date),
			sheet.ScopeID,
			e.SubjectID,
			string(sheet.SubjectType),
			string(e.Status),
			editor,
			stamp,
		)
		if err != nil {
			return time.Time{}, fmt.Errorf("bulk upsert: write %s: %w", e.SubjectID, err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return time.Time{}, fmt.Errorf("bulk upsert: rows affected: %w", err)
		}
		if n == 0 {
			// The WHERE clause refused the update: same id, other population.
			return time.Time{}, attendance.Invalid("subject_id",
				"subject %s is already recorded on %s/%s as a different subject type",
				e.SubjectID, sheet.Date, sheet.ScopeID)
		}
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("bulk upsert: commit: %w", err)
	}

	if s.hook != nil {
		s.hook(sheet, len(entries), editor, at)
	}

	return at, nil
}

// InsertMissing creates a default-status record for every subject id that has
// no record on the sheet's (date, scope) yet. Existing records, including
// ones already edited, are never touched.
//
// Uses ON CONFLICT DO NOTHING so concurrent initializers cannot double-insert.
// The commit hook runs, with an empty editor, only when records were created.
// Returns the number of records created.
func (s *Store) InsertMissing(ctx context.Context, sheet attendance.Sheet, subjectIDs []string) (int, error) {
	sheet, err := sheet.Normalize(true)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(subjectIDs))
	for _, raw := range subjectIDs {
		id, err := attendance.NormalizeID("subject_id", raw)
		if err != nil {
			return 0, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	unlock := s.locks.Lock(sheet.Key())
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("insert missing: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.lockSheet(ctx, tx, sheet); err != nil {
		return 0, fmt.Errorf("insert missing: %w", err)
	}

	existing, err := existingSubjects(ctx, tx, s.rebind(`
		SELECT subject_id, subject_type FROM attendance_records
		WHERE date = ? AND scope_id = ?
	`), sheet)
	if err != nil {
		return 0, fmt.Errorf("insert missing: %w", err)
	}

	at := s.now().UTC()
	stamp := formatTime(at)
	created := 0
	for _, id := range ids {
		if _, ok := existing[id]; ok {
			continue
		}
		result, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO attendance_records
			(date, scope_id, subject_id, subject_type, status, recorded_by, recorded_at)
			VALUES (?, ?, ?, ?, ?, '', ?)
			ON CONFLICT (date, scope_id, subject_id) DO NOTHING
		`),
			string(sheet.Date),
			sheet.ScopeID,
			id,
			string(sheet.SubjectType),
			string(attendance.DefaultStatus),
			stamp,
		)
		if err != nil {
			return 0, fmt.Errorf("insert missing: write %s: %w", id, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert missing: rows affected: %w", err)
		}
		created += int(n)
		existing[id] = sheet.SubjectType
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert missing: commit: %w", err)
	}

	if created > 0 && s.hook != nil {
		s.hook(sheet, created, "", at)
	}

	return created, nil
}

// lockSheet takes a PostgreSQL advisory lock for the sheet's (date, scope)
// that is released when tx ends. SQLite needs nothing beyond its single
// writer connection and the in-process keyed lock.
func (s *Store) lockSheet(ctx context.Context, tx *sql.Tx, sheet attendance.Sheet) error {
	if s.dialect != DialectPostgres {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, sheet.Key()); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	return nil
}

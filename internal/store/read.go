package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/rollcall/internal/attendance"
)

// Get returns every record on a sheet ordered by subject_id.
// An empty SubjectType returns both populations.
//
// Returns an empty slice (not nil) if the sheet has no records.
func (s *Store) Get(ctx context.Context, sheet attendance.Sheet) ([]attendance.Record, error) {
	sheet, err := sheet.Normalize(false)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT date, scope_id, subject_type, subject_id, status, recorded_by, recorded_at
		FROM attendance_records
		WHERE date = ? AND scope_id = ? AND (? = '' OR subject_type = ?)
		ORDER BY subject_id ASC
	`), string(sheet.Date), sheet.ScopeID, string(sheet.SubjectType), string(sheet.SubjectType))
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []attendance.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return records, nil
}

// existingSubjects returns the subject ids already recorded on sheet's
// (date, scope) mapped to their subject type.
func existingSubjects(ctx context.Context, tx *sql.Tx, query string, sheet attendance.Sheet) (map[string]attendance.SubjectType, error) {
	rows, err := tx.QueryContext(ctx, query, string(sheet.Date), sheet.ScopeID)
	if err != nil {
		return nil, fmt.Errorf("query existing subjects: %w", err)
	}
	defer rows.Close()

	out := make(map[string]attendance.SubjectType)
	for rows.Next() {
		var id, typ string
		if err := rows.Scan(&id, &typ); err != nil {
			return nil, fmt.Errorf("scan existing subject: %w", err)
		}
		out[id] = attendance.SubjectType(typ)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing subjects: %w", err)
	}
	return out, nil
}

// scanRecord scans a row into a Record.
func scanRecord(rows *sql.Rows) (attendance.Record, error) {
	var rec attendance.Record
	var date, subjectType, status, recordedAt string

	if err := rows.Scan(
		&date, &rec.ScopeID, &subjectType, &rec.SubjectID, &status, &rec.RecordedBy, &recordedAt,
	); err != nil {
		return attendance.Record{}, fmt.Errorf("scan record: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, recordedAt)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("parse recorded_at %q: %w", recordedAt, err)
	}

	rec.Date = attendance.Date(date)
	rec.SubjectType = attendance.SubjectType(subjectType)
	rec.Status = attendance.Status(status)
	rec.RecordedAt = at
	return rec, nil
}

// formatTime renders t the way recorded_at is stored.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

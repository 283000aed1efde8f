package roster

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/rollcall/internal/attendance"
)

// RecordStore is the slice of the attendance store the initializer needs.
type RecordStore interface {
	Get(ctx context.Context, sheet attendance.Sheet) ([]attendance.Record, error)
	InsertMissing(ctx context.Context, sheet attendance.Sheet, subjectIDs []string) (int, error)
}

// Initializer seeds default records for roster subjects that have none.
type Initializer struct {
	resolver Resolver
	store    RecordStore
}

// NewInitializer creates an Initializer.
func NewInitializer(resolver Resolver, store RecordStore) *Initializer {
	return &Initializer{resolver: resolver, store: store}
}

// Initialize resolves the roster for sheet and creates a default-status
// record for every member without one. It returns the number created.
//
// Calling it again for the same sheet creates nothing and never overwrites
// a record, edited or not. If the resolver fails, nothing is written: an
// unknown scope surfaces as a not-found error, anything else as a transport
// error.
func (in *Initializer) Initialize(ctx context.Context, sheet attendance.Sheet) (int, error) {
	sheet, err := sheet.Normalize(true)
	if err != nil {
		return 0, err
	}

	ids, err := in.resolver.ResolveRoster(ctx, sheet)
	if err != nil {
		return 0, attendance.AsTransport("resolve roster", err)
	}

	existing, err := in.store.Get(ctx, sheet)
	if err != nil {
		return 0, fmt.Errorf("read existing records: %w", err)
	}
	missing := Missing(ids, existing)
	if len(missing) == 0 {
		slog.Debug("roster already initialized", "sheet", sheet.String(), "roster", len(ids))
		return 0, nil
	}

	created, err := in.store.InsertMissing(ctx, sheet, missing)
	if err != nil {
		return 0, fmt.Errorf("insert missing records: %w", err)
	}

	slog.Info("roster initialized", "sheet", sheet.String(), "roster", len(ids), "created", created)
	return created, nil
}

// Missing returns the roster ids, in roster order, that have no record.
// Duplicate roster ids are reported once.
func Missing(roster []string, records []attendance.Record) []string {
	have := make(map[string]struct{}, len(records))
	for _, r := range records {
		have[r.SubjectID] = struct{}{}
	}
	var out []string
	for _, raw := range roster {
		id, err := attendance.NormalizeID("subject_id", raw)
		if err != nil {
			// Left for InsertMissing to reject with a proper error.
			id = raw
		}
		if _, ok := have[id]; ok {
			continue
		}
		have[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

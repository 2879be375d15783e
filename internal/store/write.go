package store

import (
	"context"
	"fmt"

	"github.com/roach88/shoal/internal/history"
)

// Ingest inserts every entry in the batch inside one transaction. Entries
// whose identity (at, cmd, extra) already exists are silently skipped —
// INSERT OR IGNORE against the identity index — so ingest is idempotent and
// safe to re-run after an ambiguous failure.
//
// The transaction makes the batch atomic as a whole: a concurrent reader
// sees either none of it or all of it, and a crash mid-batch leaves the
// store as if the ingest never happened.
//
// Returns the number of rows actually inserted (duplicates excluded).
func (s *Store) Ingest(ctx context.Context, entries []history.Entry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ingest: begin tx: %w", mapUnavailable(err))
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO entries (cmd, at, extra)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("ingest: prepare: %w", mapUnavailable(err))
	}
	defer stmt.Close()

	var inserted int64
	for _, e := range entries {
		res, err := stmt.ExecContext(ctx, e.Cmd, e.When, e.Extra)
		if err != nil {
			return 0, fmt.Errorf("ingest: insert entry: %w", mapUnavailable(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("ingest: rows affected: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ingest: commit: %w", mapUnavailable(err))
	}

	return inserted, nil
}

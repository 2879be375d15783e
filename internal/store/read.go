package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/shoal/internal/history"
)

// ReadAll returns every stored entry ordered by timestamp ascending, with
// ties in stable insertion order (at ASC, id ASC). Rows are never deleted,
// so id order cannot shift between reads and repeated syncs cannot reorder
// equal-timestamp entries.
//
// Returns an empty slice (not nil) for an empty store.
func (s *Store) ReadAll(ctx context.Context) ([]history.Entry, error) {
	return s.readWhere(ctx, nil, nil, 0)
}

// RangeQuery narrows a read to a timestamp window. Nil bounds are open.
type RangeQuery struct {
	Since *int64 // inclusive lower bound on the entry timestamp
	Until *int64 // inclusive upper bound on the entry timestamp
	Limit int    // maximum rows returned; 0 means no limit
}

// ReadRange returns the entries inside the query window with the same
// ordering guarantees as ReadAll.
func (s *Store) ReadRange(ctx context.Context, q RangeQuery) ([]history.Entry, error) {
	var conds []string
	var args []any
	if q.Since != nil {
		conds = append(conds, "at >= ?")
		args = append(args, *q.Since)
	}
	if q.Until != nil {
		conds = append(conds, "at <= ?")
		args = append(args, *q.Until)
	}
	return s.readWhere(ctx, conds, args, q.Limit)
}

// readWhere assembles and runs the one SELECT shape every read uses:
// optional AND-joined conditions, the canonical ordering, an optional limit.
func (s *Store) readWhere(ctx context.Context, conds []string, args []any, limit int) ([]history.Entry, error) {
	var b strings.Builder
	b.WriteString("SELECT cmd, at, extra FROM entries")
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY at ASC, id ASC")
	if limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", mapUnavailable(err))
	}
	defer rows.Close()

	entries := []history.Entry{}
	for rows.Next() {
		var e history.Entry
		if err := rows.Scan(&e.Cmd, &e.When, &e.Extra); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return entries, nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", mapUnavailable(err))
	}
	return n, nil
}

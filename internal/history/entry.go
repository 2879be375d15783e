package history

import (
	"database/sql"
	"errors"
)

// Entry is one executed command as fish records it.
//
// The triple (When, Cmd, Extra) is the identity of an entry: two entries with
// an identical triple are the same logical event no matter how many machines
// report it, and collapse to one stored row. When alone is NOT unique —
// several commands can share a timestamp.
//
// Extra carries the lines fish attaches to an entry beyond cmd and when (the
// paths: block today, any future fields tomorrow), verbatim and
// newline-joined. Valid=false means the entry has no such lines; that is
// distinct from a present-but-empty block (one blank line in the file).
//
// Entry is a comparable value; slices of entries preserve their order.
type Entry struct {
	Cmd   string
	When  int64
	Extra sql.NullString
}

// ErrInvalidEntry reports an entry that violates the required shape: a
// missing timestamp, a non-integer timestamp, or a malformed wire record.
// Always wrapped with context; match with errors.Is.
var ErrInvalidEntry = errors.New("invalid history entry")

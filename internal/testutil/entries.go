package testutil

import (
	"database/sql"

	"github.com/roach88/shoal/internal/history"
)

// Entry builds a history entry with no extra block.
func Entry(cmd string, when int64) history.Entry {
	return history.Entry{Cmd: cmd, When: when}
}

// EntryWithExtra builds a history entry carrying a verbatim extra block.
func EntryWithExtra(cmd string, when int64, extra string) history.Entry {
	return history.Entry{
		Cmd:   cmd,
		When:  when,
		Extra: sql.NullString{String: extra, Valid: true},
	}
}

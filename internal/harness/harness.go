package harness

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/roach88/shoal/internal/client"
	"github.com/roach88/shoal/internal/history"
	"github.com/roach88/shoal/internal/server"
	"github.com/roach88/shoal/internal/store"
	"github.com/roach88/shoal/internal/testutil"
)

// Result captures the end state of a scenario run.
type Result struct {
	// StoreEntries is the final store dump in canonical read order.
	StoreEntries []history.Entry

	// Files holds each machine's final history file bytes. A machine
	// whose file never came to exist maps to nil.
	Files map[string][]byte
}

// Run executes a scenario inside workDir: seeds the store and machine
// history files, runs each sync step through the real client and server
// over an in-memory pipe, and collects the final state.
func Run(s *Scenario, workDir string) (*Result, error) {
	storePath := filepath.Join(workDir, "server", "history.db")
	if err := os.MkdirAll(filepath.Dir(storePath), 0o700); err != nil {
		return nil, fmt.Errorf("create server dir: %w", err)
	}

	st, err := store.Open(storePath)
	if err != nil {
		return nil, fmt.Errorf("open scenario store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if len(s.Store) > 0 {
		if _, err := st.Ingest(ctx, specEntries(s.Store)); err != nil {
			return nil, fmt.Errorf("seed store: %w", err)
		}
	}

	paths := make(map[string]string, len(s.Machines))
	for name, spec := range s.Machines {
		dir := filepath.Join(workDir, "machines", name)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create machine dir %s: %w", name, err)
		}
		path := filepath.Join(dir, "fish_history")
		paths[name] = path
		if len(spec.History) > 0 {
			data := history.Render(specEntries(spec.History))
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return nil, fmt.Errorf("seed machine %s: %w", name, err)
			}
		}
	}

	for i, step := range s.Syncs {
		transport := testutil.NewPipeSession(func(r io.Reader, w io.Writer) error {
			return server.New(st, nil).Run(ctx, r, w)
		})
		err := client.Run(ctx, client.Options{
			HistoryPath: paths[step.Machine],
			Transport:   transport,
		})
		if err != nil {
			return nil, fmt.Errorf("syncs[%d] (%s): %w", i, step.Machine, err)
		}
	}

	result := &Result{Files: make(map[string][]byte, len(paths))}
	for name, path := range paths {
		data, err := history.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read final file for %s: %w", name, err)
		}
		result.Files[name] = data
	}

	result.StoreEntries, err = st.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read final store: %w", err)
	}

	return result, nil
}

// specEntries converts YAML entry specs to history entries.
func specEntries(specs []EntrySpec) []history.Entry {
	entries := make([]history.Entry, len(specs))
	for i, spec := range specs {
		entries[i] = history.Entry{Cmd: spec.Cmd, When: spec.When}
		if spec.Extra != nil {
			entries[i].Extra = sql.NullString{String: *spec.Extra, Valid: true}
		}
	}
	return entries
}

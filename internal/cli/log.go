package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"

	"github.com/roach88/shoal/internal/config"
	"github.com/roach88/shoal/internal/history"
	"github.com/roach88/shoal/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Database string
	Since    int64
	Until    int64
	Limit    int
	Grep     string
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect a local history store",
		Long: `Print entries from a store in timestamp order. Run on a host to see
what has been merged there without going through a sync session.

Example:
  shoal log --since 1712000000 --limit 20
  shoal log --grep 'git rebase' --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "store path (default: the configured data dir's history.db)")
	cmd.Flags().Int64Var(&opts.Since, "since", 0, "only entries at or after this Unix timestamp")
	cmd.Flags().Int64Var(&opts.Until, "until", 0, "only entries at or before this Unix timestamp")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum entries to print (0 = all)")
	cmd.Flags().StringVar(&opts.Grep, "grep", "", "only entries whose command contains this text (case-folded)")

	return cmd
}

// logEntry is the JSON shape of one printed entry.
type logEntry struct {
	Cmd   string  `json:"cmd"`
	When  int64   `json:"when"`
	Extra *string `json:"extra,omitempty"`
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.StorePath()
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer st.Close()

	q := store.RangeQuery{Limit: opts.Limit}
	if cmd.Flags().Changed("since") {
		q.Since = &opts.Since
	}
	if cmd.Flags().Changed("until") {
		q.Until = &opts.Until
	}

	entries, err := st.ReadRange(cmd.Context(), q)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read store", err)
	}

	if opts.Grep != "" {
		entries = filterGrep(entries, opts.Grep)
	}

	if opts.Format == "json" {
		out := make([]logEntry, 0, len(entries))
		for _, e := range entries {
			le := logEntry{Cmd: e.Cmd, When: e.When}
			if e.Extra.Valid {
				extra := e.Extra.String
				le.Extra = &extra
			}
			out = append(out, le)
		}
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(out)
	}

	w := cmd.OutOrStdout()
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\n", e.When, e.Cmd)
	}
	return nil
}

// filterGrep keeps entries whose command contains the query under Unicode
// case folding, so `--grep ssh` matches "SSH" and folded characters match
// the way fish's own case-insensitive search does.
func filterGrep(entries []history.Entry, query string) []history.Entry {
	fold := cases.Fold()
	needle := fold.String(query)

	matched := entries[:0:0]
	for _, e := range entries {
		if strings.Contains(fold.String(e.Cmd), needle) {
			matched = append(matched, e)
		}
	}
	return matched
}

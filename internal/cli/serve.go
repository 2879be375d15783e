package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/shoal/internal/config"
	"github.com/roach88/shoal/internal/server"
	"github.com/roach88/shoal/internal/store"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve one sync session on the standard streams",
		Long: `Serve exactly one sync session: read the peer's batch from stdin,
merge it into the store, write the full merged history to stdout, exit.

This is the remote end of "shoal sync" — it is normally spawned over ssh,
not run by hand. Logs go to stderr, which ssh relays back to the syncing
user. The store directory is created on demand.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}

	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	logger := newLogger(opts, newSessionID())

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return WrapExitError(ExitCommandError, "failed to create data directory", err)
	}

	logger.Debug("opening store", "path", cfg.StorePath())
	st, err := store.Open(cfg.StorePath())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to open store", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing store", "error", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.New(st, logger).Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
		return WrapExitError(ExitFailure, "sync session failed", err)
	}
	return nil
}

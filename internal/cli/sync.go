package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/shoal/internal/client"
	"github.com/roach88/shoal/internal/config"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <host>",
		Short: "Run one sync session against a host",
		Long: `Merge the local fish history with the store on <host> and rewrite the
local history file with the union.

The host is reached by spawning the configured ssh command with the
configured remote command (default: ssh <host> "shoal serve"); shoal must
be installed on the host. The session is idempotent — rerunning after a
failure is always safe.

Example:
  shoal sync workstation.example.com
  shoal sync backup-box --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runSync(opts *RootOptions, host string, cmd *cobra.Command) error {
	logger := newLogger(opts, newSessionID())

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	// The history directory holds the advisory lock and the temp file for
	// the atomic replace; a machine that has never run fish needs it created.
	if err := os.MkdirAll(filepath.Dir(cfg.HistoryFile), 0o700); err != nil {
		return WrapExitError(ExitCommandError, "failed to create history directory", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Debug("dialing host", "host", host, "ssh", cfg.SSHCommand, "remote_cmd", cfg.RemoteCommand)
	transport, err := client.DialSSH(ctx, cfg.SSHCommand, host, cfg.RemoteCommand)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to reach host", err)
	}

	if err := client.Run(ctx, client.Options{
		HistoryPath: cfg.HistoryFile,
		Transport:   transport,
		Logger:      logger,
	}); err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("sync with %s failed", host), err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(fmt.Sprintf("history synced with %s", host))
}

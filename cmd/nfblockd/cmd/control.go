package cmd

import (
	"fmt"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmakovicka/nfblock/internal/config"
	"github.com/jmakovicka/nfblock/internal/daemon"
)

func signalCommand(use, short, long string, sig syscall.Signal) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			pid, err := daemon.SignalDaemon(cfg.Pidfile, sig)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to nfblockd (pid %d)\n", use, pid)
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(
		signalCommand("reload", "Reload the blocklists of a running daemon", `Ask the running daemon to reload its blocklists (SIGHUP).

Example:
  nfblockd reload -p /var/run/nfblockd.pid`, syscall.SIGHUP),
		signalCommand("stats", "Dump hit statistics of a running daemon to its log", `Ask the running daemon to log its packet counters and per-range hit
statistics (SIGUSR1).

Example:
  nfblockd stats`, syscall.SIGUSR1),
		signalCommand("quit", "Stop a running daemon", `Ask the running daemon to unbind from its queue and exit (SIGTERM).

Example:
  nfblockd quit`, syscall.SIGTERM),
	)
}

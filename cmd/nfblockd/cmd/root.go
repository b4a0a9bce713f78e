package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	Version    = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "nfblockd",
	Short: "nfblockd - NFQUEUE IP blocklist daemon",
	Long: `nfblockd receives IPv4 packets from a netfilter queue and drops or marks
those whose source or destination address is on a blocklist.

Run 'nfblockd start' to start the daemon, then use 'nfblockd reload',
'nfblockd stats' and 'nfblockd quit' to control it.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringP("pidfile", "p", "/var/run/nfblockd.pid", "pidfile path")
}

package cmd

import (
	"bufio"
	"os"

	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [flags] [BLOCKLIST...]",
	Short: "Print the merged blocklist",
	Long: `Load and merge the blocklists and print every resulting range. Ranges
built by merging overlapping entries are followed by the entries they
were built from.

Example:
  nfblockd dump -f level1.p2p`,
	RunE: runDump,
}

func init() {
	addListFlags(dumpCmd)
	rootCmd.AddCommand(dumpCmd)
}

func runDump(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	list, err := loadBlocklist(setupLogger(cfg.LogLevel, false), blocklistFiles(cfg))
	if err != nil {
		return err
	}

	w := bufio.NewWriter(os.Stdout)
	if err := list.Dump(w); err != nil {
		return err
	}
	return w.Flush()
}

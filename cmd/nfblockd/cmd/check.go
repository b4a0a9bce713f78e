package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jmakovicka/nfblock/internal/blocklist"
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] [BLOCKLIST...]",
	Short: "Parse blocklists and report their format and size",
	Long: `Parse every blocklist without binding to a queue and print the detected
format and the number of ranges read from each file.

Example:
  nfblockd check /etc/nfblockd/level1.p2p.gz ipfilter.dat`,
	RunE: runCheck,
}

func init() {
	addListFlags(checkCmd)
	rootCmd.AddCommand(checkCmd)
}

// addListFlags registers the flags of commands that only read blocklists.
func addListFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("file", "f", nil, "blocklist file name (repeatable)")
	cmd.Flags().StringP("charset", "c", blocklist.DefaultCharset, "blocklist label charset")
	cmd.Flags().BoolP("verbose", "v", false, "verbose output")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.LogLevel, false)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tFORMAT\tRANGES\tERROR")

	var errs []error
	list := blocklist.New(logger)
	for _, f := range blocklistFiles(cfg) {
		format, n, err := list.LoadFile(f.Path, f.Charset)
		msg := ""
		if err != nil {
			msg = err.Error()
			errs = append(errs, err)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", f.Path, format, n, msg)
	}
	w.Flush()

	list.Finalize()
	fmt.Printf("\nTotal: %d ranges after merging, %d sub-ranges\n", list.Len(), list.SubLen())

	return errors.Join(errs...)
}

// loadBlocklist loads and finalizes files, failing only when none loaded.
func loadBlocklist(logger zerolog.Logger, files []blocklist.File) (*blocklist.Blocklist, error) {
	list := blocklist.New(logger)
	loaded, err := list.LoadFiles(files)
	if loaded == 0 {
		if err == nil {
			err = errors.New("no blocklist given")
		}
		return nil, fmt.Errorf("cannot load the blocklist: %w", err)
	}
	list.Finalize()
	return list, nil
}

package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmakovicka/nfblock/internal/config"
	"github.com/jmakovicka/nfblock/internal/store"
)

var (
	eventsPageSize int
	eventsAll      bool
	eventsPrune    time.Duration
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recorded block events",
	Long: `List the block events recorded in the event journal, oldest first.
The journal is written by the daemon when notify.journal.enabled is set.

Example:
  nfblockd events
  nfblockd events --all
  nfblockd events --prune 72h`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().IntVar(&eventsPageSize, "page-size", 100, "number of results per page")
	eventsCmd.Flags().BoolVar(&eventsAll, "all", false, "fetch all pages")
	eventsCmd.Flags().DurationVar(&eventsPrune, "prune", 0, "delete events older than this instead of listing")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	st, err := store.New(cfg.Notify.Journal.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	if eventsPrune > 0 {
		n, err := st.PruneBefore(time.Now().Add(-eventsPrune))
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d events\n", n)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tHOOK\tSIDE\tADDRESS\tHITS\tACTION\tLABELS")

	var pageToken string
	total := 0

	for {
		events, next, count, err := st.ListEvents(eventsPageSize, pageToken)
		if err != nil {
			return fmt.Errorf("list failed: %w", err)
		}

		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				e.OccurredAt.Local().Format(time.DateTime),
				e.Hook,
				e.Side,
				e.Address,
				e.Hits,
				e.Action,
				strings.Join(e.Labels, ", "),
			)
		}

		total = count

		if !eventsAll || next == "" {
			break
		}
		pageToken = next
	}

	w.Flush()
	fmt.Printf("\nTotal: %d events\n", total)
	return nil
}

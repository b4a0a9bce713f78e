package cmd

import (
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmakovicka/nfblock/internal/blocklist"
)

const benchIterations = 10_000_000

var benchCmd = &cobra.Command{
	Use:   "bench [flags] [BLOCKLIST...]",
	Short: "Benchmark IP matches per second",
	Long: `Load the blocklists and measure how many random addresses can be looked
up per second. Same as 'nfblockd start -b'.

Example:
  nfblockd bench -f level1.p2p.gz`,
	RunE: runBench,
}

func init() {
	addListFlags(benchCmd)
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	list, err := loadBlocklist(setupLogger(cfg.LogLevel, false), blocklistFiles(cfg))
	if err != nil {
		return err
	}
	runBenchmark(cmd.ErrOrStderr(), list, benchIterations)
	return nil
}

func runBenchmark(w io.Writer, list *blocklist.Blocklist, iterations int) {
	matches := 0
	start := time.Now()
	for i := 0; i < iterations; i++ {
		if r, _ := list.Find(rand.Uint32(), nil); r != nil {
			matches++
		}
	}
	elapsed := time.Since(start)

	perSec := int64(float64(iterations) / elapsed.Seconds())
	fmt.Fprintf(w, "%d matches per second.\n", perSec)
	fmt.Fprintf(w, "%d of %d random addresses matched.\n", matches, iterations)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jmakovicka/nfblock/internal/blocklist"
	"github.com/jmakovicka/nfblock/internal/classifier"
	"github.com/jmakovicka/nfblock/internal/config"
	"github.com/jmakovicka/nfblock/internal/daemon"
	"github.com/jmakovicka/nfblock/internal/metrics"
	"github.com/jmakovicka/nfblock/internal/notify"
	"github.com/jmakovicka/nfblock/internal/store"
)

var startBenchmark bool

var startCmd = &cobra.Command{
	Use:   "start [flags] [BLOCKLIST...]",
	Short: "Start the nfblockd daemon",
	Long: `Start the nfblockd daemon which:
- Loads the blocklists (PeerGuardian binary/ascii or ipfilter.dat, optionally gzip or zstd compressed)
- Binds to an NFQUEUE and issues a verdict for every queued packet
- Reports blocked addresses to the log, D-Bus, redis and the event journal

Blocklists given as arguments are added to those from -f and the config file.

Example:
  iptables -A INPUT -j NFQUEUE --queue-num 0
  nfblockd start -q 0 -f /etc/nfblockd/level1.p2p.gz`,
	RunE: runStart,
}

func init() {
	f := startCmd.Flags()
	f.IntP("queue", "q", 0, "NFQUEUE number, as specified in --queue-num with iptables")
	f.Uint32P("accept-mark", "a", 0, "32-bit mark to place on accepted packets")
	f.Uint32P("reject-mark", "r", 0, "32-bit mark to place on rejected packets")
	f.StringSliceP("file", "f", nil, "blocklist file name (repeatable)")
	f.StringP("charset", "c", blocklist.DefaultCharset, "blocklist label charset")
	f.BoolP("verbose", "v", false, "verbose output")
	f.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	f.Bool("syslog", false, "also log to the system log")
	f.Bool("no-syslog", false, "disable hit logging")
	f.Bool("no-dbus", false, "disable D-Bus hit reporting")
	f.Bool("watch", false, "reload when a blocklist file changes")
	f.BoolVarP(&startBenchmark, "benchmark", "b", false, "benchmark IP matches per second and exit")
	rootCmd.AddCommand(startCmd)
}

func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	for _, p := range args {
		cfg.Blocklists = append(cfg.Blocklists, config.BlocklistConfig{Path: p, Charset: cfg.Charset})
	}
	return cfg, nil
}

func blocklistFiles(cfg *config.Config) []blocklist.File {
	files := make([]blocklist.File, 0, len(cfg.Blocklists))
	for _, b := range cfg.Blocklists {
		files = append(files, blocklist.File{Path: b.Path, Charset: b.Charset})
	}
	return files
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	if len(cfg.Blocklists) == 0 {
		return errors.New("no blocklist given, use -f or the blocklists config key")
	}

	logger := setupLogger(cfg.LogLevel, cfg.Syslog)
	files := blocklistFiles(cfg)

	if startBenchmark {
		list, err := loadBlocklist(logger, files)
		if err != nil {
			return err
		}
		runBenchmark(cmd.ErrOrStderr(), list, benchIterations)
		return nil
	}

	logger.Info().
		Str("version", Version).
		Int("queue", cfg.QueueNum).
		Int("blocklists", len(files)).
		Msg("starting nfblockd")

	pidfile, err := daemon.CreatePidfile(cfg.Pidfile)
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := pidfile.Remove(); rmErr != nil {
			logger.Warn().Err(rmErr).Msg("failed to remove pidfile")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	sinks, err := buildSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(logger, cfg.Notify.QueueSize, sinks...)
	dispatcher.OnDrop(m.IncNotifyDropped)
	dispatcher.Start(ctx)
	defer func() {
		if closeErr := dispatcher.Close(); closeErr != nil {
			logger.Warn().Err(closeErr).Msg("failed to close notifiers")
		}
	}()

	engine := daemon.NewEngine(logger, files, classifier.Config{
		AcceptMark: cfg.AcceptMark,
		RejectMark: cfg.RejectMark,
	}, dispatcher, m)

	if _, err := engine.Reload(); err != nil {
		if engine.Blocklist() == nil || engine.Blocklist().Len() == 0 {
			return fmt.Errorf("cannot load the blocklist: %w", err)
		}
		logger.Warn().Err(err).Msg("some blocklists failed to load")
	}

	engine.HandleSignals(ctx, cancel)

	if cfg.Watch {
		paths := make([]string, 0, len(files))
		for _, f := range files {
			paths = append(paths, f.Path)
		}
		watcher, err := daemon.NewListWatcher(logger, paths, cfg.WatchDelay, func() {
			engine.Send(daemon.CmdReload)
		})
		if err != nil {
			return fmt.Errorf("watching blocklists: %w", err)
		}
		watcher.Start()
		defer watcher.Stop()
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Listen, cfg.Metrics.Path, logger); err != nil {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	queue, err := daemon.OpenQueue(ctx, logger, uint16(cfg.QueueNum))
	if err != nil {
		return err
	}
	defer queue.Close()

	// Unbind the queue before dying, or the kernel keeps queueing packets
	// nobody will ever issue a verdict for.
	defer func() {
		if r := recover(); r != nil {
			queue.Close()
			panic(r)
		}
	}()

	err = engine.Run(ctx, queue)
	logger.Info().Msg("shutting down")
	if list := engine.Blocklist(); list != nil {
		list.LogStats(logger)
	}
	return err
}

func buildSinks(ctx context.Context, cfg *config.Config, logger zerolog.Logger) ([]notify.Sink, error) {
	var sinks []notify.Sink

	if !cfg.NoSyslog {
		sinks = append(sinks, notify.NewLog(logger))
	}

	if cfg.Notify.DBus.Enabled {
		d, err := notify.NewDBus()
		if err != nil {
			logger.Warn().Err(err).Msg("cannot connect to D-Bus, hit reporting over D-Bus disabled")
		} else {
			sinks = append(sinks, d)
		}
	}

	if cfg.Notify.Redis.Addr != "" {
		sinks = append(sinks, notify.NewRedis(cfg.Notify.Redis.Addr, cfg.Notify.Redis.Channel))
	}

	if cfg.Notify.Journal.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Notify.Journal.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
		st, err := store.New(cfg.Notify.Journal.Path)
		if err != nil {
			return nil, err
		}
		if cfg.Notify.Journal.Retention > 0 {
			go pruneJournal(ctx, st, cfg.Notify.Journal.Retention, logger)
		}
		sinks = append(sinks, notify.NewJournal(st))
	}

	return sinks, nil
}

func pruneJournal(ctx context.Context, st *store.Store, retention time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		n, err := st.PruneBefore(time.Now().Add(-retention))
		if err != nil {
			logger.Warn().Err(err).Msg("failed to prune event journal")
		} else if n > 0 {
			logger.Debug().Int64("events", n).Msg("pruned event journal")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

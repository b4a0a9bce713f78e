package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// HandleSignals maps SIGHUP to a reload and SIGUSR1 to a statistics dump
// until ctx is done. SIGINT and SIGTERM call stop.
func (e *Engine) HandleSignals(ctx context.Context, stop context.CancelFunc) {
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				e.logger.Info().Str("signal", sig.String()).Msg("received signal")
				switch sig {
				case syscall.SIGHUP:
					e.Send(CmdReload)
				case syscall.SIGUSR1:
					e.Send(CmdDumpStats)
				default:
					stop()
					return
				}
			}
		}
	}()
}

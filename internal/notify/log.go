package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jmakovicka/nfblock/internal/classifier"
)

// Log writes one line per report, e.g.
//
//	Blocked IN: Some List, hits: 3, SRC: 10.0.0.5
type Log struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("component", "hits").Logger()}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Send(_ context.Context, e classifier.Event) error {
	l.logger.Info().
		Str("hook", e.Hook.String()).
		Str("address", e.AddressString()).
		Strs("labels", e.Labels).
		Int("hits", e.Hits).
		Str("action", e.Action.String()).
		Msg(FormatEvent(e))
	return nil
}

func (l *Log) Close() error { return nil }

// FormatEvent renders the classic one-line report.
func FormatEvent(e classifier.Event) string {
	return fmt.Sprintf("Blocked %s: %s, hits: %d, %s: %s", e.Hook, e.Label(), e.Hits, e.Side, e.AddressString())
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmakovicka/nfblock/internal/blocklist"
	"github.com/jmakovicka/nfblock/internal/classifier"
	"github.com/jmakovicka/nfblock/internal/metrics"
)

type Command int

const (
	CmdReload Command = iota
	CmdDumpStats
	CmdClear
	CmdQuit
)

func (c Command) String() string {
	switch c {
	case CmdReload:
		return "reload"
	case CmdDumpStats:
		return "dump-stats"
	case CmdClear:
		return "clear"
	case CmdQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// QueuedPacket is a packet waiting for a verdict.
type QueuedPacket struct {
	ID uint32
	classifier.Packet
}

// PacketSource delivers queued packets and applies verdicts to them.
type PacketSource interface {
	Packets() <-chan QueuedPacket
	SetVerdict(p QueuedPacket, d classifier.Decision) error
	Close() error
}

var ErrSourceClosed = errors.New("packet source closed")

// Engine owns the active blocklist. Packets and commands are handled by a
// single goroutine in Run, so a lookup never observes a half-loaded list.
type Engine struct {
	logger     zerolog.Logger
	files      []blocklist.File
	classifier *classifier.Classifier
	metrics    *metrics.Collector
	commands   chan Command
	now        func() time.Time
}

func NewEngine(logger zerolog.Logger, files []blocklist.File, cfg classifier.Config, notifier classifier.Notifier, m *metrics.Collector) *Engine {
	if m == nil {
		m = metrics.New()
	}
	return &Engine{
		logger:     logger.With().Str("component", "engine").Logger(),
		files:      files,
		classifier: classifier.New(nil, cfg, notifier),
		metrics:    m,
		commands:   make(chan Command, 8),
		now:        time.Now,
	}
}

// Send queues cmd for the Run loop. It never blocks; a command arriving
// while the queue is full is dropped.
func (e *Engine) Send(cmd Command) bool {
	select {
	case e.commands <- cmd:
		return true
	default:
		e.logger.Warn().Stringer("command", cmd).Msg("command queue full, dropping command")
		return false
	}
}

func (e *Engine) Blocklist() *blocklist.Blocklist {
	return e.classifier.Blocklist()
}

// Reload loads every configured file into a new list and swaps it in. If
// no file loads and a list is already serving, that list is kept.
func (e *Engine) Reload() (int, error) {
	if cur := e.Blocklist(); cur != nil {
		cur.LogStats(e.logger)
	}

	start := time.Now()
	next := blocklist.New(e.logger)
	loaded, err := next.LoadFiles(e.files)

	if loaded == 0 && len(e.files) > 0 {
		if cur := e.Blocklist(); cur != nil && cur.Len() > 0 {
			e.metrics.IncReload("failed")
			e.logger.Error().Err(err).Msg("no blocklist could be loaded, keeping the current one")
			return 0, fmt.Errorf("reloading blocklists: %w", err)
		}
	}

	next.Finalize()
	e.classifier.SetBlocklist(next)
	e.metrics.SetRanges(next.Len(), next.SubLen())

	result := "ok"
	if err != nil {
		result = "partial"
	}
	e.metrics.IncReload(result)

	e.logger.Info().
		Int("files", loaded).
		Int("failed", len(e.files)-loaded).
		Int("ranges", next.Len()).
		Int("subranges", next.SubLen()).
		Dur("took", time.Since(start)).
		Msg("blocklist loaded")

	return next.Len(), err
}

func (e *Engine) DumpStats() {
	stats := e.metrics.GetStats()
	e.logger.Info().
		Uint64("received", stats.Received).
		Uint64("blocked", stats.Blocked).
		Uint64("unhandled", stats.Unhandled).
		Msg("packet statistics")

	if list := e.Blocklist(); list != nil {
		list.LogStats(e.logger)
	}
}

// Clear releases the active list. Every packet is passed until the next
// reload.
func (e *Engine) Clear() {
	if list := e.Blocklist(); list != nil {
		list.Clear()
	}
	e.metrics.SetRanges(0, 0)
	e.logger.Info().Msg("blocklist cleared")
}

// Run handles packets from src and queued commands until ctx is done, a
// quit command arrives, or src is closed.
func (e *Engine) Run(ctx context.Context, src PacketSource) error {
	packets := src.Packets()
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-e.commands:
			if cmd == CmdQuit {
				e.logger.Info().Msg("quit requested")
				return nil
			}
			e.handle(cmd)
		case p, ok := <-packets:
			if !ok {
				return ErrSourceClosed
			}
			e.process(src, p)
		}
	}
}

func (e *Engine) handle(cmd Command) {
	e.logger.Debug().Stringer("command", cmd).Msg("handling command")
	switch cmd {
	case CmdReload:
		e.Reload()
	case CmdDumpStats:
		e.DumpStats()
	case CmdClear:
		e.Clear()
	}
}

func (e *Engine) process(src PacketSource, p QueuedPacket) {
	d := e.classifier.Classify(p.Packet, e.now())
	if !d.Handled {
		e.logger.Info().Stringer("hook", p.Hook).Msg("Not NF_LOCAL_IN/OUT/FORWARD packet!")
		e.metrics.ObserveUnhandled(p.Hook.String())
		d = classifier.Decision{Handled: true, Verdict: classifier.VerdictAccept}
	} else {
		e.metrics.ObserveVerdict(p.Hook.String(), d.Verdict.String(), d.Blocked)
	}

	if err := src.SetVerdict(p, d); err != nil {
		e.logger.Error().Err(err).Uint32("packet_id", p.ID).Msg("failed to set verdict")
	}
}

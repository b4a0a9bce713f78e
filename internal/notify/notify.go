// Package notify delivers block reports to logging, D-Bus, redis and the
// event journal without ever blocking the packet path.
package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmakovicka/nfblock/internal/classifier"
)

const (
	DefaultQueueSize = 1024
	sendTimeout      = 5 * time.Second
)

// Sink consumes report events. Send may block; the Dispatcher calls it
// from its own goroutine.
type Sink interface {
	Name() string
	Send(ctx context.Context, e classifier.Event) error
	Close() error
}

// Dispatcher queues events from the classifier and fans them out to every
// sink. When the queue is full new events are dropped and counted.
type Dispatcher struct {
	logger zerolog.Logger
	sinks  []Sink
	events chan classifier.Event
	onDrop func()

	dropped atomic.Uint64
	started atomic.Bool

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(logger zerolog.Logger, queueSize int, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Dispatcher{
		logger: logger.With().Str("component", "notify").Logger(),
		sinks:  sinks,
		events: make(chan classifier.Event, queueSize),
		done:   make(chan struct{}),
	}
}

// OnDrop registers a callback run for every dropped event. It must be set
// before Start.
func (d *Dispatcher) OnDrop(fn func()) {
	d.onDrop = fn
}

// Start runs the delivery loop until Close.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.started.Swap(true) {
		return
	}
	go d.run(ctx)
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for e := range d.events {
		for _, s := range d.sinks {
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			err := s.Send(sendCtx, e)
			cancel()
			if err != nil {
				d.logger.Warn().Err(err).Str("sink", s.Name()).Msg("failed to deliver block report")
			}
		}
	}
}

// Notify implements classifier.Notifier.
func (d *Dispatcher) Notify(e classifier.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.events <- e:
	default:
		d.dropped.Add(1)
		if d.onDrop != nil {
			d.onDrop()
		}
	}
}

func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops accepting events, waits for queued ones to be delivered if
// the loop is running, then closes every sink.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	if d.started.Load() {
		<-d.done
	}

	var errs []error
	for _, s := range d.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

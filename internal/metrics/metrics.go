// Package metrics exposes packet verdict, blocklist and notifier counters
// to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "nfblockd"

type Collector struct {
	registry *prometheus.Registry

	verdicts      *prometheus.CounterVec
	ranges        *prometheus.GaugeVec
	reloads       *prometheus.CounterVec
	notifyDropped prometheus.Counter

	received  atomic.Uint64
	blocked   atomic.Uint64
	unhandled atomic.Uint64
}

// New builds a collector on its own registry, so several instances can
// coexist in one process.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Packets classified, by hook and verdict.",
		}, []string{"hook", "verdict"}),
		ranges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ranges",
			Help:      "Entries in the active blocklist.",
		}, []string{"kind"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reloads_total",
			Help:      "Blocklist reloads, by result.",
		}, []string{"result"}),
		notifyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_dropped_total",
			Help:      "Block reports dropped because the notification queue was full.",
		}),
	}
	c.registry.MustRegister(
		c.verdicts, c.ranges, c.reloads, c.notifyDropped,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveVerdict(hook, verdict string, blocked bool) {
	c.received.Add(1)
	if blocked {
		c.blocked.Add(1)
	}
	c.verdicts.WithLabelValues(hook, verdict).Inc()
}

func (c *Collector) ObserveUnhandled(hook string) {
	c.received.Add(1)
	c.unhandled.Add(1)
	c.verdicts.WithLabelValues(hook, "ACCEPT").Inc()
}

func (c *Collector) SetRanges(ranges, subRanges int) {
	c.ranges.WithLabelValues("ranges").Set(float64(ranges))
	c.ranges.WithLabelValues("subranges").Set(float64(subRanges))
}

func (c *Collector) IncReload(result string) {
	c.reloads.WithLabelValues(result).Inc()
}

func (c *Collector) IncNotifyDropped() {
	c.notifyDropped.Inc()
}

// Stats is a point-in-time copy of the packet counters.
type Stats struct {
	Received  uint64 `json:"received"`
	Blocked   uint64 `json:"blocked"`
	Unhandled uint64 `json:"unhandled"`
}

func (c *Collector) GetStats() Stats {
	return Stats{
		Received:  c.received.Load(),
		Blocked:   c.blocked.Load(),
		Unhandled: c.unhandled.Load(),
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes the registry on listen at path until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, listen, path string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(path, c.Handler())
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("listen", listen).Str("path", path).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/dapbridge/internal/handles"
)

const namespace = "dapbridge"

// Metrics tracks handle-table and request activity. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	minted      prometheus.Counter
	reused      prometheus.Counter
	live        prometheus.Gauge
	generations prometheus.Counter
	stale       prometheus.Counter
	requests    *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		minted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handles_minted_total",
			Help:      "Handles minted for paths not seen in the previous generation.",
		}),
		reused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handles_reused_total",
			Help:      "Handles recovered from the previous generation.",
		}),
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "handles_live",
			Help:      "Handles in the current generation.",
		}),
		generations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Handle-table generations started.",
		}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_references_total",
			Help:      "Client references that no longer resolve.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "DAP requests served.",
		}, []string{"command", "success"}),
	}

	m.registry.MustRegister(m.minted, m.reused, m.live, m.generations, m.stale, m.requests)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveGeneration records the closing stats of a generation before the
// table advances.
func (m *Metrics) ObserveGeneration(closing handles.Stats) {
	if m == nil {
		return
	}
	m.minted.Add(float64(closing.Minted))
	m.reused.Add(float64(closing.Reused))
	m.generations.Inc()
	m.live.Set(0)
}

// ObserveLive records the number of live handles.
func (m *Metrics) ObserveLive(n int) {
	if m == nil {
		return
	}
	m.live.Set(float64(n))
}

// StaleReference counts a reference that did not resolve.
func (m *Metrics) StaleReference() {
	if m == nil {
		return
	}
	m.stale.Inc()
}

// Request counts a served request.
func (m *Metrics) Request(command string, success bool) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(command, strconv.FormatBool(success)).Inc()
}

// Handler returns the /metrics scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ServeMetrics serves /metrics on addr until ctx is done.
func ServeMetrics(ctx context.Context, addr string, m *Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}
	return nil
}

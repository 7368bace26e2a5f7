// Package metrics exports interceptor outcomes as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/abdul-hamid-achik/httpvcr/packages/vcr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector counts intercepted requests. It implements vcr.Observer.
type Collector struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "httpvcr_requests_total",
			Help: "Intercepted requests by outcome",
		}, []string{"kind", "mode", "method"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "httpvcr_failures_total",
			Help: "Intercepted requests that ended in an error, by outcome",
		}, []string{"kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "httpvcr_request_duration_seconds",
			Help:    "Time spent handling an intercepted request",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}

	c.registry.MustRegister(c.requests, c.failures, c.duration)
	return c
}

// Observe records one event.
func (c *Collector) Observe(e vcr.Event) {
	kind := string(e.Kind)
	c.requests.WithLabelValues(kind, e.Mode.String(), e.Method).Inc()
	c.duration.WithLabelValues(kind).Observe(e.Duration.Seconds())
	if e.Err != nil {
		c.failures.WithLabelValues(kind).Inc()
	}
}

// Registry returns the registry the metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

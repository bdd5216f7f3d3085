// Package metrics exposes pipeline counters and timings through Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder collects pipeline metrics on its own registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry        *prometheus.Registry
	samples         *prometheus.CounterVec
	records         *prometheus.CounterVec
	unitDuration    *prometheus.HistogramVec
	unitFailures    *prometheus.CounterVec
	retries         *prometheus.CounterVec
	modeCacheHits   prometheus.Counter
	modeCacheMisses prometheus.Counter
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctpy",
			Name:      "samples_processed_total",
			Help:      "Samples processed, by stage and outcome.",
		}, []string{"stage", "outcome"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctpy",
			Name:      "records_written_total",
			Help:      "Records written to the store, by kind.",
		}, []string{"kind"}),
		unitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ctpy",
			Name:      "unit_duration_seconds",
			Help:      "Wall time of one unit of work, by stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
		unitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctpy",
			Name:      "unit_failures_total",
			Help:      "Units of work that failed after all attempts, by stage.",
		}, []string{"stage"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ctpy",
			Name:      "unit_retries_total",
			Help:      "Retried attempts of units of work, by stage.",
		}, []string{"stage"}),
		modeCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ctpy",
			Name:      "mode_cache_hits_total",
			Help:      "Mode definition cache hits.",
		}),
		modeCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ctpy",
			Name:      "mode_cache_misses_total",
			Help:      "Mode definition cache misses.",
		}),
	}
	r.registry.MustRegister(
		r.samples,
		r.records,
		r.unitDuration,
		r.unitFailures,
		r.retries,
		r.modeCacheHits,
		r.modeCacheMisses,
		collectors.NewGoCollector(),
	)
	return r
}

func (r *Recorder) Sample(stage, outcome string) {
	if r == nil {
		return
	}
	r.samples.WithLabelValues(stage, outcome).Inc()
}

func (r *Recorder) Records(kind string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.records.WithLabelValues(kind).Add(float64(n))
}

func (r *Recorder) Unit(stage string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.unitDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if err != nil {
		r.unitFailures.WithLabelValues(stage).Inc()
	}
}

func (r *Recorder) Retry(stage string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(stage).Inc()
}

// ModeCache adds deltas of the mode cache hit and miss counts.
func (r *Recorder) ModeCache(hits, misses uint64) {
	if r == nil {
		return
	}
	r.modeCacheHits.Add(float64(hits))
	r.modeCacheMisses.Add(float64(misses))
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

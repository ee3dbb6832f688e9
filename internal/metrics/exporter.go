// Package metrics publishes the dashboard's current windowed statistics as
// Prometheus gauges.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"diskqueue/internal/dashboard"
	"diskqueue/internal/disks"
)

type series struct{ disk, kind string }

// Exporter holds gauges on a private registry. Update must be called from
// one goroutine; scrapes may run concurrently.
type Exporter struct {
	reg       *prometheus.Registry
	router    *mux.Router
	busy      *prometheus.GaugeVec
	backlog   *prometheus.GaugeVec
	avgQueue  *prometheus.GaugeVec
	retained  prometheus.Gauge
	window    prometheus.Gauge
	retention prometheus.Gauge
	samples   prometheus.Counter

	lastTicks uint64
	live      map[series]bool
	updated   atomic.Int64 // unix nanos of the last Update
}

// NewExporter registers the gauges and routes.
func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	e := &Exporter{
		reg:    reg,
		router: mux.NewRouter(),
		busy: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "diskqueue_busy_ratio",
			Help: "Fraction of samples in the selected window with at least one request queued",
		}, []string{"disk", "kind"}),
		backlog: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "diskqueue_backlog_ratio",
			Help: "Fraction of samples in the selected window with more than one request queued",
		}, []string{"disk", "kind"}),
		avgQueue: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "diskqueue_avg_queue",
			Help: "Average queue length over the selected window",
		}, []string{"disk"}),
		retained: f.NewGauge(prometheus.GaugeOpts{
			Name: "diskqueue_retained_samples",
			Help: "Samples currently held in the rolling history of each disk",
		}),
		window: f.NewGauge(prometheus.GaugeOpts{
			Name: "diskqueue_window_seconds",
			Help: "Lookback window the ratios are computed over",
		}),
		retention: f.NewGauge(prometheus.GaugeOpts{
			Name: "diskqueue_retention_seconds",
			Help: "Longest history kept per disk",
		}),
		samples: f.NewCounter(prometheus.CounterOpts{
			Name: "diskqueue_samples_total",
			Help: "Sampling ticks since startup",
		}),
		live: make(map[series]bool),
	}
	e.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
	e.router.HandleFunc("/health", e.healthHandler).Methods("GET")
	return e
}

// Handler returns the HTTP routes.
func (e *Exporter) Handler() http.Handler {
	return e.router
}

// Update replaces the gauges with the values of rep. Disks without data in
// the window are removed rather than reported as zero.
func (e *Exporter) Update(rep dashboard.Report) {
	window := rep.Interval
	if rep.Capped() {
		window = rep.Available
	}
	e.window.Set(window.Seconds())

	if rep.Ticks > e.lastTicks {
		e.samples.Add(float64(rep.Ticks - e.lastTicks))
		e.lastTicks = rep.Ticks
	}

	live := make(map[series]bool, len(e.live))
	for _, rows := range [][]dashboard.Row{rep.Physical, rep.Virtual} {
		for _, r := range rows {
			if !r.OK {
				continue
			}
			s := series{disk: r.Name, kind: r.Kind.String()}
			live[s] = true
			e.busy.WithLabelValues(s.disk, s.kind).Set(r.Stats.Busy)
			e.backlog.WithLabelValues(s.disk, s.kind).Set(r.Stats.Behind)
			if r.Kind == disks.Physical {
				e.avgQueue.WithLabelValues(s.disk).Set(r.Stats.AvgQueue)
			}
		}
	}
	for s := range e.live {
		if !live[s] {
			e.busy.DeleteLabelValues(s.disk, s.kind)
			e.backlog.DeleteLabelValues(s.disk, s.kind)
			if s.kind == disks.Physical.String() {
				e.avgQueue.DeleteLabelValues(s.disk)
			}
		}
	}
	e.live = live

	e.retained.Set(float64(rep.Retained))
	e.retention.Set(rep.Retention.Seconds())
	e.updated.Store(rep.Now.UnixNano())
}

func (e *Exporter) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}
	if ns := e.updated.Load(); ns != 0 {
		health["last_update"] = time.Unix(0, ns).UTC()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (e *Exporter) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      e.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Metrics server shutdown: %v", err)
		}
	}()

	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("could not listen on %s: %w", addr, err)
	}
	<-done
	return nil
}

// Package metrics exposes run counters over an optional Prometheus
// endpoint. Long archival runs are usually driven by cron or a batch
// scheduler; the endpoint lets those hosts watch repair health without
// scraping logs.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bulwarkecc/bulwark/pkg/eccfile"
)

var log = logging.Logger("bulwark/metrics")

// Metrics holds all Prometheus metrics for a bulwark process
type Metrics struct {
	filesTotal     *prometheus.CounterVec
	tracksTotal    *prometheus.CounterVec
	bytesProtected prometheus.Counter
	corruptEntries prometheus.Counter
	runDuration    *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		filesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulwark_files_total",
				Help: "Number of files processed, by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		tracksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulwark_tracks_total",
				Help: "Number of tracks processed, by status",
			},
			[]string{"status"},
		),
		bytesProtected: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bulwark_bytes_protected_total",
				Help: "Source bytes covered by generated ecc tracks",
			},
		),
		corruptEntries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bulwark_corrupt_entries_total",
				Help: "Ecc entries that could not be parsed",
			},
		),
		runDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bulwark_run_duration_seconds",
				Help:    "Duration of whole runs, by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// ObserveReport records the per-file and per-track outcomes of a repair
// or verify run.
func (m *Metrics) ObserveReport(operation string, report *eccfile.Report) {
	for _, f := range report.Files {
		outcome := "processed"
		if f.Skipped {
			outcome = "skipped"
		}
		m.filesTotal.WithLabelValues(operation, outcome).Inc()
		m.tracksTotal.WithLabelValues("valid").Add(float64(f.Valid))
		m.tracksTotal.WithLabelValues("repaired").Add(float64(f.Repaired))
		m.tracksTotal.WithLabelValues("unrepairable").Add(float64(f.Unrepairable))
	}
	m.corruptEntries.Add(float64(report.CorruptEntries))
}

// ObserveGenerated records one generated entry.
func (m *Metrics) ObserveGenerated(bytes int64) {
	m.filesTotal.WithLabelValues("generate", "processed").Inc()
	m.bytesProtected.Add(float64(bytes))
}

// ObserveRun records a whole run's duration.
func (m *Metrics) ObserveRun(operation string, d time.Duration) {
	m.runDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// Serve exposes /metrics on addr in a background goroutine.
func Serve(addr string) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Infow("metrics endpoint listening", "addr", addr)
		if err := http.ListenAndServe(addr, r); err != nil {
			log.Errorw("metrics endpoint stopped", "err", err)
		}
	}()
}

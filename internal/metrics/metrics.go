// Package metrics exposes Prometheus collectors for the sync run and an
// optional debug listener. A normal cron-style run never serves them;
// the run totals land in the logs either way.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	listingPagesTotal  *prometheus.CounterVec
	recordsTotal       prometheus.Counter
	syncOutcomesTotal  *prometheus.CounterVec
	remoteRetriesTotal *prometheus.CounterVec

	once sync.Once
)

// Sync outcome labels.
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped_ambiguous"
	OutcomeRetired = "retired"
)

// Init registers the collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		listingPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scholarsync_listing_pages_total",
				Help: "Listing pages processed, labeled by fetch mode.",
			},
			[]string{"mode"},
		)
		recordsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scholarsync_records_total",
				Help: "Records extracted across the run.",
			},
		)
		syncOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scholarsync_sync_outcomes_total",
				Help: "Per-record reconciliation outcomes.",
			},
			[]string{"outcome"},
		)
		remoteRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scholarsync_remote_retries_total",
				Help: "Mirror API retries, labeled by status code.",
			},
			[]string{"status"},
		)
	})
}

// ObserveListingPage counts one processed listing page.
func ObserveListingPage(mode string) {
	if listingPagesTotal != nil {
		listingPagesTotal.WithLabelValues(mode).Inc()
	}
}

// ObserveRecords counts extracted records.
func ObserveRecords(n int) {
	if recordsTotal != nil && n > 0 {
		recordsTotal.Add(float64(n))
	}
}

// ObserveSyncOutcome counts one per-record reconciliation outcome.
func ObserveSyncOutcome(outcome string) {
	if syncOutcomesTotal != nil {
		syncOutcomesTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveRemoteRetry counts one mirror API retry.
func ObserveRemoteRetry(status int) {
	if remoteRetriesTotal != nil {
		remoteRetriesTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts the debug listener in the background. Errors are logged,
// not fatal; the listener is best-effort tooling.
func Serve(addr string, logger *zap.Logger) {
	r := chi.NewRouter()
	r.Handle("/metrics", Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listener started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics listener stopped", zap.Error(err))
		}
	}()
}

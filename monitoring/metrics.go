package monitoring

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"ticket-pass/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scanOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_scans_total",
			Help: "Validation attempts by outcome",
		},
		[]string{"outcome"},
	)

	scanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticket_scan_duration_seconds",
			Help:    "Time to validate a scanned QR code",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"outcome"},
	)

	oracleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ownership_oracle_duration_seconds",
			Help:    "Duration of on-chain ownership lookups",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"result"},
	)

	qrIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_qr_issued_total",
			Help: "QR issuance requests by result",
		},
		[]string{"result"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

// Monitor records scan, issuance and oracle measurements.
type Monitor struct{}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) ObserveScan(outcome string, elapsed time.Duration) {
	scanOutcomes.WithLabelValues(outcome).Inc()
	scanDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Monitor) ObserveOracle(result string, elapsed time.Duration) {
	oracleDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

func (m *Monitor) ObserveIssue(result string) {
	qrIssued.WithLabelValues(result).Inc()
}

// TrackBreaker is a utils.Settings.OnStateChange callback.
func (m *Monitor) TrackBreaker(name string, from, to utils.State) {
	breakerState.WithLabelValues(name).Set(float64(to))
	log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
}

// StartMetricsServer serves /metrics on port until ctx is done.
func StartMetricsServer(ctx context.Context, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Printf("Metrics server listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Metrics server error: %v", err)
		}
	}()
}

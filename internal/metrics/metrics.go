package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "offboarding"

var (
	// Executor metrics

	StepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "step_duration_seconds",
		Help:      "Duration of a single offboarding step, adapter call included.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"step"})

	StepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "steps_total",
		Help:      "Total steps attempted, by step and result.",
	}, []string{"step", "status"})

	ExecutionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "executions_in_flight",
		Help:      "Number of claimed scheduled actions currently executing.",
	})

	ExecutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "executions_total",
		Help:      "Total finished executions, by terminal status.",
	}, []string{"status"})

	ExecutionLag = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "execution_lag_seconds",
		Help:      "Time from the scheduled instant to the claim. Negative runs (manual, early) are not observed.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 900, 3600},
	})

	// Due-check metrics

	DispatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "due_dispatched_total",
		Help:      "Due records handed to the execute path, by outcome.",
	}, []string{"outcome"})

	// Reaper metrics

	ReaperFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reaper_failed_total",
		Help:      "Executions stuck in executing that the reaper marked failed.",
	})

	ReaperCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reaper_cycle_duration_seconds",
		Help:      "Time taken for one reaper cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 30, 120},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		StepDuration,
		StepsTotal,
		ExecutionsInFlight,
		ExecutionsTotal,
		ExecutionLag,
		DispatchedTotal,
		ReaperFailedTotal,
		ReaperCycleDuration,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer serves /metrics plus the liveness and readiness probes. A nil
// checker leaves the probes out.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	if checker != nil {
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			writeHealth(w, checker.Liveness(r.Context()))
		})
		mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
			writeHealth(w, checker.Readiness(r.Context()))
		})
	}
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, result health.HealthResult) {
	status := http.StatusOK
	if result.Status != "up" {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result)
}

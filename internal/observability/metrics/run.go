package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carebridge/screening-engine/internal/core/domain"
)

// RunMetrics exposes bulk determination run outcomes to Prometheus.
type RunMetrics struct {
	registry *prometheus.Registry

	runsTotal         *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	patientsTotal     *prometheus.CounterVec
	runsInFlight      prometheus.Gauge
	breakerTrips      *prometheus.CounterVec
	screeningsUpdated *prometheus.CounterVec
	documentsLinked   *prometheus.CounterVec
}

func NewRunMetrics(service string) *RunMetrics {
	registry := prometheus.NewRegistry()

	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "screening",
			Subsystem: "bulk",
			Name:      "runs_total",
			Help:      "Total bulk determination runs by trigger and status.",
		},
		[]string{"service", "trigger", "status"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "screening",
			Subsystem: "bulk",
			Name:      "run_duration_seconds",
			Help:      "Bulk run duration in seconds by trigger.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"service", "trigger"},
	)
	patientsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "screening",
			Subsystem: "bulk",
			Name:      "patients_total",
			Help:      "Patients handled across bulk runs by outcome.",
		},
		[]string{"service", "outcome"},
	)
	runsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "screening",
			Subsystem: "bulk",
			Name:      "runs_in_flight",
			Help:      "Number of bulk runs currently executing.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	breakerTrips := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "screening",
			Subsystem: "bulk",
			Name:      "circuit_trips_total",
			Help:      "Total per-patient circuit breaker openings.",
		},
		[]string{"service"},
	)
	screeningsUpdated := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "screening",
			Subsystem: "bulk",
			Name:      "screenings_updated_total",
			Help:      "Total screening results written by bulk runs.",
		},
		[]string{"service"},
	)
	documentsLinked := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "screening",
			Subsystem: "bulk",
			Name:      "documents_linked_total",
			Help:      "Total document links written by bulk runs.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		runsTotal,
		runDuration,
		patientsTotal,
		runsInFlight,
		breakerTrips,
		screeningsUpdated,
		documentsLinked,
	)

	return &RunMetrics{
		registry:          registry,
		runsTotal:         runsTotal,
		runDuration:       runDuration,
		patientsTotal:     patientsTotal,
		runsInFlight:      runsInFlight,
		breakerTrips:      breakerTrips,
		screeningsUpdated: screeningsUpdated,
		documentsLinked:   documentsLinked,
	}
}

func (m *RunMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *RunMetrics) StartRun() {
	m.runsInFlight.Inc()
}

// FinishRun records one completed (or failed) bulk run summary.
func (m *RunMetrics) FinishRun(service string, summary *domain.RunMetrics, duration time.Duration, err error) {
	m.runsInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	trigger := "unknown"
	if summary != nil && summary.Trigger != "" {
		trigger = summary.Trigger
	}

	m.runsTotal.WithLabelValues(service, trigger, status).Inc()
	m.runDuration.WithLabelValues(service, trigger).Observe(duration.Seconds())

	if summary == nil {
		return
	}
	m.patientsTotal.WithLabelValues(service, "processed").Add(float64(summary.Processed))
	m.patientsTotal.WithLabelValues(service, "failed").Add(float64(summary.Failed))
	m.patientsTotal.WithLabelValues(service, "skipped").Add(float64(summary.Skipped))
	m.breakerTrips.WithLabelValues(service).Add(float64(summary.CircuitTrips))
	m.screeningsUpdated.WithLabelValues(service).Add(float64(summary.ScreeningsUpdated))
	m.documentsLinked.WithLabelValues(service).Add(float64(summary.DocumentsLinked))
}

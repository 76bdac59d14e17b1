package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "spinwheel"
)

var (
	// IterationsTotal counts hub update steps executed.
	IterationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Total number of hub iterations executed",
		},
	)

	// IterateVersion tracks the most recently published iterate version.
	IterateVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "iterate_version",
			Help:      "Most recently published iterate version",
		},
	)

	// BestBound tracks the group-wide best bound per direction.
	BestBound = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_bound",
			Help:      "Group-wide best bound value",
		},
		[]string{"direction"}, // inner/outer
	)

	// BoundGap tracks the distance between best inner and outer bounds.
	BoundGap = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bound_gap",
			Help:      "Gap between best inner and outer bounds",
		},
		[]string{"kind"}, // abs/rel
	)

	// ReportsTotal counts bound reports folded by the hub.
	ReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Total number of bound reports folded by the hub",
		},
		[]string{"direction", "result"}, // result: improved/kept
	)

	// EvaluationsTotal counts candidate evaluations on spokes.
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Total number of candidate evaluations",
		},
		[]string{"status"}, // feasible/infeasible
	)

	// SpokesJoined tracks the number of spokes registered with the hub.
	SpokesJoined = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spokes_joined",
			Help:      "Number of spokes registered with the hub",
		},
	)

	// ExchangesTotal counts group wire exchanges served by the hub.
	ExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Total number of group exchanges served",
		},
		[]string{"type", "status"}, // type: join/fetch/report/abort, status: ok/error
	)

	// MemoryUsage tracks process memory usage.
	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_bytes",
			Help:      "Memory usage in bytes",
		},
		[]string{"type"},
	)

	// Uptime tracks process uptime.
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
	)

	// Info exposes build info.
	Info = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Spinwheel process info",
		},
		[]string{"version", "go_version", "os", "arch"},
	)
)

// InitInfo initializes the info metric.
func InitInfo(version, goVersion, os, arch string) {
	Info.WithLabelValues(version, goVersion, os, arch).Set(1)
}

// RecordReport records one folded bound report.
func RecordReport(direction string, improved bool) {
	result := "kept"
	if improved {
		result = "improved"
	}
	ReportsTotal.WithLabelValues(direction, result).Inc()
}

// RecordEvaluation records one candidate evaluation.
func RecordEvaluation(status string) {
	EvaluationsTotal.WithLabelValues(status).Inc()
}

// RecordExchange records one served group exchange.
func RecordExchange(msgType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ExchangesTotal.WithLabelValues(msgType, status).Inc()
}

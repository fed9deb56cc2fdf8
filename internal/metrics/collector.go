package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the Prometheus instruments exposed by the service
type Collector struct {
	ValidationsTotal   *prometheus.CounterVec
	ValidationErrors   *prometheus.CounterVec
	ValidationDuration *prometheus.HistogramVec
	QualityScore       prometheus.Gauge
	QualityMetricValue *prometheus.GaugeVec
	AlertsTotal        *prometheus.CounterVec
	AnomaliesTotal     *prometheus.CounterVec
	MonitoringCycles   prometheus.Counter
	ActiveAlerts       prometheus.Gauge
}

// NewCollector registers and returns the service's Prometheus instruments
func NewCollector() *Collector {
	return &Collector{
		ValidationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quality_engine",
			Subsystem: "validation",
			Name:      "runs_total",
			Help:      "Total validation runs by scope and outcome",
		}, []string{"scope", "outcome"}),

		ValidationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quality_engine",
			Subsystem: "validation",
			Name:      "errors_total",
			Help:      "Total validation errors by scope",
		}, []string{"scope"}),

		ValidationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quality_engine",
			Subsystem: "validation",
			Name:      "duration_seconds",
			Help:      "Validation run duration by scope",
			Buckets:   prometheus.DefBuckets,
		}, []string{"scope"}),

		QualityScore: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "quality_engine",
			Subsystem: "report",
			Name:      "overall_score",
			Help:      "Overall quality score of the most recent report",
		}),

		QualityMetricValue: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "quality_engine",
			Subsystem: "report",
			Name:      "metric_value",
			Help:      "Latest value per quality metric",
		}, []string{"metric"}),

		AlertsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quality_engine",
			Subsystem: "monitoring",
			Name:      "alerts_total",
			Help:      "Total alerts raised by severity",
		}, []string{"severity"}),

		AnomaliesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quality_engine",
			Subsystem: "monitoring",
			Name:      "anomalies_total",
			Help:      "Total statistical anomalies detected by metric",
		}, []string{"metric"}),

		MonitoringCycles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "quality_engine",
			Subsystem: "monitoring",
			Name:      "cycles_total",
			Help:      "Total continuous monitoring cycles completed",
		}),

		ActiveAlerts: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "quality_engine",
			Subsystem: "monitoring",
			Name:      "active_alerts",
			Help:      "Number of currently unresolved alerts",
		}),
	}
}

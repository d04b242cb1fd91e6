package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"contractaudit/internal/errors"
	"contractaudit/pkg/models"
)

// 运行结果标签
const (
	ResultClean         = "clean"
	ResultDiscrepancies = "discrepancies"
	ResultInvalid       = "invalid"
	ResultError         = "error"
)

// Metrics 对账服务指标
type Metrics struct {
	runsTotal       *prometheus.CounterVec
	discrepancies   *prometheus.GaugeVec
	lastRunUnix     prometheus.Gauge
	runDuration     prometheus.Histogram
	skippedMessages prometheus.Gauge
	handledErrors   *prometheus.CounterVec
}

// NewMetrics 在registry上注册指标
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contractaudit",
			Name:      "runs_total",
			Help:      "Reconciliation runs by result",
		}, []string{"result"}),
		discrepancies: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "contractaudit",
			Name:      "discrepancies",
			Help:      "Discrepancies found by the last completed run, by category",
		}, []string{"category"}),
		lastRunUnix: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "contractaudit",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed run",
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "contractaudit",
			Name:      "run_duration_seconds",
			Help:      "Wall time of reconciliation runs",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		skippedMessages: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "contractaudit",
			Name:      "skipped_messages",
			Help:      "Store code messages skipped by the last completed run",
		}),
		handledErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contractaudit",
			Name:      "handled_errors_total",
			Help:      "Non-fatal errors passed to the error handler, by type",
		}, []string{"type"}),
	}
}

// ObserveReport 记录一次完成的对账
func (m *Metrics) ObserveReport(report *models.DiscrepancyReport, seconds float64) {
	result := ResultClean
	if !report.Clean() {
		result = ResultDiscrepancies
	}
	m.runsTotal.WithLabelValues(result).Inc()
	for category, n := range report.CategoryCounts() {
		m.discrepancies.WithLabelValues(category).Set(float64(n))
	}
	m.skippedMessages.Set(float64(report.Scan.SkippedMessages))
	m.lastRunUnix.Set(float64(report.GeneratedAt.Unix()))
	m.runDuration.Observe(seconds)
}

// ObserveFailure 记录失败的对账
func (m *Metrics) ObserveFailure(result string, seconds float64) {
	m.runsTotal.WithLabelValues(result).Inc()
	m.runDuration.Observe(seconds)
}

// ObserveError 作为错误处理器的回调
func (m *Metrics) ObserveError(err *errors.AuditError) {
	m.handledErrors.WithLabelValues(err.Type.String()).Inc()
}

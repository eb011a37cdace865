// Package metrics exposes Prometheus collectors for the service and the
// HTTP layer. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "datagrid"

// Metrics implements core.Recorder.
type Metrics struct {
	validations        *prometheus.CounterVec
	validationDuration *prometheus.HistogramVec
	accessDecisions    *prometheus.CounterVec
	imports            *prometheus.CounterVec
	importRows         *prometheus.CounterVec
	importDuration     *prometheus.HistogramVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

var _ core.Recorder = (*Metrics)(nil)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validations_total",
				Help:      "Validation runs by kind and outcome",
			},
			[]string{"kind", "result"},
		),
		validationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "validation_duration_seconds",
				Help:      "Duration of validation runs",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"kind"},
		),
		accessDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_decisions_total",
				Help:      "Authorization decisions by operation and outcome",
			},
			[]string{"operation", "result"},
		),
		imports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "imports_total",
				Help:      "Spreadsheet imports by format and outcome",
			},
			[]string{"format", "result"},
		),
		importRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "import_rows_total",
				Help:      "Rows read from imported files",
			},
			[]string{"format"},
		),
		importDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "import_duration_seconds",
				Help:      "Duration of spreadsheet imports",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"format"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route pattern, method and status",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route pattern",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}

	reg.MustRegister(
		m.validations, m.validationDuration, m.accessDecisions,
		m.imports, m.importRows, m.importDuration,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// RegisterImportLimiter exposes the limiter's occupancy as gauges.
func RegisterImportLimiter(reg prometheus.Registerer, l *core.ImportLimiter) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "imports_active",
			Help:      "Imports currently holding a slot",
		}, func() float64 { return float64(l.Active()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "imports_capacity",
			Help:      "Maximum concurrent imports",
		}, func() float64 { return float64(l.Capacity()) }),
	)
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func (m *Metrics) ObserveValidation(kind string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(kind, result(ok)).Inc()
	m.validationDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) ObserveAccess(op core.Operation, allowed bool) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.accessDecisions.WithLabelValues(string(op), outcome).Inc()
}

func (m *Metrics) ObserveImport(format string, rows int, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.imports.WithLabelValues(format, result(ok)).Inc()
	m.importRows.WithLabelValues(format).Add(float64(rows))
	m.importDuration.WithLabelValues(format).Observe(d.Seconds())
}

// ObserveRequest records one HTTP request. route is the chi route pattern,
// never the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

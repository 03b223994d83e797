// Package metrics exposes Prometheus counters for bed allocation and
// billing activity plus an HTTP latency histogram.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "inpatient"

// Metrics groups every collector the service records. All methods are safe
// on a nil receiver so services can run without metrics in tests.
type Metrics struct {
	reg prometheus.Gatherer

	admissions     prometheus.Counter
	transfers      prometheus.Counter
	discharges     prometheus.Counter
	bedContention  *prometheus.CounterVec
	bedStatus      *prometheus.CounterVec
	invoices       *prometheus.CounterVec
	payments       *prometheus.CounterVec
	paymentAmount  *prometheus.CounterVec
	requestSeconds *prometheus.HistogramVec
}

// New registers the collectors with reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		admissions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "admissions_total",
			Help: "Patients admitted to a bed.",
		}),
		transfers: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "transfers_total",
			Help: "Admissions moved to another bed.",
		}),
		discharges: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "discharges_total",
			Help: "Admissions discharged.",
		}),
		bedContention: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bed_unavailable_total",
			Help: "Bed claims rejected because the bed was not available.",
		}, []string{"operation"}),
		bedStatus: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bed_status_changes_total",
			Help: "Manual bed status changes by target status.",
		}, []string{"status"}),
		invoices: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "invoices_total",
			Help: "Invoice lifecycle events.",
		}, []string{"event"}),
		payments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payments_total",
			Help: "Payments recorded by method.",
		}, []string{"method"}),
		paymentAmount: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payment_amount_total",
			Help: "Sum of recorded payment amounts by method.",
		}, []string{"method"}),
		requestSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) Admitted() {
	if m != nil {
		m.admissions.Inc()
	}
}

func (m *Metrics) Transferred() {
	if m != nil {
		m.transfers.Inc()
	}
}

func (m *Metrics) Discharged() {
	if m != nil {
		m.discharges.Inc()
	}
}

// BedUnavailable counts a lost compare-and-set on a bed.
func (m *Metrics) BedUnavailable(operation string) {
	if m != nil {
		m.bedContention.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) BedStatusChanged(status string) {
	if m != nil {
		m.bedStatus.WithLabelValues(status).Inc()
	}
}

// InvoiceEvent counts created, issued and cancelled invoices.
func (m *Metrics) InvoiceEvent(event string) {
	if m != nil {
		m.invoices.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) PaymentRecorded(method string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(method).Inc()
	m.paymentAmount.WithLabelValues(method).Add(amount.InexactFloat64())
}

// Middleware observes request latency labelled by route template rather than
// raw path so ids do not explode label cardinality.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.requestSeconds.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
}

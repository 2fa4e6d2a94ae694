package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StorefrontMetrics records cart migration and payment polling activity.
// The zero value is a no-op so tests and tools can skip registration.
type StorefrontMetrics struct {
	syncDuration  *prometheus.HistogramVec
	syncSuccess   prometheus.Counter
	syncFailure   prometheus.Counter
	invoiceCreate prometheus.Counter
	invoiceCheck  *prometheus.CounterVec
}

// NewStorefrontMetrics registers the storefront metrics on the provided
// registerer.
func NewStorefrontMetrics(reg prometheus.Registerer) *StorefrontMetrics {
	if reg == nil {
		return &StorefrontMetrics{}
	}
	syncDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_sync_duration_seconds",
		Help:    "Duration of guest cart migrations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	syncSuccess := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_sync_success",
		Help: "Guest cart migrations that completed.",
	})
	syncFailure := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_sync_failure",
		Help: "Guest cart migrations that rolled back.",
	})
	invoiceCreate := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_invoice_created",
		Help: "Payment invoices opened with the gateway.",
	})
	invoiceCheck := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_invoice_checks",
		Help: "Invoice settlement checks by result.",
	}, []string{"result"})
	reg.MustRegister(syncDuration, syncSuccess, syncFailure, invoiceCreate, invoiceCheck)
	return &StorefrontMetrics{
		syncDuration:  syncDuration,
		syncSuccess:   syncSuccess,
		syncFailure:   syncFailure,
		invoiceCreate: invoiceCreate,
		invoiceCheck:  invoiceCheck,
	}
}

// ObserveSync records one migration attempt.
func (m *StorefrontMetrics) ObserveSync(duration time.Duration, err error) {
	if m == nil || m.syncDuration == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.syncDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if err != nil {
		m.syncFailure.Inc()
		return
	}
	m.syncSuccess.Inc()
}

// IncInvoiceCreated counts a gateway invoice being opened.
func (m *StorefrontMetrics) IncInvoiceCreated() {
	if m == nil || m.invoiceCreate == nil {
		return
	}
	m.invoiceCreate.Inc()
}

// IncInvoiceCheck counts one settlement check with its result: paid,
// pending, or error.
func (m *StorefrontMetrics) IncInvoiceCheck(result string) {
	if m == nil || m.invoiceCheck == nil {
		return
	}
	if result == "" {
		result = "unknown"
	}
	m.invoiceCheck.WithLabelValues(result).Inc()
}

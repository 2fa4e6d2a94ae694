package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestStorefrontMetricsExports(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewStorefrontMetrics(reg)

	metrics.ObserveSync(250*time.Millisecond, nil)
	metrics.ObserveSync(100*time.Millisecond, errors.New("boom"))
	metrics.IncInvoiceCreated()
	metrics.IncInvoiceCheck("pending")
	metrics.IncInvoiceCheck("pending")
	metrics.IncInvoiceCheck("paid")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "cart_sync_success", "", ""); err != nil {
		t.Fatalf("fetch sync success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected sync success=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "cart_sync_failure", "", ""); err != nil {
		t.Fatalf("fetch sync failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected sync failure=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "payment_invoice_checks", "result", "pending"); err != nil {
		t.Fatalf("fetch invoice checks: %v", err)
	} else if got != 2 {
		t.Fatalf("expected pending checks=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "payment_invoice_checks", "result", "paid"); err != nil {
		t.Fatalf("fetch invoice checks: %v", err)
	} else if got != 1 {
		t.Fatalf("expected paid checks=1, got %f", got)
	}
}

func TestStorefrontMetricsNilSafe(t *testing.T) {
	var metrics *StorefrontMetrics
	metrics.ObserveSync(time.Second, nil)
	metrics.IncInvoiceCreated()
	metrics.IncInvoiceCheck("paid")

	unregistered := NewStorefrontMetrics(nil)
	unregistered.ObserveSync(time.Second, errors.New("boom"))
	unregistered.IncInvoiceCheck("")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if label == "" || matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}

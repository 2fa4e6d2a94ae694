package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/batjin/foodrush-storefront/pkg/config"
	pkgerrors "github.com/batjin/foodrush-storefront/pkg/errors"
	"github.com/batjin/foodrush-storefront/pkg/events"
	"github.com/batjin/foodrush-storefront/pkg/logger"
	"github.com/batjin/foodrush-storefront/pkg/metrics"
	"github.com/batjin/foodrush-storefront/pkg/qpay"
)

// Status is the lifecycle of one payment attempt.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusCreating        Status = "creating"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusPaid            Status = "paid"
	StatusFailed          Status = "failed"
	StatusCancelled       Status = "cancelled"
	// StatusExpired: polling gave up after the configured maximum wait.
	// The invoice itself stays valid at the gateway; the user can settle
	// it and check manually.
	StatusExpired Status = "expired"
)

// Terminal reports whether no further transitions happen from this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusPaid, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Gateway is the slice of the QPay client the orchestrator uses.
type Gateway interface {
	CreateInvoice(ctx context.Context, orderID string, amount decimal.Decimal) (qpay.Invoice, error)
	CheckInvoice(ctx context.Context, invoiceID string) (bool, error)
}

// OrchestratorParams carries the dependencies for NewOrchestrator.
type OrchestratorParams struct {
	Gateway Gateway
	Bus     *events.Bus
	Logger  *logger.Logger
	Metrics *metrics.StorefrontMetrics
	Config  config.PaymentConfig
}

// Orchestrator opens QPay invoices and polls them to settlement. Per order
// it creates at most one invoice, runs at most one poll goroutine, and goes
// quiet the moment a terminal status is reached.
type Orchestrator struct {
	gateway Gateway
	bus     *events.Bus
	logg    *logger.Logger
	metrics *metrics.StorefrontMetrics
	cfg     config.PaymentConfig

	mu    sync.Mutex
	flows map[string]*flow
}

type flow struct {
	orderID string
	invoice qpay.Invoice
	status  Status
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewOrchestrator(params OrchestratorParams) (*Orchestrator, error) {
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway is required")
	}
	if params.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if params.Config.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}
	if params.Config.MaxWait < params.Config.PollInterval {
		return nil, fmt.Errorf("max wait must be at least the poll interval")
	}
	return &Orchestrator{
		gateway: params.Gateway,
		bus:     params.Bus,
		logg:    params.Logger,
		metrics: params.Metrics,
		cfg:     params.Config,
		flows:   make(map[string]*flow),
	}, nil
}

// StartPayment opens an invoice for the order and starts polling it. The
// guard is structural: the flow entry is claimed before the gateway call,
// so a second StartPayment for the same order, however racy, never issues
// a second create. It returns the existing invoice instead.
func (o *Orchestrator) StartPayment(ctx context.Context, orderID string, amount decimal.Decimal) (qpay.Invoice, error) {
	if orderID == "" {
		return qpay.Invoice{}, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	o.mu.Lock()
	if existing, ok := o.flows[orderID]; ok {
		invoice, status := existing.invoice, existing.status
		o.mu.Unlock()
		if status == StatusCreating {
			return qpay.Invoice{}, pkgerrors.New(pkgerrors.CodeConflict, "invoice creation already in progress")
		}
		if invoice.InvoiceID == "" {
			return qpay.Invoice{}, pkgerrors.New(pkgerrors.CodeStateConflict, "payment already attempted for this order")
		}
		return invoice, nil
	}
	f := &flow{orderID: orderID, status: StatusCreating, done: make(chan struct{})}
	o.flows[orderID] = f
	o.mu.Unlock()

	ctx = o.logg.WithOrderID(ctx, orderID)
	invoice, err := o.gateway.CreateInvoice(ctx, orderID, amount)
	if err != nil {
		o.mu.Lock()
		f.status = StatusFailed
		o.mu.Unlock()
		close(f.done)
		o.logg.Error(ctx, "creating payment invoice", err)
		return qpay.Invoice{}, err
	}
	o.metrics.IncInvoiceCreated()

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.mu.Lock()
	f.invoice = invoice
	f.status = StatusAwaitingPayment
	f.cancel = cancel
	o.mu.Unlock()

	o.logg.Info(o.logg.WithInvoiceID(ctx, invoice.InvoiceID), "invoice created, polling for settlement")
	go o.poll(pollCtx, f)
	return invoice, nil
}

// Status returns the payment status for the order, StatusIdle when no
// payment was started.
func (o *Orchestrator) Status(orderID string) Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	if f, ok := o.flows[orderID]; ok {
		return f.status
	}
	return StatusIdle
}

// Invoice returns the invoice opened for the order, if one exists.
func (o *Orchestrator) Invoice(orderID string) (qpay.Invoice, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, ok := o.flows[orderID]
	if !ok || f.invoice.InvoiceID == "" {
		return qpay.Invoice{}, false
	}
	return f.invoice, true
}

// Done closes when the poll goroutine for the order has fully stopped.
func (o *Orchestrator) Done(orderID string) <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if f, ok := o.flows[orderID]; ok {
		return f.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Cancel stops polling for the order. Terminal flows are left as they are.
func (o *Orchestrator) Cancel(orderID string) {
	o.mu.Lock()
	f, ok := o.flows[orderID]
	if !ok || f.status.Terminal() {
		o.mu.Unlock()
		return
	}
	f.status = StatusCancelled
	cancel := f.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Stop cancels every live flow. Called on daemon shutdown.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	flows := make([]*flow, 0, len(o.flows))
	for _, f := range o.flows {
		flows = append(flows, f)
	}
	o.mu.Unlock()

	for _, f := range flows {
		o.Cancel(f.orderID)
	}
}

func (o *Orchestrator) poll(ctx context.Context, f *flow) {
	defer close(f.done)

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(o.cfg.MaxWait)
	defer deadline.Stop()

	// First check fires immediately; a user staring at a QR code should
	// not wait a full interval for a payment that already went through.
	if o.check(ctx, f) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			o.expire(ctx, f)
			return
		case <-ticker.C:
			if o.check(ctx, f) {
				return
			}
		}
	}
}

// check runs one settlement check. Returns true when polling should stop.
func (o *Orchestrator) check(ctx context.Context, f *flow) bool {
	paid, err := o.gateway.CheckInvoice(ctx, f.invoice.InvoiceID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		// A missed heartbeat is not worth alarming anyone over; the next
		// tick retries.
		o.metrics.IncInvoiceCheck("error")
		o.logg.Debug(o.logg.WithInvoiceID(ctx, f.invoice.InvoiceID), "invoice check failed, retrying next tick")
		return false
	}
	if !paid {
		o.metrics.IncInvoiceCheck("pending")
		return false
	}
	o.metrics.IncInvoiceCheck("paid")

	o.mu.Lock()
	if f.status != StatusAwaitingPayment {
		o.mu.Unlock()
		return true
	}
	f.status = StatusPaid
	o.mu.Unlock()

	o.logg.Info(o.logg.WithOrderID(ctx, f.orderID), "invoice settled")
	o.bus.Publish(events.OrderPaid{OrderID: f.orderID})
	return true
}

func (o *Orchestrator) expire(ctx context.Context, f *flow) {
	o.mu.Lock()
	if f.status != StatusAwaitingPayment {
		o.mu.Unlock()
		return
	}
	f.status = StatusExpired
	o.mu.Unlock()

	o.logg.Warn(o.logg.WithOrderID(ctx, f.orderID), "gave up polling invoice before settlement")
	o.bus.Publish(events.Notice{
		Level:   events.NoticeInfo,
		Message: "Still waiting for your payment. If you already paid, check your banking app and refresh the order.",
	})
}

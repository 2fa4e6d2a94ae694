package checkout

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/batjin/foodrush-storefront/internal/cart"
	"github.com/batjin/foodrush-storefront/pkg/backend"
	"github.com/batjin/foodrush-storefront/pkg/config"
	pkgerrors "github.com/batjin/foodrush-storefront/pkg/errors"
	"github.com/batjin/foodrush-storefront/pkg/events"
	"github.com/batjin/foodrush-storefront/pkg/logger"
	"github.com/batjin/foodrush-storefront/pkg/qpay"
)

// Payment methods accepted at checkout.
const (
	MethodQPay = "qpay"
	MethodCOD  = "cod"
)

// Orders is the slice of the backend client checkout uses.
type Orders interface {
	CreateOrder(ctx context.Context, req backend.CreateOrderRequest) (backend.Order, error)
	Order(ctx context.Context, orderID string) (backend.Order, error)
}

// CartSource is the view checkout reads from and clears after a placed
// order.
type CartSource interface {
	Items() []cart.Line
	Clear(ctx context.Context) error
}

// Payments opens and polls gateway invoices.
type Payments interface {
	StartPayment(ctx context.Context, orderID string, amount decimal.Decimal) (qpay.Invoice, error)
}

// Session supplies the signed-in user id.
type Session interface {
	UserID() string
}

// Slots persists the last-order-id resume key.
type Slots interface {
	LastOrderID(ctx context.Context) (string, bool, error)
	SetLastOrderID(ctx context.Context, orderID string) error
	ClearLastOrderID(ctx context.Context) error
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Orders   Orders
	Cart     CartSource
	Payments Payments
	Session  Session
	Slots    Slots
	Bus      *events.Bus
	Logger   *logger.Logger
	Config   config.CheckoutConfig
}

// Service turns the cart into an order and hands QPay orders to the payment
// orchestrator. The last placed order id is persisted so a restart while a
// payment is pending picks the flow back up.
type Service struct {
	orders   Orders
	cart     CartSource
	payments Payments
	session  Session
	slots    Slots
	bus      *events.Bus
	logg     *logger.Logger
	fee      decimal.Decimal
}

// Result is a placed order plus, for gateway payments, the invoice to show.
type Result struct {
	Order   backend.Order
	Invoice *qpay.Invoice
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders client is required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart source is required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments orchestrator is required")
	}
	if params.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if params.Slots == nil {
		return nil, fmt.Errorf("slot store is required")
	}
	if params.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if params.Config.DeliveryFee.IsNegative() {
		return nil, fmt.Errorf("delivery fee cannot be negative")
	}
	return &Service{
		orders:   params.Orders,
		cart:     params.Cart,
		payments: params.Payments,
		session:  params.Session,
		slots:    params.Slots,
		bus:      params.Bus,
		logg:     params.Logger,
		fee:      params.Config.DeliveryFee,
	}, nil
}

// Checkout validates the cart, places the order, and for QPay starts the
// payment flow. Validation happens before any network call; a bad cart
// never reaches the backend.
func (s *Service) Checkout(ctx context.Context, method string) (Result, error) {
	if method != MethodQPay && method != MethodCOD {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment method %q", method))
	}

	userID := s.session.UserID()
	if userID == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "checkout requires a signed-in user")
	}

	lines := s.cart.Items()
	if len(lines) == 0 {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	for _, line := range lines {
		if line.FoodID == "" {
			return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "cart line has no resolvable food id")
		}
	}
	subtotal := cart.Total(lines)
	if subtotal.LessThanOrEqual(decimal.Zero) {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "cart total must be positive")
	}
	total := subtotal.Add(s.fee)

	ctx = s.logg.WithUserID(ctx, userID)
	order, err := s.orders.CreateOrder(ctx, backend.CreateOrderRequest{
		UserID:        userID,
		Items:         cart.ToItems(lines),
		TotalPrice:    total,
		DeliveryFee:   s.fee,
		PaymentMethod: method,
	})
	if err != nil {
		return Result{}, fmt.Errorf("creating order: %w", err)
	}
	ctx = s.logg.WithOrderID(ctx, order.ID)
	s.logg.Info(ctx, "order placed")

	if err := s.slots.SetLastOrderID(ctx, order.ID); err != nil {
		// The order exists either way; losing the resume key only costs
		// the restart recovery.
		s.logg.Error(ctx, "recording last order id", err)
	}
	if err := s.cart.Clear(ctx); err != nil {
		s.logg.Error(ctx, "clearing cart after checkout", err)
	}

	if method == MethodCOD {
		if err := s.slots.ClearLastOrderID(ctx); err != nil {
			s.logg.Error(ctx, "clearing last order id", err)
		}
		return Result{Order: order}, nil
	}

	invoice, err := s.payments.StartPayment(ctx, order.ID, total)
	if err != nil {
		// The order stands; the user can retry payment from the order
		// view or the resume path.
		return Result{Order: order}, fmt.Errorf("starting payment: %w", err)
	}
	return Result{Order: order, Invoice: &invoice}, nil
}

// Resume picks up a payment-pending order after a restart. Orders that left
// the awaiting-payment states just have their resume key cleared.
func (s *Service) Resume(ctx context.Context) (*Result, error) {
	orderID, ok, err := s.slots.LastOrderID(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	ctx = s.logg.WithOrderID(ctx, orderID)
	order, err := s.orders.Order(ctx, orderID)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			s.logg.Warn(ctx, "resume order no longer exists, dropping resume key")
			if clearErr := s.slots.ClearLastOrderID(ctx); clearErr != nil {
				s.logg.Error(ctx, "clearing last order id", clearErr)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("fetching resume order: %w", err)
	}

	if !order.Status.AwaitsPayment() {
		if err := s.slots.ClearLastOrderID(ctx); err != nil {
			s.logg.Error(ctx, "clearing last order id", err)
		}
		return &Result{Order: order}, nil
	}

	s.logg.Info(ctx, "resuming payment for pending order")
	invoice, err := s.payments.StartPayment(ctx, order.ID, order.TotalPrice)
	if err != nil {
		return &Result{Order: order}, fmt.Errorf("resuming payment: %w", err)
	}
	return &Result{Order: order, Invoice: &invoice}, nil
}

// Start refetches an order exactly once per settlement event and drops its
// resume key.
func (s *Service) Start(ctx context.Context) *events.Subscription {
	return s.bus.Subscribe(func(event events.Event) {
		paid, ok := event.(events.OrderPaid)
		if !ok {
			return
		}
		s.onPaid(ctx, paid.OrderID)
	})
}

func (s *Service) onPaid(ctx context.Context, orderID string) {
	ctx = s.logg.WithOrderID(ctx, orderID)

	order, err := s.orders.Order(ctx, orderID)
	if err != nil {
		s.logg.Error(ctx, "refetching settled order", err)
	} else {
		s.logg.Info(s.logg.WithField(ctx, "status", order.Status.String()), "order settled")
	}

	lastID, ok, err := s.slots.LastOrderID(ctx)
	if err == nil && ok && lastID == orderID {
		if err := s.slots.ClearLastOrderID(ctx); err != nil {
			s.logg.Error(ctx, "clearing last order id", err)
		}
	}

	s.bus.Publish(events.Notice{
		Level:   events.NoticeInfo,
		Message: "Payment received. Your order is on its way.",
	})
}

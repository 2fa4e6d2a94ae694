package checkout

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batjin/foodrush-storefront/internal/cart"
	"github.com/batjin/foodrush-storefront/pkg/backend"
	"github.com/batjin/foodrush-storefront/pkg/config"
	"github.com/batjin/foodrush-storefront/pkg/enums"
	pkgerrors "github.com/batjin/foodrush-storefront/pkg/errors"
	"github.com/batjin/foodrush-storefront/pkg/events"
	"github.com/batjin/foodrush-storefront/pkg/logger"
	"github.com/batjin/foodrush-storefront/pkg/qpay"
	"github.com/batjin/foodrush-storefront/pkg/types"
)

type stubOrders struct {
	mu          sync.Mutex
	createCalls int
	fetchCalls  int
	lastCreate  backend.CreateOrderRequest

	createFn func(ctx context.Context, req backend.CreateOrderRequest) (backend.Order, error)
	orderFn  func(ctx context.Context, orderID string) (backend.Order, error)
}

func (s *stubOrders) CreateOrder(ctx context.Context, req backend.CreateOrderRequest) (backend.Order, error) {
	s.mu.Lock()
	s.createCalls++
	s.lastCreate = req
	s.mu.Unlock()
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	return backend.Order{
		ID:          "ord-1",
		UserID:      req.UserID,
		Status:      enums.OrderStatusWaitingPayment,
		Items:       req.Items,
		TotalPrice:  req.TotalPrice,
		DeliveryFee: req.DeliveryFee,
	}, nil
}

func (s *stubOrders) Order(ctx context.Context, orderID string) (backend.Order, error) {
	s.mu.Lock()
	s.fetchCalls++
	s.mu.Unlock()
	if s.orderFn != nil {
		return s.orderFn(ctx, orderID)
	}
	return backend.Order{ID: orderID, Status: enums.OrderStatusPaid}, nil
}

type stubCart struct {
	mu         sync.Mutex
	items      []cart.Line
	clearCalls int
}

func (s *stubCart) Items() []cart.Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cart.Line(nil), s.items...)
}

func (s *stubCart) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearCalls++
	s.items = nil
	return nil
}

type stubPayments struct {
	mu     sync.Mutex
	starts []string
	fn     func(ctx context.Context, orderID string, amount decimal.Decimal) (qpay.Invoice, error)
}

func (s *stubPayments) StartPayment(ctx context.Context, orderID string, amount decimal.Decimal) (qpay.Invoice, error) {
	s.mu.Lock()
	s.starts = append(s.starts, orderID)
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(ctx, orderID, amount)
	}
	return qpay.Invoice{InvoiceID: "inv-" + orderID, QRText: "qr"}, nil
}

type stubSession struct{ userID string }

func (s *stubSession) UserID() string { return s.userID }

type memorySlots struct {
	mu      sync.Mutex
	orderID string
	set     bool
}

func (s *memorySlots) LastOrderID(context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderID, s.set, nil
}

func (s *memorySlots) SetLastOrderID(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderID = orderID
	s.set = true
	return nil
}

func (s *memorySlots) ClearLastOrderID(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderID = ""
	s.set = false
	return nil
}

type fixture struct {
	service  *Service
	orders   *stubOrders
	cart     *stubCart
	payments *stubPayments
	slots    *memorySlots
	bus      *events.Bus
}

func testLine(foodID string, qty int, price int64) cart.Line {
	return cart.Line{
		FoodID:   foodID,
		Quantity: qty,
		Food: types.FoodSnapshot{
			ID:    foodID,
			Name:  "item-" + foodID,
			Price: decimal.NewFromInt(price),
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logg := logger.New(logger.Options{
		ServiceName: "checkout-test",
		Level:       zerolog.Disabled,
		Output:      io.Discard,
	})
	f := &fixture{
		orders:   &stubOrders{},
		cart:     &stubCart{},
		payments: &stubPayments{},
		slots:    &memorySlots{},
		bus:      events.NewBus(),
	}

	service, err := NewService(ServiceParams{
		Orders:   f.orders,
		Cart:     f.cart,
		Payments: f.payments,
		Session:  &stubSession{userID: "u-1"},
		Slots:    f.slots,
		Bus:      f.bus,
		Logger:   logg,
		Config:   config.CheckoutConfig{DeliveryFee: decimal.NewFromInt(4990)},
	})
	require.NoError(t, err)
	f.service = service
	return f
}

func TestNewServiceValidatesParams(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestCheckoutQPayHappyPath(t *testing.T) {
	f := newFixture(t)
	f.cart.items = []cart.Line{testLine("f1", 2, 5000)}

	result, err := f.service.Checkout(context.Background(), MethodQPay)
	require.NoError(t, err)

	assert.Equal(t, "ord-1", result.Order.ID)
	require.NotNil(t, result.Invoice)
	assert.Equal(t, "inv-ord-1", result.Invoice.InvoiceID)

	// Total is cart subtotal plus the delivery fee.
	assert.True(t, f.orders.lastCreate.TotalPrice.Equal(decimal.NewFromInt(2*5000+4990)))
	assert.Equal(t, MethodQPay, f.orders.lastCreate.PaymentMethod)

	// Resume key recorded, cart cleared, payment started.
	id, ok, err := f.slots.LastOrderID(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ord-1", id)
	assert.Equal(t, 1, f.cart.clearCalls)
	assert.Equal(t, []string{"ord-1"}, f.payments.starts)
}

func TestCheckoutCOD(t *testing.T) {
	f := newFixture(t)
	f.cart.items = []cart.Line{testLine("f1", 1, 5000)}

	result, err := f.service.Checkout(context.Background(), MethodCOD)
	require.NoError(t, err)
	assert.Nil(t, result.Invoice)
	assert.Empty(t, f.payments.starts)

	// COD needs no resume key.
	_, ok, err := f.slots.LastOrderID(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckoutValidatesBeforeNetwork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Empty cart.
	_, err := f.service.Checkout(ctx, MethodQPay)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	// Line without a food id.
	f.cart.items = []cart.Line{{Quantity: 1, Food: types.FoodSnapshot{Price: decimal.NewFromInt(100)}}}
	_, err = f.service.Checkout(ctx, MethodQPay)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	// Zero total.
	f.cart.items = []cart.Line{testLine("f1", 1, 0)}
	_, err = f.service.Checkout(ctx, MethodQPay)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	// Unknown method.
	f.cart.items = []cart.Line{testLine("f1", 1, 100)}
	_, err = f.service.Checkout(ctx, "bitcoin")
	require.Error(t, err)

	assert.Zero(t, f.orders.createCalls)
}

func TestCheckoutOrderFailureLeavesCart(t *testing.T) {
	f := newFixture(t)
	f.cart.items = []cart.Line{testLine("f1", 1, 5000)}
	f.orders.createFn = func(context.Context, backend.CreateOrderRequest) (backend.Order, error) {
		return backend.Order{}, errors.New("backend down")
	}

	_, err := f.service.Checkout(context.Background(), MethodQPay)
	require.Error(t, err)
	assert.Zero(t, f.cart.clearCalls)
	assert.Empty(t, f.payments.starts)
}

func TestCheckoutPaymentFailureStillReturnsOrder(t *testing.T) {
	f := newFixture(t)
	f.cart.items = []cart.Line{testLine("f1", 1, 5000)}
	f.payments.fn = func(context.Context, string, decimal.Decimal) (qpay.Invoice, error) {
		return qpay.Invoice{}, errors.New("gateway down")
	}

	result, err := f.service.Checkout(context.Background(), MethodQPay)
	require.Error(t, err)
	assert.Equal(t, "ord-1", result.Order.ID)
	assert.Nil(t, result.Invoice)

	// The resume key survives so a restart can retry the payment.
	_, ok, slotErr := f.slots.LastOrderID(context.Background())
	require.NoError(t, slotErr)
	assert.True(t, ok)
}

func TestResumeRestartsPendingPayment(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.slots.SetLastOrderID(context.Background(), "ord-9"))
	f.orders.orderFn = func(_ context.Context, orderID string) (backend.Order, error) {
		return backend.Order{
			ID:         orderID,
			Status:     enums.OrderStatusWaitingPayment,
			TotalPrice: decimal.NewFromInt(9990),
		}, nil
	}

	result, err := f.service.Resume(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotNil(t, result.Invoice)
	assert.Equal(t, []string{"ord-9"}, f.payments.starts)
}

func TestResumeSettledOrderClearsKey(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.slots.SetLastOrderID(context.Background(), "ord-9"))

	result, err := f.service.Resume(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Nil(t, result.Invoice)
	assert.Empty(t, f.payments.starts)

	_, ok, err := f.slots.LastOrderID(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResumeWithoutKeyIsNoop(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.Resume(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Zero(t, f.orders.fetchCalls)
}

func TestResumeMissingOrderDropsKey(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.slots.SetLastOrderID(context.Background(), "ord-gone"))
	f.orders.orderFn = func(context.Context, string) (backend.Order, error) {
		return backend.Order{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	result, err := f.service.Resume(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result)

	_, ok, err := f.slots.LastOrderID(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrderPaidEventRefetchesOnce(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.slots.SetLastOrderID(context.Background(), "ord-1"))

	var notices []events.Notice
	noticeSub := f.bus.Subscribe(func(event events.Event) {
		if n, ok := event.(events.Notice); ok {
			notices = append(notices, n)
		}
	})
	defer noticeSub.Close()

	sub := f.service.Start(context.Background())
	defer sub.Close()

	f.bus.Publish(events.OrderPaid{OrderID: "ord-1"})

	assert.Equal(t, 1, f.orders.fetchCalls)
	require.Len(t, notices, 1)
	assert.Equal(t, events.NoticeInfo, notices[0].Level)

	_, ok, err := f.slots.LastOrderID(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

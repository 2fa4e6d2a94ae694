package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/batjin/foodrush-storefront/pkg/backend"
	"github.com/batjin/foodrush-storefront/pkg/config"
	"github.com/batjin/foodrush-storefront/pkg/enums"
	"github.com/batjin/foodrush-storefront/pkg/logger"
	"github.com/batjin/foodrush-storefront/pkg/redis"
)

var (
	errStoreRequired  = errors.New("devserver store is required")
	errLoggerRequired = errors.New("devserver logger is required")
)

// Store is the slice of the redis client the stub backend persists through.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Incr(ctx context.Context, key string) (int64, error)
	Del(ctx context.Context, keys ...string) error

	CartKey(userID string) string
	OrderKey(orderID string) string
	InvoiceKey(invoiceID string) string
	InvoiceCheckKey(invoiceID string) string
}

// Server is a development stand-in for the remote storefront backend. It
// speaks the same wire format as pkg/backend expects and simulates the QPay
// gateway, settling invoices after a configurable number of checks.
type Server struct {
	store Store
	logg  *logger.Logger
	cfg   config.DevServerConfig
}

type Params struct {
	Store  Store
	Logger *logger.Logger
	Config config.DevServerConfig
}

func New(params Params) (*Server, error) {
	if params.Store == nil {
		return nil, errStoreRequired
	}
	if params.Logger == nil {
		return nil, errLoggerRequired
	}
	if params.Config.SettleAfterChecks <= 0 {
		params.Config.SettleAfterChecks = 2
	}
	return &Server{
		store: params.Store,
		logg:  params.Logger,
		cfg:   params.Config,
	}, nil
}

// Router assembles the stub backend's HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Route("/cart", func(r chi.Router) {
		r.Get("/{userID}", s.cartFetch)
		r.Post("/sync", s.cartSync)
		r.Post("/add", s.cartAdd)
		r.Post("/update", s.cartUpdate)
		r.Post("/remove", s.cartRemove)
		r.Post("/clear", s.cartClear)
	})

	r.Post("/order", s.orderCreate)
	r.Get("/order/{orderID}", s.orderFetch)

	r.Route("/qpay", func(r chi.Router) {
		r.Post("/create", s.invoiceCreate)
		r.Post("/check", s.invoiceCheck)
	})

	return r
}

type cartRecord struct {
	Items []backend.Item `json:"items"`
}

type invoiceRecord struct {
	InvoiceID string          `json:"invoiceId"`
	OrderID   string          `json:"orderId"`
	Amount    decimal.Decimal `json:"amount"`
}

func (s *Server) cartFetch(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	record, err := s.loadCart(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err, "loading cart")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) cartSync(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID string         `json:"userId"`
		Items  []backend.Item `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid sync payload")
		return
	}
	if payload.UserID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	record, err := s.loadCart(r.Context(), payload.UserID)
	if err != nil {
		s.fail(w, r, err, "loading cart")
		return
	}
	for _, item := range payload.Items {
		if item.FoodID == "" {
			continue
		}
		record.Items = mergeItem(record.Items, item)
	}
	if err := s.saveCart(r.Context(), payload.UserID, record); err != nil {
		s.fail(w, r, err, "saving cart")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) cartAdd(w http.ResponseWriter, r *http.Request) {
	var payload backend.AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid add payload")
		return
	}
	if payload.UserID == "" || payload.FoodID == "" {
		writeError(w, http.StatusBadRequest, "user id and food id are required")
		return
	}
	if payload.Quantity < 1 {
		payload.Quantity = 1
	}

	record, err := s.loadCart(r.Context(), payload.UserID)
	if err != nil {
		s.fail(w, r, err, "loading cart")
		return
	}
	record.Items = mergeItem(record.Items, backend.Item{
		FoodID:       payload.FoodID,
		Quantity:     payload.Quantity,
		SelectedSize: payload.SelectedSize,
		Food:         payload.Food,
	})
	if err := s.saveCart(r.Context(), payload.UserID, record); err != nil {
		s.fail(w, r, err, "saving cart")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// cartUpdate and cartRemove address a line by its server id only, so the
// owning user is recovered from the bearer token the way the real backend
// does.
func (s *Server) cartUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var payload struct {
		ID       string `json:"id"`
		Quantity int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.ID == "" {
		writeError(w, http.StatusBadRequest, "cart line id is required")
		return
	}
	if payload.Quantity < 1 {
		payload.Quantity = 1
	}

	record, err := s.loadCart(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err, "loading cart")
		return
	}
	found := false
	for i := range record.Items {
		if record.Items[i].ID == payload.ID {
			record.Items[i].Quantity = payload.Quantity
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "cart line not found")
		return
	}
	if err := s.saveCart(r.Context(), userID, record); err != nil {
		s.fail(w, r, err, "saving cart")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) cartRemove(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.ID == "" {
		writeError(w, http.StatusBadRequest, "cart line id is required")
		return
	}

	record, err := s.loadCart(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err, "loading cart")
		return
	}
	kept := record.Items[:0:0]
	for _, item := range record.Items {
		if item.ID != payload.ID {
			kept = append(kept, item)
		}
	}
	record.Items = kept
	if err := s.saveCart(r.Context(), userID, record); err != nil {
		s.fail(w, r, err, "saving cart")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) cartClear(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.UserID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}
	if err := s.store.Del(r.Context(), s.store.CartKey(payload.UserID)); err != nil {
		s.fail(w, r, err, "clearing cart")
		return
	}
	writeJSON(w, http.StatusOK, cartRecord{Items: []backend.Item{}})
}

func (s *Server) orderCreate(w http.ResponseWriter, r *http.Request) {
	var payload backend.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid order payload")
		return
	}
	if payload.UserID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}
	if len(payload.Items) == 0 {
		writeError(w, http.StatusBadRequest, "order has no items")
		return
	}

	status := enums.OrderStatusWaitingPayment
	if strings.EqualFold(payload.PaymentMethod, "cod") {
		status = enums.OrderStatusCODPending
	}

	order := backend.Order{
		ID:          uuid.NewString(),
		UserID:      payload.UserID,
		Status:      status,
		Items:       payload.Items,
		TotalPrice:  payload.TotalPrice,
		DeliveryFee: payload.DeliveryFee,
		CreatedAt:   time.Now().UTC(),
	}
	for i := range order.Items {
		if order.Items[i].ID == "" {
			order.Items[i].ID = uuid.NewString()
		}
	}

	if err := s.saveOrder(r.Context(), order); err != nil {
		s.fail(w, r, err, "saving order")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (s *Server) orderFetch(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "order id is required")
		return
	}

	order, err := s.loadOrder(r.Context(), orderID)
	if errors.Is(err, redis.Nil) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		s.fail(w, r, err, "loading order")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (s *Server) invoiceCreate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		OrderID string          `json:"orderId"`
		Amount  decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.OrderID == "" {
		writeError(w, http.StatusBadRequest, "order id is required")
		return
	}
	if !payload.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	order, err := s.loadOrder(r.Context(), payload.OrderID)
	if errors.Is(err, redis.Nil) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		s.fail(w, r, err, "loading order")
		return
	}
	if !order.Status.AwaitsPayment() {
		writeError(w, http.StatusBadRequest, "order is not awaiting payment")
		return
	}

	invoice := invoiceRecord{
		InvoiceID: uuid.NewString(),
		OrderID:   payload.OrderID,
		Amount:    payload.Amount,
	}
	encoded, err := json.Marshal(invoice)
	if err != nil {
		s.fail(w, r, err, "encoding invoice")
		return
	}
	if err := s.store.Set(r.Context(), s.store.InvoiceKey(invoice.InvoiceID), encoded, 0); err != nil {
		s.fail(w, r, err, "saving invoice")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"invoice_id": invoice.InvoiceID,
		"qr_text":    fmt.Sprintf("qpay://invoice/%s?amount=%s", invoice.InvoiceID, invoice.Amount.String()),
		"qr_image":   fmt.Sprintf("https://qpay.invalid/qr/%s.png", invoice.InvoiceID),
	})
}

// invoiceCheck reports a pending invoice until it has been asked about
// SettleAfterChecks times, then flips it to paid and marks the order.
func (s *Server) invoiceCheck(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		InvoiceID string `json:"invoiceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.InvoiceID == "" {
		writeError(w, http.StatusBadRequest, "invoice id is required")
		return
	}

	raw, err := s.store.Get(r.Context(), s.store.InvoiceKey(payload.InvoiceID))
	if errors.Is(err, redis.Nil) {
		writeError(w, http.StatusNotFound, "invoice not found")
		return
	}
	if err != nil {
		s.fail(w, r, err, "loading invoice")
		return
	}
	var invoice invoiceRecord
	if err := json.Unmarshal([]byte(raw), &invoice); err != nil {
		s.fail(w, r, err, "decoding invoice")
		return
	}

	checks, err := s.store.Incr(r.Context(), s.store.InvoiceCheckKey(payload.InvoiceID))
	if err != nil {
		s.fail(w, r, err, "counting invoice checks")
		return
	}

	paid := checks >= int64(s.cfg.SettleAfterChecks)
	if paid {
		if err := s.settleOrder(r.Context(), invoice.OrderID); err != nil {
			s.fail(w, r, err, "settling order")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"paid": paid})
}

func (s *Server) settleOrder(ctx context.Context, orderID string) error {
	order, err := s.loadOrder(ctx, orderID)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if order.Status == enums.OrderStatusPaid {
		return nil
	}
	order.Status = enums.OrderStatusPaid
	return s.saveOrder(ctx, order)
}

func (s *Server) loadCart(ctx context.Context, userID string) (cartRecord, error) {
	raw, err := s.store.Get(ctx, s.store.CartKey(userID))
	if errors.Is(err, redis.Nil) {
		return cartRecord{Items: []backend.Item{}}, nil
	}
	if err != nil {
		return cartRecord{}, err
	}
	var record cartRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return cartRecord{}, err
	}
	if record.Items == nil {
		record.Items = []backend.Item{}
	}
	return record, nil
}

func (s *Server) saveCart(ctx context.Context, userID string, record cartRecord) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, s.store.CartKey(userID), encoded, 0)
}

func (s *Server) loadOrder(ctx context.Context, orderID string) (backend.Order, error) {
	raw, err := s.store.Get(ctx, s.store.OrderKey(orderID))
	if err != nil {
		return backend.Order{}, err
	}
	var order backend.Order
	if err := json.Unmarshal([]byte(raw), &order); err != nil {
		return backend.Order{}, err
	}
	return order, nil
}

func (s *Server) saveOrder(ctx context.Context, order backend.Order) error {
	encoded, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, s.store.OrderKey(order.ID), encoded, 0)
}

// mergeItem folds an incoming line into the cart, matching on food and size
// the same way the storefront does, and assigns a server id to new lines.
func mergeItem(items []backend.Item, add backend.Item) []backend.Item {
	for i := range items {
		if items[i].FoodID == add.FoodID && equalSize(items[i].SelectedSize, add.SelectedSize) {
			items[i].Quantity += add.Quantity
			return items
		}
	}
	if add.ID == "" {
		add.ID = uuid.NewString()
	}
	return append(items, add)
}

func equalSize(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// requireUser recovers the caller's user id from the bearer token. Claims
// are trusted as-is; the stub has no signing secret to verify against.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		writeError(w, http.StatusUnauthorized, "bearer token is required")
		return "", false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid bearer token")
		return "", false
	}
	for _, name := range []string{"sub", "userId", "id"} {
		if value, ok := claims[name].(string); ok && value != "" {
			return value, true
		}
	}
	writeError(w, http.StatusUnauthorized, "token carries no user id")
	return "", false
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, action string) {
	s.logg.Error(r.Context(), action+" failed", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"message": message},
	})
}

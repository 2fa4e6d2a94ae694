package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/batjin/foodrush-storefront/pkg/config"
	"github.com/batjin/foodrush-storefront/pkg/enums"
	pkgerrors "github.com/batjin/foodrush-storefront/pkg/errors"
	"github.com/batjin/foodrush-storefront/pkg/logger"
	"github.com/batjin/foodrush-storefront/pkg/types"
)

var (
	errBaseURLRequired = errors.New("backend base url is required")
	errLoggerRequired  = errors.New("backend logger is required")
	errTokensRequired  = errors.New("backend token provider is required")
)

// TokenProvider supplies the current bearer token. An empty string means no
// user is signed in.
type TokenProvider interface {
	Token() string
}

// Item is a server cart line on the wire.
type Item struct {
	ID           string             `json:"id,omitempty"`
	FoodID       string             `json:"foodId"`
	Quantity     int                `json:"quantity"`
	SelectedSize *string            `json:"selectedSize"`
	Food         types.FoodSnapshot `json:"food"`
}

// Order is the backend's order resource.
type Order struct {
	ID          string            `json:"id"`
	UserID      string            `json:"userId"`
	Status      enums.OrderStatus `json:"status"`
	Items       []Item            `json:"items"`
	TotalPrice  decimal.Decimal   `json:"totalPrice"`
	DeliveryFee decimal.Decimal   `json:"deliveryFee"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// AddItemRequest is the payload for POST /cart/add.
type AddItemRequest struct {
	UserID       string             `json:"userId"`
	FoodID       string             `json:"foodId"`
	Quantity     int                `json:"quantity"`
	SelectedSize *string            `json:"selectedSize"`
	Food         types.FoodSnapshot `json:"food"`
}

// CreateOrderRequest is the payload for POST /order.
type CreateOrderRequest struct {
	UserID        string          `json:"userId"`
	Items         []Item          `json:"items"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	DeliveryFee   decimal.Decimal `json:"deliveryFee"`
	PaymentMethod string          `json:"paymentMethod"`
}

// Client wraps the remote storefront backend with centralized auth, logging,
// and error mapping. It never retries; retry policy belongs to callers.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenProvider
	logg    *logger.Logger
}

// NewClient validates the configuration and builds the REST client.
func NewClient(cfg config.BackendConfig, tokens TokenProvider, logg *logger.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	if tokens == nil {
		return nil, errTokensRequired
	}
	if logg == nil {
		return nil, errLoggerRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		logg:    logg,
	}, nil
}

// Cart loads the server cart for the signed-in user.
func (c *Client) Cart(ctx context.Context, userID string) ([]Item, error) {
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}

	var payload struct {
		Items []Item `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "/cart/"+url.PathEscape(userID), nil, &payload, true)
	if err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// SyncCart uploads a full guest cart during migration. The server merges the
// items into the user's cart and assigns line ids.
func (c *Client) SyncCart(ctx context.Context, userID string, items []Item) error {
	if userID == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}
	if items == nil {
		items = []Item{}
	}

	body := struct {
		UserID string `json:"userId"`
		Items  []Item `json:"items"`
	}{UserID: userID, Items: items}
	return c.do(ctx, http.MethodPost, "/cart/sync", body, nil, true)
}

// AddItem appends a line to the server cart.
func (c *Client) AddItem(ctx context.Context, req AddItemRequest) error {
	if req.UserID == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}
	if req.FoodID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "food id is required")
	}
	return c.do(ctx, http.MethodPost, "/cart/add", req, nil, true)
}

// UpdateItem replaces the quantity of a server cart line.
func (c *Client) UpdateItem(ctx context.Context, lineID string, quantity int) error {
	if lineID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart line id is required")
	}

	body := struct {
		ID       string `json:"id"`
		Quantity int    `json:"quantity"`
	}{ID: lineID, Quantity: quantity}
	return c.do(ctx, http.MethodPost, "/cart/update", body, nil, true)
}

// RemoveItem deletes a server cart line.
func (c *Client) RemoveItem(ctx context.Context, lineID string) error {
	if lineID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart line id is required")
	}

	body := struct {
		ID string `json:"id"`
	}{ID: lineID}
	return c.do(ctx, http.MethodPost, "/cart/remove", body, nil, true)
}

// ClearCart empties the server cart.
func (c *Client) ClearCart(ctx context.Context, userID string) error {
	if userID == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}

	body := struct {
		UserID string `json:"userId"`
	}{UserID: userID}
	return c.do(ctx, http.MethodPost, "/cart/clear", body, nil, true)
}

// CreateOrder places an order and returns the server's view of it.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	if req.UserID == "" {
		return Order{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}
	if len(req.Items) == 0 {
		return Order{}, pkgerrors.New(pkgerrors.CodeValidation, "order has no items")
	}

	var payload struct {
		Order Order `json:"order"`
	}
	if err := c.do(ctx, http.MethodPost, "/order", req, &payload, true); err != nil {
		return Order{}, err
	}
	if payload.Order.ID == "" {
		return Order{}, pkgerrors.New(pkgerrors.CodeDependency, "backend returned an order without an id")
	}
	return payload.Order, nil
}

// Order fetches an order by id. The bearer token is attached when present
// but is not required; payment-pending views may run before sign-in state
// is restored.
func (c *Client) Order(ctx context.Context, orderID string) (Order, error) {
	if orderID == "" {
		return Order{}, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	var payload struct {
		Order Order `json:"order"`
	}
	err := c.do(ctx, http.MethodGet, "/order/"+url.PathEscape(orderID), nil, &payload, false)
	if err != nil {
		return Order{}, err
	}
	return payload.Order, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any, authRequired bool) error {
	token := c.tokens.Token()
	if authRequired && token == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "no bearer token installed")
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("backend %s %s failed", method, path))
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		mapped := mapStatus(resp)
		c.logg.Debug(c.logg.WithFields(ctx, map[string]any{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
		}), "backend request rejected")
		return mapped
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decoding %s %s response", method, path))
	}
	return nil
}

// mapStatus folds a non-2xx response into the error taxonomy, carrying the
// server's message when the body is a recognizable error envelope.
func mapStatus(resp *http.Response) error {
	message := serverMessage(resp.Body)
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	code := pkgerrors.CodeDependency
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		code = pkgerrors.CodeValidation
	case resp.StatusCode == http.StatusUnauthorized:
		code = pkgerrors.CodeUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		code = pkgerrors.CodeForbidden
	case resp.StatusCode == http.StatusNotFound:
		code = pkgerrors.CodeNotFound
	case resp.StatusCode == http.StatusConflict:
		code = pkgerrors.CodeConflict
	case resp.StatusCode == http.StatusUnprocessableEntity:
		code = pkgerrors.CodeStateConflict
	case resp.StatusCode >= http.StatusInternalServerError:
		code = pkgerrors.CodeDependency
	default:
		code = pkgerrors.CodeInternal
	}
	return pkgerrors.New(code, message)
}

func serverMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return ""
	}
	if envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return envelope.Message
}

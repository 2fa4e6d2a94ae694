package qpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/batjin/foodrush-storefront/pkg/config"
	pkgerrors "github.com/batjin/foodrush-storefront/pkg/errors"
	"github.com/batjin/foodrush-storefront/pkg/logger"
)

var (
	errBaseURLRequired = errors.New("qpay base url is required")
	errLoggerRequired  = errors.New("qpay logger is required")
)

// Invoice is the gateway's answer to a create call. QRText is what the user
// scans; QRImage is an optional pre-rendered data URL.
type Invoice struct {
	InvoiceID string `json:"invoice_id"`
	QRText    string `json:"qr_text"`
	QRImage   string `json:"qr_image"`
}

// Client talks to the QPay invoice gateway. Check is cheap and safe to call
// repeatedly; Create is not, and callers guard it per order.
type Client struct {
	baseURL string
	http    *http.Client
	logg    *logger.Logger
}

func NewClient(cfg config.QPayConfig, logg *logger.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
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
		logg:    logg,
	}, nil
}

// CreateInvoice opens an invoice for the order's full amount.
func (c *Client) CreateInvoice(ctx context.Context, orderID string, amount decimal.Decimal) (Invoice, error) {
	if orderID == "" {
		return Invoice{}, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return Invoice{}, pkgerrors.New(pkgerrors.CodeValidation, "invoice amount must be positive")
	}

	body := struct {
		OrderID string          `json:"orderId"`
		Amount  decimal.Decimal `json:"amount"`
	}{OrderID: orderID, Amount: amount}

	var invoice Invoice
	if err := c.post(ctx, "/qpay/create", body, &invoice); err != nil {
		return Invoice{}, err
	}
	if invoice.InvoiceID == "" {
		return Invoice{}, pkgerrors.New(pkgerrors.CodeDependency, "gateway returned an invoice without an id")
	}
	return invoice, nil
}

// CheckInvoice asks the gateway whether the invoice has settled.
func (c *Client) CheckInvoice(ctx context.Context, invoiceID string) (bool, error) {
	if invoiceID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}

	body := struct {
		InvoiceID string `json:"invoiceId"`
	}{InvoiceID: invoiceID}

	var payload struct {
		Paid bool `json:"paid"`
	}
	if err := c.post(ctx, "/qpay/check", body, &payload); err != nil {
		return false, err
	}
	return payload.Paid, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s body: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("qpay %s failed", path))
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		code := pkgerrors.CodeDependency
		if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
			code = pkgerrors.CodeValidation
		}
		return pkgerrors.New(code, fmt.Sprintf("qpay %s returned status %d", path, resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decoding %s response", path))
	}
	return nil
}

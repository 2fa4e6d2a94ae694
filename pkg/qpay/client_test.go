package qpay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batjin/foodrush-storefront/pkg/config"
	pkgerrors "github.com/batjin/foodrush-storefront/pkg/errors"
	"github.com/batjin/foodrush-storefront/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: "qpay-test",
		Level:       zerolog.Disabled,
		Output:      io.Discard,
	})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.QPayConfig{BaseURL: server.URL}, testLogger())
	require.NoError(t, err)
	return client
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(config.QPayConfig{}, testLogger())
	require.ErrorIs(t, err, errBaseURLRequired)

	_, err = NewClient(config.QPayConfig{BaseURL: "http://x"}, nil)
	require.ErrorIs(t, err, errLoggerRequired)
}

func TestCreateInvoice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/qpay/create", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ord-1", body["orderId"])
		// decimal marshals as a quoted string by default.
		assert.Equal(t, "14990", body["amount"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"invoice_id": "inv-1",
			"qr_text":    "qr-payload",
			"qr_image":   "data:image/png;base64,xyz",
		})
	})

	invoice, err := client.CreateInvoice(context.Background(), "ord-1", decimal.NewFromInt(14990))
	require.NoError(t, err)
	assert.Equal(t, "inv-1", invoice.InvoiceID)
	assert.Equal(t, "qr-payload", invoice.QRText)
	assert.NotEmpty(t, invoice.QRImage)
}

func TestCreateInvoiceValidatesBeforeNetwork(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for invalid input")
	})
	ctx := context.Background()

	_, err := client.CreateInvoice(ctx, "", decimal.NewFromInt(100))
	require.Error(t, err)

	_, err = client.CreateInvoice(ctx, "ord-1", decimal.Zero)
	require.Error(t, err)

	_, err = client.CreateInvoice(ctx, "ord-1", decimal.NewFromInt(-5))
	require.Error(t, err)
}

func TestCreateInvoiceWithoutIDIsDependencyError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"qr_text": "qr"})
	})

	_, err := client.CreateInvoice(context.Background(), "ord-1", decimal.NewFromInt(100))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())
}

func TestCheckInvoice(t *testing.T) {
	paid := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/qpay/check", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "inv-1", body["invoiceId"])

		_ = json.NewEncoder(w).Encode(map[string]any{"paid": paid})
	})
	ctx := context.Background()

	settled, err := client.CheckInvoice(ctx, "inv-1")
	require.NoError(t, err)
	assert.False(t, settled)

	paid = true
	settled, err = client.CheckInvoice(ctx, "inv-1")
	require.NoError(t, err)
	assert.True(t, settled)
}

func TestCheckInvoiceGatewayFailureIsRetryable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.CheckInvoice(context.Background(), "inv-1")
	require.Error(t, err)
	assert.True(t, pkgerrors.Retryable(err))
}

func TestCheckInvoiceRequiresID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected without an invoice id")
	})

	_, err := client.CheckInvoice(context.Background(), "")
	require.Error(t, err)
	assert.False(t, pkgerrors.Retryable(err))
}

package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/batjin/foodrush-storefront/api/responses"
	"github.com/batjin/foodrush-storefront/internal/payment"
	pkgerrors "github.com/batjin/foodrush-storefront/pkg/errors"
	"github.com/batjin/foodrush-storefront/pkg/logger"
	"github.com/batjin/foodrush-storefront/pkg/qpay"
)

// Payments is the slice of the payment orchestrator the surface exposes.
type Payments interface {
	Status(orderID string) payment.Status
	Invoice(orderID string) (qpay.Invoice, bool)
	Cancel(orderID string)
}

type paymentPayload struct {
	OrderID string        `json:"orderId"`
	Status  string        `json:"status"`
	Invoice *qpay.Invoice `json:"invoice,omitempty"`
}

// PaymentFetch reports the payment state for an order, including the
// invoice QR while one is live.
func PaymentFetch(payments Payments, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if payments == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments unavailable"))
			return
		}

		orderID := chi.URLParam(r, "orderID")
		if orderID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order id is required"))
			return
		}

		payload := paymentPayload{
			OrderID: orderID,
			Status:  string(payments.Status(orderID)),
		}
		if invoice, ok := payments.Invoice(orderID); ok {
			payload.Invoice = &invoice
		}
		responses.WriteSuccess(w, payload)
	}
}

// PaymentCancel stops polling for an order's invoice.
func PaymentCancel(payments Payments, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if payments == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments unavailable"))
			return
		}

		orderID := chi.URLParam(r, "orderID")
		if orderID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order id is required"))
			return
		}

		payments.Cancel(orderID)
		responses.WriteSuccess(w, paymentPayload{
			OrderID: orderID,
			Status:  string(payments.Status(orderID)),
		})
	}
}

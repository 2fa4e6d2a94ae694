package controllers

import (
	"context"
	"net/http"

	"github.com/batjin/foodrush-storefront/api/responses"
	"github.com/batjin/foodrush-storefront/api/validators"
	checkoutsvc "github.com/batjin/foodrush-storefront/internal/checkout"
	pkgerrors "github.com/batjin/foodrush-storefront/pkg/errors"
	"github.com/batjin/foodrush-storefront/pkg/logger"
)

// Checkout places orders.
type Checkout interface {
	Checkout(ctx context.Context, method string) (checkoutsvc.Result, error)
}

type checkoutRequest struct {
	Method string `json:"method" validate:"required,oneof=qpay cod"`
}

// CheckoutCreate validates and places an order from the current cart.
func CheckoutCreate(svc Checkout, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Checkout(r.Context(), payload.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

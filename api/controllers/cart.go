package controllers

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/batjin/foodrush-storefront/api/responses"
	"github.com/batjin/foodrush-storefront/api/validators"
	"github.com/batjin/foodrush-storefront/internal/cart"
	pkgerrors "github.com/batjin/foodrush-storefront/pkg/errors"
	"github.com/batjin/foodrush-storefront/pkg/logger"
	"github.com/batjin/foodrush-storefront/pkg/types"
)

// CartView is the slice of the cart view model the surface serves.
type CartView interface {
	Items() []cart.Line
	ItemCount() int
	TotalPrice() decimal.Decimal
	Add(ctx context.Context, line cart.Line) error
	SetQuantity(ctx context.Context, line cart.Line, quantity int) error
	Remove(ctx context.Context, line cart.Line) error
	Clear(ctx context.Context) error
}

type cartPayload struct {
	Items      []cart.Line     `json:"items"`
	Count      int             `json:"count"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

type addItemRequest struct {
	FoodID       string             `json:"foodId" validate:"required"`
	Quantity     int                `json:"quantity"`
	SelectedSize *string            `json:"selectedSize"`
	Food         types.FoodSnapshot `json:"food"`
}

type lineTargetRequest struct {
	ID           string  `json:"id"`
	FoodID       string  `json:"foodId"`
	SelectedSize *string `json:"selectedSize"`
	Quantity     int     `json:"quantity"`
}

func cartResponse(view CartView) cartPayload {
	items := view.Items()
	if items == nil {
		items = []cart.Line{}
	}
	return cartPayload{
		Items:      items,
		Count:      view.ItemCount(),
		TotalPrice: view.TotalPrice(),
	}
}

// CartFetch returns the current cart with its derived totals.
func CartFetch(view CartView, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if view == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart view unavailable"))
			return
		}
		responses.WriteSuccess(w, cartResponse(view))
	}
}

// CartAdd puts an item in the cart.
func CartAdd(view CartView, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if view == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart view unavailable"))
			return
		}

		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		line := cart.Line{
			FoodID:       payload.FoodID,
			Quantity:     payload.Quantity,
			SelectedSize: payload.SelectedSize,
			Food:         payload.Food,
		}
		if line.Food.ID == "" {
			line.Food.ID = payload.FoodID
		}

		if err := view.Add(r.Context(), line); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartResponse(view))
	}
}

// CartSetQuantity replaces a line's quantity.
func CartSetQuantity(view CartView, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if view == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart view unavailable"))
			return
		}

		var payload lineTargetRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.ID == "" && payload.FoodID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "line id or food id is required"))
			return
		}

		target := cart.Line{ID: payload.ID, FoodID: payload.FoodID, SelectedSize: payload.SelectedSize}
		if err := view.SetQuantity(r.Context(), target, payload.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartResponse(view))
	}
}

// CartRemove deletes a line.
func CartRemove(view CartView, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if view == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart view unavailable"))
			return
		}

		var payload lineTargetRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.ID == "" && payload.FoodID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "line id or food id is required"))
			return
		}

		target := cart.Line{ID: payload.ID, FoodID: payload.FoodID, SelectedSize: payload.SelectedSize}
		if err := view.Remove(r.Context(), target); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartResponse(view))
	}
}

// CartClear empties the cart.
func CartClear(view CartView, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if view == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart view unavailable"))
			return
		}
		if err := view.Clear(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartResponse(view))
	}
}

package controllers

import (
	"bytes"
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

	"github.com/batjin/foodrush-storefront/internal/cart"
	pkgerrors "github.com/batjin/foodrush-storefront/pkg/errors"
	"github.com/batjin/foodrush-storefront/pkg/logger"
	"github.com/batjin/foodrush-storefront/pkg/types"
)

type stubCartView struct {
	items []cart.Line

	addFn    func(ctx context.Context, line cart.Line) error
	setFn    func(ctx context.Context, line cart.Line, quantity int) error
	removeFn func(ctx context.Context, line cart.Line) error
	clearFn  func(ctx context.Context) error
}

func (s *stubCartView) Items() []cart.Line { return s.items }

func (s *stubCartView) ItemCount() int { return cart.Count(s.items) }

func (s *stubCartView) TotalPrice() decimal.Decimal { return cart.Total(s.items) }

func (s *stubCartView) Add(ctx context.Context, line cart.Line) error {
	if s.addFn != nil {
		return s.addFn(ctx, line)
	}
	s.items = cart.Merge(s.items, line)
	return nil
}

func (s *stubCartView) SetQuantity(ctx context.Context, line cart.Line, quantity int) error {
	if s.setFn != nil {
		return s.setFn(ctx, line, quantity)
	}
	return nil
}

func (s *stubCartView) Remove(ctx context.Context, line cart.Line) error {
	if s.removeFn != nil {
		return s.removeFn(ctx, line)
	}
	return nil
}

func (s *stubCartView) Clear(ctx context.Context) error {
	if s.clearFn != nil {
		return s.clearFn(ctx)
	}
	s.items = nil
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: "controllers-test",
		Level:       zerolog.Disabled,
		Output:      io.Discard,
	})
}

func jsonBody(t *testing.T, payload any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func TestCartFetchReturnsDerivedTotals(t *testing.T) {
	view := &stubCartView{items: []cart.Line{{
		FoodID:   "f1",
		Quantity: 2,
		Food:     types.FoodSnapshot{ID: "f1", Name: "Burger", Price: decimal.NewFromInt(5000)},
	}}}

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rec := httptest.NewRecorder()
	CartFetch(view, testLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data cartPayload `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, 2, envelope.Data.Count)
	assert.True(t, envelope.Data.TotalPrice.Equal(decimal.NewFromInt(10000)))
	require.Len(t, envelope.Data.Items, 1)
}

func TestCartAdd(t *testing.T) {
	view := &stubCartView{}

	req := httptest.NewRequest(http.MethodPost, "/cart/items", jsonBody(t, map[string]any{
		"foodId":   "f1",
		"quantity": 2,
		"food":     map[string]any{"id": "f1", "foodName": "Burger", "price": "5000", "image": "x"},
	}))
	rec := httptest.NewRecorder()
	CartAdd(view, testLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, view.items, 1)
	assert.Equal(t, "f1", view.items[0].FoodID)
	assert.Equal(t, 2, view.items[0].Quantity)
}

func TestCartAddRequiresFoodID(t *testing.T) {
	view := &stubCartView{}

	req := httptest.NewRequest(http.MethodPost, "/cart/items", jsonBody(t, map[string]any{
		"quantity": 2,
	}))
	rec := httptest.NewRecorder()
	CartAdd(view, testLogger())(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, view.items)
}

func TestCartSetQuantityRequiresTarget(t *testing.T) {
	view := &stubCartView{}

	req := httptest.NewRequest(http.MethodPatch, "/cart/items/quantity", jsonBody(t, map[string]any{
		"quantity": 3,
	}))
	rec := httptest.NewRecorder()
	CartSetQuantity(view, testLogger())(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartSetQuantityPassesTarget(t *testing.T) {
	var got cart.Line
	var gotQty int
	view := &stubCartView{
		setFn: func(_ context.Context, line cart.Line, quantity int) error {
			got = line
			gotQty = quantity
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPatch, "/cart/items/quantity", jsonBody(t, map[string]any{
		"id":       "line-1",
		"foodId":   "f1",
		"quantity": 3,
	}))
	rec := httptest.NewRecorder()
	CartSetQuantity(view, testLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "line-1", got.ID)
	assert.Equal(t, "f1", got.FoodID)
	assert.Equal(t, 3, gotQty)
}

func TestCartRemoveMapsServiceError(t *testing.T) {
	view := &stubCartView{
		removeFn: func(context.Context, cart.Line) error {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/cart/items", jsonBody(t, map[string]any{
		"foodId": "ghost",
	}))
	rec := httptest.NewRecorder()
	CartRemove(view, testLogger())(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCartClear(t *testing.T) {
	view := &stubCartView{items: []cart.Line{{FoodID: "f1", Quantity: 1}}}

	req := httptest.NewRequest(http.MethodDelete, "/cart", nil)
	rec := httptest.NewRecorder()
	CartClear(view, testLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, view.items)
}

func TestCartHandlersWithoutView(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rec := httptest.NewRecorder()
	CartFetch(nil, testLogger())(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

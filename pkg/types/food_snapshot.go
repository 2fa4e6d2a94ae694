package types

import "github.com/shopspring/decimal"

// FoodSnapshot is the denormalized catalog data embedded in a cart line so
// the UI can render without a catalog join. It may go stale relative to the
// catalog; the backend re-prices at checkout.
type FoodSnapshot struct {
	ID    string          `json:"id"`
	Name  string          `json:"foodName"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image"`
}

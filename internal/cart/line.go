package cart

import (
	"encoding/json"

	pkgerrors "github.com/batjin/foodrush-storefront/pkg/errors"
	"github.com/batjin/foodrush-storefront/pkg/types"
	"github.com/shopspring/decimal"
)

// Line is the canonical cart line shape. Everything past the wire boundary
// works with this type; loose upstream shapes are converted exactly once by
// NormalizeLine.
type Line struct {
	// ID is the server-assigned line id. Empty means the line only exists
	// in the local store and has not been uploaded yet.
	ID           string             `json:"id,omitempty"`
	FoodID       string             `json:"foodId"`
	Quantity     int                `json:"quantity"`
	SelectedSize *string            `json:"selectedSize"`
	Food         types.FoodSnapshot `json:"food"`
}

// Synced reports whether the line carries a server identity.
func (l Line) Synced() bool {
	return l.ID != ""
}

// Subtotal is the display price of the line (snapshot price × quantity).
func (l Line) Subtotal() decimal.Decimal {
	return l.Food.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// SameVariant reports whether two lines address the same cart position:
// by server id when both carry one, otherwise by (foodId, selectedSize).
func (l Line) SameVariant(other Line) bool {
	if l.ID != "" && other.ID != "" {
		return l.ID == other.ID
	}
	if l.FoodID != other.FoodID {
		return false
	}
	return sizeEqual(l.SelectedSize, other.SelectedSize)
}

func sizeEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ClampQuantity enforces the floor of one. Dropping below one is only
// possible through an explicit remove.
func ClampQuantity(q int) int {
	if q < 1 {
		return 1
	}
	return q
}

// Merge inserts add into lines while preserving the variant invariant: an
// existing line with the same (foodId, selectedSize) absorbs the quantity
// instead of a duplicate being appended.
func Merge(lines []Line, add Line) []Line {
	add.Quantity = ClampQuantity(add.Quantity)
	for i := range lines {
		if lines[i].SameVariant(add) {
			lines[i].Quantity += add.Quantity
			return lines
		}
	}
	return append(lines, add)
}

// Total sums snapshot price × quantity over all lines. The delivery fee is
// a checkout-time constant and deliberately not part of this figure.
func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Count sums quantities over all lines.
func Count(lines []Line) int {
	count := 0
	for _, l := range lines {
		count += l.Quantity
	}
	return count
}

// LooseLine mirrors the historically duck-typed wire shapes: quantity vs
// qty, and the food id hiding in food.id, foodId, or id. It exists only as
// input to NormalizeLine.
type LooseLine struct {
	ID           string  `json:"id"`
	FoodID       string  `json:"foodId"`
	Quantity     *int    `json:"quantity"`
	Qty          *int    `json:"qty"`
	SelectedSize *string `json:"selectedSize"`
	Food         *struct {
		ID       string          `json:"id"`
		FoodName string          `json:"foodName"`
		Name     string          `json:"name"`
		Price    decimal.Decimal `json:"price"`
		Image    string          `json:"image"`
	} `json:"food"`
}

// NormalizeLine converts a loose wire shape into the canonical Line. A line
// whose food id cannot be resolved from any known field is rejected.
func NormalizeLine(raw LooseLine) (Line, error) {
	foodID := raw.FoodID
	if raw.Food != nil && raw.Food.ID != "" {
		foodID = raw.Food.ID
	}
	if foodID == "" {
		// Legacy payloads without a food object used the line id as the
		// catalog id.
		foodID = raw.ID
	}
	if foodID == "" {
		return Line{}, pkgerrors.New(pkgerrors.CodeValidation, "cart line has no resolvable food id")
	}

	quantity := 1
	switch {
	case raw.Quantity != nil:
		quantity = *raw.Quantity
	case raw.Qty != nil:
		quantity = *raw.Qty
	}

	line := Line{
		FoodID:       foodID,
		Quantity:     ClampQuantity(quantity),
		SelectedSize: raw.SelectedSize,
	}
	if raw.ID != foodID {
		line.ID = raw.ID
	}
	if raw.Food != nil {
		name := raw.Food.FoodName
		if name == "" {
			name = raw.Food.Name
		}
		line.Food = types.FoodSnapshot{
			ID:    foodID,
			Name:  name,
			Price: raw.Food.Price,
			Image: raw.Food.Image,
		}
	} else {
		line.Food = types.FoodSnapshot{ID: foodID}
	}
	return line, nil
}

// DecodeLines parses a persisted JSON array of loose lines. Malformed data
// yields an empty slice, never an error: a corrupted local snapshot must
// not take the cart down with it. Individually unresolvable lines are
// dropped.
func DecodeLines(data []byte) []Line {
	if len(data) == 0 {
		return nil
	}
	var raws []LooseLine
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil
	}
	lines := make([]Line, 0, len(raws))
	for _, raw := range raws {
		line, err := NormalizeLine(raw)
		if err != nil {
			continue
		}
		lines = Merge(lines, line)
	}
	return lines
}

// EncodeLines renders lines as the canonical JSON array used by the backup
// slot and the sync request body.
func EncodeLines(lines []Line) ([]byte, error) {
	if lines == nil {
		lines = []Line{}
	}
	return json.Marshal(lines)
}

package cart

import (
	"github.com/batjin/foodrush-storefront/pkg/backend"
)

// FromItem converts a server cart line into the canonical shape. Lines whose
// food id cannot be resolved report ok=false and are dropped by callers.
func FromItem(item backend.Item) (Line, bool) {
	foodID := item.FoodID
	if item.Food.ID != "" {
		foodID = item.Food.ID
	}
	if foodID == "" {
		foodID = item.ID
	}
	if foodID == "" {
		return Line{}, false
	}

	line := Line{
		FoodID:       foodID,
		Quantity:     ClampQuantity(item.Quantity),
		SelectedSize: item.SelectedSize,
		Food:         item.Food,
	}
	if line.Food.ID == "" {
		line.Food.ID = foodID
	}
	if item.ID != foodID {
		line.ID = item.ID
	}
	return line, true
}

// FromItems converts a server cart, dropping unresolvable lines and merging
// duplicates so the variant invariant holds on this side of the wire too.
func FromItems(items []backend.Item) []Line {
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		line, ok := FromItem(item)
		if !ok {
			continue
		}
		lines = Merge(lines, line)
	}
	return lines
}

// ToItem renders a line in the backend's wire shape.
func ToItem(line Line) backend.Item {
	return backend.Item{
		ID:           line.ID,
		FoodID:       line.FoodID,
		Quantity:     ClampQuantity(line.Quantity),
		SelectedSize: line.SelectedSize,
		Food:         line.Food,
	}
}

// ToItems renders a full cart in the backend's wire shape. A nil cart
// becomes an empty slice so sync payloads carry an array, never null.
func ToItems(lines []Line) []backend.Item {
	items := make([]backend.Item, 0, len(lines))
	for _, line := range lines {
		items = append(items, ToItem(line))
	}
	return items
}

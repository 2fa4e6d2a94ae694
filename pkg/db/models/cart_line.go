package models

import (
	"time"

	"github.com/batjin/foodrush-storefront/pkg/types"
)

// CartLine is one guest-cart row in the local sqlite store. Lines here have
// no server identity; a server id only exists after reconciliation uploads
// them.
type CartLine struct {
	ID           uint               `gorm:"column:id;primaryKey;autoIncrement"`
	FoodID       string             `gorm:"column:food_id;not null;index:idx_cart_lines_variant"`
	SelectedSize *string            `gorm:"column:selected_size;index:idx_cart_lines_variant"`
	Quantity     int                `gorm:"column:quantity;not null"`
	Food         types.FoodSnapshot `gorm:"column:food;serializer:json"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the goose-managed table name.
func (CartLine) TableName() string {
	return "cart_lines"
}

package models

import "time"

// Slot is a named key/value cell in the local store. Slots back the
// migration backup snapshot and the last-order-id resume key.
type Slot struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the goose-managed table name.
func (Slot) TableName() string {
	return "slots"
}

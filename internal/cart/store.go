package cart

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/batjin/foodrush-storefront/pkg/db/models"
	pkgerrors "github.com/batjin/foodrush-storefront/pkg/errors"
	"github.com/batjin/foodrush-storefront/pkg/events"
	"github.com/batjin/foodrush-storefront/pkg/logger"
)

// Slot keys used by the store. The backup slot holds the pre-migration
// snapshot; the last-order slot lets payment polling resume after a restart.
const (
	SlotBackup      = "cart_backup"
	SlotLastOrderID = "last_order_id"
)

// DBClient is the slice of the sqlite client the store needs.
type DBClient interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StoreParams carries the dependencies for NewStore.
type StoreParams struct {
	DB     DBClient
	Bus    *events.Bus
	Logger *logger.Logger
}

// Store is the device-local guest cart. Every mutation persists before it
// returns and then announces itself on the bus; readers always re-load from
// the table rather than caching lines in memory.
type Store struct {
	db   DBClient
	bus  *events.Bus
	logg *logger.Logger
}

func NewStore(params StoreParams) (*Store, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client is required")
	}
	if params.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Store{db: params.DB, bus: params.Bus, logg: params.Logger}, nil
}

// Recover applies the startup rule: a leftover backup snapshot next to an
// empty cart table means a migration crashed between clearing the local cart
// and confirming the upload, so the snapshot is restored. A non-empty cart
// wins over the snapshot; the stale backup is discarded.
func (s *Store) Recover(ctx context.Context) error {
	backup, ok, err := s.readSlot(ctx, SlotBackup)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var count int64
	if err := s.db.DB().WithContext(ctx).Model(&models.CartLine{}).Count(&count).Error; err != nil {
		return fmt.Errorf("counting cart lines: %w", err)
	}
	if count > 0 {
		s.logg.Warn(ctx, "stale cart backup found next to a non-empty cart, discarding it")
		return s.clearSlot(ctx, SlotBackup)
	}

	lines := DecodeLines([]byte(backup))
	if err := s.replaceAll(ctx, lines); err != nil {
		return fmt.Errorf("restoring cart backup: %w", err)
	}
	if err := s.clearSlot(ctx, SlotBackup); err != nil {
		return err
	}
	s.logg.Info(s.logg.WithField(ctx, "lines", len(lines)), "restored cart from backup snapshot")
	s.bus.Publish(events.CartChanged{})
	return nil
}

// Load returns the current guest cart. Rows that no longer resolve to a food
// id are dropped rather than surfaced.
func (s *Store) Load(ctx context.Context) ([]Line, error) {
	var rows []models.CartLine
	if err := s.db.DB().WithContext(ctx).Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading cart lines: %w", err)
	}

	lines := make([]Line, 0, len(rows))
	for _, row := range rows {
		if row.FoodID == "" {
			continue
		}
		lines = Merge(lines, lineFromRow(row))
	}
	return lines, nil
}

// Add inserts a line, absorbing it into an existing row when one already
// holds the same (foodId, selectedSize) variant.
func (s *Store) Add(ctx context.Context, line Line) error {
	if line.FoodID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart line has no food id")
	}
	line.Quantity = ClampQuantity(line.Quantity)

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		row, found, err := findVariant(tx, line)
		if err != nil {
			return err
		}
		if found {
			return tx.Model(&row).Update("quantity", row.Quantity+line.Quantity).Error
		}
		return tx.Create(&models.CartLine{
			FoodID:       line.FoodID,
			SelectedSize: line.SelectedSize,
			Quantity:     line.Quantity,
			Food:         line.Food,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("adding cart line: %w", err)
	}

	s.bus.Publish(events.CartChanged{})
	return nil
}

// SetQuantity replaces the quantity of the matching variant. Values below
// one are clamped to one; removal is its own operation.
func (s *Store) SetQuantity(ctx context.Context, line Line, quantity int) error {
	quantity = ClampQuantity(quantity)

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		row, found, err := findVariant(tx, line)
		if err != nil {
			return err
		}
		if !found {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
		}
		return tx.Model(&row).Update("quantity", quantity).Error
	})
	if err != nil {
		return err
	}

	s.bus.Publish(events.CartChanged{})
	return nil
}

// Remove deletes the matching variant. Removing a line that is already gone
// is not an error.
func (s *Store) Remove(ctx context.Context, line Line) error {
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		row, found, err := findVariant(tx, line)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		return tx.Delete(&row).Error
	})
	if err != nil {
		return fmt.Errorf("removing cart line: %w", err)
	}

	s.bus.Publish(events.CartChanged{})
	return nil
}

// Clear empties the guest cart.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.db.DB().WithContext(ctx).Where("1 = 1").Delete(&models.CartLine{}).Error; err != nil {
		return fmt.Errorf("clearing cart lines: %w", err)
	}
	s.bus.Publish(events.CartChanged{})
	return nil
}

// ReplaceAll swaps the whole cart for the given lines in one transaction.
func (s *Store) ReplaceAll(ctx context.Context, lines []Line) error {
	if err := s.replaceAll(ctx, lines); err != nil {
		return err
	}
	s.bus.Publish(events.CartChanged{})
	return nil
}

func (s *Store) replaceAll(ctx context.Context, lines []Line) error {
	merged := make([]Line, 0, len(lines))
	for _, line := range lines {
		if line.FoodID == "" {
			continue
		}
		merged = Merge(merged, line)
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.CartLine{}).Error; err != nil {
			return fmt.Errorf("clearing cart lines: %w", err)
		}
		for _, line := range merged {
			row := models.CartLine{
				FoodID:       line.FoodID,
				SelectedSize: line.SelectedSize,
				Quantity:     ClampQuantity(line.Quantity),
				Food:         line.Food,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("inserting cart line: %w", err)
			}
		}
		return nil
	})
}

// Snapshot writes the current cart into the backup slot. An existing backup
// is overwritten; the caller decides when a snapshot is safe to take.
func (s *Store) Snapshot(ctx context.Context) error {
	lines, err := s.Load(ctx)
	if err != nil {
		return err
	}
	data, err := EncodeLines(lines)
	if err != nil {
		return fmt.Errorf("encoding cart backup: %w", err)
	}
	return s.writeSlot(ctx, SlotBackup, string(data))
}

// Backup returns the lines held in the backup slot, if any.
func (s *Store) Backup(ctx context.Context) ([]Line, bool, error) {
	value, ok, err := s.readSlot(ctx, SlotBackup)
	if err != nil || !ok {
		return nil, false, err
	}
	return DecodeLines([]byte(value)), true, nil
}

// RestoreBackup replaces the cart with the backup snapshot and clears the
// slot. Restoring without a backup is a no-op.
func (s *Store) RestoreBackup(ctx context.Context) error {
	lines, ok, err := s.Backup(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := s.replaceAll(ctx, lines); err != nil {
		return err
	}
	if err := s.clearSlot(ctx, SlotBackup); err != nil {
		return err
	}
	s.bus.Publish(events.CartChanged{})
	return nil
}

// ClearBackup discards the backup snapshot once a migration is confirmed.
func (s *Store) ClearBackup(ctx context.Context) error {
	return s.clearSlot(ctx, SlotBackup)
}

// LastOrderID returns the order id recorded at checkout, if any.
func (s *Store) LastOrderID(ctx context.Context) (string, bool, error) {
	return s.readSlot(ctx, SlotLastOrderID)
}

// SetLastOrderID records the order id to resume payment polling against.
func (s *Store) SetLastOrderID(ctx context.Context, orderID string) error {
	if orderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return s.writeSlot(ctx, SlotLastOrderID, orderID)
}

// ClearLastOrderID drops the resume key once the order leaves the
// awaiting-payment states.
func (s *Store) ClearLastOrderID(ctx context.Context) error {
	return s.clearSlot(ctx, SlotLastOrderID)
}

func (s *Store) readSlot(ctx context.Context, key string) (string, bool, error) {
	var slot models.Slot
	err := s.db.DB().WithContext(ctx).First(&slot, "key = ?", key).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading slot %s: %w", key, err)
	}
	return slot.Value, true, nil
}

func (s *Store) writeSlot(ctx context.Context, key string, value string) error {
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var existing models.Slot
		findErr := tx.First(&existing, "key = ?", key).Error
		if findErr == gorm.ErrRecordNotFound {
			return tx.Create(&models.Slot{Key: key, Value: value}).Error
		}
		if findErr != nil {
			return findErr
		}
		return tx.Model(&existing).Update("value", value).Error
	})
	if err != nil {
		return fmt.Errorf("writing slot %s: %w", key, err)
	}
	return nil
}

func (s *Store) clearSlot(ctx context.Context, key string) error {
	if err := s.db.DB().WithContext(ctx).Delete(&models.Slot{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("clearing slot %s: %w", key, err)
	}
	return nil
}

func findVariant(tx *gorm.DB, line Line) (models.CartLine, bool, error) {
	query := tx.Where("food_id = ?", line.FoodID)
	if line.SelectedSize == nil {
		query = query.Where("selected_size IS NULL")
	} else {
		query = query.Where("selected_size = ?", *line.SelectedSize)
	}

	var row models.CartLine
	err := query.First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return models.CartLine{}, false, nil
	}
	if err != nil {
		return models.CartLine{}, false, fmt.Errorf("finding cart line: %w", err)
	}
	return row, true, nil
}

func lineFromRow(row models.CartLine) Line {
	return Line{
		FoodID:       row.FoodID,
		Quantity:     ClampQuantity(row.Quantity),
		SelectedSize: row.SelectedSize,
		Food:         row.Food,
	}
}

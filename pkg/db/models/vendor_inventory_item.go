package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuseats/campuseats-backend/pkg/enums"
)

// VendorInventoryItem is one stock line of a vendor. Quantity never goes
// negative; decrements are issued as guarded updates.
type VendorInventoryItem struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	VendorID  uuid.UUID      `gorm:"column:vendor_id;type:uuid;not null;uniqueIndex:idx_vendor_item_kind"`
	ItemID    uuid.UUID      `gorm:"column:item_id;type:uuid;not null;uniqueIndex:idx_vendor_item_kind"`
	Kind      enums.ItemKind `gorm:"column:kind;type:text;not null;uniqueIndex:idx_vendor_item_kind"`
	// no gorm default tags on flags: gorm skips zero values that carry a
	// default, which would persist an unavailable line as available
	Quantity  int            `gorm:"column:quantity;not null"`
	Available bool           `gorm:"column:available;not null"`
	Special   bool           `gorm:"column:special;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *VendorInventoryItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuseats/campuseats-backend/pkg/enums"
)

// OrderItem is one line of an order or transfer manifest.
type OrderItem struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID      `gorm:"column:order_id;type:uuid;not null;index"`
	ItemID     uuid.UUID      `gorm:"column:item_id;type:uuid;not null"`
	Kind       enums.ItemKind `gorm:"column:kind;type:text;not null"`
	Quantity   int            `gorm:"column:quantity;not null"`
	PriceCents int            `gorm:"column:price_cents;not null;default:0"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuseats/campuseats-backend/pkg/enums"
)

// CatalogItem is the shared item master record resolved for names and
// pricing; vendor stock references it by (item_id, kind).
type CatalogItem struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Name       string         `gorm:"column:name;type:text;not null"`
	Kind       enums.ItemKind `gorm:"column:kind;type:text;not null;index"`
	Unit       string         `gorm:"column:unit;type:text;not null;default:'piece'"`
	PriceCents int            `gorm:"column:price_cents;not null;default:0"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *CatalogItem) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

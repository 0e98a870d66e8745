package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuseats/campuseats-backend/pkg/enums"
)

// Order covers both student checkouts and vendor-to-vendor transfers.
// For transfers VendorID is the sender and ReceiverVendorID the intended
// recipient; the item list doubles as the transfer manifest.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID           *uuid.UUID          `gorm:"column:user_id;type:uuid;index"`
	VendorID         uuid.UUID           `gorm:"column:vendor_id;type:uuid;not null;index"`
	ReceiverVendorID *uuid.UUID          `gorm:"column:receiver_vendor_id;type:uuid;index"`
	Category         enums.OrderCategory `gorm:"column:category;type:text;not null"`
	Status           enums.OrderStatus   `gorm:"column:status;type:text;not null;index"`
	ReserveUntil     *time.Time          `gorm:"column:reserve_until;index"`
	TotalCents       int                 `gorm:"column:total_cents;not null;default:0"`
	Items            []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

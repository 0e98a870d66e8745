package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Vendor is a campus food stall. It exclusively owns its inventory lines;
// stock is mutated only through the transfer protocol and order fulfillment.
type Vendor struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	UniversityID uuid.UUID             `gorm:"column:university_id;type:uuid;not null;index"`
	Name         string                `gorm:"column:name;type:text;not null"`
	// default lives in the SQL migration; a gorm default tag would skip
	// zero values on create and resurrect inactive vendors
	Active       bool                  `gorm:"column:active;not null"`
	Inventory    []VendorInventoryItem `gorm:"foreignKey:VendorID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *Vendor) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

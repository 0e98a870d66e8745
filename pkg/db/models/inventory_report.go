package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuseats/campuseats-backend/pkg/enums"
)

// InventoryReport is the per-vendor, per-business-day stock ledger. It is
// created lazily on the first mutation of the day and never deleted here.
type InventoryReport struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	VendorID   uuid.UUID        `gorm:"column:vendor_id;type:uuid;not null;uniqueIndex:idx_report_vendor_date"`
	ReportDate time.Time        `gorm:"column:report_date;not null;uniqueIndex:idx_report_vendor_date"`
	Entries    []ReportEntry    `gorm:"foreignKey:ReportID;constraint:OnDelete:CASCADE"`
	Transfers  []ReportTransfer `gorm:"foreignKey:ReportID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *InventoryReport) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ReportEntry tracks opening/closing/sold quantities for one item for the
// report's day. ClosingQty mirrors the vendor's live stock after every
// confirmed mutation of the day.
type ReportEntry struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	ReportID   uuid.UUID      `gorm:"column:report_id;type:uuid;not null;uniqueIndex:idx_entry_report_item"`
	ItemID     uuid.UUID      `gorm:"column:item_id;type:uuid;not null;uniqueIndex:idx_entry_report_item"`
	Kind       enums.ItemKind `gorm:"column:kind;type:text;not null;uniqueIndex:idx_entry_report_item"`
	OpeningQty int            `gorm:"column:opening_qty;not null;default:0"`
	ClosingQty int            `gorm:"column:closing_qty;not null;default:0"`
	SoldQty    int            `gorm:"column:sold_qty;not null;default:0"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (e *ReportEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// ReportTransfer is one leg of a vendor-to-vendor transfer in a day ledger.
// The unique index keys legs by (report, item, direction, counterparty) so a
// replayed confirm can only promote an existing leg, never duplicate it.
type ReportTransfer struct {
	ID                   uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ReportID             uuid.UUID               `gorm:"column:report_id;type:uuid;not null;uniqueIndex:idx_leg_report_item_dir_cp"`
	ItemID               uuid.UUID               `gorm:"column:item_id;type:uuid;not null;uniqueIndex:idx_leg_report_item_dir_cp"`
	Kind                 enums.ItemKind          `gorm:"column:kind;type:text;not null"`
	Direction            enums.TransferDirection `gorm:"column:direction;type:text;not null;uniqueIndex:idx_leg_report_item_dir_cp"`
	CounterpartyVendorID uuid.UUID               `gorm:"column:counterparty_vendor_id;type:uuid;not null;uniqueIndex:idx_leg_report_item_dir_cp"`
	Quantity             int                     `gorm:"column:quantity;not null"`
	Confirmed            bool                    `gorm:"column:confirmed;not null;default:false"`
	CreatedAt            time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *ReportTransfer) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

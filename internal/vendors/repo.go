package vendors

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuseats/campuseats-backend/pkg/db/models"
	"github.com/campuseats/campuseats-backend/pkg/enums"
	pkgerrors "github.com/campuseats/campuseats-backend/pkg/errors"
)

// Repository owns vendor aggregates and their inventory lines. Quantity
// mutations are guarded updates so a line can never go negative, whatever
// else is running concurrently.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
	ListActive(ctx context.Context) ([]models.Vendor, error)
	FindInventoryItem(ctx context.Context, vendorID, itemID uuid.UUID, kind enums.ItemKind) (*models.VendorInventoryItem, error)
	ListInventory(ctx context.Context, vendorID uuid.UUID) ([]models.VendorInventoryItem, error)
	AdjustQuantity(ctx context.Context, vendorID, itemID uuid.UUID, kind enums.ItemKind, delta int) (bool, error)
	IncrementOrCreate(ctx context.Context, vendorID, itemID uuid.UUID, kind enums.ItemKind, qty int) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&vendor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
		}
		return nil, err
	}
	return &vendor, nil
}

func (r *repository) ListActive(ctx context.Context) ([]models.Vendor, error) {
	var list []models.Vendor
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *repository) FindInventoryItem(ctx context.Context, vendorID, itemID uuid.UUID, kind enums.ItemKind) (*models.VendorInventoryItem, error) {
	var line models.VendorInventoryItem
	err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND item_id = ? AND kind = ?", vendorID, itemID, kind).
		First(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory line not found")
		}
		return nil, err
	}
	return &line, nil
}

func (r *repository) ListInventory(ctx context.Context, vendorID uuid.UUID) ([]models.VendorInventoryItem, error) {
	var lines []models.VendorInventoryItem
	err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// AdjustQuantity applies a signed delta to a line. The update only succeeds
// if the resulting quantity stays non-negative; the boolean reports whether
// the guard held.
func (r *repository) AdjustQuantity(ctx context.Context, vendorID, itemID uuid.UUID, kind enums.ItemKind, delta int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VendorInventoryItem{}).
		Where("vendor_id = ? AND item_id = ? AND kind = ? AND quantity + ? >= 0", vendorID, itemID, kind, delta).
		Update("quantity", gorm.Expr("quantity + ?", delta))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// IncrementOrCreate adds qty to an existing line, or seeds a fresh line for a
// vendor that has never stocked the item (available, non-special).
func (r *repository) IncrementOrCreate(ctx context.Context, vendorID, itemID uuid.UUID, kind enums.ItemKind, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	ok, err := r.AdjustQuantity(ctx, vendorID, itemID, kind, qty)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	line := models.VendorInventoryItem{
		VendorID:  vendorID,
		ItemID:    itemID,
		Kind:      kind,
		Quantity:  qty,
		Available: true,
		Special:   false,
	}
	return r.db.WithContext(ctx).Create(&line).Error
}

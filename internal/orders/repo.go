package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuseats/campuseats-backend/pkg/db/models"
	"github.com/campuseats/campuseats-backend/pkg/enums"
	pkgerrors "github.com/campuseats/campuseats-backend/pkg/errors"
	"github.com/campuseats/campuseats-backend/pkg/pagination"
)

// Repository persists orders for both checkout and transfer flows. All
// status changes go through guarded writes so concurrent resolvers of the
// same order cannot both win.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindExpiredPending(ctx context.Context, cutoff time.Time) ([]models.Order, error)
	FindStaleTransfers(ctx context.Context, cutoff time.Time) ([]models.Order, error)
	DeleteIfPendingPayment(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateStatusIfCurrent(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus) (bool, error)
	ListIncomingTransfers(ctx context.Context, receiverID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	CountByStatus(ctx context.Context, status enums.OrderStatus) (int64, error)
	CountExpiredPending(ctx context.Context, now time.Time) (int64, error)
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

func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindExpiredPending(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var list []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("status = ? AND reserve_until IS NOT NULL AND reserve_until < ?", enums.OrderStatusPendingPayment, cutoff).
		Order("reserve_until ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *repository) FindStaleTransfers(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var list []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("category = ? AND status = ? AND created_at < ?", enums.OrderCategoryTransfer, enums.OrderStatusOnTheWay, cutoff).
		Order("created_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// DeleteIfPendingPayment removes the order only if it is still awaiting
// payment at delete time. Zero affected rows means another actor already
// resolved the order; the caller must then release nothing.
func (r *repository) DeleteIfPendingPayment(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, enums.OrderStatusPendingPayment).
		Delete(&models.Order{})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	// Pull the order's item rows in the same transaction so user and vendor
	// active-order views stop referencing it.
	if err := r.db.WithContext(ctx).Where("order_id = ?", id).Delete(&models.OrderItem{}).Error; err != nil {
		return false, err
	}
	return true, nil
}

// UpdateStatusIfCurrent performs a guarded transition and reports whether
// the order was still in the expected source state.
func (r *repository) UpdateStatusIfCurrent(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, "illegal order status transition")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListIncomingTransfers(ctx context.Context, receiverID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).
		Preload("Items").
		Where("receiver_vendor_id = ? AND category = ? AND status = ?",
			receiverID, enums.OrderCategoryTransfer, enums.OrderStatusOnTheWay).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit + 1)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		query = query.Where("(created_at, id) > (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var list []models.Order
	if err := query.Find(&list).Error; err != nil {
		return nil, "", err
	}

	next := ""
	if len(list) > limit {
		list = list[:limit]
		last := list[len(list)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return list, next, nil
}

func (r *repository) CountByStatus(ctx context.Context, status enums.OrderStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

func (r *repository) CountExpiredPending(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status = ? AND reserve_until IS NOT NULL AND reserve_until < ?", enums.OrderStatusPendingPayment, now).
		Count(&count).Error
	return count, err
}

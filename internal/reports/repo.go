package reports

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/campuseats/campuseats-backend/pkg/db/models"
	"github.com/campuseats/campuseats-backend/pkg/enums"
	pkgerrors "github.com/campuseats/campuseats-backend/pkg/errors"
)

// Repository persists per-vendor daily inventory reports and their
// transfer legs. Leg writes are keyed by (report, item, direction,
// counterparty) so replays can only touch the existing row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByVendorAndDay(ctx context.Context, vendorID uuid.UUID, dayStart time.Time) (*models.InventoryReport, error)
	FindOrCreate(ctx context.Context, vendorID uuid.UUID, dayStart time.Time) (*models.InventoryReport, error)
	Create(ctx context.Context, report *models.InventoryReport) error
	UpsertEntry(ctx context.Context, entry *models.ReportEntry) error
	InsertLegIfMissing(ctx context.Context, leg *models.ReportTransfer) (bool, error)
	ConfirmLeg(ctx context.Context, reportID, itemID uuid.UUID, direction enums.TransferDirection, counterpartyID uuid.UUID) (bool, error)
	DeleteUnconfirmedLeg(ctx context.Context, reportID, itemID uuid.UUID, direction enums.TransferDirection, counterpartyID uuid.UUID) (bool, error)
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

func (r *repository) FindByVendorAndDay(ctx context.Context, vendorID uuid.UUID, dayStart time.Time) (*models.InventoryReport, error) {
	var report models.InventoryReport
	err := r.db.WithContext(ctx).
		Preload("Entries").
		Preload("Transfers").
		Where("vendor_id = ? AND report_date = ?", vendorID, dayStart).
		First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory report not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load inventory report")
	}
	return &report, nil
}

// FindOrCreate returns the vendor's report for the day, creating an empty
// one when the day has seen no mutation yet.
func (r *repository) FindOrCreate(ctx context.Context, vendorID uuid.UUID, dayStart time.Time) (*models.InventoryReport, error) {
	report, err := r.FindByVendorAndDay(ctx, vendorID, dayStart)
	if err == nil {
		return report, nil
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		return nil, err
	}
	fresh := &models.InventoryReport{VendorID: vendorID, ReportDate: dayStart}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(fresh).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create inventory report")
	}
	// re-read to cover the lost-create race and load associations
	return r.FindByVendorAndDay(ctx, vendorID, dayStart)
}

func (r *repository) Create(ctx context.Context, report *models.InventoryReport) error {
	if err := r.db.WithContext(ctx).Create(report).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create inventory report")
	}
	return nil
}

// UpsertEntry writes one item's opening/closing snapshot, replacing the
// quantities of an existing row for the same (report, item, kind).
func (r *repository) UpsertEntry(ctx context.Context, entry *models.ReportEntry) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "report_id"}, {Name: "item_id"}, {Name: "kind"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"opening_qty", "closing_qty", "updated_at"}),
		}).
		Create(entry).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to upsert report entry")
	}
	return nil
}

// InsertLegIfMissing appends a transfer leg unless the keyed row already
// exists. Returns whether a new row was written.
func (r *repository) InsertLegIfMissing(ctx context.Context, leg *models.ReportTransfer) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(leg)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "failed to insert transfer leg")
	}
	return res.RowsAffected > 0, nil
}

// ConfirmLeg promotes an existing leg to confirmed. Confirming an already
// confirmed leg affects zero rows and is reported as ok=false.
func (r *repository) ConfirmLeg(ctx context.Context, reportID, itemID uuid.UUID, direction enums.TransferDirection, counterpartyID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ReportTransfer{}).
		Where("report_id = ? AND item_id = ? AND direction = ? AND counterparty_vendor_id = ? AND confirmed = ?",
			reportID, itemID, direction, counterpartyID, false).
		Update("confirmed", true)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "failed to confirm transfer leg")
	}
	return res.RowsAffected > 0, nil
}

// DeleteUnconfirmedLeg removes a leg that never reached confirmation, used
// when an expired transfer is rolled back. Confirmed legs are never touched.
func (r *repository) DeleteUnconfirmedLeg(ctx context.Context, reportID, itemID uuid.UUID, direction enums.TransferDirection, counterpartyID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("report_id = ? AND item_id = ? AND direction = ? AND counterparty_vendor_id = ? AND confirmed = ?",
			reportID, itemID, direction, counterpartyID, false).
		Delete(&models.ReportTransfer{})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "failed to delete transfer leg")
	}
	return res.RowsAffected > 0, nil
}

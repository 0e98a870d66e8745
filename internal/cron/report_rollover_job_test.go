package cron

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuseats/campuseats-backend/internal/catalog"
	"github.com/campuseats/campuseats-backend/internal/reports"
	"github.com/campuseats/campuseats-backend/internal/vendors"
	"github.com/campuseats/campuseats-backend/pkg/db/models"
	"github.com/campuseats/campuseats-backend/pkg/enums"
)

func newRolloverFixture(t *testing.T) (*gorm.DB, Job) {
	t.Helper()
	db := newJobDB(t, "rollover")
	logg := testLogger()

	active := &models.Vendor{UniversityID: uuid.New(), Name: "North Canteen", Active: true}
	inactive := &models.Vendor{UniversityID: active.UniversityID, Name: "Closed Stall", Active: false}
	item := &models.CatalogItem{Name: "Samosa", Kind: enums.ItemKindRetail, Unit: "piece"}
	for _, rec := range []any{active, inactive, item} {
		if err := db.Create(rec).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := db.Create(&models.VendorInventoryItem{
		VendorID: active.ID, ItemID: item.ID, Kind: enums.ItemKindRetail, Quantity: 8, Available: true,
	}).Error; err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	vendorRepo := vendors.NewRepository(db)
	reportSvc, err := reports.NewService(reports.NewRepository(db), vendorRepo, catalog.NewRepository(db), jobTxRunner{db}, "Asia/Kolkata")
	if err != nil {
		t.Fatalf("reports service: %v", err)
	}
	job, err := NewReportRolloverJob(ReportRolloverJobParams{
		Logger:  logg,
		Vendors: vendorRepo,
		Reports: reportSvc,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return db, job
}

func TestRolloverOpensLedgersForActiveVendorsOnly(t *testing.T) {
	t.Parallel()

	db, job := newRolloverFixture(t)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	var count int64
	if err := db.Model(&models.InventoryReport{}).Count(&count).Error; err != nil {
		t.Fatalf("count reports: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one report for the active vendor, got %d", count)
	}

	var entry models.ReportEntry
	if err := db.First(&entry).Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if entry.OpeningQty != 8 || entry.ClosingQty != 8 {
		t.Fatalf("expected opening/closing 8/8 from live stock, got %d/%d", entry.OpeningQty, entry.ClosingQty)
	}
}

func TestRolloverIsIdempotentAcrossRuns(t *testing.T) {
	t.Parallel()

	db, job := newRolloverFixture(t)
	ctx := context.Background()
	if err := job.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := job.Run(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var count int64
	if err := db.Model(&models.InventoryReport{}).Count(&count).Error; err != nil {
		t.Fatalf("count reports: %v", err)
	}
	if count != 1 {
		t.Fatalf("rerun must not duplicate the report, got %d", count)
	}
}

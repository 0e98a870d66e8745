package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuseats/campuseats-backend/internal/catalog"
	"github.com/campuseats/campuseats-backend/internal/orders"
	"github.com/campuseats/campuseats-backend/internal/reports"
	"github.com/campuseats/campuseats-backend/internal/transfers"
	"github.com/campuseats/campuseats-backend/internal/universities"
	"github.com/campuseats/campuseats-backend/internal/vendors"
	"github.com/campuseats/campuseats-backend/pkg/db/models"
	"github.com/campuseats/campuseats-backend/pkg/enums"
	"github.com/campuseats/campuseats-backend/pkg/outbox"
)

type transferFixture struct {
	db        *gorm.DB
	job       Job
	transfers transfers.Service
	reports   reports.Service
	sender    *models.Vendor
	receiver  *models.Vendor
	item      *models.CatalogItem
}

func newTransferFixture(t *testing.T, window time.Duration) *transferFixture {
	t.Helper()
	db := newJobDB(t, "transfer_ttl")
	logg := testLogger()

	campus := &models.University{ID: uuid.New(), Name: "IIT Bombay", City: "Mumbai"}
	sender := &models.Vendor{UniversityID: campus.ID, Name: "North Canteen", Active: true}
	receiver := &models.Vendor{UniversityID: campus.ID, Name: "South Canteen", Active: true}
	item := &models.CatalogItem{Name: "Samosa", Kind: enums.ItemKindRetail, Unit: "piece"}
	for _, rec := range []any{campus, sender, receiver, item} {
		if err := db.Create(rec).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := db.Create(&models.VendorInventoryItem{
		VendorID: sender.ID, ItemID: item.ID, Kind: enums.ItemKindRetail, Quantity: 10, Available: true,
	}).Error; err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	tx := jobTxRunner{db}
	orderRepo := orders.NewRepository(db)
	vendorRepo := vendors.NewRepository(db)
	catalogRepo := catalog.NewRepository(db)
	reportRepo := reports.NewRepository(db)
	reportSvc, err := reports.NewService(reportRepo, vendorRepo, catalogRepo, tx, "Asia/Kolkata")
	if err != nil {
		t.Fatalf("reports service: %v", err)
	}
	publisher := outbox.NewService(outbox.NewRepository(db), logg)
	transferSvc, err := transfers.NewService(orderRepo, vendorRepo, catalogRepo, reportRepo, universities.NewRepository(db), reportSvc, tx, publisher)
	if err != nil {
		t.Fatalf("transfers service: %v", err)
	}
	job, err := NewTransferTTLJob(TransferTTLJobParams{
		Logger:  logg,
		DB:      tx,
		Orders:  orderRepo,
		Vendors: vendorRepo,
		Reports: reportRepo,
		Days:    reportSvc,
		Outbox:  publisher,
		Window:  window,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return &transferFixture{
		db:        db,
		job:       job,
		transfers: transferSvc,
		reports:   reportSvc,
		sender:    sender,
		receiver:  receiver,
		item:      item,
	}
}

func (f *transferFixture) initiate(t *testing.T, qty int) uuid.UUID {
	t.Helper()
	result, err := f.transfers.Initiate(context.Background(), transfers.InitiateInput{
		SenderVendorID:   f.sender.ID,
		ReceiverVendorID: f.receiver.ID,
		Lines:            []transfers.TransferLine{{ItemID: f.item.ID, Kind: enums.ItemKindRetail, Quantity: qty}},
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	return result.OrderID
}

func (f *transferFixture) senderQty(t *testing.T) int {
	t.Helper()
	var line models.VendorInventoryItem
	if err := f.db.Where("vendor_id = ? AND item_id = ?", f.sender.ID, f.item.ID).First(&line).Error; err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return line.Quantity
}

func TestTransferTTLRollsBackStaleTransfer(t *testing.T) {
	t.Parallel()

	// zero-width window so the freshly initiated transfer is already stale
	f := newTransferFixture(t, time.Nanosecond)
	ctx := context.Background()
	orderID := f.initiate(t, 4)

	if f.senderQty(t) != 6 {
		t.Fatalf("expected sender stock 6 after initiate, got %d", f.senderQty(t))
	}
	time.Sleep(10 * time.Millisecond)

	if err := f.job.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if f.senderQty(t) != 10 {
		t.Fatalf("rollback must restore sender stock, got %d", f.senderQty(t))
	}

	var order models.Order
	if err := f.db.First(&order, "id = ?", orderID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", order.Status)
	}

	// the unconfirmed send leg leaves the sender's ledger
	var legs int64
	if err := f.db.Model(&models.ReportTransfer{}).Count(&legs).Error; err != nil {
		t.Fatalf("count legs: %v", err)
	}
	if legs != 0 {
		t.Fatalf("expected no remaining legs, got %d", legs)
	}

	var expiredEvents int64
	err := f.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventTransferExpired).
		Count(&expiredEvents).Error
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if expiredEvents != 1 {
		t.Fatalf("expected one transfer.expired event, got %d", expiredEvents)
	}
}

func TestTransferTTLLeavesFreshTransfersAlone(t *testing.T) {
	t.Parallel()

	f := newTransferFixture(t, 7*24*time.Hour)
	orderID := f.initiate(t, 4)

	if err := f.job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	var order models.Order
	if err := f.db.First(&order, "id = ?", orderID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.Status != enums.OrderStatusOnTheWay {
		t.Fatalf("fresh transfer must stay on_the_way, got %s", order.Status)
	}
	if f.senderQty(t) != 6 {
		t.Fatal("fresh transfer stock must stay decremented")
	}
}

func TestTransferTTLSkipsConfirmedTransfer(t *testing.T) {
	t.Parallel()

	f := newTransferFixture(t, time.Nanosecond)
	ctx := context.Background()
	orderID := f.initiate(t, 4)
	if err := f.transfers.Confirm(ctx, orderID, f.receiver.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if err := f.job.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	var order models.Order
	if err := f.db.First(&order, "id = ?", orderID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.Status != enums.OrderStatusCompleted {
		t.Fatalf("confirmed transfer must stay completed, got %s", order.Status)
	}
	if f.senderQty(t) != 6 {
		t.Fatal("confirmed transfer must not be rolled back")
	}
}

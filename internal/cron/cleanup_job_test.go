package cron

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/campuseats/campuseats-backend/internal/locks"
	"github.com/campuseats/campuseats-backend/internal/orders"
	"github.com/campuseats/campuseats-backend/pkg/db/models"
	"github.com/campuseats/campuseats-backend/pkg/enums"
	"github.com/campuseats/campuseats-backend/pkg/logger"
	"github.com/campuseats/campuseats-backend/pkg/outbox"
)

type jobTxRunner struct {
	db *gorm.DB
}

func (r jobTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newJobDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := "file:" + name + "_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&models.University{},
		&models.Vendor{}, &models.VendorInventoryItem{}, &models.CatalogItem{},
		&models.Order{}, &models.OrderItem{},
		&models.InventoryReport{}, &models.ReportEntry{}, &models.ReportTransfer{},
		&models.OutboxEvent{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func seedPendingOrder(t *testing.T, db *gorm.DB, reserveUntil time.Time) *models.Order {
	t.Helper()
	userID := uuid.New()
	order := &models.Order{
		UserID:       &userID,
		VendorID:     uuid.New(),
		Category:     enums.OrderCategoryCheckout,
		Status:       enums.OrderStatusPendingPayment,
		ReserveUntil: &reserveUntil,
		Items: []models.OrderItem{
			{ItemID: uuid.New(), Kind: enums.ItemKindRetail, Quantity: 2},
		},
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func newCleanupJob(t *testing.T, db *gorm.DB, cache *locks.Cache) Job {
	t.Helper()
	logg := testLogger()
	job, err := NewCleanupJob(CleanupJobParams{
		Logger: logg,
		DB:     jobTxRunner{db},
		Orders: orders.NewRepository(db),
		Locks:  cache,
		Outbox: outbox.NewService(outbox.NewRepository(db), logg),
	})
	if err != nil {
		t.Fatalf("new cleanup job: %v", err)
	}
	return job
}

func TestCleanupReclaimsExpiredReservation(t *testing.T) {
	t.Parallel()

	db := newJobDB(t, "cleanup")
	cache := locks.NewCache(nil)
	order := seedPendingOrder(t, db, time.Now().Add(-time.Hour))

	key := locks.Key{ItemID: order.Items[0].ItemID, Kind: enums.ItemKindRetail, VendorID: order.VendorID}
	if err := cache.Acquire(key, order.ID.String(), 2, time.Hour); err != nil {
		t.Fatalf("seed hold: %v", err)
	}

	job := newCleanupJob(t, db, cache)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	var count int64
	if err := db.Model(&models.Order{}).Where("id = ?", order.ID).Count(&count).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 0 {
		t.Fatal("expired order must be deleted")
	}
	if _, held := cache.HolderOf(key); held {
		t.Fatal("sweep must release the order's hold")
	}

	var event models.OutboxEvent
	if err := db.First(&event).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if event.EventType != enums.EventOrderExpired {
		t.Fatalf("expected order.expired event, got %s", event.EventType)
	}
}

func TestCleanupSkipsOrderResolvedConcurrently(t *testing.T) {
	t.Parallel()

	db := newJobDB(t, "cleanup_race")
	cache := locks.NewCache(nil)
	order := seedPendingOrder(t, db, time.Now().Add(-time.Hour))

	// payment completion holds the lock under the completed order's name
	key := locks.Key{ItemID: order.Items[0].ItemID, Kind: enums.ItemKindRetail, VendorID: order.VendorID}
	if err := cache.Acquire(key, order.ID.String(), 2, time.Hour); err != nil {
		t.Fatalf("seed hold: %v", err)
	}

	// payment wins the race between the sweep's query and its guarded delete
	res := db.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, enums.OrderStatusPendingPayment).
		Update("status", enums.OrderStatusCompleted)
	if res.Error != nil || res.RowsAffected != 1 {
		t.Fatalf("simulate payment: affected=%d err=%v", res.RowsAffected, res.Error)
	}

	job := newCleanupJob(t, db, cache)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	var loaded models.Order
	if err := db.First(&loaded, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("completed order must survive the sweep: %v", err)
	}
	if loaded.Status != enums.OrderStatusCompleted {
		t.Fatalf("unexpected status %s", loaded.Status)
	}
	if _, held := cache.HolderOf(key); !held {
		t.Fatal("sweep must not release locks for an order it did not delete")
	}

	var events int64
	if err := db.Model(&models.OutboxEvent{}).Count(&events).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if events != 0 {
		t.Fatal("skipped order must not emit an expiry event")
	}
}

func TestCleanupContinuesPastFreshOrders(t *testing.T) {
	t.Parallel()

	db := newJobDB(t, "cleanup_fresh")
	cache := locks.NewCache(nil)
	expired := seedPendingOrder(t, db, time.Now().Add(-time.Hour))
	fresh := seedPendingOrder(t, db, time.Now().Add(time.Hour))

	job := newCleanupJob(t, db, cache)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	var count int64
	if err := db.Model(&models.Order{}).Where("id = ?", expired.ID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatal("expired order must go")
	}
	if err := db.Model(&models.Order{}).Where("id = ?", fresh.ID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatal("fresh order must stay")
	}
}

package checkout

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/campuseats/campuseats-backend/internal/catalog"
	"github.com/campuseats/campuseats-backend/internal/locks"
	"github.com/campuseats/campuseats-backend/internal/orders"
	"github.com/campuseats/campuseats-backend/internal/vendors"
	"github.com/campuseats/campuseats-backend/pkg/db/models"
	"github.com/campuseats/campuseats-backend/pkg/enums"
	pkgerrors "github.com/campuseats/campuseats-backend/pkg/errors"
	"github.com/campuseats/campuseats-backend/pkg/logger"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fixture struct {
	db     *gorm.DB
	svc    Service
	cache  *locks.Cache
	vendor *models.Vendor
	user   uuid.UUID
	item   *models.CatalogItem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&models.Vendor{}, &models.VendorInventoryItem{}, &models.CatalogItem{},
		&models.Order{}, &models.OrderItem{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	vendor := &models.Vendor{UniversityID: uuid.New(), Name: "North Canteen", Active: true}
	item := &models.CatalogItem{Name: "Samosa", Kind: enums.ItemKindRetail, Unit: "piece", PriceCents: 1500}
	if err := db.Create(vendor).Error; err != nil {
		t.Fatalf("seed vendor: %v", err)
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	line := &models.VendorInventoryItem{
		VendorID:  vendor.ID,
		ItemID:    item.ID,
		Kind:      enums.ItemKindRetail,
		Quantity:  10,
		Available: true,
	}
	if err := db.Create(line).Error; err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	cache := locks.NewCache(nil)
	logg := logger.New(logger.Options{ServiceName: "checkout-test", Output: io.Discard})
	svc, err := NewService(orders.NewRepository(db), vendors.NewRepository(db), catalog.NewRepository(db), cache, gormTxRunner{db}, logg, 15*time.Minute)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{db: db, svc: svc, cache: cache, vendor: vendor, user: uuid.New(), item: item}
}

func (f *fixture) lockKey() locks.Key {
	return locks.Key{ItemID: f.item.ID, Kind: enums.ItemKindRetail, VendorID: f.vendor.ID}
}

func TestCreateOrderReservesStock(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	result, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID:   f.user,
		VendorID: f.vendor.ID,
		Lines:    []OrderLine{{ItemID: f.item.ID, Kind: enums.ItemKindRetail, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if result.TotalCents != 3000 {
		t.Fatalf("expected total 3000, got %d", result.TotalCents)
	}
	if !result.ReserveUntil.After(time.Now()) {
		t.Fatal("reservation deadline must be in the future")
	}

	holder, ok := f.cache.HolderOf(f.lockKey())
	if !ok || holder != result.OrderID.String() {
		t.Fatalf("expected order to hold the lock, got %q ok=%v", holder, ok)
	}

	var order models.Order
	if err := f.db.Preload("Items").First(&order, "id = ?", result.OrderID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.Status != enums.OrderStatusPendingPayment || len(order.Items) != 1 {
		t.Fatalf("unexpected order: status=%s items=%d", order.Status, len(order.Items))
	}
	if order.ReserveUntil == nil {
		t.Fatal("order must carry the reservation deadline")
	}
}

func TestSecondCheckoutConflictsOnHeldLine(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	lines := []OrderLine{{ItemID: f.item.ID, Kind: enums.ItemKindRetail, Quantity: 2}}

	first, err := f.svc.CreateOrder(ctx, CreateOrderInput{UserID: f.user, VendorID: f.vendor.ID, Lines: lines})
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}

	_, err = f.svc.CreateOrder(ctx, CreateOrderInput{UserID: uuid.New(), VendorID: f.vendor.ID, Lines: lines})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict on held line, got %v", err)
	}

	// the loser must not leave half-taken holds behind
	holder, ok := f.cache.HolderOf(f.lockKey())
	if !ok || holder != first.OrderID.String() {
		t.Fatalf("winner's hold must survive, got %q ok=%v", holder, ok)
	}
}

func TestConflictRollsBackEarlierHolds(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	second := &models.CatalogItem{Name: "Chai", Kind: enums.ItemKindRetail, Unit: "cup", PriceCents: 500}
	if err := f.db.Create(second).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	if err := f.db.Create(&models.VendorInventoryItem{
		VendorID: f.vendor.ID, ItemID: second.ID, Kind: enums.ItemKindRetail, Quantity: 5, Available: true,
	}).Error; err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	// another checkout already holds the second line
	blockerKey := locks.Key{ItemID: second.ID, Kind: enums.ItemKindRetail, VendorID: f.vendor.ID}
	if err := f.cache.Acquire(blockerKey, "blocker", 1, time.Minute); err != nil {
		t.Fatalf("seed blocking hold: %v", err)
	}

	_, err := f.svc.CreateOrder(ctx, CreateOrderInput{
		UserID:   f.user,
		VendorID: f.vendor.ID,
		Lines: []OrderLine{
			{ItemID: f.item.ID, Kind: enums.ItemKindRetail, Quantity: 1},
			{ItemID: second.ID, Kind: enums.ItemKindRetail, Quantity: 1},
		},
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, held := f.cache.HolderOf(f.lockKey()); held {
		t.Fatal("hold on the first line must be rolled back after the conflict")
	}
}

func TestCompletePaymentReleasesLocks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.CreateOrder(ctx, CreateOrderInput{
		UserID:   f.user,
		VendorID: f.vendor.ID,
		Lines:    []OrderLine{{ItemID: f.item.ID, Kind: enums.ItemKindRetail, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := f.svc.CompletePayment(ctx, result.OrderID); err != nil {
		t.Fatalf("complete payment: %v", err)
	}
	if _, held := f.cache.HolderOf(f.lockKey()); held {
		t.Fatal("completed payment must release the hold")
	}

	var order models.Order
	if err := f.db.First(&order, "id = ?", result.OrderID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.Status != enums.OrderStatusCompleted {
		t.Fatalf("expected completed, got %s", order.Status)
	}

	// a second resolution attempt loses the guarded transition
	err = f.svc.FailPayment(ctx, result.OrderID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict on re-resolution, got %v", err)
	}
}

func TestCreateOrderRejectsUnavailableStock(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID:   f.user,
		VendorID: f.vendor.ID,
		Lines:    []OrderLine{{ItemID: f.item.ID, Kind: enums.ItemKindRetail, Quantity: 50}},
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, held := f.cache.HolderOf(f.lockKey()); held {
		t.Fatal("failed checkout must not leave holds")
	}
}

func TestCreateOrderRejectsLineMarkedUnavailable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	offMenu := &models.CatalogItem{Name: "Vada Pav", Kind: enums.ItemKindRetail, Unit: "piece", PriceCents: 1200}
	if err := f.db.Create(offMenu).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	line := &models.VendorInventoryItem{
		VendorID:  f.vendor.ID,
		ItemID:    offMenu.ID,
		Kind:      enums.ItemKindRetail,
		Quantity:  10,
		Available: false,
	}
	if err := f.db.Create(line).Error; err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	// the flag must survive the round trip before it can gate anything
	var persisted models.VendorInventoryItem
	if err := f.db.First(&persisted, "id = ?", line.ID).Error; err != nil {
		t.Fatalf("load stock: %v", err)
	}
	if persisted.Available {
		t.Fatal("unavailable line persisted as available")
	}

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID:   f.user,
		VendorID: f.vendor.ID,
		Lines:    []OrderLine{{ItemID: offMenu.ID, Kind: enums.ItemKindRetail, Quantity: 1}},
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, held := f.cache.HolderOf(locks.Key{ItemID: offMenu.ID, Kind: enums.ItemKindRetail, VendorID: f.vendor.ID}); held {
		t.Fatal("rejected checkout must not leave holds")
	}
}

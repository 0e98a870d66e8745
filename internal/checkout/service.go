package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
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

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service creates reservation-backed checkout orders and resolves them on
// payment outcome. Locks are advisory: stock correctness is enforced by the
// guarded inventory updates, the lock only stops two checkouts racing on the
// same reservation window.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	CompletePayment(ctx context.Context, orderID uuid.UUID) error
	FailPayment(ctx context.Context, orderID uuid.UUID) error
}

type service struct {
	orders  orders.Repository
	vendors vendors.Repository
	catalog catalog.Repository
	locks   *locks.Cache
	tx      txRunner
	logg    *logger.Logger
	window  time.Duration
	now     func() time.Time
}

// NewService wires checkout with its reservation window.
func NewService(orderRepo orders.Repository, vendorRepo vendors.Repository, catalogRepo catalog.Repository, cache *locks.Cache, tx txRunner, logg *logger.Logger, window time.Duration) (Service, error) {
	if orderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if vendorRepo == nil {
		return nil, fmt.Errorf("vendors repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if cache == nil {
		return nil, fmt.Errorf("lock cache required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if window <= 0 {
		window = locks.DefaultTTL
	}
	return &service{
		orders:  orderRepo,
		vendors: vendorRepo,
		catalog: catalogRepo,
		locks:   cache,
		tx:      tx,
		logg:    logg,
		window:  window,
		now:     time.Now,
	}, nil
}

// OrderLine is one requested item of a checkout.
type OrderLine struct {
	ItemID   uuid.UUID      `json:"itemId"`
	Kind     enums.ItemKind `json:"kind"`
	Quantity int            `json:"quantity"`
}

// CreateOrderInput carries a checkout request.
type CreateOrderInput struct {
	UserID   uuid.UUID
	VendorID uuid.UUID
	Lines    []OrderLine
}

// CreateOrderResult reports the created pending order.
type CreateOrderResult struct {
	OrderID      uuid.UUID `json:"orderId"`
	TotalCents   int       `json:"totalCents"`
	ReserveUntil time.Time `json:"reserveUntil"`
}

// CreateOrder validates stock, takes a lock-cache hold per line
// (all-or-nothing) and persists a pending_payment order with the
// reservation deadline. Any acquire conflict rolls back the holds already
// taken and aborts the checkout.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if input.UserID == uuid.Nil || input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user and vendor ids required")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one order line required")
	}
	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order quantity must be positive")
		}
		if !line.Kind.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown item kind")
		}
	}

	if _, err := s.vendors.FindByID(ctx, input.VendorID); err != nil {
		return nil, err
	}

	refs := make([]catalog.ItemRef, 0, len(input.Lines))
	for _, line := range input.Lines {
		refs = append(refs, catalog.ItemRef{ItemID: line.ItemID, Kind: line.Kind})
	}
	items, err := s.catalog.FindByRefs(ctx, refs)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, line := range input.Lines {
		ref := catalog.ItemRef{ItemID: line.ItemID, Kind: line.Kind}
		item, ok := items[ref]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("item %s not found", line.ItemID))
		}
		stock, err := s.vendors.FindInventoryItem(ctx, input.VendorID, line.ItemID, line.Kind)
		if err != nil {
			return nil, err
		}
		if !stock.Available || stock.Quantity < line.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("item %s is not available in the requested quantity", line.ItemID))
		}
		total += item.PriceCents * line.Quantity
	}

	order := &models.Order{
		UserID:   &input.UserID,
		VendorID: input.VendorID,
		Category: enums.OrderCategoryCheckout,
		Status:   enums.OrderStatusPendingPayment,
	}
	order.ID = uuid.New()
	holder := order.ID.String()

	var acquired []locks.Key
	for _, line := range input.Lines {
		key := locks.Key{ItemID: line.ItemID, Kind: line.Kind, VendorID: input.VendorID}
		if err := s.locks.Acquire(key, holder, line.Quantity, s.window); err != nil {
			s.locks.ReleaseOrderLocks(acquired, holder)
			return nil, err
		}
		acquired = append(acquired, key)
	}

	reserveUntil := s.now().Add(s.window)
	order.ReserveUntil = &reserveUntil
	order.TotalCents = total
	for _, line := range input.Lines {
		order.Items = append(order.Items, models.OrderItem{
			ItemID:   line.ItemID,
			Kind:     line.Kind,
			Quantity: line.Quantity,
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.orders.WithTx(tx).Create(ctx, order)
		return err
	})
	if err != nil {
		s.locks.ReleaseOrderLocks(acquired, holder)
		return nil, err
	}

	return &CreateOrderResult{
		OrderID:      order.ID,
		TotalCents:   total,
		ReserveUntil: reserveUntil,
	}, nil
}

// CompletePayment settles a pending order. The guarded transition loses
// cleanly against a sweep that already reclaimed the reservation.
func (s *service) CompletePayment(ctx context.Context, orderID uuid.UUID) error {
	return s.resolve(ctx, orderID, enums.OrderStatusCompleted)
}

// FailPayment cancels a pending order after a declined payment.
func (s *service) FailPayment(ctx context.Context, orderID uuid.UUID) error {
	return s.resolve(ctx, orderID, enums.OrderStatusFailed)
}

func (s *service) resolve(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Category != enums.OrderCategoryCheckout {
		return pkgerrors.New(pkgerrors.CodeValidation, "order is not a checkout order")
	}

	ok, err := s.orders.UpdateStatusIfCurrent(ctx, orderID, enums.OrderStatusPendingPayment, target)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer awaiting payment")
	}

	// lock bookkeeping never blocks the transition
	keys := make([]locks.Key, 0, len(order.Items))
	for _, item := range order.Items {
		keys = append(keys, locks.Key{ItemID: item.ItemID, Kind: item.Kind, VendorID: order.VendorID})
	}
	released, notFound := s.locks.ReleaseOrderLocks(keys, orderID.String())
	if notFound > 0 {
		s.logg.Warn(s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), map[string]any{
			"released":  released,
			"not_found": notFound,
		}), "some reservation locks were already gone at payment resolution")
	}
	return nil
}

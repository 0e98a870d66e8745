package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuseats/campuseats-backend/internal/locks"
	"github.com/campuseats/campuseats-backend/internal/orders"
	"github.com/campuseats/campuseats-backend/pkg/db/models"
	"github.com/campuseats/campuseats-backend/pkg/enums"
	"github.com/campuseats/campuseats-backend/pkg/logger"
	"github.com/campuseats/campuseats-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CleanupJobParams configure the reservation expiry sweep.
type CleanupJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Orders orders.Repository
	Locks  *locks.Cache
	Outbox outboxEmitter
}

// NewCleanupJob builds the sweep that reclaims checkout reservations whose
// payment window elapsed.
func NewCleanupJob(params CleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("lock cache required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &cleanupJob{
		logg:   params.Logger,
		db:     params.DB,
		orders: params.Orders,
		locks:  params.Locks,
		outbox: params.Outbox,
		now:    time.Now,
	}, nil
}

type cleanupJob struct {
	logg   *logger.Logger
	db     txRunner
	orders orders.Repository
	locks  *locks.Cache
	outbox outboxEmitter
	now    func() time.Time
}

func (j *cleanupJob) Name() string { return "reservation-cleanup" }

// OrderExpiredEvent describes a reservation reclaimed by the sweep.
type OrderExpiredEvent struct {
	OrderID   uuid.UUID `json:"orderId"`
	VendorID  uuid.UUID `json:"vendorId"`
	ExpiredAt time.Time `json:"expiredAt"`
}

// Run never returns an error for individual orders: a failed cleanup is
// recorded and the sweep moves on, so one poisoned order cannot starve the
// rest of the queue.
func (j *cleanupJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	expired, err := j.orders.FindExpiredPending(ctx, now)
	if err != nil {
		return fmt.Errorf("query expired pending orders: %w", err)
	}

	cleaned := 0
	locksReleased := 0
	var failed []uuid.UUID
	for _, order := range expired {
		deleted, err := j.reclaim(ctx, order, now)
		if err != nil {
			failed = append(failed, order.ID)
			j.logg.Error(j.logg.WithOrderID(ctx, order.ID.String()), "order cleanup failed", err)
			continue
		}
		if !deleted {
			// another actor resolved the order first; release nothing
			continue
		}
		cleaned++

		// the lock cache is not transactional, release after commit
		keys := make([]locks.Key, 0, len(order.Items))
		for _, item := range order.Items {
			keys = append(keys, locks.Key{ItemID: item.ItemID, Kind: item.Kind, VendorID: order.VendorID})
		}
		released, notFound := j.locks.ReleaseOrderLocks(keys, order.ID.String())
		locksReleased += released
		if notFound > 0 {
			j.logg.Warn(j.logg.WithFields(j.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
				"not_found": notFound,
			}), "some locks were already gone during cleanup")
		}
	}

	purged := j.locks.PurgeExpired()

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cleaned":        cleaned,
		"locksReleased":  locksReleased,
		"failedCleanups": len(failed),
		"purgedHolds":    purged,
	}), "reservation cleanup sweep complete")
	return nil
}

func (j *cleanupJob) reclaim(ctx context.Context, order models.Order, now time.Time) (bool, error) {
	deleted := false
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := j.orders.WithTx(tx).DeleteIfPendingPayment(ctx, order.ID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		deleted = true
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			OccurredAt:    now,
			Data: OrderExpiredEvent{
				OrderID:   order.ID,
				VendorID:  order.VendorID,
				ExpiredAt: now,
			},
		})
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

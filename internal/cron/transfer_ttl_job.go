package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/campuseats/campuseats-backend/internal/orders"
	"github.com/campuseats/campuseats-backend/internal/reports"
	"github.com/campuseats/campuseats-backend/internal/vendors"
	"github.com/campuseats/campuseats-backend/pkg/db/models"
	"github.com/campuseats/campuseats-backend/pkg/enums"
	pkgerrors "github.com/campuseats/campuseats-backend/pkg/errors"
	"github.com/campuseats/campuseats-backend/pkg/logger"
	"github.com/campuseats/campuseats-backend/pkg/outbox"
)

const defaultTransferWindow = 7 * 24 * time.Hour

type dayResolver interface {
	DayStart(t time.Time) time.Time
}

// TransferTTLJobParams configure the stale transfer rollback.
type TransferTTLJobParams struct {
	Logger  *logger.Logger
	DB      txRunner
	Orders  orders.Repository
	Vendors vendors.Repository
	Reports reports.Repository
	Days    dayResolver
	Outbox  outboxEmitter
	Window  time.Duration
}

// NewTransferTTLJob builds the job that cancels transfers nobody confirmed
// within the window, returning the stock to the sender.
func NewTransferTTLJob(params TransferTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Vendors == nil {
		return nil, fmt.Errorf("vendors repository required")
	}
	if params.Reports == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	if params.Days == nil {
		return nil, fmt.Errorf("day resolver required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	window := params.Window
	if window <= 0 {
		window = defaultTransferWindow
	}
	return &transferTTLJob{
		logg:    params.Logger,
		db:      params.DB,
		orders:  params.Orders,
		vendors: params.Vendors,
		reports: params.Reports,
		days:    params.Days,
		outbox:  params.Outbox,
		window:  window,
		now:     time.Now,
	}, nil
}

type transferTTLJob struct {
	logg    *logger.Logger
	db      txRunner
	orders  orders.Repository
	vendors vendors.Repository
	reports reports.Repository
	days    dayResolver
	outbox  outboxEmitter
	window  time.Duration
	now     func() time.Time
}

func (j *transferTTLJob) Name() string { return "transfer-ttl" }

// TransferExpiredEvent describes a transfer rolled back by TTL.
type TransferExpiredEvent struct {
	OrderID          uuid.UUID `json:"orderId"`
	SenderVendorID   uuid.UUID `json:"senderVendorId"`
	ReceiverVendorID uuid.UUID `json:"receiverVendorId"`
	ExpiredAt        time.Time `json:"expiredAt"`
}

func (j *transferTTLJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.window)
	stale, err := j.orders.FindStaleTransfers(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query stale transfers: %w", err)
	}

	rolledBack := 0
	var errs []error
	for _, order := range stale {
		if err := j.rollback(ctx, order); err != nil {
			errs = append(errs, fmt.Errorf("rollback transfer %s: %w", order.ID, err))
			continue
		}
		rolledBack++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"rolledBack": rolledBack,
		"failed":     len(errs),
	}), "transfer ttl sweep complete")
	return multierr.Combine(errs...)
}

// rollback undoes phase one of an unconfirmed transfer: the order is
// cancelled with a guarded transition, sender stock is restored and the
// unconfirmed send leg leaves the day ledger.
func (j *transferTTLJob) rollback(ctx context.Context, order models.Order) error {
	if order.ReceiverVendorID == nil {
		return fmt.Errorf("transfer order %s has no receiver", order.ID)
	}
	receiverID := *order.ReceiverVendorID
	initiationDay := j.days.DayStart(order.CreatedAt)

	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := j.orders.WithTx(tx).UpdateStatusIfCurrent(ctx, order.ID, enums.OrderStatusOnTheWay, enums.OrderStatusCancelled)
		if err != nil {
			return err
		}
		if !ok {
			// confirmed or cancelled since the query; nothing to undo
			return nil
		}

		vendorRepo := j.vendors.WithTx(tx)
		reportRepo := j.reports.WithTx(tx)
		for _, item := range order.Items {
			if err := vendorRepo.IncrementOrCreate(ctx, order.VendorID, item.ItemID, item.Kind, item.Quantity); err != nil {
				return err
			}
		}

		report, err := reportRepo.FindByVendorAndDay(ctx, order.VendorID, initiationDay)
		if err == nil {
			for _, item := range order.Items {
				if _, err := reportRepo.DeleteUnconfirmedLeg(ctx, report.ID, item.ItemID, enums.TransferDirectionSend, receiverID); err != nil {
					return err
				}
			}
		} else if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
			return err
		}

		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransferExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			OccurredAt:    j.now().UTC(),
			Data: TransferExpiredEvent{
				OrderID:          order.ID,
				SenderVendorID:   order.VendorID,
				ReceiverVendorID: receiverID,
				ExpiredAt:        j.now().UTC(),
			},
		})
	})
}

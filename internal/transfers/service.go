package transfers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuseats/campuseats-backend/internal/catalog"
	"github.com/campuseats/campuseats-backend/internal/orders"
	"github.com/campuseats/campuseats-backend/internal/reports"
	"github.com/campuseats/campuseats-backend/internal/universities"
	"github.com/campuseats/campuseats-backend/internal/vendors"
	"github.com/campuseats/campuseats-backend/pkg/db/models"
	"github.com/campuseats/campuseats-backend/pkg/enums"
	pkgerrors "github.com/campuseats/campuseats-backend/pkg/errors"
	"github.com/campuseats/campuseats-backend/pkg/outbox"
	"github.com/campuseats/campuseats-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type dayResolver interface {
	DayStart(t time.Time) time.Time
}

// Service runs the two-phase vendor-to-vendor transfer protocol. Phase one
// takes stock out of the sender; phase two hands it to the receiver and
// settles both vendors' day ledgers exactly once.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error)
	Confirm(ctx context.Context, orderID, receiverVendorID uuid.UUID) error
	Inbox(ctx context.Context, receiverVendorID uuid.UUID, params pagination.Params) (*InboxPage, error)
}

type service struct {
	orders   orders.Repository
	vendors  vendors.Repository
	catalog  catalog.Repository
	reports  reports.Repository
	campuses universities.Repository
	days     dayResolver
	tx       txRunner
	outbox   outboxPublisher
	now      func() time.Time
}

// NewService wires the transfer protocol with its collaborators.
func NewService(orderRepo orders.Repository, vendorRepo vendors.Repository, catalogRepo catalog.Repository, reportRepo reports.Repository, campusRepo universities.Repository, days dayResolver, tx txRunner, publisher outboxPublisher) (Service, error) {
	if orderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if vendorRepo == nil {
		return nil, fmt.Errorf("vendors repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if reportRepo == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	if campusRepo == nil {
		return nil, fmt.Errorf("universities repository required")
	}
	if days == nil {
		return nil, fmt.Errorf("day resolver required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		orders:   orderRepo,
		vendors:  vendorRepo,
		catalog:  catalogRepo,
		reports:  reportRepo,
		campuses: campusRepo,
		days:     days,
		tx:       tx,
		outbox:   publisher,
		now:      time.Now,
	}, nil
}

// TransferLine is one manifest line of a transfer request.
type TransferLine struct {
	ItemID   uuid.UUID      `json:"itemId"`
	Kind     enums.ItemKind `json:"kind"`
	Quantity int            `json:"quantity"`
}

// InitiateInput carries a phase-one request.
type InitiateInput struct {
	SenderVendorID   uuid.UUID
	ReceiverVendorID uuid.UUID
	Lines            []TransferLine
}

// InitiateResult reports the created transfer order and its manifest.
type InitiateResult struct {
	OrderID          uuid.UUID      `json:"orderId"`
	TransferredItems []TransferLine `json:"transferredItems"`
}

// InboxEntry is one pending inbound transfer with resolved item details.
type InboxEntry struct {
	OrderID        uuid.UUID      `json:"orderId"`
	SenderVendorID uuid.UUID      `json:"senderVendorId"`
	InitiatedAt    time.Time      `json:"initiatedAt"`
	Items          []InboxItem    `json:"items"`
}

// InboxItem resolves a manifest line against the catalog.
type InboxItem struct {
	ItemID   uuid.UUID      `json:"itemId"`
	Kind     enums.ItemKind `json:"kind"`
	Name     string         `json:"name,omitempty"`
	Unit     string         `json:"unit,omitempty"`
	Quantity int            `json:"quantity"`
}

// InboxPage is a cursor page of inbound transfers.
type InboxPage struct {
	Entries    []InboxEntry `json:"entries"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

// TransferEvent is the outbox payload for both phases.
type TransferEvent struct {
	OrderID          uuid.UUID      `json:"orderId"`
	SenderVendorID   uuid.UUID      `json:"senderVendorId"`
	ReceiverVendorID uuid.UUID      `json:"receiverVendorId"`
	Items            []TransferLine `json:"items"`
}

// Initiate validates the whole batch before touching anything, then inside
// one transaction decrements sender stock, records the on_the_way order and
// appends the unconfirmed send leg to the sender's day ledger. Receiver
// stock stays untouched until they confirm receipt.
func (s *service) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	if input.SenderVendorID == uuid.Nil || input.ReceiverVendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sender and receiver vendor ids required")
	}
	if input.SenderVendorID == input.ReceiverVendorID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sender and receiver must differ")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one transfer line required")
	}
	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer quantity must be positive")
		}
		if !line.Kind.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown item kind")
		}
	}

	sender, err := s.vendors.FindByID(ctx, input.SenderVendorID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.vendors.FindByID(ctx, input.ReceiverVendorID)
	if err != nil {
		return nil, err
	}
	// transfers only move stock within one campus
	if sender.UniversityID != receiver.UniversityID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendors belong to different campuses")
	}
	if _, err := s.campuses.FindByID(ctx, sender.UniversityID); err != nil {
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

	// all-or-nothing: every line must clear validation before any mutation
	for _, line := range input.Lines {
		ref := catalog.ItemRef{ItemID: line.ItemID, Kind: line.Kind}
		if _, ok := items[ref]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("item %s not found", line.ItemID))
		}
		stock, err := s.vendors.FindInventoryItem(ctx, input.SenderVendorID, line.ItemID, line.Kind)
		if err != nil {
			return nil, err
		}
		if stock.Quantity < line.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("insufficient stock for item %s: have %d, want %d", line.ItemID, stock.Quantity, line.Quantity))
		}
	}

	day := s.days.DayStart(s.now())
	order := &models.Order{
		VendorID:         input.SenderVendorID,
		ReceiverVendorID: &input.ReceiverVendorID,
		Category:         enums.OrderCategoryTransfer,
		Status:           enums.OrderStatusOnTheWay,
	}
	for _, line := range input.Lines {
		order.Items = append(order.Items, models.OrderItem{
			ItemID:   line.ItemID,
			Kind:     line.Kind,
			Quantity: line.Quantity,
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		vendorRepo := s.vendors.WithTx(tx)
		for _, line := range input.Lines {
			ok, err := vendorRepo.AdjustQuantity(ctx, input.SenderVendorID, line.ItemID, line.Kind, -line.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				// stock moved between validation and the guarded decrement
				return pkgerrors.New(pkgerrors.CodeConflict,
					fmt.Sprintf("stock changed for item %s during transfer", line.ItemID))
			}
		}

		if _, err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}

		reportRepo := s.reports.WithTx(tx)
		report, err := reportRepo.FindOrCreate(ctx, input.SenderVendorID, day)
		if err != nil {
			return err
		}
		for _, line := range input.Lines {
			leg := &models.ReportTransfer{
				ReportID:             report.ID,
				ItemID:               line.ItemID,
				Kind:                 line.Kind,
				Direction:            enums.TransferDirectionSend,
				CounterpartyVendorID: input.ReceiverVendorID,
				Quantity:             line.Quantity,
			}
			if _, err := reportRepo.InsertLegIfMissing(ctx, leg); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransferInitiated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: TransferEvent{
				OrderID:          order.ID,
				SenderVendorID:   input.SenderVendorID,
				ReceiverVendorID: input.ReceiverVendorID,
				Items:            input.Lines,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	return &InitiateResult{OrderID: order.ID, TransferredItems: input.Lines}, nil
}

// Confirm applies phase two. The whole settlement runs in one transaction:
// the guarded status transition makes replays fail with a state conflict
// before any write lands, so receiver stock can never be incremented twice.
func (s *service) Confirm(ctx context.Context, orderID, receiverVendorID uuid.UUID) error {
	if orderID == uuid.Nil || receiverVendorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id and receiver vendor id required")
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Category != enums.OrderCategoryTransfer {
		return pkgerrors.New(pkgerrors.CodeValidation, "order is not a transfer")
	}
	if order.Status != enums.OrderStatusOnTheWay {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "transfer is not awaiting confirmation")
	}
	if order.ReceiverVendorID == nil || *order.ReceiverVendorID != receiverVendorID {
		return pkgerrors.New(pkgerrors.CodeValidation, "receiver does not match the transfer")
	}
	if order.VendorID == receiverVendorID {
		return pkgerrors.New(pkgerrors.CodeValidation, "sender cannot confirm their own transfer")
	}
	if _, err := s.vendors.FindByID(ctx, receiverVendorID); err != nil {
		return err
	}

	senderID := order.VendorID
	day := s.days.DayStart(s.now())

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// the transition doubles as the idempotency guard: a replay or a
		// concurrent confirm finds zero affected rows and aborts here
		ok, err := s.orders.WithTx(tx).UpdateStatusIfCurrent(ctx, order.ID, enums.OrderStatusOnTheWay, enums.OrderStatusCompleted)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transfer already resolved")
		}

		vendorRepo := s.vendors.WithTx(tx)
		reportRepo := s.reports.WithTx(tx)

		senderReport, err := reportRepo.FindOrCreate(ctx, senderID, day)
		if err != nil {
			return err
		}
		receiverReport, err := reportRepo.FindOrCreate(ctx, receiverVendorID, day)
		if err != nil {
			return err
		}

		for _, item := range order.Items {
			if err := vendorRepo.IncrementOrCreate(ctx, receiverVendorID, item.ItemID, item.Kind, item.Quantity); err != nil {
				return err
			}

			// post-mutation reconstruction: both sides' opening/closing are
			// derived from current stock and the transferred quantity
			senderStock, err := vendorRepo.FindInventoryItem(ctx, senderID, item.ItemID, item.Kind)
			if err != nil {
				return err
			}
			receiverStock, err := vendorRepo.FindInventoryItem(ctx, receiverVendorID, item.ItemID, item.Kind)
			if err != nil {
				return err
			}

			err = reportRepo.UpsertEntry(ctx, &models.ReportEntry{
				ReportID:   senderReport.ID,
				ItemID:     item.ItemID,
				Kind:       item.Kind,
				OpeningQty: senderStock.Quantity + item.Quantity,
				ClosingQty: senderStock.Quantity,
			})
			if err != nil {
				return err
			}
			err = reportRepo.UpsertEntry(ctx, &models.ReportEntry{
				ReportID:   receiverReport.ID,
				ItemID:     item.ItemID,
				Kind:       item.Kind,
				OpeningQty: receiverStock.Quantity - item.Quantity,
				ClosingQty: receiverStock.Quantity,
			})
			if err != nil {
				return err
			}

			if _, err := reportRepo.ConfirmLeg(ctx, senderReport.ID, item.ItemID, enums.TransferDirectionSend, receiverVendorID); err != nil {
				return err
			}
			receivedLeg := &models.ReportTransfer{
				ReportID:             receiverReport.ID,
				ItemID:               item.ItemID,
				Kind:                 item.Kind,
				Direction:            enums.TransferDirectionReceived,
				CounterpartyVendorID: senderID,
				Quantity:             item.Quantity,
				Confirmed:            true,
			}
			if _, err := reportRepo.InsertLegIfMissing(ctx, receivedLeg); err != nil {
				return err
			}
		}

		lines := make([]TransferLine, 0, len(order.Items))
		for _, item := range order.Items {
			lines = append(lines, TransferLine{ItemID: item.ItemID, Kind: item.Kind, Quantity: item.Quantity})
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransferConfirmed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: TransferEvent{
				OrderID:          order.ID,
				SenderVendorID:   senderID,
				ReceiverVendorID: receiverVendorID,
				Items:            lines,
			},
		})
	})
	if err != nil {
		return err
	}

	return nil
}

// Inbox lists on_the_way transfers addressed to the receiver, resolving
// manifest lines against the catalog.
func (s *service) Inbox(ctx context.Context, receiverVendorID uuid.UUID, params pagination.Params) (*InboxPage, error) {
	if receiverVendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receiver vendor id required")
	}
	if _, err := s.vendors.FindByID(ctx, receiverVendorID); err != nil {
		return nil, err
	}

	page, next, err := s.orders.ListIncomingTransfers(ctx, receiverVendorID, params)
	if err != nil {
		return nil, err
	}

	var refs []catalog.ItemRef
	for _, order := range page {
		for _, item := range order.Items {
			refs = append(refs, catalog.ItemRef{ItemID: item.ItemID, Kind: item.Kind})
		}
	}
	names, err := s.catalog.FindByRefs(ctx, refs)
	if err != nil {
		return nil, err
	}

	result := &InboxPage{NextCursor: next}
	for _, order := range page {
		entry := InboxEntry{
			OrderID:        order.ID,
			SenderVendorID: order.VendorID,
			InitiatedAt:    order.CreatedAt,
		}
		for _, item := range order.Items {
			row := InboxItem{
				ItemID:   item.ItemID,
				Kind:     item.Kind,
				Quantity: item.Quantity,
			}
			if resolved, ok := names[catalog.ItemRef{ItemID: item.ItemID, Kind: item.Kind}]; ok {
				row.Name = resolved.Name
				row.Unit = resolved.Unit
			}
			entry.Items = append(entry.Items, row)
		}
		result.Entries = append(result.Entries, entry)
	}
	return result, nil
}

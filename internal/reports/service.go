package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuseats/campuseats-backend/internal/catalog"
	"github.com/campuseats/campuseats-backend/internal/vendors"
	"github.com/campuseats/campuseats-backend/pkg/db/models"
	"github.com/campuseats/campuseats-backend/pkg/enums"
	pkgerrors "github.com/campuseats/campuseats-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the daily ledger to callers: read with enrichment, and
// idempotent day-open generation with carried-forward quantities.
type Service interface {
	GetReport(ctx context.Context, vendorID uuid.UUID, date time.Time) (*ReportView, error)
	GenerateDailyReport(ctx context.Context, vendorID uuid.UUID, date time.Time) (*ReportView, error)
	DayStart(t time.Time) time.Time
}

type service struct {
	repo    Repository
	vendors vendors.Repository
	catalog catalog.Repository
	tx      txRunner
	loc     *time.Location
}

// NewService builds a report service. timezone defines business day
// boundaries (e.g. "Asia/Kolkata").
func NewService(repo Repository, vendorRepo vendors.Repository, catalogRepo catalog.Repository, tx txRunner, timezone string) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	if vendorRepo == nil {
		return nil, fmt.Errorf("vendors repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid reports timezone %q: %w", timezone, err)
	}
	return &service{
		repo:    repo,
		vendors: vendorRepo,
		catalog: catalogRepo,
		tx:      tx,
		loc:     loc,
	}, nil
}

// VendorSummary identifies the report's owner in responses.
type VendorSummary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// EntryView is one item row of the report with the derived received total
// and the resolved catalog name.
type EntryView struct {
	ItemID      uuid.UUID      `json:"itemId"`
	Kind        enums.ItemKind `json:"kind"`
	Name        string         `json:"name,omitempty"`
	Unit        string         `json:"unit,omitempty"`
	OpeningQty  int            `json:"openingQty"`
	ClosingQty  int            `json:"closingQty"`
	SoldQty     int            `json:"soldQty"`
	ReceivedQty int            `json:"receivedQty"`
}

// TransferView is one send or receive leg of the day.
type TransferView struct {
	ItemID               uuid.UUID               `json:"itemId"`
	Kind                 enums.ItemKind          `json:"kind"`
	Name                 string                  `json:"name,omitempty"`
	Direction            enums.TransferDirection `json:"direction"`
	CounterpartyVendorID uuid.UUID               `json:"counterpartyVendorId"`
	Quantity             int                     `json:"quantity"`
	Confirmed            bool                    `json:"confirmed"`
}

// ReportView is the API-facing report shape. A day with no report carries
// Error="not_found" and a message instead of entries, so callers branch on
// the error field rather than on an HTTP failure.
type ReportView struct {
	Vendor     VendorSummary  `json:"vendor"`
	ReportDate time.Time      `json:"reportDate"`
	Entries    []EntryView    `json:"entries,omitempty"`
	Transfers  []TransferView `json:"transfers,omitempty"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// DayStart truncates t to the start of its business day.
func (s *service) DayStart(t time.Time) time.Time {
	local := t.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
}

func (s *service) GetReport(ctx context.Context, vendorID uuid.UUID, date time.Time) (*ReportView, error) {
	vendor, err := s.vendors.FindByID(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	day := s.DayStart(date)

	report, err := s.repo.FindByVendorAndDay(ctx, vendorID, day)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			return &ReportView{
				Vendor:     VendorSummary{ID: vendor.ID, Name: vendor.Name},
				ReportDate: day,
				Message:    fmt.Sprintf("no inventory report for %s on %s", vendor.Name, day.Format("2006-01-02")),
				Error:      "not_found",
			}, nil
		}
		return nil, err
	}
	return s.buildView(ctx, vendor, report)
}

// GenerateDailyReport opens the vendor's ledger for the day. Opening and
// closing quantities carry forward from yesterday's closing; items yesterday
// never saw fall back to current stock. Calling it again for the same day
// returns the existing report untouched.
func (s *service) GenerateDailyReport(ctx context.Context, vendorID uuid.UUID, date time.Time) (*ReportView, error) {
	vendor, err := s.vendors.FindByID(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	day := s.DayStart(date)

	existing, err := s.repo.FindByVendorAndDay(ctx, vendorID, day)
	if err == nil {
		return s.buildView(ctx, vendor, existing)
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		return nil, err
	}

	prevClosing := map[catalog.ItemRef]int{}
	if prev, err := s.repo.FindByVendorAndDay(ctx, vendorID, day.AddDate(0, 0, -1)); err == nil {
		for _, entry := range prev.Entries {
			prevClosing[catalog.ItemRef{ItemID: entry.ItemID, Kind: entry.Kind}] = entry.ClosingQty
		}
	} else if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		return nil, err
	}

	stock, err := s.vendors.ListInventory(ctx, vendorID)
	if err != nil {
		return nil, err
	}

	report := &models.InventoryReport{VendorID: vendorID, ReportDate: day}
	for _, line := range stock {
		qty := line.Quantity
		if carried, ok := prevClosing[catalog.ItemRef{ItemID: line.ItemID, Kind: line.Kind}]; ok {
			qty = carried
		}
		report.Entries = append(report.Entries, models.ReportEntry{
			ItemID:     line.ItemID,
			Kind:       line.Kind,
			OpeningQty: qty,
			ClosingQty: qty,
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Create(ctx, report)
	})
	if err != nil {
		// a concurrent generate may have won; serve whichever report landed
		if landed, findErr := s.repo.FindByVendorAndDay(ctx, vendorID, day); findErr == nil {
			return s.buildView(ctx, vendor, landed)
		}
		return nil, err
	}
	return s.buildView(ctx, vendor, report)
}

func (s *service) buildView(ctx context.Context, vendor *models.Vendor, report *models.InventoryReport) (*ReportView, error) {
	refs := make([]catalog.ItemRef, 0, len(report.Entries)+len(report.Transfers))
	for _, entry := range report.Entries {
		refs = append(refs, catalog.ItemRef{ItemID: entry.ItemID, Kind: entry.Kind})
	}
	for _, leg := range report.Transfers {
		refs = append(refs, catalog.ItemRef{ItemID: leg.ItemID, Kind: leg.Kind})
	}
	names, err := s.catalog.FindByRefs(ctx, refs)
	if err != nil {
		return nil, err
	}

	received := map[catalog.ItemRef]int{}
	for _, leg := range report.Transfers {
		if leg.Direction == enums.TransferDirectionReceived && leg.Confirmed {
			received[catalog.ItemRef{ItemID: leg.ItemID, Kind: leg.Kind}] += leg.Quantity
		}
	}

	view := &ReportView{
		Vendor:     VendorSummary{ID: vendor.ID, Name: vendor.Name},
		ReportDate: report.ReportDate,
	}
	for _, entry := range report.Entries {
		ref := catalog.ItemRef{ItemID: entry.ItemID, Kind: entry.Kind}
		row := EntryView{
			ItemID:      entry.ItemID,
			Kind:        entry.Kind,
			OpeningQty:  entry.OpeningQty,
			ClosingQty:  entry.ClosingQty,
			SoldQty:     entry.SoldQty,
			ReceivedQty: received[ref],
		}
		if item, ok := names[ref]; ok {
			row.Name = item.Name
			row.Unit = item.Unit
		}
		view.Entries = append(view.Entries, row)
	}
	for _, leg := range report.Transfers {
		row := TransferView{
			ItemID:               leg.ItemID,
			Kind:                 leg.Kind,
			Direction:            leg.Direction,
			CounterpartyVendorID: leg.CounterpartyVendorID,
			Quantity:             leg.Quantity,
			Confirmed:            leg.Confirmed,
		}
		if item, ok := names[catalog.ItemRef{ItemID: leg.ItemID, Kind: leg.Kind}]; ok {
			row.Name = item.Name
		}
		view.Transfers = append(view.Transfers, row)
	}
	return view, nil
}

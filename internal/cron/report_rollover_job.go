package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/campuseats/campuseats-backend/internal/reports"
	"github.com/campuseats/campuseats-backend/internal/vendors"
	"github.com/campuseats/campuseats-backend/pkg/logger"
)

// ReportRolloverJobParams configure the daily ledger rollover.
type ReportRolloverJobParams struct {
	Logger  *logger.Logger
	Vendors vendors.Repository
	Reports reports.Service
}

// NewReportRolloverJob builds the job that opens every active vendor's
// ledger for the current business day, carrying closing quantities forward
// even on days with no mutations.
func NewReportRolloverJob(params ReportRolloverJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Vendors == nil {
		return nil, fmt.Errorf("vendors repository required")
	}
	if params.Reports == nil {
		return nil, fmt.Errorf("reports service required")
	}
	return &reportRolloverJob{
		logg:    params.Logger,
		vendors: params.Vendors,
		reports: params.Reports,
		now:     time.Now,
	}, nil
}

type reportRolloverJob struct {
	logg    *logger.Logger
	vendors vendors.Repository
	reports reports.Service
	now     func() time.Time
}

func (j *reportRolloverJob) Name() string { return "report-rollover" }

func (j *reportRolloverJob) Run(ctx context.Context) error {
	active, err := j.vendors.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active vendors: %w", err)
	}

	opened := 0
	var errs []error
	for _, vendor := range active {
		if _, err := j.reports.GenerateDailyReport(ctx, vendor.ID, j.now()); err != nil {
			errs = append(errs, fmt.Errorf("rollover vendor %s: %w", vendor.ID, err))
			continue
		}
		opened++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"vendors": len(active),
		"opened":  opened,
		"failed":  len(errs),
	}), "report rollover complete")
	return multierr.Combine(errs...)
}

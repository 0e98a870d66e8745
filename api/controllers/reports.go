package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/campuseats/campuseats-backend/api/responses"
	"github.com/campuseats/campuseats-backend/api/validators"
	"github.com/campuseats/campuseats-backend/internal/reports"
	pkgerrors "github.com/campuseats/campuseats-backend/pkg/errors"
	"github.com/campuseats/campuseats-backend/pkg/logger"
)

const reportDateLayout = "2006-01-02"

// VendorReport returns the vendor's inventory report for a business day.
// A day without a report answers 200 with a structured not-found payload.
func VendorReport(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := uuid.Parse(chi.URLParam(r, "vendorId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid vendor id"))
			return
		}
		date, err := parseReportDate(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.GetReport(r.Context(), vendorID, date)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

type generateReportPayload struct {
	Date string `json:"date,omitempty"`
}

// GenerateReport opens the vendor's ledger for a day; replays return the
// existing report.
func GenerateReport(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := uuid.Parse(chi.URLParam(r, "vendorId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid vendor id"))
			return
		}

		date := time.Now()
		if r.ContentLength > 0 {
			var payload generateReportPayload
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if payload.Date != "" {
				parsed, err := time.Parse(reportDateLayout, payload.Date)
				if err != nil {
					responses.WriteError(r.Context(), logg, w,
						pkgerrors.New(pkgerrors.CodeValidation, "date must use YYYY-MM-DD"))
					return
				}
				date = parsed
			}
		}

		view, err := svc.GenerateDailyReport(r.Context(), vendorID, date)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

func parseReportDate(r *http.Request) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return time.Now(), nil
	}
	parsed, err := time.Parse(reportDateLayout, raw)
	if err != nil {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "date must use YYYY-MM-DD")
	}
	return parsed, nil
}

package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/campuseats/campuseats-backend/api/responses"
	"github.com/campuseats/campuseats-backend/api/validators"
	"github.com/campuseats/campuseats-backend/internal/transfers"
	"github.com/campuseats/campuseats-backend/pkg/enums"
	pkgerrors "github.com/campuseats/campuseats-backend/pkg/errors"
	"github.com/campuseats/campuseats-backend/pkg/logger"
	"github.com/campuseats/campuseats-backend/pkg/pagination"
)

type transferLinePayload struct {
	ItemID   uuid.UUID `json:"itemId" validate:"required"`
	Kind     string    `json:"kind" validate:"required"`
	Quantity int       `json:"quantity" validate:"required,min=1"`
}

type transferInitiatePayload struct {
	SenderVendorID   uuid.UUID             `json:"senderVendorId" validate:"required"`
	ReceiverVendorID uuid.UUID             `json:"receiverVendorId" validate:"required"`
	Items            []transferLinePayload `json:"items" validate:"required,min=1,dive"`
}

// TransferInitiate starts phase one of a vendor-to-vendor transfer.
func TransferInitiate(svc transfers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload transferInitiatePayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := transfers.InitiateInput{
			SenderVendorID:   payload.SenderVendorID,
			ReceiverVendorID: payload.ReceiverVendorID,
		}
		for _, line := range payload.Items {
			input.Lines = append(input.Lines, transfers.TransferLine{
				ItemID:   line.ItemID,
				Kind:     enums.ItemKind(line.Kind),
				Quantity: line.Quantity,
			})
		}

		result, err := svc.Initiate(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type transferConfirmPayload struct {
	ReceiverVendorID uuid.UUID `json:"receiverVendorId" validate:"required"`
}

// TransferConfirm settles phase two.
func TransferConfirm(svc transfers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id"))
			return
		}
		var payload transferConfirmPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Confirm(r.Context(), orderID, payload.ReceiverVendorID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"message": "transfer confirmed"})
	}
}

// TransferInbox lists pending inbound transfers for a receiver.
func TransferInbox(svc transfers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := uuid.Parse(chi.URLParam(r, "vendorId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid vendor id"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))

		page, err := svc.Inbox(r.Context(), vendorID, pagination.Params{Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

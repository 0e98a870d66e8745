package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/campuseats/campuseats-backend/api/responses"
	"github.com/campuseats/campuseats-backend/api/validators"
	"github.com/campuseats/campuseats-backend/internal/checkout"
	"github.com/campuseats/campuseats-backend/pkg/enums"
	pkgerrors "github.com/campuseats/campuseats-backend/pkg/errors"
	"github.com/campuseats/campuseats-backend/pkg/logger"
)

type checkoutLinePayload struct {
	ItemID   uuid.UUID `json:"itemId" validate:"required"`
	Kind     string    `json:"kind" validate:"required"`
	Quantity int       `json:"quantity" validate:"required,min=1"`
}

type checkoutPayload struct {
	UserID   uuid.UUID             `json:"userId" validate:"required"`
	VendorID uuid.UUID             `json:"vendorId" validate:"required"`
	Items    []checkoutLinePayload `json:"items" validate:"required,min=1,dive"`
}

// Checkout creates a pending_payment order holding reservation locks for
// every line.
func Checkout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload checkoutPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkout.CreateOrderInput{
			UserID:   payload.UserID,
			VendorID: payload.VendorID,
		}
		for _, line := range payload.Items {
			input.Lines = append(input.Lines, checkout.OrderLine{
				ItemID:   line.ItemID,
				Kind:     enums.ItemKind(line.Kind),
				Quantity: line.Quantity,
			})
		}

		result, err := svc.CreateOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type paymentPayload struct {
	Outcome string `json:"outcome" validate:"required,oneof=completed failed"`
}

// ResolvePayment settles a pending order with the payment outcome and
// releases its reservation locks.
func ResolvePayment(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id"))
			return
		}
		var payload paymentPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if payload.Outcome == "completed" {
			err = svc.CompletePayment(r.Context(), orderID)
		} else {
			err = svc.FailPayment(r.Context(), orderID)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"orderId": orderID.String(), "status": payload.Outcome})
	}
}

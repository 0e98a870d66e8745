package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/campuseats/campuseats-backend/api/responses"
	"github.com/campuseats/campuseats-backend/api/validators"
	"github.com/campuseats/campuseats-backend/internal/locks"
	"github.com/campuseats/campuseats-backend/internal/orders"
	"github.com/campuseats/campuseats-backend/pkg/enums"
	pkgerrors "github.com/campuseats/campuseats-backend/pkg/errors"
	"github.com/campuseats/campuseats-backend/pkg/logger"
)

type jobRunner interface {
	Run(ctx context.Context) error
}

// AdminLockStats reports the live lock table alongside pending and expired
// order counts.
func AdminLockStats(cache *locks.Cache, repo orders.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := repo.CountByStatus(r.Context(), enums.OrderStatusPendingPayment)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		expired, err := repo.CountExpiredPending(r.Context(), time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stats := cache.Stats()
		responses.WriteSuccess(w, map[string]any{
			"locks":          stats,
			"pendingOrders":  pending,
			"expiredPending": expired,
		})
	}
}

type forceReleasePayload struct {
	OrderID uuid.UUID `json:"orderId" validate:"required"`
}

// AdminForceRelease drops a specific order's reservation locks regardless of
// the order's state. Incident recovery only: the order record itself is not
// touched.
func AdminForceRelease(cache *locks.Cache, repo orders.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload forceReleasePayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := repo.FindByID(r.Context(), payload.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		keys := make([]locks.Key, 0, len(order.Items))
		for _, item := range order.Items {
			keys = append(keys, locks.Key{ItemID: item.ItemID, Kind: item.Kind, VendorID: order.VendorID})
		}
		released, notFound := cache.ReleaseOrderLocks(keys, order.ID.String())

		logg.Warn(logg.WithFields(logg.WithOrderID(r.Context(), order.ID.String()), map[string]any{
			"released":  released,
			"not_found": notFound,
		}), "admin force-released reservation locks")
		responses.WriteSuccess(w, map[string]any{
			"orderId":  order.ID,
			"released": released,
			"notFound": notFound,
		})
	}
}

// AdminRunCleanup triggers one sweep outside the normal schedule.
func AdminRunCleanup(job jobRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if job == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cleanup job unavailable"))
			return
		}
		if err := job.Run(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cleanup run failed"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"message": "cleanup sweep completed"})
	}
}

package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campuseats/campuseats-backend/api/controllers"
	"github.com/campuseats/campuseats-backend/api/middleware"
	checkoutsvc "github.com/campuseats/campuseats-backend/internal/checkout"
	"github.com/campuseats/campuseats-backend/internal/cron"
	"github.com/campuseats/campuseats-backend/internal/locks"
	"github.com/campuseats/campuseats-backend/internal/orders"
	"github.com/campuseats/campuseats-backend/internal/reports"
	"github.com/campuseats/campuseats-backend/internal/transfers"
	"github.com/campuseats/campuseats-backend/pkg/config"
	"github.com/campuseats/campuseats-backend/pkg/db"
	"github.com/campuseats/campuseats-backend/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP db.Pinger,
	lockCache *locks.Cache,
	ordersRepo orders.Repository,
	checkoutService checkoutsvc.Service,
	transferService transfers.Service,
	reportService reports.Service,
	cleanupJob cron.Job,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/checkout", controllers.Checkout(checkoutService, logg))
		r.Post("/orders/{orderId}/payment", controllers.ResolvePayment(checkoutService, logg))

		r.Route("/transfers", func(r chi.Router) {
			r.Post("/", controllers.TransferInitiate(transferService, logg))
			r.Post("/{orderId}/confirm", controllers.TransferConfirm(transferService, logg))
		})

		r.Route("/vendors/{vendorId}", func(r chi.Router) {
			r.Get("/transfers/inbox", controllers.TransferInbox(transferService, logg))
			r.Get("/reports", controllers.VendorReport(reportService, logg))
			r.Post("/reports/generate", controllers.GenerateReport(reportService, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/locks", controllers.AdminLockStats(lockCache, ordersRepo, logg))
			r.Post("/locks/release", controllers.AdminForceRelease(lockCache, ordersRepo, logg))
			r.Post("/cleanup/run", controllers.AdminRunCleanup(cleanupJob, logg))
		})
	})

	return r
}

package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/dispatchly/backend/internal/api/handlers"
	"github.com/dispatchly/backend/internal/auth"
	"github.com/dispatchly/backend/internal/config"
	"github.com/dispatchly/backend/internal/metrics"
	"github.com/dispatchly/backend/internal/middleware"
	"github.com/dispatchly/backend/internal/models"
	"github.com/dispatchly/backend/internal/realtime"
	"github.com/dispatchly/backend/internal/services"
)

type RouterDeps struct {
	Cfg           config.Config
	Log           *slog.Logger
	Tokens        *auth.TokenManager
	Users         *services.UserService
	Wallet        *services.WalletService
	Orders        *services.OrderService
	Drivers       *services.DriverService
	Config        *services.ConfigService
	Notifications *services.NotificationService
	Hub           *realtime.Hub
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID(d.Log), middleware.Recover, middleware.HTTPMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	authH := handlers.NewAuthHandler(d.Users)
	orderH := handlers.NewOrderHandler(d.Orders)
	walletH := handlers.NewWalletHandler(d.Wallet)
	driverH := handlers.NewDriverHandler(d.Drivers)
	adminH := handlers.NewAdminHandler(d.Wallet, d.Config)
	notifH := handlers.NewNotificationHandler(d.Notifications)
	authMW := middleware.NewAuthMiddleware(d.Tokens)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(d.Cfg.RateRPS, d.Cfg.RateBurst))

		r.Post("/auth/register", authH.Register)
		r.Post("/auth/login", authH.Login)
		r.Post("/auth/refresh", authH.Refresh)
		r.Handle("/ws", handlers.NewWSHandler(d.Hub, d.Tokens))

		r.Group(func(r chi.Router) {
			r.Use(authMW.Auth)

			r.Get("/me", authH.Me)

			r.Route("/orders", func(r chi.Router) {
				r.With(middleware.RequireRole(models.RoleCustomer)).Post("/", orderH.Create)
				r.Post("/estimate", orderH.Estimate)
				r.Get("/", orderH.List)
				r.With(middleware.RequireRole(models.RoleDriver)).Get("/available", orderH.Available)
				r.Get("/{id}", orderH.Get)
				r.With(middleware.RequireRole(models.RoleDriver)).Post("/{id}/accept", orderH.Accept)
				r.Patch("/{id}/status", orderH.UpdateStatus)
				r.With(middleware.RequireRole(models.RoleDriver, models.RoleAdmin)).Patch("/{id}/location", orderH.UpdateLocation)
				r.Post("/{id}/cancel", orderH.Cancel)
				r.With(middleware.RequireRole(models.RoleCustomer)).Post("/{id}/rate", driverH.Rate)
			})

			r.Route("/drivers", func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleDriver))
				r.Get("/profile", driverH.Profile)
				r.Patch("/profile", driverH.UpdateVehicle)
				r.Get("/stats", driverH.Stats)
				r.Post("/online", driverH.SetOnline)
				r.Patch("/location", driverH.UpdateLocation)
			})

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", walletH.Get)
				r.Get("/balance", walletH.Balance)
				r.Get("/stats", walletH.Stats)
				r.With(middleware.RequireRole(models.RoleDriver)).Get("/can-take-order", walletH.CanTakeOrder)
				r.Post("/add-funds", walletH.AddFunds)
				r.Post("/withdraw", walletH.Withdraw)
				r.Get("/transactions", walletH.Transactions)
				r.Get("/transactions/{id}", walletH.Transaction)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notifH.List)
				r.Patch("/read-all", notifH.MarkAllRead)
				r.Patch("/{id}/read", notifH.MarkRead)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))
				r.Post("/wallets/{userId}/lock", adminH.LockWallet)
				r.Post("/wallets/{userId}/unlock", adminH.UnlockWallet)
				r.Get("/config", adminH.ListConfig)
				r.Put("/config", adminH.BulkUpdateConfig)
				r.Post("/config/refresh", adminH.RefreshConfig)
				r.Put("/config/{key}", adminH.UpdateConfig)
				r.Delete("/config/{key}", adminH.DeleteConfig)
			})
		})
	})

	return r
}

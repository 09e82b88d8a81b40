package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/dispatchly/backend/internal/api"
	"github.com/dispatchly/backend/internal/api/handlers"
	"github.com/dispatchly/backend/internal/auth"
	"github.com/dispatchly/backend/internal/config"
	"github.com/dispatchly/backend/internal/db"
	"github.com/dispatchly/backend/internal/logger"
	"github.com/dispatchly/backend/internal/metrics"
	"github.com/dispatchly/backend/internal/realtime"
	"github.com/dispatchly/backend/internal/repository/postgres"
	"github.com/dispatchly/backend/internal/services"
	"github.com/dispatchly/backend/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.Migrate {
		if err := db.RunMigrations(ctx, pool); err != nil {
			return err
		}
		log.Info("migrations applied")
	}

	store := postgres.NewStore(pool)

	cfgSvc := services.NewConfigService(store, log)
	if err := cfgSvc.Init(ctx); err != nil {
		return err
	}
	tokens := auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL)
	users := services.NewUserService(store, tokens, log)
	if err := users.SeedAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return err
	}
	wallet := services.NewWalletService(store, cfgSvc, log)

	// The hub needs OrderService for client actions, and OrderService
	// publishes through the hub; actions is filled in once both exist.
	actions := &handlers.OrderActions{}
	hub := realtime.NewHub(actions, log)
	var pub realtime.Publisher = realtime.NewLocalRelay(hub)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		relay := realtime.NewRedisRelay(rdb, hub, log)
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("realtime relay stopped", "err", err)
			}
		}()
		pub = relay
		hub.Use(relay)
	}

	// Deferred after the pool and redis client so queued jobs drain first.
	wp := worker.NewPool(cfg.Workers, log)
	defer wp.Stop()

	notify := services.NewNotificationService(services.NotificationDeps{
		Store: store,
		Pool:  wp,
		Pub:   pub,
	}, log)
	orders := services.NewOrderService(store, wallet, cfgSvc, notify, log)
	drivers := services.NewDriverService(store, log)
	actions.Orders = orders

	go worker.Every(ctx, cfg.SweepInterval, "cancel_stale_orders", log, func(ctx context.Context) error {
		_, err := orders.CancelStale(ctx)
		return err
	})

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterDeps{
			Cfg:           cfg,
			Log:           log,
			Tokens:        tokens,
			Users:         users,
			Wallet:        wallet,
			Orders:        orders,
			Drivers:       drivers,
			Config:        cfgSvc,
			Notifications: notify,
			Hub:           hub,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "env", cfg.Env, "redis", cfg.RedisAddr != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

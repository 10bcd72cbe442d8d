package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mgiraldo-dev/canteen-backend/api/routes"
	"github.com/mgiraldo-dev/canteen-backend/internal/inventory"
	menusvc "github.com/mgiraldo-dev/canteen-backend/internal/menu"
	ordersvc "github.com/mgiraldo-dev/canteen-backend/internal/orders"
	reviewsvc "github.com/mgiraldo-dev/canteen-backend/internal/reviews"
	"github.com/mgiraldo-dev/canteen-backend/internal/subscriptions"
	"github.com/mgiraldo-dev/canteen-backend/pkg/config"
	"github.com/mgiraldo-dev/canteen-backend/pkg/db"
	"github.com/mgiraldo-dev/canteen-backend/pkg/instance"
	"github.com/mgiraldo-dev/canteen-backend/pkg/logger"
	"github.com/mgiraldo-dev/canteen-backend/pkg/metrics"
	"github.com/mgiraldo-dev/canteen-backend/pkg/migrate"
	"github.com/mgiraldo-dev/canteen-backend/pkg/redis"
	"github.com/mgiraldo-dev/canteen-backend/pkg/retry"
	"github.com/mgiraldo-dev/canteen-backend/pkg/store"
	"github.com/mgiraldo-dev/canteen-backend/pkg/store/gormstore"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if cfg.FeatureFlags.UseSQLite {
		if err := gormstore.Migrate(dbClient.DB()); err != nil {
			logg.Error(ctx, "failed to migrate sqlite schema", err)
			os.Exit(1)
		}
	} else if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	var bus *redis.Client
	storeOpts := gormstore.Options{
		OpTimeout: cfg.Store.OpTimeout,
		TxTimeout: cfg.Store.TxTimeout,
	}
	if cfg.Redis.Enabled() {
		bus, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := bus.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		storeOpts.Bus = bus
	}

	st, err := gormstore.New(dbClient.DB(), storeOpts)
	if err != nil {
		logg.Error(ctx, "failed to build store", err)
		os.Exit(1)
	}

	if bus != nil {
		go func() {
			if err := bus.Run(ctx, st.NotifyCollection, logg); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error(ctx, "change bus consumer stopped", err)
			}
		}()
	}

	registry := prometheus.NewRegistry()
	engineMetrics := metrics.NewEngineMetrics(registry)

	policy := retry.Policy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaximumBackoff: cfg.Retry.MaximumBackoff,
		OnRetry:        engineMetrics.IncTxnRetry,
	}

	ledger, err := inventory.NewLedger(st, policy)
	if err != nil {
		logg.Error(ctx, "failed to create stock ledger", err)
		os.Exit(1)
	}
	coordinator, err := ordersvc.NewCoordinator(st, ledger, policy)
	if err != nil {
		logg.Error(ctx, "failed to create order coordinator", err)
		os.Exit(1)
	}
	menuRepo, err := menusvc.NewRepository(st, policy)
	if err != nil {
		logg.Error(ctx, "failed to create menu repository", err)
		os.Exit(1)
	}
	aggregator, err := reviewsvc.NewAggregator(st, menuRepo, policy)
	if err != nil {
		logg.Error(ctx, "failed to create review aggregator", err)
		os.Exit(1)
	}

	manager, err := subscriptions.NewManager(st)
	if err != nil {
		logg.Error(ctx, "failed to create subscription manager", err)
		os.Exit(1)
	}
	defer manager.UnsubscribeAll()
	watchLowStock(ctx, manager, logg)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			Store:    st,
			Bus:      bus,
			Registry: registry,
			Metrics:  engineMetrics,
			Orders:   coordinator,
			Ledger:   ledger,
			Menu:     menuRepo,
			Reviews:  aggregator,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "graceful shutdown failed", err)
		}
	}
}

// watchLowStock keeps an ops-facing eye on the inventory: every committed
// change to inventory items re-checks which ones sit at or below their
// reorder point.
func watchLowStock(ctx context.Context, manager subscriptions.Manager, logg *logger.Logger) {
	onChange := func(batch []store.Record) {
		low := 0
		for i := range batch {
			var item inventory.Item
			if err := batch[i].Decode(&item); err != nil {
				continue
			}
			if item.CurrentStock <= item.ReorderPoint {
				low++
			}
		}
		if low > 0 {
			wctx := logg.WithField(ctx, "low_stock_items", low)
			logg.Warn(wctx, "inventory items at or below reorder point")
		}
	}
	onError := func(err error) {
		logg.Error(ctx, "low stock watch delivery failed", err)
	}
	if err := manager.Subscribe("ops.low-stock", store.Query{Collection: inventory.CollectionItems}, onChange, onError); err != nil {
		logg.Error(ctx, "failed to register low stock watch", err)
	}
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/batjin/foodrush-storefront/api/routes"
	"github.com/batjin/foodrush-storefront/internal/cart"
	"github.com/batjin/foodrush-storefront/internal/cartview"
	checkoutsvc "github.com/batjin/foodrush-storefront/internal/checkout"
	"github.com/batjin/foodrush-storefront/internal/payment"
	"github.com/batjin/foodrush-storefront/internal/reconcile"
	"github.com/batjin/foodrush-storefront/internal/session"
	"github.com/batjin/foodrush-storefront/pkg/backend"
	"github.com/batjin/foodrush-storefront/pkg/config"
	"github.com/batjin/foodrush-storefront/pkg/db"
	"github.com/batjin/foodrush-storefront/pkg/events"
	"github.com/batjin/foodrush-storefront/pkg/logger"
	"github.com/batjin/foodrush-storefront/pkg/metrics"
	"github.com/batjin/foodrush-storefront/pkg/migrate"
	"github.com/batjin/foodrush-storefront/pkg/qpay"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.LocalDB, logg)
	if err != nil {
		logg.Error(ctx, "failed to open local store", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing local store", err)
		}
	}()

	if err := migrate.MaybeRun(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to migrate local store", err)
		os.Exit(1)
	}

	bus := events.NewBus()

	store, err := cart.NewStore(cart.StoreParams{DB: dbClient, Bus: bus, Logger: logg})
	if err != nil {
		logg.Error(ctx, "failed to create cart store", err)
		os.Exit(1)
	}
	if err := store.Recover(ctx); err != nil {
		logg.Error(ctx, "failed to recover cart store", err)
		os.Exit(1)
	}

	sessions, err := session.NewManager(session.ManagerParams{Bus: bus, Logger: logg})
	if err != nil {
		logg.Error(ctx, "failed to create session manager", err)
		os.Exit(1)
	}

	rest, err := backend.NewClient(cfg.Backend, sessions, logg)
	if err != nil {
		logg.Error(ctx, "failed to create backend client", err)
		os.Exit(1)
	}

	gateway, err := qpay.NewClient(cfg.QPay, logg)
	if err != nil {
		logg.Error(ctx, "failed to create qpay client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	storefrontMetrics := metrics.NewStorefrontMetrics(registry)

	modes, err := reconcile.NewService(reconcile.ServiceParams{
		Local:   store,
		Server:  rest,
		Bus:     bus,
		Logger:  logg,
		Metrics: storefrontMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create reconcile service", err)
		os.Exit(1)
	}
	defer modes.Start(ctx).Close()

	view, err := cartview.NewView(cartview.ViewParams{
		Local:   store,
		Server:  rest,
		Modes:   modes,
		Session: sessions,
		Bus:     bus,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cart view", err)
		os.Exit(1)
	}
	defer view.Start(ctx).Close()

	payments, err := payment.NewOrchestrator(payment.OrchestratorParams{
		Gateway: gateway,
		Bus:     bus,
		Logger:  logg,
		Metrics: storefrontMetrics,
		Config:  cfg.Payment,
	})
	if err != nil {
		logg.Error(ctx, "failed to create payment orchestrator", err)
		os.Exit(1)
	}
	defer payments.Stop()

	checkout, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		Orders:   rest,
		Cart:     view,
		Payments: payments,
		Session:  sessions,
		Slots:    store,
		Bus:      bus,
		Logger:   logg,
		Config:   cfg.Checkout,
	})
	if err != nil {
		logg.Error(ctx, "failed to create checkout service", err)
		os.Exit(1)
	}
	defer checkout.Start(ctx).Close()

	// A pending payment from the previous run resumes polling; losing the
	// resume key is survivable, so failures only warn.
	if _, err := checkout.Resume(ctx); err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "could not resume pending payment")
	}

	addr := ":" + cfg.App.Port
	startCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(startCtx, "starting storefront daemon")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Cart:     view,
			Session:  sessions,
			Checkout: checkout,
			Payments: payments,
			Registry: registry,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(startCtx, "storefront daemon stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "error shutting down http server", err)
		}
		logg.Info(context.Background(), "storefront daemon shut down gracefully")
	}
}

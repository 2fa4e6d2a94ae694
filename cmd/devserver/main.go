package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/batjin/foodrush-storefront/internal/devserver"
	"github.com/batjin/foodrush-storefront/pkg/config"
	"github.com/batjin/foodrush-storefront/pkg/logger"
	"github.com/batjin/foodrush-storefront/pkg/redis"
)

// devserver is a stand-in for the remote storefront backend and the QPay
// gateway, for running the daemon without either. Not part of the shipped
// storefront.
func main() {
	logg := logger.New(logger.Options{ServiceName: "devserver"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "devserver",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stub, err := devserver.New(devserver.Params{
		Store:  redisClient,
		Logger: logg,
		Config: cfg.DevServer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create devserver", err)
		os.Exit(1)
	}

	addr := ":" + cfg.DevServer.Port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"addr":         addr,
		"settle_after": cfg.DevServer.SettleAfterChecks,
	})
	logg.Info(ctx, "starting stub backend")

	server := &http.Server{Addr: addr, Handler: stub.Router()}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "stub backend stopped unexpectedly", err)
		os.Exit(1)
	}
}

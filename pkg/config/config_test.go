package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad_Success(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.App.Env != "dev" {
		t.Fatalf("expected App.Env to default to dev, got %q", cfg.App.Env)
	}
	if cfg.Backend.BaseURL != "http://localhost:8090" {
		t.Fatalf("unexpected backend url %q", cfg.Backend.BaseURL)
	}
	if got := cfg.Payment.PollInterval; got != 5*time.Second {
		t.Fatalf("expected default poll interval 5s, got %v", got)
	}
	if got := cfg.Payment.MaxWait; got != 15*time.Minute {
		t.Fatalf("expected default max wait 15m, got %v", got)
	}
	if !cfg.Checkout.DeliveryFee.Equal(decimal.NewFromInt(4990)) {
		t.Fatalf("unexpected delivery fee %s", cfg.Checkout.DeliveryFee)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("FOODRUSH_QPAY_URL", "http://localhost:8090/qpay")
	// FOODRUSH_BACKEND_URL intentionally unset.
	if _, err := Load(); err == nil {
		t.Fatal("expected missing required env to return an error")
	}
}

func TestLoad_RejectsMaxWaitBelowInterval(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("FOODRUSH_PAYMENT_POLL_INTERVAL", "300s")
	t.Setenv("FOODRUSH_PAYMENT_MAX_WAIT", "60s")

	if _, err := Load(); err == nil {
		t.Fatal("expected max wait below poll interval to be rejected")
	}
}

func TestLoad_ParsesDeliveryFeeOverride(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("FOODRUSH_DELIVERY_FEE", "2500.50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if !cfg.Checkout.DeliveryFee.Equal(decimal.RequireFromString("2500.50")) {
		t.Fatalf("unexpected delivery fee %s", cfg.Checkout.DeliveryFee)
	}
}

func TestAppConfigEnvHelpers(t *testing.T) {
	app := AppConfig{Env: "DEV"}
	if !app.IsDev() {
		t.Fatal("expected IsDev for DEV")
	}
	app.Env = "prod"
	if !app.IsProd() {
		t.Fatal("expected IsProd for prod")
	}
}

func setMinimalEnv(t *testing.T) {
	t.Helper()

	t.Setenv("FOODRUSH_BACKEND_URL", "http://localhost:8090")
	t.Setenv("FOODRUSH_QPAY_URL", "http://localhost:8090/qpay")
}

package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "EVENT_EXCHANGE")
	unsetEnvWithCleanup(t, "FRAUD_VERDICT_TIMEOUT_SECONDS")
	unsetEnvWithCleanup(t, "STALE_SWEEP_SCHEDULE")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.EventExchange != "bank.events" {
		t.Fatalf("expected default exchange bank.events, got %q", cfg.EventExchange)
	}
	if cfg.FraudVerdictTimeoutSeconds != 10 {
		t.Fatalf("expected default verdict timeout 10s, got %d", cfg.FraudVerdictTimeoutSeconds)
	}
	if cfg.StaleSweepSchedule != "@every 1m" {
		t.Fatalf("expected default sweep schedule, got %q", cfg.StaleSweepSchedule)
	}
	if cfg.DefaultCurrency != "USD" {
		t.Fatalf("expected default currency USD, got %q", cfg.DefaultCurrency)
	}
}

func TestLoadConfig_PortEnvOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8084")
	setEnvWithCleanup(t, "PORT", "9000")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9000" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_NonPositiveTimeoutFallsBackToDefault(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "FRAUD_VERDICT_TIMEOUT_SECONDS", "0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.FraudVerdictTimeoutSeconds != 10 {
		t.Fatalf("expected zero timeout coerced to default, got %d", cfg.FraudVerdictTimeoutSeconds)
	}
}

func TestLoadConfig_SweepWindowNeverShorterThanVerdictTimeout(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "FRAUD_VERDICT_TIMEOUT_SECONDS", "30")
	setEnvWithCleanup(t, "STALE_SWEEP_AFTER_SECONDS", "5")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StaleSweepAfterSeconds != 30 {
		t.Fatalf("expected sweep window raised to the verdict timeout, got %d", cfg.StaleSweepAfterSeconds)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "MAX_FROZEN_ORDERS", "SAGA_STEP_TIMEOUT_SECONDS", "CART_TTL_HOURS", "KAFKA_BROKERS", "DEFAULT_WAREHOUSE_ID", "ACCESS_TOKEN_TTL_MINUTES"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %s", cfg.Address())
	}
	if cfg.MaxFrozenOrders != 3 || cfg.DefaultWarehouseID != "wh-main" {
		t.Fatalf("unexpected frozen limit %d or warehouse %q", cfg.MaxFrozenOrders, cfg.DefaultWarehouseID)
	}
	if cfg.SagaStepTimeout != 10*time.Second || cfg.CartTTL != 12*time.Hour || cfg.AccessTokenTTL != 720*time.Minute {
		t.Fatalf("unexpected durations %s %s %s", cfg.SagaStepTimeout, cfg.CartTTL, cfg.AccessTokenTTL)
	}
	if len(cfg.KafkaBrokers) != 0 || cfg.KafkaTopic != "pos-notifications" {
		t.Fatalf("unexpected kafka settings %v %q", cfg.KafkaBrokers, cfg.KafkaTopic)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, ,kafka-2:9092")
	t.Setenv("MAX_FROZEN_ORDERS", "5")
	t.Setenv("REDIS_DB", "0")
	t.Setenv("SAGA_STEP_TIMEOUT_SECONDS", "-4")

	cfg := Load()
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("expected two brokers, got %v", cfg.KafkaBrokers)
	}
	if cfg.MaxFrozenOrders != 5 {
		t.Fatalf("expected frozen limit 5, got %d", cfg.MaxFrozenOrders)
	}
	if cfg.SagaStepTimeout != 10*time.Second {
		t.Fatalf("expected fallback on negative timeout, got %s", cfg.SagaStepTimeout)
	}
}

func TestValidateRejectsDevCredentialsInProduction(t *testing.T) {
	cfg := Config{AppEnv: "production", AuthSecret: defaultAuthSecret}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected production config with default secret to fail")
	}

	cfg = Config{AppEnv: "production", AuthSecret: "a-real-secret", ManagerPIN: "4821"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid production config, got %v", err)
	}

	cfg = Config{AppEnv: "development"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected development config to pass, got %v", err)
	}
}
